package event

import (
	"fmt"

	"github.com/stxkxs/troupe/internal/config"
)

// HooksFromConfig builds the hooks declared under hooks: in troupe.yaml.
// Returns nil when the section is absent or disabled.
func HooksFromConfig(cfg config.HooksConfig, logger EventLogger) ([]Hook, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	hooks := make([]Hook, 0, len(cfg.Hooks))
	for i := range cfg.Hooks {
		h, err := hookFromConfig(&cfg.Hooks[i], logger)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

func hookFromConfig(hc *config.HookConfig, logger EventLogger) (Hook, error) {
	events := make([]EventType, 0, len(hc.Events))
	for _, name := range hc.Events {
		events = append(events, EventType(name))
	}

	switch hc.Type {
	case "shell":
		if hc.Command == "" {
			return nil, fmt.Errorf("hook %q requires a 'command'", hc.Name)
		}
		return NewShellHook(hc.Name, hc.Command, events, hc.Blocking), nil
	case "webhook":
		if hc.URL == "" {
			return nil, fmt.Errorf("hook %q requires a 'url'", hc.Name)
		}
		return NewWebhookHook(hc.Name, hc.URL, events, hc.Blocking), nil
	case "log":
		return NewLogHook(hc.Name, events, logger, hc.Level), nil
	case "pause":
		return NewPauseHook(hc.Name, events, hc.Message), nil
	}
	return nil, fmt.Errorf("unknown hook type: %s", hc.Type)
}
