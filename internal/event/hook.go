package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Hook reacts to lifecycle events dispatched by a Bus.
type Hook interface {
	// Name identifies the hook in logs and error messages.
	Name() string
	// Matches reports whether the hook wants events of type t.
	Matches(t EventType) bool
	// IsBlocking reports whether Emit waits for Handle. A blocking hook's
	// error aborts the emitting operation.
	IsBlocking() bool
	Handle(ev Event) error
}

// hookMeta carries the identity and event filter every hook shares.
type hookMeta struct {
	name     string
	events   []EventType
	blocking bool
}

func (m *hookMeta) Name() string     { return m.name }
func (m *hookMeta) IsBlocking() bool { return m.blocking }

// Matches accepts every event when no filter was configured.
func (m *hookMeta) Matches(t EventType) bool {
	if len(m.events) == 0 {
		return true
	}
	for _, want := range m.events {
		if want == t {
			return true
		}
	}
	return false
}

// ShellHook runs a shell command for each event. The command sees the event
// through TROUPE_EVENT_TYPE and TROUPE_EVENT_JSON in its environment and
// inherits the process stdout and stderr.
type ShellHook struct {
	hookMeta
	Command string
}

func NewShellHook(name, command string, events []EventType, blocking bool) *ShellHook {
	return &ShellHook{
		hookMeta: hookMeta{name: name, events: events, blocking: blocking},
		Command:  command,
	}
}

func (h *ShellHook) Handle(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	cmd := exec.Command("sh", "-c", h.Command)
	cmd.Env = append(os.Environ(),
		"TROUPE_EVENT_TYPE="+string(ev.Type),
		"TROUPE_EVENT_JSON="+string(payload),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s: %w", h.name, err)
	}
	return nil
}

// WebhookHook POSTs each event as JSON to a URL. Requests share one client
// with a 10 second timeout; SetTimeout overrides it.
type WebhookHook struct {
	hookMeta
	URL    string
	client *http.Client
}

func NewWebhookHook(name, url string, events []EventType, blocking bool) *WebhookHook {
	return &WebhookHook{
		hookMeta: hookMeta{name: name, events: events, blocking: blocking},
		URL:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *WebhookHook) SetTimeout(d time.Duration) { h.client.Timeout = d }

func (h *WebhookHook) Handle(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := h.client.Post(h.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s: %w", h.name, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook %s: status %d", h.name, resp.StatusCode)
	}
	return nil
}

// EventLogger is the leveled logger a LogHook writes to. telemetry.Logger
// satisfies it.
type EventLogger interface {
	Logger
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
}

// LogHook writes each event to the runtime log at a fixed level. Never
// blocking.
type LogHook struct {
	hookMeta
	logger EventLogger
	level  string
}

// NewLogHook creates a log hook. Level is one of debug, info, or warn and
// defaults to info.
func NewLogHook(name string, events []EventType, logger EventLogger, level string) *LogHook {
	if level == "" {
		level = "info"
	}
	return &LogHook{
		hookMeta: hookMeta{name: name, events: events, blocking: false},
		logger:   logger,
		level:    level,
	}
}

func (h *LogHook) Handle(ev Event) error {
	keyvals := make([]interface{}, 0, 2*len(ev.Data))
	for k, v := range ev.Data {
		keyvals = append(keyvals, k, v)
	}

	msg := "Event " + string(ev.Type)
	switch h.level {
	case "debug":
		h.logger.Debug(msg, keyvals...)
	case "warn":
		h.logger.Warn(msg, keyvals...)
	default:
		h.logger.Info(msg, keyvals...)
	}
	return nil
}

// PauseHook holds the run until a line arrives on In, for manual approval
// gates. Always blocking. The prompt supports {{.EventType}} and {{.Task}}
// placeholders.
type PauseHook struct {
	hookMeta
	Message string
	In      io.Reader // defaults to os.Stdin
	Out     io.Writer // defaults to os.Stderr
}

func NewPauseHook(name string, events []EventType, message string) *PauseHook {
	return &PauseHook{
		hookMeta: hookMeta{name: name, events: events, blocking: true},
		Message:  message,
		In:       os.Stdin,
		Out:      os.Stderr,
	}
}

func (h *PauseHook) Handle(ev Event) error {
	msg := h.Message
	if msg == "" {
		msg = fmt.Sprintf("Paused on %s. Press Enter to continue...", ev.Type)
	}
	msg = strings.ReplaceAll(msg, "{{.EventType}}", string(ev.Type))
	if task, ok := ev.Data["task"].(string); ok {
		msg = strings.ReplaceAll(msg, "{{.Task}}", task)
	}

	out := h.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintln(out, msg)

	in := h.In
	if in == nil {
		in = os.Stdin
	}
	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// FuncHook adapts a plain function into a hook. Used for in-process
// listeners such as CLI progress output and tests.
type FuncHook struct {
	hookMeta
	Fn func(Event) error
}

func NewFuncHook(name string, events []EventType, blocking bool, fn func(Event) error) *FuncHook {
	return &FuncHook{
		hookMeta: hookMeta{name: name, events: events, blocking: blocking},
		Fn:       fn,
	}
}

func (h *FuncHook) Handle(ev Event) error {
	if h.Fn == nil {
		return nil
	}
	return h.Fn(ev)
}
