package event

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stxkxs/troupe/internal/config"
)

// levelLogger records which log level each message went to.
type levelLogger struct {
	mu    sync.Mutex
	calls []string
}

func (l *levelLogger) log(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, level)
}

func (l *levelLogger) Debug(msg string, keyvals ...interface{}) { l.log("debug") }
func (l *levelLogger) Info(msg string, keyvals ...interface{})  { l.log("info") }
func (l *levelLogger) Warn(msg string, keyvals ...interface{})  { l.log("warn") }

func (l *levelLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func TestHookFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter []EventType
		event  EventType
		want   bool
	}{
		{"listed type", []EventType{JobStarted, JobFailed}, JobFailed, true},
		{"unlisted type", []EventType{JobStarted}, CrewCompleted, false},
		{"empty filter matches everything", nil, FlowTransition, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFuncHook("probe", tt.filter, false, nil)
			if got := h.Matches(tt.event); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestShellHook_SetsEventEnvironment(t *testing.T) {
	// The command only exits 0 if the event env vars were populated.
	h := NewShellHook("check-env",
		`[ "$TROUPE_EVENT_TYPE" = "task.completed" ] && [ -n "$TROUPE_EVENT_JSON" ]`,
		nil, true)

	ev := NewEvent(TaskCompleted, map[string]interface{}{"task": "research"})
	if err := h.Handle(ev); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
}

func TestShellHook_CommandFailure(t *testing.T) {
	h := NewShellHook("broken", "exit 3", nil, true)

	err := h.Handle(NewEvent(TaskFailed, nil))
	if err == nil {
		t.Fatal("expected error from failing command")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error %q should name the hook", err)
	}
}

func TestWebhookHook_PostsEventJSON(t *testing.T) {
	var (
		mu          sync.Mutex
		method      string
		contentType string
		body        []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		body = b
		mu.Unlock()
	}))
	defer server.Close()

	h := NewWebhookHook("notify", server.URL, []EventType{JobCompleted}, true)
	ev := NewEvent(JobCompleted, map[string]interface{}{"job_id": "j-1", "queue": "chat"})
	if err := h.Handle(ev); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPost {
		t.Errorf("method = %s, want POST", method)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %q, want application/json", contentType)
	}

	var got Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("payload is not event JSON: %v", err)
	}
	if got.Type != JobCompleted {
		t.Errorf("payload type = %s, want %s", got.Type, JobCompleted)
	}
	if got.Data["job_id"] != "j-1" {
		t.Errorf("payload job_id = %v, want j-1", got.Data["job_id"])
	}
}

func TestWebhookHook_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	h := NewWebhookHook("notify", server.URL, nil, true)
	err := h.Handle(NewEvent(CrewFailed, nil))
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error %q should carry the status code", err)
	}
}

func TestWebhookHook_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	h := NewWebhookHook("notify", server.URL, nil, true)
	if err := h.Handle(NewEvent(CrewFailed, nil)); err == nil {
		t.Fatal("expected error when the endpoint is down")
	}
}

func TestLogHook_LevelRouting(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"", "info"},
	}
	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			logger := &levelLogger{}
			h := NewLogHook("audit", nil, logger, tt.level)
			if h.IsBlocking() {
				t.Error("log hooks must be non-blocking")
			}

			if err := h.Handle(NewEvent(TaskStarted, map[string]interface{}{"task": "a"})); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			levels := logger.levels()
			if len(levels) != 1 || levels[0] != tt.want {
				t.Errorf("logged at %v, want single %s call", levels, tt.want)
			}
		})
	}
}

func TestPauseHook_WaitsForLine(t *testing.T) {
	var out strings.Builder
	h := NewPauseHook("gate", []EventType{TaskStarted}, "Approve {{.Task}} during {{.EventType}}?")
	h.In = strings.NewReader("yes\n")
	h.Out = &out

	ev := NewEvent(TaskStarted, map[string]interface{}{"task": "deploy"})
	if err := h.Handle(ev); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if !h.IsBlocking() {
		t.Error("pause hooks must be blocking")
	}
	prompt := out.String()
	if !strings.Contains(prompt, "Approve deploy during task.started?") {
		t.Errorf("prompt = %q, want placeholders substituted", prompt)
	}
}

func TestPauseHook_ClosedInput(t *testing.T) {
	var out strings.Builder
	h := NewPauseHook("gate", nil, "")
	h.In = strings.NewReader("")
	h.Out = &out

	// EOF on stdin should release the gate, not error out.
	if err := h.Handle(NewEvent(FlowStateEnter, nil)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.Contains(out.String(), string(FlowStateEnter)) {
		t.Errorf("default prompt %q should mention the event", out.String())
	}
}

func TestHooksFromConfig(t *testing.T) {
	cfg := config.HooksConfig{
		Enabled: true,
		Hooks: []config.HookConfig{
			{Name: "on-fail", Type: "shell", Command: "notify-send failed", Events: []string{"task.failed"}, Blocking: false},
			{Name: "audit", Type: "webhook", URL: "http://localhost:9999/events", Blocking: true},
			{Name: "trace", Type: "log", Level: "debug"},
			{Name: "approve", Type: "pause", Message: "Continue?", Events: []string{"flow.state.enter"}},
		},
	}

	hooks, err := HooksFromConfig(cfg, &levelLogger{})
	if err != nil {
		t.Fatalf("HooksFromConfig() error = %v", err)
	}
	if len(hooks) != 4 {
		t.Fatalf("built %d hooks, want 4", len(hooks))
	}

	if _, ok := hooks[0].(*ShellHook); !ok {
		t.Errorf("hooks[0] = %T, want *ShellHook", hooks[0])
	}
	if hooks[0].IsBlocking() {
		t.Error("on-fail should be non-blocking")
	}
	if !hooks[0].Matches(TaskFailed) || hooks[0].Matches(TaskCompleted) {
		t.Error("on-fail should match only task.failed")
	}
	if _, ok := hooks[1].(*WebhookHook); !ok {
		t.Errorf("hooks[1] = %T, want *WebhookHook", hooks[1])
	}
	if _, ok := hooks[2].(*LogHook); !ok {
		t.Errorf("hooks[2] = %T, want *LogHook", hooks[2])
	}
	if _, ok := hooks[3].(*PauseHook); !ok {
		t.Errorf("hooks[3] = %T, want *PauseHook", hooks[3])
	}
}

func TestHooksFromConfig_Disabled(t *testing.T) {
	cfg := config.HooksConfig{
		Enabled: false,
		Hooks:   []config.HookConfig{{Name: "x", Type: "shell", Command: "true"}},
	}
	hooks, err := HooksFromConfig(cfg, &levelLogger{})
	if err != nil {
		t.Fatalf("HooksFromConfig() error = %v", err)
	}
	if hooks != nil {
		t.Errorf("disabled section built %d hooks, want none", len(hooks))
	}
}

func TestHooksFromConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		hook config.HookConfig
	}{
		{"unknown type", config.HookConfig{Name: "x", Type: "smoke"}},
		{"shell without command", config.HookConfig{Name: "x", Type: "shell"}},
		{"webhook without url", config.HookConfig{Name: "x", Type: "webhook"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.HooksConfig{Enabled: true, Hooks: []config.HookConfig{tt.hook}}
			if _, err := HooksFromConfig(cfg, &levelLogger{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
