package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "troupe.yaml", `
name: test-project
version: "2.0"
provider:
  name: openai
  model: gpt-4o
  base_url: http://localhost:11434/v1
server:
  port: 9090
queue:
  driver: memory
  prefix: testq
  concurrency: 2
defaults:
  timeout: 10m
  max_retries: 5
logging:
  level: debug
  format: json
  file: .troupe/troupe.log
  metrics: .troupe/metrics.jsonl
state:
  driver: memory
workspace: ./data
tools:
  - name: wordcount
    description: Count words
    provider: exec
    config:
      command: wc -w
hooks:
  enabled: true
  hooks:
    - name: notify
      type: webhook
      url: http://localhost:9999/events
      events: [task.failed]
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "test-project" {
		t.Errorf("expected name test-project, got %s", cfg.Name)
	}
	if cfg.Provider.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", cfg.Provider.Model)
	}
	if cfg.Provider.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("expected base_url override, got %s", cfg.Provider.BaseURL)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Queue.Driver != "memory" || cfg.Queue.Prefix != "testq" || cfg.Queue.Concurrency != 2 {
		t.Errorf("queue config = %+v", cfg.Queue)
	}
	if cfg.Defaults.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Defaults.MaxRetries)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.File != ".troupe/troupe.log" {
		t.Errorf("logging config = %+v", cfg.Logging)
	}
	if cfg.Logging.Metrics != ".troupe/metrics.jsonl" {
		t.Errorf("expected metrics path, got %q", cfg.Logging.Metrics)
	}
	if cfg.State.Driver != "memory" {
		t.Errorf("expected driver memory, got %s", cfg.State.Driver)
	}
	if cfg.Workspace != "./data" {
		t.Errorf("expected workspace ./data, got %q", cfg.Workspace)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Name != "wordcount" || cfg.Tools[0].Provider != "exec" {
		t.Errorf("tools config = %+v", cfg.Tools)
	}
	if !cfg.Hooks.Enabled || len(cfg.Hooks.Hooks) != 1 {
		t.Fatalf("hooks config = %+v", cfg.Hooks)
	}
	if h := cfg.Hooks.Hooks[0]; h.Type != "webhook" || h.URL != "http://localhost:9999/events" ||
		len(h.Events) != 1 || h.Events[0] != "task.failed" {
		t.Errorf("hook = %+v", h)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()

	// Should return default config, not error
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "troupe-project" {
		t.Errorf("expected default name, got %s", cfg.Name)
	}
	if cfg.Queue.Concurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.Queue.Concurrency)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "troupe.yaml", `{{{invalid yaml content`)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_ApplyDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "troupe.yaml", "name: minimal\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Provider.Name != "openai" {
		t.Errorf("expected default provider openai, got %s", cfg.Provider.Name)
	}
	if cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("expected default model, got %s", cfg.Provider.Model)
	}
	if cfg.Queue.Driver != "redis" {
		t.Errorf("expected default queue driver redis, got %s", cfg.Queue.Driver)
	}
	if cfg.Queue.Prefix != "troupe" {
		t.Errorf("expected default prefix troupe, got %s", cfg.Queue.Prefix)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Defaults.MaxIterations != 10 {
		t.Errorf("expected default max_iterations 10, got %d", cfg.Defaults.MaxIterations)
	}
	if cfg.State.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %s", cfg.State.Driver)
	}
}

func TestLoad_EnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "troupe.yaml", `
name: ${TEST_TROUPE_PROJECT_NAME}
provider:
  api_key: ${env.TEST_TROUPE_API_KEY}
`)

	t.Setenv("TEST_TROUPE_PROJECT_NAME", "env-project")
	t.Setenv("TEST_TROUPE_API_KEY", "sk-test-123")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "env-project" {
		t.Errorf("expected env-project, got %s", cfg.Name)
	}
	if cfg.Provider.APIKey != "sk-test-123" {
		t.Errorf("expected sk-test-123, got %s", cfg.Provider.APIKey)
	}
}

func TestLoad_EnvInterpolation_Unset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "troupe.yaml", "name: ${UNSET_TROUPE_VAR}\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should keep original if not found
	if cfg.Name != "${UNSET_TROUPE_VAR}" {
		t.Errorf("expected uninterpolated value, got %s", cfg.Name)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "troupe.yaml", `
queue:
  redis_url: redis://file-value:6379/0
  concurrency: 2
`)

	t.Setenv("REDIS_URL", "redis://env-value:6380/1")
	t.Setenv("WORKER_CONCURRENCY", "8")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Queue.RedisURL != "redis://env-value:6380/1" {
		t.Errorf("REDIS_URL should override file, got %s", cfg.Queue.RedisURL)
	}
	if cfg.Queue.Concurrency != 8 {
		t.Errorf("WORKER_CONCURRENCY should override file, got %d", cfg.Queue.Concurrency)
	}
}

func TestLoad_InvalidWorkerConcurrency(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("WORKER_CONCURRENCY", "lots")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for non-numeric WORKER_CONCURRENCY")
	}

	t.Setenv("WORKER_CONCURRENCY", "0")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for zero WORKER_CONCURRENCY")
	}
}

func TestLoadProject_PreservesDeclarationOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents.yaml", `
zebra:
  role: Zebra Handler
  goal: handle zebras
  backstory: years of experience
alpha:
  role: Alpha Tester
  goal: test alphas
  backstory: the first one
`)
	writeFile(t, dir, "tasks.yaml", `
second:
  description: runs second
  expected_output: output two
  agent: alpha
first:
  description: runs first
  expected_output: output one
  agent: zebra
`)

	project, err := LoadProject(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(project.AgentOrder, []string{"zebra", "alpha"}) {
		t.Errorf("agent order = %v, want declaration order", project.AgentOrder)
	}
	if !reflect.DeepEqual(project.TaskOrder, []string{"second", "first"}) {
		t.Errorf("task order = %v, want declaration order", project.TaskOrder)
	}
	if project.Agents["zebra"].Role != "Zebra Handler" {
		t.Errorf("zebra role = %q", project.Agents["zebra"].Role)
	}
	if project.Tasks["first"].Agent != "zebra" {
		t.Errorf("first task agent = %q", project.Tasks["first"].Agent)
	}
}

func TestLoadAgentsFile_InvalidAgent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents.yaml", `
broken:
  goal: no role or backstory
`)

	if _, _, err := LoadAgentsFile(filepath.Join(dir, "agents.yaml")); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadTasksFile_ContextAndExtras(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tasks.yaml", `
report:
  description: Write the report
  expected_output: A report
  agent: writer
  output_file: out/report.md
  context:
    - research
    - analysis
  human_input: true
  unknown_extra_field: tolerated
`)

	tasks, _, err := LoadTasksFile(filepath.Join(dir, "tasks.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := tasks["report"]
	if task == nil {
		t.Fatal("report task not loaded")
	}
	if !reflect.DeepEqual(task.Context, []string{"research", "analysis"}) {
		t.Errorf("context = %v", task.Context)
	}
	if task.OutputFile != "out/report.md" {
		t.Errorf("output_file = %q", task.OutputFile)
	}
	if !task.HumanInput {
		t.Error("human_input not parsed")
	}
}

func TestLoadCrew(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "crews/research.yaml", `
name: research
tasks:
  - research
  - summarize
process:
  type: sequential
  fail_fast: true
  crew_timeout_s: 300
`)

	cfg, err := LoadCrew(dir, "research")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Process.Type != "sequential" || !cfg.Process.FailFast {
		t.Errorf("process = %+v", cfg.Process)
	}
	if cfg.Process.CrewTimeoutS != 300 {
		t.Errorf("crew_timeout_s = %d", cfg.Process.CrewTimeoutS)
	}
	if len(cfg.Tasks) != 2 {
		t.Errorf("tasks = %v", cfg.Tasks)
	}
}

func TestLoadFlow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flows/review.yaml", `
name: review
max_iterations: 5
states:
  - id: draft
    is_initial: true
    crew: research
  - id: done
    is_final: true
transitions:
  - from: draft
    to: done
    priority: 1
    condition:
      type: output_contains
      value: approved
`)

	cfg, err := LoadFlow(dir, "review")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.States) != 2 || len(cfg.Transitions) != 1 {
		t.Fatalf("states/transitions = %d/%d", len(cfg.States), len(cfg.Transitions))
	}
	tr := cfg.Transitions[0]
	if tr.Condition.Type != "output_contains" || tr.Condition.Value != "approved" {
		t.Errorf("condition = %+v", tr.Condition)
	}
}

func TestWithInputs_Substitution(t *testing.T) {
	agent := &AgentConfig{
		Role:      "Researcher on {topic}",
		Goal:      "Learn about {topic}",
		Backstory: "Expert in {topic} since {year}",
	}
	task := &TaskConfig{
		Description:    "Investigate {topic}",
		ExpectedOutput: "Report on {topic}",
	}
	inputs := map[string]string{"topic": "Go", "year": "2009"}

	a := agent.WithInputs(inputs)
	if a.Role != "Researcher on Go" || a.Goal != "Learn about Go" {
		t.Errorf("agent substitution: %q / %q", a.Role, a.Goal)
	}
	if a.Backstory != "Expert in Go since 2009" {
		t.Errorf("backstory = %q", a.Backstory)
	}
	// Original untouched.
	if agent.Role != "Researcher on {topic}" {
		t.Error("WithInputs mutated the receiver")
	}

	tk := task.WithInputs(inputs)
	if tk.Description != "Investigate Go" || tk.ExpectedOutput != "Report on Go" {
		t.Errorf("task substitution: %q / %q", tk.Description, tk.ExpectedOutput)
	}

	// Unknown placeholders stay as-is.
	tk2 := task.WithInputs(map[string]string{"other": "x"})
	if tk2.Description != "Investigate {topic}" {
		t.Errorf("unknown placeholder rewritten: %q", tk2.Description)
	}
}

func TestScaffold(t *testing.T) {
	dir := t.TempDir()

	created, err := Scaffold(dir, "demo")
	if err != nil {
		t.Fatalf("Scaffold() error = %v", err)
	}
	if len(created) != 5 {
		t.Errorf("created %d files, want 5: %v", len(created), created)
	}

	// The scaffold must load back cleanly.
	if _, err := Load(dir); err != nil {
		t.Errorf("Load() on scaffold: %v", err)
	}
	if _, err := LoadProject(dir); err != nil {
		t.Errorf("LoadProject() on scaffold: %v", err)
	}
	if _, err := LoadCrew(dir, "research"); err != nil {
		t.Errorf("LoadCrew() on scaffold: %v", err)
	}
	if _, err := LoadFlow(dir, "review"); err != nil {
		t.Errorf("LoadFlow() on scaffold: %v", err)
	}

	// Second run keeps existing files.
	created, err = Scaffold(dir, "demo")
	if err != nil {
		t.Fatalf("second Scaffold() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("second run created %v, want none", created)
	}
}
