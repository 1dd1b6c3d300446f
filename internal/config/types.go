package config

import "time"

// Config represents the main project configuration (troupe.yaml)
type Config struct {
	Name      string           `yaml:"name" json:"name"`
	Version   string           `yaml:"version" json:"version"`
	Provider  ProviderConfig   `yaml:"provider" json:"provider"`
	Server    ServerConfig     `yaml:"server" json:"server"`
	Queue     QueueConfig      `yaml:"queue" json:"queue"`
	Vector    VectorConfig     `yaml:"vector" json:"vector"`
	Defaults  DefaultsConfig   `yaml:"defaults" json:"defaults"`
	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
	State     StateStoreConfig `yaml:"state" json:"state"`
	Hooks     HooksConfig      `yaml:"hooks" json:"hooks"`
	Tools     []ToolConfig     `yaml:"tools" json:"tools"`
	Workspace string           `yaml:"workspace,omitempty" json:"workspace,omitempty"` // base dir for file tools
}

// ProviderConfig configures the LLM provider
type ProviderConfig struct {
	Name    string `yaml:"name" json:"name"`   // openai or any endpoint speaking its protocol
	Model   string `yaml:"model" json:"model"` // default model id
	APIKey  string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"` // override for self-hosted endpoints
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// QueueConfig configures the job broker and worker pool
type QueueConfig struct {
	Driver      string `yaml:"driver" json:"driver"`           // redis, memory
	RedisURL    string `yaml:"redis_url" json:"redis_url"`     // env REDIS_URL overrides
	Prefix      string `yaml:"prefix" json:"prefix"`           // queue name prefix
	Concurrency int    `yaml:"concurrency" json:"concurrency"` // env WORKER_CONCURRENCY overrides
	ChatCrew    string `yaml:"chat_crew,omitempty" json:"chat_crew,omitempty"` // crew for chat jobs without an agent_id
}

// VectorConfig configures the embedding pipeline behind embed and index jobs.
type VectorConfig struct {
	Path       string `yaml:"path,omitempty" json:"path,omitempty"` // persist dir; empty keeps vectors in memory
	Collection string `yaml:"collection" json:"collection"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	ChunkSize  int    `yaml:"chunk_size" json:"chunk_size"`                 // max chunk length in runes
	Documents  string `yaml:"documents,omitempty" json:"documents,omitempty"` // source dir for index jobs
}

// DefaultsConfig provides default values
type DefaultsConfig struct {
	Timeout       string `yaml:"timeout" json:"timeout"` // e.g., "30m"
	MaxRetries    int    `yaml:"max_retries" json:"max_retries"`
	MaxIterations int    `yaml:"max_iterations" json:"max_iterations"` // agent tool-loop bound
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`                         // debug, info, warn, error
	Format  string `yaml:"format" json:"format"`                       // text, json
	File    string `yaml:"file,omitempty" json:"file,omitempty"`       // optional log file, appended alongside stderr
	Metrics string `yaml:"metrics,omitempty" json:"metrics,omitempty"` // optional JSONL file for metrics snapshots
}

// StateStoreConfig configures run history storage
type StateStoreConfig struct {
	Driver string `yaml:"driver" json:"driver"` // sqlite, memory
	Path   string `yaml:"path" json:"path"`     // file path for sqlite
}

// HooksConfig configures lifecycle event hooks.
type HooksConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Hooks   []HookConfig `yaml:"hooks" json:"hooks"`
}

// HookConfig defines a single hook.
type HookConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`     // shell, webhook, log, pause
	Events   []string `yaml:"events" json:"events"` // event types to match
	Blocking bool     `yaml:"blocking" json:"blocking"`
	Command  string   `yaml:"command,omitempty" json:"command,omitempty"` // for shell hooks
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`         // for webhook hooks
	Message  string   `yaml:"message,omitempty" json:"message,omitempty"` // for pause hooks
	Level    string   `yaml:"level,omitempty" json:"level,omitempty"`     // for log hooks (debug, info, warn)
}

// ToolConfig represents a configured tool definition
type ToolConfig struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description" json:"description"`
	Provider    string                 `yaml:"provider" json:"provider"` // exec, http, builtin
	Config      map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

// AgentConfig represents one entry in agents.yaml. The map key becomes ID.
type AgentConfig struct {
	ID                   string   `yaml:"-" json:"id"`
	Role                 string   `yaml:"role" json:"role"`
	Goal                 string   `yaml:"goal" json:"goal"`
	Backstory            string   `yaml:"backstory" json:"backstory"`
	LLM                  string   `yaml:"llm,omitempty" json:"llm,omitempty"` // model id override
	Tools                []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	AllowDelegation      bool     `yaml:"allow_delegation,omitempty" json:"allow_delegation,omitempty"`
	Verbose              bool     `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	MaxIter              int      `yaml:"max_iter,omitempty" json:"max_iter,omitempty"`
	MaxExecutionTime     int      `yaml:"max_execution_time,omitempty" json:"max_execution_time,omitempty"` // seconds
	RespectContextWindow *bool    `yaml:"respect_context_window,omitempty" json:"respect_context_window,omitempty"`
	Temperature          float64  `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens            int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	SystemSuffix         string   `yaml:"system_suffix,omitempty" json:"system_suffix,omitempty"`
	Memory               *MemoryConfig `yaml:"memory,omitempty" json:"memory,omitempty"`
}

// RespectsContextWindow reports the respect_context_window flag, true unless
// explicitly disabled.
func (a *AgentConfig) RespectsContextWindow() bool {
	if a.RespectContextWindow == nil {
		return true
	}
	return *a.RespectContextWindow
}

// MemoryConfig configures a memory store. Mirrors the memory package's
// Config so YAML stays decoupled from the runtime type.
type MemoryConfig struct {
	Type          string `yaml:"type" json:"type"` // short_term, long_term, entity, episodic
	MaxItems      int    `yaml:"max_items,omitempty" json:"max_items,omitempty"`
	UseEmbeddings bool   `yaml:"use_embeddings,omitempty" json:"use_embeddings,omitempty"`
	TTLSeconds    int    `yaml:"ttl_seconds,omitempty" json:"ttl_seconds,omitempty"`
	Persist       bool   `yaml:"persist,omitempty" json:"persist,omitempty"`
	StoragePath   string `yaml:"storage_path,omitempty" json:"storage_path,omitempty"`
}

// TaskConfig represents one entry in tasks.yaml. The map key becomes ID.
type TaskConfig struct {
	ID                  string   `yaml:"-" json:"id"`
	Description         string   `yaml:"description" json:"description"`
	ExpectedOutput      string   `yaml:"expected_output" json:"expected_output"`
	Agent               string   `yaml:"agent,omitempty" json:"agent,omitempty"`
	OutputFile          string   `yaml:"output_file,omitempty" json:"output_file,omitempty"`
	Context             []string `yaml:"context,omitempty" json:"context,omitempty"` // dependency task ids, ordered
	AsyncExecution      bool     `yaml:"async_execution,omitempty" json:"async_execution,omitempty"`
	HumanInput          bool     `yaml:"human_input,omitempty" json:"human_input,omitempty"`
	Tools               []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	MaxRetries          int      `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	TimeoutSeconds      int      `yaml:"timeout_s,omitempty" json:"timeout_s,omitempty"`
	ContextInstructions string   `yaml:"context_instructions,omitempty" json:"context_instructions,omitempty"`
}

// CrewConfig represents a crew definition (crews/<name>.yaml)
type CrewConfig struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Agents      []string      `yaml:"agents" json:"agents"` // agent ids; empty = all project agents
	Tasks       []string      `yaml:"tasks" json:"tasks"`   // task ids in execution order
	Process     ProcessConfig `yaml:"process" json:"process"`
	Memory      *MemoryConfig `yaml:"memory,omitempty" json:"memory,omitempty"`
}

// ProcessConfig controls how a crew schedules its tasks
type ProcessConfig struct {
	Type            string `yaml:"type" json:"type"` // sequential, hierarchical, parallel, custom
	ManagerModel    string `yaml:"manager_model,omitempty" json:"manager_model,omitempty"`
	AllowDelegation bool   `yaml:"allow_delegation,omitempty" json:"allow_delegation,omitempty"`
	MaxParallel     int    `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty"`
	FailFast        bool   `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
	RetryFailed     bool   `yaml:"retry_failed,omitempty" json:"retry_failed,omitempty"`
	MaxRetries      int    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	CrewTimeoutS    int    `yaml:"crew_timeout_s,omitempty" json:"crew_timeout_s,omitempty"`
	Verbose         bool   `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// FlowConfig represents a flow definition (flows/<name>.yaml)
type FlowConfig struct {
	Name          string                 `yaml:"name" json:"name"`
	Description   string                 `yaml:"description,omitempty" json:"description,omitempty"`
	States        []StateConfig          `yaml:"states" json:"states"`
	Transitions   []TransitionConfig     `yaml:"transitions" json:"transitions"` // declaration order breaks priority ties
	MaxIterations int                    `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	Variables     map[string]interface{} `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// StateConfig represents a flow state
type StateConfig struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	IsInitial   bool   `yaml:"is_initial,omitempty" json:"is_initial,omitempty"`
	IsFinal     bool   `yaml:"is_final,omitempty" json:"is_final,omitempty"`
	Crew        string `yaml:"crew,omitempty" json:"crew,omitempty"` // crew to kick off on entry
	TimeoutS    int    `yaml:"timeout_s,omitempty" json:"timeout_s,omitempty"`
}

// TransitionConfig represents a flow transition
type TransitionConfig struct {
	ID        string          `yaml:"id,omitempty" json:"id,omitempty"`
	From      string          `yaml:"from" json:"from"`
	To        string          `yaml:"to" json:"to"`
	Condition ConditionConfig `yaml:"condition" json:"condition"`
	Priority  int             `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// ConditionConfig is the YAML shape of a transition condition. Type selects
// the variant; combinators nest via Conditions (and/or) or Condition (not).
type ConditionConfig struct {
	Type       string            `yaml:"type" json:"type"` // always, on_success, on_failure, output_contains, output_matches, variable_equals, and, or, not
	Value      interface{}       `yaml:"value,omitempty" json:"value,omitempty"`     // output_contains substring, variable_equals value
	Pattern    string            `yaml:"pattern,omitempty" json:"pattern,omitempty"` // output_matches regex
	Name       string            `yaml:"name,omitempty" json:"name,omitempty"`       // variable_equals variable name
	Conditions []ConditionConfig `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Condition  *ConditionConfig  `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Project bundles the agent and task definitions loaded from a project
// directory, preserving the order they were declared in.
type Project struct {
	Agents     map[string]*AgentConfig
	AgentOrder []string
	Tasks      map[string]*TaskConfig
	TaskOrder  []string
}

// ParsedTimeout converts the defaults timeout string to a duration.
func (d *DefaultsConfig) ParsedTimeout() (time.Duration, error) {
	if d.Timeout == "" {
		return 30 * time.Minute, nil // default
	}
	return time.ParseDuration(d.Timeout)
}
