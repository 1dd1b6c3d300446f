package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads the main project configuration from dir/troupe.yaml.
// A missing file yields the default configuration; environment overrides
// (REDIS_URL, WORKER_CONCURRENCY, OPENAI_API_KEY) apply either way.
func Load(dir string) (*Config, error) {
	configFile := filepath.Join(dir, "troupe.yaml")

	cfg := defaultConfig()

	content, err := os.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		content = []byte(interpolateEnv(string(content)))
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadProject loads agents.yaml and tasks.yaml from dir, preserving the
// order definitions appear in.
func LoadProject(dir string) (*Project, error) {
	agents, agentOrder, err := LoadAgentsFile(filepath.Join(dir, "agents.yaml"))
	if err != nil {
		return nil, err
	}
	tasks, taskOrder, err := LoadTasksFile(filepath.Join(dir, "tasks.yaml"))
	if err != nil {
		return nil, err
	}
	return &Project{
		Agents:     agents,
		AgentOrder: agentOrder,
		Tasks:      tasks,
		TaskOrder:  taskOrder,
	}, nil
}

// LoadAgentsFile loads a mapping of agent id to agent definition.
func LoadAgentsFile(path string) (map[string]*AgentConfig, []string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read agents file: %w", err)
	}
	content = []byte(interpolateEnv(string(content)))

	doc, err := mappingRoot(content, "agents")
	if err != nil {
		return nil, nil, err
	}

	agents := make(map[string]*AgentConfig)
	var order []string
	for i := 0; i+1 < len(doc.Content); i += 2 {
		id := doc.Content[i].Value
		var cfg AgentConfig
		if err := doc.Content[i+1].Decode(&cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse agent %q: %w", id, err)
		}
		cfg.ID = id
		if err := validateAgent(&cfg); err != nil {
			return nil, nil, err
		}
		agents[id] = &cfg
		order = append(order, id)
	}
	return agents, order, nil
}

// LoadTasksFile loads a mapping of task id to task definition.
func LoadTasksFile(path string) (map[string]*TaskConfig, []string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tasks file: %w", err)
	}
	content = []byte(interpolateEnv(string(content)))

	doc, err := mappingRoot(content, "tasks")
	if err != nil {
		return nil, nil, err
	}

	tasks := make(map[string]*TaskConfig)
	var order []string
	for i := 0; i+1 < len(doc.Content); i += 2 {
		id := doc.Content[i].Value
		var cfg TaskConfig
		if err := doc.Content[i+1].Decode(&cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse task %q: %w", id, err)
		}
		cfg.ID = id
		if err := validateTask(&cfg); err != nil {
			return nil, nil, err
		}
		tasks[id] = &cfg
		order = append(order, id)
	}
	return tasks, order, nil
}

// mappingRoot unmarshals content and returns the document's top-level
// mapping node. Decoding through yaml.Node keeps declaration order, which
// plain map decoding would lose.
func mappingRoot(content []byte, what string) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("failed to parse %s file: %w", what, err)
	}
	if len(root.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode}, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s file must be a mapping of ids to definitions", what)
	}
	return doc, nil
}

// LoadCrew loads a crew configuration from dir/crews/<name>.yaml.
func LoadCrew(dir, name string) (*CrewConfig, error) {
	crewFile := filepath.Join(dir, "crews", name+".yaml")

	content, err := os.ReadFile(crewFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read crew file: %w", err)
	}
	content = []byte(interpolateEnv(string(content)))

	var cfg CrewConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse crew config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}

	if err := ValidateCrew(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFlow loads a flow configuration from dir/flows/<name>.yaml.
func LoadFlow(dir, name string) (*FlowConfig, error) {
	flowFile := filepath.Join(dir, "flows", name+".yaml")

	content, err := os.ReadFile(flowFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	content = []byte(interpolateEnv(string(content)))

	var cfg FlowConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flow config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}

	if err := ValidateFlow(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// interpolateEnv replaces ${env.VAR} and ${VAR} with environment values
func interpolateEnv(content string) string {
	// Match ${env.VAR} pattern
	envPattern := regexp.MustCompile(`\$\{env\.([^}]+)\}`)
	content = envPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // keep original if not found
	})

	// Match ${VAR} pattern
	varPattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	content = varPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := varPattern.FindStringSubmatch(match)[1]
		// Skip if it's not an env reference
		if strings.HasPrefix(varName, "input.") || strings.HasPrefix(varName, "output.") {
			return match
		}
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return content
}

// substituteInputs replaces {name} placeholders with input values.
func substituteInputs(s string, inputs map[string]string) string {
	if s == "" || len(inputs) == 0 {
		return s
	}
	for k, v := range inputs {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

// WithInputs returns a copy with {name} placeholders replaced in role, goal,
// and backstory. The receiver is not modified.
func (a *AgentConfig) WithInputs(inputs map[string]string) *AgentConfig {
	if len(inputs) == 0 {
		return a
	}
	clone := *a
	clone.Role = substituteInputs(a.Role, inputs)
	clone.Goal = substituteInputs(a.Goal, inputs)
	clone.Backstory = substituteInputs(a.Backstory, inputs)
	return &clone
}

// WithInputs returns a copy with {name} placeholders replaced in description
// and expected_output. The receiver is not modified.
func (t *TaskConfig) WithInputs(inputs map[string]string) *TaskConfig {
	if len(inputs) == 0 {
		return t
	}
	clone := *t
	clone.Description = substituteInputs(t.Description, inputs)
	clone.ExpectedOutput = substituteInputs(t.ExpectedOutput, inputs)
	return &clone
}

// WithInputs returns a copy of the project with {name} placeholders replaced
// in every agent and task definition. The receiver is not modified.
func (p *Project) WithInputs(inputs map[string]string) *Project {
	if len(inputs) == 0 {
		return p
	}
	clone := &Project{
		Agents:     make(map[string]*AgentConfig, len(p.Agents)),
		AgentOrder: p.AgentOrder,
		Tasks:      make(map[string]*TaskConfig, len(p.Tasks)),
		TaskOrder:  p.TaskOrder,
	}
	for id, a := range p.Agents {
		clone.Agents[id] = a.WithInputs(inputs)
	}
	for id, t := range p.Tasks {
		clone.Tasks[id] = t.WithInputs(inputs)
	}
	return clone
}

func defaultConfig() *Config {
	return &Config{
		Name:    "troupe-project",
		Version: "1.0",
		Provider: ProviderConfig{
			Name:  "openai",
			Model: "gpt-4o-mini",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Queue: QueueConfig{
			Driver:      "redis",
			RedisURL:    "redis://localhost:6379/0",
			Prefix:      "troupe",
			Concurrency: 4,
		},
		Defaults: DefaultsConfig{
			Timeout:       "30m",
			MaxRetries:    3,
			MaxIterations: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		State: StateStoreConfig{
			Driver: "sqlite",
			Path:   ".troupe/state.db",
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "openai"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "gpt-4o-mini"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = "redis"
	}
	if cfg.Queue.RedisURL == "" {
		cfg.Queue.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.Queue.Prefix == "" {
		cfg.Queue.Prefix = "troupe"
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "documents"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = 256
	}
	if cfg.Vector.ChunkSize == 0 {
		cfg.Vector.ChunkSize = 1000
	}
	if cfg.Defaults.Timeout == "" {
		cfg.Defaults.Timeout = "30m"
	}
	if cfg.Defaults.MaxRetries == 0 {
		cfg.Defaults.MaxRetries = 3
	}
	if cfg.Defaults.MaxIterations == 0 {
		cfg.Defaults.MaxIterations = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.State.Driver == "" {
		cfg.State.Driver = "sqlite"
	}
	if cfg.State.Path == "" {
		cfg.State.Path = ".troupe/state.db"
	}

	// Load API key from environment if not set
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// applyEnvOverrides applies the deployment environment variables. These win
// over file values so one image can run against many environments.
func applyEnvOverrides(cfg *Config) error {
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Queue.RedisURL = url
	}
	if raw := os.Getenv("WORKER_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid WORKER_CONCURRENCY %q: must be a positive integer", raw)
		}
		cfg.Queue.Concurrency = n
	}
	return nil
}
