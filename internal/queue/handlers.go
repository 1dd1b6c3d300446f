package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stxkxs/troupe/internal/agent"
	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/crew"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/provider"
	"github.com/stxkxs/troupe/internal/state"
	"github.com/stxkxs/troupe/internal/telemetry"
)

// ChatHandler runs chat jobs. A job naming an agent_id runs that agent; jobs
// without one run the configured chat crew, or fall back to the project's
// first agent when no chat crew is configured.
type ChatHandler struct {
	cfg      *config.Config
	project  *config.Project
	dir      string
	provider provider.Provider // nil selects the configured provider
	runs     *state.Manager    // optional run history
	logger   *telemetry.Logger
	hooks    []event.Hook
}

// NewChatHandler builds a chat handler backed by the configured provider.
// runs may be nil to skip run history.
func NewChatHandler(cfg *config.Config, project *config.Project, dir string, runs *state.Manager, logger *telemetry.Logger) *ChatHandler {
	return &ChatHandler{cfg: cfg, project: project, dir: dir, runs: runs, logger: logger}
}

// NewChatHandlerWithProvider builds a chat handler whose agents all share the
// given provider. Used by tests and embedding callers.
func NewChatHandlerWithProvider(cfg *config.Config, project *config.Project, dir string, p provider.Provider, runs *state.Manager, logger *telemetry.Logger) *ChatHandler {
	return &ChatHandler{cfg: cfg, project: project, dir: dir, provider: p, runs: runs, logger: logger}
}

// SetHooks registers lifecycle hooks on every crew and agent the handler
// runs, so configured observers see chat jobs the same way they see direct
// runs.
func (h *ChatHandler) SetHooks(hooks []event.Hook) {
	h.hooks = hooks
}

func (h *ChatHandler) Queue() string { return QueueChat }

func (h *ChatHandler) Handle(ctx context.Context, payload []byte) (map[string]interface{}, error) {
	var job ChatJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, troupeErrors.Wrap(troupeErrors.CodeExecutionFailed, "malformed chat job", err)
	}
	return h.Run(ctx, job)
}

// Run executes one chat turn. The synchronous HTTP endpoint calls this
// directly; Handle wraps it for queued jobs.
func (h *ChatHandler) Run(ctx context.Context, job ChatJob) (map[string]interface{}, error) {
	if strings.TrimSpace(job.Message) == "" {
		return nil, troupeErrors.New(troupeErrors.CodeExecutionFailed, "chat job has no message")
	}

	if job.AgentID == "" && h.cfg.Queue.ChatCrew != "" {
		return h.runCrew(ctx, job)
	}
	return h.runAgent(ctx, job)
}

func (h *ChatHandler) runAgent(ctx context.Context, job ChatJob) (map[string]interface{}, error) {
	agentCfg, err := h.resolveAgent(job.AgentID)
	if err != nil {
		return nil, err
	}

	exec, err := h.makeAgent(agentCfg)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	if len(h.hooks) > 0 {
		bus := event.NewBus(h.logger)
		for _, hook := range h.hooks {
			bus.Register(hook)
		}
		exec.SetEvents(bus)
	}

	var rec *state.Record
	if h.runs != nil {
		rec = h.runs.Begin(state.KindAgent, agentCfg.ID)
	}

	res, err := exec.Execute(ctx, &agent.ExecutionContext{
		TaskDescription: job.Message,
		ExpectedOutput:  "A direct, helpful reply to the user's message.",
	})
	if err != nil {
		h.runs.Fail(rec, err)
		return nil, err
	}
	h.runs.Complete(rec, res.Output)

	result := map[string]interface{}{
		"response": res.Output,
		"agent_id": agentCfg.ID,
	}
	if job.ConversationID != "" {
		result["conversation_id"] = job.ConversationID
	}
	return result, nil
}

func (h *ChatHandler) runCrew(ctx context.Context, job ChatJob) (map[string]interface{}, error) {
	crewName := h.cfg.Queue.ChatCrew
	crewCfg, err := config.LoadCrew(h.dir, crewName)
	if err != nil {
		return nil, err
	}

	inputs := map[string]string{"message": job.Message}
	if job.ConversationID != "" {
		inputs["conversation_id"] = job.ConversationID
	}
	project := h.project.WithInputs(inputs)

	var exec *crew.Executor
	if h.provider != nil {
		exec, err = crew.NewExecutorWithProvider(h.cfg, project, crewCfg, h.provider, h.logger)
	} else {
		exec, err = crew.NewExecutor(h.cfg, project, crewCfg, h.logger)
	}
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	for _, hook := range h.hooks {
		exec.Events().Register(hook)
	}

	var rec *state.Record
	if h.runs != nil {
		rec = h.runs.Begin(state.KindCrew, crewName)
	}

	res := exec.Kickoff(ctx)
	if !res.Success {
		err := fmt.Errorf("chat crew %q failed: %s", crewName, res.Error)
		h.runs.Fail(rec, err)
		return nil, err
	}
	h.runs.Complete(rec, res.Output)

	result := map[string]interface{}{
		"response": res.Output,
		"crew":     crewName,
	}
	if job.ConversationID != "" {
		result["conversation_id"] = job.ConversationID
	}
	return result, nil
}

func (h *ChatHandler) resolveAgent(id string) (*config.AgentConfig, error) {
	if id == "" {
		if len(h.project.AgentOrder) == 0 {
			return nil, troupeErrors.New(troupeErrors.CodeAgentNotFound, "project defines no agents").
				WithSuggestion("add at least one agent to agents.yaml")
		}
		return h.project.Agents[h.project.AgentOrder[0]], nil
	}
	agentCfg, ok := h.project.Agents[id]
	if !ok {
		return nil, troupeErrors.Newf(troupeErrors.CodeAgentNotFound, "unknown agent %q", id).
			WithSuggestion("define the agent in agents.yaml or omit agent_id")
	}
	return agentCfg, nil
}

func (h *ChatHandler) makeAgent(agentCfg *config.AgentConfig) (*agent.Executor, error) {
	if h.provider != nil {
		return agent.NewExecutorWithProvider(agentCfg, h.provider, h.logger)
	}
	return agent.NewExecutor(h.cfg, agentCfg, h.logger)
}

// DocumentEmbedder writes a document's content into the vector store and
// reports how many chunks it produced.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, documentID, content string, metadata map[string]interface{}) (int, error)
}

// DocumentIndexer fetches a document from its source and indexes it for
// search, reporting how many chunks it produced.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, documentID string) (int, error)
}

// EmbedHandler embeds inline document content carried by embed jobs.
type EmbedHandler struct {
	embedder DocumentEmbedder
	logger   *telemetry.Logger
}

func NewEmbedHandler(embedder DocumentEmbedder, logger *telemetry.Logger) *EmbedHandler {
	return &EmbedHandler{embedder: embedder, logger: logger}
}

func (h *EmbedHandler) Queue() string { return QueueEmbed }

func (h *EmbedHandler) Handle(ctx context.Context, payload []byte) (map[string]interface{}, error) {
	var job EmbedJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, troupeErrors.Wrap(troupeErrors.CodeExecutionFailed, "malformed embed job", err)
	}
	if job.DocumentID == "" {
		return nil, troupeErrors.New(troupeErrors.CodeExecutionFailed, "embed job has no document_id")
	}
	if strings.TrimSpace(job.Content) == "" {
		return nil, troupeErrors.New(troupeErrors.CodeExecutionFailed, "embed job has no content")
	}

	chunks, err := h.embedder.EmbedDocument(ctx, job.DocumentID, job.Content, job.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"document_id": job.DocumentID,
		"chunks":      chunks,
	}, nil
}

// IndexHandler indexes documents named by index jobs, fetching their content
// from the configured document source.
type IndexHandler struct {
	indexer DocumentIndexer
	logger  *telemetry.Logger
}

func NewIndexHandler(indexer DocumentIndexer, logger *telemetry.Logger) *IndexHandler {
	return &IndexHandler{indexer: indexer, logger: logger}
}

func (h *IndexHandler) Queue() string { return QueueIndex }

func (h *IndexHandler) Handle(ctx context.Context, payload []byte) (map[string]interface{}, error) {
	var job IndexJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, troupeErrors.Wrap(troupeErrors.CodeExecutionFailed, "malformed index job", err)
	}
	if job.DocumentID == "" {
		return nil, troupeErrors.New(troupeErrors.CodeExecutionFailed, "index job has no document_id")
	}

	chunks, err := h.indexer.IndexDocument(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"document_id": job.DocumentID,
		"chunks":      chunks,
	}, nil
}
