package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type traceKey struct{}

// TraceContext carries correlation IDs through the execution pipeline.
type TraceContext struct {
	RunID     string `json:"run_id"`
	TraceID   string `json:"trace_id"`
	SpanID    string `json:"span_id"`
	ParentID  string `json:"parent_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	FlowState string `json:"flow_state,omitempty"`
}

// NewTraceContext creates a root trace context with a fresh TraceID and SpanID.
func NewTraceContext(runID string) *TraceContext {
	return &TraceContext{
		RunID:   runID,
		TraceID: randomID(),
		SpanID:  randomID(),
	}
}

// ChildSpan creates a child trace context inheriting the TraceID and RunID.
// The job and flow-state correlation fields carry over; the span-local agent
// and task fields do not.
func (tc *TraceContext) ChildSpan() *TraceContext {
	return &TraceContext{
		RunID:     tc.RunID,
		TraceID:   tc.TraceID,
		SpanID:    randomID(),
		ParentID:  tc.SpanID,
		JobID:     tc.JobID,
		FlowState: tc.FlowState,
	}
}

// WithAgent returns a copy with the AgentID set.
func (tc *TraceContext) WithAgent(id string) *TraceContext {
	child := *tc
	child.AgentID = id
	return &child
}

// WithTask returns a copy with the TaskID set.
func (tc *TraceContext) WithTask(id string) *TraceContext {
	child := *tc
	child.TaskID = id
	return &child
}

// WithJob returns a copy with the JobID set.
func (tc *TraceContext) WithJob(id string) *TraceContext {
	child := *tc
	child.JobID = id
	return &child
}

// WithFlowState returns a copy with the FlowState set.
func (tc *TraceContext) WithFlowState(state string) *TraceContext {
	child := *tc
	child.FlowState = state
	return &child
}

// Fields returns key-value pairs suitable for structured logging.
func (tc *TraceContext) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"run_id":   tc.RunID,
		"trace_id": tc.TraceID,
		"span_id":  tc.SpanID,
	}
	if tc.ParentID != "" {
		fields["parent_id"] = tc.ParentID
	}
	if tc.AgentID != "" {
		fields["agent"] = tc.AgentID
	}
	if tc.TaskID != "" {
		fields["task"] = tc.TaskID
	}
	if tc.JobID != "" {
		fields["job"] = tc.JobID
	}
	if tc.FlowState != "" {
		fields["state"] = tc.FlowState
	}
	return fields
}

// BeginTrace returns a context carrying the trace for a new unit of work: a
// child span when ctx already carries a trace, otherwise a fresh root for
// runID.
func BeginTrace(ctx context.Context, runID string) (context.Context, *TraceContext) {
	tc := TraceFromContext(ctx)
	if tc != nil {
		tc = tc.ChildSpan()
	} else {
		tc = NewTraceContext(runID)
	}
	return ContextWithTrace(ctx, tc), tc
}

// ContextWithTrace stores a TraceContext in the context.
func ContextWithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, tc)
}

// TraceFromContext extracts a TraceContext from the context, or nil.
func TraceFromContext(ctx context.Context) *TraceContext {
	tc, _ := ctx.Value(traceKey{}).(*TraceContext)
	return tc
}

// WithTrace returns a logger enriched with trace fields from the context.
func (l *Logger) WithTrace(ctx context.Context) *Logger {
	tc := TraceFromContext(ctx)
	if tc == nil {
		return l
	}
	return l.WithFields(tc.Fields())
}

func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
