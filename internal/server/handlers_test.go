package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/provider"
	"github.com/stxkxs/troupe/internal/queue"
	"github.com/stxkxs/troupe/internal/state"
	"github.com/stxkxs/troupe/internal/testutil"
	"github.com/stxkxs/troupe/internal/vector"
)

type testServer struct {
	*Server
	broker   *queue.MemoryBroker
	workers  *queue.Workers
	mock     *testutil.MockProvider
	pipeline *vector.Pipeline
	runs     *state.Manager
	http     *httptest.Server
}

// newTestServer wires a full in-process stack: memory broker, worker pool,
// mock provider, in-memory vector store, and run history.
func newTestServer(t *testing.T, responses ...*provider.Response) *testServer {
	t.Helper()

	cfg := testutil.TestConfig()
	project := &config.Project{
		Agents:     map[string]*config.AgentConfig{"helper": testutil.TestAgentConfig("helper")},
		AgentOrder: []string{"helper"},
		Tasks:      map[string]*config.TaskConfig{},
	}
	logger := testutil.TestLogger()

	broker := queue.NewMemoryBroker(cfg.Queue.Prefix)
	t.Cleanup(func() { broker.Close() })

	runs, err := state.NewManager("memory", "", logger)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	store, err := vector.NewChromemStore("", "server-test")
	if err != nil {
		t.Fatalf("NewChromemStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	pipeline := vector.NewPipeline(vector.NewHashEmbedder(64), store, nil, 200, logger)

	mock := &testutil.MockProvider{Responses: responses}
	chat := queue.NewChatHandlerWithProvider(cfg, project, "", mock, runs, logger)

	workers := queue.NewWorkers(broker, 2, logger,
		chat,
		queue.NewEmbedHandler(pipeline, logger),
		queue.NewIndexHandler(pipeline, logger),
	)
	ctx, cancel := context.WithCancel(context.Background())
	workers.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer stopCancel()
		workers.Stop(stopCtx)
		cancel()
	})

	srv := New(cfg, broker, chat, pipeline, runs, logger)
	ts := httptest.NewServer(corsMiddleware(srv.setupRoutes()))
	t.Cleanup(ts.Close)

	return &testServer{
		Server:   srv,
		broker:   broker,
		workers:  workers,
		mock:     mock,
		pipeline: pipeline,
		runs:     runs,
		http:     ts,
	}
}

func (ts *testServer) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(ts.http.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(ts.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func (ts *testServer) waitForJob(t *testing.T, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := ts.get(t, "/chat/jobs/"+jobID)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET /chat/jobs/%s = %d", jobID, resp.StatusCode)
		}
		if status, _ := body["status"].(string); status == "completed" || status == "failed" {
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never finished", jobID)
	return nil
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("health = %v, want ok", body["status"])
	}
	if body["queue"] != "ok" {
		t.Errorf("queue health = %v, want ok", body["queue"])
	}
	if body["name"] != "test-project" {
		t.Errorf("name = %v", body["name"])
	}
}

func TestChatAsyncRoundTrip(t *testing.T) {
	ts := newTestServer(t, testutil.TextResponse("You said hello."))

	resp, body := ts.post(t, "/chat/async", map[string]string{"message": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /chat/async = %d", resp.StatusCode)
	}
	if body["status"] != "queued" {
		t.Errorf("status = %v, want queued", body["status"])
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatal("no job_id in response")
	}

	final := ts.waitForJob(t, jobID)
	if final["status"] != "completed" {
		t.Fatalf("final status = %v, body %v", final["status"], final)
	}
	result, _ := final["result"].(map[string]interface{})
	if result["response"] != "You said hello." {
		t.Errorf("result = %v", result)
	}
	if final["completed_at"] == nil {
		t.Error("completed job missing completed_at")
	}
}

func TestChatAsync_Validation(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.post(t, "/chat/async", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", resp.StatusCode)
	}
	if body["error"] == "" {
		t.Error("error body missing")
	}

	raw, err := http.Post(ts.http.URL+"/chat/async", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Body.Close()
	if raw.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", raw.StatusCode)
	}
}

func TestChatJob_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.get(t, "/chat/jobs/no-such-job")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", resp.StatusCode)
	}
}

func TestChatSync(t *testing.T) {
	ts := newTestServer(t, testutil.TextResponse("Synchronous reply."))

	resp, body := ts.post(t, "/api/chat", map[string]string{
		"message":         "hi",
		"conversation_id": "conv-9",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/chat = %d: %v", resp.StatusCode, body)
	}
	if body["response"] != "Synchronous reply." {
		t.Errorf("response = %v", body["response"])
	}
	if body["agent_id"] != "helper" {
		t.Errorf("agent_id = %v", body["agent_id"])
	}
	if body["conversation_id"] != "conv-9" {
		t.Errorf("conversation_id = %v", body["conversation_id"])
	}
}

func TestChatSync_UnknownAgent(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.post(t, "/api/chat", map[string]string{"message": "hi", "agent_id": "nobody"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", resp.StatusCode)
	}
}

func TestEmbedThenSearch(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.post(t, "/api/embed/async", map[string]interface{}{
		"document_id": "runbook",
		"content":     "Restart the ingest service with systemctl restart ingest.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/embed/async = %d: %v", resp.StatusCode, body)
	}
	if body["document_id"] != "runbook" {
		t.Errorf("document_id = %v", body["document_id"])
	}
	jobID, _ := body["job_id"].(string)
	final := ts.waitForJob(t, jobID)
	if final["status"] != "completed" {
		t.Fatalf("embed job = %v", final)
	}

	resp, body = ts.get(t, "/api/search?q=how+to+restart+ingest&limit=3")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/search = %d: %v", resp.StatusCode, body)
	}
	if body["count"].(float64) < 1 {
		t.Fatalf("search found nothing: %v", body)
	}
	results := body["results"].([]interface{})
	top := results[0].(map[string]interface{})
	meta := top["metadata"].(map[string]interface{})
	if meta["document_id"] != "runbook" {
		t.Errorf("top hit = %v", top)
	}
}

func TestEmbedAsync_GeneratesDocumentID(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.post(t, "/api/embed/async", map[string]string{"content": "some text"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/embed/async = %d", resp.StatusCode)
	}
	if id, _ := body["document_id"].(string); id == "" {
		t.Error("no generated document_id")
	}

	resp, _ = ts.post(t, "/api/embed/async", map[string]string{"document_id": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing content status = %d, want 400", resp.StatusCode)
	}
}

func TestIndexAsync(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.post(t, "/api/index/async", map[string]string{"document_id": "guide"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/index/async = %d", resp.StatusCode)
	}
	jobID, _ := body["job_id"].(string)

	// No document source is wired, so the worker fails the job.
	final := ts.waitForJob(t, jobID)
	if final["status"] != "failed" {
		t.Errorf("index without source = %v, want failed", final["status"])
	}

	resp, _ = ts.post(t, "/api/index/async", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing document_id status = %d, want 400", resp.StatusCode)
	}
}

func TestSearch_Validation(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.get(t, "/api/search")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", resp.StatusCode)
	}

	// Searching an empty store succeeds with zero results.
	resp, body := ts.get(t, "/api/search?q=anything")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty store search = %d", resp.StatusCode)
	}
	if body["count"].(float64) != 0 {
		t.Errorf("count = %v, want 0", body["count"])
	}
}

func TestRunsEndpoints(t *testing.T) {
	ts := newTestServer(t,
		testutil.TextResponse("first"),
		testutil.TextResponse("second"),
	)

	for i := 0; i < 2; i++ {
		resp, _ := ts.post(t, "/api/chat", map[string]string{"message": fmt.Sprintf("turn %d", i)})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("chat %d failed: %d", i, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.http.URL + "/api/runs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/runs = %d", resp.StatusCode)
	}
	var runs []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0]["kind"] != "agent" || runs[0]["status"] != "completed" {
		t.Errorf("run record = %v", runs[0])
	}

	id, _ := runs[0]["id"].(string)
	getResp, rec := ts.get(t, "/api/runs/"+id)
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/runs/%s = %d", id, getResp.StatusCode)
	}
	if rec["id"] != id {
		t.Errorf("record id = %v, want %s", rec["id"], id)
	}

	missResp, _ := ts.get(t, "/api/runs/not-a-run")
	if missResp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown run status = %d, want 404", missResp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.http.URL+"/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}
