package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deploypipe/internal/broker"
	"deploypipe/internal/broker/brokertest"
	"deploypipe/internal/deploy"
	"deploypipe/internal/event"
	"deploypipe/internal/registry"
	"deploypipe/internal/server"
	"deploypipe/internal/worker"
	"deploypipe/pkg/cmdutil"
)

const (
	testSecret = "integration-secret-at-least-32-chars"
	testCommit = "0123456789abcdef0123456789abcdef01234567"
)

// pipeline wires the full path: HTTP ingress -> input topic -> worker ->
// output topic, with in-memory topics and a scripted command runner.
type pipeline struct {
	srv    *server.Server
	input  *brokertest.Broker
	output *brokertest.Broker
	worker *worker.Worker
	runner *scriptedRunner
}

type scriptedRunner struct {
	calls   [][]string
	results []*cmdutil.Result
}

func (s *scriptedRunner) run(ctx context.Context, opts cmdutil.ExecOptions, argv []string) *cmdutil.Result {
	s.calls = append(s.calls, argv)
	if len(s.results) == 0 {
		return &cmdutil.Result{ExitCode: 0, Stdout: "ok"}
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := registry.New(map[string]*registry.Config{
		"dev-network": {
			Name:        "dev-network",
			Path:        "/srv/dev-network",
			ComposePath: "/srv/dev-network/docker",
			ComposeFile: "docker-compose.yml",
			Enabled:     true,
		},
	})

	input := brokertest.New()
	output := brokertest.New()
	runner := &scriptedRunner{}

	executor := deploy.NewExecutor(reg, logger)
	executor.Run = runner.run

	return &pipeline{
		srv: server.NewServer(reg, nil, testSecret, broker.Config{Topic: "deployment-webhooks"},
			func() broker.Publisher { return input }, logger, true),
		input:  input,
		output: output,
		worker: &worker.Worker{
			Consumer: input,
			Producer: output,
			Executor: executor,
			Logger:   logger,
		},
		runner: runner,
	}
}

func (p *pipeline) deliver(t *testing.T, eventType string, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("POST", "/github", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "delivery-e2e")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	rr := httptest.NewRecorder()
	p.srv.Router().ServeHTTP(rr, req)
	return rr
}

func (p *pipeline) drainWorker(t *testing.T) {
	t.Helper()
	if err := p.worker.Run(context.Background()); err != nil {
		t.Fatalf("Worker failed: %v", err)
	}
}

func mainPushPayload() []byte {
	return []byte(`{
		"ref": "refs/heads/main",
		"after": "` + testCommit + `",
		"repository": {"name": "dev-network", "full_name": "jimmyb/dev-network"}
	}`)
}

// Scenario A: push to main for a configured repo with a compose stack,
// both steps exit 0 -> successful result event with the 7-char prefix.
func TestPipeline_SuccessfulDeployment(t *testing.T) {
	p := newPipeline(t)

	payload := mainPushPayload()
	rr := p.deliver(t, "push", payload, server.MakeTestSignature(payload, testSecret))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from ingress, got %d: %s", rr.Code, rr.Body.String())
	}
	if p.input.Len() != 1 {
		t.Fatalf("Expected 1 event on the input topic, got %d", p.input.Len())
	}

	p.drainWorker(t)

	msgs := p.output.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected exactly 1 result event, got %d", len(msgs))
	}

	var result event.ResultEvent
	if err := json.Unmarshal(msgs[0].Value, &result); err != nil {
		t.Fatalf("Failed to decode result event: %v", err)
	}
	if !result.Success {
		t.Errorf("Expected successful result, got: %s", result.Message)
	}
	if !bytes.Contains([]byte(result.Message), []byte("0123456")) {
		t.Errorf("Expected 7-char commit prefix in message, got '%s'", result.Message)
	}
	if result.DeliveryID != "delivery-e2e" {
		t.Errorf("Expected delivery id to survive the pipeline, got '%s'", result.DeliveryID)
	}
	if len(result.Steps) != 2 {
		t.Errorf("Expected 2 steps in result, got %d", len(result.Steps))
	}
	if len(p.runner.calls) != 2 {
		t.Errorf("Expected git pull then docker compose, got %d commands", len(p.runner.calls))
	}
}

// Scenario B: push to a feature branch -> ignored, no broker traffic.
func TestPipeline_FeatureBranchIgnored(t *testing.T) {
	p := newPipeline(t)

	payload := []byte(`{
		"ref": "refs/heads/feature/cool",
		"after": "` + testCommit + `",
		"repository": {"name": "dev-network", "full_name": "jimmyb/dev-network"}
	}`)
	rr := p.deliver(t, "push", payload, server.MakeTestSignature(payload, testSecret))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "ignored" {
		t.Errorf("Expected status 'ignored', got '%s'", resp["status"])
	}
	if p.input.Len() != 0 || p.output.Len() != 0 {
		t.Error("Expected no broker traffic for a feature branch push")
	}
}

// Scenario C: tampered body -> 401, no broker traffic.
func TestPipeline_TamperedBodyRejected(t *testing.T) {
	p := newPipeline(t)

	payload := mainPushPayload()
	signature := server.MakeTestSignature(payload, testSecret)
	tampered := bytes.Replace(payload, []byte(testCommit), []byte("ffffffffffffffffffffffffffffffffffffffff"), 1)

	rr := p.deliver(t, "push", tampered, signature)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rr.Code)
	}
	if p.input.Len() != 0 {
		t.Error("Expected no broker traffic for a tampered body")
	}
}

// Scenario D: sync step times out -> failed result with a timeout
// message, compose step never runs.
func TestPipeline_SyncTimeout(t *testing.T) {
	p := newPipeline(t)
	p.runner.results = []*cmdutil.Result{
		{ExitCode: -1, TimedOut: true, Stderr: "command timed out after 300 seconds", Duration: 300 * time.Second},
	}

	payload := mainPushPayload()
	p.deliver(t, "push", payload, server.MakeTestSignature(payload, testSecret))
	p.drainWorker(t)

	msgs := p.output.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 result event, got %d", len(msgs))
	}

	var result event.ResultEvent
	json.Unmarshal(msgs[0].Value, &result)
	if result.Success {
		t.Error("Expected failed result for sync timeout")
	}
	if len(result.Steps) != 1 {
		t.Fatalf("Expected compose step never to run, got %d steps", len(result.Steps))
	}
	if !bytes.Contains([]byte(result.Steps[0].Error), []byte("timed out after 300 seconds")) {
		t.Errorf("Expected timeout message, got '%s'", result.Steps[0].Error)
	}
	if len(p.runner.calls) != 1 {
		t.Errorf("Expected only the sync command to run, got %d", len(p.runner.calls))
	}
}

// At-least-once redelivery produces two deployments and two results;
// consumers of the output topic dedup on delivery id.
func TestPipeline_RedeliveryProducesTwoResults(t *testing.T) {
	p := newPipeline(t)

	payload := mainPushPayload()
	signature := server.MakeTestSignature(payload, testSecret)
	p.deliver(t, "push", payload, signature)
	p.deliver(t, "push", payload, signature)
	p.drainWorker(t)

	if p.output.Len() != 2 {
		t.Errorf("Expected 2 result events for redelivery, got %d", p.output.Len())
	}
}
