package event

import "time"

const (
	// TypeDeployment tags events on the input topic.
	TypeDeployment = "deployment"

	// TypeDeploymentResult tags events on the output topic.
	TypeDeploymentResult = "deployment_result"

	// TriggerWebhook marks events that originated from a GitHub webhook.
	TriggerWebhook = "github-webhook"
)

// DeploymentEvent is the canonical record for one requested deployment.
// It is created by the normalizer, published keyed by RepoName, and
// consumed by the worker. Fields are never mutated after publish.
type DeploymentEvent struct {
	EventType    string    `json:"event_type"`
	RepoName     string    `json:"repo_name"`
	RepoFullName string    `json:"repo_full_name"`
	Branch       string    `json:"branch"`
	Commit       string    `json:"commit"`
	DeliveryID   string    `json:"delivery_id"`
	Timestamp    time.Time `json:"timestamp"`
	TriggeredBy  string    `json:"triggered_by"`
}

// StepResult records one attempted deployment step with its captured output.
type StepResult struct {
	Step    string `json:"step"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error"`
}

// DeploymentOutcome is the executor's verdict for one event: overall
// success, a human-readable message, and the ordered step log.
type DeploymentOutcome struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Steps   []StepResult `json:"steps"`
	Commit  string       `json:"commit"`
	Branch  string       `json:"branch"`
}

// ResultEvent is the outcome correlated back to the identity of the
// triggering event. Published on the output topic keyed by RepoName.
// Consumers must deduplicate on DeliveryID: at-least-once delivery on
// the input topic means a replayed event produces a duplicate result.
type ResultEvent struct {
	EventType         string       `json:"event_type"`
	RepoName          string       `json:"repo_name"`
	RepoFullName      string       `json:"repo_full_name"`
	Branch            string       `json:"branch"`
	Commit            string       `json:"commit"`
	DeliveryID        string       `json:"delivery_id"`
	OriginalTimestamp time.Time    `json:"original_timestamp"`
	ResultTimestamp   time.Time    `json:"result_timestamp"`
	Success           bool         `json:"success"`
	Message           string       `json:"message"`
	Steps             []StepResult `json:"steps"`
}

// NewResultEvent correlates an outcome with the event that triggered it.
// Pure field composition; no branching beyond copying.
func NewResultEvent(ev *DeploymentEvent, outcome *DeploymentOutcome) *ResultEvent {
	return &ResultEvent{
		EventType:         TypeDeploymentResult,
		RepoName:          ev.RepoName,
		RepoFullName:      ev.RepoFullName,
		Branch:            ev.Branch,
		Commit:            ev.Commit,
		DeliveryID:        ev.DeliveryID,
		OriginalTimestamp: ev.Timestamp,
		ResultTimestamp:   time.Now().UTC(),
		Success:           outcome.Success,
		Message:           outcome.Message,
		Steps:             outcome.Steps,
	}
}

// ShortCommit abbreviates a commit hash to the conventional 7 characters.
func ShortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
