package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
)

// Status classifies how the ingress answered a webhook delivery.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusIgnored Status = "ignored"
	StatusPong    Status = "pong"
)

// Disposition explains what the normalizer decided for a delivery that
// did not produce a DeploymentEvent (or confirms one that did).
type Disposition struct {
	Status Status
	Reason string
}

// deployableBranches are the only branches that trigger a deployment.
// Pushes to anything else are accepted but ignored.
var deployableBranches = map[string]bool{
	"main":   true,
	"master": true,
}

// Normalize maps a provider webhook into a canonical DeploymentEvent.
//
// Dispatches on the GitHub event name: push events to main/master become
// deployment events, ping answers pong, and everything else (including
// release, reserved for later) is ignored rather than rejected. Missing
// repository or commit fields degrade to placeholders so a partial
// payload never takes the pipeline down.
//
// The payload must already be signature-verified and known-valid JSON.
func Normalize(githubEvent string, payload []byte, deliveryID string) (*DeploymentEvent, Disposition) {
	switch githubEvent {
	case "push":
		return normalizePush(payload, deliveryID)
	case "ping":
		return nil, Disposition{Status: StatusPong, Reason: "Webhook receiver operational"}
	case "release":
		return nil, Disposition{Status: StatusIgnored, Reason: "Release events not yet implemented"}
	default:
		return nil, Disposition{Status: StatusIgnored, Reason: fmt.Sprintf("Event type not handled: %s", githubEvent)}
	}
}

func normalizePush(payload []byte, deliveryID string) (*DeploymentEvent, Disposition) {
	var push github.PushEvent
	// Payload is pre-validated JSON; unknown shapes decode to nil fields
	// and fall through to the placeholders below.
	_ = json.Unmarshal(payload, &push)

	branch := refBranch(push.GetRef())
	if !deployableBranches[branch] {
		return nil, Disposition{
			Status: StatusIgnored,
			Reason: fmt.Sprintf("Not main/master branch: %s", branch),
		}
	}

	repoName := push.GetRepo().GetName()
	if repoName == "" {
		repoName = "unknown"
	}
	repoFullName := push.GetRepo().GetFullName()
	if repoFullName == "" {
		repoFullName = "unknown/unknown"
	}

	return &DeploymentEvent{
		EventType:    TypeDeployment,
		RepoName:     repoName,
		RepoFullName: repoFullName,
		Branch:       branch,
		Commit:       push.GetAfter(),
		DeliveryID:   deliveryID,
		Timestamp:    time.Now().UTC(),
		TriggeredBy:  TriggerWebhook,
	}, Disposition{Status: StatusQueued}
}

// refBranch extracts the branch name from a git ref path, e.g.
// "refs/heads/main" -> "main". An empty ref yields an empty branch.
func refBranch(ref string) string {
	if ref == "" {
		return ""
	}
	parts := strings.Split(ref, "/")
	return parts[len(parts)-1]
}
