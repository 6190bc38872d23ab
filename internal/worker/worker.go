// Package worker runs the deployment consume loop: one event at a time,
// fully processed (deploy, correlate, publish result, record history)
// before the next is fetched. Parallelism across repositories comes from
// running more worker processes in the same consumer group.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"deploypipe/internal/broker"
	"deploypipe/internal/deploy"
	"deploypipe/internal/event"
	"deploypipe/internal/history"
)

// Worker consumes deployment events and publishes correlated results.
// The consumer is owned exclusively by the loop; the producer is shared
// with nobody else in this process.
type Worker struct {
	Consumer broker.Consumer
	Producer broker.Publisher
	Executor *deploy.Executor
	History  *history.History // nil disables history recording
	Logger   *slog.Logger
}

// Run blocks consuming events until ctx is canceled. Cancellation is
// honored between events only: an in-flight deployment always finishes,
// publishes its result, and then the loop exits.
func (w *Worker) Run(ctx context.Context) error {
	w.Logger.Info("worker started, waiting for deployment events")

	for {
		msg, err := w.Consumer.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				w.Logger.Info("worker stopping")
				return nil
			}
			return err
		}

		// The loop context is deliberately not passed down: shutdown
		// must not abort a deployment mid-step.
		w.process(context.Background(), msg)
	}
}

func (w *Worker) process(ctx context.Context, msg broker.Message) {
	var ev event.DeploymentEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		// Ingress only publishes valid events; a garbled record can
		// carry no identity to correlate a result to, so skip it.
		w.Logger.Error("discarding undecodable event",
			"error", err, "partition", msg.Partition, "offset", msg.Offset)
		return
	}

	w.Logger.Info("received deployment event",
		"repo", ev.RepoFullName,
		"branch", ev.Branch,
		"commit", event.ShortCommit(ev.Commit),
		"delivery_id", ev.DeliveryID,
		"partition", msg.Partition,
		"offset", msg.Offset)

	start := time.Now()
	outcome := w.Executor.Execute(ctx, ev.RepoName, ev.Commit, ev.Branch)
	duration := time.Since(start)

	result := event.NewResultEvent(&ev, outcome)

	// The deployment's side effects already happened; a failed result
	// publish is logged, never retried or rolled back.
	if err := w.Producer.Publish(ctx, ev.RepoName, result); err != nil {
		w.Logger.Error("failed to publish result event", "error", err, "repo", ev.RepoName)
	}

	w.record(ctx, &ev, outcome, duration)

	if outcome.Success {
		w.Logger.Info("deployment succeeded", "repo", ev.RepoName, "message", outcome.Message)
	} else {
		w.Logger.Error("deployment failed", "repo", ev.RepoName, "message", outcome.Message)
	}
}

func (w *Worker) record(ctx context.Context, ev *event.DeploymentEvent, outcome *event.DeploymentOutcome, duration time.Duration) {
	if w.History == nil {
		return
	}

	if _, err := w.History.Record(ctx, &history.Record{
		RepoName:        ev.RepoName,
		Branch:          ev.Branch,
		Commit:          ev.Commit,
		DeliveryID:      ev.DeliveryID,
		Success:         outcome.Success,
		Message:         outcome.Message,
		DurationSeconds: duration.Seconds(),
	}); err != nil {
		w.Logger.Error("failed to record deployment history", "error", err, "repo", ev.RepoName)
	}
}
