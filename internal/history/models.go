package history

import "time"

// Record is one deployment result as stored in the history database,
// written by the worker after every processed event. DeliveryID lets a
// reader spot replays from the broker's at-least-once delivery.
type Record struct {
	ID              string    `json:"id"`
	RepoName        string    `json:"repo_name"`
	Branch          string    `json:"branch"`
	Commit          string    `json:"commit"`
	DeliveryID      string    `json:"delivery_id"`
	Success         bool      `json:"success"`
	Message         string    `json:"message"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}
