// Package server implements the webhook ingress for the deployment
// pipeline.
//
// This package provides:
//   - GitHub webhook endpoint handling with HMAC signature verification
//   - Normalization of push payloads into deployment events
//   - Kafka publish of accepted events, keyed by repository name
//   - Per-IP rate limiting, health and status endpoints
//   - Structured logging of all HTTP requests
//
// Verification happens over the raw request body before any JSON
// parsing, so the verified bytes are exactly the bytes interpreted.
package server
