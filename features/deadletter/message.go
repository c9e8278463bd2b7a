// Package deadletter stores pipeline messages that exhausted their
// redelivery budget or hit a non-retryable fault, and lets operators
// republish them after fixing the cause.
package deadletter

import (
	"encoding/json"
	"time"
)

type Message struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Stage     string          `json:"stage"`
	Payload   json.RawMessage `json:"payload"`
	Reason    string          `json:"reason"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
}
