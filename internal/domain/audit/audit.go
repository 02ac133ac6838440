// Package audit defines the collaborator interface that receives a
// before/after snapshot for every mutating order operation. Rendering and
// querying of the audit log live outside this core.
package audit

import (
	"context"
	"time"
)

// Entry is a single audit record.
type Entry struct {
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Before     any       `json:"before,omitempty"`
	After      any       `json:"after,omitempty"`
	At         time.Time `json:"timestamp"`
}

// Recorder receives audit entries. Implementations must not block the
// mutation path for long; failures are logged by the caller, not propagated.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}
