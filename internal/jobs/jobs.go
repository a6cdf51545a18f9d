// Package jobs tracks background job status. Records live in an injected
// store rather than a process-local map so status survives restarts and
// reads work across multiple server instances.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job lifecycle states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Record is one background job's polled status.
type Record struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Counters  map[string]int `json:"counters,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store persists job records. Get returns (nil, nil) for an unknown ID.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Set(ctx context.Context, rec *Record) error
	List(ctx context.Context) ([]Record, error)
}

// NewRecord starts a running record with a fresh ID.
func NewRecord(kind string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusRunning,
		Counters:  map[string]int{},
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns an independent copy of the record. Background runners
// mutate their record while handlers serialize theirs, so the two sides
// must never share one struct (or its Counters map).
func (r *Record) Clone() *Record {
	cp := *r
	if r.Counters != nil {
		cp.Counters = make(map[string]int, len(r.Counters))
		for k, v := range r.Counters {
			cp.Counters[k] = v
		}
	}
	return &cp
}

// Complete marks the record finished with a summary message.
func (r *Record) Complete(message string) {
	r.Status = StatusCompleted
	r.Message = message
	r.UpdatedAt = time.Now().UTC()
}

// Fail marks the record failed.
func (r *Record) Fail(message string) {
	r.Status = StatusError
	r.Message = message
	r.UpdatedAt = time.Now().UTC()
}
