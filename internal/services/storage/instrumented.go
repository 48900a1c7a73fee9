package storage

import (
	"context"
	"time"
)

// OperationRecorder receives the outcome of each storage call.
type OperationRecorder interface {
	RecordStorageOperation(operation, status string, duration time.Duration)
}

// Instrumented wraps a Storage and reports every call to a recorder.
type Instrumented struct {
	next     Storage
	recorder OperationRecorder
}

// NewInstrumented creates a new instrumented storage
func NewInstrumented(next Storage, recorder OperationRecorder) *Instrumented {
	return &Instrumented{next: next, recorder: recorder}
}

func (s *Instrumented) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.recorder.RecordStorageOperation(operation, status, time.Since(start))
}

func (s *Instrumented) Get(ctx context.Context, key string) (val []byte, found bool, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()
	return s.next.Get(ctx, key)
}

func (s *Instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	start := time.Now()
	defer func() { s.observe("set", start, err) }()
	return s.next.Set(ctx, key, value, ttl)
}

func (s *Instrumented) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error) {
	start := time.Now()
	defer func() { s.observe("setnx", start, err) }()
	return s.next.SetNX(ctx, key, value, ttl)
}

func (s *Instrumented) Incr(ctx context.Context, key string) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe("incr", start, err) }()
	return s.next.Incr(ctx, key)
}

func (s *Instrumented) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()
	return s.next.Delete(ctx, key)
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}
