package meta

import (
	"context"
	"errors"
	"sync"
)

// Record is the host-side contract: the persisted entity that owns the raw
// JSON metadata attribute. LoadMetadata reports ok=false when the attribute
// is absent (NULL). SaveMetadata must be durable once it returns.
type Record interface {
	LoadMetadata(ctx context.Context) (raw string, ok bool, err error)
	SaveMetadata(ctx context.Context, raw string) error
}

// RecordFuncs adapts a pair of functions to Record.
type RecordFuncs struct {
	Load func(ctx context.Context) (string, bool, error)
	Save func(ctx context.Context, raw string) error
}

var errRecordFuncMissing = errors.New("meta: record function not configured")

// LoadMetadata implements Record.
func (f RecordFuncs) LoadMetadata(ctx context.Context) (string, bool, error) {
	if f.Load == nil {
		return "", false, errRecordFuncMissing
	}
	return f.Load(ctx)
}

// SaveMetadata implements Record.
func (f RecordFuncs) SaveMetadata(ctx context.Context, raw string) error {
	if f.Save == nil {
		return errRecordFuncMissing
	}
	return f.Save(ctx, raw)
}

// MemoryRecord keeps the raw attribute in process memory. Useful for tests
// and for hosts that persist the attribute themselves.
type MemoryRecord struct {
	mu    sync.RWMutex
	raw   string
	set   bool
	saves int
}

// NewMemoryRecord returns a record whose attribute is absent.
func NewMemoryRecord() *MemoryRecord {
	return &MemoryRecord{}
}

// NewMemoryRecordWith returns a record whose attribute holds raw.
func NewMemoryRecordWith(raw string) *MemoryRecord {
	return &MemoryRecord{raw: raw, set: true}
}

// LoadMetadata implements Record.
func (r *MemoryRecord) LoadMetadata(context.Context) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raw, r.set, nil
}

// SaveMetadata implements Record.
func (r *MemoryRecord) SaveMetadata(_ context.Context, raw string) error {
	r.mu.Lock()
	r.raw, r.set = raw, true
	r.saves++
	r.mu.Unlock()
	return nil
}

// Raw returns the stored attribute.
func (r *MemoryRecord) Raw() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raw, r.set
}

// Saves returns how many times SaveMetadata was called.
func (r *MemoryRecord) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}
