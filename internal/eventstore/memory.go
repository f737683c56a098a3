package eventstore

import (
	"context"
	"sync"
	"time"

	"bankaccounts/internal/domain"
)

// Memory is the in-process Store used by tests and embedded deployments.
// A single mutex serializes appends, which also fixes the global commit
// order; the optimistic version check still applies so callers exercise the
// same conflict handling as against a shared backend.
type Memory struct {
	mu      sync.RWMutex
	log     []Record
	streams map[string][]Record
	offsets map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		streams: make(map[string][]Record),
		offsets: make(map[string]int64),
	}
}

func (m *Memory) Load(_ context.Context, streamID string) ([]domain.Event, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs, ok := m.streams[streamID]
	if !ok {
		return nil, 0, ErrNotFound
	}
	events := make([]domain.Event, 0, len(recs))
	for _, r := range recs {
		ev, err := r.Decode()
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	return events, int64(len(recs)), nil
}

func (m *Memory) Append(_ context.Context, streamID string, expectedVersion int64, events ...domain.Event) (int64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := int64(len(m.streams[streamID]))
	if current != expectedVersion {
		return 0, ErrConcurrencyConflict
	}

	version := current
	now := time.Now().UTC()
	for _, ev := range events {
		eventType, payload, err := encodeCanonical(ev)
		if err != nil {
			return 0, err
		}
		version++
		rec := Record{
			Seq:        int64(len(m.log)) + 1,
			StreamID:   streamID,
			Version:    version,
			Type:       eventType,
			Payload:    payload,
			RecordedAt: now,
		}
		m.log = append(m.log, rec)
		m.streams[streamID] = append(m.streams[streamID], rec)
	}
	return version, nil
}

func (m *Memory) ReadAll(_ context.Context, afterSeq int64, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(m.log)) {
		return nil, nil
	}
	rest := m.log[afterSeq:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]Record, len(rest))
	copy(out, rest)
	return out, nil
}

func (m *Memory) Offset(_ context.Context, consumer string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offsets[consumer], nil
}

func (m *Memory) CommitOffset(_ context.Context, consumer string, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq > m.offsets[consumer] {
		m.offsets[consumer] = seq
	}
	return nil
}
