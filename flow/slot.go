package flow

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh/flowengine/flow/errs"
)

const (
	// DefaultMaxQueueLength is used when a slot is created without an
	// explicit capacity.
	DefaultMaxQueueLength = 1000
	// DefaultWatermark is used when a slot is created without an explicit
	// compaction watermark.
	DefaultWatermark = 0.8
)

type (
	// Payload is a JSON-compatible key-value bag carried across slots and
	// events. Routine-internal data may be richer, but payloads that cross
	// a Connection must stay within this shape.
	Payload map[string]any

	// Record is a single item stored in a Slot's queue, tagged with where
	// and when it arrived.
	Record struct {
		Payload     Payload
		EmittedFrom string
		EmittedAt   time.Time
		Consumed    bool
	}

	// QueueState is a point-in-time snapshot of a Slot's counters.
	QueueState struct {
		Name              string
		UnconsumedCount   int
		TotalCount        int
		TotalEverEnqueued int
		MaxQueueLength    int
		Watermark         float64
	}

	// Slot is a bounded, thread-safe FIFO input buffer on a Routine.
	//
	// Consumed records always form a prefix of the internal record slice:
	// every consume operation defined on Slot removes items starting from
	// the oldest unconsumed one, so the boundary between consumed and new
	// records never has gaps. This lets compaction drop a single leading
	// slice instead of tracking removed indices individually.
	Slot struct {
		mu             sync.Mutex
		name           string
		maxQueueLength int
		watermark      float64
		records        []Record
		consumed       int // records[:consumed] are Consumed
		totalEnqueued  int
	}
)

// NewSlot constructs a Slot with the given capacity and compaction
// watermark. A maxQueueLength <= 0 uses DefaultMaxQueueLength; a watermark
// outside (0,1] uses DefaultWatermark.
func NewSlot(name string, maxQueueLength int, watermark float64) *Slot {
	if maxQueueLength <= 0 {
		maxQueueLength = DefaultMaxQueueLength
	}
	if watermark <= 0 || watermark > 1 {
		watermark = DefaultWatermark
	}
	return &Slot{
		name:           name,
		maxQueueLength: maxQueueLength,
		watermark:      watermark,
	}
}

// Name returns the slot's name.
func (s *Slot) Name() string { return s.name }

// MaxQueueLength returns the slot's configured capacity.
func (s *Slot) MaxQueueLength() int { return s.maxQueueLength }

// Enqueue appends a new record if the slot has room, failing with
// errs.ErrQueueFull otherwise.
func (s *Slot) Enqueue(payload Payload, emittedFrom string, emittedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unconsumedLocked() >= s.maxQueueLength {
		return fmt.Errorf("slot %q: %w", s.name, errs.ErrQueueFull)
	}
	s.records = append(s.records, Record{
		Payload:     payload,
		EmittedFrom: emittedFrom,
		EmittedAt:   emittedAt,
	})
	s.totalEnqueued++
	return nil
}

func (s *Slot) unconsumedLocked() int {
	return len(s.records) - s.consumed
}

// UnconsumedCount returns the number of records not yet marked consumed.
func (s *Slot) UnconsumedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unconsumedLocked()
}

// TotalCount returns the number of records currently retained (consumed and
// unconsumed), i.e. after compaction has dropped any consumed prefix.
func (s *Slot) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// QueueState returns a snapshot of the slot's counters.
func (s *Slot) QueueState() QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueueState{
		Name:              s.name,
		UnconsumedCount:   s.unconsumedLocked(),
		TotalCount:        len(s.records),
		TotalEverEnqueued: s.totalEnqueued,
		MaxQueueLength:    s.maxQueueLength,
		Watermark:         s.watermark,
	}
}

// PeekNewAll returns copies of every unconsumed record, oldest first,
// without changing slot state.
func (s *Slot) PeekNewAll() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records)-s.consumed)
	copy(out, s.records[s.consumed:])
	return out
}

// PeekNewOne returns the oldest unconsumed record without changing slot
// state. The second return value is false if there is no unconsumed record.
func (s *Slot) PeekNewOne() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed >= len(s.records) {
		return Record{}, false
	}
	return s.records[s.consumed], true
}

// PeekLatest returns the most recently enqueued record, consumed or not,
// without changing slot state.
func (s *Slot) PeekLatest() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return Record{}, false
	}
	return s.records[len(s.records)-1], true
}

// ConsumeNewAll marks every unconsumed record consumed and returns their
// payloads, oldest first.
func (s *Slot) ConsumeNewAll() []Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records) - s.consumed
	if n <= 0 {
		return nil
	}
	out := make([]Payload, n)
	for i := 0; i < n; i++ {
		out[i] = s.records[s.consumed+i].Payload
		s.records[s.consumed+i].Consumed = true
	}
	s.consumed += n
	s.compactLocked()
	return out
}

// ConsumeOneNew marks the oldest unconsumed record consumed and returns it.
func (s *Slot) ConsumeOneNew() (Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed >= len(s.records) {
		return nil, false
	}
	p := s.records[s.consumed].Payload
	s.records[s.consumed].Consumed = true
	s.consumed++
	s.compactLocked()
	return p, true
}

// ConsumeNNew marks the oldest n unconsumed records consumed and returns
// their payloads, oldest first. Fewer than n are returned when fewer are
// unconsumed.
func (s *Slot) ConsumeNNew(n int) []Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	avail := len(s.records) - s.consumed
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return nil
	}
	out := make([]Payload, n)
	for i := 0; i < n; i++ {
		out[i] = s.records[s.consumed+i].Payload
		s.records[s.consumed+i].Consumed = true
	}
	s.consumed += n
	s.compactLocked()
	return out
}

// ConsumeLatestAndMarkRest returns the payload of the most recently enqueued
// unconsumed record and marks every unconsumed record (including it)
// consumed, discarding the older ones from future activation.
func (s *Slot) ConsumeLatestAndMarkRest() (Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed >= len(s.records) {
		return nil, false
	}
	latest := s.records[len(s.records)-1].Payload
	for i := s.consumed; i < len(s.records); i++ {
		s.records[i].Consumed = true
	}
	s.consumed = len(s.records)
	s.compactLocked()
	return latest, true
}

// compactLocked drops the consumed prefix once it exceeds the configured
// watermark fraction of capacity. Callers must hold s.mu.
func (s *Slot) compactLocked() {
	if s.consumed == 0 {
		return
	}
	if float64(s.consumed)/float64(s.maxQueueLength) <= s.watermark {
		return
	}
	remaining := make([]Record, len(s.records)-s.consumed)
	copy(remaining, s.records[s.consumed:])
	s.records = remaining
	s.consumed = 0
}
