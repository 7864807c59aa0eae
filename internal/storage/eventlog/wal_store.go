// Package eventlog journals committed engine events in a write-ahead log so
// that they survive restarts and can be replayed by index.
package eventlog

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

const (
	DefaultDir   = "./data/events"
	segmentLimit = 1000
	maxSegments  = 100

	eventKeyPrefix = "event_"
)

// ErrClosed is returned by a store that was never opened or is closed.
var ErrClosed = errors.New("event log is not initialized")

// WALStore persists engine events in a WAL. Indexes start at 1.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) the journal in dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "events_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init event WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Publish appends the event to the journal.
func (s *WALStore) Publish(event domain.Event) error {
	if s == nil || s.wal == nil {
		return ErrClosed
	}
	if event.Kind == "" {
		return errors.New("event kind is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal engine event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, eventKeyPrefix+string(event.Kind), payload)
}

// EventsAfter returns up to limit events written after index, oldest first.
// A limit <= 0 returns all of them.
func (s *WALStore) EventsAfter(index uint64, limit int) ([]domain.EventRecord, error) {
	if s == nil || s.wal == nil {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.EventRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		if limit > 0 && len(records) >= limit {
			break
		}

		key, payload, err := s.wal.Get(idx)
		if err != nil {
			// segment rotated away
			continue
		}
		if !strings.HasPrefix(key, eventKeyPrefix) {
			continue
		}

		var event domain.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrapf(err, "decode engine event %d", idx)
		}
		records = append(records, domain.EventRecord{Index: idx, Event: event})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
