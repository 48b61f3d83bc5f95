package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// SnapshotPublisher materializes currently-active passes into the
// read-only export OS-level lookup collaborators consume. It is the only
// writer of that export; readers get an ordered-by-number list and no
// network capability.
type SnapshotPublisher struct {
	passes PassStore
	sink   SnapshotSink
}

func NewSnapshotPublisher(passes PassStore, sink SnapshotSink) *SnapshotPublisher {
	return &SnapshotPublisher{passes: passes, sink: sink}
}

func (p *SnapshotPublisher) HasSink() bool {
	return p != nil && p.sink != nil
}

// Publish serializes every active pass ordered by phone number and hands
// the payload to the sink. A nil sink makes Publish a no-op so callers
// without an OS-level collaborator pay nothing.
func (p *SnapshotPublisher) Publish(ctx context.Context, now time.Time) error {
	if p == nil || p.passes == nil {
		return fmt.Errorf("core: snapshot publisher is not configured")
	}
	if p.sink == nil {
		return nil
	}

	passes, err := p.passes.ListActive(ctx, now.UTC())
	if err != nil {
		return err
	}
	entries := make([]SnapshotEntry, 0, len(passes))
	for _, pass := range passes {
		entries = append(entries, SnapshotEntry{
			PhoneNumber: pass.PhoneNumber,
			Name:        pass.GrantedToName,
			Scope:       pass.Scope,
			ExpiresAt:   pass.ExpiresAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PhoneNumber < entries[j].PhoneNumber
	})

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("core: marshal snapshot: %w", err)
	}
	return p.sink.WriteSnapshot(ctx, payload)
}

// FileSnapshotSink writes the snapshot to disk via rename so readers
// never observe a partial file.
type FileSnapshotSink struct {
	Path string
}

func (s FileSnapshotSink) WriteSnapshot(_ context.Context, payload []byte) error {
	path := s.Path
	if path == "" {
		return fmt.Errorf("core: snapshot path is required")
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".callpass-snapshot-*")
	if err != nil {
		return fmt.Errorf("core: create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("core: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("core: close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("core: replace snapshot: %w", err)
	}
	return nil
}

// MemorySnapshotSink retains the latest payload. Used by tests and by
// in-process readers.
type MemorySnapshotSink struct {
	mu      sync.RWMutex
	payload []byte
	writes  int
}

func NewMemorySnapshotSink() *MemorySnapshotSink {
	return &MemorySnapshotSink{}
}

func (s *MemorySnapshotSink) WriteSnapshot(_ context.Context, payload []byte) error {
	if s == nil {
		return fmt.Errorf("core: snapshot sink is nil")
	}
	s.mu.Lock()
	s.payload = append([]byte(nil), payload...)
	s.writes++
	s.mu.Unlock()
	return nil
}

func (s *MemorySnapshotSink) Latest() []byte {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.payload...)
}

func (s *MemorySnapshotSink) Writes() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

var (
	_ SnapshotSink = FileSnapshotSink{}
	_ SnapshotSink = (*MemorySnapshotSink)(nil)
)
