package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// SourceFunc fetches the raw catalog document bytes (file, repository row,
// remote config service). It is the only I/O in the catalog path.
type SourceFunc func(ctx context.Context) ([]byte, error)

// Store holds the active catalog snapshot behind an atomic pointer.
// Evaluations read the snapshot once and use it end-to-end; Reload swaps the
// whole pointer, so concurrent readers see either the old or the new catalog
// in full, never a mix.
type Store struct {
	current atomic.Pointer[Snapshot]
	source  SourceFunc
}

// NewStore creates a store serving the given initial snapshot.
func NewStore(initial *Snapshot, source SourceFunc) *Store {
	s := &Store{source: source}
	if initial == nil {
		initial = DefaultSnapshot()
	}
	s.current.Store(initial)
	return s
}

// Current returns the active snapshot. Callers must hold on to the returned
// pointer for the duration of one evaluation rather than calling Current
// per rule.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Version returns the active catalog version.
func (s *Store) Version() string {
	return s.current.Load().Version
}

// Replace atomically installs a snapshot, returning the previous version.
func (s *Store) Replace(snap *Snapshot) string {
	old := s.current.Swap(snap)
	slog.Info("catalog replaced",
		"old_version", old.Version,
		"new_version", snap.Version,
	)
	return old.Version
}

// Reload fetches the document from the configured source and swaps it in.
// On any failure the previously active snapshot keeps serving and the error
// is returned for the caller to surface.
func (s *Store) Reload(ctx context.Context) error {
	if s.source == nil {
		return nil
	}

	raw, err := s.source(ctx)
	if err != nil {
		slog.Error("catalog reload: source fetch failed, keeping active catalog",
			"active_version", s.Version(),
			"error", err,
		)
		return err
	}

	snap, err := Load(raw)
	if err != nil {
		// Load already logged the cause; the active snapshot stays.
		return err
	}

	s.Replace(snap)
	return nil
}
