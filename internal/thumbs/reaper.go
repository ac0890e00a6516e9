package thumbs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/draftboard/draftboard/internal/debug"
)

// OrphanGrace is how old an orphan file must be before the reaper deletes
// it. The grace window prevents races with in-flight saves whose diagram
// row has not committed yet.
const OrphanGrace = 5 * time.Minute

// ReapInterval is the cadence of the background orphan sweep.
const ReapInterval = time.Hour

// startupReapDelay is the one-shot sweep shortly after startup, catching
// orphans left by a previous crash.
const startupReapDelay = 30 * time.Second

// CleanupOrphans deletes thumbnail files whose id is not in existingIDs and
// whose mtime is older than minAge. Returns the number of files deleted.
// existingIDs holds sanitized ids, matching what List returns.
func (s *Store) CleanupOrphans(existingIDs map[string]struct{}, minAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-minAge)
	deleted := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".png")
		if _, live := existingIDs[id]; live {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue // too fresh; may belong to an in-flight save
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			debug.Logf("thumbnail reaper: failed to remove %s: %v", e.Name(), err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// ExistingIDs is implemented by the storage layer to supply the live
// diagram id set for a sweep.
type ExistingIDs func(ctx context.Context) (map[string]struct{}, error)

// Reaper periodically collects orphan thumbnails.
type Reaper struct {
	store  *Store
	ids    ExistingIDs
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper creates a reaper over store, using ids to fetch the live
// diagram set. Call Start to begin sweeping.
func NewReaper(store *Store, ids ExistingIDs) *Reaper {
	return &Reaper{store: store, ids: ids}
}

// Start launches the background sweep: one shortly after startup, then one
// every ReapInterval. Stop terminates it.
func (r *Reaper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		startup := time.NewTimer(startupReapDelay)
		defer startup.Stop()
		select {
		case <-ctx.Done():
			return
		case <-startup.C:
			r.sweep(ctx)
		}

		ticker := time.NewTicker(ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

// Stop terminates the background sweep and waits for it to exit.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// Sweep runs one orphan collection pass immediately.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	existing, err := r.ids(ctx)
	if err != nil {
		return 0, err
	}
	return r.store.CleanupOrphans(existing, OrphanGrace)
}

func (r *Reaper) sweep(ctx context.Context) {
	deleted, err := r.Sweep(ctx)
	if err != nil {
		debug.Logf("thumbnail reaper: sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		debug.Infof("thumbnail reaper: removed %d orphan file(s)", deleted)
	}
}
