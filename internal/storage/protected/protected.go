// Package protected wraps a storage.Storage with a circuit breaker and
// OpenTelemetry metrics.
//
// The breaker guards against a wedged database (lock pile-ups, disk faults):
// once consecutive failures cross the threshold it opens and calls fail fast
// with CircuitOpenError until the cool-down elapses, after which a probe call
// decides whether to close again. Every call records a duration histogram
// tagged with the operation and a success/failure counter.
package protected

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/draftboard/draftboard/internal/debug"
	"github.com/draftboard/draftboard/internal/quota"
	"github.com/draftboard/draftboard/internal/spec"
	"github.com/draftboard/draftboard/internal/storage"
	"github.com/draftboard/draftboard/internal/telemetry"
)

const scopeName = "github.com/draftboard/draftboard/storage"

// Breaker tuning. Sized for transient database contention: a handful of
// consecutive failures trips it, and the cool-down is short enough that a
// recovered database is picked up within seconds.
const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 10 * time.Second
	defaultHalfOpenMax      = 2
)

// CircuitOpenError is returned while the breaker is open. RetryAfter tells
// the caller when a probe will next be allowed through.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("storage circuit open, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// Options tunes the breaker. Zero values take the defaults above.
type Options struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenMax      uint32
}

// Store decorates an inner storage.Storage with a shared circuit breaker
// and per-operation metrics. It satisfies storage.Storage itself.
type Store struct {
	inner       storage.Storage
	cb          *gobreaker.CircuitBreaker
	openTimeout time.Duration
	dur         metric.Float64Histogram
	calls       metric.Int64Counter
}

var _ storage.Storage = (*Store)(nil)

// Wrap returns s guarded by a circuit breaker. The metrics instruments come
// from the global meter provider; when telemetry is disabled they are no-ops.
func Wrap(s storage.Storage, opts Options) *Store {
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}
	if opts.HalfOpenMax == 0 {
		opts.HalfOpenMax = defaultHalfOpenMax
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "storage",
		MaxRequests: opts.HalfOpenMax,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		IsSuccessful: isHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			debug.Infof("storage circuit breaker: %s -> %s", from, to)
		},
	})

	m := telemetry.Meter(scopeName)
	dur, _ := m.Float64Histogram("draftd.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	calls, _ := m.Int64Counter("draftd.storage.operations",
		metric.WithDescription("Storage operations by outcome"),
	)

	return &Store{
		inner:       s,
		cb:          cb,
		openTimeout: opts.OpenTimeout,
		dur:         dur,
		calls:       calls,
	}
}

// isHealthy classifies an error for the breaker. Business outcomes say
// nothing about database health and must not trip the circuit.
func isHealthy(err error) bool {
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return true
	}
	var quotaErr *quota.ExceededError
	var validationErr *spec.ValidationError
	var retryErr *storage.RetryExhaustedError
	if errors.As(err, &quotaErr) || errors.As(err, &validationErr) || errors.As(err, &retryErr) {
		return true
	}
	return false
}

// State exposes the breaker state, for health endpoints and tests.
func (p *Store) State() gobreaker.State {
	return p.cb.State()
}

// exec runs fn through the breaker and records metrics for op against table.
func (p *Store) exec(ctx context.Context, op, table string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()
	v, err := p.cb.Execute(fn)

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("table", table),
		attribute.Bool("success", err == nil),
	)
	p.dur.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs)
	p.calls.Add(ctx, 1, attrs)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &CircuitOpenError{RetryAfter: p.openTimeout}
	}
	return v, err
}

// ── Diagram CRUD ────────────────────────────────────────────────────────────

func (p *Store) Create(ctx context.Context, name, project string, s *spec.DiagramSpec, opts storage.CreateOptions) (*storage.Diagram, error) {
	v, err := p.exec(ctx, "Create", "diagrams", func() (interface{}, error) {
		return p.inner.Create(ctx, name, project, s, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Diagram), nil
}

func (p *Store) Get(ctx context.Context, id string) (*storage.Diagram, error) {
	v, err := p.exec(ctx, "Get", "diagrams", func() (interface{}, error) {
		return p.inner.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Diagram), nil
}

func (p *Store) Update(ctx context.Context, id string, s *spec.DiagramSpec, message string, baseVersion *int64) (*storage.UpdateResult, error) {
	v, err := p.exec(ctx, "Update", "diagrams", func() (interface{}, error) {
		return p.inner.Update(ctx, id, s, message, baseVersion)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.UpdateResult), nil
}

func (p *Store) ForceUpdate(ctx context.Context, id string, s *spec.DiagramSpec, message string) (*storage.Diagram, error) {
	v, err := p.exec(ctx, "ForceUpdate", "diagrams", func() (interface{}, error) {
		return p.inner.ForceUpdate(ctx, id, s, message)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Diagram), nil
}

func (p *Store) Transform(ctx context.Context, id string, fn storage.TransformFunc, message string, maxRetries int) (*storage.Diagram, error) {
	v, err := p.exec(ctx, "Transform", "diagrams", func() (interface{}, error) {
		return p.inner.Transform(ctx, id, fn, message, maxRetries)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Diagram), nil
}

func (p *Store) Delete(ctx context.Context, id string) (bool, error) {
	v, err := p.exec(ctx, "Delete", "diagrams", func() (interface{}, error) {
		return p.inner.Delete(ctx, id)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Store) Fork(ctx context.Context, id, newName, project string) (*storage.Diagram, error) {
	v, err := p.exec(ctx, "Fork", "diagrams", func() (interface{}, error) {
		return p.inner.Fork(ctx, id, newName, project)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Diagram), nil
}

// ── Listings ────────────────────────────────────────────────────────────────

func (p *Store) List(ctx context.Context, project string) ([]*storage.Diagram, error) {
	v, err := p.exec(ctx, "List", "diagrams", func() (interface{}, error) {
		return p.inner.List(ctx, project)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*storage.Diagram), nil
}

func (p *Store) ListPaginated(ctx context.Context, opts storage.ListOptions) (*storage.Page, error) {
	v, err := p.exec(ctx, "ListPaginated", "diagrams", func() (interface{}, error) {
		return p.inner.ListPaginated(ctx, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Page), nil
}

func (p *Store) ListForUser(ctx context.Context, userID string, opts storage.UserListOptions) (*storage.Page, error) {
	v, err := p.exec(ctx, "ListForUser", "diagrams", func() (interface{}, error) {
		return p.inner.ListForUser(ctx, userID, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Page), nil
}

// ── Version history ─────────────────────────────────────────────────────────

func (p *Store) CreateVersion(ctx context.Context, diagramID string, s *spec.DiagramSpec, message string) (*storage.DiagramVersion, error) {
	v, err := p.exec(ctx, "CreateVersion", "diagram_versions", func() (interface{}, error) {
		return p.inner.CreateVersion(ctx, diagramID, s, message)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.DiagramVersion), nil
}

func (p *Store) GetVersions(ctx context.Context, diagramID string) ([]*storage.DiagramVersion, error) {
	v, err := p.exec(ctx, "GetVersions", "diagram_versions", func() (interface{}, error) {
		return p.inner.GetVersions(ctx, diagramID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*storage.DiagramVersion), nil
}

func (p *Store) GetVersionsPaginated(ctx context.Context, diagramID string, limit, offset int) ([]*storage.DiagramVersion, int, error) {
	type page struct {
		versions []*storage.DiagramVersion
		total    int
	}
	v, err := p.exec(ctx, "GetVersionsPaginated", "diagram_versions", func() (interface{}, error) {
		versions, total, err := p.inner.GetVersionsPaginated(ctx, diagramID, limit, offset)
		if err != nil {
			return nil, err
		}
		return page{versions, total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	pg := v.(page)
	return pg.versions, pg.total, nil
}

func (p *Store) GetVersionsMetadata(ctx context.Context, diagramID string) ([]*storage.VersionMeta, error) {
	v, err := p.exec(ctx, "GetVersionsMetadata", "diagram_versions", func() (interface{}, error) {
		return p.inner.GetVersionsMetadata(ctx, diagramID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*storage.VersionMeta), nil
}

func (p *Store) GetVersion(ctx context.Context, diagramID string, version int64) (*storage.DiagramVersion, error) {
	v, err := p.exec(ctx, "GetVersion", "diagram_versions", func() (interface{}, error) {
		return p.inner.GetVersion(ctx, diagramID, version)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.DiagramVersion), nil
}

func (p *Store) GetLatestVersion(ctx context.Context, diagramID string) (*storage.DiagramVersion, error) {
	v, err := p.exec(ctx, "GetLatestVersion", "diagram_versions", func() (interface{}, error) {
		return p.inner.GetLatestVersion(ctx, diagramID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.DiagramVersion), nil
}

func (p *Store) RestoreVersion(ctx context.Context, diagramID string, version int64) (*storage.Diagram, error) {
	v, err := p.exec(ctx, "RestoreVersion", "diagram_versions", func() (interface{}, error) {
		return p.inner.RestoreVersion(ctx, diagramID, version)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Diagram), nil
}

// ── Sharing and ownership ───────────────────────────────────────────────────

func (p *Store) UpdateOwner(ctx context.Context, id, ownerID string) (bool, error) {
	v, err := p.exec(ctx, "UpdateOwner", "diagrams", func() (interface{}, error) {
		return p.inner.UpdateOwner(ctx, id, ownerID)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Store) SetPublic(ctx context.Context, id string, public bool) (bool, error) {
	v, err := p.exec(ctx, "SetPublic", "diagrams", func() (interface{}, error) {
		return p.inner.SetPublic(ctx, id, public)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Store) UpdateShares(ctx context.Context, id string, shares []storage.Share) (bool, error) {
	v, err := p.exec(ctx, "UpdateShares", "diagrams", func() (interface{}, error) {
		return p.inner.UpdateShares(ctx, id, shares)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Store) AddShare(ctx context.Context, id, userID string, permission storage.SharePermission) (bool, error) {
	v, err := p.exec(ctx, "AddShare", "diagrams", func() (interface{}, error) {
		return p.inner.AddShare(ctx, id, userID, permission)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Store) RemoveShare(ctx context.Context, id, userID string) (bool, error) {
	v, err := p.exec(ctx, "RemoveShare", "diagrams", func() (interface{}, error) {
		return p.inner.RemoveShare(ctx, id, userID)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ── Statistics and lifecycle ────────────────────────────────────────────────

func (p *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	v, err := p.exec(ctx, "Stats", "diagrams", func() (interface{}, error) {
		return p.inner.Stats(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Stats), nil
}

// Close bypasses the breaker: shutdown must work even when the circuit is
// open.
func (p *Store) Close() error {
	return p.inner.Close()
}
