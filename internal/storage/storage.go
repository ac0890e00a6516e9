// Package storage provides shared types for diagram storage.
//
// The concrete engine lives in the sqlite sub-package. This package holds
// the interface and value types referenced by both the engine and its
// consumers (cmd/draftd, the collaboration hub, the protected wrapper), so
// alternative implementations (mocks, proxies) can be substituted.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/draftboard/draftboard/internal/spec"
)

// ErrNotFound is returned when a requested entity does not exist. Most read
// paths return a nil value instead; the sentinel is used where an error is
// the only channel (version reads inside transactions).
var ErrNotFound = errors.New("not found")

// ErrClosed is returned when an operation is attempted on a closed store.
var ErrClosed = errors.New("storage is closed")

// SharePermission is the grant level of a share entry.
type SharePermission string

const (
	ShareEditor SharePermission = "editor"
	ShareViewer SharePermission = "viewer"
)

// IsValid reports whether p is a known permission.
func (p SharePermission) IsValid() bool {
	return p == ShareEditor || p == ShareViewer
}

// userIDRe is the strict charset for share user ids. GLOB metacharacters
// (*, ?, [) are outside this set, which is what makes the JSON-substring
// membership test in ListForUser injection-safe.
var userIDRe = regexp.MustCompile(`^[A-Za-z0-9_@.-]{1,255}$`)

// ValidUserID reports whether id is an acceptable share user id.
func ValidUserID(id string) bool {
	return userIDRe.MatchString(id)
}

// Share grants a user access to a diagram.
type Share struct {
	UserID     string          `json:"userId"`
	Permission SharePermission `json:"permission"`
}

// Diagram is the canonical stored document.
type Diagram struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Project      string            `json:"project,omitempty"`
	Spec         *spec.DiagramSpec `json:"spec"`
	ThumbnailURL string            `json:"thumbnailUrl,omitempty"`
	Version      int64             `json:"version"`
	OwnerID      string            `json:"ownerId,omitempty"`
	IsPublic     bool              `json:"isPublic"`
	Shares       []Share           `json:"shares,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// DiagramVersion is one immutable history entry.
type DiagramVersion struct {
	ID        string            `json:"id"`
	DiagramID string            `json:"diagramId"`
	Version   int64             `json:"version"`
	Spec      *spec.DiagramSpec `json:"spec"`
	Message   string            `json:"message,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// VersionMeta is a history entry without its spec payload, for listings.
type VersionMeta struct {
	ID        string    `json:"id"`
	DiagramID string    `json:"diagramId"`
	Version   int64     `json:"version"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateOptions carries optional fields for Create.
type CreateOptions struct {
	OwnerID  string
	IsPublic bool
}

// SortBy names a sortable diagram column.
type SortBy string

const (
	SortByUpdatedAt SortBy = "updatedAt"
	SortByCreatedAt SortBy = "createdAt"
	SortByName      SortBy = "name"
)

// SortOrder is the direction of a sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListOptions filters and paginates ListPaginated.
type ListOptions struct {
	Project       string
	Limit         int // default 20
	Offset        int
	SortBy        SortBy    // default updatedAt
	SortOrder     SortOrder // default desc
	Search        string
	Types         []spec.DiagramType
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
}

// UserListOptions paginates ListForUser.
type UserListOptions struct {
	Project string
	Limit   int // default 50
	Offset  int
}

// Page is one page of diagrams plus the total count for the predicate.
type Page struct {
	Diagrams []*Diagram `json:"data"`
	Total    int        `json:"total"`
}

// UpdateResult is the outcome of an optimistic Update. Either Diagram is set
// (success) or Conflict is set with CurrentVersion carrying the winner. A
// nil result from the engine means the diagram does not exist.
type UpdateResult struct {
	Diagram        *Diagram `json:"diagram,omitempty"`
	Conflict       bool     `json:"conflict,omitempty"`
	CurrentVersion int64    `json:"currentVersion,omitempty"`
}

// TransformFunc mutates a spec in a read-modify-write cycle. It receives the
// current spec and returns the replacement.
type TransformFunc func(s *spec.DiagramSpec) (*spec.DiagramSpec, error)

// RetryExhaustedError is returned by Transform when every optimistic attempt
// lost the version race.
type RetryExhaustedError struct {
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts", e.Attempts)
}

// Stats summarizes the store.
type Stats struct {
	DiagramCount int `json:"diagramCount"`
	VersionCount int `json:"versionCount"`
	ProjectCount int `json:"projectCount"`
}

// Storage is the contract satisfied by the sqlite engine and its protected
// wrapper. Read paths return nil values (not errors) for missing entities.
type Storage interface {
	// Diagram CRUD
	Create(ctx context.Context, name, project string, s *spec.DiagramSpec, opts CreateOptions) (*Diagram, error)
	Get(ctx context.Context, id string) (*Diagram, error)
	Update(ctx context.Context, id string, s *spec.DiagramSpec, message string, baseVersion *int64) (*UpdateResult, error)
	ForceUpdate(ctx context.Context, id string, s *spec.DiagramSpec, message string) (*Diagram, error)
	Transform(ctx context.Context, id string, fn TransformFunc, message string, maxRetries int) (*Diagram, error)
	Delete(ctx context.Context, id string) (bool, error)
	Fork(ctx context.Context, id, newName, project string) (*Diagram, error)

	// Listings
	List(ctx context.Context, project string) ([]*Diagram, error)
	ListPaginated(ctx context.Context, opts ListOptions) (*Page, error)
	ListForUser(ctx context.Context, userID string, opts UserListOptions) (*Page, error)

	// Version history
	CreateVersion(ctx context.Context, diagramID string, s *spec.DiagramSpec, message string) (*DiagramVersion, error)
	GetVersions(ctx context.Context, diagramID string) ([]*DiagramVersion, error)
	GetVersionsPaginated(ctx context.Context, diagramID string, limit, offset int) ([]*DiagramVersion, int, error)
	GetVersionsMetadata(ctx context.Context, diagramID string) ([]*VersionMeta, error)
	GetVersion(ctx context.Context, diagramID string, version int64) (*DiagramVersion, error)
	GetLatestVersion(ctx context.Context, diagramID string) (*DiagramVersion, error)
	RestoreVersion(ctx context.Context, diagramID string, version int64) (*Diagram, error)

	// Sharing and ownership
	UpdateOwner(ctx context.Context, id, ownerID string) (bool, error)
	SetPublic(ctx context.Context, id string, public bool) (bool, error)
	UpdateShares(ctx context.Context, id string, shares []Share) (bool, error)
	AddShare(ctx context.Context, id, userID string, permission SharePermission) (bool, error)
	RemoveShare(ctx context.Context, id, userID string) (bool, error)

	// Statistics
	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Close() error
}
