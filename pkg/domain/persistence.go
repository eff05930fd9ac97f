package domain

import "context"

// Store is the persistence collaborator. Implementations assign persisted
// identifiers on Create and ignore the identifier carried by the entity.
//
// Update receives the full last-known record; it is both the identity and the
// patch. Delete of a missing record succeeds so best-effort deletes stay
// idempotent. Deleting a parent removes its children.
type Store interface {
	Create(ctx context.Context, entity Entity) (ID, error)
	Update(ctx context.Context, entity Entity) error
	Delete(ctx context.Context, kind EntityType, id ID) error
	// List returns the children of parentID: tracks of a project, sections of
	// a track or steps of a section.
	List(ctx context.Context, kind EntityType, parentID ID) ([]Entity, error)
}

// FileReference is the resolved, display-ready view of an opaque file id.
type FileReference struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size_bytes"`
}

// FileResolver resolves sample file identifiers. The core never inspects file bytes.
type FileResolver interface {
	Resolve(ctx context.Context, fileID ID) (FileReference, error)
}
