// Package record reads the system of record that the graph projection is
// derived from. It is strictly read-only: the projection never writes back.
package record

import "context"

// Framework is a compliance standard as stored in the system of record.
type Framework struct {
	ID          string
	Name        string
	Description string
}

// Control is one requirement inside a framework. Tags carries the tags
// attached to the control.
type Control struct {
	ID          string
	FrameworkID string
	Name        string
	Description string
	Tags        []Tag
}

// Tag is a shared label applied to controls and evidence.
type Tag struct {
	ID   string
	Name string
}

// Project is an audit engagement.
type Project struct {
	ID     string
	Name   string
	Status string
}

// Evidence is an uploaded artifact. Tags carries its directly attached tags.
type Evidence struct {
	ID         string
	ProjectID  string
	UploaderID string
	Name       string
	Tags       []Tag
}

// User is an account in the system of record.
type User struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// Source is the paginated read interface over the system of record.
// Page methods return at most limit rows starting at offset, ordered by
// id so pagination is stable; an empty slice signals the end.
type Source interface {
	Frameworks(ctx context.Context) ([]Framework, error)

	// FrameworkIDs returns all framework ids, used by prune to compute
	// the stale set without paging full rows.
	FrameworkIDs(ctx context.Context) ([]string, error)

	TagsPage(ctx context.Context, offset, limit int) ([]Tag, error)
	ControlsPage(ctx context.Context, offset, limit int) ([]Control, error)
	ProjectsPage(ctx context.Context, offset, limit int) ([]Project, error)
	EvidencePage(ctx context.Context, offset, limit int) ([]Evidence, error)
	UsersPage(ctx context.Context, offset, limit int) ([]User, error)

	// EvidenceCountByUploader counts evidence rows uploaded by the user,
	// used by drift detection.
	EvidenceCountByUploader(ctx context.Context, userID string) (int, error)

	Close() error
}
