package record

import (
	"context"

	"github.com/OmerRastgar/studio-sub002/internal/config"
	"github.com/OmerRastgar/studio-sub002/internal/database"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// SQLiteSource reads the system-of-record SQLite database. Expected schema:
// frameworks, controls, tags, control_tags, projects, evidence,
// evidence_tags, users. The schema is owned by the upstream application;
// this reader never creates or alters it.
type SQLiteSource struct {
	db  *database.DB
	cfg config.RecordConfig
}

// NewSQLiteSource opens the system-of-record database at cfg.Path.
func NewSQLiteSource(cfg config.RecordConfig) (*SQLiteSource, error) {
	db, err := database.Open(cfg.Path)
	if err != nil {
		return nil, types.WrapError(types.RECORD_OPEN_FAILED, "failed to open system of record", err)
	}
	return &SQLiteSource{db: db, cfg: cfg}, nil
}

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Health reports the backing database's health.
func (s *SQLiteSource) Health(ctx context.Context) types.HealthStatus {
	return s.db.Health(ctx)
}

func (s *SQLiteSource) Frameworks(ctx context.Context) ([]Framework, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, '') FROM frameworks ORDER BY id`)
	if err != nil {
		return nil, queryErr("frameworks", err)
	}
	defer rows.Close()

	var out []Framework
	for rows.Next() {
		var f Framework
		if err := rows.Scan(&f.ID, &f.Name, &f.Description); err != nil {
			return nil, queryErr("frameworks", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) FrameworkIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM frameworks ORDER BY id`)
	if err != nil {
		return nil, queryErr("framework ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, queryErr("framework ids", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteSource) TagsPage(ctx context.Context, offset, limit int) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM tags ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, queryErr("tags", err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, queryErr("tags", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) ControlsPage(ctx context.Context, offset, limit int) ([]Control, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, framework_id, name, COALESCE(description, '')
		 FROM controls ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, queryErr("controls", err)
	}
	defer rows.Close()

	var out []Control
	var ids []string
	for rows.Next() {
		var c Control
		if err := rows.Scan(&c.ID, &c.FrameworkID, &c.Name, &c.Description); err != nil {
			return nil, queryErr("controls", err)
		}
		out = append(out, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("controls", err)
	}

	tagsByOwner, err := s.ownerTags(ctx,
		`SELECT ct.control_id, t.id, t.name
		 FROM control_tags ct JOIN tags t ON t.id = ct.tag_id
		 WHERE ct.control_id IN (`+placeholders(len(ids))+`)
		 ORDER BY ct.control_id, t.id`, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tags = tagsByOwner[out[i].ID]
	}
	return out, nil
}

func (s *SQLiteSource) ProjectsPage(ctx context.Context, offset, limit int) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(status, '')
		 FROM projects ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, queryErr("projects", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Status); err != nil {
			return nil, queryErr("projects", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) EvidencePage(ctx context.Context, offset, limit int) ([]Evidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, COALESCE(uploader_id, ''), name
		 FROM evidence ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, queryErr("evidence", err)
	}
	defer rows.Close()

	var out []Evidence
	var ids []string
	for rows.Next() {
		var e Evidence
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.UploaderID, &e.Name); err != nil {
			return nil, queryErr("evidence", err)
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("evidence", err)
	}

	tagsByOwner, err := s.ownerTags(ctx,
		`SELECT et.evidence_id, t.id, t.name
		 FROM evidence_tags et JOIN tags t ON t.id = et.tag_id
		 WHERE et.evidence_id IN (`+placeholders(len(ids))+`)
		 ORDER BY et.evidence_id, t.id`, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tags = tagsByOwner[out[i].ID]
	}
	return out, nil
}

func (s *SQLiteSource) UsersPage(ctx context.Context, offset, limit int) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(email, ''), COALESCE(role, '')
		 FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, queryErr("users", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, queryErr("users", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) EvidenceCountByUploader(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evidence WHERE uploader_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, queryErr("evidence count", err)
	}
	return count, nil
}

// ownerTags runs a three-column (owner id, tag id, tag name) query and
// groups the tags by owner. Fetching tags for the whole page in one query
// avoids an N+1 per row.
func (s *SQLiteSource) ownerTags(ctx context.Context, query string, ids []string) (map[string][]Tag, error) {
	out := make(map[string][]Tag, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryErr("tags lookup", err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner string
		var tag Tag
		if err := rows.Scan(&owner, &tag.ID, &tag.Name); err != nil {
			return nil, queryErr("tags lookup", err)
		}
		out[owner] = append(out[owner], tag)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	buf := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}
	return string(buf)
}

func queryErr(what string, err error) error {
	return types.WrapRetryableError(types.RECORD_QUERY_FAILED, "failed to read "+what, err)
}

var _ Source = (*SQLiteSource)(nil)
