package record

import (
	"context"
	"sort"
)

// Fixture is an in-memory Source for tests and seeding. Populate the
// exported slices directly; page methods sort by id like the SQLite source.
type Fixture struct {
	FrameworkRows []Framework
	TagRows       []Tag
	ControlRows   []Control
	ProjectRows   []Project
	EvidenceRows  []Evidence
	UserRows      []User
}

func (f *Fixture) Frameworks(ctx context.Context) ([]Framework, error) {
	out := append([]Framework(nil), f.FrameworkRows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fixture) FrameworkIDs(ctx context.Context) ([]string, error) {
	frameworks, _ := f.Frameworks(ctx)
	ids := make([]string, 0, len(frameworks))
	for _, fw := range frameworks {
		ids = append(ids, fw.ID)
	}
	return ids, nil
}

func (f *Fixture) TagsPage(ctx context.Context, offset, limit int) ([]Tag, error) {
	out := append([]Tag(nil), f.TagRows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func (f *Fixture) ControlsPage(ctx context.Context, offset, limit int) ([]Control, error) {
	out := append([]Control(nil), f.ControlRows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func (f *Fixture) ProjectsPage(ctx context.Context, offset, limit int) ([]Project, error) {
	out := append([]Project(nil), f.ProjectRows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func (f *Fixture) EvidencePage(ctx context.Context, offset, limit int) ([]Evidence, error) {
	out := append([]Evidence(nil), f.EvidenceRows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func (f *Fixture) UsersPage(ctx context.Context, offset, limit int) ([]User, error) {
	out := append([]User(nil), f.UserRows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func (f *Fixture) EvidenceCountByUploader(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, e := range f.EvidenceRows {
		if e.UploaderID == userID {
			count++
		}
	}
	return count, nil
}

func (f *Fixture) Close() error { return nil }

func page[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

var _ Source = (*Fixture)(nil)
