// Package crosswalk derives compliance coverage across standards from the
// shared tag vocabulary: evidence tags bridge to control tags, so a
// project's evidence implies coverage of standards it was never formally
// assessed against.
package crosswalk

import (
	"context"
	"sort"
	"strings"

	"github.com/OmerRastgar/studio-sub002/internal/store"
)

// Coverage reports one standard's inferred coverage for a project.
type Coverage struct {
	StandardID      string   `json:"standardId"`
	StandardName    string   `json:"standardName"`
	MatchedControls int      `json:"matchedControls"`
	TotalControls   int      `json:"totalControls"`
	Percentage      float64  `json:"percentage"`
	SharedTags      []string `json:"sharedTags"`

	// NotApplicable marks a standard with zero controls: coverage is
	// reported as 0 rather than dividing by zero.
	NotApplicable bool `json:"notApplicable"`
}

// Report is the crosswalk output for one project.
type Report struct {
	ProjectID string     `json:"projectId"`
	Standards []Coverage `json:"standards"`

	// NoTagEvidence lists evidence ids that contribute no tags; they can
	// never count toward any standard's coverage.
	NoTagEvidence []string `json:"noTagEvidence,omitempty"`

	// NoTags is set when the project's whole evidence set yields an empty
	// tag vocabulary, so every standard necessarily reports 0.
	NoTags bool `json:"noTags,omitempty"`
}

// Engine computes crosswalk reports from the graph projection.
type Engine struct {
	reader store.Reader
}

// New creates an engine over the projection reader.
func New(reader store.Reader) *Engine {
	return &Engine{reader: reader}
}

// Compute builds the coverage report for the project: collect the
// project's effective evidence tags, then for each standard count the
// controls sharing at least one of those tags.
func (e *Engine) Compute(ctx context.Context, projectID string) (*Report, error) {
	evidence, err := e.reader.ProjectEvidence(ctx, projectID)
	if err != nil {
		return nil, err
	}

	projectTags := make(map[string]struct{})
	var noTagEvidence []string
	for _, ev := range evidence {
		effective := 0
		for _, tag := range ev.Tags {
			if norm := normalize(tag); norm != "" {
				projectTags[norm] = struct{}{}
				effective++
			}
		}
		if effective == 0 {
			noTagEvidence = append(noTagEvidence, ev.ID)
		}
	}
	sort.Strings(noTagEvidence)

	standards, err := e.reader.Standards(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ProjectID:     projectID,
		NoTagEvidence: noTagEvidence,
		NoTags:        len(projectTags) == 0,
	}

	for _, std := range standards {
		controls, err := e.reader.ControlsOfStandard(ctx, std.ID)
		if err != nil {
			return nil, err
		}

		cov := Coverage{
			StandardID:    std.ID,
			StandardName:  std.Name,
			TotalControls: len(controls),
			SharedTags:    []string{},
		}
		if len(controls) == 0 {
			cov.NotApplicable = true
			report.Standards = append(report.Standards, cov)
			continue
		}

		shared := make(map[string]struct{})
		for _, control := range controls {
			matched := false
			for _, tag := range control.Tags {
				norm := normalize(tag)
				if _, ok := projectTags[norm]; ok {
					shared[norm] = struct{}{}
					matched = true
				}
			}
			if matched {
				cov.MatchedControls++
			}
		}

		cov.Percentage = 100 * float64(cov.MatchedControls) / float64(cov.TotalControls)
		for tag := range shared {
			cov.SharedTags = append(cov.SharedTags, tag)
		}
		sort.Strings(cov.SharedTags)
		report.Standards = append(report.Standards, cov)
	}

	sort.Slice(report.Standards, func(i, j int) bool {
		return report.Standards[i].StandardID < report.Standards[j].StandardID
	})
	return report, nil
}

// normalize makes tag comparison case-insensitive and whitespace-trimmed.
func normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
