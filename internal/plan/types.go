// Package plan defines the presentation plan consumed by the deck pipeline.
//
// A plan is produced upstream (paper parsing and content planning) and is
// read-only here: every transformation returns a new value.
package plan

import "strings"

// PaperInfo describes the source paper.
type PaperInfo struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract,omitempty"`
}

// CaptionLength buckets a figure description for prompting.
type CaptionLength string

const (
	CaptionShort  CaptionLength = "short"
	CaptionMedium CaptionLength = "medium"
	CaptionLong   CaptionLength = "long"
)

// FigureReference points at a figure asset mentioned by a slide. Path is the
// upstream-reported location and may be stale or relative; ResolvedPath is
// filled by the asset resolver and always names an existing file afterwards.
type FigureReference struct {
	ID            string        `json:"id,omitempty"`
	Path          string        `json:"path"`
	Description   string        `json:"description,omitempty"`
	CaptionLength CaptionLength `json:"caption_length,omitempty"`
	ResolvedPath  string        `json:"resolved_path,omitempty"`
}

// SlideSpec describes one content slide.
type SlideSpec struct {
	SlideNumber     int              `json:"slide_number"`
	Title           string           `json:"title"`
	Content         []string         `json:"content"`
	IncludesFigure  bool             `json:"includes_figure"`
	FigureReference *FigureReference `json:"figure_reference,omitempty"`
}

// Plan is the full presentation plan.
type Plan struct {
	PaperInfo PaperInfo   `json:"paper_info"`
	Slides    []SlideSpec `json:"slides_plan"`
	Language  string      `json:"language,omitempty"`
	SourceDoc string      `json:"source_document,omitempty"`
}

// Clone returns a deep copy; resolvers and preprocessors mutate copies only.
func (p *Plan) Clone() *Plan {
	out := *p
	out.PaperInfo.Authors = append([]string(nil), p.PaperInfo.Authors...)
	out.Slides = make([]SlideSpec, len(p.Slides))
	for i, s := range p.Slides {
		cs := s
		cs.Content = append([]string(nil), s.Content...)
		if s.FigureReference != nil {
			ref := *s.FigureReference
			cs.FigureReference = &ref
		}
		out.Slides[i] = cs
	}
	return &out
}

// SlideByNumber returns the slide with the given 1-based number, or nil.
func (p *Plan) SlideByNumber(n int) *SlideSpec {
	for i := range p.Slides {
		if p.Slides[i].SlideNumber == n {
			return &p.Slides[i]
		}
	}
	return nil
}

// FigureSlides returns the slides carrying a figure reference.
func (p *Plan) FigureSlides() []SlideSpec {
	var out []SlideSpec
	for _, s := range p.Slides {
		if s.IncludesFigure && s.FigureReference != nil {
			out = append(out, s)
		}
	}
	return out
}

// bucketCaption assigns a caption length from the description size.
func bucketCaption(description string) CaptionLength {
	switch n := len(strings.TrimSpace(description)); {
	case n < 50:
		return CaptionShort
	case n < 100:
		return CaptionMedium
	default:
		return CaptionLong
	}
}
