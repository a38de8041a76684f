package plan

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/text/language"
)

// FileName is the plan copy persisted into each run directory. Revisions
// read it back to map slides to frames by title.
const FileName = "plan.json"

// Load reads and validates a plan JSON file. Validation happens once here;
// downstream code can rely on the invariants without re-checking.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data)
}

// Save writes the plan as indented JSON.
func (p *Plan) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}
	return nil
}

// Parse decodes and validates plan JSON.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) normalize() error {
	if p.Language == "" {
		p.Language = "en"
	}
	tag, err := language.Parse(p.Language)
	if err != nil {
		return fmt.Errorf("invalid plan language %q: %w", p.Language, err)
	}
	base, _ := tag.Base()
	p.Language = base.String()

	for i := range p.Slides {
		s := &p.Slides[i]
		for j, bullet := range s.Content {
			s.Content[j] = NormalizeBullet(bullet)
		}
		if s.FigureReference != nil && s.FigureReference.CaptionLength == "" {
			s.FigureReference.CaptionLength = bucketCaption(s.FigureReference.Description)
		}
	}
	return nil
}

func (p *Plan) validate() error {
	if p.PaperInfo.Title == "" {
		return fmt.Errorf("plan missing paper title")
	}
	if len(p.Slides) == 0 {
		return fmt.Errorf("plan has no slides")
	}
	seen := make(map[int]bool, len(p.Slides))
	for i, s := range p.Slides {
		if s.SlideNumber < 1 {
			return fmt.Errorf("slide %d: slide_number must be >= 1, got %d", i, s.SlideNumber)
		}
		if seen[s.SlideNumber] {
			return fmt.Errorf("duplicate slide_number %d", s.SlideNumber)
		}
		seen[s.SlideNumber] = true
		if s.Title == "" {
			return fmt.Errorf("slide %d has no title", s.SlideNumber)
		}
		if s.IncludesFigure && (s.FigureReference == nil || s.FigureReference.Path == "") {
			return fmt.Errorf("slide %d declares a figure but carries no reference path", s.SlideNumber)
		}
	}
	return nil
}

// IsCJK reports whether the plan language needs a CJK-capable engine.
func (p *Plan) IsCJK() bool { return IsCJKLanguage(p.Language) }

// IsCJKLanguage reports whether a normalized language code needs a
// CJK-capable engine.
func IsCJKLanguage(lang string) bool {
	switch lang {
	case "zh", "ja", "ko":
		return true
	}
	return false
}
