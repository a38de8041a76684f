// Package pagemap tracks where each planned slide lands in the rendered PDF.
//
// Rendered decks open with a title page and a table of contents, so content
// slide n appears at page n+2. The map is persisted next to the deck and
// consulted when a revision names a page; the positional rule is the fallback
// for decks built before the map existed.
package pagemap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the map's name inside a run directory.
const FileName = "pagemap.json"

// FrontMatterPages counts the rendered pages before the first content slide.
const FrontMatterPages = 2

// Map is slide number to rendered page.
type Map map[int]int

// Build derives the map for a deck with slideCount content slides. It
// assumes each frame renders as exactly one page behind the front matter;
// the layout is not checked against the produced PDF, so frames that
// overflow onto extra pages shift everything after them.
func Build(slideCount int) Map {
	m := make(Map, slideCount)
	for n := 1; n <= slideCount; n++ {
		m[n] = n + FrontMatterPages
	}
	return m
}

// SlideForPage returns the slide rendered at page. With an empty map the
// positional rule applies. Pages inside the front matter map to no slide.
func (m Map) SlideForPage(page int) (int, bool) {
	if page <= FrontMatterPages {
		return 0, false
	}
	if len(m) == 0 {
		return page - FrontMatterPages, true
	}
	for slide, p := range m {
		if p == page {
			return slide, true
		}
	}
	return 0, false
}

// Save writes the map as JSON into dir.
func (m Map) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode page map: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads the map from dir. A missing file returns an empty map so the
// positional fallback applies.
func Load(dir string) (Map, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Map{}, nil
		}
		return nil, fmt.Errorf("read page map: %w", err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode page map: %w", err)
	}
	return m, nil
}
