// Package texsrc provides shared helpers for handling model-produced LaTeX
// source: unwrapping code fences, checking document structure and locating
// frame blocks.
package texsrc

import (
	"fmt"
	"regexp"
	"strings"
)

// Structural markers every compilable document must carry.
const (
	markerDocClass = `\documentclass`
	markerBegin    = `\begin{document}`
	markerEnd      = `\end{document}`
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:latex|tex)?\\s*(.*?)```")
	fenceOpenRe   = regexp.MustCompile("^```(?:latex|tex)?\\n")
	fenceCloseRe  = regexp.MustCompile("\n```\\s*$")
	frameRe       = regexp.MustCompile(`(?s)\\begin\{frame\}.*?\\end\{frame\}`)
)

// Clean strips code-fence wrapping from raw model output. When the output
// contains fenced blocks, the longest block wins (models sometimes precede the
// document with short illustrative snippets). Otherwise stray opening/closing
// fences are trimmed.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "```") {
		return s
	}
	matches := fencedBlockRe.FindAllStringSubmatch(s, -1)
	if len(matches) > 0 {
		longest := ""
		for _, m := range matches {
			if len(m[1]) > len(longest) {
				longest = m[1]
			}
		}
		return strings.TrimSpace(longest)
	}
	s = fenceOpenRe.ReplaceAllString(s, "")
	s = fenceCloseRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Validate checks that source looks like a complete document: non-empty, with
// a document class and begin/end markers.
func Validate(src string) error {
	if strings.TrimSpace(src) == "" {
		return fmt.Errorf("source is empty")
	}
	for _, marker := range []string{markerDocClass, markerBegin, markerEnd} {
		if !strings.Contains(src, marker) {
			return fmt.Errorf("source missing %s", marker)
		}
	}
	return nil
}

// Frames returns every \begin{frame}...\end{frame} block in order.
func Frames(src string) []string {
	return frameRe.FindAllString(src, -1)
}

// FrameForTitle returns the first frame block whose \frametitle matches the
// given title exactly.
func FrameForTitle(src, title string) (string, bool) {
	needle := fmt.Sprintf(`\frametitle{%s}`, title)
	for _, frame := range Frames(src) {
		if strings.Contains(frame, needle) {
			return frame, true
		}
	}
	return "", false
}

// ReplaceBlock substitutes oldBlock with newBlock by exact match. Returns
// false when the old block is not present verbatim.
func ReplaceBlock(src, oldBlock, newBlock string) (string, bool) {
	if oldBlock == "" || !strings.Contains(src, oldBlock) {
		return src, false
	}
	return strings.Replace(src, oldBlock, newBlock, 1), true
}
