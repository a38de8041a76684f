// Package classify maps raw LaTeX compiler logs to structured error kinds.
//
// Classification drives repair prompting: each kind carries a hint the
// repair agent folds into its instructions. The pattern table is ordered;
// the first matching signature wins.
package classify

import (
	"regexp"
	"strings"
)

// ErrorKind enumerates structured compile error categories.
type ErrorKind string

const (
	KindUndefinedCommand ErrorKind = "undefined_command"
	KindMissingPackage   ErrorKind = "missing_package"
	KindMissingFile      ErrorKind = "missing_file"
	KindLatexError       ErrorKind = "latex_error"
	KindTimeout          ErrorKind = "timeout"
	KindUnclassified     ErrorKind = "unclassified"
)

// Classification is the structured result for one failed compile.
type Classification struct {
	Kind    ErrorKind
	Detail  string // matched log line
	Excerpt string // surrounding log context for repair prompts
	Hint    string // repair guidance for this kind
}

// signature ties a log pattern to a kind. Order matters: more specific
// signatures precede the generic LaTeX error catch-all.
type signature struct {
	kind    ErrorKind
	pattern *regexp.Regexp
	hint    string
}

var signatures = []signature{
	{
		kind:    KindUndefinedCommand,
		pattern: regexp.MustCompile(`! Undefined control sequence`),
		hint:    "A command is undefined. Add the package that provides it or replace it with a standard command.",
	},
	{
		kind:    KindMissingPackage,
		pattern: regexp.MustCompile(`! LaTeX Error: File \x60?([^']+)\.sty'? not found|! Package (\S+) Error`),
		hint:    "A package is missing or misused. Remove the \\usepackage line or fix the package options.",
	},
	{
		kind:    KindMissingFile,
		pattern: regexp.MustCompile(`! I can't find file|! LaTeX Error: File \x60?([^']+)'? not found`),
		hint:    "A referenced file does not exist. Correct the path or drop the reference.",
	},
	{
		kind:    KindLatexError,
		pattern: regexp.MustCompile(`! LaTeX Error:`),
		hint:    "Fix the reported LaTeX error without changing slide content.",
	},
}

const excerptLines = 12

// Classify inspects a compile log and returns the first matching category.
// A nil match yields KindUnclassified with the log tail as excerpt.
func Classify(log string) Classification {
	lines := strings.Split(log, "\n")
	for _, sig := range signatures {
		for i, line := range lines {
			if sig.pattern.MatchString(line) {
				return Classification{
					Kind:    sig.kind,
					Detail:  strings.TrimSpace(line),
					Excerpt: excerptAround(lines, i),
					Hint:    sig.hint,
				}
			}
		}
	}
	return Classification{
		Kind:    KindUnclassified,
		Excerpt: logTail(lines),
		Hint:    "Inspect the log excerpt and fix whatever stops compilation.",
	}
}

// Timeout builds the classification for a compile that exceeded its deadline.
// Timeouts carry no log signature worth matching.
func Timeout() Classification {
	return Classification{
		Kind: KindTimeout,
		Hint: "Compilation timed out. Simplify expensive constructs such as TikZ pictures or large tables.",
	}
}

// excerptAround returns up to excerptLines lines starting at the match, which
// is where LaTeX prints the offending input line.
func excerptAround(lines []string, idx int) string {
	end := idx + excerptLines
	if end > len(lines) {
		end = len(lines)
	}
	return strings.TrimSpace(strings.Join(lines[idx:end], "\n"))
}

func logTail(lines []string) string {
	start := len(lines) - excerptLines
	if start < 0 {
		start = 0
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}
