package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyAttempt    = "attempt"
	KeyPath       = "path"
	KeySlide      = "slide"
	KeyPage       = "page"
	KeyTheme      = "theme"
	KeyLanguage   = "language"
	KeyModel      = "model"
	KeyErrorKind  = "error_kind"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Slide(n int) slog.Attr           { return slog.Int(KeySlide, n) }
func Page(n int) slog.Attr            { return slog.Int(KeyPage, n) }
func Theme(t string) slog.Attr        { return slog.String(KeyTheme, t) }
func Language(l string) slog.Attr     { return slog.String(KeyLanguage, l) }
func Model(m string) slog.Attr        { return slog.String(KeyModel, m) }
func ErrorKind(k string) slog.Attr    { return slog.String(KeyErrorKind, k) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
