package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rehab/clinic/internal/platform/errs"
)

const maxHeaderValueSize = 8192

var (
	// Logged only; list queries are parameterised.
	sqlPattern    = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)
	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests whose path, headers or query string carry
// traversal sequences, null bytes, CR/LF or script fragments.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if msg := checkPath(req); msg != "" {
				return rejected(msg)
			}
			if msg := checkHeaders(req.Header); msg != "" {
				return rejected(msg)
			}
			for key, values := range req.URL.Query() {
				for _, v := range values {
					if hasNullByte(key) || hasNullByte(v) {
						return rejected("Null byte in query parameter " + key)
					}
					if scriptPattern.MatchString(key) || scriptPattern.MatchString(v) {
						return rejected("Script fragment in query parameter " + key)
					}
					if sqlPattern.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).
							Msg("suspicious SQL pattern in query parameter")
					}
				}
			}
			return next(c)
		}
	}
}

func checkPath(req *http.Request) string {
	for _, p := range []string{req.URL.Path, req.URL.RawPath} {
		lower := strings.ToLower(p)
		if strings.Contains(p, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e") {
			return "Path traversal detected"
		}
		if hasNullByte(p) {
			return "Null byte in path"
		}
	}
	return ""
}

func checkHeaders(h http.Header) string {
	for name, values := range h {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "Header " + name + " is too large"
			}
			if strings.ContainsAny(v, "\r\n") {
				return "Line break in header " + name
			}
		}
	}
	return ""
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

func rejected(msg string) *errs.HTTPError {
	return errs.NewBadRequestWithCode("REQUEST_REJECTED", msg)
}

// SanitizeString drops null bytes and control characters except line breaks
// and tabs, then trims. Applied to free text such as notes and diagnosis.
func SanitizeString(input string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r == '\x00' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, input))
}
