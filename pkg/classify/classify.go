// Package classify maps raw failure signals to a handling class.
//
// All text-pattern sniffing of external failures lives here so the rules can be
// tested in one place. The input is whatever a failed invocation left behind:
// subprocess stderr, an HTTP status, or an error value.
//
// Rules, in order of precedence:
//   - caller-tagged or configured unrecoverable patterns ⇒ unrecoverable
//   - gateway errors (502/503/504, "Bad Gateway", gateway timeouts, including
//     the same text encoded as a comma-separated decimal byte list) and
//     connection resets/timeouts ⇒ transient
//   - empty output ("Debug output: undefined") ⇒ permanent, reason empty-output
//   - anything else ⇒ permanent
//
// Classification is pure and deterministic.
package classify

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
)

// Reasons attached to a [Verdict].
const (
	ReasonGateway       = "gateway"
	ReasonNetwork       = "network"
	ReasonEmptyOutput   = "empty-output"
	ReasonUnrecoverable = "unrecoverable"
	ReasonTimeout       = "timeout"
	ReasonRateLimited   = "rate-limited"
	ReasonNotFound      = "not-found"
	ReasonOther         = "other"
)

// Verdict is the outcome of classifying one failure.
type Verdict struct {
	Class  perrors.Class
	Reason string
}

// Transient reports whether the verdict allows a retry.
func (v Verdict) Transient() bool { return v.Class == perrors.ClassTransient }

var gatewayPatterns = []string{
	`"statusCode":502`,
	`"statusCode":503`,
	`"statusCode":504`,
	"Bad Gateway",
	"Service Unavailable",
	"Gateway Time-out",
	"Gateway Timeout",
}

var networkPatterns = []string{
	"ETIMEDOUT",
	"ECONNRESET",
	"ECONNREFUSED",
	"EAI_AGAIN",
	"socket hang up",
}

var emptyOutputPatterns = []string{
	"Debug output: undefined",
}

// Classifier classifies failure text. The zero value applies the default rules;
// Transient and Unrecoverable add tool-specific substrings on top of them.
type Classifier struct {
	Transient     []string
	Unrecoverable []string
}

// DefaultUnrecoverable lists substrings that mean the package itself is broken.
var DefaultUnrecoverable = []string{"EJSONPARSE"}

// Default is the classifier used by [Classify].
var Default = Classifier{Unrecoverable: DefaultUnrecoverable}

// Classify classifies detail with the [Default] classifier.
func Classify(detail string) Verdict { return Default.Classify(detail) }

// Classify maps failure text to a verdict.
func (c Classifier) Classify(detail string) Verdict {
	if containsAny(detail, c.Unrecoverable) {
		return Verdict{Class: perrors.ClassUnrecoverable, Reason: ReasonUnrecoverable}
	}
	if containsAny(detail, gatewayPatterns) || byteListContainsAny(detail, gatewayPatterns) {
		return Verdict{Class: perrors.ClassTransient, Reason: ReasonGateway}
	}
	if containsAny(detail, networkPatterns) || containsAny(detail, c.Transient) {
		return Verdict{Class: perrors.ClassTransient, Reason: ReasonNetwork}
	}
	if strings.TrimSpace(detail) == "" || containsAny(detail, emptyOutputPatterns) {
		return Verdict{Class: perrors.ClassPermanent, Reason: ReasonEmptyOutput}
	}
	return Verdict{Class: perrors.ClassPermanent, Reason: ReasonOther}
}

// ClassifyStatus maps an HTTP status code to a verdict. Success codes are not
// expected here; callers only classify failed responses.
func ClassifyStatus(code int) Verdict {
	switch {
	case code == http.StatusTooManyRequests:
		return Verdict{Class: perrors.ClassTransient, Reason: ReasonRateLimited}
	case code == http.StatusBadGateway, code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
		return Verdict{Class: perrors.ClassTransient, Reason: ReasonGateway}
	case code >= 500:
		return Verdict{Class: perrors.ClassTransient, Reason: ReasonNetwork}
	case code == http.StatusNotFound, code == http.StatusGone:
		return Verdict{Class: perrors.ClassPermanent, Reason: ReasonNotFound}
	default:
		return Verdict{Class: perrors.ClassPermanent, Reason: ReasonOther}
	}
}

// StderrCarrier is implemented by errors that captured a subprocess stderr.
type StderrCarrier interface {
	Stderr() string
}

// ClassifyError maps an error value to a verdict. Explicit classes win; timeouts
// are transient; errors carrying stderr are classified by their text.
func (c Classifier) ClassifyError(err error) Verdict {
	if err == nil {
		return Verdict{Class: perrors.ClassPermanent, Reason: ReasonOther}
	}
	if perrors.IsUnrecoverable(err) {
		return Verdict{Class: perrors.ClassUnrecoverable, Reason: ReasonUnrecoverable}
	}
	if class, ok := perrors.ClassOf(err); ok {
		return Verdict{Class: class, Reason: ReasonOther}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Verdict{Class: perrors.ClassTransient, Reason: ReasonTimeout}
	}
	var sc StderrCarrier
	if errors.As(err, &sc) {
		return c.Classify(sc.Stderr())
	}
	return c.Classify(err.Error())
}

// ClassifyError classifies err with the [Default] classifier.
func ClassifyError(err error) Verdict { return Default.ClassifyError(err) }

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// byteListRun matches a comma-separated run of decimal byte values, the form
// some tools print a buffer in (e.g. "53,48,52" for "504").
var byteListRun = regexp.MustCompile(`\d{1,3}(?:\s*,\s*\d{1,3})+`)

// byteListContainsAny reports whether any byte-list run inside s decodes to
// text containing one of patterns. The runs may be surrounded by other output.
func byteListContainsAny(s string, patterns []string) bool {
	for _, run := range byteListRun.FindAllString(s, -1) {
		if containsAny(decodeByteList(run), patterns) {
			return true
		}
	}
	return false
}

// decodeByteList decodes one byte-list run. A value above 255 makes the run
// decode to the empty string.
func decodeByteList(run string) string {
	parts := strings.Split(run, ",")
	buf := make([]byte, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n > 255 {
			return ""
		}
		buf = append(buf, byte(n))
	}
	return string(buf)
}
