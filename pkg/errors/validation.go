package errors

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// maxNpmNameLen is the registry's limit on package name length.
const maxNpmNameLen = 214

// npmNameRegex matches registry package names, scoped or not. Names
// published before the lowercase rule may contain capitals and the registry
// still serves them, so capitals are accepted.
var npmNameRegex = regexp.MustCompile(`^(@[a-zA-Z0-9-~][a-zA-Z0-9-._~]*/)?[a-zA-Z0-9-~][a-zA-Z0-9-._~]*$`)

// ValidateNpmPackageName rejects names that the registry could never serve.
// Names become URL paths and directory names, so anything that could
// traverse or escape is refused before it reaches either.
func ValidateNpmPackageName(name string) error {
	switch {
	case name == "":
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	case len(name) > maxNpmNameLen:
		return New(ErrCodeInvalidPackage, "package name too long (max %d characters)", maxNpmNameLen)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return New(ErrCodeInvalidPackage, "package name contains control characters")
	case strings.Contains(name, ".."):
		return New(ErrCodeInvalidPackage, "package name contains %q", "..")
	case !npmNameRegex.MatchString(name):
		return New(ErrCodeInvalidPackage, "invalid npm package name: %q", name)
	}
	return nil
}

// ValidateURL requires an absolute http or https URL with a host.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidInput, err, "invalid URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme: %q", rawURL)
	}
	if u.Host == "" {
		return New(ErrCodeInvalidInput, "URL has no host: %q", rawURL)
	}
	return nil
}
