package github

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Owners are 1-39 alphanumerics or hyphens, not starting with a hyphen.
	validOwner = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,38}$`)
	validRepo  = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}$`)
)

// ValidateRepoRef reports whether owner/repo can name a GitHub repository.
// package.json repository fields are free text, so refs are checked before
// they are put into API URLs.
func ValidateRepoRef(owner, repo string) error {
	if !validOwner.MatchString(owner) {
		return fmt.Errorf("invalid owner %q", owner)
	}
	if !validRepo.MatchString(repo) || strings.Trim(repo, ".") == "" {
		return fmt.Errorf("invalid repository name %q", repo)
	}
	return nil
}
