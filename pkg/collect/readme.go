package collect

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// readmeFile returns the path of the README in dir, preferring markdown.
func readmeFile(dir string) (string, bool) {
	if dir == "" {
		return "", false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var candidates []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := strings.ToLower(e.Name())
		if name == "readme" || strings.HasPrefix(name, "readme.") {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return readmeRank(candidates[i]) < readmeRank(candidates[j]) ||
			readmeRank(candidates[i]) == readmeRank(candidates[j]) && candidates[i] < candidates[j]
	})
	return filepath.Join(dir, candidates[0]), true
}

func readmeRank(name string) int {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return 0
	case "":
		return 1
	default:
		return 2
	}
}

// readme returns the README text, read from the source tree or, when there
// is none, from the registry document.
func readme(in *Input) string {
	if path, ok := readmeFile(in.Dir()); ok {
		if b, err := os.ReadFile(path); err == nil {
			return string(b)
		}
	}
	if in.Data != nil {
		return in.Data.Readme
	}
	return ""
}

var (
	markdownImage = regexp.MustCompile(`!\[[^\]]*\]\(\s*<?(https?://[^\s)>]+)`)
	htmlImage     = regexp.MustCompile(`(?i)<img\s[^>]*src\s*=\s*["'](https?://[^"']+)["']`)
	referenceLink = regexp.MustCompile(`(?m)^\s*\[[^\]]+\]:\s*<?(https?://\S+?)>?\s*$`)
)

// imageURLs returns the image URLs referenced by a README, in order of first
// appearance and without duplicates. Reference-style definitions are included
// because badges are commonly written that way.
func imageURLs(text string) []string {
	type match struct {
		pos int
		url string
	}
	var matches []match
	for _, re := range []*regexp.Regexp{markdownImage, htmlImage, referenceLink} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			matches = append(matches, match{pos: m[2], url: text[m[2]:m[3]]})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	seen := make(map[string]bool, len(matches))
	var urls []string
	for _, m := range matches {
		if !seen[m.url] {
			seen[m.url] = true
			urls = append(urls, m.url)
		}
	}
	return urls
}
