// utils/project.go
package utils

import (
	"regexp"
	"strings"
)

// Role names pass through to compose untouched; only label lookups use the
// normalized form Compose itself applies to project names.
var projRe = regexp.MustCompile(`[^a-z0-9_-]+`)

func SanitizeProject(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = projRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_-")
	if s == "" {
		s = "default"
	}
	return s
}

// ComposeProjectForRole is the com.docker.compose.project label value the
// containers of a role carry.
func ComposeProjectForRole(role string) string {
	return SanitizeProject(role)
}
