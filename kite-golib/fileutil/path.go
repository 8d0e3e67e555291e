package fileutil

import (
	"path"
	"strings"
)

// splitScheme splits "s3://bucket/key" into "s3://" and "bucket/key". Local paths have no scheme.
func splitScheme(p string) (scheme, rest string) {
	if i := strings.Index(p, "://"); i > 0 {
		return p[:i+3], p[i+3:]
	}
	return "", p
}

// Join joins elements onto base, which may be a local path or a URI such as s3://bucket/prefix.
func Join(base string, elem ...string) string {
	scheme, rest := splitScheme(base)
	return scheme + path.Join(append([]string{rest}, elem...)...)
}
