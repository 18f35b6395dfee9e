package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// DetectContentType guesses a MIME type from the object key's extension,
// falling back to application/octet-stream. Config-ish text formats map to
// text/plain so browsers render them inline.
func DetectContentType(key string) string {
	if isTextLike(key) {
		return "text/plain; charset=utf-8"
	}
	if mimeType := mime.TypeByExtension(filepath.Ext(key)); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}

func isTextLike(key string) bool {
	return strings.HasSuffix(key, ".yaml") ||
		strings.HasSuffix(key, ".yml") ||
		strings.HasSuffix(key, ".toml") ||
		strings.HasSuffix(key, ".md")
}
