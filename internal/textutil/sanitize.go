package textutil

import (
	"path/filepath"
	"strings"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// DisplayName derives an asset name from an uploaded file name by dropping
// the directory and extension. Returns fallback when nothing remains.
func DisplayName(fileName, fallback string) string {
	base := filepath.Base(strings.TrimSpace(fileName))
	if base == "." || base == string(filepath.Separator) {
		return fallback
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = SanitizeFileName(stem)
	if stem == "" {
		return fallback
	}
	return stem
}

// Extension returns the lowercase extension of fileName without the dot.
func Extension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
	return strings.TrimPrefix(ext, ".")
}
