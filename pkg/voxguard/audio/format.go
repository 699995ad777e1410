package audio

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	FormatFLAC = ".flac"
	FormatWAV  = ".wav"
)

// DefaultFormats is the accepted container list: FLAC only.
var DefaultFormats = []string{FormatFLAC}

// Supported reports whether a codec exists for ext.
func Supported(ext string) bool {
	switch NormalizeExt(ext) {
	case FormatFLAC, FormatWAV:
		return true
	}
	return false
}

// NormalizeExt lowercases ext and makes sure it has a leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// CheckFormat rejects filenames whose extension is not in allowed.
// It only looks at the name; the payload is never touched.
func CheckFormat(filename string, allowed []string) error {
	if len(allowed) == 0 {
		allowed = DefaultFormats
	}
	ext := NormalizeExt(filepath.Ext(filename))
	for _, a := range allowed {
		if NormalizeExt(a) == ext && ext != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (accepted: %s)", ErrUnsupportedFormat, filename, strings.Join(allowed, ", "))
}
