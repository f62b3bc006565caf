package generation

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ObjectKey builds a collision-resistant storage key under folderHint, or
// under defaultFolder when the hint is empty. The extension follows the
// MIME type.
func ObjectKey(folderHint, defaultFolder, mimeType string) string {
	folder := cleanFolder(folderHint)
	if folder == "" {
		folder = cleanFolder(defaultFolder)
	}
	return path.Join(folder, uuid.NewString()+Extension(mimeType))
}

// Extension returns the file extension for mimeType, or ".bin" if unknown.
func Extension(mimeType string) string {
	if m := mimetype.Lookup(strings.ToLower(strings.TrimSpace(mimeType))); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}

// cleanFolder drops leading slashes and any ".." segments so a hint cannot
// escape the bucket or base directory.
func cleanFolder(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	cleaned := path.Clean("/" + hint)
	return strings.Trim(cleaned, "/")
}
