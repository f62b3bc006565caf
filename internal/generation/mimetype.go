package generation

import (
	"mime"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMIMEType is used when neither a declared type nor the content
// identifies the media.
const DefaultMIMEType = "image/png"

// DetectMIMEType prefers a specific declared Content-Type, then sniffs the
// content, then falls back to DefaultMIMEType.
func DetectMIMEType(declared string, data []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil &&
			mediaType != "application/octet-stream" && mediaType != "binary/octet-stream" {
			return mediaType
		}
	}

	if len(data) > 0 {
		if m := mimetype.Detect(data); m != nil && !m.Is("application/octet-stream") && !m.Is("text/plain") {
			if mediaType, _, err := mime.ParseMediaType(m.String()); err == nil {
				return mediaType
			}
		}
	}

	return DefaultMIMEType
}
