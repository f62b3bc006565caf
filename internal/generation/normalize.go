package generation

import (
	"strings"
)

// Normalizer classifies provider responses.
type Normalizer struct {
	// ExpectedMedia lists the MIME type prefixes accepted as inline output,
	// e.g. "image/".
	ExpectedMedia []string
}

// Extract scans the parts once in order. The first inline part of an
// expected media kind wins, then the first file handle. Anything else is
// NoContent.
func (n Normalizer) Extract(resp *RawResponse) Output {
	if resp == nil || len(resp.Parts) == 0 {
		return NoContent{Reason: noContentReason(resp)}
	}

	for _, part := range resp.Parts {
		switch {
		case part.InlineData != nil && len(part.InlineData.Data) > 0 && n.expected(part.InlineData.MIMEType):
			return InlineMedia{Media: *part.InlineData}
		case part.FileURI != "":
			return RemoteHandle{URI: part.FileURI, MIMEType: part.FileMIMEType}
		}
	}

	return NoContent{Reason: noContentReason(resp)}
}

func (n Normalizer) expected(mimeType string) bool {
	if len(n.ExpectedMedia) == 0 {
		return true
	}
	mimeType = strings.ToLower(mimeType)
	for _, prefix := range n.ExpectedMedia {
		if strings.HasPrefix(mimeType, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func noContentReason(resp *RawResponse) string {
	if resp != nil && resp.FinishReason != "" && resp.FinishReason != "STOP" {
		return "provider returned no media (finish reason " + resp.FinishReason + ")"
	}
	return "provider returned no media"
}
