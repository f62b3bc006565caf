package generation

// Media is a payload of encoded bytes and its MIME type.
type Media struct {
	Data     []byte
	MIMEType string
}

// Output is the classified result of a provider response. It is exactly one
// of InlineMedia, RemoteHandle or NoContent.
type Output interface {
	isOutput()
}

// InlineMedia is generated media delivered inside the provider response.
type InlineMedia struct {
	Media Media
}

// RemoteHandle is generated media that must be fetched from URI with the
// provider credential.
type RemoteHandle struct {
	URI      string
	MIMEType string
}

// NoContent means the response held neither inline media of the expected
// kind nor a file handle.
type NoContent struct {
	// Reason is a short description for the task's error text.
	Reason string
}

func (InlineMedia) isOutput()  {}
func (RemoteHandle) isOutput() {}
func (NoContent) isOutput()    {}
