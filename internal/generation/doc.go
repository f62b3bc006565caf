// Package generation holds the provider-independent vocabulary of the media
// generation pipeline: media payloads, the classified provider output
// (inline media, remote handle, or no content), and the step errors whose
// diagnostic codes are persisted as a failed task's status code.
package generation
