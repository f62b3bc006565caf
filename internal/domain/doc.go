// Package domain contains the generation task entity, its status lifecycle,
// and the request/result value objects persisted with it. It has no
// dependencies on storage, transport, or provider code.
package domain
