// Package api exposes the generation task lifecycle over HTTP: submission,
// polling and per-canvas listing. It validates requests, translates them
// into orchestrator calls and maps errors to sanitized responses.
package api
