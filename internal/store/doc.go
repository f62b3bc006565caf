// Package store defines the persistence contract for generation tasks and
// the errors shared by every implementation. Concrete stores live under
// internal/platform (postgres, redis, memory).
package store
