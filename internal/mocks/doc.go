// Package mocks provides hand-written test doubles for the generation
// pipeline collaborators. Each mock takes an optional function field for
// custom behavior, falls back to fixed return values, and records its calls
// under a mutex so concurrent tests can assert on them.
package mocks
