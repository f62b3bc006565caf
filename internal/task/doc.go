// Package task runs generation tasks. Work is triggered by reads: Submit
// only records a pending task, and the first Poll that wins the claim on it
// executes the pipeline (resolve input, call the provider, normalize the
// response, publish the media) and writes the terminal state. Every other
// poll returns the stored state.
//
// There are no background workers. A poll cancelled after its claim leaves
// the task in_progress; once the claim lease expires a later poll reclaims
// it and runs the pipeline again.
package task
