// Package toolrun invokes external analysis tools against a working directory.
//
// A [Tool] names a command, its arguments and how to read its output. The
// [Runner] executes it, parses stdout on success and, on failure, classifies
// stderr with a [classify.Classifier]:
//
//   - transient failures are retried according to the runner's retry policy
//     and degrade to [Unavailable] once retries are exhausted
//   - permanent failures degrade to [Unavailable] immediately
//   - unrecoverable failures are returned as an error classified unrecoverable
//
// [Unavailable] is a value, not an error: "we tried and could not determine
// this" stays distinct from "this is known to be empty".
package toolrun
