// Package api defines the wire types of the codexec execution service.
//
// A [Submission] carries user source, its declared [Language] and optional
// test cases. Executing it produces an [ExecutionResult] whose per-test
// entries are [TestResult] values. Failures that prevent execution from
// starting are reported as [APIError] values; failures that happen while the
// program runs are reported inside the result and classified by [ErrorKind].
//
// The package has no dependencies outside the standard library and performs
// no I/O.
package api
