// Package storage defines the execution audit trail: a summary record per
// execution and the ExecutionStore interface implemented by the memory and
// postgres adapters.
//
// Records never contain source code, only its SHA-256, so the audit trail
// can be kept without retaining candidate submissions.
package storage
