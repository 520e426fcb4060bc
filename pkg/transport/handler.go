package transport

import (
	"context"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/storage"
)

// Executor runs one submission. Validation failures are returned as
// *api.APIError; an execution that ran, however badly, is a result.
type Executor interface {
	Execute(ctx context.Context, sub *api.Submission) (*api.ExecutionResult, error)
}

// ExecutorFunc is an adapter that allows using an ordinary function as an
// Executor.
type ExecutorFunc func(ctx context.Context, sub *api.Submission) (*api.ExecutionResult, error)

// Execute calls f(ctx, sub).
func (f ExecutorFunc) Execute(ctx context.Context, sub *api.Submission) (*api.ExecutionResult, error) {
	return f(ctx, sub)
}

// AuditReader is the read side of the execution audit trail.
type AuditReader interface {
	// Get returns storage.ErrNotFound for unknown IDs.
	Get(ctx context.Context, id string) (*storage.Record, error)
	List(ctx context.Context, limit int) ([]*storage.Record, error)
}

// RecordList is the response body of GET /api/code/executions.
type RecordList struct {
	Object string            `json:"object"`
	Data   []*storage.Record `json:"data"`
}

// LanguageInfo describes one entry of GET /api/code/languages.
type LanguageInfo struct {
	Language    api.Language `json:"language"`
	DisplayName string       `json:"displayName"`
	SourceFile  string       `json:"sourceFile"`
	Steps       []StepInfo   `json:"steps"`
}

// StepInfo describes a runner step of a language.
type StepInfo struct {
	Name           string   `json:"name"`
	Command        []string `json:"command"`
	TimeoutSeconds float64  `json:"timeoutSeconds"`
}
