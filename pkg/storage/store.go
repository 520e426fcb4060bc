package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rhuss/codexec/pkg/api"
)

// Record summarizes one execution.
type Record struct {
	ID         string        `json:"id"`
	RequestID  string        `json:"requestId,omitempty"`
	Language   api.Language  `json:"language"`
	CodeSHA256 string        `json:"codeSha256"`
	Success    bool          `json:"success"`
	ErrorKind  api.ErrorKind `json:"errorKind,omitempty"`
	Passed     int           `json:"passed"`
	Total      int           `json:"total"`
	DurationMS int64         `json:"durationMs"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// NewRecord builds the audit summary of result for a submission.
func NewRecord(sub *api.Submission, result *api.ExecutionResult, requestID string) *Record {
	sum := sha256.Sum256([]byte(sub.Code))
	return &Record{
		ID:         result.ID,
		RequestID:  requestID,
		Language:   sub.Language,
		CodeSHA256: hex.EncodeToString(sum[:]),
		Success:    result.Success,
		ErrorKind:  result.ErrorKind,
		Passed:     result.Passed(),
		Total:      len(result.TestResults),
		DurationMS: result.ExecutionTime,
		CreatedAt:  time.Now().UTC(),
	}
}

// ExecutionStore persists execution records. Implementations scope reads
// and writes by the tenant found in the context.
type ExecutionStore interface {
	Save(ctx context.Context, rec *Record) error

	// Get returns ErrNotFound for unknown IDs.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]*Record, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// Limit bounds for List.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampLimit applies the default and maximum list limits.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

type tenantKey struct{}

// SetTenant scopes storage operations on ctx to tenantID. The auth
// middleware sets it from the caller's identity.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant returns the tenant of ctx, or "" when storage is unscoped.
func GetTenant(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey{}).(string)
	return v
}
