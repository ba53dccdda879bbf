package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by TargetConnector.ReadCurrentState when the
// target system holds no asset under the requested id.
var ErrNotFound = errors.New("asset not found")

// Connector error codes. Connectors report a code with every failure; the
// code decides whether the failure is retryable.
const (
	CodeTimeout     = "TIMEOUT"
	CodeRateLimited = "RATE_LIMITED"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL"
	CodeForbidden   = "FORBIDDEN"
	CodeBadRequest  = "BAD_REQUEST"
	CodeConflict    = "CONFLICT"
)

// ConfigurationError is fatal at load time. It aborts only the affected
// sync configuration; other configurations continue.
type ConfigurationError struct {
	ConfigID string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.ConfigID == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration %s: %s", e.ConfigID, e.Reason)
}

// ValidationError is a per-asset failure that is never retried.
type ValidationError struct {
	AssetID string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("asset %s: %s", e.AssetID, e.Reason)
}

// TransientError marks a failure (timeout, rate limit, 5xx-class) that is
// safe to retry with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ConflictError routes a persisting conflict to manual resolution: the task
// suspends as BLOCKED rather than failing.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d unresolved conflict(s), manual resolution required", len(e.Conflicts))
}

// Fields returns the conflicting field names for operator display.
func (e *ConflictError) Fields() []string {
	fields := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		fields = append(fields, c.Field)
	}
	return fields
}

// ConnectorError wraps an underlying connector failure together with the
// connector-reported code that classifies it transient or permanent.
type ConnectorError struct {
	System string
	Op     string
	Code   string
	Err    error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %s: %s: %v", e.System, e.Op, e.Code, e.Err)
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// Transient reports whether the connector code is in the retryable class.
func (e *ConnectorError) Transient() bool {
	switch e.Code {
	case CodeTimeout, CodeRateLimited, CodeUnavailable, CodeInternal:
		return true
	}
	return false
}

// Retryable classifies an error for the scheduler's retry policy. Only
// transient failures retry; validation and permission failures go straight
// to FAILED.
func Retryable(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.Transient()
	}
	return false
}

// ReportFor builds the structured error report attached to a FAILED task,
// including a remediation hint derived from the error class.
func ReportFor(err error) *ErrorReport {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &ErrorReport{
			Code:        CodeBadRequest,
			Message:     ve.Error(),
			Remediation: "fix the source asset or the mapping rules producing it",
		}
	}
	var ce *ConnectorError
	if errors.As(err, &ce) {
		report := &ErrorReport{Code: ce.Code, Message: ce.Error()}
		switch ce.Code {
		case CodeForbidden:
			report.Remediation = fmt.Sprintf("insufficient permissions: grant write access on %s", ce.System)
		case CodeRateLimited:
			report.Remediation = "reduce worker count or sync frequency"
		case CodeTimeout, CodeUnavailable, CodeInternal:
			report.Remediation = fmt.Sprintf("check availability of %s; retries were exhausted", ce.System)
		}
		return report
	}
	var te *TransientError
	if errors.As(err, &te) {
		return &ErrorReport{
			Code:        CodeTimeout,
			Message:     te.Error(),
			Remediation: "retries were exhausted; check connectivity and re-run",
		}
	}
	return &ErrorReport{Code: CodeInternal, Message: err.Error()}
}
