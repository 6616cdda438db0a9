package nphies

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nphies/bridge/internal/platform/fhir"
)

// ValidationError reports malformed local input that must never reach the
// exchange. It fails fast in the composer.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransportError wraps network or HTTP-level failures talking to the
// exchange. Status and Body carry the raw response for diagnostics.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nphies transport: %v", e.Err)
	}
	return fmt.Sprintf("nphies transport: HTTP %d: %s", e.Status, truncate(e.Body, 200))
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExchangeError reports a response bundle whose MessageHeader carries
// fatal-error or transient-error, with the OperationOutcome issues extracted.
type ExchangeError struct {
	Code   string // fhir.ResponseCodeTransientError or fhir.ResponseCodeFatalError
	Issues []fhir.OperationOutcomeIssue
}

func (e *ExchangeError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("nphies exchange: %s", e.Code)
	}
	return fmt.Sprintf("nphies exchange: %s: %s", e.Code, e.Issues[0].Diagnostics)
}

// Retryable reports whether the caller may retry the operation. Only
// transient errors qualify; fatal errors are terminal for the cycle.
func (e *ExchangeError) Retryable() bool {
	return e.Code == fhir.ResponseCodeTransientError
}

// Error kinds for the normalized shape handed to the HTTP layer.
const (
	KindValidation = "validation"
	KindTransport  = "transport"
	KindExchange   = "exchange"
	KindInternal   = "internal"
)

// NormalizedError is the single tagged error shape every handler renders.
type NormalizedError struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Normalize maps any error from the workflow onto the taxonomy. All call
// sites go through here instead of shaping errors ad hoc.
func Normalize(err error) NormalizedError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return NormalizedError{Kind: KindValidation, Message: ve.Error()}
	}

	var te *TransportError
	if errors.As(err, &te) {
		n := NormalizedError{Kind: KindTransport, Message: te.Error()}
		if te.Body != "" {
			n.Details = []string{truncate(te.Body, 500)}
		}
		return n
	}

	var ee *ExchangeError
	if errors.As(err, &ee) {
		n := NormalizedError{Kind: KindExchange, Message: ee.Error()}
		for _, issue := range ee.Issues {
			detail := issue.Code
			if issue.Diagnostics != "" {
				detail += ": " + issue.Diagnostics
			}
			if len(issue.Expression) > 0 {
				detail += " (" + strings.Join(issue.Expression, ", ") + ")"
			}
			n.Details = append(n.Details, detail)
		}
		return n
	}

	return NormalizedError{Kind: KindInternal, Message: err.Error()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
