package domain

import "fmt"

// FailureKind separates failures that are intrinsic to the uploaded content
// from failures of the recognition provider itself. Only content failures
// may populate the negative cache: a transient provider fault must not
// poison future lookups for the same bytes.
type FailureKind int

const (
	FailureContent FailureKind = iota
	FailureProvider
)

// RecognitionFailure is a terminal recognition error rendered to callers as
// "<code> <message>" with an HTTP-like three digit code.
type RecognitionFailure struct {
	Code    int
	Message string
	Kind    FailureKind
}

func (f *RecognitionFailure) Error() string {
	return fmt.Sprintf("%d %s", f.Code, f.Message)
}

// Cacheable reports whether the failure may be recorded against the content
// fingerprint permanently.
func (f *RecognitionFailure) Cacheable() bool {
	return f.Kind == FailureContent
}

func ContentFailure(code int, message string) *RecognitionFailure {
	return &RecognitionFailure{Code: code, Message: message, Kind: FailureContent}
}

func ProviderFailure(code int, message string) *RecognitionFailure {
	return &RecognitionFailure{Code: code, Message: message, Kind: FailureProvider}
}

// CallbackFailure describes a failed callback delivery. The message is
// recorded on the task verbatim and surfaced to the caller on status reads.
type CallbackFailure struct {
	Message string
}

func (f *CallbackFailure) Error() string {
	return f.Message
}
