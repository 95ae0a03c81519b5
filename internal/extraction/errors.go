package extraction

import "fmt"

// AnalysisErrorCode represents specific receipt analysis error types.
type AnalysisErrorCode string

const (
	ErrGeminiUnavailable AnalysisErrorCode = "GEMINI_UNAVAILABLE"
	ErrGeminiRateLimited AnalysisErrorCode = "GEMINI_RATE_LIMITED"
	ErrInvalidResponse   AnalysisErrorCode = "INVALID_RESPONSE"
	ErrUnsupportedMedia  AnalysisErrorCode = "UNSUPPORTED_MEDIA"
	ErrNoItemsFound      AnalysisErrorCode = "NO_ITEMS_FOUND"
)

// AnalysisError is a structured error for receipt analysis failures.
type AnalysisError struct {
	Code      AnalysisErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error is retryable.
func (e *AnalysisError) IsRetryable() bool {
	return e.Retryable
}
