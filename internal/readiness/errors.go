package readiness

import "fmt"

// ErrorCode identifies a readiness failure class. Codes are stable
// strings so they can be logged, counted and mapped to UI copy.
type ErrorCode string

const (
	CodeBrowserIncompatible ErrorCode = "BROWSER_INCOMPATIBLE"
	CodeBrowserOutdated     ErrorCode = "BROWSER_OUTDATED"
	CodeNetworkOffline      ErrorCode = "NETWORK_OFFLINE"
	CodeNetworkSlow         ErrorCode = "NETWORK_SLOW"
	CodeMicrophoneDenied    ErrorCode = "MICROPHONE_DENIED"
	CodeMicrophoneNotFound  ErrorCode = "MICROPHONE_NOT_FOUND"
	CodeMicrophoneBusy      ErrorCode = "MICROPHONE_BUSY"
	CodeAudioSilent         ErrorCode = "AUDIO_SILENT"
	CodeCheckFailed         ErrorCode = "CHECK_FAILED"
)

// CheckError carries what the user can do about a failed check.
// Recoverable errors are worth retrying after the user intervenes;
// Reportable ones should reach the operator's telemetry. Advisory
// errors degrade the check to a warning instead of failing it.
type CheckError struct {
	Code        ErrorCode
	Message     string
	Advice      string
	Recoverable bool
	Reportable  bool
	Advisory    bool
	Cause       error
}

func (e *CheckError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CheckError) Unwrap() error { return e.Cause }

func newCheckError(code ErrorCode, message, advice string, cause error) *CheckError {
	e := &CheckError{Code: code, Message: message, Advice: advice, Cause: cause}
	switch code {
	case CodeBrowserIncompatible:
		e.Reportable = true
	case CodeBrowserOutdated, CodeNetworkSlow, CodeAudioSilent:
		e.Recoverable = true
		e.Advisory = true
	case CodeNetworkOffline, CodeMicrophoneDenied, CodeMicrophoneNotFound,
		CodeMicrophoneBusy:
		e.Recoverable = true
	default:
		e.Reportable = true
	}
	return e
}
