package session

import "fmt"

// The error taxonomy mirrors how failures are recovered: validation and
// device errors are reported inline and leave the session where it was;
// analysis errors reset the in-flight attempt to a retryable state.

// ValidationReason identifies a local, pre-flight rejection.
type ValidationReason string

const (
	ReasonTooLarge    ValidationReason = "too_large"
	ReasonNoImage     ValidationReason = "no_image"
	ReasonEmptyImage  ValidationReason = "empty_image"
	ReasonBadCategory ValidationReason = "bad_category"
)

// ValidationError is a local pre-flight failure. No network is involved and
// no state transition happens.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DeviceReason identifies which device acquisition failed.
type DeviceReason string

const (
	DeviceCameraUnavailable     DeviceReason = "camera_unavailable"
	DeviceMicrophoneUnavailable DeviceReason = "microphone_unavailable"
)

// DeviceError reports a camera or microphone failure. The session keeps its
// prior state; only the surfaced message changes.
type DeviceError struct {
	Reason  DeviceReason
	Message string
	cause   error
}

func (e *DeviceError) Error() string { return e.Message }
func (e *DeviceError) Unwrap() error { return e.cause }

// StateError reports an operation invoked in a state that does not allow it,
// e.g. submitting while the camera preview is live.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("operation %s is not valid in state %s", e.Op, e.State)
}

// analysisFailureMessage is the single generic message surfaced for any
// analyzer failure. The internal cause is logged, never shown, so transport
// or credential details cannot leak to the client.
const analysisFailureMessage = "Analysis failed. Please try again."

// AnalysisError reports a failed analyzer attempt. The session has already
// been reset to ImageReady with image and description preserved.
type AnalysisError struct {
	cause error
}

func (e *AnalysisError) Error() string { return analysisFailureMessage }
func (e *AnalysisError) Unwrap() error { return e.cause }
