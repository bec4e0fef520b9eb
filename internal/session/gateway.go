package session

import "context"

// Frame is one captured image, either an uploaded file or a camera snapshot.
type Frame struct {
	Data     []byte
	MIMEType string
}

// SpeechEventKind discriminates the events of a speech-to-text session.
type SpeechEventKind string

const (
	// SpeechResult carries one recognized utterance.
	SpeechResult SpeechEventKind = "result"
	// SpeechFailure carries a recognition error reason.
	SpeechFailure SpeechEventKind = "error"
	// SpeechEnd signals the end of the recognition session.
	SpeechEnd SpeechEventKind = "end"
)

// Speech error reasons as reported by the platform recognizer.
const (
	SpeechReasonNoSpeech     = "no-speech"
	SpeechReasonAborted      = "aborted"
	SpeechReasonNotAllowed   = "not-allowed"
	SpeechReasonAudioCapture = "audio-capture"
)

// SpeechEvent is one event from an active speech-to-text session.
type SpeechEvent struct {
	Kind       SpeechEventKind
	Transcript string
	Reason     string
}

// CameraDevice is an exclusive handle on the rear camera. The controller
// holds at most one and releases it on every exit path.
type CameraDevice interface {
	// TorchSupported reports the capability probed at acquisition time.
	TorchSupported() bool
	// SetTorch applies the torch constraint to the active video track.
	SetTorch(ctx context.Context, on bool) error
	// CaptureFrame snapshots the current video frame.
	CaptureFrame(ctx context.Context) (Frame, error)
	// Close stops all device tracks.
	Close() error
}

// SpeechSession is an active speech-to-text capture. Events terminates with
// SpeechEnd or a channel close; Stop is idempotent.
type SpeechSession interface {
	Events() <-chan SpeechEvent
	Stop() error
}

// DeviceGateway is the platform camera/microphone capability. In production
// it is the bridge to the connected browser's devices; tests substitute
// fakes.
type DeviceGateway interface {
	OpenRearCamera(ctx context.Context) (CameraDevice, error)
	OpenSpeech(ctx context.Context) (SpeechSession, error)
}

// GatewayProvider hands out the device gateway bound to a session and
// releases it when the session goes away.
type GatewayProvider interface {
	GatewayFor(sessionID string) DeviceGateway
	Release(sessionID string)
}
