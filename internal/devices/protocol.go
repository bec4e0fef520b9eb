package devices

// The device channel is a websocket the client keeps open for the lifetime
// of a session. The server drives the client's camera and speech recognizer
// with numbered commands; the client answers with a message carrying the
// same id, and pushes unnumbered speech events as they happen.

// Command types sent to the device.
const (
	CmdOpenCamera  = "open_camera"
	CmdCapture     = "capture"
	CmdSetTorch    = "set_torch"
	CmdCloseCamera = "close_camera"
	CmdStartSpeech = "start_speech"
	CmdStopSpeech  = "stop_speech"
)

// Message types received from the device.
const (
	MsgCameraOpened  = "camera_opened"
	MsgFrame         = "frame"
	MsgTorchSet      = "torch_set"
	MsgCameraClosed  = "camera_closed"
	MsgSpeechStarted = "speech_started"
	MsgError         = "error"

	// Unsolicited speech events.
	MsgTranscript  = "transcript"
	MsgSpeechError = "speech_error"
	MsgSpeechEnd   = "speech_end"
)

// Command is one server-to-device instruction.
type Command struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	On   *bool  `json:"on,omitempty"` // set_torch
}

// DeviceMessage is one device-to-server message. Replies echo the command
// id; speech events carry none.
type DeviceMessage struct {
	ID             int64  `json:"id,omitempty"`
	Type           string `json:"type"`
	TorchSupported bool   `json:"torchSupported,omitempty"` // camera_opened
	Data           string `json:"data,omitempty"`           // frame payload, data URL or base64
	MIME           string `json:"mime,omitempty"`
	Text           string `json:"text,omitempty"`   // transcript
	Reason         string `json:"reason,omitempty"` // error, speech_error
}
