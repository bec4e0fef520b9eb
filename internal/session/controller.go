package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/solvemate/solvemate-api/internal/analyzer"
	"github.com/solvemate/solvemate-api/internal/common"
	"github.com/solvemate/solvemate-api/internal/history"
	"github.com/solvemate/solvemate-api/internal/logger"
)

// State is the lifecycle phase of an analysis session.
type State string

const (
	StateIdle         State = "idle"
	StateImageReady   State = "image_ready"
	StateCameraActive State = "camera_active"
	StateSubmitting   State = "submitting"
	StateResultReady  State = "result_ready"
)

// MaxImageBytes is the product ceiling on submitted images, enforced on both
// uploaded files and captured camera frames. It is a policy limit, not an
// analyzer constraint.
const MaxImageBytes = 5 << 20

// DefaultCategory is the category a fresh session starts with.
const DefaultCategory = "General"

// Analyzer produces a structured diagnosis for one request.
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.AnalysisRequest) (analyzer.AnalysisResult, error)
}

// HistoryAppender records completed analyses without blocking the caller.
type HistoryAppender interface {
	AppendAsync(ownerID string, item history.Item) error
}

// Controller owns one analysis session: the selected image, the live camera
// or voice capture, and the single in-flight submission. All operations are
// serialized on one mutex; the analyzer call itself runs outside the lock
// and is fenced by a submission epoch so a late result cannot clobber a
// session that moved on.
type Controller struct {
	id      string
	ownerID string

	gateway    DeviceGateway
	analyzer   Analyzer
	historian  HistoryAppender
	categories map[string]bool
	logger     *logger.Logger

	mu             sync.Mutex
	state          State
	image          *Frame
	description    string
	category       string
	camera         CameraDevice
	torchSupported bool
	torchOn        bool
	speech         SpeechSession
	voiceActive    bool
	lastError      string
	current        *history.Item
	epoch          uint64
	lastActivity   time.Time
	closed         bool
}

// Snapshot is the externally visible view of a session.
type Snapshot struct {
	ID             string        `json:"id"`
	State          State         `json:"state"`
	HasImage       bool          `json:"hasImage"`
	ImageURL       string        `json:"imageUrl,omitempty"`
	Description    string        `json:"description"`
	Category       string        `json:"category"`
	TorchSupported bool          `json:"torchSupported"`
	TorchOn        bool          `json:"torchOn"`
	VoiceActive    bool          `json:"voiceActive"`
	Error          string        `json:"error,omitempty"`
	Analysis       *history.Item `json:"analysis,omitempty"`
}

func NewController(id, ownerID string, gateway DeviceGateway, eng Analyzer, historian HistoryAppender, categories []string, log *logger.Logger) *Controller {
	catSet := make(map[string]bool, len(categories))
	for _, c := range categories {
		catSet[c] = true
	}

	return &Controller{
		id:           id,
		ownerID:      ownerID,
		gateway:      gateway,
		analyzer:     eng,
		historian:    historian,
		categories:   catSet,
		logger:       log.WithComponent("session").WithFields(map[string]interface{}{"session_id": id}),
		state:        StateIdle,
		category:     DefaultCategory,
		lastActivity: time.Now(),
	}
}

func (c *Controller) ID() string      { return c.id }
func (c *Controller) OwnerID() string { return c.ownerID }

// LastActivity reports when the session was last touched, for idle reaping.
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Controller) touchLocked() {
	c.lastActivity = time.Now()
}

// Snapshot returns the current view of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		ID:             c.id,
		State:          c.state,
		HasImage:       c.image != nil,
		Description:    c.description,
		Category:       c.category,
		TorchSupported: c.torchSupported,
		TorchOn:        c.torchOn,
		VoiceActive:    c.voiceActive,
		Error:          c.lastError,
		Analysis:       c.current,
	}
	if c.image != nil {
		snap.ImageURL = common.EncodeDataURL(c.image.MIMEType, c.image.Data)
	}
	return snap
}

// SetImage selects an uploaded image. Oversized and empty payloads are
// rejected without touching the current selection.
func (c *Controller) SetImage(data []byte, mimeType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if c.closed {
		return &StateError{Op: "set_image", State: c.state}
	}
	switch c.state {
	case StateCameraActive, StateSubmitting, StateResultReady:
		return &StateError{Op: "set_image", State: c.state}
	}

	if len(data) == 0 {
		err := &ValidationError{Reason: ReasonEmptyImage, Message: "The selected file is empty."}
		c.lastError = err.Message
		return err
	}
	if len(data) > MaxImageBytes {
		err := &ValidationError{Reason: ReasonTooLarge, Message: "File is too large. Please upload an image under 5MB."}
		c.lastError = err.Message
		return err
	}

	c.image = &Frame{Data: data, MIMEType: common.PickMIME(mimeType, "", data)}
	c.state = StateImageReady
	c.lastError = ""
	return nil
}

// ClearImage discards the selected image and returns the session to idle.
func (c *Controller) ClearImage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if c.closed {
		return &StateError{Op: "clear_image", State: c.state}
	}
	switch c.state {
	case StateCameraActive, StateSubmitting, StateResultReady:
		return &StateError{Op: "clear_image", State: c.state}
	}

	c.image = nil
	c.state = StateIdle
	c.lastError = ""
	return nil
}

// SetDescription replaces the free-text problem description.
func (c *Controller) SetDescription(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if c.closed || c.state == StateSubmitting || c.state == StateResultReady {
		return &StateError{Op: "set_description", State: c.state}
	}

	c.description = text
	return nil
}

// SetCategory selects one of the configured problem categories.
func (c *Controller) SetCategory(category string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if c.closed || c.state == StateSubmitting || c.state == StateResultReady {
		return &StateError{Op: "set_category", State: c.state}
	}

	if !c.categories[category] {
		return &ValidationError{Reason: ReasonBadCategory, Message: "Unknown problem category."}
	}
	c.category = category
	return nil
}

// OpenCamera acquires the rear camera and enters the live preview state.
// Acquisition failure leaves the session where it was.
func (c *Controller) OpenCamera(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.state == StateSubmitting || c.state == StateResultReady || c.state == StateCameraActive {
		state := c.state
		c.mu.Unlock()
		return &StateError{Op: "open_camera", State: state}
	}
	c.touchLocked()
	c.mu.Unlock()

	// Device acquisition can block on user permission prompts; do it
	// outside the lock.
	dev, err := c.gateway.OpenRearCamera(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		devErr := &DeviceError{
			Reason:  DeviceCameraUnavailable,
			Message: "Could not access camera. Please check permissions.",
			cause:   err,
		}
		c.lastError = devErr.Message
		c.logger.Warn("camera acquisition failed", slog.String("error", err.Error()))
		return devErr
	}

	if c.closed || c.state == StateCameraActive || c.state == StateSubmitting || c.state == StateResultReady {
		// The session moved on while the grant was pending (a submit can
		// run to completion meanwhile); hand the device back and leave
		// the state, terminal or not, untouched.
		dev.Close()
		return &StateError{Op: "open_camera", State: c.state}
	}

	c.camera = dev
	c.torchSupported = dev.TorchSupported()
	c.torchOn = false
	c.state = StateCameraActive
	c.lastError = ""
	return nil
}

// ToggleFlash flips the torch while the preview is live. A device that
// cannot apply the constraint keeps the previous flag; the failure is
// logged, not surfaced.
func (c *Controller) ToggleFlash(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCameraActive || c.camera == nil {
		state := c.state
		c.mu.Unlock()
		return &StateError{Op: "toggle_flash", State: state}
	}
	c.touchLocked()
	if !c.torchSupported {
		c.mu.Unlock()
		return nil
	}
	dev := c.camera
	want := !c.torchOn
	c.mu.Unlock()

	err := dev.SetTorch(ctx, want)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("torch constraint rejected", slog.Bool("wanted", want), slog.String("error", err.Error()))
		return nil
	}
	if c.camera == dev {
		c.torchOn = want
	}
	return nil
}

// CapturePhoto snapshots the preview, releases the camera and makes the
// frame the selected image. A failed capture keeps the preview open so the
// user can retry or cancel.
func (c *Controller) CapturePhoto(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCameraActive || c.camera == nil {
		state := c.state
		c.mu.Unlock()
		return &StateError{Op: "capture_photo", State: state}
	}
	c.touchLocked()
	dev := c.camera
	c.mu.Unlock()

	frame, err := dev.CaptureFrame(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.camera != dev {
		return &StateError{Op: "capture_photo", State: c.state}
	}

	if err != nil {
		devErr := &DeviceError{
			Reason:  DeviceCameraUnavailable,
			Message: "Could not capture photo. Please try again.",
			cause:   err,
		}
		c.lastError = devErr.Message
		c.logger.Warn("frame capture failed", slog.String("error", err.Error()))
		return devErr
	}

	if len(frame.Data) > MaxImageBytes {
		verr := &ValidationError{Reason: ReasonTooLarge, Message: "Captured photo is too large. Please try again."}
		c.lastError = verr.Message
		return verr
	}

	c.releaseCameraLocked()
	frame.MIMEType = common.PickMIME(frame.MIMEType, "", frame.Data)
	c.image = &frame
	c.state = StateImageReady
	c.lastError = ""
	return nil
}

// CloseCamera cancels the preview without capturing. The session returns to
// whichever state the selected image implies. Closing an inactive camera is
// a no-op.
func (c *Controller) CloseCamera() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if c.state != StateCameraActive {
		return nil
	}

	c.releaseCameraLocked()
	if c.image != nil {
		c.state = StateImageReady
	} else {
		c.state = StateIdle
	}
	return nil
}

func (c *Controller) releaseCameraLocked() {
	if c.camera != nil {
		if err := c.camera.Close(); err != nil {
			c.logger.Warn("camera release failed", slog.String("error", err.Error()))
		}
		c.camera = nil
	}
	c.torchSupported = false
	c.torchOn = false
}

// StartVoiceCapture begins speech-to-text dictation into the description.
// Invoking it while dictation is active stops it instead, matching the
// mic button's toggle behavior.
func (c *Controller) StartVoiceCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.voiceActive {
		c.stopVoiceLocked()
		c.mu.Unlock()
		return nil
	}
	if c.closed || c.state == StateSubmitting || c.state == StateResultReady {
		state := c.state
		c.mu.Unlock()
		return &StateError{Op: "start_voice", State: state}
	}
	c.touchLocked()
	c.mu.Unlock()

	sess, err := c.gateway.OpenSpeech(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		devErr := &DeviceError{
			Reason:  DeviceMicrophoneUnavailable,
			Message: "Could not access microphone. Please check permissions.",
			cause:   err,
		}
		c.lastError = devErr.Message
		c.logger.Warn("speech acquisition failed", slog.String("error", err.Error()))
		return devErr
	}

	if c.closed || c.voiceActive {
		go sess.Stop()
		return nil
	}
	if c.state == StateSubmitting || c.state == StateResultReady {
		// The submit won the race while the microphone grant was
		// pending; dictation must not attach to a submission in flight
		// or to a finished session.
		go sess.Stop()
		return &StateError{Op: "start_voice", State: c.state}
	}

	c.speech = sess
	c.voiceActive = true
	c.lastError = ""
	go c.consumeSpeech(sess)
	return nil
}

// StopVoiceCapture ends dictation. Stopping inactive dictation is a no-op.
func (c *Controller) StopVoiceCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()
	c.stopVoiceLocked()
	return nil
}

func (c *Controller) stopVoiceLocked() {
	if c.speech == nil {
		c.voiceActive = false
		return
	}
	sess := c.speech
	c.speech = nil
	c.voiceActive = false
	// Stop outside the lock; the consumer goroutine may be delivering an
	// event that needs it.
	go func() {
		if err := sess.Stop(); err != nil {
			c.logger.Debug("speech stop failed", slog.String("error", err.Error()))
		}
	}()
}

// consumeSpeech drains one speech session. Events for a session the
// controller no longer holds are discarded.
func (c *Controller) consumeSpeech(sess SpeechSession) {
	for ev := range sess.Events() {
		switch ev.Kind {
		case SpeechResult:
			c.appendTranscript(sess, ev.Transcript)
		case SpeechFailure:
			c.handleSpeechFailure(sess, ev.Reason)
		case SpeechEnd:
			c.detachSpeech(sess)
		}
	}
	c.detachSpeech(sess)
}

func (c *Controller) appendTranscript(sess SpeechSession, transcript string) {
	if transcript == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.speech != sess {
		return
	}
	if c.state == StateSubmitting || c.state == StateResultReady {
		// The request snapshot has already been taken; a straggling
		// utterance must not mutate the description under it.
		return
	}
	c.touchLocked()
	if c.description == "" {
		c.description = transcript
	} else {
		c.description = c.description + " " + transcript
	}
}

// handleSpeechFailure applies the recognizer error policy: silence and
// user-initiated aborts end dictation quietly; permission and hardware
// failures end it with a surfaced message.
func (c *Controller) handleSpeechFailure(sess SpeechSession, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.speech != sess {
		return
	}
	c.speech = nil
	c.voiceActive = false
	go sess.Stop()

	switch reason {
	case SpeechReasonNoSpeech, SpeechReasonAborted:
		c.logger.Debug("speech session ended", slog.String("reason", reason))
	case SpeechReasonNotAllowed:
		c.lastError = "Microphone permission denied. Please allow microphone access."
	case SpeechReasonAudioCapture:
		c.lastError = "No microphone was found. Please check your audio devices."
	default:
		c.lastError = "Voice input failed. Please try typing instead."
		c.logger.Warn("speech recognition error", slog.String("reason", reason))
	}
}

func (c *Controller) detachSpeech(sess SpeechSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.speech == sess {
		c.speech = nil
		c.voiceActive = false
		go sess.Stop()
	}
}

// Submit runs exactly one analysis attempt on the selected image. There is
// no automatic retry; each attempt is an explicit, billed call. On success
// the session reaches its terminal state and the result is queued for
// history persistence without blocking the response.
func (c *Controller) Submit(ctx context.Context) (*history.Item, error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil, &StateError{Op: "submit", State: c.state}
	}
	switch c.state {
	case StateCameraActive, StateSubmitting, StateResultReady:
		state := c.state
		c.mu.Unlock()
		return nil, &StateError{Op: "submit", State: state}
	}
	if c.image == nil {
		c.mu.Unlock()
		verr := &ValidationError{Reason: ReasonNoImage, Message: "Please upload or capture a photo of the problem first."}
		return nil, verr
	}

	c.touchLocked()
	c.stopVoiceLocked()
	c.state = StateSubmitting
	c.lastError = ""
	c.epoch++
	myEpoch := c.epoch

	req := analyzer.AnalysisRequest{
		Image:       c.image.Data,
		MIMEType:    c.image.MIMEType,
		Description: c.description,
		Category:    c.category,
	}
	imageURL := common.EncodeDataURL(c.image.MIMEType, c.image.Data)
	description := c.description
	c.mu.Unlock()

	result, err := c.analyzer.Analyze(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.epoch != myEpoch || c.state != StateSubmitting {
		// The session was closed or reset while the attempt was in
		// flight; the result no longer has a home.
		c.logger.Info("discarding stale analysis result")
		return nil, &StateError{Op: "submit", State: c.state}
	}

	if err != nil {
		c.state = StateImageReady
		c.lastError = analysisFailureMessage
		c.logger.LogError(context.Background(), err, "analysis attempt failed")
		return nil, &AnalysisError{cause: err}
	}

	item := history.Item{
		ID:              uuid.New().String(),
		Timestamp:       time.Now(),
		ImageURL:        imageURL,
		UserDescription: description,
		Result:          result,
	}
	c.current = &item
	c.state = StateResultReady
	c.touchLocked()

	if c.ownerID != "" && c.historian != nil {
		if qerr := c.historian.AppendAsync(c.ownerID, item); qerr != nil {
			// Persistence never blocks or fails the analysis itself.
			c.logger.Warn("history append not queued", slog.String("error", qerr.Error()))
		}
	}

	return &item, nil
}

// CurrentAnalysis returns the result of a completed session, if any.
func (c *Controller) CurrentAnalysis() *history.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Close releases devices and fences any in-flight submission. It is safe to
// call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
	c.releaseCameraLocked()
	c.stopVoiceLocked()
}
