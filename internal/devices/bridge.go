package devices

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solvemate/solvemate-api/internal/common"
	"github.com/solvemate/solvemate-api/internal/logger"
	"github.com/solvemate/solvemate-api/internal/session"
)

// wsConn is the subset of *websocket.Conn the bridge needs. Tests
// substitute an in-memory pipe.
type wsConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Bridge multiplexes one session's device commands over its websocket. A
// session has at most one connected device; reconnecting replaces the old
// connection and fails whatever was waiting on it.
type Bridge struct {
	sessionID    string
	replyTimeout time.Duration
	speechIdle   time.Duration
	logger       *logger.Logger

	mu         sync.Mutex
	conn       wsConn
	pending    map[int64]chan DeviceMessage
	speech     chan session.SpeechEvent
	lastSpeech time.Time
	nextID     int64

	writeMu sync.Mutex
}

func NewBridge(sessionID string, replyTimeout, speechIdle time.Duration, log *logger.Logger) *Bridge {
	return &Bridge{
		sessionID:    sessionID,
		replyTimeout: replyTimeout,
		speechIdle:   speechIdle,
		logger:       log.WithComponent("device-bridge").WithFields(map[string]interface{}{"session_id": sessionID}),
		pending:      make(map[int64]chan DeviceMessage),
	}
}

// Attach binds a freshly upgraded connection and starts its read loop.
func (b *Bridge) Attach(conn wsConn) {
	b.mu.Lock()
	old := b.conn
	b.conn = conn
	b.failPendingLocked()
	b.mu.Unlock()

	if old != nil {
		old.Close()
	}

	go b.readLoop(conn)
}

// Detach drops the current connection, failing all waiters.
func (b *Bridge) Detach() {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.failPendingLocked()
	b.endSpeechLocked()
	b.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (b *Bridge) readLoop(conn wsConn) {
	for {
		var msg DeviceMessage
		if err := conn.ReadJSON(&msg); err != nil {
			b.handleDisconnect(conn, err)
			return
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) handleDisconnect(conn wsConn, err error) {
	b.mu.Lock()
	if b.conn != conn {
		// A newer connection already replaced this one.
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.failPendingLocked()
	b.endSpeechLocked()
	b.mu.Unlock()

	conn.Close()
	b.logger.Info("device disconnected", slog.String("error", err.Error()))
}

func (b *Bridge) dispatch(msg DeviceMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.ID != 0 {
		if ch, ok := b.pending[msg.ID]; ok {
			delete(b.pending, msg.ID)
			ch <- msg
		}
		return
	}

	if b.speech == nil {
		return
	}
	var ev session.SpeechEvent
	switch msg.Type {
	case MsgTranscript:
		ev = session.SpeechEvent{Kind: session.SpeechResult, Transcript: msg.Text}
	case MsgSpeechError:
		ev = session.SpeechEvent{Kind: session.SpeechFailure, Reason: msg.Reason}
	case MsgSpeechEnd:
		ev = session.SpeechEvent{Kind: session.SpeechEnd}
	default:
		b.logger.Debug("unknown device message", slog.String("type", msg.Type))
		return
	}

	b.lastSpeech = time.Now()
	select {
	case b.speech <- ev:
	default:
		b.logger.Warn("speech event dropped, consumer lagging", slog.String("type", msg.Type))
	}
}

// failPendingLocked closes every waiting reply channel; waiters observe the
// close as a disconnect.
func (b *Bridge) failPendingLocked() {
	for id, ch := range b.pending {
		delete(b.pending, id)
		close(ch)
	}
}

func (b *Bridge) endSpeechLocked() {
	if b.speech != nil {
		close(b.speech)
		b.speech = nil
	}
}

// request sends one command and waits for its reply.
func (b *Bridge) request(ctx context.Context, cmd Command) (DeviceMessage, error) {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return DeviceMessage{}, fmt.Errorf("no device connected for session %s", b.sessionID)
	}
	b.nextID++
	cmd.ID = b.nextID
	ch := make(chan DeviceMessage, 1)
	b.pending[cmd.ID] = ch
	b.mu.Unlock()

	b.writeMu.Lock()
	err := conn.WriteJSON(cmd)
	b.writeMu.Unlock()
	if err != nil {
		b.forget(cmd.ID)
		return DeviceMessage{}, fmt.Errorf("device write failed: %w", err)
	}

	timer := time.NewTimer(b.replyTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			return DeviceMessage{}, fmt.Errorf("device disconnected")
		}
		if msg.Type == MsgError {
			return DeviceMessage{}, fmt.Errorf("device rejected %s: %s", cmd.Type, msg.Reason)
		}
		return msg, nil
	case <-ctx.Done():
		b.forget(cmd.ID)
		return DeviceMessage{}, ctx.Err()
	case <-timer.C:
		b.forget(cmd.ID)
		return DeviceMessage{}, fmt.Errorf("device did not answer %s within %s", cmd.Type, b.replyTimeout)
	}
}

func (b *Bridge) forget(id int64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// OpenRearCamera implements session.DeviceGateway.
func (b *Bridge) OpenRearCamera(ctx context.Context) (session.CameraDevice, error) {
	reply, err := b.request(ctx, Command{Type: CmdOpenCamera})
	if err != nil {
		return nil, err
	}
	return &remoteCamera{bridge: b, torchSupported: reply.TorchSupported}, nil
}

// OpenSpeech implements session.DeviceGateway.
func (b *Bridge) OpenSpeech(ctx context.Context) (session.SpeechSession, error) {
	b.mu.Lock()
	if b.speech != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("speech capture already active")
	}
	events := make(chan session.SpeechEvent, 32)
	b.speech = events
	b.lastSpeech = time.Now()
	b.mu.Unlock()

	if _, err := b.request(ctx, Command{Type: CmdStartSpeech}); err != nil {
		b.mu.Lock()
		if b.speech == events {
			b.speech = nil
		}
		b.mu.Unlock()
		return nil, err
	}

	if b.speechIdle > 0 {
		go b.speechWatchdog(events)
	}

	return &remoteSpeech{bridge: b, events: events}, nil
}

// speechWatchdog ends a recognition session that went silent. Browser
// recognizers can stall without ever reporting an error; the controller
// sees a normal end-of-session.
func (b *Bridge) speechWatchdog(events chan session.SpeechEvent) {
	for {
		b.mu.Lock()
		if b.speech != events {
			b.mu.Unlock()
			return
		}
		idle := time.Since(b.lastSpeech)
		if idle >= b.speechIdle {
			select {
			case events <- session.SpeechEvent{Kind: session.SpeechEnd}:
			default:
			}
			b.speech = nil
			close(events)
			b.mu.Unlock()
			b.logger.Info("speech session ended after idle timeout")
			return
		}
		b.mu.Unlock()
		time.Sleep(b.speechIdle - idle)
	}
}

type remoteCamera struct {
	bridge         *Bridge
	torchSupported bool
}

func (r *remoteCamera) TorchSupported() bool { return r.torchSupported }

func (r *remoteCamera) SetTorch(ctx context.Context, on bool) error {
	_, err := r.bridge.request(ctx, Command{Type: CmdSetTorch, On: &on})
	return err
}

func (r *remoteCamera) CaptureFrame(ctx context.Context) (session.Frame, error) {
	reply, err := r.bridge.request(ctx, Command{Type: CmdCapture})
	if err != nil {
		return session.Frame{}, err
	}

	data, sniffed, err := common.DecodeBase64MaybeDataURL(reply.Data)
	if err != nil {
		return session.Frame{}, fmt.Errorf("bad frame payload: %w", err)
	}
	return session.Frame{Data: data, MIMEType: common.PickMIME(reply.MIME, sniffed, data)}, nil
}

func (r *remoteCamera) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.bridge.replyTimeout)
	defer cancel()

	// Best effort: the client also tears the tracks down when the socket
	// goes away.
	_, err := r.bridge.request(ctx, Command{Type: CmdCloseCamera})
	return err
}

type remoteSpeech struct {
	bridge *Bridge
	events chan session.SpeechEvent
	once   sync.Once
}

func (r *remoteSpeech) Events() <-chan session.SpeechEvent { return r.events }

func (r *remoteSpeech) Stop() error {
	r.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.bridge.replyTimeout)
		defer cancel()
		if _, err := r.bridge.request(ctx, Command{Type: CmdStopSpeech}); err != nil {
			r.bridge.logger.Debug("stop_speech not acknowledged", slog.String("error", err.Error()))
		}

		r.bridge.mu.Lock()
		if r.bridge.speech == r.events {
			r.bridge.speech = nil
			close(r.events)
		}
		r.bridge.mu.Unlock()
	})
	return nil
}
