package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	configpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/config"
	envelopepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/envelope"
	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
	metadatapkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/metadata"
)

// StreamDirection declares which way chunk traffic flows on a channel.
type StreamDirection string

const (
	DirectionUpload   StreamDirection = "upload"
	DirectionDownload StreamDirection = "download"
	DirectionInvoke   StreamDirection = "stream-invoke"
)

// StreamState is the lifecycle of one stream session. A session leaves
// StreamOpen exactly once; all later transition attempts are ignored.
type StreamState string

const (
	StreamOpen      StreamState = "open"
	StreamClosed    StreamState = "closed"
	StreamErrored   StreamState = "errored"
	StreamCancelled StreamState = "cancelled"
)

// frameSender publishes a frame toward the session's peer.
type frameSender func(f frame) error

// streamSession is one side of a live chunk stream. A session either
// receives chunks (incoming is non-nil) or produces them, never both.
// Sequence numbers start at 1 and must arrive gapless and in order.
type streamSession struct {
	id        string
	channel   string
	direction StreamDirection
	window    WindowID
	send      frameSender
	span      *SpanHandle
	engine    *streamEngine

	mu           sync.Mutex
	state        StreamState
	err          error
	expectSeq    uint64
	sendSeq      uint64
	paused       bool
	resumeGate   chan struct{}
	incoming     chan []byte
	done         chan struct{}
	lastActivity time.Time

	hiWater int
	loWater int
}

// transition moves the session out of StreamOpen. Returns false when the
// session already reached a terminal state; the first caller wins.
func (s *streamSession) transition(to StreamState, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StreamOpen {
		return false
	}
	s.state = to
	s.err = err
	close(s.done)
	if s.resumeGate != nil {
		close(s.resumeGate)
		s.resumeGate = nil
	}
	return true
}

// terminalErr maps the session's terminal state to the error a blocked
// reader or writer should see. Returns nil while the session is open.
func (s *streamSession) terminalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StreamClosed:
		return errspkg.ErrStreamClosed
	case StreamCancelled:
		return errspkg.ErrStreamCancelled
	case StreamErrored:
		if s.err != nil {
			return s.err
		}
		return errspkg.ErrStreamErrored
	default:
		return nil
	}
}

func (s *streamSession) noteActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// onChunk accepts one incoming chunk. Called inline from the demux loop so
// per-stream ordering is preserved; it never blocks. A sequence violation or
// buffer overrun fails the whole stream, there is no skip or reorder.
func (s *streamSession) onChunk(seq uint64, payload []byte) {
	s.mu.Lock()
	if s.state != StreamOpen {
		s.mu.Unlock()
		return
	}
	if seq != s.expectSeq {
		seqErr := &errspkg.SequenceError{StreamID: s.id, Expected: s.expectSeq, Got: seq}
		s.mu.Unlock()
		s.fail(seqErr, true)
		return
	}
	s.expectSeq++
	s.lastActivity = time.Now()

	select {
	case s.incoming <- payload:
	default:
		s.mu.Unlock()
		s.fail(fmt.Errorf("stream %s: peer ignored pause, chunk buffer overrun at seq %d", s.id, seq), true)
		return
	}

	notifyPause := false
	if !s.paused && len(s.incoming) >= s.hiWater {
		s.paused = true
		notifyPause = true
	}
	s.mu.Unlock()

	if s.span != nil {
		s.span.AddChunk(len(payload))
	}
	if notifyPause {
		_ = s.send(frame{Type: framePause, StreamID: s.id})
	}
}

// afterDequeue lifts backpressure once the consumer drained below the low
// watermark.
func (s *streamSession) afterDequeue() {
	s.mu.Lock()
	notifyResume := s.paused && s.state == StreamOpen && len(s.incoming) <= s.loWater
	if notifyResume {
		s.paused = false
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if notifyResume {
		_ = s.send(frame{Type: frameResume, StreamID: s.id})
	}
}

// onEnd handles the producer's end frame. Buffered chunks stay readable.
func (s *streamSession) onEnd() {
	if s.transition(StreamClosed, nil) {
		s.engine.finish(s, nil)
	}
}

// onError handles an error frame from the peer.
func (s *streamSession) onError(payload []byte) {
	err := envelopepkg.Deserialize(envelopepkg.Decode(payload))
	if s.transition(StreamErrored, err) {
		s.engine.finish(s, err)
	}
}

// onCancel handles the consumer's cancel frame. Idempotent: a cancel racing
// a local end or error is simply ignored.
func (s *streamSession) onCancel() {
	if s.transition(StreamCancelled, errspkg.ErrStreamCancelled) {
		s.engine.finish(s, errspkg.ErrStreamCancelled)
	}
}

// onPause and onResume gate the producing side.
func (s *streamSession) onPause() {
	s.mu.Lock()
	if s.state == StreamOpen && s.resumeGate == nil {
		s.resumeGate = make(chan struct{})
	}
	s.mu.Unlock()
}

func (s *streamSession) onResume() {
	s.mu.Lock()
	if s.resumeGate != nil {
		close(s.resumeGate)
		s.resumeGate = nil
	}
	s.mu.Unlock()
}

// fail moves the session to errored and, when notify is set, tells the peer
// via an error frame carrying the serialized envelope.
func (s *streamSession) fail(err error, notify bool) {
	if !s.transition(StreamErrored, err) {
		return
	}
	s.engine.finish(s, err)
	if notify {
		payload, encErr := envelopepkg.Encode(envelopepkg.Serialize(err))
		if encErr != nil {
			payload = nil
		}
		_ = s.send(frame{Type: frameError, StreamID: s.id, Payload: payload})
	}
}

// cancel is the consumer-initiated teardown. Safe to call repeatedly; only
// the first call sends the cancel frame.
func (s *streamSession) cancel() error {
	if !s.transition(StreamCancelled, errspkg.ErrStreamCancelled) {
		return nil
	}
	s.engine.finish(s, errspkg.ErrStreamCancelled)
	return s.send(frame{Type: frameCancel, StreamID: s.id})
}

// close is the producer-initiated clean finish.
func (s *streamSession) close() error {
	if !s.transition(StreamClosed, nil) {
		return s.terminalErr()
	}
	s.engine.finish(s, nil)
	return s.send(frame{Type: frameEnd, StreamID: s.id})
}

// streamEngine tracks the live sessions of one peer. Sessions remove
// themselves on their terminal transition; the reaper additionally sweeps
// receiving sessions whose producer went silent.
type streamEngine struct {
	mu          sync.Mutex
	sessions    map[string]*streamSession
	bufferSize  int
	idleTimeout time.Duration
	logger      loggingpkg.ServiceLogger
	metrics     *dispatchMetrics
}

func newStreamEngine(conf *configpkg.Config, logger loggingpkg.ServiceLogger, metrics *dispatchMetrics) *streamEngine {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	buffer := configpkg.DefaultStreamBufferSize
	var idle time.Duration
	if conf != nil {
		buffer = conf.EffectiveStreamBufferSize()
		idle = conf.StreamIdleTimeout
	}
	return &streamEngine{
		sessions:    make(map[string]*streamSession),
		bufferSize:  buffer,
		idleTimeout: idle,
		logger:      logger,
		metrics:     metrics,
	}
}

func (e *streamEngine) newSession(id, channel string, dir StreamDirection, window WindowID, receiving bool, send frameSender, span *SpanHandle) *streamSession {
	s := &streamSession{
		id:           id,
		channel:      channel,
		direction:    dir,
		window:       window,
		send:         send,
		span:         span,
		engine:       e,
		state:        StreamOpen,
		expectSeq:    1,
		done:         make(chan struct{}),
		lastActivity: time.Now(),
	}
	if receiving {
		s.incoming = make(chan []byte, e.bufferSize)
		s.hiWater = e.bufferSize * 3 / 4
		if s.hiWater < 1 {
			s.hiWater = 1
		}
		s.loWater = e.bufferSize / 4
	}

	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()

	e.metrics.streamOpened()
	e.logger.Debug("Stream session opened", loggingpkg.LogFields{
		"stream_id": id,
		"channel":   channel,
		"direction": string(dir),
	})
	return s
}

func (e *streamEngine) get(id string) (*streamSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

// finish removes a terminal session from the index. Called exactly once,
// by whichever path won the terminal transition.
func (e *streamEngine) finish(s *streamSession, err error) {
	e.mu.Lock()
	delete(e.sessions, s.id)
	e.mu.Unlock()

	e.metrics.streamClosed()
	if s.span != nil {
		if err == errspkg.ErrStreamCancelled {
			s.span.End(errspkg.ErrStreamCancelled)
		} else {
			s.span.End(err)
		}
	}

	fields := loggingpkg.LogFields{"stream_id": s.id, "channel": s.channel}
	if err != nil {
		e.logger.Debug("Stream session finished with error", fields)
	} else {
		e.logger.Debug("Stream session finished", fields)
	}
}

// Active returns the number of live sessions.
func (e *streamEngine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// runReaper sweeps receiving sessions whose peer stopped sending without a
// terminal frame. Disabled when no idle timeout is configured.
func (e *streamEngine) runReaper(ctx context.Context) {
	if e.idleTimeout <= 0 {
		return
	}
	interval := e.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reapIdle(time.Now())
		}
	}
}

func (e *streamEngine) reapIdle(now time.Time) {
	var stale []*streamSession
	e.mu.Lock()
	for _, s := range e.sessions {
		if s.incoming == nil {
			continue
		}
		s.mu.Lock()
		idle := s.state == StreamOpen && now.Sub(s.lastActivity) > e.idleTimeout
		s.mu.Unlock()
		if idle {
			stale = append(stale, s)
		}
	}
	e.mu.Unlock()

	for _, s := range stale {
		e.logger.Error("Reaping idle stream session", nil, loggingpkg.LogFields{
			"stream_id": s.id,
			"channel":   s.channel,
			"idle":      e.idleTimeout.String(),
		})
		s.fail(fmt.Errorf("stream %s: no activity for %s", s.id, e.idleTimeout), true)
	}
}

// closeForWindow tears down every session bound to a closing window.
func (e *streamEngine) closeForWindow(id WindowID, err error) {
	e.mu.Lock()
	var bound []*streamSession
	for _, s := range e.sessions {
		if s.window == id {
			bound = append(bound, s)
		}
	}
	e.mu.Unlock()

	for _, s := range bound {
		if s.transition(StreamErrored, err) {
			e.finish(s, err)
		}
	}
}

// closeAll tears down every live session, used on peer shutdown.
func (e *streamEngine) closeAll(err error) {
	e.mu.Lock()
	live := make([]*streamSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		live = append(live, s)
	}
	e.mu.Unlock()

	for _, s := range live {
		if s.transition(StreamErrored, err) {
			e.finish(s, err)
		}
	}
}

// StreamReader is the consuming end of a stream. Next never reorders and
// never skips: it yields chunks exactly as sent or fails the stream.
type StreamReader struct {
	s *streamSession
}

// Next returns the next chunk. It returns io.EOF after the producer's clean
// end once the buffer is drained, the stream error after a failure, and
// ErrStreamCancelled after a cancel. A cancel discards anything still
// buffered: no chunk is delivered once the session is cancelled.
func (r *StreamReader) Next(ctx context.Context) ([]byte, error) {
	s := r.s
	for {
		if err := s.terminalErr(); err == errspkg.ErrStreamCancelled {
			return nil, err
		}

		select {
		case payload := <-s.incoming:
			s.afterDequeue()
			return payload, nil
		default:
		}

		if err := s.terminalErr(); err != nil {
			if err == errspkg.ErrStreamClosed {
				return nil, io.EOF
			}
			return nil, err
		}

		select {
		case payload := <-s.incoming:
			s.afterDequeue()
			return payload, nil
		case <-s.done:
			// Drain anything buffered before surfacing the terminal state.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Cancel aborts the stream from the consuming side. Idempotent.
func (r *StreamReader) Cancel() error {
	return r.s.cancel()
}

// StreamID returns the session identifier, useful for log correlation.
func (r *StreamReader) StreamID() string {
	return r.s.id
}

// Upload is a client-to-server chunk stream as seen by its handler.
type Upload struct {
	Channel  string
	StreamID string
	Source   WindowID
	Metadata metadatapkg.Metadata

	reader *StreamReader
}

// Next returns the next uploaded chunk, io.EOF on clean completion.
func (u *Upload) Next(ctx context.Context) ([]byte, error) {
	return u.reader.Next(ctx)
}

// Cancel rejects the remainder of the upload.
func (u *Upload) Cancel() error {
	return u.reader.Cancel()
}

// ChunkWriter is the producing end of a stream. Write blocks while the
// consumer holds the stream paused.
type ChunkWriter struct {
	s *streamSession
}

// Write sends one chunk. It honors pause frames from the consumer and
// returns the stream's terminal error once the peer cancelled or failed it.
func (w *ChunkWriter) Write(ctx context.Context, payload []byte) error {
	s := w.s
	for {
		if err := s.terminalErr(); err != nil {
			return err
		}

		s.mu.Lock()
		gate := s.resumeGate
		s.mu.Unlock()
		if gate == nil {
			break
		}

		select {
		case <-gate:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	s.sendSeq++
	seq := s.sendSeq
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if s.span != nil {
		s.span.AddChunk(len(payload))
	}
	return s.send(frame{
		Type:      frameChunk,
		Namespace: NamespaceStream,
		Channel:   s.channel,
		StreamID:  s.id,
		Seq:       seq,
		Direction: s.direction,
		Payload:   payload,
	})
}

// Close finishes the stream cleanly. Further writes fail with
// ErrStreamClosed.
func (w *ChunkWriter) Close() error {
	return w.s.close()
}

// Fail aborts the stream with an error delivered to the consumer.
func (w *ChunkWriter) Fail(err error) {
	w.s.fail(err, true)
}

// Done is closed once the stream reached any terminal state, letting
// producers notice a remote cancel without writing.
func (w *ChunkWriter) Done() <-chan struct{} {
	return w.s.done
}

// StreamID returns the session identifier.
func (w *ChunkWriter) StreamID() string {
	return w.s.id
}
