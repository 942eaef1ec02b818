package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBoundary    = "--frame\r\n"
	defaultReadSize    = 32 * 1024
	defaultIdleTimeout = 15 * time.Second
)

// ErrIdleTimeout ends a session whose body stopped delivering bytes.
var ErrIdleTimeout = errors.New("stream idle timeout")

// Frame is one decoded JPEG image from the stream.
type Frame struct {
	Data       []byte
	Image      image.Image
	Seq        uint64
	ReceivedAt time.Time
}

type Options struct {
	// Client defaults to a client with dial and response-header timeouts
	// and no overall timeout, since the body never ends on its own.
	Client *http.Client
	// OnFrame and OnState run on the session goroutine, except the
	// Connecting and Disconnected events raised directly by Start and Stop,
	// which run on the caller.
	OnFrame func(Frame)
	OnState func(State)
	// Decode defaults to image/jpeg.
	Decode        func([]byte) (image.Image, error)
	MaxBufferSize int
	ReadSize      int
	// IdleTimeout bounds the gap between body reads once the response
	// headers have arrived. It defaults to 15s.
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

type Stats struct {
	Frames  uint64 `json:"frames"`
	Dropped uint64 `json:"dropped"`
}

// Demuxer turns an MJPEG HTTP stream into frames. One session runs at a time.
type Demuxer struct {
	client  *http.Client
	onFrame func(Frame)
	onState func(State)
	decode  func([]byte) (image.Image, error)
	maxBuf  int
	readSz  int
	idle    time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	sess     *session
	lastDone chan struct{}
	state    State
	boundary string

	nextID  atomic.Uint64
	frames  atomic.Uint64
	dropped atomic.Uint64
}

func New(opts Options) *Demuxer {
	d := &Demuxer{
		client:   opts.Client,
		onFrame:  opts.OnFrame,
		onState:  opts.OnState,
		decode:   opts.Decode,
		maxBuf:   opts.MaxBufferSize,
		readSz:   opts.ReadSize,
		idle:     opts.IdleTimeout,
		logger:   opts.Logger,
		state:    State{Kind: Disconnected},
		boundary: defaultBoundary,
	}
	if d.client == nil {
		d.client = defaultClient()
	}
	if d.decode == nil {
		d.decode = decodeJPEG
	}
	if d.readSz <= 0 {
		d.readSz = defaultReadSize
	}
	if d.idle <= 0 {
		d.idle = defaultIdleTimeout
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

func defaultClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: 10 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
		},
	}
}

func decodeJPEG(data []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(data))
}

// Start stops any running session and opens a new one against endpoint.
// The previous session's goroutine has exited before the new one connects,
// unless Start is called from one of that session's callbacks.
// Connection failures are reported through OnState, not returned.
func (d *Demuxer) Start(ctx context.Context, endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("stream endpoint is empty")
	}

	sctx, cancel := context.WithCancelCause(ctx)
	req, err := http.NewRequestWithContext(sctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel(nil)
		return fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Accept", "multipart/x-mixed-replace")

	s := &session{
		d:      d,
		id:     d.nextID.Add(1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	old := d.sess
	d.sess = s
	d.lastDone = s.done
	d.boundary = defaultBoundary
	d.mu.Unlock()

	if old != nil {
		inCallback := old.inCallback()
		d.stopSession(old)
		if !inCallback {
			<-old.done
		}
	}

	s.deliver(func() { d.emit(s, State{Kind: Connecting}) })
	go d.run(sctx, s, req)
	return nil
}

// Stop cancels the running session, if any. It is safe to call repeatedly
// and from inside OnFrame or OnState.
func (d *Demuxer) Stop() {
	d.mu.Lock()
	s := d.sess
	d.sess = nil
	d.mu.Unlock()

	d.stopSession(s)
}

// Done returns a channel closed when the most recently started session's
// goroutine exits. It is nil before the first Start.
func (d *Demuxer) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastDone
}

func (d *Demuxer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Boundary returns the multipart boundary marker advertised by the current
// response. It is informational only.
func (d *Demuxer) Boundary() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.boundary
}

func (d *Demuxer) Stats() Stats {
	return Stats{Frames: d.frames.Load(), Dropped: d.dropped.Load()}
}

func (d *Demuxer) stopSession(s *session) {
	if s == nil {
		return
	}
	s.cancel(nil)
	if s.close() {
		d.emit(s, State{Kind: Disconnected})
	}
}

func (d *Demuxer) run(ctx context.Context, s *session, req *http.Request) {
	defer close(s.done)

	err := d.read(ctx, s, req)
	if ctx.Err() != nil {
		// Cancelled by Stop or by the caller's context; not a transport failure.
		err = nil
		if cause := context.Cause(ctx); errors.Is(cause, ErrIdleTimeout) {
			err = fmt.Errorf("no stream data for %s: %w", d.idle, cause)
		}
	}
	if err != nil {
		d.logger.Warn("mjpeg stream failed", "url", req.URL.Redacted(), "error", err)
		s.deliver(func() { d.emit(s, State{Kind: Error, Err: err}) })
	}
	if s.close() {
		d.emit(s, State{Kind: Disconnected})
	}

	d.mu.Lock()
	if d.sess == s {
		d.sess = nil
	}
	d.mu.Unlock()
}

func (d *Demuxer) read(ctx context.Context, s *session, req *http.Request) error {
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	boundary := boundaryMarker(resp.Header.Get("Content-Type"))
	d.mu.Lock()
	if d.sess == s {
		d.boundary = boundary
	}
	d.mu.Unlock()

	buf := NewFrameBuffer(d.maxBuf)
	chunk := make([]byte, d.readSz)
	first := true

	idle := time.AfterFunc(d.idle, func() { s.cancel(ErrIdleTimeout) })
	defer idle.Stop()

	for {
		idle.Reset(d.idle)
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			if first {
				first = false
				s.deliver(func() { d.emit(s, State{Kind: Streaming}) })
			}
			buf.Write(chunk[:n])
			for {
				data, ok := buf.Next()
				if !ok {
					break
				}
				d.handleFrame(s, data)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("stream read failed: %w", rerr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (d *Demuxer) handleFrame(s *session, data []byte) {
	img, err := d.decode(data)

	// A replaced session must not touch the shared counters.
	d.mu.Lock()
	if d.sess != s {
		d.mu.Unlock()
		return
	}
	var seq uint64
	if err != nil {
		d.dropped.Add(1)
	} else {
		seq = d.frames.Add(1)
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Debug("dropped undecodable frame", "bytes", len(data), "error", err)
		return
	}

	frame := Frame{
		Data:       data,
		Image:      img,
		Seq:        seq,
		ReceivedAt: time.Now(),
	}
	s.deliver(func() {
		d.emit(s, State{Kind: Streaming})
		if d.onFrame != nil {
			d.onFrame(frame)
		}
	})
}

// emit publishes st for session s, suppressing repeats of the same kind.
func (d *Demuxer) emit(s *session, st State) {
	st.Session = s.id

	d.mu.Lock()
	if s.emitted && s.last == st.Kind && st.Kind != Error {
		d.mu.Unlock()
		return
	}
	s.emitted = true
	s.last = st.Kind
	if d.sess == s || d.sess == nil {
		d.state = st
	}
	d.mu.Unlock()

	if d.onState != nil {
		d.onState(st)
	}
}

func boundaryMarker(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return defaultBoundary
	}
	b := strings.TrimPrefix(params["boundary"], "--")
	if b == "" {
		return defaultBoundary
	}
	return "--" + b + "\r\n"
}

// session is one Start..Stop lifetime. Callbacks for a session are
// delivered one at a time; once closed, it delivers nothing further except
// the single Disconnected owed to an in-flight callback.
type session struct {
	d      *Demuxer
	id     uint64
	cancel context.CancelCauseFunc
	done   chan struct{}

	// guarded by d.mu
	emitted bool
	last    StateKind

	mu         sync.Mutex
	closed     bool
	delivering bool
	owed       bool
}

func (s *session) deliver(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	fn()

	s.mu.Lock()
	s.delivering = false
	owed := s.owed
	s.owed = false
	s.mu.Unlock()

	if owed {
		s.d.emit(s, State{Kind: Disconnected})
	}
}

// inCallback reports whether one of the session's callbacks is running.
func (s *session) inCallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivering
}

// close marks the session finished. It reports true when the caller must
// emit Disconnected itself; when a callback is in flight the event is
// handed to deliver instead.
func (s *session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	if s.delivering {
		s.owed = true
		return false
	}
	return true
}
