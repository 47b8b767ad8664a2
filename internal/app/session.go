package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/facetalk/internal/avatar/driver"
	"github.com/MrWong99/facetalk/internal/avatar/rig"
	"github.com/MrWong99/facetalk/internal/interaction"
	"github.com/MrWong99/facetalk/internal/observe"
	"github.com/MrWong99/facetalk/internal/speech"
	"github.com/MrWong99/facetalk/pkg/audio"
	"github.com/MrWong99/facetalk/pkg/audio/opus"
)

// Client message types.
const (
	msgHello         = "hello"
	msgListen        = "listen"
	msgStopListening = "stop_listening"
	msgAsk           = "ask"
	msgSpeak         = "speak"
	msgStop          = "stop"
	msgPointer       = "pointer"
	msgDragStart     = "drag_start"
	msgDragMove      = "drag_move"
	msgDragEnd       = "drag_end"
	msgTap           = "tap"
	msgAutoAnimate   = "auto_animate"
)

// Server message types not covered by [interaction.EventKind].
const (
	msgReady = "ready"
	msgFrame = "frame"
	msgAudio = "audio"
)

const (
	codecPCM  = "pcm"
	codecOpus = "opus"

	maxMessageSize = 1 << 20
	writeTimeout   = 5 * time.Second
	micBuffer      = 64
)

// opusOutput is the format synthesized speech is resampled to before Opus
// encoding.
var opusOutput = audio.Format{SampleRate: 48000, Channels: 1}

type clientMessage struct {
	Type string `json:"type"`

	// hello
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`

	// ask, speak
	Text string `json:"text,omitempty"`

	// pointer, drag_start, drag_move
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// auto_animate
	Enabled bool `json:"enabled"`
}

type readyMessage struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id"`
	Codec     string   `json:"codec"`
	FrameRate int      `json:"frame_rate"`
	Listen    bool     `json:"listen"`
	Morphs    []string `json:"morphs"`
	Bones     []string `json:"bones"`
}

// audioMessage announces the format of the binary audio messages that
// follow it.
type audioMessage struct {
	Type       string `json:"type"`
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type frameMessage struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	driver.Frame
}

// Session is one websocket client: its own animation driver, controller
// and speaker over the shared matcher and providers.
type Session struct {
	id        string
	remote    string
	conn      *websocket.Conn
	rig       *rig.Rig
	driver    *driver.Driver
	ctrl      *interaction.Controller
	metrics   *observe.Metrics
	interval  time.Duration
	frameRate int
	listen    bool

	ctx     context.Context
	cancel  context.CancelFunc
	bg      sync.WaitGroup
	closing atomic.Bool

	autoAnimate   atomic.Bool
	reducedMotion atomic.Bool

	mu      sync.Mutex
	codec   string
	mic     chan []byte
	micConv *audio.FormatConverter
	decoder *opus.Decoder
	out     audio.Format
	outConv *audio.FormatConverter
	encoder *opus.Encoder
}

var _ managed = (*Session)(nil)

// handleSession upgrades to a websocket and runs a session until either
// side closes it.
func (a *App) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.cfg.Server.AllowedOrigins,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s, err := a.newSession(r.Context(), conn, r.RemoteAddr)
	if err != nil {
		observe.Logger(r.Context()).Error("session setup failed", "err", err)
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	a.sessions.Add(s)
	defer a.sessions.Remove(s.id)

	if err := s.Run(); err != nil {
		observe.Logger(s.ctx).Warn("session ended with error", "err", err)
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (a *App) newSession(ctx context.Context, conn *websocket.Conn, remote string) (*Session, error) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(observe.WithSessionID(ctx, id))

	d, err := driver.New(a.rig)
	if err != nil {
		cancel()
		return nil, err
	}
	s := &Session{
		id:        id,
		remote:    remote,
		conn:      conn,
		rig:       a.rig,
		driver:    d,
		metrics:   a.metrics,
		interval:  a.cfg.Avatar.FrameInterval(),
		frameRate: a.cfg.Avatar.FrameRate,
		listen:    a.providers.STT != nil,
		ctx:       ctx,
		cancel:    cancel,
		codec:     codecPCM,
		micConv:   &audio.FormatConverter{Source: audio.Recognition, Target: audio.Recognition},
	}

	opts := []interaction.Option{
		interaction.WithAvatar(d),
		interaction.WithMetrics(a.metrics),
	}
	if a.corrector != nil {
		opts = append(opts, interaction.WithCorrector(a.corrector))
	}
	if a.providers.STT != nil {
		opts = append(opts, interaction.WithListener(speech.NewListener(a.providers.STT,
			speech.WithLanguage(a.cfg.Voice.Language),
			speech.WithKeywords(a.keywords),
			speech.WithProviderName(a.providers.STTName),
			speech.WithListenerMetrics(a.metrics),
		)))
	}

	voice := a.voiceProfile()
	newSpeaker := func(obs speech.Observer) (interaction.Speaker, error) {
		sp, err := speech.NewSpeaker(a.providers.TTS, audio.SinkFunc(s.writeAudio),
			speech.WithObserver(obs),
			speech.WithVoice(voice),
			speech.WithWPM(a.cfg.Voice.WPM),
			speech.WithDecay(a.cfg.Voice.Decay(), a.cfg.Voice.DecayFactor),
			speech.WithSpeakerName(a.providers.TTSName),
			speech.WithSpeakerMetrics(a.metrics),
		)
		if err != nil {
			return nil, err
		}
		return sp, nil
	}
	ctrl, err := interaction.New(a.matcher, newSpeaker, opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	s.ctrl = ctrl
	return s, nil
}

// Info implements managed.
func (s *Session) Info() SessionInfo {
	return SessionInfo{SessionID: s.id, RemoteAddr: s.remote}
}

// SetAvatarFlags implements managed. Clients may override auto-animate
// afterwards with an auto_animate message.
func (s *Session) SetAvatarFlags(autoAnimate, reducedMotion bool) {
	s.autoAnimate.Store(autoAnimate)
	s.reducedMotion.Store(reducedMotion)
}

// Close ends the session with a going-away close handshake. Run returns
// shortly after.
func (s *Session) Close() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	// The read loop must stay alive until the client answers the close
	// frame, so the session context is cancelled only afterwards.
	_ = s.conn.Close(websocket.StatusGoingAway, "server shutting down")
	s.cancel()
}

// Run serves the session until the client disconnects or Close is called.
// A normal closure by either side returns nil.
func (s *Session) Run() error {
	defer s.cancel()

	events, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	err := s.writeJSON(s.ready())
	if err == nil {
		g, gctx := errgroup.WithContext(s.ctx)
		g.Go(func() error { return s.readLoop(gctx) })
		g.Go(func() error { return s.frameLoop(gctx) })
		g.Go(func() error { return s.eventLoop(gctx, events) })
		g.Go(func() error {
			// Reads are not bound to gctx; a failed loop unblocks them here.
			<-gctx.Done()
			if !s.closing.Load() {
				_ = s.conn.CloseNow()
			}
			return nil
		})
		err = g.Wait()
	}

	s.cancel()
	s.stopListening()
	s.bg.Wait()
	s.ctrl.StopSpeaking()

	if s.closing.Load() || isClosure(err) {
		return nil
	}
	return err
}

func isClosure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}

func (s *Session) ready() readyMessage {
	s.mu.Lock()
	codec := s.codec
	s.mu.Unlock()

	bones := s.rig.Bones()
	names := make([]string, len(bones))
	for i, b := range bones {
		names[i] = b.Name
	}
	return readyMessage{
		Type:      msgReady,
		SessionID: s.id,
		Codec:     codec,
		FrameRate: s.frameRate,
		Listen:    s.listen,
		Morphs:    s.rig.Morphs(),
		Bones:     names,
	}
}

// ── Inbound ───────────────────────────────────────────────────────────────────

// readLoop reads on a context Close never cancels: cancelling a blocked
// Read drops the connection without a close handshake.
func (s *Session) readLoop(ctx context.Context) error {
	readCtx := context.WithoutCancel(ctx)
	for {
		typ, data, err := s.conn.Read(readCtx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			s.handleAudio(data)
		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				observe.Logger(ctx).Debug("malformed client message", "err", err)
				continue
			}
			if err := s.handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// handle dispatches one client message. Only write failures are returned.
func (s *Session) handle(ctx context.Context, msg clientMessage) error {
	log := observe.Logger(ctx)
	switch msg.Type {
	case msgHello:
		s.negotiate(ctx, msg)
		return s.writeJSON(s.ready())
	case msgListen:
		s.startListening(ctx)
	case msgStopListening:
		s.stopListening()
	case msgAsk:
		if _, err := s.ctrl.Ask(ctx, msg.Text); err != nil && !errors.Is(err, speech.ErrEmptyText) {
			log.Warn("ask failed", "err", err)
		}
	case msgSpeak:
		if _, err := s.ctrl.Speak(ctx, msg.Text); err != nil && !errors.Is(err, speech.ErrEmptyText) {
			log.Warn("speak failed", "err", err)
		}
	case msgStop:
		s.ctrl.StopSpeaking()
	case msgPointer:
		s.driver.Pointer(msg.X, msg.Y)
	case msgDragStart:
		s.driver.DragStart(msg.X, msg.Y)
	case msgDragMove:
		s.driver.DragMove(msg.X, msg.Y)
	case msgDragEnd:
		s.driver.DragEnd()
	case msgTap:
		s.driver.Tap(time.Now())
	case msgAutoAnimate:
		s.autoAnimate.Store(msg.Enabled)
	default:
		log.Debug("unknown client message", "type", msg.Type)
	}
	return nil
}

// negotiate applies a hello: the microphone codec and format, which also
// selects the codec of synthesized audio.
func (s *Session) negotiate(ctx context.Context, msg clientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codec = codecPCM
	s.decoder = nil
	s.encoder = nil
	s.out = audio.Format{}
	if msg.Codec == codecOpus {
		dec, err := opus.NewDecoder(audio.Recognition)
		if err != nil {
			observe.Logger(ctx).Warn("opus unavailable, falling back to pcm", "err", err)
		} else {
			s.codec = codecOpus
			s.decoder = dec
		}
	}
	src := audio.Recognition
	if msg.SampleRate > 0 {
		src = audio.Format{SampleRate: msg.SampleRate, Channels: max(msg.Channels, 1)}
	}
	s.micConv = &audio.FormatConverter{Source: src, Target: audio.Recognition}
	observe.Logger(ctx).Debug("session negotiated", "codec", s.codec, "mic_format", src.String())
}

func (s *Session) startListening(ctx context.Context) {
	s.mu.Lock()
	if s.mic != nil {
		s.mu.Unlock()
		return
	}
	mic := make(chan []byte, micBuffer)
	s.mic = mic
	s.mu.Unlock()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_, err := s.ctrl.StartListening(ctx, mic)

		s.mu.Lock()
		if s.mic == mic {
			close(mic)
			s.mic = nil
		}
		s.mu.Unlock()

		if err != nil && !errors.Is(err, speech.ErrUnsupported) && !errors.Is(err, context.Canceled) {
			observe.Logger(ctx).Debug("listening ended without an answer", "err", err)
		}
	}()
}

// stopListening ends the microphone stream; the recognizer then returns
// whatever it finalised. Safe to call when not listening.
func (s *Session) stopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mic != nil {
		close(s.mic)
		s.mic = nil
	}
}

// handleAudio forwards one microphone message while listening, converted to
// the recognition format. Audio outside a listening window is dropped.
func (s *Session) handleAudio(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mic == nil {
		return
	}
	var pcm []byte
	if s.decoder != nil {
		out, err := s.decoder.Decode(data)
		if err != nil {
			slog.Debug("dropping undecodable opus packet", "session_id", s.id, "err", err)
			return
		}
		pcm = out
	} else {
		pcm = s.micConv.Convert(data)
	}
	if len(pcm) == 0 {
		return
	}
	select {
	case s.mic <- pcm:
	default:
		slog.Debug("microphone buffer full, dropping audio", "session_id", s.id)
	}
}

// ── Outbound ──────────────────────────────────────────────────────────────────

func (s *Session) frameLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := time.Now()
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			snap := s.ctrl.Snapshot()
			start := time.Now()
			f := s.driver.Step(dt, driver.Input{
				Speaking:      snap.Speaking,
				Viseme:        snap.Viseme,
				AutoAnimate:   s.autoAnimate.Load(),
				ReducedMotion: s.reducedMotion.Load(),
			})
			if s.metrics != nil {
				s.metrics.RecordFrame(ctx, time.Since(start))
			}

			seq++
			if err := s.writeJSON(frameMessage{Type: msgFrame, Seq: seq, Frame: f}); err != nil {
				return err
			}
		}
	}
}

func (s *Session) eventLoop(ctx context.Context, events <-chan interaction.Event) error {
	wasSpeaking := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.writeJSON(ev); err != nil {
				return err
			}
			if wasSpeaking && !ev.Session.Speaking {
				if err := s.flushAudio(); err != nil {
					return err
				}
			}
			wasSpeaking = ev.Session.Speaking
		}
	}
}

// writeAudio is the speaker's sink. PCM clients receive the chunk as is;
// Opus clients receive 20 ms packets at 48 kHz. A format announcement
// precedes the first chunk and every format change.
//
// ctx belongs to one speech generation and is only checked between
// messages. A cancelled write context makes the websocket library close the
// connection, so an interrupted answer must never reach conn.Write.
func (s *Session) writeAudio(ctx context.Context, pcm []byte, f audio.Format) error {
	f.Channels = max(f.Channels, 1)

	s.mu.Lock()
	var (
		announce *audioMessage
		packets  [][]byte
	)
	switch s.codec {
	case codecOpus:
		if s.encoder == nil || s.out != f {
			enc, err := opus.NewEncoder(opusOutput)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			s.encoder = enc
			s.out = f
			s.outConv = &audio.FormatConverter{Source: f, Target: opusOutput}
			announce = &audioMessage{Type: msgAudio, Codec: codecOpus, SampleRate: opusOutput.SampleRate, Channels: opusOutput.Channels}
		}
		var err error
		packets, err = s.encoder.Encode(s.outConv.Convert(pcm))
		if err != nil {
			s.mu.Unlock()
			return err
		}
	default:
		if s.out != f {
			s.out = f
			announce = &audioMessage{Type: msgAudio, Codec: codecPCM, SampleRate: f.SampleRate, Channels: f.Channels}
		}
		packets = [][]byte{pcm}
	}
	s.mu.Unlock()

	if announce != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeJSON(announce); err != nil {
			return err
		}
	}
	for _, p := range packets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(websocket.MessageBinary, p); err != nil {
			return err
		}
	}
	return nil
}

// flushAudio sends the partial Opus frame left over at the end of an answer.
func (s *Session) flushAudio() error {
	s.mu.Lock()
	if s.encoder == nil {
		s.mu.Unlock()
		return nil
	}
	pkt, err := s.encoder.Flush()
	s.mu.Unlock()
	if err != nil || pkt == nil {
		return err
	}
	return s.write(websocket.MessageBinary, pkt)
}

func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(websocket.MessageText, data)
}

// write bounds every socket write by writeTimeout on the session context.
func (s *Session) write(typ websocket.MessageType, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, typ, data)
}
