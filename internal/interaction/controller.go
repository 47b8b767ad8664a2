// Package interaction orchestrates one avatar conversation: listen for a
// question, correct and match the transcript, speak the answer, and keep a
// snapshot of the session that the animation loop reads every frame.
//
// A [Controller] is safe for concurrent use. It implements [speech.Observer]
// so the speaker it owns reports playback back into the session.
package interaction

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/facetalk/internal/avatar/driver"
	"github.com/MrWong99/facetalk/internal/avatar/viseme"
	"github.com/MrWong99/facetalk/internal/observe"
	"github.com/MrWong99/facetalk/internal/qa"
	"github.com/MrWong99/facetalk/internal/speech"
	"github.com/MrWong99/facetalk/internal/transcript"
	"github.com/MrWong99/facetalk/pkg/types"
)

// ErrBusy is returned by StartListening while a recognition session is
// already running.
var ErrBusy = errors.New("interaction: already listening")

// UnsupportedNotice is the user-facing message sent when recognition is not
// available.
const UnsupportedNotice = "Speech recognition is not available. You can still type your question."

// Listener runs one recognition session. Satisfied by [speech.Listener].
type Listener interface {
	Listen(ctx context.Context, pcm <-chan []byte) (types.Transcript, error)
}

// Speaker plays one answer at a time. Satisfied by [speech.Speaker].
type Speaker interface {
	Speak(ctx context.Context, text string) (uint64, error)
	Stop() bool
	Current() uint64
}

// Matcher answers a question. Satisfied by [qa.Matcher].
type Matcher interface {
	Match(utterance string) qa.Answer
}

// Avatar receives the expression bias of each answer. Satisfied by
// [driver.Driver].
type Avatar interface {
	SetExpression(e driver.Expression)
}

// SpeakerFactory builds the speaker that will report to obs.
type SpeakerFactory func(obs speech.Observer) (Speaker, error)

// Session is the observable state of the conversation.
type Session struct {
	Listening  bool         `json:"listening"`
	Speaking   bool         `json:"speaking"`
	Transcript string       `json:"transcript"`
	Answer     string       `json:"answer"`
	Emotion    qa.Emotion   `json:"emotion"`
	Viseme     viseme.State `json:"viseme"`
}

// EventKind discriminates [Event].
type EventKind string

const (
	// EventState carries a new session snapshot.
	EventState EventKind = "state"

	// EventNotice carries a user-facing message.
	EventNotice EventKind = "notice"
)

// Event is delivered to subscribers. Viseme-only changes are not published;
// read them from [Controller.Snapshot].
type Event struct {
	Kind    EventKind `json:"type"`
	Session Session   `json:"session"`
	Notice  string    `json:"notice,omitempty"`
}

// Option configures a [Controller].
type Option func(*Controller)

// WithListener enables StartListening. Without one, StartListening reports
// [speech.ErrUnsupported].
func WithListener(l Listener) Option {
	return func(c *Controller) { c.listener = l }
}

// WithCorrector rewrites transcripts toward the corpus vocabulary before
// matching.
func WithCorrector(tc transcript.Corrector) Option {
	return func(c *Controller) { c.corrector = tc }
}

// WithAvatar receives the emotion of each answer when it has been spoken.
func WithAvatar(a Avatar) Option {
	return func(c *Controller) { c.avatar = a }
}

// WithMetrics records Q&A hits and misses.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller drives the listen, match, speak loop.
type Controller struct {
	listener  Listener
	speaker   Speaker
	matcher   Matcher
	corrector transcript.Corrector
	avatar    Avatar
	metrics   *observe.Metrics

	mu      sync.Mutex
	session Session
	subs    map[int]chan Event
	nextSub int
}

var _ speech.Observer = (*Controller)(nil)

// subscriberBuffer is the channel depth per subscriber. Slow subscribers
// miss events rather than block the controller.
const subscriberBuffer = 16

// New returns a Controller answering from matcher and speaking through the
// speaker built by newSpeaker.
func New(matcher Matcher, newSpeaker SpeakerFactory, opts ...Option) (*Controller, error) {
	if matcher == nil {
		return nil, errors.New("interaction: matcher must not be nil")
	}
	if newSpeaker == nil {
		return nil, errors.New("interaction: speaker factory must not be nil")
	}
	c := &Controller{
		matcher: matcher,
		session: Session{Emotion: qa.Neutral, Viseme: viseme.Closed},
		subs:    make(map[int]chan Event),
	}
	for _, o := range opts {
		o(c)
	}
	sp, err := newSpeaker(c)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return nil, errors.New("interaction: speaker factory returned nil")
	}
	c.speaker = sp
	return c, nil
}

// StartListening runs one recognition session over pcm, then answers what
// was heard. Any speech in flight is stopped first.
//
// It returns [ErrBusy] when already listening. When recognition is not
// available it publishes a notice and returns [speech.ErrUnsupported].
// Other recognition errors are logged and returned; the session is back to
// idle either way.
func (c *Controller) StartListening(ctx context.Context, pcm <-chan []byte) (qa.Answer, error) {
	c.mu.Lock()
	if c.session.Listening {
		c.mu.Unlock()
		return qa.Answer{}, ErrBusy
	}
	c.session.Listening = true
	c.session.Transcript = ""
	c.publishLocked()
	c.mu.Unlock()

	c.StopSpeaking()

	t, err := c.listen(ctx, pcm)

	c.mu.Lock()
	c.session.Listening = false
	c.publishLocked()
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, speech.ErrUnsupported) {
			c.notify(UnsupportedNotice)
		} else {
			observe.Logger(ctx).Warn("interaction: recognition failed", "error", err)
		}
		return qa.Answer{}, err
	}

	text := t.Text
	if c.corrector != nil {
		ct := c.corrector.Correct(t)
		for _, fix := range ct.Corrections {
			observe.Logger(ctx).Debug("interaction: corrected transcript",
				"original", fix.Original, "corrected", fix.Corrected, "confidence", fix.Confidence)
		}
		text = ct.Corrected
	}
	return c.Ask(ctx, text)
}

func (c *Controller) listen(ctx context.Context, pcm <-chan []byte) (types.Transcript, error) {
	if c.listener == nil {
		return types.Transcript{}, speech.ErrUnsupported
	}
	return c.listener.Listen(ctx, pcm)
}

// Ask matches utterance against the corpus and speaks the answer. The
// fallback answer is spoken like any other.
func (c *Controller) Ask(ctx context.Context, utterance string) (qa.Answer, error) {
	ans := c.matcher.Match(utterance)
	if c.metrics != nil {
		c.metrics.RecordMatch(ctx, ans.Matched)
	}
	observe.Logger(ctx).Info("interaction: answering",
		"utterance", utterance, "matched", ans.Matched, "score", ans.Score, "emotion", ans.Emotion)

	c.mu.Lock()
	c.session.Transcript = utterance
	c.session.Answer = ans.Text
	c.session.Emotion = ans.Emotion
	c.publishLocked()
	c.mu.Unlock()

	if _, err := c.speaker.Speak(ctx, ans.Text); err != nil {
		return ans, err
	}
	return ans, nil
}

// Speak says text without matching, cancelling any speech in flight.
func (c *Controller) Speak(ctx context.Context, text string) (uint64, error) {
	return c.speaker.Speak(ctx, text)
}

// StopSpeaking cancels speech output and resets the viseme to closed. Safe
// to call at any time.
func (c *Controller) StopSpeaking() {
	c.speaker.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	changed := c.session.Speaking || c.session.Viseme != viseme.Closed
	c.session.Speaking = false
	c.session.Viseme = viseme.Closed
	if changed {
		c.publishLocked()
	}
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Subscribe returns a channel of session events and a function that ends the
// subscription. The cancel function is idempotent and closes the channel.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// SpeechStarted implements [speech.Observer].
func (c *Controller) SpeechStarted(gen uint64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.speaker.Current() {
		return
	}
	c.session.Speaking = true
	c.session.Answer = text
	c.publishLocked()
}

// Viseme implements [speech.Observer].
func (c *Controller) Viseme(gen uint64, v viseme.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.speaker.Current() {
		return
	}
	c.session.Viseme = v
}

// SpeechEnded implements [speech.Observer]. An answer that was spoken to the
// end biases the avatar toward the answer's emotion.
func (c *Controller) SpeechEnded(gen uint64, interrupted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.speaker.Current() {
		return
	}
	// The avatar has its own lock and never calls back into the controller.
	if !interrupted && c.avatar != nil {
		c.avatar.SetExpression(ExpressionFor(c.session.Emotion))
	}
	c.session.Speaking = false
	c.session.Viseme = viseme.Closed
	c.publishLocked()
}

func (c *Controller) notify(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendLocked(Event{Kind: EventNotice, Session: c.session, Notice: msg})
}

func (c *Controller) publishLocked() {
	c.sendLocked(Event{Kind: EventState, Session: c.session})
}

func (c *Controller) sendLocked(ev Event) {
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("interaction: subscriber lagging, event dropped", "subscriber", id, "kind", ev.Kind)
		}
	}
}

// ExpressionFor maps an answer emotion onto the avatar expressions.
func ExpressionFor(e qa.Emotion) driver.Expression {
	switch e {
	case qa.Happy, qa.Proud, qa.Confident:
		return driver.Happy
	case qa.Excited, qa.Interested:
		return driver.Surprised
	case qa.Thoughtful, qa.Confused:
		return driver.Thinking
	default:
		return driver.Neutral
	}
}
