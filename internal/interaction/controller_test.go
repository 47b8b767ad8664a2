package interaction_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/facetalk/internal/avatar/driver"
	"github.com/MrWong99/facetalk/internal/avatar/viseme"
	"github.com/MrWong99/facetalk/internal/interaction"
	"github.com/MrWong99/facetalk/internal/qa"
	"github.com/MrWong99/facetalk/internal/speech"
	"github.com/MrWong99/facetalk/internal/transcript"
	"github.com/MrWong99/facetalk/pkg/audio"
	ttsmock "github.com/MrWong99/facetalk/pkg/provider/tts/mock"
	"github.com/MrWong99/facetalk/pkg/types"
)

// stubSpeaker starts sessions synchronously and ends them only when the test
// says so.
type stubSpeaker struct {
	obs speech.Observer

	mu     sync.Mutex
	gen    uint64
	active bool
	texts  []string
}

func (s *stubSpeaker) Speak(_ context.Context, text string) (uint64, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.active = true
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	s.obs.SpeechStarted(gen, text)
	return gen, nil
}

func (s *stubSpeaker) Stop() bool {
	s.mu.Lock()
	was, gen := s.active, s.gen
	s.active = false
	s.mu.Unlock()
	if was {
		s.obs.Viseme(gen, viseme.Closed)
		s.obs.SpeechEnded(gen, true)
	}
	return was
}

func (s *stubSpeaker) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// finish ends the current session normally.
func (s *stubSpeaker) finish() {
	s.mu.Lock()
	s.active = false
	gen := s.gen
	s.mu.Unlock()
	s.obs.Viseme(gen, viseme.Closed)
	s.obs.SpeechEnded(gen, false)
}

func (s *stubSpeaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type stubMatcher struct {
	mu     sync.Mutex
	answer qa.Answer
	asked  []string
}

func (m *stubMatcher) Match(u string) qa.Answer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked = append(m.asked, u)
	return m.answer
}

func (m *stubMatcher) Asked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.asked...)
}

type avatarRecorder struct {
	mu    sync.Mutex
	exprs []driver.Expression
}

func (a *avatarRecorder) SetExpression(e driver.Expression) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exprs = append(a.exprs, e)
}

func (a *avatarRecorder) Expressions() []driver.Expression {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]driver.Expression(nil), a.exprs...)
}

type listenerFunc func(ctx context.Context, pcm <-chan []byte) (types.Transcript, error)

func (f listenerFunc) Listen(ctx context.Context, pcm <-chan []byte) (types.Transcript, error) {
	return f(ctx, pcm)
}

var happyAnswer = qa.Answer{Text: "I'm Ethan.", Emotion: qa.Happy, Matched: true, Question: "What is your name?"}

func newController(t *testing.T, m interaction.Matcher, opts ...interaction.Option) (*interaction.Controller, *stubSpeaker) {
	t.Helper()
	sp := &stubSpeaker{}
	c, err := interaction.New(m, func(obs speech.Observer) (interaction.Speaker, error) {
		sp.obs = obs
		return sp, nil
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, sp
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	factory := func(speech.Observer) (interaction.Speaker, error) { return &stubSpeaker{}, nil }
	if _, err := interaction.New(nil, factory); err == nil {
		t.Error("expected error for nil matcher")
	}
	if _, err := interaction.New(&stubMatcher{}, nil); err == nil {
		t.Error("expected error for nil speaker factory")
	}
	boom := errors.New("no tts")
	if _, err := interaction.New(&stubMatcher{}, func(speech.Observer) (interaction.Speaker, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestAsk_SpeaksAnswerAndBiasesAvatar(t *testing.T) {
	t.Parallel()

	av := &avatarRecorder{}
	c, sp := newController(t, &stubMatcher{answer: happyAnswer}, interaction.WithAvatar(av))

	ans, err := c.Ask(context.Background(), "what is your name")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != happyAnswer.Text {
		t.Fatalf("answer = %q", ans.Text)
	}
	s := c.Snapshot()
	if !s.Speaking || s.Answer != happyAnswer.Text || s.Transcript != "what is your name" || s.Emotion != qa.Happy {
		t.Fatalf("snapshot = %+v", s)
	}
	if got := sp.Texts(); len(got) != 1 || got[0] != happyAnswer.Text {
		t.Fatalf("spoken = %v", got)
	}
	if len(av.Expressions()) != 0 {
		t.Fatal("expression bias applied before the answer was spoken")
	}

	sp.finish()
	s = c.Snapshot()
	if s.Speaking || s.Viseme != viseme.Closed {
		t.Fatalf("after speech: %+v", s)
	}
	if got := av.Expressions(); len(got) != 1 || got[0] != driver.Happy {
		t.Fatalf("expressions = %v, want [happy]", got)
	}
}

func TestInterruptedSpeech_NoBias(t *testing.T) {
	t.Parallel()

	av := &avatarRecorder{}
	c, _ := newController(t, &stubMatcher{answer: happyAnswer}, interaction.WithAvatar(av))

	if _, err := c.Ask(context.Background(), "who are you"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	c.StopSpeaking()
	if s := c.Snapshot(); s.Speaking {
		t.Fatal("still speaking after StopSpeaking")
	}
	if len(av.Expressions()) != 0 {
		t.Fatalf("interrupted answer biased the avatar: %v", av.Expressions())
	}
}

func TestObserver_IgnoresStaleGenerations(t *testing.T) {
	t.Parallel()

	c, sp := newController(t, &stubMatcher{answer: happyAnswer})
	first, _ := c.Speak(context.Background(), "one")
	if _, err := c.Speak(context.Background(), "two"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	c.Viseme(first, viseme.State{Type: viseme.TypeA, Intensity: 0.8})
	c.SpeechEnded(first, false)

	s := c.Snapshot()
	if !s.Speaking || s.Answer != "two" {
		t.Fatalf("stale end changed the session: %+v", s)
	}
	if s.Viseme != viseme.Closed {
		t.Fatalf("stale viseme applied: %+v", s.Viseme)
	}

	c.Viseme(sp.Current(), viseme.State{Type: viseme.TypeO, Intensity: 0.8})
	if got := c.Snapshot().Viseme; got.Type != viseme.TypeO {
		t.Fatalf("current viseme not applied: %+v", got)
	}
}

func TestStartListening_CorrectsMatchesAndSpeaks(t *testing.T) {
	t.Parallel()

	m := &stubMatcher{answer: qa.Answer{Text: "Go and Kubernetes.", Emotion: qa.Excited, Matched: true}}
	l := listenerFunc(func(context.Context, <-chan []byte) (types.Transcript, error) {
		return types.Transcript{Text: "what is your tek stack", IsFinal: true}, nil
	})
	c, sp := newController(t, m,
		interaction.WithListener(l),
		interaction.WithCorrector(transcript.NewCorrector([]string{"tech stack"})),
	)

	// Speech in flight is stopped before listening.
	if _, err := c.Speak(context.Background(), "earlier answer"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if _, err := c.StartListening(context.Background(), nil); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if got := m.Asked(); len(got) != 1 || got[0] != "what is your tech stack" {
		t.Fatalf("matcher asked %v", got)
	}
	if got := sp.Texts(); len(got) != 2 || got[1] != "Go and Kubernetes." {
		t.Fatalf("spoken = %v", got)
	}
	s := c.Snapshot()
	if s.Listening || s.Transcript != "what is your tech stack" || !s.Speaking {
		t.Fatalf("snapshot = %+v", s)
	}
}

func TestStartListening_Busy(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})
	l := listenerFunc(func(ctx context.Context, _ <-chan []byte) (types.Transcript, error) {
		close(entered)
		<-release
		return types.Transcript{}, speech.ErrNoSpeech
	})
	c, _ := newController(t, &stubMatcher{answer: happyAnswer}, interaction.WithListener(l))

	errc := make(chan error, 1)
	go func() {
		_, err := c.StartListening(context.Background(), nil)
		errc <- err
	}()
	<-entered

	if !c.Snapshot().Listening {
		t.Fatal("Listening = false during recognition")
	}
	if _, err := c.StartListening(context.Background(), nil); !errors.Is(err, interaction.ErrBusy) {
		t.Fatalf("second StartListening err = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-errc; !errors.Is(err, speech.ErrNoSpeech) {
		t.Fatalf("first StartListening err = %v, want ErrNoSpeech", err)
	}
	if c.Snapshot().Listening {
		t.Fatal("Listening = true after recognition failed")
	}
}

func TestStartListening_Unsupported(t *testing.T) {
	t.Parallel()

	c, sp := newController(t, &stubMatcher{answer: happyAnswer})
	events, cancel := c.Subscribe()
	defer cancel()

	if _, err := c.StartListening(context.Background(), nil); !errors.Is(err, speech.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	if len(sp.Texts()) != 0 {
		t.Fatal("spoke after unsupported recognition")
	}

	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == interaction.EventNotice {
				if ev.Notice != interaction.UnsupportedNotice {
					t.Fatalf("notice = %q", ev.Notice)
				}
				return
			}
		case <-timeout:
			t.Fatal("no notice event published")
		}
	}
}

func TestStopSpeaking_IdempotentWhenIdle(t *testing.T) {
	t.Parallel()

	c, _ := newController(t, &stubMatcher{answer: happyAnswer})
	events, cancel := c.Subscribe()
	defer cancel()

	c.StopSpeaking()
	c.StopSpeaking()

	if s := c.Snapshot(); s.Speaking || s.Viseme != viseme.Closed {
		t.Fatalf("snapshot = %+v", s)
	}
	select {
	case ev := <-events:
		t.Fatalf("idle StopSpeaking published %+v", ev)
	default:
	}
}

func TestSubscribe_Cancel(t *testing.T) {
	t.Parallel()

	c, _ := newController(t, &stubMatcher{answer: happyAnswer})
	events, cancel := c.Subscribe()

	if _, err := c.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	ev := <-events
	if ev.Kind != interaction.EventState || !ev.Session.Speaking {
		t.Fatalf("event = %+v, want speaking state", ev)
	}

	cancel()
	cancel()
	for range events {
	}
	// Publishing after cancel must not panic on the closed channel.
	c.StopSpeaking()
}

func TestExpressionFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		emotion qa.Emotion
		want    driver.Expression
	}{
		{qa.Happy, driver.Happy},
		{qa.Proud, driver.Happy},
		{qa.Confident, driver.Happy},
		{qa.Excited, driver.Surprised},
		{qa.Interested, driver.Surprised},
		{qa.Thoughtful, driver.Thinking},
		{qa.Confused, driver.Thinking},
		{qa.Neutral, driver.Neutral},
		{"", driver.Neutral},
	}
	for _, tc := range tests {
		if got := interaction.ExpressionFor(tc.emotion); got != tc.want {
			t.Errorf("ExpressionFor(%q) = %q, want %q", tc.emotion, got, tc.want)
		}
	}
}

const corpusYAML = `
- question: What is your name?
  keywords: [name, who are you]
  answer: I'm Ethan, a software engineer.
`

func TestController_EndToEnd(t *testing.T) {
	t.Parallel()

	corpus, err := qa.ParseCorpus(strings.NewReader(corpusYAML))
	if err != nil {
		t.Fatalf("ParseCorpus: %v", err)
	}
	matcher, err := qa.NewMatcher(corpus)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	tp := &ttsmock.Provider{Chunks: [][]byte{make([]byte, 320), make([]byte, 320)}}
	av := &avatarRecorder{}

	c, err := interaction.New(matcher, func(obs speech.Observer) (interaction.Speaker, error) {
		return speech.NewSpeaker(tp, audio.Discard, speech.WithObserver(obs), speech.WithWPM(6000))
	}, interaction.WithAvatar(av))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events, cancel := c.Subscribe()
	defer cancel()

	tests := []struct {
		utterance string
		want      string
		expr      driver.Expression
	}{
		{"what is your name", "I'm Ethan, a software engineer.", driver.Happy},
		{"qwzx vvlp", qa.DefaultFallback, driver.Thinking},
	}
	for i, tc := range tests {
		ans, err := c.Ask(context.Background(), tc.utterance)
		if err != nil {
			t.Fatalf("Ask(%q): %v", tc.utterance, err)
		}
		if ans.Text != tc.want {
			t.Fatalf("Ask(%q) = %q, want %q", tc.utterance, ans.Text, tc.want)
		}
		waitIdle(t, events)
		got := av.Expressions()
		if len(got) != i+1 || got[i] != tc.expr {
			t.Fatalf("after %q expressions = %v, want last %q", tc.utterance, got, tc.expr)
		}
	}
}

// waitIdle consumes events until speech has started and ended.
func waitIdle(t *testing.T, events <-chan interaction.Event) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	started := false
	for {
		select {
		case ev := <-events:
			if ev.Session.Speaking {
				started = true
			} else if started {
				return
			}
		case <-timeout:
			t.Fatal("speech never finished")
		}
	}
}
