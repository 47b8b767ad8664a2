package speech_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/facetalk/internal/speech"
	sttmock "github.com/MrWong99/facetalk/pkg/provider/stt/mock"
	"github.com/MrWong99/facetalk/pkg/types"
)

func chunks(n int) <-chan []byte {
	ch := make(chan []byte, n)
	for range n {
		ch <- make([]byte, 640)
	}
	close(ch)
	return ch
}

func TestListen_Unsupported(t *testing.T) {
	t.Parallel()

	l := speech.NewListener(nil)
	if l.Supported() {
		t.Fatal("Supported() = true without a provider")
	}
	if _, err := l.Listen(context.Background(), chunks(1)); !errors.Is(err, speech.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestListen_ReturnsFirstNonEmptyFinal(t *testing.T) {
	t.Parallel()

	sess := sttmock.NewSession()
	sess.FinalsCh <- types.Transcript{Text: "  ", IsFinal: true}
	sess.FinalsCh <- types.Transcript{Text: "what is your name", IsFinal: true, Confidence: 0.9}
	sess.FinalsCh <- types.Transcript{Text: "ignored", IsFinal: true}
	p := &sttmock.Provider{Session: sess}

	pcm := make(chan []byte)
	got, err := speech.NewListener(p).Listen(context.Background(), pcm)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if got.Text != "what is your name" {
		t.Fatalf("transcript = %q, want %q", got.Text, "what is your name")
	}
	if sess.Closes() == 0 {
		t.Fatal("session not closed after Listen returned")
	}
}

func TestListen_NoSpeech(t *testing.T) {
	t.Parallel()

	sess := sttmock.NewSession()
	p := &sttmock.Provider{Session: sess}

	_, err := speech.NewListener(p).Listen(context.Background(), chunks(3))
	if !errors.Is(err, speech.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if n := sess.SendAudioCallCount(); n != 3 {
		t.Fatalf("SendAudio calls = %d, want 3", n)
	}
}

func TestListen_StartError(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial failed")
	p := &sttmock.Provider{StartStreamErr: boom}
	if _, err := speech.NewListener(p).Listen(context.Background(), chunks(1)); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestListen_ContextCancelled(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Session: sttmock.NewSession()}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := speech.NewListener(p).Listen(ctx, make(chan []byte))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestListen_StreamConfig(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	kw := []types.KeywordBoost{{Keyword: "Kubernetes", Boost: 2}}
	l := speech.NewListener(p, speech.WithLanguage("de-DE"), speech.WithKeywords(kw))
	_, _ = l.Listen(context.Background(), chunks(0))

	if p.CallCount() != 1 {
		t.Fatalf("StartStream calls = %d, want 1", p.CallCount())
	}
	cfg := p.StartStreamCalls[0].Cfg
	if cfg.Language != "de-DE" || cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Errorf("config = %+v", cfg)
	}
	if len(cfg.Keywords) != 1 || cfg.Keywords[0].Keyword != "Kubernetes" {
		t.Errorf("keywords = %+v", cfg.Keywords)
	}
}
