package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/facetalk/pkg/provider/stt"
	"github.com/MrWong99/facetalk/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

type request struct {
	language string
	model    string
	wavBytes int
}

// newMockServer responds to POST /inference with responseText and records the
// last multipart request.
func newMockServer(t *testing.T, responseText string, status int, calls *atomic.Int32, last *atomic.Pointer[request]) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		calls.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Close()
		if last != nil {
			last.Store(&request{
				language: r.FormValue("language"),
				model:    r.FormValue("model"),
				wavBytes: int(hdr.Size),
			})
		}
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// makeSpeechPCM generates a 440 Hz tone well above the silence threshold.
func makeSpeechPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

var cfg = stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en-US"}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestStartStream_CancelledContext_ReturnsError(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://localhost:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, cfg); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

// ---- inference -------------------------------------------------------------

func TestSpeechFollowedBySilenceTriggersInference(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var last atomic.Pointer[request]
	srv := newMockServer(t, " tell me about your projects ", http.StatusOK, &calls, &last)

	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"), whisper.WithSilenceThreshold(200*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.StartStream(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	_ = h.SendAudio(makeSpeechPCM(3200))
	_ = h.SendAudio(makeSilencePCM(4800))

	select {
	case tr := <-h.Finals():
		if tr.Text != "tell me about your projects" {
			t.Errorf("text = %q", tr.Text)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for final transcript")
	}

	req := last.Load()
	if req == nil {
		t.Fatal("server saw no request")
	}
	if req.language != "en" {
		t.Errorf("language = %q, want en (region stripped)", req.language)
	}
	if req.model != "base.en" {
		t.Errorf("model = %q, want base.en", req.model)
	}
	if want := 44 + (3200+4800)*2; req.wavBytes != want {
		t.Errorf("wav bytes = %d, want %d", req.wavBytes, want)
	}
}

func TestInference_ServerError_ProducesNoTranscript(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, "", http.StatusInternalServerError, &calls, nil)
	p, _ := whisper.New(srv.URL)
	h, _ := p.StartStream(context.Background(), cfg)

	_ = h.SendAudio(makeSpeechPCM(1600))
	_ = h.Close()

	if _, ok := <-h.Finals(); ok {
		t.Error("expected finals to close without a transcript")
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}
