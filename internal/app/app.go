// Package app wires the facetalk subsystems into a running HTTP server.
//
// The App struct owns the full lifecycle: New loads the corpus and avatar
// rig and prepares shared state, Run serves HTTP until its context ends,
// and Shutdown closes every live session.
//
// Each websocket client on /v1/session gets its own animation driver,
// interaction controller and speaker; the matcher, corrector, rig and
// providers are shared.
//
// For testing, inject doubles via functional options (WithMatcher,
// WithRig, WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/facetalk/internal/avatar/rig"
	"github.com/MrWong99/facetalk/internal/config"
	"github.com/MrWong99/facetalk/internal/health"
	"github.com/MrWong99/facetalk/internal/observe"
	"github.com/MrWong99/facetalk/internal/qa"
	"github.com/MrWong99/facetalk/internal/transcript"
	"github.com/MrWong99/facetalk/pkg/provider/stt"
	"github.com/MrWong99/facetalk/pkg/provider/tts"
	"github.com/MrWong99/facetalk/pkg/types"
)

// shutdownGrace bounds how long Run waits for in-flight HTTP requests once
// its context ends.
const shutdownGrace = 10 * time.Second

// Providers holds the speech providers built by main via the config
// registry. A nil STT means recognition is unavailable.
type Providers struct {
	STT     stt.Provider
	STTName string

	TTS     tts.Provider
	TTSName string
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	matcher        *qa.Matcher
	corrector      transcript.Corrector
	keywords       []types.KeywordBoost
	rig            *rig.Rig
	metrics        *observe.Metrics
	metricsHandler http.Handler
	health         *health.Handler
	sessions       *SessionManager

	mu       sync.Mutex
	server   *http.Server
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMatcher injects a matcher instead of loading qa.corpus_file.
func WithMatcher(m *qa.Matcher) Option {
	return func(a *App) { a.matcher = m }
}

// WithRig injects an avatar rig instead of loading avatar.asset_file.
func WithRig(r *rig.Rig) Option {
	return func(a *App) { a.rig = r }
}

// WithMetrics sets the metric instruments. Defaults to the global meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics, typically promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// New creates an App from cfg and providers. It loads the Q&A corpus and the
// avatar asset synchronously, so configuration mistakes fail at startup.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.TTS == nil {
		return nil, errors.New("app: tts provider must not be nil")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Q&A corpus ────────────────────────────────────────────────────
	if err := a.initMatcher(); err != nil {
		return nil, fmt.Errorf("app: init matcher: %w", err)
	}

	// ── 2. Avatar rig ────────────────────────────────────────────────────
	if err := a.initRig(); err != nil {
		return nil, fmt.Errorf("app: init rig: %w", err)
	}

	// ── 3. Sessions + readiness ──────────────────────────────────────────
	a.sessions = NewSessionManager(a.metrics)
	a.sessions.SetAvatarFlags(cfg.Avatar.AutoAnimate, cfg.Avatar.ReducedMotion)
	a.health = health.New(a.checkers()...)

	slog.InfoContext(ctx, "app initialised",
		"corpus_entries", a.matcher.Corpus().Len(),
		"threshold", a.matcher.Threshold(),
		"morphs", len(a.rig.Morphs()),
		"bones", len(a.rig.Bones()),
		"stt", providers.STTName,
		"tts", providers.TTSName,
		"phonetic_correction", a.corrector != nil,
	)
	return a, nil
}

func (a *App) initMatcher() error {
	if a.matcher == nil {
		corpus, err := qa.LoadCorpus(a.cfg.QA.CorpusFile)
		if err != nil {
			return err
		}
		opts := []qa.Option{qa.WithThreshold(a.cfg.QA.Threshold)}
		if a.cfg.QA.FallbackAnswer != "" {
			opts = append(opts, qa.WithFallback(a.cfg.QA.FallbackAnswer))
		}
		m, err := qa.NewMatcher(corpus, opts...)
		if err != nil {
			return err
		}
		a.matcher = m
	}

	vocab := a.matcher.Corpus().Vocabulary()
	if a.cfg.QA.CorrectionEnabled() {
		a.corrector = transcript.NewCorrector(vocab)
	}
	// Multi-word phrases are corrected after recognition; only single
	// words are worth boosting.
	for _, w := range vocab {
		if !strings.ContainsRune(w, ' ') {
			a.keywords = append(a.keywords, types.KeywordBoost{Keyword: w, Boost: 1})
		}
	}
	return nil
}

func (a *App) initRig() error {
	if a.rig != nil {
		return nil
	}
	if a.cfg.Avatar.AssetFile == "" {
		slog.Info("no avatar asset configured, using built-in rig")
		a.rig = rig.Default()
		return nil
	}
	r, err := rig.Load(a.cfg.Avatar.AssetFile)
	if err != nil {
		return err
	}
	a.rig = r
	return nil
}

func (a *App) checkers() []health.Checker {
	return []health.Checker{
		{Name: "corpus", Check: func(context.Context) error {
			if a.matcher.Corpus().Len() == 0 {
				return errors.New("corpus is empty")
			}
			return nil
		}},
		{Name: "tts", Check: func(context.Context) error {
			if a.providers.TTS == nil {
				return errors.New("tts provider not configured")
			}
			return nil
		}},
	}
}

// Handler returns the HTTP handler serving every route, wrapped in the
// tracing and metrics middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/ask", a.handleAsk)
	mux.HandleFunc("GET /v1/voices", a.handleVoices)
	mux.HandleFunc("GET /v1/session", a.handleSession)
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// Sessions returns the registry of live websocket sessions.
func (a *App) Sessions() *SessionManager { return a.sessions }

// ApplyConfig applies the hot-reloadable part of a config change.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.AvatarChanged {
		a.sessions.SetAvatarFlags(d.NewAutoAnimate, d.NewReducedMotion)
		slog.Info("avatar flags updated",
			"auto_animate", d.NewAutoAnimate,
			"reduced_motion", d.NewReducedMotion,
			"sessions", a.sessions.Count(),
		)
	}
}

// Run serves HTTP on server.listen_addr and blocks until ctx is cancelled,
// then drains in-flight requests. It returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		// Hijacked websocket connections are not tracked by the server.
		a.sessions.CloseAll()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)
	return g.Wait()
}

// Shutdown closes every live session and stops the HTTP server if Run
// started one. It respects the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Count())
		a.sessions.CloseAll()

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				shutdownErr = err
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// voiceProfile converts the voice config into the profile sent to the TTS
// provider.
func (a *App) voiceProfile() types.VoiceProfile {
	v := a.cfg.Voice
	return types.VoiceProfile{
		ID:          v.VoiceID,
		Provider:    a.providers.TTSName,
		Language:    v.Language,
		PitchShift:  v.PitchShift,
		SpeedFactor: v.SpeedFactor,
	}
}
