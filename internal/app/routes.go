package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/facetalk/internal/observe"
	"github.com/MrWong99/facetalk/internal/qa"
)

// maxAskBody bounds the request body of POST /v1/ask.
const maxAskBody = 16 << 10

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer   string     `json:"answer"`
	Emotion  qa.Emotion `json:"emotion"`
	Matched  bool       `json:"matched"`
	Score    float64    `json:"score"`
	Question string     `json:"question,omitempty"`
}

type voiceResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	Provider string `json:"provider,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAsk matches a typed question without speaking it.
func (a *App) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAskBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question must not be empty"})
		return
	}

	ans := a.matcher.Match(q)
	a.metrics.RecordMatch(r.Context(), ans.Matched)
	observe.Logger(r.Context()).Info("ask", "matched", ans.Matched, "score", ans.Score)

	writeJSON(w, http.StatusOK, askResponse{
		Answer:   ans.Text,
		Emotion:  ans.Emotion,
		Matched:  ans.Matched,
		Score:    ans.Score,
		Question: ans.Question,
	})
}

// handleVoices lists the voices of the primary TTS provider.
func (a *App) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := a.providers.TTS.ListVoices(r.Context())
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		observe.Logger(r.Context()).Warn("list voices failed", "provider", a.providers.TTSName, "err", err)
		a.metrics.RecordProviderError(r.Context(), a.providers.TTSName, "tts")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "voice listing unavailable"})
		return
	}
	out := make([]voiceResponse, len(voices))
	for i, v := range voices {
		out[i] = voiceResponse{ID: v.ID, Name: v.Name, Language: v.Language, Provider: v.Provider}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
