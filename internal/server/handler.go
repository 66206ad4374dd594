package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/floe/internal/dispatch"
	"github.com/gosuda/floe/internal/interaction"
)

const (
	headerSignature = "X-Signature-Ed25519"
	headerTimestamp = "X-Signature-Timestamp"

	// maxBodyBytes caps a webhook payload at 1 MiB. Real interaction payloads
	// are a few KiB.
	maxBodyBytes = 1 << 20
)

// handleInteraction is the webhook entry point. Signature verification runs
// over the raw bytes before anything is parsed; an unverified request never
// reaches the dispatcher.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, `{"message":"payload too large"}`, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, `{"message":"unreadable body"}`, http.StatusBadRequest)
		return
	}

	timestamp := r.Header.Get(headerTimestamp)
	signature := r.Header.Get(headerSignature)
	if !s.verifier.Verify(timestamp, body, signature) {
		log.Warn().
			Str("remote", r.RemoteAddr).
			Msg("rejected interaction with invalid signature")
		http.Error(w, `{"message":"invalid request signature"}`, http.StatusUnauthorized)
		return
	}

	out, err := s.dispatcher.Dispatch(r.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, interaction.ErrMalformedPayload):
			http.Error(w, `{"message":"malformed interaction payload"}`, http.StatusBadRequest)
		case errors.Is(err, dispatch.ErrMissedDeadline):
			http.Error(w, `{"message":"interaction timed out"}`, http.StatusInternalServerError)
		default:
			log.Error().Err(err).Msg("interaction dispatch failed")
			http.Error(w, `{"message":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
