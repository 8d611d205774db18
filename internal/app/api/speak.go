package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/dchest/uniuri"

	"github.com/witwicki/streaming-xtts/internal/app/session"
	"github.com/witwicki/streaming-xtts/pkg/protocol"
	"github.com/witwicki/streaming-xtts/pkg/wavfile"
)

type speakRequest struct {
	Text string `json:"text"`

	protocol.SessionConfig
}

// speakHandler synthesizes a whole utterance in one request and responds
// with the finished WAV. Skipped segments are reported in a header; only a
// fully failed utterance is an error.
func (api *API) speakHandler(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))

		return
	}

	if strings.TrimSpace(req.Text) == "" {
		api.respondError(w, http.StatusBadRequest, errors.New("text is required"))

		return
	}

	utt, err := api.manager.SynthesizeUtterance(r.Context(), req.Text, req.SessionConfig)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidConfig):
			api.respondError(w, http.StatusBadRequest, err)
		case errors.Is(err, session.ErrAllSegmentsFailed):
			api.respondError(w, http.StatusBadGateway, err)
		default:
			api.logger.Error("one-shot synthesis failed", "err", err)
			api.respondError(w, http.StatusInternalServerError, errors.New("synthesis failed"))
		}

		return
	}

	name := fmt.Sprintf("speech_%s.wav", uniuri.New())

	f, err := os.CreateTemp("", "speak-*.wav")
	if err != nil {
		api.logger.Error("failed to create response file", "err", err)
		api.respondError(w, http.StatusInternalServerError, errors.New("synthesis failed"))

		return
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	gap := wavfile.GapForSpeed(wavfile.DefaultGap, utt.Speed)

	if err := wavfile.Encode(f, utt.Payloads, utt.SampleRate, gap); err != nil {
		api.logger.Error("failed to encode response", "err", err)
		api.respondError(w, http.StatusInternalServerError, errors.New("synthesis failed"))

		return
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		api.logger.Error("failed to rewind response file", "err", err)
		api.respondError(w, http.StatusInternalServerError, errors.New("synthesis failed"))

		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("X-Skipped-Segments", strconv.Itoa(utt.Skipped))

	if _, err := io.Copy(w, f); err != nil {
		api.logger.Error("failed to write response", "err", err)
	}
}

func (api *API) respondError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
