package engine_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/witwicki/streaming-xtts/pkg/engine"
	"github.com/witwicki/streaming-xtts/pkg/protocol"

	"github.com/stretchr/testify/require"
)

func TestSynthesizeSuccess(t *testing.T) {
	t.Parallel()

	var observedRequest map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		require.Equal(t, "/api/v1/synthesize", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		err = json.Unmarshal(body, &observedRequest)
		require.NoError(t, err)

		require.Equal(t, "hello world", observedRequest["text"])
		require.Equal(t, "Nova Hogarth", observedRequest["speaker"])
		require.Equal(t, "en", observedRequest["language"])
		require.EqualValues(t, 1.0, observedRequest["speed"])

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte{0x01, 0x00, 0x02, 0x00})
	}))
	defer srv.Close()

	client := engine.New(srv.Client(), &engine.Config{
		URL:        srv.URL,
		SampleRate: 24000,
	})

	audio, err := client.Synthesize(context.Background(), "hello world", protocol.SessionConfig{
		Speaker:     "Nova Hogarth",
		Language:    "en",
		Speed:       1.0,
		Temperature: 0.01,
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x00, 0x02, 0x00}, audio.PCM)
	require.Equal(t, 24000, audio.SampleRate)
}

func TestSynthesizeSampleRateHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Sample-Rate", "22050")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 8))
	}))
	defer srv.Close()

	client := engine.New(srv.Client(), &engine.Config{URL: srv.URL, SampleRate: 24000})

	audio, err := client.Synthesize(context.Background(), "hi", protocol.SessionConfig{})
	require.NoError(t, err)
	require.Equal(t, 22050, audio.SampleRate)
}

func TestSynthesizePermanentError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unsupported language xx"}`))
	}))
	defer srv.Close()

	client := engine.New(srv.Client(), &engine.Config{URL: srv.URL, SampleRate: 24000})

	_, err := client.Synthesize(context.Background(), "hi", protocol.SessionConfig{Language: "xx"})
	require.Error(t, err)
	require.False(t, engine.IsTransient(err))
	require.Contains(t, err.Error(), "unsupported language xx")
}

func TestSynthesizeTransientError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"engine busy"}`))
	}))
	defer srv.Close()

	client := engine.New(srv.Client(), &engine.Config{URL: srv.URL, SampleRate: 24000})

	_, err := client.Synthesize(context.Background(), "hi", protocol.SessionConfig{})
	require.Error(t, err)
	require.True(t, engine.IsTransient(err))
	require.Contains(t, err.Error(), "engine busy")
}

func TestSynthesizeTransportErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := engine.New(http.DefaultClient, &engine.Config{URL: srv.URL, SampleRate: 24000})

	_, err := client.Synthesize(context.Background(), "hi", protocol.SessionConfig{})
	require.Error(t, err)
	require.True(t, engine.IsTransient(err))
}

func TestSynthesizeEmptyBodyIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := engine.New(srv.Client(), &engine.Config{URL: srv.URL, SampleRate: 24000})

	_, err := client.Synthesize(context.Background(), "hi", protocol.SessionConfig{})
	require.Error(t, err)
	require.False(t, engine.IsTransient(err))
}
