package face_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/witwicki/streaming-xtts/pkg/face"
	"github.com/witwicki/streaming-xtts/pkg/protocol"
)

type animatePayload struct {
	SequenceNumber uint32    `json:"sequence_number"`
	StartOffsetMs  int64     `json:"start_offset_ms"`
	FrameMs        int       `json:"frame_ms"`
	Levels         []float64 `json:"levels"`
}

func pcmChunk(seq uint32, samples int, amplitude int16) *protocol.AudioChunk {
	payload := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(amplitude))
	}

	return &protocol.AudioChunk{
		Sequence:   seq,
		SampleRate: 100,
		Encoding:   protocol.EncodingPCM16,
		Payload:    payload,
	}
}

func recv(t *testing.T, ch chan animatePayload) animatePayload {
	t.Helper()

	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for animation event")

		return animatePayload{}
	}
}

func TestFanoutDeliversEnvelopes(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	got := make(chan animatePayload, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/animate":
			assert.Equal(http.MethodPost, r.Method)
			assert.Equal("application/json", r.Header.Get("Content-Type"))

			var p animatePayload
			assert.NoError(json.NewDecoder(r.Body).Decode(&p))

			got <- p
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	fanout := face.New(context.Background(), &face.Config{URL: srv.URL}, srv.Client(), slog.Default())
	assert.True(fanout.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = fanout.Run(ctx) }()

	// 20 samples at 100 Hz is 200ms, so four 50ms frames. A constant
	// amplitude of half scale keeps every RMS level at 0.5.
	fanout.OnChunk(pcmChunk(0, 20, 16384))

	p := recv(t, got)
	assert.Equal(uint32(0), p.SequenceNumber)
	assert.Equal(int64(0), p.StartOffsetMs)
	assert.Equal(face.FrameMs, p.FrameMs)
	assert.Len(p.Levels, 4)
	for _, level := range p.Levels {
		assert.InDelta(0.5, level, 0.01)
	}

	// 7 samples is one full frame plus a partial one.
	fanout.OnChunk(pcmChunk(1, 7, 16384))

	p = recv(t, got)
	assert.Equal(uint32(1), p.SequenceNumber)
	assert.Equal(int64(200), p.StartOffsetMs)
	assert.Len(p.Levels, 2)

	assert.Eventually(func() bool { return fanout.Sent() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(int64(0), fanout.Dropped())
}

func TestFanoutDisabledWhenUnreachable(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := &face.Config{URL: url, RequestTimeout: 200 * time.Millisecond}
	fanout := face.New(context.Background(), cfg, http.DefaultClient, slog.Default())

	assert.False(fanout.Enabled())

	fanout.OnChunk(pcmChunk(0, 20, 16384))
	assert.NoError(fanout.Run(context.Background()))

	assert.Equal(int64(0), fanout.Sent())
	assert.Equal(int64(0), fanout.Dropped())
}

func TestFanoutDisabledWithoutURL(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	fanout := face.New(context.Background(), &face.Config{}, http.DefaultClient, slog.Default())

	assert.False(fanout.Enabled())
	assert.NoError(fanout.Run(context.Background()))
}

func TestFanoutDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &face.Config{URL: srv.URL, QueueSize: 2}
	fanout := face.New(context.Background(), cfg, srv.Client(), slog.Default())
	assert.True(fanout.Enabled())

	// Nothing consumes the queue, so only QueueSize events fit.
	fanout.OnChunk(pcmChunk(0, 20, 16384))
	fanout.OnChunk(pcmChunk(1, 20, 16384))
	fanout.OnChunk(pcmChunk(2, 20, 16384))

	assert.Equal(int64(1), fanout.Dropped())
}
