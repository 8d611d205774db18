// Package engine is the HTTP client for the external speech-synthesis
// service. One call synthesizes one text segment into raw PCM bytes.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/witwicki/streaming-xtts/pkg/protocol"
	"github.com/witwicki/streaming-xtts/pkg/tools"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	URL string `yaml:"url"`

	// SampleRate of the PCM the engine produces, unless a response
	// overrides it via the X-Sample-Rate header.
	SampleRate int `yaml:"sample_rate"`

	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

type Client struct {
	cfg        *Config
	httpClient HTTPClient
}

func New(httpClient HTTPClient, cfg *Config) *Client {
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

type synthesizeReq struct {
	Text        string  `json:"text"`
	Speaker     string  `json:"speaker"`
	Language    string  `json:"language"`
	Speed       float64 `json:"speed"`
	Temperature float64 `json:"temperature"`
}

type synthesizeErr struct {
	Error string `json:"error"`
}

// Audio is one segment's synthesized output.
type Audio struct {
	PCM        []byte
	SampleRate int
}

// Duration of the synthesized audio.
func (a *Audio) Duration() time.Duration {
	if a.SampleRate == 0 || len(a.PCM) < 2 {
		return 0
	}

	return time.Duration(len(a.PCM)/2) * time.Second / time.Duration(a.SampleRate)
}

// Synthesize performs one engine call. The returned error is a
// *TransientError for failures worth retrying and a *PermanentError for
// failures that will not go away for this segment.
func (c *Client) Synthesize(ctx context.Context, text string, conf protocol.SessionConfig) (*Audio, error) {
	start := time.Now()

	req := &synthesizeReq{
		Text:        text,
		Speaker:     conf.Speaker,
		Language:    conf.Language,
		Speed:       conf.Speed,
		Temperature: conf.Temperature,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/api/v1/synthesize", bytes.NewReader(data))
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	request.Header.Add("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		metrics.SynthesisErrors.WithLabelValues("transport").Inc()
		return nil, Transient(fmt.Errorf("failed to post to engine: %w", err))
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.SynthesisErrors.WithLabelValues("transport").Inc()
		return nil, Transient(fmt.Errorf("failed to read engine response: %w", err))
	}

	if resp.StatusCode > 299 {
		metrics.SynthesisErrors.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		err := fmt.Errorf("engine status %d: %s", resp.StatusCode, errorMessage(respData))
		if retryableStatus(resp.StatusCode) {
			return nil, Transient(err)
		}

		return nil, Permanent(err)
	}

	if len(respData) == 0 {
		metrics.SynthesisErrors.WithLabelValues("empty").Inc()
		return nil, Permanent(fmt.Errorf("engine returned no audio"))
	}

	sampleRate := c.cfg.SampleRate
	if header := resp.Header.Get("X-Sample-Rate"); header != "" {
		if rate, err := strconv.Atoi(header); err == nil && rate > 0 {
			sampleRate = rate
		}
	}

	metrics.SynthesisQueryTime.Observe(time.Since(start).Seconds())

	return &Audio{
		PCM:        respData,
		SampleRate: sampleRate,
	}, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return code >= 500
	}
}

func errorMessage(body []byte) string {
	engineErr := &synthesizeErr{}
	if err := json.Unmarshal(body, engineErr); err == nil && engineErr.Error != "" {
		return engineErr.Error
	}

	return string(body)
}
