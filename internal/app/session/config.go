package session

import (
	"time"

	"github.com/witwicki/streaming-xtts/pkg/segmenter"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultSegmentTimeout   = 60 * time.Second
	DefaultAdmissionTimeout = 30 * time.Second
	DefaultDrainTimeout     = 5 * time.Second
	DefaultMaxTries         = 3
	DefaultRetryInterval    = 250 * time.Millisecond
)

type Config struct {
	// HandshakeTimeout bounds the wait for the client's first message.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// SegmentTimeout bounds one engine attempt.
	SegmentTimeout time.Duration `yaml:"segment_timeout"`
	// AdmissionTimeout bounds the wait for an engine slot.
	AdmissionTimeout time.Duration `yaml:"admission_timeout"`
	// DrainTimeout bounds the wait for the client to close after the
	// terminal message.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// MaxTries is the total number of engine attempts per segment.
	MaxTries int `yaml:"max_tries"`
	// RetryInterval seeds the exponential backoff between attempts.
	RetryInterval time.Duration `yaml:"retry_interval"`

	Speech    SpeechConfig     `yaml:"speech"`
	Segmenter segmenter.Config `yaml:"segmenter"`
}

func (c *Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeout > 0 {
		return c.HandshakeTimeout
	}

	return DefaultHandshakeTimeout
}

func (c *Config) segmentTimeout() time.Duration {
	if c.SegmentTimeout > 0 {
		return c.SegmentTimeout
	}

	return DefaultSegmentTimeout
}

func (c *Config) admissionTimeout() time.Duration {
	if c.AdmissionTimeout > 0 {
		return c.AdmissionTimeout
	}

	return DefaultAdmissionTimeout
}

func (c *Config) drainTimeout() time.Duration {
	if c.DrainTimeout > 0 {
		return c.DrainTimeout
	}

	return DefaultDrainTimeout
}

func (c *Config) maxTries() int {
	if c.MaxTries > 0 {
		return c.MaxTries
	}

	return DefaultMaxTries
}

func (c *Config) retryInterval() time.Duration {
	if c.RetryInterval > 0 {
		return c.RetryInterval
	}

	return DefaultRetryInterval
}
