// Package protocol defines the message envelopes exchanged between the
// streaming server and the playback client over a single websocket.
//
// Every message is a JSON envelope {type, data}. Within a session the server
// sends any number of chunk messages followed by exactly one terminal
// message: closed on completion, error on abort.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

type MessageType string

const (
	TypeHandshake MessageType = "handshake"
	TypeChunk     MessageType = "chunk"
	TypeError     MessageType = "error"
	TypeClosed    MessageType = "closed"
)

// EncodingPCM16 is 16-bit little-endian mono PCM, the only encoding the
// engine currently produces.
const EncodingPCM16 = "pcm16"

type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SessionConfig carries the synthesis knobs of one session. It is validated
// once at handshake and never mutated afterwards; the segmenter reads it for
// sizing decisions and the worker passes it to the engine verbatim.
type SessionConfig struct {
	Speaker     string  `json:"speaker,omitempty"`
	Language    string  `json:"language,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Split       string  `json:"split,omitempty"`
}

type Handshake struct {
	Text   string        `json:"text"`
	Config SessionConfig `json:"config"`
}

// AudioChunk is the synthesized audio of exactly one text segment. Sequence
// numbers are contiguous from 0 within a session. A chunk with an empty
// payload and a non-empty Error marks a segment whose synthesis failed
// permanently; the stream continues past it. IsFinal is set on the last
// chunk of a session and nothing but the terminal message follows it.
type AudioChunk struct {
	Sequence   uint32 `json:"sequence_number"`
	SampleRate uint32 `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Payload    []byte `json:"payload,omitempty"`
	IsFinal    bool   `json:"is_final"`
	Error      string `json:"error,omitempty"`
}

// Duration is the playback time of the chunk's payload.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || len(c.Payload) < 2 {
		return 0
	}

	samples := len(c.Payload) / 2

	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

type ErrorCode string

const (
	CodeConfigError       ErrorCode = "config_error"
	CodeProtocolViolation ErrorCode = "protocol_violation"
	CodeConnectionLost    ErrorCode = "connection_lost"
	CodeInternalError     ErrorCode = "internal_error"
)

type SessionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SessionClosed is the terminal message of a normally completed session.
// Skipped counts segments whose chunks were emitted empty after a permanent
// synthesis failure.
type SessionClosed struct {
	Segments uint32 `json:"segments"`
	Skipped  uint32 `json:"skipped"`
}

func Marshal(msgType MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}

	raw, err := json.Marshal(&Envelope{
		Type: msgType,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}

	return raw, nil
}

func Unmarshal(raw []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	switch env.Type {
	case TypeHandshake, TypeChunk, TypeError, TypeClosed:
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	return env, nil
}

func DecodeHandshake(env *Envelope) (*Handshake, error) {
	return decode[Handshake](env, TypeHandshake)
}

func DecodeChunk(env *Envelope) (*AudioChunk, error) {
	return decode[AudioChunk](env, TypeChunk)
}

func DecodeError(env *Envelope) (*SessionError, error) {
	return decode[SessionError](env, TypeError)
}

func DecodeClosed(env *Envelope) (*SessionClosed, error) {
	return decode[SessionClosed](env, TypeClosed)
}

func decode[T any](env *Envelope, want MessageType) (*T, error) {
	if env.Type != want {
		return nil, fmt.Errorf("expected %s message, got %q", want, env.Type)
	}

	payload := new(T)
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", want, err)
	}

	return payload, nil
}
