package session

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/language"

	"github.com/witwicki/streaming-xtts/pkg/protocol"
	"github.com/witwicki/streaming-xtts/pkg/segmenter"
)

// ErrInvalidConfig marks session configs rejected at handshake.
var ErrInvalidConfig = errors.New("invalid session config")

const (
	DefaultSpeaker     = "Nova Hogarth"
	DefaultLanguage    = "en"
	DefaultSpeed       = 1.0
	DefaultTemperature = 0.01

	MinSpeed       = 0.5
	MaxSpeed       = 2.0
	MaxTemperature = 1.0
)

// DefaultLanguages are the languages the synthesis model ships with.
var DefaultLanguages = []string{
	"ar", "cs", "de", "en", "es", "fr", "hu", "it",
	"ja", "ko", "nl", "pl", "pt", "ru", "tr", "zh",
}

// DefaultSpeakers are the studio voices enabled out of the box.
var DefaultSpeakers = []string{
	"Nova Hogarth",
	"Ana Florence",
	"Annmarie Nele",
	"Alison Dietlinde",
	"Abrahan Mack",
	"Baldur Sanjin",
	"Craig Gutsy",
	"Damien Black",
	"Dionisio Schuyler",
	"Gitta Nikolina",
	"Royston Min",
	"Sofia Hellen",
	"Tammie Ema",
	"Viktor Eka",
}

type SpeechConfig struct {
	Speakers        []string `yaml:"speakers"`
	DefaultSpeaker  string   `yaml:"default_speaker"`
	Languages       []string `yaml:"languages"`
	DefaultLanguage string   `yaml:"default_language"`
}

func (c *SpeechConfig) speakers() []string {
	if len(c.Speakers) > 0 {
		return c.Speakers
	}

	return DefaultSpeakers
}

func (c *SpeechConfig) defaultSpeaker() string {
	if c.DefaultSpeaker != "" {
		return c.DefaultSpeaker
	}

	return DefaultSpeaker
}

func (c *SpeechConfig) languages() []string {
	if len(c.Languages) > 0 {
		return c.Languages
	}

	return DefaultLanguages
}

func (c *SpeechConfig) defaultLanguage() string {
	if c.DefaultLanguage != "" {
		return c.DefaultLanguage
	}

	return DefaultLanguage
}

// Resolve fills defaults into conf and validates every knob. Language tags
// are canonicalized to their base language, so "en-US" resolves to "en".
// The returned config is what the engine receives for every segment of the
// session.
func (c *SpeechConfig) Resolve(conf protocol.SessionConfig) (protocol.SessionConfig, segmenter.Mode, error) {
	if conf.Speaker == "" {
		conf.Speaker = c.defaultSpeaker()
	}
	if !slices.Contains(c.speakers(), conf.Speaker) {
		return conf, "", fmt.Errorf("%w: unknown speaker %q", ErrInvalidConfig, conf.Speaker)
	}

	if conf.Language == "" {
		conf.Language = c.defaultLanguage()
	}

	tag, err := language.Parse(conf.Language)
	if err != nil {
		return conf, "", fmt.Errorf("%w: unrecognized language %q", ErrInvalidConfig, conf.Language)
	}

	base, _ := tag.Base()
	conf.Language = base.String()

	if !slices.Contains(c.languages(), conf.Language) {
		return conf, "", fmt.Errorf("%w: unsupported language %q", ErrInvalidConfig, conf.Language)
	}

	if conf.Speed == 0 {
		conf.Speed = DefaultSpeed
	}
	if conf.Speed < MinSpeed || conf.Speed > MaxSpeed {
		return conf, "", fmt.Errorf("%w: speed %.2f out of range [%.1f, %.1f]", ErrInvalidConfig, conf.Speed, MinSpeed, MaxSpeed)
	}

	if conf.Temperature == 0 {
		conf.Temperature = DefaultTemperature
	}
	if conf.Temperature < 0 || conf.Temperature > MaxTemperature {
		return conf, "", fmt.Errorf("%w: temperature %.2f out of range (0, %.1f]", ErrInvalidConfig, conf.Temperature, MaxTemperature)
	}

	mode, err := segmenter.ParseMode(conf.Split)
	if err != nil {
		return conf, "", fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	conf.Split = string(mode)

	return conf, mode, nil
}
