// Package archive persists completed utterances as WAV files, on local disk
// and optionally in S3-compatible object storage.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dchest/uniuri"

	"github.com/witwicki/streaming-xtts/pkg/objstore"
	"github.com/witwicki/streaming-xtts/pkg/slg"
	"github.com/witwicki/streaming-xtts/pkg/wavfile"
)

type Config struct {
	Enabled bool `yaml:"enabled"`
	// Dir keeps local copies. Empty means upload-only: files are staged in
	// the OS temp dir and removed after upload.
	Dir string `yaml:"dir"`
	// Gap is the silence inserted between segments at speed 1.0.
	Gap time.Duration `yaml:"gap"`

	S3 objstore.Config `yaml:"s3"`
}

type Archiver struct {
	cfg   *Config
	store *objstore.Store
}

func New(cfg *Config) (*Archiver, error) {
	a := &Archiver{
		cfg: cfg,
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive dir: %w", err)
		}
	}

	if cfg.S3.Endpoint != "" {
		store, err := objstore.New(&cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create object store: %w", err)
		}

		a.store = store
	}

	return a, nil
}

func (a *Archiver) gap() time.Duration {
	if a.cfg.Gap > 0 {
		return a.cfg.Gap
	}

	return wavfile.DefaultGap
}

// Archive writes one utterance to a WAV file named speech_<id>.wav, with
// segment gaps scaled by the session's speed, and uploads it when object
// storage is configured. It logs through the context so archive lines carry
// the caller's session scope.
func (a *Archiver) Archive(ctx context.Context, payloads [][]byte, sampleRate int, speed float64) error {
	if len(payloads) == 0 {
		return nil
	}

	logger := slg.GetSlog(ctx)

	name := fmt.Sprintf("speech_%s.wav", uniuri.New())

	dir := a.cfg.Dir
	keepLocal := dir != ""
	if !keepLocal {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, name)

	if err := a.encode(path, payloads, sampleRate, speed); err != nil {
		return err
	}

	if !keepLocal {
		defer func() {
			if err := os.Remove(path); err != nil {
				logger.Warn("failed to remove staged archive", "path", path, "err", err)
			}
		}()
	}

	if a.store != nil {
		if err := a.upload(ctx, name, path); err != nil {
			return err
		}
	}

	logger.Info("utterance archived", "name", name, "local", keepLocal, "uploaded", a.store != nil)

	return nil
}

func (a *Archiver) encode(path string, payloads [][]byte, sampleRate int, speed float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	gap := wavfile.GapForSpeed(a.gap(), speed)

	if err := wavfile.Encode(f, payloads, sampleRate, gap); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to encode archive: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}

	return nil
}

func (a *Archiver) upload(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive for upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := a.store.PutWAV(ctx, name, f, info.Size()); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	return nil
}
