package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"github.com/witwicki/streaming-xtts/pkg/face"
	"github.com/witwicki/streaming-xtts/pkg/playback"
	"github.com/witwicki/streaming-xtts/pkg/protocol"
	"github.com/witwicki/streaming-xtts/pkg/speaker"
	"github.com/witwicki/streaming-xtts/pkg/wavfile"
	"github.com/witwicki/streaming-xtts/pkg/ws"
)

func main() {
	var (
		server      = flag.String("server", "ws://localhost:8003/api/v1/stream", "streaming endpoint")
		text        = flag.String("text", "", "text to speak")
		file        = flag.String("file", "", "read the text from a file")
		speakerName = flag.String("speaker", "", "voice name, server default when empty")
		language    = flag.String("language", "", "language code, server default when empty")
		speed       = flag.Float64("speed", 0, "speech speed, 0.5 to 2.0")
		temperature = flag.Float64("temperature", 0, "sampling temperature in (0, 1]")
		split       = flag.String("split", "", "segmentation mode: clause, sentence, balanced or none")
		play        = flag.Bool("play", false, "play the audio as it arrives")
		out         = flag.String("out", "", "write the finished utterance to a WAV file")
		faceURL     = flag.String("face", "", "facial animation endpoint for lip sync")
		prime       = flag.Duration("prime", playback.DefaultPrime, "audio buffered before playback starts")
	)
	flag.Parse()

	if (*text == "") == (*file == "") {
		log.Fatal("exactly one of -text and -file is required")
	}

	if !*play && *out == "" {
		log.Fatal("nothing to do: pass -play, -out or both")
	}

	input := *text
	if *file != "" {
		raw, err := os.ReadFile(*file)
		if err != nil {
			log.Fatal("failed to read input file: ", err)
		}

		input = string(raw)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	go func() {
		<-stop
		logger.Info("Interrupt triggered")
		cancel()
	}()

	var sink playback.Sink = playback.Discard{}
	if *play {
		sp, err := speaker.New(speaker.DefaultFramesPerBuffer, logger.WithGroup("speaker"))
		if err != nil {
			log.Fatal("failed to init audio output: ", err)
		}

		sink = sp
	}

	buf := playback.New(sink, playback.Config{Prime: *prime, Keep: *out != ""}, logger.WithGroup("playback"))

	fanout := face.New(ctx, &face.Config{URL: *faceURL}, &http.Client{}, logger.WithGroup("face"))

	client, _, err := ws.Dial(ctx, *server)
	if err != nil {
		log.Fatal("failed to connect: ", err)
	}
	defer client.Close()

	raw, err := protocol.Marshal(protocol.TypeHandshake, &protocol.Handshake{
		Text: input,
		Config: protocol.SessionConfig{
			Speaker:     *speakerName,
			Language:    *language,
			Speed:       *speed,
			Temperature: *temperature,
			Split:       *split,
		},
	})
	if err != nil {
		log.Fatal("failed to marshal handshake: ", err)
	}

	if err := client.Send(&ws.Message{MsgType: websocket.TextMessage, Message: raw}); err != nil {
		log.Fatal("failed to send handshake: ", err)
	}

	playDone := make(chan error, 1)
	go func() {
		playDone <- buf.Run(ctx)
	}()

	faceDone := make(chan error, 1)
	go func() {
		faceDone <- fanout.Run(ctx)
	}()

	closed, recvErr := receive(ctx, client, buf, fanout)

	playErr := <-playDone

	cancel()
	<-faceDone

	if recvErr != nil {
		logger.Error("aborted mid-stream", "err", recvErr)
		os.Exit(1)
	}

	if playErr != nil {
		logger.Error("playback failed", "err", playErr)
		os.Exit(1)
	}

	if *out != "" {
		if len(buf.Kept()) == 0 {
			logger.Warn("no audio received, skipping wav export")
		} else if err := writeWAV(*out, buf, *speed); err != nil {
			log.Fatal("failed to write wav: ", err)
		} else {
			logger.Info("wav written", "path", *out)
		}
	}

	logger.Info("finished",
		"segments", closed.Segments,
		"skipped", closed.Skipped,
		"underruns", buf.Underruns(),
		"face_events", fanout.Sent())
}

// receive drives the session to its terminal message, feeding every chunk to
// the playback buffer and the lip-sync fanout.
func receive(ctx context.Context, client *ws.Client, buf *playback.Buffer, fanout *face.Fanout) (*protocol.SessionClosed, error) {
	for {
		msg, err := client.Read(ctx)
		if err != nil {
			err = fmt.Errorf("connection lost: %w", err)
			buf.Abort(err)

			return nil, err
		}

		env, err := protocol.Unmarshal(msg.Message)
		if err != nil {
			buf.Abort(err)

			return nil, err
		}

		switch env.Type {
		case protocol.TypeChunk:
			chunk, err := protocol.DecodeChunk(env)
			if err != nil {
				buf.Abort(err)

				return nil, err
			}

			if err := buf.OnChunk(chunk); err != nil {
				err = fmt.Errorf("broken stream: %w", err)
				buf.Abort(err)

				return nil, err
			}

			fanout.OnChunk(chunk)
		case protocol.TypeError:
			sessErr, err := protocol.DecodeError(env)
			if err != nil {
				buf.Abort(err)

				return nil, err
			}

			err = fmt.Errorf("session failed: %s (%s)", sessErr.Message, sessErr.Code)
			buf.Abort(err)

			return nil, err
		case protocol.TypeClosed:
			closed, err := protocol.DecodeClosed(env)
			if err != nil {
				buf.Abort(err)

				return nil, err
			}

			buf.Finish()

			return closed, nil
		default:
			err := fmt.Errorf("unexpected message type %q", env.Type)
			buf.Abort(err)

			return nil, err
		}
	}
}

func writeWAV(path string, buf *playback.Buffer, speed float64) error {
	if speed == 0 {
		speed = 1.0
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	gap := wavfile.GapForSpeed(wavfile.DefaultGap, speed)
	if err := wavfile.Encode(f, buf.Kept(), buf.SampleRate(), gap); err != nil {
		f.Close()

		return fmt.Errorf("failed to encode wav: %w", err)
	}

	return f.Close()
}
