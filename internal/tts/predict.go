package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/bilivoice/internal/audio"
	"github.com/dgnsrekt/bilivoice/internal/gradio"
)

func (s *Service) predictLoop(ctx context.Context) {
	defer s.wg.Done()

	logger := s.logger.WithPrefix("predict")
	logger.Info("Predict worker started")
	defer logger.Info("Predict worker stopped")

	sel := &modelSelector{
		logger:   logger,
		onSwitch: s.metrics.ModelSwitches.Inc,
		newClient: func(st *Settings) *gradio.Client {
			opts := []gradio.Option{
				gradio.WithTimeout(st.RequestTimeout),
				gradio.WithInsecureSkipVerify(!st.SSLVerify),
				gradio.WithLogger(logger),
			}
			if s.httpClient != nil {
				opts = append(opts, gradio.WithHTTPClient(s.httpClient))
			}
			return gradio.New(st.ServerURL, opts...)
		},
	}
	defer sel.reset()

	for {
		task, err := s.predictQ.Pop(ctx)
		if err != nil {
			return
		}
		s.updateDepth()

		if err := s.predictOne(ctx, sel, task); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.Failures.WithLabelValues(failureKind(err)).Inc()
			logger.Error("TTS generation failed", "text", shorten(task.Text), "key", task.Key, "err", err)
			sleep(ctx, s.errorBackoff)
		}
	}
}

// predictOne synthesizes one task and hands the clip to the playback queue.
// A panic anywhere in the step is turned into an error.
func (s *Service) predictOne(ctx context.Context, sel *modelSelector, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sel.reset()
			err = fmt.Errorf("predict panic: %v", r)
		}
	}()

	snap := s.snap.Load()

	client, err := sel.ensure(ctx, &snap.Settings)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.metrics.Failures.WithLabelValues("connection").Inc()
		s.outage.Do(func() {
			s.logger.Warn("Inference server unavailable, skipping text", "url", snap.ServerURL, "err", err)
		})
		sleep(ctx, s.selectBackoff)
		return nil
	}

	start := time.Now()
	s.logger.Info("Generating TTS", "text", shorten(task.Text), "priority", task.Priority)

	data, err := client.Call(ctx, fnInference, inferenceArgs(&snap.Settings, task.Text)...)
	if err != nil {
		return err
	}

	audioURL, err := extractAudioURL(data)
	if err != nil {
		return err
	}

	raw, err := client.Download(ctx, audioURL)
	if err != nil {
		return fmt.Errorf("download audio: %w", err)
	}
	s.metrics.DownloadedBytes.Add(float64(len(raw)))

	buf, err := audio.Decode(raw)
	if err != nil {
		return err
	}
	buf = buf.WithGain(snap.VolumeDB)

	elapsed := time.Since(start)
	s.metrics.ObserveInference(elapsed)
	s.logger.Info("Generated audio",
		"size", humanize.Bytes(uint64(len(raw))),
		"duration", buf.Duration().Round(time.Millisecond),
		"took", elapsed.Round(time.Millisecond),
	)

	if !s.playQ.Push(Clip{Audio: buf, Task: task}, task.Priority) {
		s.metrics.Rejected.WithLabelValues("playback").Inc()
		s.logger.Warn("Playback queue full, dropping clip", "text", shorten(task.Text), "key", task.Key)
		s.emit(task, StatusCancelled)
		return nil
	}
	s.updateDepth()
	return nil
}

// inferenceArgs builds the positional argument list of the /inference call.
func inferenceArgs(st *Settings, text string) []any {
	var refAudio any
	if st.RefAudioPath != "" {
		refAudio = gradio.LocalFile(st.RefAudioPath)
	}

	return []any{
		text,
		st.TextLang,
		refAudio,
		[]any{}, // auxiliary reference audios
		readPromptText(st.RefTextPath),
		st.TextLang,
		st.TopK,
		st.TopP,
		st.Temperature,
		st.TextSplitMethod,
		st.BatchSize,
		st.SpeedFactor,
		st.RefTextFree,
		st.SplitBucket,
		st.FragmentInterval,
		st.Seed,
		st.KeepRandom,
		st.ParallelInfer,
		st.RepetitionPenalty,
		st.SampleSteps,
		st.SuperSampling,
	}
}

// readPromptText returns the trimmed reference transcript, or "" when the
// file is unset or unreadable.
func readPromptText(path string) string {
	if path == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func failureKind(err error) string {
	var remote *gradio.RemoteError
	switch {
	case errors.As(err, &remote):
		return "remote"
	case errors.Is(err, gradio.ErrUnknownFunction):
		return "unknown_function"
	case errors.Is(err, gradio.ErrConnection):
		return "connection"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, audio.ErrUnsupportedFormat), errors.Is(err, audio.ErrEmptyAudio):
		return "audio"
	}
	return "other"
}
