package tts

import (
	"context"
	"time"
)

func (s *Service) playbackLoop(ctx context.Context) {
	defer s.wg.Done()

	logger := s.logger.WithPrefix("playback")
	logger.Info("Playback worker started", "renderer", s.renderer.Name())
	defer logger.Info("Playback worker stopped")

	for {
		clip, err := s.playQ.Pop(ctx)
		if err != nil {
			return
		}
		s.updateDepth()
		s.play(ctx, clip)
	}
}

// play renders one clip. The done event is emitted whatever happens during
// rendering, including a panic in the renderer.
func (s *Service) play(ctx context.Context, clip Clip) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Playback panic", "text", shorten(clip.Task.Text), "panic", r)
		}
		s.metrics.ObservePlayback(time.Since(start))
		s.emit(clip.Task, StatusDone)
	}()

	s.emit(clip.Task, StatusPlaying)
	s.logger.Info("Playing", "text", shorten(clip.Task.Text), "duration", clip.Audio.Duration().Round(time.Millisecond))

	if err := s.renderer.Render(ctx, clip.Audio); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.Failures.WithLabelValues("playback").Inc()
		s.logger.Error("Playback failed", "text", shorten(clip.Task.Text), "err", err)
	}
}
