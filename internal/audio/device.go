//go:build !nocgo

package audio

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func deviceContext(sampleRate int) (*oto.Context, int, error) {
	otoOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		switch runtime.GOOS {
		case "darwin":
			options.BufferSize = 100 * time.Millisecond
		default:
			options.BufferSize = 50 * time.Millisecond
		}

		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			otoErr = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
			return
		}
		<-ready
		otoCtx, otoRate = ctx, sampleRate
	})
	return otoCtx, otoRate, otoErr
}

// DeviceRenderer plays clips on the default output device.
type DeviceRenderer struct {
	sampleRate int
	poll       time.Duration
}

// NewDeviceRenderer creates a renderer that resamples every clip to
// sampleRate. The device is opened on first use; the first sample rate wins
// for the lifetime of the process.
func NewDeviceRenderer(sampleRate int) *DeviceRenderer {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &DeviceRenderer{sampleRate: sampleRate, poll: 10 * time.Millisecond}
}

// Name implements Renderer.
func (d *DeviceRenderer) Name() string {
	return "device"
}

// Render implements Renderer.
func (d *DeviceRenderer) Render(ctx context.Context, b *Buffer) error {
	octx, rate, err := deviceContext(d.sampleRate)
	if err != nil {
		return err
	}

	pcm := b.PCM(rate)
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	// pcm must stay reachable until the player has drained it.
	reader := bytes.NewReader(pcm)
	player := octx.NewPlayer(reader)
	defer player.Close()

	player.Play()

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := player.Err(); err != nil {
		return fmt.Errorf("device playback: %w", err)
	}
	runtime.KeepAlive(pcm)
	return nil
}
