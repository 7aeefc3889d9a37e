package audio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

const (
	// MinGainDB and MaxGainDB bound the gain accepted by WithGain.
	MinGainDB = -60.0
	MaxGainDB = 24.0

	// Output is always 16-bit stereo.
	Channels       = 2
	BytesPerSample = 2

	resampleQuality = 4
)

// Buffer is a fully decoded clip held in memory.
type Buffer struct {
	buf *beep.Buffer
}

// Decode parses WAV or MP3 bytes into a Buffer.
func Decode(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch sniff(data) {
	case "wav":
		s, format, err = wav.Decode(bytes.NewReader(data))
	case "mp3":
		s, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	defer s.Close()

	buf := beep.NewBuffer(format)
	buf.Append(s)
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if buf.Len() == 0 {
		return nil, ErrEmptyAudio
	}
	return &Buffer{buf: buf}, nil
}

func sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// SampleRate returns the native sample rate of the clip.
func (b *Buffer) SampleRate() int {
	return int(b.buf.Format().SampleRate)
}

// Len returns the number of sample frames.
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// Duration returns the playing time of the clip.
func (b *Buffer) Duration() time.Duration {
	return b.buf.Format().SampleRate.D(b.buf.Len())
}

// ClampGain limits db to [MinGainDB, MaxGainDB]. NaN becomes 0.
func ClampGain(db float64) float64 {
	if math.IsNaN(db) {
		return 0
	}
	return min(max(db, MinGainDB), MaxGainDB)
}

// WithGain returns a copy of the clip scaled by db decibels after clamping.
// A gain of zero returns the receiver unchanged.
func (b *Buffer) WithGain(db float64) *Buffer {
	db = ClampGain(db)
	if db == 0 {
		return b
	}

	vol := &effects.Volume{
		Streamer: b.buf.Streamer(0, b.buf.Len()),
		Base:     10,
		Volume:   db / 20,
	}
	out := beep.NewBuffer(b.buf.Format())
	out.Append(vol)
	return &Buffer{buf: out}
}

// Streamer returns a fresh streamer over the whole clip.
func (b *Buffer) Streamer() beep.StreamSeeker {
	return b.buf.Streamer(0, b.buf.Len())
}

// PCM renders the clip as interleaved signed 16-bit little-endian stereo at
// sampleRate. A sampleRate of zero keeps the native rate. Samples outside
// [-1, 1] are clipped.
func (b *Buffer) PCM(sampleRate int) []byte {
	src := b.buf.Format().SampleRate
	dst := src
	if sampleRate > 0 {
		dst = beep.SampleRate(sampleRate)
	}

	var s beep.Streamer = b.Streamer()
	if dst != src {
		s = beep.Resample(resampleQuality, src, dst, s)
	}

	out := beep.Format{SampleRate: dst, NumChannels: Channels, Precision: BytesPerSample}
	frame := Channels * BytesPerSample
	pcm := make([]byte, 0, dst.N(b.Duration())*frame+frame)

	samples := make([][2]float64, 512)
	tmp := make([]byte, frame)
	for {
		n, ok := s.Stream(samples)
		for _, sample := range samples[:n] {
			out.EncodeSigned(tmp, sample)
			pcm = append(pcm, tmp...)
		}
		if !ok {
			break
		}
	}
	return pcm
}

// WriteWAV encodes the clip as a 16-bit stereo WAV file.
func (b *Buffer) WriteWAV(w io.WriteSeeker) error {
	format := beep.Format{SampleRate: b.buf.Format().SampleRate, NumChannels: Channels, Precision: BytesPerSample}
	if err := wav.Encode(w, b.Streamer(), format); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}
