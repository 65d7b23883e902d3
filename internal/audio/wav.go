package audio

import (
	"context"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDecoder decodes PCM WAV files without shelling out to ffmpeg. It only
// accepts files already at its configured sample rate; anything else should go
// through the FFmpegDecoder, which resamples.
type WAVDecoder struct {
	SampleRate int
}

func NewWAVDecoder(sampleRate int) *WAVDecoder {
	return &WAVDecoder{SampleRate: sampleRate}
}

func (d *WAVDecoder) DecodeWindow(ctx context.Context, path string, offset, duration float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading wav %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.SampleRate != d.SampleRate {
		got := 0
		if buf.Format != nil {
			got = buf.Format.SampleRate
		}
		return nil, fmt.Errorf("wav %s: sample rate %d, want %d", path, got, d.SampleRate)
	}

	mono := downmix(buf)

	start := int(offset * float64(d.SampleRate))
	if start >= len(mono) {
		return nil, nil
	}
	end := start + int(duration*float64(d.SampleRate))
	if end > len(mono) {
		end = len(mono)
	}
	return mono[start:end], nil
}

// downmix converts an interleaved PCM buffer to mono float64 in [-1, 1].
func downmix(buf *goaudio.IntBuffer) []float64 {
	ch := buf.Format.NumChannels
	if ch < 1 {
		ch = 1
	}
	scale := 1.0 / 32768.0
	if buf.SourceBitDepth > 0 {
		scale = 1.0 / float64(int(1)<<(buf.SourceBitDepth-1))
	}

	frames := len(buf.Data) / ch
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c]) * scale
		}
		out[i] = sum / float64(ch)
	}
	return out
}

// WriteWAV writes mono float64 samples in [-1, 1] as a 16-bit PCM WAV file.
// Used to produce fixtures and debug dumps.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writing wav %s: %w", path, err)
	}
	return enc.Close()
}
