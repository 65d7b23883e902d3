package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"time"
)

// Decoder resolves a window of an audio file to mono samples at a fixed rate.
// A window that lies entirely past the end of the file decodes to an empty,
// non-error result; callers treat that as "nothing to analyze here".
type Decoder interface {
	DecodeWindow(ctx context.Context, path string, offset, duration float64) ([]float64, error)
}

// FFmpegDecoder decodes arbitrary audio formats by piping ffmpeg output.
// ffmpeg handles seeking, resampling and the mono downmix; we read raw
// 32-bit little-endian floats from stdout.
type FFmpegDecoder struct {
	SampleRate int
}

func NewFFmpegDecoder(sampleRate int) *FFmpegDecoder {
	return &FFmpegDecoder{SampleRate: sampleRate}
}

func (d *FFmpegDecoder) DecodeWindow(ctx context.Context, path string, offset, duration float64) ([]float64, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	// Cap decode time when the caller set no deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
	}

	args := []string{
		"-hide_banner", "-v", "error",
		"-ss", fmt.Sprintf("%.3f", offset),
		"-t", fmt.Sprintf("%.3f", duration),
		"-i", path,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", d.SampleRate),
		"-f", "f32le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var out bytes.Buffer
	var errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg decode %s: %v (%s)", path, err, bytes.TrimSpace(errBuf.Bytes()))
	}

	raw := out.Bytes()
	if len(raw)%4 != 0 {
		raw = raw[:len(raw)-len(raw)%4]
	}
	n := len(raw) / 4
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[4*i:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return samples, nil
}
