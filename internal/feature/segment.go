package feature

// Window is one segment of audio to sample: offset and duration in seconds.
type Window struct {
	Offset   float64
	Duration float64
}

// Windows tiles count back-to-back segments of the given duration from the
// start of the file: offset_i = i * duration. No overlap, no randomization;
// windows past the end of a short file simply decode to nothing and are
// skipped downstream.
func Windows(duration float64, count int) []Window {
	out := make([]Window, count)
	for i := range out {
		out[i] = Window{Offset: float64(i) * duration, Duration: duration}
	}
	return out
}
