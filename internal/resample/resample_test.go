package resample

import (
	"io"
	"math"
	"testing"

	"smsengine/internal/sound"
)

// fakeMonoStream yields a fixed sequence of mono frames, one at a time.
type fakeMonoStream struct {
	rate   int
	frames []float32
	pos    int
}

func (s *fakeMonoStream) Format() sound.Format {
	return sound.Format{SampleRate: s.rate, Layout: sound.Mono}
}

func (s *fakeMonoStream) Read(buf []float32) (int, error) {
	if s.pos >= len(s.frames) {
		return 0, io.EOF
	}
	buf[0] = s.frames[s.pos]
	s.pos++
	return 1, nil
}

func (s *fakeMonoStream) Close() error { return nil }

func TestConverterSameRatePassthroughIsExact(t *testing.T) {
	// The converter looks one source frame ahead of whatever it has last
	// emitted, so a stream of N frames yields N-1 emitted frames; the final
	// frame here exists only to bracket the next-to-last output.
	src := &fakeMonoStream{rate: 44100, frames: []float32{0, 0.25, 0.5, 0.75, 1.0, -1}}
	c := NewConverter(src, 44100, sound.Mono)

	out := make([]float32, 5)
	n := c.Read(out)
	if n != 5 {
		t.Fatalf("expected 5 frames back, got %d", n)
	}
	want := []float32{0, 0.25, 0.5, 0.75, 1.0}
	for i, w := range want {
		if math.Abs(float64(out[i]-w)) > 1e-6 {
			t.Errorf("frame %d: want %v got %v", i, w, out[i])
		}
	}
}

func TestConverterShortReadSignalsExhaustion(t *testing.T) {
	src := &fakeMonoStream{rate: 44100, frames: []float32{0, 1, 2}}
	c := NewConverter(src, 44100, sound.Mono)

	out := make([]float32, 10)
	n := c.Read(out)
	if n == 0 || n >= 10 {
		t.Fatalf("expected a short, non-empty read signaling exhaustion, got %d", n)
	}
}

func TestConverterUpsampleIsMonotonicAndBounded(t *testing.T) {
	// 2x upsample: step = 0.5, so every source frame should appear, with
	// interpolated frames between each pair bounded by their neighbors.
	src := &fakeMonoStream{rate: 22050, frames: []float32{0, 1, 0, -1, 0}}
	c := NewConverter(src, 44100, sound.Mono)

	out := make([]float32, 8)
	n := c.Read(out)
	if n == 0 {
		t.Fatal("expected some output frames")
	}
	for i := 0; i < n; i++ {
		if out[i] < -1.0001 || out[i] > 1.0001 {
			t.Errorf("frame %d out of source bounds: %v", i, out[i])
		}
	}
}

func TestConverterDownsampleNeverRepeatsExactFrameEndlessly(t *testing.T) {
	// 2x downsample: step = 2, every other source frame is skipped over via
	// interpolation but the sequence must still progress monotonically and
	// eventually reach the end of a finite source.
	src := &fakeMonoStream{rate: 44100, frames: []float32{0, 1, 2, 3, 4, 5, 6, 7}}
	c := NewConverter(src, 22050, sound.Mono)

	out := make([]float32, 10)
	n := c.Read(out)
	if n == 0 {
		t.Fatal("expected output frames from a finite source at 2x downsample")
	}
	for i := 1; i < n; i++ {
		if out[i] < out[i-1] {
			t.Errorf("expected a monotonically increasing ramp source to produce non-decreasing output, frame %d (%v) < frame %d (%v)", i, out[i], i-1, out[i-1])
		}
	}
}

func TestConverterChannelRemapAppliesDuringResample(t *testing.T) {
	src := &fakeMonoStream{rate: 44100, frames: []float32{0.5, 0.5, 0.5, 0.5}}
	c := NewConverter(src, 44100, sound.Stereo)

	out := make([]float32, 6)
	n := c.Read(out)
	if n != 3 {
		t.Fatalf("expected 3 stereo frames, got %d", n)
	}
	for i := 0; i < n; i++ {
		l, r := out[i*2], out[i*2+1]
		if l != 0.5 || r != 0.5 {
			t.Errorf("frame %d: expected mono 0.5 duplicated to both channels, got L=%v R=%v", i, l, r)
		}
	}
}
