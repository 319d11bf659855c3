package resample

import "smsengine/internal/sound"

// Converter adapts a FormattedSoundStream's native (rate, layout) to the
// engine's (rate, layout) by channel-remapping each decoded frame and then
// linearly interpolating across the rate ratio. This is the spec's
// "linear fallback", used whenever the source isn't already a beep-backed
// decoder with its own phase-coherent resampler (internal/sound's vorbis
// adapter resamples itself via beep.Resample before Converter ever sees
// it). The fallback is phase-coherent and monotonic in time: every output
// frame samples forward-only positions in the source, never repeating or
// skipping a source frame index outright — it only ever blends between
// the two neighboring source frames.
type Converter struct {
	src        sound.FormattedSoundStream
	srcRate    int
	srcCh      int
	dstRate    int
	matrix     Matrix
	dstCh      int

	phase   float64 // fractional read position, in source frames
	step    float64 // srcRate/dstRate per output frame
	prev    []float32
	cur     []float32
	haveCur bool
	eof     bool

	readBuf []float32 // scratch, one source frame wide
}

// NewConverter builds a Converter pulling from src and producing frames at
// (dstRate, dstLayout).
func NewConverter(src sound.FormattedSoundStream, dstRate int, dstLayout sound.Layout) *Converter {
	f := src.Format()
	dstCh := dstLayout.Channels()
	c := &Converter{
		src:     src,
		srcRate: f.SampleRate,
		srcCh:   f.Layout.Channels(),
		dstRate: dstRate,
		matrix:  BuildMatrix(f.Layout, dstLayout),
		dstCh:   dstCh,
		prev:    make([]float32, dstCh),
		cur:     make([]float32, dstCh),
		readBuf: make([]float32, f.Layout.Channels()),
	}
	if dstRate <= 0 || c.srcRate <= 0 {
		c.step = 1
	} else {
		c.step = float64(c.srcRate) / float64(dstRate)
	}
	return c
}

// needsResampling reports whether the source rate differs from the target;
// callers may skip the Converter entirely and remap in place when it
// doesn't (same-rate sources still need channel remap, just no
// interpolation).
func (c *Converter) needsResampling() bool {
	return c.srcRate != c.dstRate
}

func (c *Converter) advanceSource() bool {
	if c.eof {
		return false
	}
	n, err := c.src.Read(c.readBuf)
	if n == 0 || err != nil {
		c.eof = true
		return false
	}
	copy(c.prev, c.cur)
	c.matrix.Remap(c.cur, c.readBuf)
	return true
}

// Read fills dst (interleaved, dstCh channels per frame) with resampled,
// remapped frames. Returns the number of frames written; a short count
// signals source exhaustion.
func (c *Converter) Read(dst []float32) int {
	framesWanted := len(dst) / c.dstCh
	if !c.haveCur {
		if !c.advanceSource() {
			return 0
		}
		copy(c.prev, c.cur) // prev = cur = frame0, so output0 doesn't interpolate from silence
		c.advanceSource()   // pull one frame ahead so cur brackets position 0 from above
		c.haveCur = true
	}

	written := 0
	for written < framesWanted {
		floor := int64(c.phase)
		frac := c.phase - float64(floor)

		for floor > 0 {
			if !c.advanceSource() {
				return written
			}
			c.phase -= 1
			floor = int64(c.phase)
		}

		for ch := 0; ch < c.dstCh; ch++ {
			dst[written*c.dstCh+ch] = lerp32(c.prev[ch], c.cur[ch], frac)
		}
		c.phase += c.step
		written++
	}
	return written
}

func lerp32(a, b float32, t float64) float32 {
	return float32(float64(a) + (float64(b)-float64(a))*t)
}
