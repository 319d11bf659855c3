// Package resample converts a source stream's sample rate and channel
// layout to the engine's internal rate/layout (spec §4.4), via a
// phase-coherent resampler (or a linear fallback) plus fixed channel remap
// matrices.
package resample

import "smsengine/internal/sound"

// Matrix is a [engineChannels][sourceChannels] set of mix weights: output
// channel o = sum over source channels s of Matrix[o][s] * input[s].
type Matrix [][]float32

// Remap applies m to one frame of source channels, writing into dst (which
// must have len(m) capacity).
func (m Matrix) Remap(dst, src []float32) {
	for o, weights := range m {
		var acc float32
		for s, w := range weights {
			if s < len(src) {
				acc += w * src[s]
			}
		}
		dst[o] = acc
	}
}

// ITU-weighted downmix coefficients; upmix leaves unmapped channels silent
// except mono->stereo (duplicated) and LFE (always silent in upmix, since
// deriving a low-passed LFE channel from fronts is out of scope per §4.4).
const (
	centerMix = 0.7071 // -3dB, conventional ITU center-channel downmix weight
	surroundMix = 0.7071
)

// BuildMatrix returns the fixed remap matrix for converting from src to dst
// layout, among {mono, stereo, headphones, quad, 5.1, 7.1}.
func BuildMatrix(src, dst sound.Layout) Matrix {
	if src == dst {
		return identity(dst.Channels())
	}
	sc, dc := src.Channels(), dst.Channels()

	switch {
	case sc == 1 && (dc == 2):
		// mono -> stereo: duplicate to both channels.
		return Matrix{{1}, {1}}
	case sc == 1:
		// mono -> N: duplicate to front-left/front-right (channels 0,1),
		// everything else silent.
		m := zero(dc, sc)
		if dc > 0 {
			m[0][0] = 1
		}
		if dc > 1 {
			m[1][0] = 1
		}
		return m
	case sc == 2 && dc == 1:
		// stereo -> mono: average L+R.
		return Matrix{{0.5, 0.5}}
	case sc > 2 && dc == 1:
		// surround -> mono: average L/R of the stereo downmix.
		st := downmix(sc, 2)
		m := zero(1, sc)
		for s := 0; s < sc; s++ {
			m[0][s] = 0.5 * (st[0][s] + st[1][s])
		}
		return m
	case sc > dc:
		return downmix(sc, dc)
	default:
		return upmix(sc, dc)
	}
}

func identity(n int) Matrix {
	m := zero(n, n)
	for i := 0; i < n; i++ {
		m[i][i] = 1
	}
	return m
}

func zero(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]float32, cols)
	}
	return m
}

// downmix routes surround channels down to stereo (or mono, handled above)
// using conventional ITU front/center/surround weights. Channel order
// follows the common WAV/ITU convention: FL, FR, FC, LFE, BL/SL, BR/SR,
// (7.1 adds) SL, SR.
func downmix(sc, dc int) Matrix {
	m := zero(dc, sc)
	// front left/right pass straight through to L/R.
	if sc > 0 {
		m[0][0] = 1
	}
	if sc > 1 && dc > 1 {
		m[1][1] = 1
	}
	if sc > 2 { // center -> both
		m[0][2] += centerMix
		if dc > 1 {
			m[1][2] += centerMix
		}
	}
	// index 3 is LFE: dropped in downmix to stereo, per spec (no low-pass
	// derivation is implemented).
	if sc > 4 { // surround/back left -> L
		m[0][4] += surroundMix
	}
	if sc > 5 && dc > 1 { // surround/back right -> R
		m[1][5] += surroundMix
	}
	if sc > 6 { // 7.1 side left -> L
		m[0][6] += surroundMix
	}
	if sc > 7 && dc > 1 { // 7.1 side right -> R
		m[1][7] += surroundMix
	}
	return m
}

// upmix routes fewer source channels into more destination channels,
// leaving everything beyond stereo silent except mono's front duplication
// (handled by the sc==1 case in BuildMatrix).
func upmix(sc, dc int) Matrix {
	m := zero(dc, sc)
	for i := 0; i < sc && i < dc; i++ {
		m[i][i] = 1
	}
	return m
}
