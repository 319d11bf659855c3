package control

import "math"

// Curve selects the interpolation shape used while a gain fades from one
// value to another over time. Exponential is the default: it "hangs" near
// the louder endpoint, matching conventional music-fade aesthetics.
type Curve int

const (
	CurveLinear Curve = iota
	CurveLogarithmic
	CurveExponential
)

// exponentialK controls how hard the exponential curve hangs near the louder
// endpoint: it is the exponent for fade-ins, and its reciprocal is used for
// fade-outs. This matches the teacher's soft-limit "gradual curve instead of hard clip"
// philosophy (internal/streaming/music_player.go's floatToInt16) applied to
// fade shape instead of clipping.
const exponentialK = 3.0

// Apply evaluates the curve at normalized time t in [0,1] between g0 and g1.
func Apply(c Curve, g0, g1 float32, t float64) float32 {
	if t <= 0 {
		return g0
	}
	if t >= 1 {
		return g1
	}
	switch c {
	case CurveLinear:
		return lerp(g0, g1, t)
	case CurveLogarithmic:
		return logLerp(g0, g1, t)
	default:
		return expLerp(g0, g1, t)
	}
}

func lerp(g0, g1 float32, t float64) float32 {
	return float32(float64(g0) + (float64(g1)-float64(g0))*t)
}

// logLerp interpolates perceived-constant dB per unit time: exponential
// interpolation in dB space, then converted back to linear gain.
func logLerp(g0, g1 float32, t float64) float32 {
	const floor = 1e-5 // -100 dB floor so log10(0) never happens
	d0 := toDB(g0, floor)
	d1 := toDB(g1, floor)
	d := d0 + (d1-d0)*t
	return fromDB(d)
}

func toDB(g float32, floor float64) float64 {
	v := float64(g)
	if v < floor {
		v = floor
	}
	return 20 * math.Log10(v)
}

func fromDB(db float64) float32 {
	return float32(math.Pow(10, db/20))
}

// expLerp implements g1 + (g0-g1)*(1-t)^k.
func expLerp(g0, g1 float32, t float64) float32 {
	k := exponentialK
	if g0 > g1 {
		k = 1 / exponentialK
	}
	factor := math.Pow(1-t, k)
	return float32(float64(g1) + (float64(g0)-float64(g1))*factor)
}

// Envelope tracks a single fading gain value across blocks. Time always
// advances monotonically (TurnHandle advances logical_now by exactly
// frames/sample_rate seconds per call; Envelope never backtracks).
type Envelope struct {
	curve        Curve
	g0, g1       float32
	totalSeconds float64
	elapsed      float64
}

// NewEnvelope starts a fade from `from` to `to` over `seconds` using curve.
// A zero or negative/NaN length clamps to 0 (applies instantly).
func NewEnvelope(from, to float32, seconds float64, curve Curve) Envelope {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	return Envelope{curve: curve, g0: from, g1: to, totalSeconds: seconds}
}

// Retarget restarts the envelope from its *current* gain to a new target
// over a new duration, used when a second fade command arrives before the
// first completes (spec §4.2 fade_flow_to / fade_mix_control_to semantics).
func (e *Envelope) Retarget(to float32, seconds float64, curve Curve) {
	cur := e.Gain()
	*e = NewEnvelope(cur, to, seconds, curve)
}

// Advance moves the envelope forward by dt seconds (always >= 0).
func (e *Envelope) Advance(dt float64) {
	e.elapsed += dt
	if e.elapsed > e.totalSeconds {
		e.elapsed = e.totalSeconds
	}
}

// Gain returns the envelope's current gain without advancing it.
func (e Envelope) Gain() float32 {
	if e.totalSeconds <= 0 {
		return e.g1
	}
	t := e.elapsed / e.totalSeconds
	return Apply(e.curve, e.g0, e.g1, t)
}

// GainAt returns the gain at a fractional position within the current
// block, for within-block linear interpolation of the effective gain
// (spec §4.5 step 3: "sampled at block boundaries and linearly
// interpolated within-block").
func (e Envelope) GainAt(extraDt float64) float32 {
	cp := e
	cp.Advance(extraDt)
	return cp.Gain()
}

// Done reports whether the envelope has reached its target.
func (e Envelope) Done() bool {
	return e.elapsed >= e.totalSeconds
}

// Target returns the envelope's destination gain.
func (e Envelope) Target() float32 { return e.g1 }
