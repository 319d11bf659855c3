// Package mixer implements the per-block pull/sum pipeline (spec §4.5):
// installing newly-fired sources, computing each source's effective gain
// from its own level times its MixControl and Flow envelopes (sampled at
// block boundaries, linearly interpolated within the block), pulling
// resampled/remapped frames, and summing them into the host's output
// buffer.
package mixer

import (
	"smsengine/internal/control"
	"smsengine/internal/loader"
	"smsengine/internal/resample"
	"smsengine/internal/scheduler"
	"smsengine/internal/sound"
	"smsengine/internal/soundtrack"
)

type activeSource struct {
	key        loader.Key
	raw        sound.FormattedSoundStream // owns the read cursor; Seeker probed directly on this
	conv       *resample.Converter        // rate/layout adapter wrapping raw
	gain       float32                    // static per-source level (Sound.Gain)
	mixControl string
	flowName   string
	loop       soundtrack.LoopPoints
	nativeRate int
	done       bool
}

// Snapshot captures the block-boundary gain (flow x mixcontrol) for every
// currently active source, taken once before the scheduler advances and
// once after, so Mix can linearly interpolate within the block.
type Snapshot map[string]float32 // keyed by flowName+"\x00"+mixControl

func snapshotKey(flow, bus string) string { return flow + "\x00" + bus }

// Mixer owns the active source list and performs the per-block pull/sum.
type Mixer struct {
	rate   int
	layout sound.Layout
	ld     *loader.Loader

	sources []*activeSource
	scratch []float32 // reusable native-format decode buffer
}

// New builds a Mixer targeting (rate, layout), pulling from ld's cache. ld
// is also used to release a source's playback reference when it leaves the
// active list, balancing the RequestPlayback the scheduler issued when it
// fired (spec §4.3's precache/playback refcount pair).
func New(rate int, layout sound.Layout, ld *loader.Loader) *Mixer {
	return &Mixer{rate: rate, layout: layout, ld: ld}
}

// ActiveCount returns the number of currently active sources (for
// telemetry).
func (m *Mixer) ActiveCount() int { return len(m.sources) }

// Snapshot computes the current flow x mixcontrol gain product for every
// active source, to be taken once before scheduler.Advance and once after.
func (m *Mixer) Snapshot(sched *scheduler.Scheduler, mixCtrl *control.MixControlMap) Snapshot {
	snap := make(Snapshot, len(m.sources))
	for _, src := range m.sources {
		key := snapshotKey(src.flowName, src.mixControl)
		if _, ok := snap[key]; ok {
			continue
		}
		snap[key] = sched.FlowGain(src.flowName) * busGain(mixCtrl, src.mixControl)
	}
	return snap
}

func busGain(mixCtrl *control.MixControlMap, name string) float32 {
	if b, ok := mixCtrl.Lookup(name); ok {
		return b.Envelope.Gain()
	}
	// A source's mix control must be present in the map for as long as the
	// source is active (spec §3); a missing bus here means its contribution
	// has already ceased, not that it should play at full volume.
	return 0
}

// Install turns newly-fired sounds into active sources, pulling their
// streams from the loader cache. A source whose cache entry isn't ready
// (shouldn't happen — the scheduler only fires once precharge/play request
// succeeds, but a same-block race is possible) or whose open failed is
// silently dropped; the loader/delegate have already warned.
func (m *Mixer) Install(fired []scheduler.FiredSound, ld *loader.Loader) {
	for _, f := range fired {
		stream, state, err := ld.Poll(f.Key)
		if err != nil || state != loader.StateReady || stream == nil {
			continue
		}

		playStream := stream
		if cloner, ok := stream.(sound.Cloner); ok {
			if cp, cerr := cloner.Clone(m.rate, m.layout); cerr == nil {
				playStream = cp
			}
		}
		if f.Sound.Length > 0 {
			playStream = newLengthLimitedStream(playStream, f.Sound.Length)
		}

		src := &activeSource{
			key:        f.Key,
			raw:        playStream,
			conv:       resample.NewConverter(playStream, m.rate, m.layout),
			gain:       f.Sound.Gain,
			mixControl: f.MixControl,
			flowName:   f.FlowName,
			loop:       f.Sound.Loop,
			nativeRate: playStream.Format().SampleRate,
		}
		m.sources = append(m.sources, src)
	}
}

// Evict drops every active source attributed to a killed Flow or a killed
// MixControl bus, closing its stream.
func (m *Mixer) Evict(killedFlows, killedBuses []string) {
	if len(killedFlows) == 0 && len(killedBuses) == 0 {
		return
	}
	flowSet := make(map[string]struct{}, len(killedFlows))
	for _, f := range killedFlows {
		flowSet[f] = struct{}{}
	}
	busSet := make(map[string]struct{}, len(killedBuses))
	for _, b := range killedBuses {
		busSet[b] = struct{}{}
	}

	kept := m.sources[:0]
	for _, src := range m.sources {
		_, flowDead := flowSet[src.flowName]
		_, busDead := busSet[src.mixControl]
		if flowDead || busDead {
			m.retire(src)
			continue
		}
		kept = append(kept, src)
	}
	m.sources = kept
}

// retire closes a source's stream and releases the playback reference the
// scheduler took on it when it fired (spec §4.3), balancing the
// RequestPlayback in scheduler.fireSound. Called everywhere a source leaves
// the active list, so a cache entry's refcount never outlives its playback.
func (m *Mixer) retire(src *activeSource) {
	src.raw.Close()
	m.ld.ReleasePlayback(src.key)
}

const mixScratchFrames = 256

// Mix pulls frames sample-frames from every active source, scales by its
// effective gain (linearly interpolated between before and after
// snapshots across the block), and sums into out (interleaved, m.layout's
// channel count per frame; out is summed into, never overwritten). Sources
// that hit end-of-stream are looped (if loop points are set and seekable)
// or evicted.
func (m *Mixer) Mix(out []float32, before, after Snapshot) {
	ch := m.layout.Channels()
	frames := len(out) / ch
	if frames == 0 {
		return
	}
	if cap(m.scratch) < len(out) {
		m.scratch = make([]float32, len(out))
	}
	buf := m.scratch[:len(out)]

	kept := m.sources[:0]
	for _, src := range m.sources {
		key := snapshotKey(src.flowName, src.mixControl)
		g0 := before[key] * src.gain
		g1 := after[key] * src.gain

		n := src.conv.Read(buf)
		for i := 0; i < n; i++ {
			t := float64(i) / float64(frames)
			g := float32(float64(g0) + (float64(g1)-float64(g0))*t)
			for c := 0; c < ch; c++ {
				out[i*ch+c] += g * buf[i*ch+c]
			}
		}

		if n < frames {
			if m.handleShortRead(src) {
				kept = append(kept, src)
				continue
			}
			m.retire(src)
			continue
		}
		kept = append(kept, src)
	}
	m.sources = kept
}

// handleShortRead applies loop-point policy to a source that just hit
// end-of-stream: seeks back to the loop start if the source declares loop
// points and supports exact seek, otherwise reports that the source should
// be evicted.
func (m *Mixer) handleShortRead(src *activeSource) (keep bool) {
	if !src.loop.Enabled {
		return false
	}
	seeker, ok := src.raw.(sound.Seeker)
	if !ok {
		return false
	}
	if _, err := seeker.Seek(src.loop.Start); err != nil {
		return false
	}
	// The old converter has latched end-of-stream; start a fresh one from
	// the loop start.
	src.conv = resample.NewConverter(src.raw, m.rate, m.layout)
	return true
}

// lengthLimitedStream enforces Sound.Length (spec §3) as a hard per-source
// frame budget, independent of how much audio the underlying file or
// decoder actually holds: once the budget is exhausted, Read reports a
// short read (end of stream) even if the wrapped stream has more data.
// Seek rebases the remaining budget from the landed frame, so a loop
// restart (handleShortRead) still respects the Sound's declared length on
// every iteration.
type lengthLimitedStream struct {
	inner     sound.FormattedSoundStream
	budget    int64
	remaining int64
}

// newLengthLimitedStream wraps inner with a cap of length native sample
// frames. length is assumed > 0; callers skip wrapping entirely for the
// "play to end of file" case (Length == 0).
func newLengthLimitedStream(inner sound.FormattedSoundStream, length int64) sound.FormattedSoundStream {
	return &lengthLimitedStream{inner: inner, budget: length, remaining: length}
}

func (l *lengthLimitedStream) Format() sound.Format { return l.inner.Format() }

func (l *lengthLimitedStream) Read(buf []float32) (int, error) {
	ch := l.inner.Format().Layout.Channels()
	if ch <= 0 {
		ch = 1
	}
	want := int64(len(buf) / ch)
	if want > l.remaining {
		want = l.remaining
	}
	if want <= 0 {
		return 0, nil
	}
	n, err := l.inner.Read(buf[:want*int64(ch)])
	l.remaining -= int64(n)
	return n, err
}

func (l *lengthLimitedStream) Close() error { return l.inner.Close() }

// Seek forwards to the inner stream's Seeker, if any, and rebases the
// remaining budget from the landed frame.
func (l *lengthLimitedStream) Seek(frame int64) (int64, error) {
	seeker, ok := l.inner.(sound.Seeker)
	if !ok {
		return 0, sound.ErrNotSupported
	}
	landed, err := seeker.Seek(frame)
	if err != nil {
		return landed, err
	}
	l.remaining = l.budget - landed
	if l.remaining < 0 {
		l.remaining = 0
	}
	return landed, nil
}
