// Package engine assembles the command transport, soundtrack interpreter,
// loader, and mixer into the public SMS Engine: the single type a host
// constructs, turns the handle on, and issues commands to (spec §2's data
// flow end to end).
package engine

import (
	"errors"
	"sync/atomic"
	"time"

	"smsengine/internal/control"
	"smsengine/internal/loader"
	"smsengine/internal/mixer"
	"smsengine/internal/scheduler"
	"smsengine/internal/sound"
	"smsengine/internal/soundtrack"
	"smsengine/internal/telemetry"
	"smsengine/internal/transport"
)

// Config holds the Engine's construction parameters (spec §6).
type Config struct {
	Delegate         sound.Delegate
	SpeakerLayout    sound.Layout
	SampleRate       int
	NumThreads       int // 0 = auto
	BackgroundLoading bool
}

func (c Config) validate() error {
	if c.Delegate == nil {
		return errors.New("engine: delegate must not be nil")
	}
	if c.SampleRate <= 0 {
		return errors.New("engine: sample_rate must be > 0")
	}
	switch c.SpeakerLayout {
	case sound.Mono, sound.Stereo, sound.Headphones, sound.Quad, sound.Surround51, sound.Surround71:
	default:
		return errors.New("engine: invalid speaker_layout")
	}
	return nil
}

// Engine is the runtime's single public entry point. Exactly one goroutine
// (the "audio thread") may call TurnHandle; any number of goroutines may
// hold Commanders.
type Engine struct {
	cfg Config

	queue    *transport.Queue
	commander *transport.Commander

	flowCtrl *control.FlowControlMap
	mixCtrl  *control.MixControlMap
	loader   *loader.Loader
	sched    *scheduler.Scheduler
	mix      *mixer.Mixer

	track atomic.Pointer[soundtrack.Soundtrack]

	logicalNow float64
}

// New validates cfg and constructs an idle Engine with an empty Soundtrack.
// Invalid construction parameters fail synchronously (spec §7).
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		queue:    transport.NewQueue(),
		flowCtrl: control.NewFlowControlMap(),
		mixCtrl:  control.NewMixControlMap(),
	}
	e.commander = transport.NewCommander(e.queue)
	e.loader = loader.New(cfg.Delegate, cfg.SampleRate, cfg.SpeakerLayout, cfg.BackgroundLoading, cfg.NumThreads)
	e.track.Store(soundtrack.New())
	e.sched = scheduler.New(e.track.Load(), e.flowCtrl, e.mixCtrl, e.loader, cfg.Delegate)
	e.mix = mixer.New(cfg.SampleRate, cfg.SpeakerLayout, e.loader)

	e.loader.Start()
	return e, nil
}

// Commander returns the Engine's root command-issuing handle. Commander.
// Clone produces additional cheap handles sharing the same queue.
func (e *Engine) Commander() *transport.Commander { return e.commander }

// Close stops the loader's background runtime, awaiting in-flight tasks
// (spec §5: "destroying the Engine drains pending loader tasks").
func (e *Engine) Close() {
	e.loader.Stop()
}

// TurnHandle drains the command queue, advances the soundtrack interpreter
// by frames/sample_rate seconds, and mixes that many frames into out
// (interleaved f32, speaker-layout channel count per frame; summed into,
// never overwritten). Never blocks. It does allocate small per-block
// bookkeeping: the drained batch slice, the two gain snapshot maps, and the
// fired-sound list.
func (e *Engine) TurnHandle(out []float32) {
	start := time.Now()
	ch := e.cfg.SpeakerLayout.Channels()
	frames := len(out) / ch
	if frames == 0 {
		return
	}

	batches := e.queue.Drain()
	for _, batch := range batches {
		for _, cmd := range batch.Commands {
			if cmd.Kind == transport.KindReplaceSoundtrack && cmd.Soundtrack != nil {
				e.track.Store(cmd.Soundtrack)
			}
			e.sched.ApplyCommand(cmd)
		}
	}

	dt := float64(frames) / float64(e.cfg.SampleRate)
	before := e.mix.Snapshot(e.sched, e.mixCtrl)
	fired := e.sched.Advance(dt)
	e.logicalNow = e.sched.LogicalNow()

	e.mix.Install(fired, e.loader)
	e.mix.Evict(e.sched.DrainKilledFlows(), e.sched.DrainKilledBuses())

	after := e.mix.Snapshot(e.sched, e.mixCtrl)
	e.mix.Mix(out, before, after)

	telemetry.SetTransportQueueDepth(len(batches))
	telemetry.SetActiveSources(e.mix.ActiveCount())
	telemetry.SetLoaderPending(e.loader.PendingCount())
	telemetry.RecordTurn(time.Since(start).Seconds())
}

// LogicalNow returns the engine's monotonic scheduling clock, in seconds.
func (e *Engine) LogicalNow() float64 { return e.logicalNow }

// ActiveSourceCount reports the number of currently mixing sources, for
// telemetry.
func (e *Engine) ActiveSourceCount() int { return e.mix.ActiveCount() }

// CloneLiveSoundtrack returns a cheap copy-on-write clone of the currently
// published Soundtrack (spec §9: "clone_live_soundtrack is cheap").
func (e *Engine) CloneLiveSoundtrack() *soundtrack.Soundtrack {
	return e.track.Load().Clone()
}
