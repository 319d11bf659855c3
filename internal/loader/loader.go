// Package loader resolves Sound definitions into open, positioned
// FormattedSoundStreams and caches them by their decode parameters so two
// Flows referencing the same Sound share one decode (spec §5). Loading can
// run on a background worker pool (the common case, so a turn never blocks
// on disk/decoder I/O) or inline on the calling goroutine when the host
// disables background loading — both runtimes implement the same Runtime
// interface, mirroring the teacher's RenderWorkerPool (background) versus
// NoOpStreamer (foreground) split between internal/streaming/render_pool.go
// and internal/streaming/noop_streamer.go.
package loader

import (
	"runtime"
	"sync"

	"smsengine/internal/sound"
	"smsengine/internal/soundtrack"
	"smsengine/internal/telemetry"
)

// Key identifies one decode: the same Sound requested with two different
// start offsets or loop points is two independent cache entries, since they
// produce different streams.
type Key struct {
	File        string
	StartOffset int64 // sample frames, file-native rate
	Length      int64 // sample frames, 0 = to end of file
	Loop        soundtrack.LoopPoints
	Policy      soundtrack.DecodePolicy
}

// KeyForSound derives the cache Key for a resolved Sound.
func KeyForSound(s *soundtrack.Sound) Key {
	return Key{
		File:        s.File,
		StartOffset: s.StartOffset,
		Length:      s.Length,
		Loop:        s.Loop,
		Policy:      s.Policy,
	}
}

// State is the lifecycle of a cache entry.
type State int

const (
	StateLoading State = iota
	StateReady
	StateFailed
)

type entry struct {
	mu           sync.Mutex
	state        State
	stream       sound.FormattedSoundStream
	err          error
	playRefs     int
	precacheRefs int
}

func (e *entry) total() int { return e.playRefs + e.precacheRefs }

// Loader owns the decode cache and the runtime that performs the actual
// opens. It is safe for concurrent use from the command-apply side (Request
// and Precache) and the mixer's pull side (Poll) — in practice both run on
// the single audio turn goroutine, but the cache itself doesn't assume that.
type Loader struct {
	delegate sound.Delegate
	rate     int
	layout   sound.Layout
	runtime  Runtime

	mu      sync.Mutex
	entries map[Key]*entry
}

// New builds a Loader. background selects the worker-pool Runtime; when
// false, loads happen synchronously inside Request/Precache, matching the
// host's "background_loading=false" construction parameter (spec §3).
func New(delegate sound.Delegate, rate int, layout sound.Layout, background bool, numThreads int) *Loader {
	var rt Runtime
	if background {
		rt = newWorkerRuntime(numThreads)
	} else {
		rt = foregroundRuntime{}
	}
	return &Loader{
		delegate: delegate,
		rate:     rate,
		layout:   layout,
		runtime:  rt,
		entries:  make(map[Key]*entry),
	}
}

// Start begins any background workers. A no-op for the foreground runtime.
func (l *Loader) Start() { l.runtime.Start() }

// Stop drains and stops any background workers.
func (l *Loader) Stop() { l.runtime.Stop() }

func (l *Loader) lookupOrCreate(key Key) (*entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if ok {
		return e, false
	}
	e = &entry{state: StateLoading}
	l.entries[key] = e
	return e, true
}

func (l *Loader) scheduleLoad(key Key, e *entry) {
	l.runtime.Schedule(func() {
		stream, err := l.delegate.Open(key.File, l.rate, l.layout)
		if err == nil && stream == nil {
			err = loaderError("loader: " + key.File + " did not resolve to audio")
		}
		if err != nil {
			l.delegate.Warn("failed to open " + key.File + ": " + err.Error())
			telemetry.RecordCommandWarning()
		}
		if err == nil && key.StartOffset > 0 {
			if seeker, ok := stream.(sound.Seeker); ok {
				if _, serr := seeker.Seek(key.StartOffset); serr != nil {
					l.delegate.Warn("seek to start offset not supported for " + key.File)
				}
			} else {
				l.delegate.Warn("start offset requested but stream has no Seek: " + key.File)
			}
		}
		e.mu.Lock()
		if err != nil {
			e.state = StateFailed
			e.err = err
		} else {
			e.state = StateReady
			e.stream = stream
		}
		e.mu.Unlock()
	})
}

// RequestPlayback increments the playback refcount for key, creating and
// scheduling a load if this is the first reference.
func (l *Loader) RequestPlayback(key Key) {
	e, created := l.lookupOrCreate(key)
	e.mu.Lock()
	e.playRefs++
	e.mu.Unlock()
	if created {
		l.scheduleLoad(key, e)
	}
}

// ReleasePlayback decrements the playback refcount; when the entry's total
// refcount (playback + precache) reaches zero it's evicted and closed.
func (l *Loader) ReleasePlayback(key Key) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	e.mu.Lock()
	if e.playRefs > 0 {
		e.playRefs--
	}
	dead := e.total() == 0
	var closing sound.FormattedSoundStream
	if dead {
		closing = e.stream
		delete(l.entries, key)
	}
	e.mu.Unlock()
	l.mu.Unlock()
	if closing != nil {
		closing.Close()
	}
}

// Precache increments key's precharge refcount, loading it ahead of
// playback if not already cached. Matches a later Unprecache call
// one-for-one (spec §3's Precache/Unprecache pair); it is not recursive
// through a Flow's reachable-sound graph — the caller (the scheduler,
// per ReachableSounds) issues one Precache per sound it wants warmed, and
// one Unprecache to release it.
func (l *Loader) Precache(key Key) {
	e, created := l.lookupOrCreate(key)
	e.mu.Lock()
	e.precacheRefs++
	e.mu.Unlock()
	if created {
		l.scheduleLoad(key, e)
	}
}

// Unprecache decrements key's precharge refcount (floored at zero) and
// evicts the entry if its total refcount drops to zero.
func (l *Loader) Unprecache(key Key) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	e.mu.Lock()
	if e.precacheRefs > 0 {
		e.precacheRefs--
	}
	dead := e.total() == 0
	var closing sound.FormattedSoundStream
	if dead {
		closing = e.stream
		delete(l.entries, key)
	}
	e.mu.Unlock()
	l.mu.Unlock()
	if closing != nil {
		closing.Close()
	}
}

// UnprecacheAll clears every outstanding precharge refcount, evicting any
// entry left with no playback references.
func (l *Loader) UnprecacheAll() {
	l.mu.Lock()
	var toClose []sound.FormattedSoundStream
	for key, e := range l.entries {
		e.mu.Lock()
		e.precacheRefs = 0
		dead := e.total() == 0
		var s sound.FormattedSoundStream
		if dead {
			s = e.stream
			delete(l.entries, key)
		}
		e.mu.Unlock()
		if s != nil {
			toClose = append(toClose, s)
		}
	}
	l.mu.Unlock()
	for _, s := range toClose {
		s.Close()
	}
}

// Poll reports the current state of key's entry and, if ready, its open
// stream (owned by the cache — callers needing an independent read cursor
// should use the stream's Clone, if it implements sound.Cloner).
func (l *Loader) Poll(key Key) (stream sound.FormattedSoundStream, state State, err error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return nil, StateFailed, errNotRequested
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream, e.state, e.err
}

// PendingCount returns the number of cache entries still decoding, for the
// loader-queue-depth gauge.
func (l *Loader) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		e.mu.Lock()
		if e.state == StateLoading {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

var errNotRequested = loaderError("loader: key not requested")

type loaderError string

func (e loaderError) Error() string { return string(e) }

// Runtime performs a decode-open job either on a worker goroutine or
// inline, per the construction-time background_loading parameter.
type Runtime interface {
	Start()
	Stop()
	Schedule(fn func())
}

// foregroundRuntime runs every job synchronously on the calling goroutine,
// the same inert role the teacher's NoOpStreamer plays when the host has no
// background pipeline to hand frames to.
type foregroundRuntime struct{}

func (foregroundRuntime) Start()            {}
func (foregroundRuntime) Stop()             {}
func (foregroundRuntime) Schedule(fn func()) { fn() }

// workerRuntime is a bounded worker pool, adapted from the teacher's
// RenderWorkerPool (internal/streaming/render_pool.go): fixed goroutine
// count, buffered job channel, Start/Stop lifecycle.
type workerRuntime struct {
	numWorkers int
	jobs       chan func()
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

func newWorkerRuntime(numThreads int) *workerRuntime {
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	if numThreads > 16 {
		numThreads = 16
	}
	return &workerRuntime{
		numWorkers: numThreads,
		jobs:       make(chan func(), numThreads*4),
	}
}

func (w *workerRuntime) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.work()
	}
}

func (w *workerRuntime) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()
	close(w.jobs)
	w.wg.Wait()
}

func (w *workerRuntime) work() {
	defer w.wg.Done()
	for fn := range w.jobs {
		fn()
	}
}

func (w *workerRuntime) Schedule(fn func()) {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		fn()
		return
	}
	w.jobs <- fn
}
