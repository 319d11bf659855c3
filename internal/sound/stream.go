// Package sound defines the host-supplied audio source contract (spec §6):
// SoundDelegate opens named files into FormattedSoundStreams, which the
// Loader and Mixer pull decoded sample frames from. Both are capability
// bundles — a required operation plus optional ones — modeled as small
// interfaces with a companion capability-probe, the same idiom the teacher
// uses for its pluggable StreamerInterface/NoOpStreamer pair.
package sound

import "errors"

// ErrNotSupported is returned by an optional capability that a given
// stream doesn't implement, standing in for the spec's "NOT_SUPPORTED".
var ErrNotSupported = errors.New("sound: capability not supported")

// Layout is a speaker channel layout.
type Layout int

const (
	Mono Layout = iota
	Stereo
	Headphones
	Quad
	Surround51
	Surround71
)

// Channels returns the channel count for the layout.
func (l Layout) Channels() int {
	switch l {
	case Mono:
		return 1
	case Stereo, Headphones:
		return 2
	case Quad:
		return 4
	case Surround51:
		return 6
	case Surround71:
		return 8
	default:
		return 2
	}
}

func (l Layout) String() string {
	switch l {
	case Mono:
		return "mono"
	case Stereo:
		return "stereo"
	case Headphones:
		return "headphones"
	case Quad:
		return "quad"
	case Surround51:
		return "5.1"
	case Surround71:
		return "7.1"
	default:
		return "unknown"
	}
}

// Format describes a stream's fixed sample rate, channel layout and sample
// format. SMS's internal pipeline always works in f32; FormattedSoundStream
// implementations are expected to have already converted to it (a decoder
// adapter handles the file's native integer format).
type Format struct {
	SampleRate int
	Layout     Layout
}

// FormattedSoundStream is a pull-based decoded-audio source. Read is the
// only required operation; Seek/SkipPrecise/SkipCoarse/Clone/EstimateLen
// are optional and probed via the Seeker/Skipper/Cloner/LenEstimator
// interfaces below — a stream need only implement the ones it supports.
type FormattedSoundStream interface {
	Format() Format
	// Read fills buf (interleaved f32, Format().Layout.Channels() per
	// frame) and returns the number of sample frames written. A short
	// read (n < requested) signals end of stream.
	Read(buf []float32) (frames int, err error)
	Close() error
}

// Seeker is the optional exact-seek capability. Seek must be exact or
// absent: a coarse seek goes through Skipper.SkipCoarse instead.
type Seeker interface {
	// Seek moves to the given frame and returns the frame actually landed
	// on (always == frame for a true Seeker) or ErrNotSupported.
	Seek(frame int64) (int64, error)
}

// Skipper is the optional fast-forward capability for streams that can't
// seek exactly but can skip.
type Skipper interface {
	// SkipPrecise advances exactly n sample frames by decoding and
	// discarding them; reports whether more data follows.
	SkipPrecise(n int64) (more bool, err error)
	// SkipCoarse advances approximately n frames using scratch as a
	// reusable decode buffer, returning the number of frames actually
	// skipped.
	SkipCoarse(n int64, scratch []float32) (skipped int64, err error)
}

// Cloner is the optional capability to open an independent copy of the
// same underlying stream, already converted to the requested format. The
// mixer uses this to give each playback its own decode cursor without
// reopening the file from scratch.
type Cloner interface {
	Clone(rate int, layout Layout) (FormattedSoundStream, error)
}

// LenEstimator is the optional capability to report an approximate total
// length in sample frames, or UnknownLength.
type LenEstimator interface {
	EstimateLen() (frames int64, ok bool)
}

// UnknownLength is returned by EstimateLen when the length can't be known
// in advance (e.g. an unbounded or non-seekable stream).
const UnknownLength int64 = -1

// Delegate is the host-supplied, thread-safe factory that opens a named
// audio file and returns a stream, plus a warning sink. Called from loader
// threads in background mode, or the audio thread itself in foreground
// mode.
type Delegate interface {
	// Open returns nil, nil if the name legitimately doesn't resolve to
	// audio (the caller treats that the same as an error: warn and skip).
	Open(name string, rate int, layout Layout) (FormattedSoundStream, error)
	Warn(message string)
}
