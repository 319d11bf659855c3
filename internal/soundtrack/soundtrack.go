// Package soundtrack holds the immutable-after-publish description of a
// soundtrack: Sounds, Sequences, Nodes, Flows and Timebases. A Soundtrack
// value is a plain tree of name-indexed dictionaries; names are resolved to
// their targets at interpretation time, not via pointers, so the value has
// no reference cycles and is cheap to deep-copy.
package soundtrack

import "fmt"

// Timebase is a named rate expressed as units per second or per minute.
type Timebase struct {
	Name        string
	UnitsPerSec float64
}

// SecondsOf converts a duration given in this timebase's units to seconds.
func (tb Timebase) SecondsOf(units float64) float64 {
	if tb.UnitsPerSec <= 0 {
		return 0
	}
	return units / tb.UnitsPerSec
}

// LoopPoints describes an in-sample loop region, in sample frames relative
// to the sound's own start offset. A zero-value LoopPoints means no loop.
type LoopPoints struct {
	Enabled bool
	Start   int64
	End     int64 // 0 means "end of stream"
}

// DecodePolicy is recorded on a Sound and is part of the Loader's cache
// key. The Loader opens every Sound through the delegate the same way
// whichever policy is set: whether a stream is held fully decoded in memory
// depends on the decoder the delegate uses for the file, not on this value.
type DecodePolicy int

const (
	// Preloaded is the default policy.
	Preloaded DecodePolicy = iota
	// Streamed marks a Sound as streamed.
	Streamed
)

// Sound is the fundamental audio leaf: a reference to a file plus optional
// trimming, gain and loop metadata.
type Sound struct {
	Name        string
	File        string
	StartOffset int64 // sample frames, in the file's native rate
	Length      int64 // sample frames; 0 means "to end of file"
	Gain        float32
	Loop        LoopPoints
	Policy      DecodePolicy
}

func defaultSound(name string) Sound {
	return Sound{Name: name, Gain: 1.0}
}

// EventTarget is the thing a Sequence event triggers: a reference to a
// named Sound/Sequence, or an inline (unnamed) one.
type EventTarget struct {
	RefName        string // non-empty for a named reference
	InlineSound    *Sound
	InlineSequence *Sequence
}

// IsRef reports whether the target is a name reference rather than inline.
func (t EventTarget) IsRef() bool { return t.RefName != "" }

// SequenceEvent is a single triggered target inside a Sequence, fired at
// Offset seconds (already converted from its timebase) on the named
// MixControl Channel.
type SequenceEvent struct {
	OffsetSeconds float64
	Channel       string // mix control name, defaults to "main"
	Target        EventTarget
}

// Sequence is a timed set of triggers with a fixed total length.
type Sequence struct {
	Name          string
	LengthSeconds float64
	Events        []SequenceEvent
}

// StepKind enumerates the closed set of Node step forms.
type StepKind int

const (
	StepPlayAndWait StepKind = iota
	StepPlayFireAndForget
	StepIf
	StepStartNode
	StepRestartNode
	StepSwitchNode
)

// Predicate is a FlowControl-dereferencing boolean test attached to an
// `if` step. Exactly one of the comparison forms applies, selected by Op.
type PredicateOp int

const (
	PredTruthy    PredicateOp = iota // $name (nonzero number or nonempty string)
	PredFalsy                        // !$name
	PredNumEQ                        // $a == <number>
	PredNumLT
	PredNumLTE
	PredNumGT
	PredNumGTE
	PredStrEQ // $a == "value"
)

type Predicate struct {
	Op        PredicateOp
	FlowCtrl  string
	NumOperand float64
	StrOperand string
}

// Step is one instruction in a Node's program. Steps execute sequentially;
// StepPlayAndWait blocks the node's local time until its target completes.
type Step struct {
	Kind StepKind

	// StepPlayAndWait / StepPlayFireAndForget
	Target  EventTarget
	AtSeconds float64 // offset within the firing Sequence's schedule, if any
	Channel string

	// StepIf
	Cond    Predicate
	Then    *Step // the step to execute when Cond holds

	// StepStartNode / StepRestartNode / StepSwitchNode
	NodeName string
}

// Node is an ordered list of steps, a sub-program within a Flow.
type Node struct {
	Name  string
	Steps []Step
}

// Flow is the top-level unit of playback: a starting node, an optional loop
// flag, and the implicit set of nodes it contains.
type Flow struct {
	Name        string
	StartNode   string
	WithLoop    bool
	Nodes       map[string]*Node
}

// Clone returns a deep copy of the Flow (nodes are value-copied).
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	out := &Flow{Name: f.Name, StartNode: f.StartNode, WithLoop: f.WithLoop, Nodes: make(map[string]*Node, len(f.Nodes))}
	for name, n := range f.Nodes {
		cp := *n
		cp.Steps = append([]Step(nil), n.Steps...)
		out.Nodes[name] = &cp
	}
	return out
}

// Soundtrack is the inert, parsed description of everything a soundtrack
// can reference: four name-indexed dictionaries plus the timebases used to
// resolve duration literals. It is shared-immutable after publish: callers
// obtain new Soundtracks by cloning and mutating the clone, never the
// original (see Clone).
type Soundtrack struct {
	Timebases map[string]Timebase
	Sounds    map[string]Sound
	Sequences map[string]Sequence
	Flows     map[string]*Flow
}

// New returns an empty Soundtrack ready for population.
func New() *Soundtrack {
	return &Soundtrack{
		Timebases: make(map[string]Timebase),
		Sounds:    make(map[string]Sound),
		Sequences: make(map[string]Sequence),
		Flows:     make(map[string]*Flow),
	}
}

// Clone returns a cheap, independent copy suitable for copy-on-write
// mutation: the top-level maps are copied (so inserting into the clone
// never affects the original), but Flow values are only deep-copied when a
// caller subsequently mutates them via Flow.Clone.
func (s *Soundtrack) Clone() *Soundtrack {
	if s == nil {
		return New()
	}
	out := &Soundtrack{
		Timebases: make(map[string]Timebase, len(s.Timebases)),
		Sounds:    make(map[string]Sound, len(s.Sounds)),
		Sequences: make(map[string]Sequence, len(s.Sequences)),
		Flows:     make(map[string]*Flow, len(s.Flows)),
	}
	for k, v := range s.Timebases {
		out.Timebases[k] = v
	}
	for k, v := range s.Sounds {
		out.Sounds[k] = v
	}
	for k, v := range s.Sequences {
		out.Sequences[k] = v
	}
	for k, v := range s.Flows {
		out.Flows[k] = v // shared until Flow.Clone is used to mutate in place
	}
	return out
}

// MergeFrom adds every definition in other into s, overwriting same-named
// entries. Used by the DSL parser's re-entrant parse semantics: parsing
// into an existing Soundtrack merges rather than replaces wholesale.
func (s *Soundtrack) MergeFrom(other *Soundtrack) {
	if other == nil {
		return
	}
	for k, v := range other.Timebases {
		s.Timebases[k] = v
	}
	for k, v := range other.Sounds {
		s.Sounds[k] = v
	}
	for k, v := range other.Sequences {
		s.Sequences[k] = v
	}
	for k, v := range other.Flows {
		s.Flows[k] = v
	}
}

// ResolveSound looks up a named Sound, reporting whether it exists.
func (s *Soundtrack) ResolveSound(name string) (Sound, bool) {
	snd, ok := s.Sounds[name]
	return snd, ok
}

// ResolveSequence looks up a named Sequence, reporting whether it exists.
func (s *Soundtrack) ResolveSequence(name string) (Sequence, bool) {
	seq, ok := s.Sequences[name]
	return seq, ok
}

// ResolveFlow looks up a named Flow, reporting whether it exists.
func (s *Soundtrack) ResolveFlow(name string) (*Flow, bool) {
	fl, ok := s.Flows[name]
	return fl, ok
}

// ReachableSounds returns the set of Sound names reachable from a Flow's
// nodes, following inline and named Sequence/Sound references transitively.
// Used by precharge (§4.3) to decide what to load before a Flow can run.
func (s *Soundtrack) ReachableSounds(f *Flow) map[string]struct{} {
	out := make(map[string]struct{})
	if f == nil {
		return out
	}
	for _, n := range f.Nodes {
		for _, step := range n.Steps {
			s.collectFromStep(step, out)
		}
	}
	return out
}

func (s *Soundtrack) collectFromStep(step Step, out map[string]struct{}) {
	switch step.Kind {
	case StepPlayAndWait, StepPlayFireAndForget:
		s.collectFromTarget(step.Target, out)
	case StepIf:
		if step.Then != nil {
			s.collectFromStep(*step.Then, out)
		}
	}
}

func (s *Soundtrack) collectFromTarget(t EventTarget, out map[string]struct{}) {
	switch {
	case t.InlineSound != nil:
		out[t.InlineSound.Name] = struct{}{}
	case t.InlineSequence != nil:
		for _, ev := range t.InlineSequence.Events {
			s.collectFromTarget(ev.Target, out)
		}
	case t.IsRef():
		if snd, ok := s.Sounds[t.RefName]; ok {
			out[snd.Name] = struct{}{}
			return
		}
		if seq, ok := s.Sequences[t.RefName]; ok {
			for _, ev := range seq.Events {
				s.collectFromTarget(ev.Target, out)
			}
		}
	}
}

func (p PredicateOp) String() string {
	switch p {
	case PredTruthy:
		return "truthy"
	case PredFalsy:
		return "falsy"
	case PredNumEQ:
		return "=="
	case PredNumLT:
		return "<"
	case PredNumLTE:
		return "<="
	case PredNumGT:
		return ">"
	case PredNumGTE:
		return ">="
	case PredStrEQ:
		return "str=="
	default:
		return fmt.Sprintf("PredicateOp(%d)", int(p))
	}
}
