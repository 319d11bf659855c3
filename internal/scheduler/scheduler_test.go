package scheduler

import (
	"testing"

	"smsengine/internal/control"
	"smsengine/internal/loader"
	"smsengine/internal/sound"
	"smsengine/internal/soundtrack"
	"smsengine/internal/transport"
)

// fakeStream reports a fixed 1-second length at 44100Hz for every sound, so
// `and wait` durations are deterministic without touching real audio files.
type fakeStream struct{}

func (fakeStream) Format() sound.Format           { return sound.Format{SampleRate: 44100, Layout: sound.Stereo} }
func (fakeStream) Read(buf []float32) (int, error) { return 0, nil }
func (fakeStream) Close() error                    { return nil }
func (fakeStream) EstimateLen() (int64, bool)      { return 44100, true }

type fakeDelegate struct{}

func (fakeDelegate) Open(name string, rate int, layout sound.Layout) (sound.FormattedSoundStream, error) {
	return fakeStream{}, nil
}
func (fakeDelegate) Warn(string) {}

func newTestScheduler(track *soundtrack.Soundtrack) (*Scheduler, *loader.Loader) {
	ld := loader.New(fakeDelegate{}, 44100, sound.Stereo, false, 0)
	ld.Start()
	fc := control.NewFlowControlMap()
	mc := control.NewMixControlMap()
	return New(track, fc, mc, ld, fakeDelegate{}), ld
}

func dungeonTrack() *soundtrack.Soundtrack {
	track := soundtrack.New()
	track.Sounds["bgm"] = soundtrack.Sound{Name: "bgm", File: "bgm.wav", Gain: 1}
	track.Sounds["sting"] = soundtrack.Sound{Name: "sting", File: "sting.wav", Gain: 1}
	track.Flows["Dungeon"] = &soundtrack.Flow{
		Name:      "Dungeon",
		StartNode: "Main",
		WithLoop:  true,
		Nodes: map[string]*soundtrack.Node{
			"Main": {Name: "Main", Steps: []soundtrack.Step{
				{Kind: soundtrack.StepPlayFireAndForget, Target: soundtrack.EventTarget{RefName: "bgm"}},
				{
					Kind: soundtrack.StepIf,
					Cond: soundtrack.Predicate{Op: soundtrack.PredNumEQ, FlowCtrl: "underwater", NumOperand: 1},
					Then: &soundtrack.Step{Kind: soundtrack.StepSwitchNode, NodeName: "Underwater"},
				},
			}},
			"Underwater": {Name: "Underwater", Steps: []soundtrack.Step{
				{Kind: soundtrack.StepPlayFireAndForget, Target: soundtrack.EventTarget{RefName: "sting"}},
			}},
		},
	}
	return track
}

func TestStartFlowEntersStartingThenRunningOncePrecharged(t *testing.T) {
	s, _ := newTestScheduler(dungeonTrack())
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "Dungeon", Number: 1})

	rt := s.flows["Dungeon"]
	if rt == nil || rt.phase != PhaseStarting {
		t.Fatalf("expected phase Starting immediately after start_flow, got %+v", rt)
	}

	s.Advance(0) // foreground loader means precache is already satisfied
	if rt.phase != PhaseRunning {
		t.Fatalf("expected phase Running once precharge is satisfied, got %v", rt.phase)
	}
}

func TestRunningNodeFiresAndLoopsWithinOneAdvance(t *testing.T) {
	s, _ := newTestScheduler(dungeonTrack())
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "Dungeon", Number: 1})
	s.Advance(0) // Starting -> Running, enters Main

	fired := s.Advance(0.1)
	names := make([]string, len(fired))
	for i, f := range fired {
		names[i] = f.Sound.Name
	}
	if len(fired) != 1 || names[0] != "bgm" {
		t.Fatalf("expected exactly 1 fired sound (bgm), got %v", names)
	}

	rt := s.flows["Dungeon"]
	if _, ok := rt.nodes["Main"]; !ok {
		t.Fatal("expected Main to have looped back in, since the flow carries with-loop")
	}
}

func TestIfPredicateSwitchesNode(t *testing.T) {
	s, _ := newTestScheduler(dungeonTrack())
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "Dungeon", Number: 1})
	s.Advance(0)

	s.ApplyCommand(transport.Command{Kind: transport.KindSetFlowControlToNumber, Name: "underwater", Number: 1})
	s.Advance(0.1)

	rt := s.flows["Dungeon"]
	if _, onMain := rt.nodes["Main"]; onMain {
		t.Error("expected Main to have switched away once underwater==1")
	}
	if _, onUnderwater := rt.nodes["Underwater"]; !onUnderwater {
		t.Fatal("expected the if-step to switch execution to node Underwater")
	}
}

func TestFadeFlowOutTransitionsToFadingOutAndKillsOnCompletion(t *testing.T) {
	// A node blocked on a 1s and-wait, faded out over only 0.5s: the flow
	// must be killed the moment the envelope completes, even though its
	// node is still mid-wait (not finished on its own).
	track := soundtrack.New()
	track.Sounds["x"] = soundtrack.Sound{Name: "x", File: "x.wav"}
	track.Flows["Fader"] = &soundtrack.Flow{
		Name: "Fader", StartNode: "Main", WithLoop: false,
		Nodes: map[string]*soundtrack.Node{
			"Main": {Name: "Main", Steps: []soundtrack.Step{
				{Kind: soundtrack.StepPlayAndWait, Target: soundtrack.EventTarget{RefName: "x"}},
			}},
		},
	}

	s, _ := newTestScheduler(track)
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "Fader", Number: 1})
	s.Advance(0)   // Starting -> Running, enters Main
	s.Advance(0.01) // Main fires x and blocks on its ~1s and-wait

	s.ApplyCommand(transport.Command{Kind: transport.KindFadeFlowOut, Name: "Fader", FadeSeconds: 0.5, Curve: control.CurveLinear})
	rt := s.flows["Fader"]
	if rt.phase != PhaseFadingOut {
		t.Fatalf("expected phase FadingOut, got %v", rt.phase)
	}

	s.Advance(0.5) // fade completes exactly; the and-wait (~1s) is still pending
	if _, ok := s.flows["Fader"]; ok {
		t.Fatal("expected the flow to be removed once its fade-out envelope completes, independent of its node's wait")
	}
	killed := s.DrainKilledFlows()
	if len(killed) != 1 || killed[0] != "Fader" {
		t.Fatalf("expected Fader in killed-flows, got %v", killed)
	}
}

func TestKillFlowRemovesImmediately(t *testing.T) {
	s, _ := newTestScheduler(dungeonTrack())
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "Dungeon", Number: 1})
	s.Advance(0)

	s.ApplyCommand(transport.Command{Kind: transport.KindKillFlow, Name: "Dungeon"})
	if _, ok := s.flows["Dungeon"]; ok {
		t.Fatal("expected kill_flow to remove the flow's runtime immediately")
	}
}

func TestPlayAndWaitBlocksForSoundDuration(t *testing.T) {
	track := soundtrack.New()
	track.Sounds["x"] = soundtrack.Sound{Name: "x", File: "x.wav"}
	track.Sounds["y"] = soundtrack.Sound{Name: "y", File: "y.wav"}
	track.Flows["Waiter"] = &soundtrack.Flow{
		Name: "Waiter", StartNode: "Main", WithLoop: false,
		Nodes: map[string]*soundtrack.Node{
			"Main": {Name: "Main", Steps: []soundtrack.Step{
				{Kind: soundtrack.StepPlayAndWait, Target: soundtrack.EventTarget{RefName: "x"}},
				{Kind: soundtrack.StepPlayFireAndForget, Target: soundtrack.EventTarget{RefName: "y"}},
			}},
		},
	}

	s, _ := newTestScheduler(track)
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "Waiter", Number: 1})
	s.Advance(0) // Starting -> Running, enters Main

	fired := s.Advance(0.5) // fires x, then blocks (fakeStream reports a 1s duration)
	if len(fired) != 1 || fired[0].Sound.Name != "x" {
		t.Fatalf("expected only x fired so far, got %v", fired)
	}

	fired = s.Advance(0.5) // logical_now == 1.0s, still short of the 1.5s wait deadline
	if len(fired) != 0 {
		t.Fatalf("expected node still blocked on and-wait, got %v", fired)
	}
	if _, ok := s.flows["Waiter"]; !ok {
		t.Fatal("flow should still be alive while its node waits")
	}

	fired = s.Advance(0.6) // logical_now == 1.6s, past the deadline
	names := make([]string, len(fired))
	for i, f := range fired {
		names[i] = f.Sound.Name
	}
	if len(fired) != 1 || names[0] != "y" {
		t.Fatalf("expected y fired once the wait completed, got %v", names)
	}

	if _, ok := s.flows["Waiter"]; ok {
		t.Fatal("expected the non-looping flow to be killed once its only node finishes")
	}
	killed := s.DrainKilledFlows()
	if len(killed) != 1 || killed[0] != "Waiter" {
		t.Fatalf("expected Waiter in killed-flows after finishing with no loop, got %v", killed)
	}
}

func TestFireSoundCreatesMixControlBus(t *testing.T) {
	s, _ := newTestScheduler(dungeonTrack())
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "Dungeon", Number: 1})
	s.Advance(0)
	s.Advance(0.1) // fires bgm onto the default "main" bus

	if _, ok := s.mixCtrl.Lookup(control.MainBus); !ok {
		t.Fatal("expected firing a sound with no explicit channel to create/use the main bus")
	}
}

func TestStartFlowOnAlreadyRunningFlowRetargetsInstead(t *testing.T) {
	s, _ := newTestScheduler(dungeonTrack())
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "Dungeon", Number: 1})
	s.Advance(0)

	// start_flow on a flow that's already past Idle must behave like
	// fade_flow_to rather than resetting its node runtime.
	before := s.flows["Dungeon"]
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "Dungeon", Number: 0.5, FadeSeconds: 0, Curve: control.CurveLinear})
	after := s.flows["Dungeon"]
	if before != after {
		t.Fatal("expected the same flow runtime to be reused, not replaced, on a second start_flow")
	}
	if g := after.envelope.Gain(); g != 0.5 {
		t.Errorf("expected an immediate (zero fade-seconds) retarget to gain 0.5, got %v", g)
	}
}

func TestStartFlowUnknownNameWarnsAndDoesNothing(t *testing.T) {
	s, _ := newTestScheduler(dungeonTrack())
	s.ApplyCommand(transport.Command{Kind: transport.KindStartFlow, Name: "NoSuchFlow", Number: 1})
	if _, ok := s.flows["NoSuchFlow"]; ok {
		t.Fatal("expected no flow runtime created for an unknown flow name")
	}
}
