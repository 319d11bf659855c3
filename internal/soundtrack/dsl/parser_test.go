package dsl

import (
	"testing"

	"smsengine/internal/soundtrack"
)

const dungeonTrack = `
timebase beats 120/m

sound bgm
    file "dungeon_bgm.ogg"
    gain 0.8

sound underwater_sting
    file "dungeon_underwater.mp3"

flow Dungeon with loop
    node Main
        play sound bgm and wait
        if $underwater == 1 then switch node Underwater

    node Underwater
        play sound underwater_sting and wait
`

func TestParseDungeonTrack(t *testing.T) {
	track, err := Parse(dungeonTrack)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if _, ok := track.Timebases["beats"]; !ok {
		t.Fatal("expected a timebase named beats")
	}
	if track.Timebases["beats"].UnitsPerSec != 2 {
		t.Fatalf("expected 120/m to be 2 units/sec, got %v", track.Timebases["beats"].UnitsPerSec)
	}

	bgm, ok := track.ResolveSound("bgm")
	if !ok {
		t.Fatal("expected sound bgm")
	}
	if bgm.File != "dungeon_bgm.ogg" || bgm.Gain != 0.8 {
		t.Fatalf("unexpected bgm fields: %+v", bgm)
	}

	flow, ok := track.ResolveFlow("Dungeon")
	if !ok {
		t.Fatal("expected flow Dungeon")
	}
	if !flow.WithLoop {
		t.Error("expected Dungeon to carry the with-loop flag")
	}
	if flow.StartNode != "Main" {
		t.Fatalf("expected starting node Main, got %q", flow.StartNode)
	}

	main, ok := flow.Nodes["Main"]
	if !ok || len(main.Steps) != 2 {
		t.Fatalf("expected Main to have 2 steps, got %+v", main)
	}
	if main.Steps[0].Kind != soundtrack.StepPlayAndWait {
		t.Errorf("expected first step to be play-and-wait, got %v", main.Steps[0].Kind)
	}
	ifStep := main.Steps[1]
	if ifStep.Kind != soundtrack.StepIf {
		t.Fatalf("expected second step to be an if, got %v", ifStep.Kind)
	}
	if ifStep.Cond.Op != soundtrack.PredNumEQ || ifStep.Cond.FlowCtrl != "underwater" {
		t.Errorf("unexpected predicate: %+v", ifStep.Cond)
	}
	if ifStep.Then == nil || ifStep.Then.Kind != soundtrack.StepSwitchNode || ifStep.Then.NodeName != "Underwater" {
		t.Errorf("expected then-clause to switch to node Underwater, got %+v", ifStep.Then)
	}
}

func TestParseRejectsUnknownTopLevelKeyword(t *testing.T) {
	_, err := Parse("bogus thing\n")
	if err == nil {
		t.Fatal("expected a parse error for an unrecognized top-level keyword")
	}
}

func TestParseIsIdempotent(t *testing.T) {
	a, err := Parse(dungeonTrack)
	if err != nil {
		t.Fatalf("first parse failed: %v", err)
	}
	b, err := Parse(dungeonTrack)
	if err != nil {
		t.Fatalf("second parse failed: %v", err)
	}
	if len(a.Sounds) != len(b.Sounds) || len(a.Flows) != len(b.Flows) {
		t.Fatalf("parsing the same source twice should produce equivalent soundtracks: %d/%d sounds, %d/%d flows",
			len(a.Sounds), len(b.Sounds), len(a.Flows), len(b.Flows))
	}
}

func TestMergeLeavesDestinationUnchangedOnFailure(t *testing.T) {
	dst := soundtrack.New()
	dst.Sounds["kick"] = soundtrack.Sound{Name: "kick", Gain: 1}

	err := Merge(dst, "sound\n") // missing NAME: invalid
	if err == nil {
		t.Fatal("expected a parse error for a malformed sound declaration")
	}
	if len(dst.Sounds) != 1 {
		t.Fatalf("a failed merge must leave the destination soundtrack untouched, got %d sounds", len(dst.Sounds))
	}
	if _, ok := dst.Sounds["kick"]; !ok {
		t.Fatal("pre-existing sound must survive a failed merge")
	}
}

func TestMergeAddsAndReplaces(t *testing.T) {
	dst := soundtrack.New()
	dst.Sounds["kick"] = soundtrack.Sound{Name: "kick", Gain: 1}

	err := Merge(dst, `
sound kick
    file "kick2.wav"
    gain 0.3

sound snare
    file "snare.wav"
`)
	if err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}
	if dst.Sounds["kick"].File != "kick2.wav" {
		t.Errorf("expected kick to be replaced, got %+v", dst.Sounds["kick"])
	}
	if _, ok := dst.Sounds["snare"]; !ok {
		t.Error("expected snare to be added by the merge")
	}
}

func TestParseSequenceWithChannelAndOffset(t *testing.T) {
	track, err := Parse(`
timebase beats 120/m

sound hit
    file "hit.wav"

sequence combo
    length 2 beats
    play sound hit at 1 beats channel sfx
`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	seq, ok := track.ResolveSequence("combo")
	if !ok {
		t.Fatal("expected sequence combo")
	}
	if len(seq.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(seq.Events))
	}
	ev := seq.Events[0]
	if ev.Channel != "sfx" {
		t.Errorf("expected channel sfx, got %q", ev.Channel)
	}
	if ev.OffsetSeconds != 0.5 {
		t.Errorf("expected 1 beat at 120/m (2 units/sec) to be 0.5s, got %v", ev.OffsetSeconds)
	}
}

func TestParseStreamPolicyAndLoopPoints(t *testing.T) {
	track, err := Parse(`
sound ambience
    file "ambience.ogg"
    stream
    loop 1000 5000
`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	snd, ok := track.ResolveSound("ambience")
	if !ok {
		t.Fatal("expected sound ambience")
	}
	if snd.Policy != soundtrack.Streamed {
		t.Error("expected stream keyword to set Streamed decode policy")
	}
	if !snd.Loop.Enabled || snd.Loop.Start != 1000 || snd.Loop.End != 5000 {
		t.Errorf("unexpected loop points: %+v", snd.Loop)
	}
}
