package soundtrack

import "testing"

func TestCloneIsIndependent(t *testing.T) {
	orig := New()
	orig.Sounds["kick"] = Sound{Name: "kick", Gain: 1}
	orig.Flows["A"] = &Flow{Name: "A", Nodes: map[string]*Node{}}

	clone := orig.Clone()
	clone.Sounds["snare"] = Sound{Name: "snare", Gain: 1}

	if _, ok := orig.Sounds["snare"]; ok {
		t.Fatal("mutating the clone's Sounds map must not affect the original")
	}
	if _, ok := clone.Sounds["kick"]; !ok {
		t.Fatal("clone must retain entries present at clone time")
	}
}

func TestMergeFromOverwritesSameNamed(t *testing.T) {
	dst := New()
	dst.Sounds["kick"] = Sound{Name: "kick", Gain: 1}
	dst.Sounds["snare"] = Sound{Name: "snare", Gain: 1}

	patch := New()
	patch.Sounds["kick"] = Sound{Name: "kick", Gain: 0.5}
	patch.Sounds["hat"] = Sound{Name: "hat", Gain: 1}

	dst.MergeFrom(patch)

	if dst.Sounds["kick"].Gain != 0.5 {
		t.Fatalf("expected kick to be overwritten, got gain %v", dst.Sounds["kick"].Gain)
	}
	if _, ok := dst.Sounds["snare"]; !ok {
		t.Fatal("merge must preserve definitions not present in the patch")
	}
	if _, ok := dst.Sounds["hat"]; !ok {
		t.Fatal("merge must add new definitions from the patch")
	}
}

func TestReachableSoundsFollowsPlayAndIfSteps(t *testing.T) {
	track := New()
	track.Sounds["bgm"] = Sound{Name: "bgm"}
	track.Sounds["sting"] = Sound{Name: "sting"}

	flow := &Flow{
		Name:      "A",
		StartNode: "main",
		Nodes: map[string]*Node{
			"main": {
				Name: "main",
				Steps: []Step{
					{Kind: StepPlayAndWait, Target: EventTarget{RefName: "bgm"}},
					{Kind: StepIf, Cond: Predicate{Op: PredTruthy, FlowCtrl: "danger"}, Then: &Step{
						Kind:   StepPlayFireAndForget,
						Target: EventTarget{RefName: "sting"},
					}},
				},
			},
		},
	}

	reachable := track.ReachableSounds(flow)
	if _, ok := reachable["bgm"]; !ok {
		t.Error("expected bgm reachable via play-and-wait step")
	}
	if _, ok := reachable["sting"]; !ok {
		t.Error("expected sting reachable via nested if/then play step")
	}
}

func TestReachableSoundsFollowsSequenceEvents(t *testing.T) {
	track := New()
	track.Sounds["drone"] = Sound{Name: "drone"}
	track.Sequences["intro"] = Sequence{
		Name:          "intro",
		LengthSeconds: 4,
		Events: []SequenceEvent{
			{OffsetSeconds: 0, Target: EventTarget{RefName: "drone"}},
		},
	}

	flow := &Flow{
		Name:      "A",
		StartNode: "main",
		Nodes: map[string]*Node{
			"main": {
				Name: "main",
				Steps: []Step{
					{Kind: StepPlayAndWait, Target: EventTarget{RefName: "intro"}},
				},
			},
		},
	}

	reachable := track.ReachableSounds(flow)
	if _, ok := reachable["drone"]; !ok {
		t.Error("expected drone reachable through a referenced sequence's events")
	}
}

func TestFlowCloneIsDeep(t *testing.T) {
	f := &Flow{
		Name:      "A",
		StartNode: "main",
		Nodes: map[string]*Node{
			"main": {Name: "main", Steps: []Step{{Kind: StepPlayFireAndForget}}},
		},
	}
	cp := f.Clone()
	cp.Nodes["main"].Steps[0].Kind = StepStartNode

	if f.Nodes["main"].Steps[0].Kind != StepPlayFireAndForget {
		t.Fatal("mutating a cloned Flow's steps must not affect the original")
	}
}
