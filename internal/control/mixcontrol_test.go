package control

import "testing"

func TestNewMixControlMapHasMainAtUnityGain(t *testing.T) {
	m := NewMixControlMap()
	b, ok := m.Lookup(MainBus)
	if !ok {
		t.Fatal("expected the main bus to exist from construction")
	}
	if b.Envelope.Gain() != 1.0 {
		t.Errorf("expected main bus gain 1.0, got %v", b.Envelope.Gain())
	}
}

func TestGetOrCreateDefaultsToUnityGain(t *testing.T) {
	m := NewMixControlMap()
	b := m.GetOrCreate("hazard")
	if b.Envelope.Gain() != 1.0 {
		t.Errorf("expected a newly-referenced bus to start at gain 1.0, got %v", b.Envelope.Gain())
	}
}

func TestFadeOutRemovesBusOnCompletionAndSweepsDoNotResurrect(t *testing.T) {
	m := NewMixControlMap()
	m.FadeOut("hazard", 0.5, CurveExponential)

	m.Advance(0.5) // fade completes
	if _, ok := m.Lookup("hazard"); ok {
		t.Fatal("expected hazard to be removed once its fade-out completes")
	}

	// A following sweep ("all") must not resurrect the dead bus.
	for _, n := range m.Names() {
		m.FadeTo(n, 1.0, 0, CurveLinear)
	}
	if _, ok := m.Lookup("hazard"); ok {
		t.Fatal("an all-bus sweep must not resurrect a bus that already faded out")
	}

	// A direct command naming it, however, recreates it.
	m.FadeTo("hazard", 1.0, 0, CurveLinear)
	if _, ok := m.Lookup("hazard"); !ok {
		t.Fatal("a direct fade_to naming the bus must recreate it")
	}
}

func TestFadeToDoesNotMarkDead(t *testing.T) {
	m := NewMixControlMap()
	m.FadeTo("music", 0, 0.1, CurveLinear)
	m.Advance(0.1)
	if _, ok := m.Lookup("music"); !ok {
		t.Fatal("a plain fade_to(0) must not remove the bus the way fade_out does")
	}
}

func TestKillRemovesImmediatelyRegardlessOfFadeState(t *testing.T) {
	m := NewMixControlMap()
	m.FadeTo("music", 0.5, 10, CurveLinear) // long fade, barely started
	m.Kill("music")
	if _, ok := m.Lookup("music"); ok {
		t.Fatal("kill must remove the bus immediately, independent of fade progress")
	}
}

func TestNamesPrefixedAndExceptMain(t *testing.T) {
	m := NewMixControlMap()
	m.GetOrCreate("sfx.hit")
	m.GetOrCreate("sfx.ambient")
	m.GetOrCreate("music")

	prefixed := m.NamesPrefixed("sfx.")
	if len(prefixed) != 2 {
		t.Fatalf("expected 2 buses with prefix sfx., got %d: %v", len(prefixed), prefixed)
	}

	exceptMain := m.NamesExceptMain()
	for _, n := range exceptMain {
		if n == MainBus {
			t.Fatal("NamesExceptMain must not include main")
		}
	}
	if len(exceptMain) != 3 {
		t.Fatalf("expected 3 non-main buses, got %d", len(exceptMain))
	}
}

func TestFlowControlMapDefaultsAndClear(t *testing.T) {
	m := NewFlowControlMap()
	if v := m.Get("missing"); v.Truthy() {
		t.Error("an unset FlowControl name must read as falsy (zero number)")
	}

	m.SetNumber("hp", 50)
	m.SetString("zone", "dungeon")

	if m.Get("hp").Number() != 50 {
		t.Errorf("expected hp=50, got %v", m.Get("hp").Number())
	}
	if m.Get("zone").String() != "dungeon" {
		t.Errorf("expected zone=dungeon, got %v", m.Get("zone").String())
	}
	if m.Get("hp").IsString() {
		t.Error("a numeric value must not report IsString")
	}

	m.ClearPrefixed("h")
	if m.Get("hp").Truthy() {
		t.Error("ClearPrefixed must remove matching names")
	}
	if !m.Get("zone").Truthy() {
		t.Error("ClearPrefixed must not remove non-matching names")
	}

	m.ClearAll()
	if m.Get("zone").Truthy() {
		t.Error("ClearAll must empty the map")
	}
}

func TestFlowControlStringValueNumbersAsZero(t *testing.T) {
	m := NewFlowControlMap()
	m.SetString("name", "dungeon")
	if m.Get("name").Number() != 0 {
		t.Error("a string FlowControl's numeric interpretation must be 0")
	}
}
