package control

import "smsengine/internal/telemetry"

// MainBus is the name of the root mix bus. Every active sound is attributed
// to exactly one MixControl; sounds with no explicit channel use this one.
const MainBus = "main"

// MixControlState is the live state of one named gain bus.
type MixControlState struct {
	Envelope Envelope
	IsDead   bool // marked for removal once its fade-to-zero completes
}

// MixControlMap is the engine's live name -> bus mapping. The special name
// "main" is the root bus; a completed fade-out never removes it, but kill
// commands do (kill_mix_control("main"), kill_all, and a prefixed kill
// whose prefix matches "main").
type MixControlMap struct {
	buses map[string]*MixControlState
}

// NewMixControlMap returns a map with the main bus present at gain 1.0.
func NewMixControlMap() *MixControlMap {
	m := &MixControlMap{buses: make(map[string]*MixControlState)}
	m.buses[MainBus] = &MixControlState{Envelope: NewEnvelope(1, 1, 0, CurveLinear)}
	return m
}

// GetOrCreate returns the bus for name, creating it at gain 1.0 if absent.
// Per spec §3: "MixControls created on first reference with gain 1.0."
func (m *MixControlMap) GetOrCreate(name string) *MixControlState {
	if b, ok := m.buses[name]; ok {
		return b
	}
	b := &MixControlState{Envelope: NewEnvelope(1, 1, 0, CurveLinear)}
	m.buses[name] = b
	return b
}

// Lookup returns the bus for name without creating it.
func (m *MixControlMap) Lookup(name string) (*MixControlState, bool) {
	b, ok := m.buses[name]
	return b, ok
}

// Remove deletes name unconditionally (used by kill_mix_control and by
// fade-to-zero completion).
func (m *MixControlMap) Remove(name string) {
	if name == MainBus {
		// main may still be explicitly killed; the caller decides.
	}
	delete(m.buses, name)
}

// Names returns every currently-present bus name.
func (m *MixControlMap) Names() []string {
	out := make([]string, 0, len(m.buses))
	for name := range m.buses {
		out = append(out, name)
	}
	return out
}

// NamesPrefixed returns every present bus name with the given prefix.
func (m *MixControlMap) NamesPrefixed(prefix string) []string {
	out := make([]string, 0)
	for name := range m.buses {
		if hasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

// NamesExceptMain returns every present bus name other than "main".
func (m *MixControlMap) NamesExceptMain() []string {
	out := make([]string, 0, len(m.buses))
	for name := range m.buses {
		if name != MainBus {
			out = append(out, name)
		}
	}
	return out
}

// Advance moves every bus's envelope forward by dt seconds, and sweeps away
// any non-main bus whose envelope has completed fading to (effectively)
// zero gain and is marked dead. A fade that completes at a positive target
// is not removed. Per invariant: once removed, a prefixed/all sweep cannot
// resurrect it; only a direct command naming it can (GetOrCreate does that
// the next time the name is referenced directly).
//
// Advance returns the names removed this call. A source still attributed to
// a removed bus must be evicted in the same block (spec §3: "every active
// source's mix-control name appears in the MixControl map until the
// source's contribution ceases") — the caller folds these into the same
// kill list an explicit kill_mix_control produces.
func (m *MixControlMap) Advance(dt float64) []string {
	var dead []string
	for name, b := range m.buses {
		b.Envelope.Advance(dt)
		if name == MainBus {
			continue
		}
		if b.IsDead && b.Envelope.Done() && b.Envelope.Gain() <= 0 {
			delete(m.buses, name)
			dead = append(dead, name)
			telemetry.RecordFadeCompletion("mixcontrol")
		}
	}
	return dead
}

// FadeTo starts (or retargets) a fade on name toward target gain, creating
// the bus if it doesn't exist. It clears IsDead: a fade to a nonzero target
// revives a bus that was mid-fade-to-zero.
func (m *MixControlMap) FadeTo(name string, target float32, seconds float64, curve Curve) {
	b := m.GetOrCreate(name)
	b.Envelope.Retarget(target, seconds, curve)
	b.IsDead = false // a plain fade_to never marks dead; only fade_out does
}

// FadeOut starts a fade-to-zero on name and marks it for removal on
// completion. Creating-on-reference still applies: fading out a name that
// doesn't exist yet creates it at gain 1.0 first, per spec semantics for
// MixControl creation on first reference.
func (m *MixControlMap) FadeOut(name string, seconds float64, curve Curve) {
	b := m.GetOrCreate(name)
	b.Envelope.Retarget(0, seconds, curve)
	b.IsDead = true
}

// Kill removes name immediately, regardless of fade state.
func (m *MixControlMap) Kill(name string) {
	delete(m.buses, name)
}
