package transport

import (
	"smsengine/internal/control"
	"smsengine/internal/soundtrack"
)

// ReplaceSoundtrack publishes a new Soundtrack atomically; the prior live
// copy is retained by anything still reading through it (shared-immutable,
// copy-on-write).
func (ci *CommandIssuer) ReplaceSoundtrack(st *soundtrack.Soundtrack) {
	ci.enqueue(Command{Kind: KindReplaceSoundtrack, Soundtrack: st})
}

// Precache increments the precache ref count of every Sound reachable from
// flow's nodes.
func (ci *CommandIssuer) Precache(flow string) {
	ci.enqueue(Command{Kind: KindPrecache, Name: flow})
}

// Unprecache cancels one Precache call for flow.
func (ci *CommandIssuer) Unprecache(flow string) {
	ci.enqueue(Command{Kind: KindUnprecache, Name: flow})
}

// UnprecacheAll zeros every precache ref count.
func (ci *CommandIssuer) UnprecacheAll() {
	ci.enqueue(Command{Kind: KindUnprecacheAll})
}

// SetFlowControlToNumber sets a FlowControl name to a numeric value.
func (ci *CommandIssuer) SetFlowControlToNumber(name string, value float32) {
	ci.enqueue(Command{Kind: KindSetFlowControlToNumber, Name: name, Number: value})
}

// SetFlowControlToString sets a FlowControl name to a string value.
func (ci *CommandIssuer) SetFlowControlToString(name, value string) {
	ci.enqueue(Command{Kind: KindSetFlowControlToString, Name: name, Text: value})
}

// ClearFlowControl removes a single FlowControl name.
func (ci *CommandIssuer) ClearFlowControl(name string) {
	ci.enqueue(Command{Kind: KindClearFlowControl, Name: name})
}

// ClearPrefixedFlowControls removes every FlowControl whose name has prefix.
func (ci *CommandIssuer) ClearPrefixedFlowControls(prefix string) {
	ci.enqueue(Command{Kind: KindClearPrefixedFlowControls, Name: prefix})
}

// ClearAllFlowControls empties the FlowControl map.
func (ci *CommandIssuer) ClearAllFlowControls() {
	ci.enqueue(Command{Kind: KindClearAllFlowControls})
}

// FadeMixControlTo fades (creating if absent) a named bus toward gain.
func (ci *CommandIssuer) FadeMixControlTo(name string, gain float32, seconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeMixControlTo, Name: name, Number: gain, FadeSeconds: seconds, Curve: curve})
}

// FadePrefixedMixControlsTo fades every bus with the given prefix toward gain.
func (ci *CommandIssuer) FadePrefixedMixControlsTo(prefix string, gain float32, seconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadePrefixedMixControlsTo, Name: prefix, Number: gain, FadeSeconds: seconds, Curve: curve})
}

// FadeAllMixControlsTo fades every bus toward gain.
func (ci *CommandIssuer) FadeAllMixControlsTo(gain float32, seconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeAllMixControlsTo, Number: gain, FadeSeconds: seconds, Curve: curve})
}

// FadeAllExceptMainMixControlsTo fades every non-main bus toward gain.
func (ci *CommandIssuer) FadeAllExceptMainMixControlsTo(gain float32, seconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeAllExceptMainMixControlsTo, Number: gain, FadeSeconds: seconds, Curve: curve})
}

// FadeMixControlOut fades name to zero and removes it on completion.
func (ci *CommandIssuer) FadeMixControlOut(name string, seconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeMixControlOut, Name: name, FadeSeconds: seconds, Curve: curve})
}

// FadePrefixedMixControlsOut fades every bus with the prefix to zero.
func (ci *CommandIssuer) FadePrefixedMixControlsOut(prefix string, seconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadePrefixedMixControlsOut, Name: prefix, FadeSeconds: seconds, Curve: curve})
}

// FadeAllMixControlsOut fades every bus (including main) to zero.
func (ci *CommandIssuer) FadeAllMixControlsOut(seconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeAllMixControlsOut, FadeSeconds: seconds, Curve: curve})
}

// FadeAllExceptMainMixControlsOut fades every non-main bus to zero.
func (ci *CommandIssuer) FadeAllExceptMainMixControlsOut(seconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeAllExceptMainMixControlsOut, FadeSeconds: seconds, Curve: curve})
}

// KillMixControl removes name immediately.
func (ci *CommandIssuer) KillMixControl(name string) {
	ci.enqueue(Command{Kind: KindKillMixControl, Name: name})
}

// KillPrefixedMixControls removes every bus with the prefix immediately.
func (ci *CommandIssuer) KillPrefixedMixControls(prefix string) {
	ci.enqueue(Command{Kind: KindKillPrefixedMixControls, Name: prefix})
}

// KillAllMixControls removes every bus immediately.
func (ci *CommandIssuer) KillAllMixControls() {
	ci.enqueue(Command{Kind: KindKillAllMixControls})
}

// KillAllExceptMainMixControls removes every non-main bus immediately.
func (ci *CommandIssuer) KillAllExceptMainMixControls() {
	ci.enqueue(Command{Kind: KindKillAllExceptMainMixControls})
}

// StartFlow starts (or, if already running, fades) the named Flow.
func (ci *CommandIssuer) StartFlow(name string, vol float32, fadeSeconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindStartFlow, Name: name, Number: vol, FadeSeconds: fadeSeconds, Curve: curve})
}

// FadeFlowTo adjusts a running/starting Flow's gain envelope.
func (ci *CommandIssuer) FadeFlowTo(name string, vol float32, fadeSeconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeFlowTo, Name: name, Number: vol, FadeSeconds: fadeSeconds, Curve: curve})
}

// FadePrefixedFlowsTo fades every running Flow with the prefix.
func (ci *CommandIssuer) FadePrefixedFlowsTo(prefix string, vol float32, fadeSeconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadePrefixedFlowsTo, Name: prefix, Number: vol, FadeSeconds: fadeSeconds, Curve: curve})
}

// FadeAllFlowsTo fades every running Flow.
func (ci *CommandIssuer) FadeAllFlowsTo(vol float32, fadeSeconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeAllFlowsTo, Number: vol, FadeSeconds: fadeSeconds, Curve: curve})
}

// FadeFlowOut fades a Flow out and marks it for destruction at completion.
func (ci *CommandIssuer) FadeFlowOut(name string, fadeSeconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeFlowOut, Name: name, FadeSeconds: fadeSeconds, Curve: curve})
}

// FadePrefixedFlowsOut fades every running Flow with the prefix out.
func (ci *CommandIssuer) FadePrefixedFlowsOut(prefix string, fadeSeconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadePrefixedFlowsOut, Name: prefix, FadeSeconds: fadeSeconds, Curve: curve})
}

// FadeAllFlowsOut fades every running Flow out.
func (ci *CommandIssuer) FadeAllFlowsOut(fadeSeconds float64, curve control.Curve) {
	ci.enqueue(Command{Kind: KindFadeAllFlowsOut, FadeSeconds: fadeSeconds, Curve: curve})
}

// KillFlow destroys a Flow immediately.
func (ci *CommandIssuer) KillFlow(name string) {
	ci.enqueue(Command{Kind: KindKillFlow, Name: name})
}

// KillPrefixedFlows destroys every running Flow with the prefix.
func (ci *CommandIssuer) KillPrefixedFlows(prefix string) {
	ci.enqueue(Command{Kind: KindKillPrefixedFlows, Name: prefix})
}

// KillAllFlows destroys every running Flow.
func (ci *CommandIssuer) KillAllFlows() {
	ci.enqueue(Command{Kind: KindKillAllFlows})
}
