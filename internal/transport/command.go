// Package transport implements the command transport and transaction
// protocol (spec §4.1): a lock-free multi-producer single-consumer queue of
// command batches, draining wait-free into the audio thread once per
// TurnHandle, plus Commander/Transaction handles for game threads.
package transport

import (
	"smsengine/internal/control"
	"smsengine/internal/soundtrack"
)

// Kind is the closed set of commands the engine accepts. Every public
// operation in spec §6 maps to exactly one Kind.
type Kind int

const (
	KindReplaceSoundtrack Kind = iota
	KindPrecache
	KindUnprecache
	KindUnprecacheAll
	KindSetFlowControlToNumber
	KindSetFlowControlToString
	KindClearFlowControl
	KindClearPrefixedFlowControls
	KindClearAllFlowControls
	KindFadeMixControlTo
	KindFadePrefixedMixControlsTo
	KindFadeAllMixControlsTo
	KindFadeAllExceptMainMixControlsTo
	KindFadeMixControlOut
	KindFadePrefixedMixControlsOut
	KindFadeAllMixControlsOut
	KindFadeAllExceptMainMixControlsOut
	KindKillMixControl
	KindKillPrefixedMixControls
	KindKillAllMixControls
	KindKillAllExceptMainMixControls
	KindStartFlow
	KindFadeFlowTo
	KindFadePrefixedFlowsTo
	KindFadeAllFlowsTo
	KindFadeFlowOut
	KindFadePrefixedFlowsOut
	KindFadeAllFlowsOut
	KindKillFlow
	KindKillPrefixedFlows
	KindKillAllFlows
)

// Command is a single instruction destined for the audio thread. Only the
// fields relevant to Kind are meaningful; the rest are zero.
type Command struct {
	Kind Kind

	Name   string  // flow/mixcontrol/flowcontrol name, or prefix
	Number float32 // numeric FlowControl value, or target gain
	Text   string  // string FlowControl value

	FadeSeconds float64
	Curve       control.Curve

	Soundtrack *soundtrack.Soundtrack // KindReplaceSoundtrack payload
}

// Batch is a contiguous group of commands delivered as one indivisible
// unit: either issued as a single non-transactional command, or committed
// as a Transaction. The consumer never observes a partial Batch.
type Batch struct {
	Commands []Command
}
