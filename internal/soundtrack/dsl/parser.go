package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"smsengine/internal/soundtrack"
)

// Parse compiles src into a fresh Soundtrack. It never mutates an existing
// one — use Merge for the spec's re-entrant parse-into-existing semantics.
func Parse(src string) (*soundtrack.Soundtrack, error) {
	lines, err := lexLines(src)
	if err != nil {
		return nil, err
	}
	p := &parser{track: soundtrack.New()}
	i := 0
	for i < len(lines) {
		children, next := blockChildren(lines, i+1, lines[i].indent)
		if err := p.parseTopLevel(lines[i], children); err != nil {
			return nil, err
		}
		i = next
	}
	return p.track, nil
}

// Merge parses src and, only on success, merges the result into dst
// (adding new definitions, replacing same-named ones). On failure dst is
// left completely unchanged — this is the spec §6 re-entrant contract.
func Merge(dst *soundtrack.Soundtrack, src string) error {
	built, err := Parse(src)
	if err != nil {
		return err
	}
	dst.MergeFrom(built)
	return nil
}

type parser struct {
	track *soundtrack.Soundtrack
}

// blockChildren returns the run of lines strictly more indented than
// parentIndent starting at start, and the index just past them.
func blockChildren(lines []line, start, parentIndent int) ([]line, int) {
	i := start
	for i < len(lines) && lines[i].indent > parentIndent {
		i++
	}
	return lines[start:i], i
}

func (p *parser) parseTopLevel(ln line, children []line) error {
	if len(ln.tokens) == 0 {
		return nil
	}
	switch ln.tokens[0] {
	case "timebase":
		return p.parseTimebase(ln)
	case "sound":
		return p.parseSound(ln, children)
	case "sequence":
		return p.parseSequence(ln, children)
	case "flow":
		return p.parseFlow(ln, children)
	default:
		return fmt.Errorf("line %d: unexpected top-level keyword %q", ln.lineNo, ln.tokens[0])
	}
}

func (p *parser) parseTimebase(ln line) error {
	if len(ln.tokens) != 3 {
		return fmt.Errorf("line %d: timebase expects NAME N/{s|m}", ln.lineNo)
	}
	name := ln.tokens[1]
	num, unit, err := splitRateLiteral(ln.tokens[2])
	if err != nil {
		return fmt.Errorf("line %d: %w", ln.lineNo, err)
	}
	unitsPerSec := num
	if unit == "m" {
		unitsPerSec = num / 60
	} else if unit != "s" {
		return fmt.Errorf("line %d: timebase unit must be s or m, got %q", ln.lineNo, unit)
	}
	p.track.Timebases[name] = soundtrack.Timebase{Name: name, UnitsPerSec: unitsPerSec}
	return nil
}

func splitRateLiteral(tok string) (num float64, unit string, err error) {
	parts := strings.SplitN(tok, "/", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("expected N/unit, got %q", tok)
	}
	n, perr := strconv.ParseFloat(parts[0], 64)
	if perr != nil {
		return 0, "", fmt.Errorf("bad rate number %q: %w", parts[0], perr)
	}
	return n, parts[1], nil
}

func (p *parser) parseSound(ln line, children []line) error {
	if len(ln.tokens) != 2 {
		return fmt.Errorf("line %d: sound expects a NAME", ln.lineNo)
	}
	snd := soundtrack.Sound{Name: ln.tokens[1], Gain: 1.0}
	for _, c := range children {
		if err := p.applySoundStatement(&snd, c); err != nil {
			return err
		}
	}
	p.track.Sounds[snd.Name] = snd
	return nil
}

func (p *parser) applySoundStatement(snd *soundtrack.Sound, c line) error {
	switch c.tokens[0] {
	case "file":
		if len(c.tokens) != 2 {
			return fmt.Errorf("line %d: file expects a path", c.lineNo)
		}
		snd.File = c.tokens[1]
	case "start":
		n, err := parseInt(c, 1)
		if err != nil {
			return err
		}
		snd.StartOffset = n
	case "length":
		n, err := parseInt(c, 1)
		if err != nil {
			return err
		}
		snd.Length = n
	case "gain":
		n, err := parseFloatTok(c, 1)
		if err != nil {
			return err
		}
		snd.Gain = float32(n)
	case "loop":
		if len(c.tokens) != 3 {
			return fmt.Errorf("line %d: loop expects START END", c.lineNo)
		}
		start, err := strconv.ParseInt(c.tokens[1], 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: bad loop start: %w", c.lineNo, err)
		}
		end, err := strconv.ParseInt(c.tokens[2], 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: bad loop end: %w", c.lineNo, err)
		}
		snd.Loop = soundtrack.LoopPoints{Enabled: true, Start: start, End: end}
	case "stream":
		snd.Policy = soundtrack.Streamed
	default:
		return fmt.Errorf("line %d: unexpected sound statement %q", c.lineNo, c.tokens[0])
	}
	return nil
}

func (p *parser) parseSequence(ln line, children []line) error {
	if len(ln.tokens) != 2 {
		return fmt.Errorf("line %d: sequence expects a NAME", ln.lineNo)
	}
	seq := soundtrack.Sequence{Name: ln.tokens[1]}
	for _, c := range children {
		switch c.tokens[0] {
		case "length":
			secs, err := p.parseDurationStatement(c)
			if err != nil {
				return err
			}
			seq.LengthSeconds = secs
		case "play":
			ev, err := p.parseSequenceEvent(c)
			if err != nil {
				return err
			}
			seq.Events = append(seq.Events, ev)
		default:
			return fmt.Errorf("line %d: unexpected sequence statement %q", c.lineNo, c.tokens[0])
		}
	}
	p.track.Sequences[seq.Name] = seq
	return nil
}

// parseDurationStatement handles `length N` (bare seconds) and `length N
// UNIT` (converted via an already-declared timebase).
func (p *parser) parseDurationStatement(c line) (float64, error) {
	if len(c.tokens) == 2 {
		return parseFloatTok(c, 1)
	}
	if len(c.tokens) == 3 {
		n, err := parseFloatTok(c, 1)
		if err != nil {
			return 0, err
		}
		tb, ok := p.track.Timebases[c.tokens[2]]
		if !ok {
			return 0, fmt.Errorf("line %d: unknown timebase %q", c.lineNo, c.tokens[2])
		}
		return tb.SecondsOf(n), nil
	}
	return 0, fmt.Errorf("line %d: length expects N [unit]", c.lineNo)
}

// parseSequenceEvent parses `play (sound|sequence) NAME [at N [unit]]
// [channel NAME]` inside a sequence body.
func (p *parser) parseSequenceEvent(c line) (soundtrack.SequenceEvent, error) {
	target, rest, err := parsePlayTarget(c)
	if err != nil {
		return soundtrack.SequenceEvent{}, err
	}
	ev := soundtrack.SequenceEvent{Target: target}
	offset, channel, err := p.parseTrailingPlayModifiers(c, rest, false)
	if err != nil {
		return soundtrack.SequenceEvent{}, err
	}
	ev.OffsetSeconds = offset
	ev.Channel = channel
	return ev, nil
}

// parsePlayTarget consumes `play (sound|sequence) NAME` and returns the
// resolved EventTarget plus the remaining, unconsumed tokens.
func parsePlayTarget(c line) (soundtrack.EventTarget, []string, error) {
	if len(c.tokens) < 3 {
		return soundtrack.EventTarget{}, nil, fmt.Errorf("line %d: play expects (sound|sequence) NAME", c.lineNo)
	}
	switch c.tokens[1] {
	case "sound", "sequence":
	default:
		return soundtrack.EventTarget{}, nil, fmt.Errorf("line %d: play expects sound or sequence, got %q", c.lineNo, c.tokens[1])
	}
	return soundtrack.EventTarget{RefName: c.tokens[2]}, c.tokens[3:], nil
}

// parseTrailingPlayModifiers scans the remaining tokens of a play
// statement for `and wait`, `at N [unit]`, `channel NAME`, returning the
// offset (0 if absent) and the channel name ("" if absent, caller defaults
// to main); it does not report whether `and wait` was present.
func (p *parser) parseTrailingPlayModifiers(c line, rest []string, allowWait bool) (offset float64, channel string, err error) {
	i := 0
	for i < len(rest) {
		switch rest[i] {
		case "and":
			if !allowWait || i+1 >= len(rest) || rest[i+1] != "wait" {
				return 0, "", fmt.Errorf("line %d: unexpected token %q", c.lineNo, rest[i])
			}
			i += 2
		case "at":
			if i+1 >= len(rest) {
				return 0, "", fmt.Errorf("line %d: at expects a number", c.lineNo)
			}
			n, perr := strconv.ParseFloat(rest[i+1], 64)
			if perr != nil {
				return 0, "", fmt.Errorf("line %d: bad at offset %q: %w", c.lineNo, rest[i+1], perr)
			}
			i += 2
			if i < len(rest) {
				if tb, ok := p.track.Timebases[rest[i]]; ok {
					n = tb.SecondsOf(n)
					i++
				}
			}
			offset = n
		case "channel":
			if i+1 >= len(rest) {
				return 0, "", fmt.Errorf("line %d: channel expects a NAME", c.lineNo)
			}
			channel = rest[i+1]
			i += 2
		default:
			return 0, "", fmt.Errorf("line %d: unexpected token %q", c.lineNo, rest[i])
		}
	}
	return offset, channel, nil
}

// playAndWait reports whether `and wait` appears anywhere in rest.
func playAndWait(rest []string) bool {
	for i := 0; i+1 < len(rest); i++ {
		if rest[i] == "and" && rest[i+1] == "wait" {
			return true
		}
	}
	return false
}

func (p *parser) parseFlow(ln line, children []line) error {
	if len(ln.tokens) < 2 {
		return fmt.Errorf("line %d: flow expects a NAME", ln.lineNo)
	}
	fl := &soundtrack.Flow{Name: ln.tokens[1], Nodes: make(map[string]*soundtrack.Node)}
	if len(ln.tokens) >= 4 && ln.tokens[2] == "with" && ln.tokens[3] == "loop" {
		fl.WithLoop = true
	}
	for i := 0; i < len(children); {
		c := children[i]
		if c.tokens[0] != "node" || len(c.tokens) != 2 {
			return fmt.Errorf("line %d: expected a node declaration inside flow", c.lineNo)
		}
		grandchildren, next := blockChildren(children, i+1, c.indent)
		node, err := p.parseNode(c.tokens[1], grandchildren)
		if err != nil {
			return err
		}
		fl.Nodes[node.Name] = node
		if fl.StartNode == "" {
			fl.StartNode = node.Name
		}
		i = next
	}
	p.track.Flows[fl.Name] = fl
	return nil
}

func (p *parser) parseNode(name string, lines []line) (*soundtrack.Node, error) {
	node := &soundtrack.Node{Name: name}
	for _, c := range lines {
		step, err := p.parseStep(c)
		if err != nil {
			return nil, err
		}
		node.Steps = append(node.Steps, step)
	}
	return node, nil
}

// parseStep parses a single node-body statement: play, start/restart/
// switch node, or if/then.
func (p *parser) parseStep(c line) (soundtrack.Step, error) {
	switch c.tokens[0] {
	case "play":
		return p.parsePlayStep(c)
	case "start":
		name, err := nodeRefArg(c)
		if err != nil {
			return soundtrack.Step{}, err
		}
		return soundtrack.Step{Kind: soundtrack.StepStartNode, NodeName: name}, nil
	case "restart":
		name, err := nodeRefArg(c)
		if err != nil {
			return soundtrack.Step{}, err
		}
		return soundtrack.Step{Kind: soundtrack.StepRestartNode, NodeName: name}, nil
	case "switch":
		name, err := nodeRefArg(c)
		if err != nil {
			return soundtrack.Step{}, err
		}
		return soundtrack.Step{Kind: soundtrack.StepSwitchNode, NodeName: name}, nil
	case "if":
		return p.parseIfStep(c)
	default:
		return soundtrack.Step{}, fmt.Errorf("line %d: unexpected node statement %q", c.lineNo, c.tokens[0])
	}
}

func nodeRefArg(c line) (string, error) {
	if len(c.tokens) != 3 || c.tokens[1] != "node" {
		return "", fmt.Errorf("line %d: expected %q node NAME", c.lineNo, c.tokens[0])
	}
	return c.tokens[2], nil
}

func (p *parser) parsePlayStep(c line) (soundtrack.Step, error) {
	target, rest, err := parsePlayTarget(c)
	if err != nil {
		return soundtrack.Step{}, err
	}
	wait := playAndWait(rest)
	rest = stripAndWait(rest)
	offset, channel, err := p.parseTrailingPlayModifiers(c, rest, true)
	_ = offset // node-body plays don't carry a schedule offset; only sequence events do
	if err != nil {
		return soundtrack.Step{}, err
	}
	kind := soundtrack.StepPlayFireAndForget
	if wait {
		kind = soundtrack.StepPlayAndWait
	}
	return soundtrack.Step{Kind: kind, Target: target, Channel: channel}, nil
}

func stripAndWait(rest []string) []string {
	out := make([]string, 0, len(rest))
	for i := 0; i < len(rest); i++ {
		if i+1 < len(rest) && rest[i] == "and" && rest[i+1] == "wait" {
			i++
			continue
		}
		out = append(out, rest[i])
	}
	return out
}

// parseIfStep parses `if EXPR then STEP`, where STEP is restricted to
// switch/start/restart node (spec §3's Node step grammar).
func (p *parser) parseIfStep(c line) (soundtrack.Step, error) {
	thenIdx := -1
	for i, t := range c.tokens {
		if t == "then" {
			thenIdx = i
			break
		}
	}
	if thenIdx < 0 {
		return soundtrack.Step{}, fmt.Errorf("line %d: if expects a then clause", c.lineNo)
	}
	pred, err := parsePredicate(c.tokens[1:thenIdx], c.lineNo)
	if err != nil {
		return soundtrack.Step{}, err
	}
	thenTokens := c.tokens[thenIdx+1:]
	if len(thenTokens) == 0 {
		return soundtrack.Step{}, fmt.Errorf("line %d: then expects a step", c.lineNo)
	}
	thenLine := line{tokens: thenTokens, lineNo: c.lineNo}
	var thenStep soundtrack.Step
	switch thenTokens[0] {
	case "switch", "start", "restart":
		thenStep, err = p.parseStep(thenLine)
	default:
		return soundtrack.Step{}, fmt.Errorf("line %d: if/then only supports switch/start/restart node", c.lineNo)
	}
	if err != nil {
		return soundtrack.Step{}, err
	}
	return soundtrack.Step{Kind: soundtrack.StepIf, Cond: pred, Then: &thenStep}, nil
}

// parsePredicate parses `$name`, `!$name`, or `$name OP value`.
func parsePredicate(tokens []string, lineNo int) (soundtrack.Predicate, error) {
	if len(tokens) == 1 {
		t := tokens[0]
		if strings.HasPrefix(t, "!$") {
			return soundtrack.Predicate{Op: soundtrack.PredFalsy, FlowCtrl: t[2:]}, nil
		}
		if strings.HasPrefix(t, "$") {
			return soundtrack.Predicate{Op: soundtrack.PredTruthy, FlowCtrl: t[1:]}, nil
		}
		return soundtrack.Predicate{}, fmt.Errorf("line %d: bad predicate %q", lineNo, t)
	}
	if len(tokens) == 3 && strings.HasPrefix(tokens[0], "$") {
		name := tokens[0][1:]
		op := tokens[1]
		operand := tokens[2]
		if n, err := strconv.ParseFloat(operand, 64); err == nil {
			predOp, ok := numericOp(op)
			if !ok {
				return soundtrack.Predicate{}, fmt.Errorf("line %d: bad comparison operator %q", lineNo, op)
			}
			return soundtrack.Predicate{Op: predOp, FlowCtrl: name, NumOperand: n}, nil
		}
		if op != "==" {
			return soundtrack.Predicate{}, fmt.Errorf("line %d: string comparisons only support ==", lineNo)
		}
		return soundtrack.Predicate{Op: soundtrack.PredStrEQ, FlowCtrl: name, StrOperand: operand}, nil
	}
	return soundtrack.Predicate{}, fmt.Errorf("line %d: bad predicate expression", lineNo)
}

func numericOp(op string) (soundtrack.PredicateOp, bool) {
	switch op {
	case "==":
		return soundtrack.PredNumEQ, true
	case "<":
		return soundtrack.PredNumLT, true
	case "<=":
		return soundtrack.PredNumLTE, true
	case ">":
		return soundtrack.PredNumGT, true
	case ">=":
		return soundtrack.PredNumGTE, true
	default:
		return 0, false
	}
}

func parseInt(c line, idx int) (int64, error) {
	if idx >= len(c.tokens) {
		return 0, fmt.Errorf("line %d: %s expects a number", c.lineNo, c.tokens[0])
	}
	n, err := strconv.ParseInt(c.tokens[idx], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: bad number %q: %w", c.lineNo, c.tokens[idx], err)
	}
	return n, nil
}

func parseFloatTok(c line, idx int) (float64, error) {
	if idx >= len(c.tokens) {
		return 0, fmt.Errorf("line %d: %s expects a number", c.lineNo, c.tokens[0])
	}
	n, err := strconv.ParseFloat(c.tokens[idx], 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: bad number %q: %w", c.lineNo, c.tokens[idx], err)
	}
	return n, nil
}
