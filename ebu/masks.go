package ebu

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// Gateway selects which ST 2110-21 pacing envelope's VRX/Cinst bounds a
// Monitor checks against.
type Gateway uint8

const (
	GatewayNarrow Gateway = iota
	GatewayWide
)

func (g Gateway) String() string {
	if g == GatewayWide {
		return "wide"
	}
	return "narrow"
}

// tmdTicksMax is the maximum allowed TMD (timestamp-metadata delta) at
// 90kHz regardless of gateway (spec.md §4.4 "EBU calculations").
const tmdTicksMax = 129

// maskExpr pairs a human-readable mask name with the govaluate expression
// that decides pass/fail for it, evaluated against a parameter map built
// from a measurement window's snapshots.
type maskExpr struct {
	name string
	expr *govaluate.EvaluableExpression
}

func mustExpr(s string) *govaluate.EvaluableExpression {
	e, err := govaluate.NewEvaluableExpression(s)
	if err != nil {
		panic(fmt.Sprintf("ebu: invalid mask expression %q: %v", s, err))
	}
	return e
}

var narrowMasks = []maskExpr{
	{name: "vrx", expr: mustExpr("vrxMax <= 9")},
	{name: "cinst", expr: mustExpr("cinstMax <= 5")},
	{name: "fpt", expr: mustExpr("fptMax < 2 * trOffset")},
	{name: "tmd", expr: mustExpr(fmt.Sprintf("tmdMax < %d", tmdTicksMax))},
}

var wideMasks = []maskExpr{
	{name: "vrx", expr: mustExpr("vrxMax <= 720")},
	{name: "cinst", expr: mustExpr("cinstMax <= 16")},
	{name: "fpt", expr: mustExpr("fptMax < 2 * trOffset")},
	{name: "tmd", expr: mustExpr(fmt.Sprintf("tmdMax < %d", tmdTicksMax))},
}

func masksFor(g Gateway) []maskExpr {
	if g == GatewayWide {
		return wideMasks
	}
	return narrowMasks
}

// Verdict is one mask's evaluated pass/fail outcome.
type Verdict struct {
	Name string
	Pass bool
}

// evaluateMasks runs every mask for the gateway against params, returning
// one Verdict per mask (spec.md §4.4: "averaged and logged with
// PASS/FAIL verdicts against masks").
func evaluateMasks(g Gateway, params map[string]interface{}) ([]Verdict, error) {
	masks := masksFor(g)
	out := make([]Verdict, 0, len(masks))
	for _, m := range masks {
		result, err := m.expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("ebu: evaluating mask %s: %w", m.name, err)
		}
		pass, ok := result.(bool)
		if !ok {
			return nil, fmt.Errorf("ebu: mask %s did not evaluate to a boolean", m.name)
		}
		out = append(out, Verdict{Name: m.name, Pass: pass})
	}
	return out, nil
}
