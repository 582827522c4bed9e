// Package policy evaluates a plan's release-gate evidence policy as CEL
// expressions over parsed evidence documents. This generalizes the
// original substrate's hardcoded `decision == "PASS"` evidence check into
// an extensible policy a plan can declare via plan_manifest.json's
// policies.release_gate_cel field; plans that declare no CEL expression
// fall back to the original hardcoded check.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// DefaultGateExpr reproduces the original substrate's hardcoded evidence
// check: evidence is acceptable iff its parsed decision field is "PASS".
const DefaultGateExpr = `evidence.decision == "PASS"`

// Evaluator compiles and caches CEL programs evaluating a release gate
// expression against one evidence document at a time.
type Evaluator struct {
	env *cel.Env

	mu      sync.Mutex
	prgCache map[string]cel.Program
}

// NewEvaluator builds a CEL environment with a single "evidence" variable
// bound to the parsed JSON document (as a dynamic map) under test.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("evidence", cel.DynType),
		cel.Variable("plan_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: creating CEL environment: %w", err)
	}
	return &Evaluator{env: env, prgCache: make(map[string]cel.Program)}, nil
}

// EvaluateGate reports whether evidence (a decoded evidence document)
// passes expr, a CEL boolean expression referencing the `evidence` and
// `plan_id` variables. An empty expr uses DefaultGateExpr.
func (e *Evaluator) EvaluateGate(ctx context.Context, expr string, planID string, evidence map[string]any) (bool, error) {
	if expr == "" {
		expr = DefaultGateExpr
	}
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{
		"evidence": evidence,
		"plan_id":  planID,
	})
	if err != nil {
		return false, fmt.Errorf("policy: evaluating %q: %w", expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy: expression %q did not evaluate to bool", expr)
	}
	return result, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.prgCache[expr]; ok {
		return prg, nil
	}
	ast, iss := e.env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("policy: compiling %q: %w", expr, iss.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: building program %q: %w", expr, err)
	}
	e.prgCache[expr] = prg
	return prg, nil
}
