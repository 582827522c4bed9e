package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateGateUsesDefaultExprWhenEmpty(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)

	pass, err := e.EvaluateGate(context.Background(), "", "plan_1", map[string]any{"decision": "PASS"})
	require.NoError(t, err)
	assert.True(t, pass)

	fail, err := e.EvaluateGate(context.Background(), "", "plan_1", map[string]any{"decision": "FAIL"})
	require.NoError(t, err)
	assert.False(t, fail)
}

func TestEvaluateGateCustomExpression(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)

	pass, err := e.EvaluateGate(context.Background(), `evidence.coverage_percent >= 80.0`, "plan_1", map[string]any{"coverage_percent": 92.5})
	require.NoError(t, err)
	assert.True(t, pass)

	fail, err := e.EvaluateGate(context.Background(), `evidence.coverage_percent >= 80.0`, "plan_1", map[string]any{"coverage_percent": 40.0})
	require.NoError(t, err)
	assert.False(t, fail)
}

func TestEvaluateGateCanReferencePlanID(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)

	pass, err := e.EvaluateGate(context.Background(), `plan_id == "plan_1"`, "plan_1", map[string]any{})
	require.NoError(t, err)
	assert.True(t, pass)
}

func TestEvaluateGateRejectsMalformedExpression(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)

	_, err = e.EvaluateGate(context.Background(), `this is not valid cel (((`, "plan_1", map[string]any{})
	assert.Error(t, err)
}

func TestEvaluateGateRejectsNonBooleanResult(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)

	_, err = e.EvaluateGate(context.Background(), `plan_id`, "plan_1", map[string]any{})
	assert.Error(t, err)
}

func TestEvaluateGateCachesCompiledProgram(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		pass, err := e.EvaluateGate(context.Background(), `evidence.decision == "PASS"`, "plan_1", map[string]any{"decision": "PASS"})
		require.NoError(t, err)
		assert.True(t, pass)
	}
	assert.Len(t, e.prgCache, 1)
}
