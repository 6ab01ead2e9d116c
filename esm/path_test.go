package esm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathClimbsOneLevelAtATime(t *testing.T) {
	steps, err := path(Init, Op)
	require.NoError(t, err)
	require.Equal(t, []State{PreOp, SafeOp, Op}, steps)
}

func TestPathDownwardCanSkipLevelsDirectly(t *testing.T) {
	steps, err := path(Op, Init)
	require.NoError(t, err)
	require.Equal(t, []State{Init}, steps)

	steps, err = path(Op, PreOp)
	require.NoError(t, err)
	require.Equal(t, []State{PreOp}, steps)
}

func TestPathSameStateIsNoOp(t *testing.T) {
	steps, err := path(SafeOp, SafeOp)
	require.NoError(t, err)
	require.Nil(t, steps)
}

func TestPathOneStepDown(t *testing.T) {
	steps, err := path(SafeOp, PreOp)
	require.NoError(t, err)
	require.Equal(t, []State{PreOp}, steps)
}
