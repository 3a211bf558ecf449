package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/services/workflow"
)

func stubConstructor(id string, spec workflow.NodeSpec) Node { return newStub(spec) }

func registerStubs(r *Registry) error {
	if err := r.Register(Definition{Type: "stub", Mode: ModeOnce, New: stubConstructor}); err != nil {
		return err
	}
	if err := r.Register(Definition{Type: "ticker", Mode: ModeContinuous, New: stubConstructor}); err != nil {
		return err
	}
	return r.Alias("legacy-stub", "stub")
}

func TestRegistry_RegisterAllIsIdempotent(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterAll(registerStubs))
	size := r.Len()
	require.NoError(t, r.RegisterAll(registerStubs))

	assert.Equal(t, size, r.Len())
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_RegisterAllKeepsFirstError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")

	err := r.RegisterAll(func(*Registry) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, r.RegisterAll(registerStubs), boom)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_LookupAndAlias(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, registerStubs(r))

	def, ok := r.Lookup("legacy-stub")
	require.True(t, ok)
	assert.Equal(t, "stub", def.Type)

	_, ok = r.Lookup("nope")
	assert.False(t, ok)

	types := r.Types()
	require.Len(t, types, 3)
	assert.Equal(t, "legacy-stub", types[0].Type)
	assert.Equal(t, "stub", types[0].AliasOf)
	assert.Equal(t, ModeContinuous, types[2].Mode)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, registerStubs(r))

	err := r.Register(Definition{Type: "stub", New: stubConstructor})
	assert.ErrorIs(t, err, ErrConfiguration)

	err = r.Alias("stub", "ticker")
	assert.ErrorIs(t, err, ErrConfiguration)

	err = r.Alias("other", "missing")
	assert.ErrorIs(t, err, ErrConfiguration)

	err = r.Register(Definition{Type: "nil-constructor"})
	assert.ErrorIs(t, err, ErrConfiguration)
}
