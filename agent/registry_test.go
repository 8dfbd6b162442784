package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crucible/model"
)

func TestRegistry_OrderAndLookup(t *testing.T) {
	a := NewModelAgent(Descriptor{ID: "safety_triage", Priority: 100}, model.NewMock())
	b := NewModelAgent(Descriptor{ID: "clinical_entity", Priority: 9}, model.NewMock())

	r, err := NewRegistry(a, b)
	require.NoError(t, err)

	ids := []string{}
	for _, ag := range r.Agents() {
		ids = append(ids, ag.Descriptor().ID)
	}
	assert.Equal(t, []string{"safety_triage", "clinical_entity"}, ids)
	assert.Equal(t, 2, r.Len())

	got, ok := r.Get("clinical_entity")
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	a := NewModelAgent(Descriptor{ID: "x"}, model.NewMock())

	_, err := NewRegistry(a, a)
	assert.ErrorIs(t, err, ErrDuplicateAgent)
}

func TestNewBaseAgent_Defaults(t *testing.T) {
	b := NewBaseAgent(Descriptor{ID: "output_generation"})

	assert.Equal(t, "output_generation", b.Name())
	assert.Equal(t, 1, b.Descriptor().Priority)
}
