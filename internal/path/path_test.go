package path

import (
	"testing"

	"github.com/ibs-source/bastion/internal/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootIsSystemOnly(t *testing.T) {
	r := Root()
	require.Equal(t, 1, r.Depth())
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, System, last.Kind)
}

func TestAppendDoesNotMutateReceiver(t *testing.T) {
	r := Root()
	sup := r.Append(SupervisorElement(id.New()))

	assert.Equal(t, 1, r.Depth())
	assert.Equal(t, 2, sup.Depth())
}

func TestStringRendersSegments(t *testing.T) {
	supID := id.New()
	p := Root().Append(SupervisorElement(supID))
	assert.Contains(t, p.String(), "system/supervisor(")
	assert.Contains(t, p.String(), supID.String())
}
