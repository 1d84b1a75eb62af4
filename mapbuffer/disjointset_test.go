package mapbuffer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridscan/pyratiff"
)

func TestDisjointSetExpand(t *testing.T) {
	s := NewDisjointSet()
	assert.Equal(t, 0, s.Count())
	require.NoError(t, s.Expand(10))
	assert.GreaterOrEqual(t, s.Count(), 11)
	for i := int32(0); i <= 10; i++ {
		assert.Equal(t, i, s.FindBase(i))
		assert.Equal(t, int32(1), s.Cardinality(i))
	}
}

func TestDisjointSetExpandLimit(t *testing.T) {
	s := NewDisjointSet()
	err := s.Expand(MaxObjects)
	assert.ErrorIs(t, err, pyratiff.ErrResourceExhausted)
	assert.ErrorIs(t, s.Expand(-1), pyratiff.ErrInvalidArgument)
}

func TestDisjointSetJointObjects(t *testing.T) {
	s := NewDisjointSet()
	base, err := s.JointObjects(3, 7)
	require.NoError(t, err)
	assert.Equal(t, s.FindBase(3), s.FindBase(7))
	assert.Equal(t, base, s.FindBase(3))
	assert.Equal(t, int32(2), s.Cardinality(base))
}

func TestDisjointSetUnionBySize(t *testing.T) {
	s := NewDisjointSet()
	_, err := s.JointObjects(1, 2)
	require.NoError(t, err)
	_, err = s.JointObjects(2, 3)
	require.NoError(t, err)
	big := s.FindBase(1)
	// joining a singleton against a tree of 3 keeps the big tree's base
	base, err := s.JointObjects(9, 1)
	require.NoError(t, err)
	assert.Equal(t, big, base)
	assert.Equal(t, int32(4), s.Cardinality(base))
}

// TestDisjointSetLaws checks findBase idempotence and cardinality
// consistency over random union sequences.
func TestDisjointSetLaws(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewDisjointSet()
	const n = 500
	require.NoError(t, s.Expand(n-1))
	for i := 0; i < 300; i++ {
		a, b := rng.Intn(n), rng.Intn(n)
		_, err := s.JointObjects(a, b)
		require.NoError(t, err)
	}
	s.ResolveAllBases()

	counts := map[int32]int32{}
	for i := int32(0); i < n; i++ {
		base := s.FindBase(i)
		assert.Equal(t, base, s.FindBase(base), "base of a base must be itself")
		counts[base]++
	}
	for base, count := range counts {
		assert.Equal(t, count, s.Cardinality(base), "cardinality of base %d", base)
	}
}

func TestResolveAllBasesCompresses(t *testing.T) {
	s := NewDisjointSet()
	for i := 0; i < 100; i++ {
		_, err := s.JointObjects(i, i+1)
		require.NoError(t, err)
	}
	s.ResolveAllBases()
	base := s.FindBase(0)
	for i := int32(0); i <= 100; i++ {
		assert.Equal(t, base, s.ParentOrThis(i), "id %d should point at the base directly", i)
	}
}

func TestParentOrThisOutsideRange(t *testing.T) {
	s := NewDisjointSet()
	require.NoError(t, s.Expand(3))
	assert.Equal(t, int32(1000), s.ParentOrThis(1000))
}

func TestLabelSet(t *testing.T) {
	s := NewLabelSet(10)
	assert.False(t, s.Contains(3))
	s.Add(3)
	s.Add(64)
	s.Add(200)
	assert.True(t, s.Contains(3))
	assert.True(t, s.Contains(64))
	assert.True(t, s.Contains(200))
	assert.False(t, s.Contains(4))
	assert.False(t, s.Contains(-1))
	assert.Equal(t, 3, s.Cardinality())
	s.Clear()
	assert.False(t, s.Contains(3))
	assert.Equal(t, 0, s.Cardinality())
}
