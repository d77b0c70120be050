package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRangesSimpleConjunction(t *testing.T) {
	f := And(Gte("year", 2020), Lt("year", 2024))
	ranges := CompileRanges(f)
	r, ok := ranges["year"]
	require.True(t, ok)
	assert.Equal(t, 2020, r.Min)
	assert.True(t, r.MinInclusive)
	assert.Equal(t, 2024, r.Max)
	assert.False(t, r.MaxInclusive)
}

func TestCompileRangesEqNarrowsBothSides(t *testing.T) {
	ranges := CompileRanges(Eq("status", "active"))
	r := ranges["status"]
	require.NotNil(t, r)
	assert.Equal(t, "active", r.Min)
	assert.Equal(t, "active", r.Max)
}

func TestCompileRangesSkipsOrNotNor(t *testing.T) {
	f := Or(Eq("a", 1), Eq("a", 2))
	ranges := CompileRanges(f)
	assert.Empty(t, ranges)
}

func TestCompileRangesNestedAndUnderOrNotCollected(t *testing.T) {
	f := Or(And(Eq("a", 1)), Eq("b", 2))
	ranges := CompileRanges(f)
	assert.Empty(t, ranges)
}

func TestCompileRangesDetectsUnsatisfiable(t *testing.T) {
	f := And(Gt("x", 10), Lt("x", 5))
	ranges := CompileRanges(f)
	assert.True(t, ranges["x"].Unsatisfiable)
}

func TestCompileRangesIgnoresNonRangeOps(t *testing.T) {
	f := And(Cond("x", OpIn, []any{1, 2}), Gt("x", 0))
	ranges := CompileRanges(f)
	r := ranges["x"]
	require.NotNil(t, r)
	assert.Equal(t, 0, r.Min)
	assert.False(t, r.MinInclusive)
	assert.Nil(t, r.Max)
}

func TestRangeOverlapsBasic(t *testing.T) {
	ranges := CompileRanges(And(Gte("v", 10), Lte("v", 20)))
	r := ranges["v"]

	assert.True(t, r.Overlaps(5, 15))   // file spans into range
	assert.True(t, r.Overlaps(10, 20))  // exact match
	assert.False(t, r.Overlaps(21, 30)) // entirely above
	assert.False(t, r.Overlaps(0, 9))   // entirely below
}

func TestRangeOverlapsExclusiveBoundary(t *testing.T) {
	ranges := CompileRanges(Gt("v", 10))
	r := ranges["v"]
	assert.False(t, r.Overlaps(0, 10)) // file max equals exclusive bound
	assert.True(t, r.Overlaps(0, 11))
}

func TestRangeOverlapsUnsatisfiableAlwaysSkips(t *testing.T) {
	ranges := CompileRanges(And(Gt("x", 10), Lt("x", 5)))
	r := ranges["x"]
	assert.False(t, r.Overlaps(0, 100))
}

func TestCompileRangesInCollectsValues(t *testing.T) {
	ranges := CompileRanges(Cond("region", OpIn, []any{"east", "west"}))
	r := ranges["region"]
	require.NotNil(t, r)
	assert.ElementsMatch(t, []any{"east", "west"}, r.In)
}

func TestCompileRangesIntersectsMultipleIn(t *testing.T) {
	f := And(Cond("x", OpIn, []any{1, 2, 3}), Cond("x", OpIn, []any{2, 3, 4}))
	ranges := CompileRanges(f)
	r := ranges["x"]
	require.NotNil(t, r)
	assert.ElementsMatch(t, []any{2, 3}, r.In)
}

func TestCompileRangesEmptyInIntersectionIsUnsatisfiable(t *testing.T) {
	f := And(Cond("x", OpIn, []any{1}), Cond("x", OpIn, []any{2}))
	ranges := CompileRanges(f)
	assert.True(t, ranges["x"].Unsatisfiable)
}

func TestRangeOverlapsInSkipsFileWhenEveryValueOutsideBounds(t *testing.T) {
	ranges := CompileRanges(Cond("id", OpIn, []any{100, 200}))
	r := ranges["id"]
	assert.False(t, r.Overlaps(0, 10))
	assert.True(t, r.Overlaps(0, 150))
	assert.True(t, r.Overlaps(100, 100))
}

func TestRangeOverlapsUnboundedSide(t *testing.T) {
	ranges := CompileRanges(Gte("v", 10))
	r := ranges["v"]
	assert.True(t, r.Overlaps(0, 1000))
	assert.False(t, r.Overlaps(0, 9))
}
