package filter

// Range is a closed-or-open interval predicate compiled from a Filter's
// leaf comparisons on one field, for comparison against a file's recorded
// min/max statistics. A nil Min or Max means unbounded on that side.
type Range struct {
	Min, Max      any
	MinInclusive  bool
	MaxInclusive  bool
	In            []any // from $in: a file can be skipped only if every entry here falls outside [fileMin, fileMax]
	Unsatisfiable bool   // set when two leaves on the same field conflict, e.g. $gt 10 and $lt 5
}

// CompileRanges walks f and returns, per field, the tightest Range implied
// by its top-level $and of leaf comparisons. Only fields that appear under
// a conjunction reachable without crossing an $or/$not/$nor are compiled;
// anything else is left out of the map, meaning "no prunable range" — only
// provably-safe conjunctions ever trigger pushdown.
func CompileRanges(f Filter) map[string]*Range {
	ranges := make(map[string]*Range)
	collectConjunctiveLeaves(f, ranges)
	return ranges
}

func collectConjunctiveLeaves(f Filter, ranges map[string]*Range) {
	switch {
	case f.isLeaf():
		applyLeaf(f, ranges)
	case f.And != nil:
		for _, sub := range f.And {
			collectConjunctiveLeaves(sub, ranges)
		}
	default:
		// $or, $not, $nor do not narrow a range safely at this level.
	}
}

func applyLeaf(f Filter, ranges map[string]*Range) {
	r, ok := ranges[f.Field]
	if !ok {
		r = &Range{}
		ranges[f.Field] = r
	}
	switch f.Op {
	case OpEq:
		narrowMin(r, f.Value, true)
		narrowMax(r, f.Value, true)
	case OpGt:
		narrowMin(r, f.Value, false)
	case OpGte:
		narrowMin(r, f.Value, true)
	case OpLt:
		narrowMax(r, f.Value, false)
	case OpLte:
		narrowMax(r, f.Value, true)
	case OpIn:
		if values, ok := f.Value.([]any); ok {
			if r.In == nil {
				r.In = values
			} else {
				r.In = intersectValues(r.In, values)
			}
		}
	default:
		// $ne/$nin/$exists/$regex do not contribute a contiguous range.
	}
	if r.Min != nil && r.Max != nil && compare(r.Min, r.Max) > 0 {
		r.Unsatisfiable = true
	}
	if r.In != nil && len(r.In) == 0 {
		r.Unsatisfiable = true
	}
}

func intersectValues(a, b []any) []any {
	var out []any
	for _, av := range a {
		for _, bv := range b {
			if compare(av, bv) == 0 {
				out = append(out, av)
				break
			}
		}
	}
	return out
}

func narrowMin(r *Range, v any, inclusive bool) {
	if r.Min == nil || compare(v, r.Min) > 0 || (compare(v, r.Min) == 0 && !inclusive) {
		r.Min = v
		r.MinInclusive = inclusive
	}
}

func narrowMax(r *Range, v any, inclusive bool) {
	if r.Max == nil || compare(v, r.Max) < 0 || (compare(v, r.Max) == 0 && !inclusive) {
		r.Max = v
		r.MaxInclusive = inclusive
	}
}

// Overlaps reports whether a file whose recorded [fileMin, fileMax] for a
// column is given could contain any row satisfying r, applying the six
// comparison rules: a file can be skipped only when its range provably
// cannot intersect r.
func (r *Range) Overlaps(fileMin, fileMax any) bool {
	if r.Unsatisfiable {
		return false
	}
	if r.Min != nil {
		cmp := compare(fileMax, r.Min)
		if cmp < 0 || (cmp == 0 && !r.MinInclusive) {
			return false
		}
	}
	if r.Max != nil {
		cmp := compare(fileMin, r.Max)
		if cmp > 0 || (cmp == 0 && !r.MaxInclusive) {
			return false
		}
	}
	if r.In != nil {
		none := true
		for _, v := range r.In {
			if compare(fileMin, v) <= 0 && compare(fileMax, v) >= 0 {
				none = false
				break
			}
		}
		if none {
			return false
		}
	}
	return true
}
