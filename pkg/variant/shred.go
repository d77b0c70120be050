package variant

// Shredded reconstructs a full variant value from a residual value (the
// variant column with shredded subfields removed) plus a map of the
// sibling typed columns that were extracted at write time. This only
// handles the common case of scalar top-level subfields; a shredded field
// whose stored value is itself an object or array is left to the caller,
// since the mapping from filter path to stats path is undefined for that
// case.
func Shredded(residual Value, shreddedFields map[string]Value) Value {
	if len(shreddedFields) == 0 {
		return residual
	}
	if residual.Kind != KindMapping {
		// Nothing to merge into; the whole value was shredded away.
		if len(shreddedFields) == 1 {
			for _, v := range shreddedFields {
				return v
			}
		}
		entries := make([]Entry, 0, len(shreddedFields))
		for k, v := range shreddedFields {
			entries = append(entries, Entry{Key: k, Value: v})
		}
		return Mapping(entries...)
	}

	merged := make([]Entry, 0, len(residual.mapping)+len(shreddedFields))
	seen := make(map[string]bool, len(shreddedFields))
	for _, e := range residual.mapping {
		if v, ok := shreddedFields[e.Key]; ok {
			merged = append(merged, Entry{Key: e.Key, Value: v})
			seen[e.Key] = true
			continue
		}
		merged = append(merged, e)
	}
	for k, v := range shreddedFields {
		if !seen[k] {
			merged = append(merged, Entry{Key: k, Value: v})
		}
	}
	return Mapping(merged...)
}
