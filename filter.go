package cairn

import "reflect"

// Filter is a flat conjunction of per-field conditions. Each entry is
// either a literal (equality) or a map of comparison operators ($eq,
// $gt, $gte, $lt, $lte) to bounds. A nil Filter matches every document.
type Filter map[string]any

func matchesFilter(doc map[string]any, filter Filter) bool {
	for field, cond := range filter {
		val, present := doc[field]
		switch c := cond.(type) {
		case map[string]any:
			for op, bound := range c {
				if !evalOp(op, val, present, bound) {
					return false
				}
			}
		default:
			if !present || !valuesEqual(val, cond) {
				return false
			}
		}
	}
	return true
}

// evalOp evaluates one comparison operator. Per the filter's design, an
// unrecognized operator is ignored rather than treated as a failure.
func evalOp(op string, val any, present bool, bound any) bool {
	switch op {
	case "$eq":
		return present && valuesEqual(val, bound)
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false
		}
		return compare(op, val, bound)
	default:
		return true
	}
}

func compare(op string, val, bound any) bool {
	if vn, ok := val.(float64); ok {
		if bn, ok := bound.(float64); ok {
			return compareOrdered(op, vn, bn)
		}
	}
	if vs, ok := val.(string); ok {
		if bs, ok := bound.(string); ok {
			return compareOrdered(op, vs, bs)
		}
	}
	return false
}

func compareOrdered[T string | float64](op string, v, b T) bool {
	switch op {
	case "$gt":
		return v > b
	case "$gte":
		return v >= b
	case "$lt":
		return v < b
	case "$lte":
		return v <= b
	}
	return false
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
