package projector

import (
	"math"

	"github.com/r9s-ai/fieldproxy/pkg/jsonutil"
	"github.com/r9s-ai/fieldproxy/pkg/selector"
)

// applyLimit keeps the first n items of a list, n truncated toward zero.
// A negative n drops the last -n items instead. It is a no-op unless the
// modifier has a numeric value and v is a list.
func applyLimit(v any, m selector.Modifier) any {
	if !m.HasValue {
		return v
	}
	list, ok := Normalize(v).([]any)
	if !ok || !IsNumericList(list) {
		return v
	}
	f, ok := jsonutil.ParseFloat(m.Value)
	if !ok {
		return v
	}
	f = math.Trunc(f)
	if f < 0 {
		f += float64(len(list))
	}
	if f >= float64(len(list)) {
		return v
	}
	n := 0
	if f > 0 {
		n = int(f)
	}
	return list[:n:n]
}
