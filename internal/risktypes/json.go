package risktypes

import (
	"encoding/json"
	"math"
)

// PositiveInfinity is the sentinel used for an unset trailing extreme
// (trailing_low starts at +Inf until the first favourable tick).
var PositiveInfinity = math.Inf(1)

func isPosInf(v float64) bool {
	return math.IsInf(v, 1)
}

func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
