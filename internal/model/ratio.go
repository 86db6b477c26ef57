package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Ratio is a float64 that survives JSON when it is infinite or NaN.
// Finite values encode as numbers; +Inf, -Inf and NaN as "inf", "-inf" and "nan".
type Ratio float64

// Float returns the underlying value.
func (r Ratio) Float() float64 { return float64(r) }

// MarshalJSON implements json.Marshaler.
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsNaN(f):
		return []byte(`"nan"`), nil
	case math.IsInf(f, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-inf"`), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "nan":
			*r = Ratio(math.NaN())
		case "inf":
			*r = Ratio(math.Inf(1))
		case "-inf":
			*r = Ratio(math.Inf(-1))
		default:
			return fmt.Errorf("invalid ratio %q", s)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
