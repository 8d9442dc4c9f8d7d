package ring

import (
	"fmt"
	"net/url"
	"strconv"
)

type Bound struct {
	Value uint64
	Set   bool
}

func At(v uint64) Bound {
	return Bound{Value: v, Set: true}
}

// HashRange selects keys by the hash of the key. Lower is always exclusive.
// With both bounds set the range follows the ring and wraps around zero;
// Lower == Upper selects the whole ring.
type HashRange struct {
	Lower          Bound
	Upper          Bound
	InclusiveUpper bool
}

// Everything matches every key
var Everything = HashRange{}

// Span returns the ring range (lower, upper]
func Span(lower, upper uint64) HashRange {
	return HashRange{
		Lower:          At(lower),
		Upper:          At(upper),
		InclusiveUpper: true,
	}
}

func (r HashRange) Contains(h uint64) bool {
	switch {
	case r.Lower.Set && r.Upper.Set:
		return Between(r.Lower.Value, h, r.Upper.Value, r.InclusiveUpper)
	case r.Upper.Set:
		if r.InclusiveUpper {
			return h <= r.Upper.Value
		}
		return h < r.Upper.Value
	case r.Lower.Set:
		return h > r.Lower.Value
	default:
		return true
	}
}

func (r HashRange) IsEverything() bool {
	return !r.Lower.Set && !r.Upper.Set
}

func (r HashRange) String() string {
	lower, upper := "-inf", "+inf"
	if r.Lower.Set {
		lower = strconv.FormatUint(r.Lower.Value, 10)
	}
	if r.Upper.Set {
		upper = strconv.FormatUint(r.Upper.Value, 10)
	}
	closing := ")"
	if r.InclusiveUpper {
		closing = "]"
	}
	return "(" + lower + ", " + upper + closing
}

// Query encodes the range as url query parameters
func (r HashRange) Query() url.Values {
	q := url.Values{}
	if r.Lower.Set {
		q.Set("lower", strconv.FormatUint(r.Lower.Value, 10))
	}
	if r.Upper.Set {
		q.Set("upper", strconv.FormatUint(r.Upper.Value, 10))
	}
	if r.Upper.Set && !r.InclusiveUpper {
		q.Set("exclusive", "1")
	}
	return q
}

// ParseHashRange is the inverse of Query. The upper bound is inclusive unless
// exclusive is set.
func ParseHashRange(q url.Values) (HashRange, error) {
	r := HashRange{InclusiveUpper: true}
	if v := q.Get("lower"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return r, fmt.Errorf("%w: lower bound %q", ErrInvalidRange, v)
		}
		r.Lower = At(n)
	}
	if v := q.Get("upper"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return r, fmt.Errorf("%w: upper bound %q", ErrInvalidRange, v)
		}
		r.Upper = At(n)
	}
	if q.Get("exclusive") != "" {
		r.InclusiveUpper = false
	}
	return r, nil
}
