package protocol

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// maxDenominator bounds the denominator of any fraction accepted from the
// wire (framerate, AWB gains), mirroring the original implementation's
// limitedfrac which calls Fraction.limit_denominator(65536).
const maxDenominator = 65536

// ParseFraction parses a bare integer ("30"), a decimal ("1.5") or a
// "num/denom" fraction ("15/2") into a rational number limited to
// maxDenominator.
func ParseFraction(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty fraction")
	}

	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		num, err := strconv.ParseInt(s[:idx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fraction numerator %q: %w", s, err)
		}

		denom, err := strconv.ParseInt(s[idx+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fraction denominator %q: %w", s, err)
		}

		if denom == 0 {
			return nil, fmt.Errorf("zero denominator in fraction %q", s)
		}

		return limitDenominator(big.NewRat(num, denom)), nil
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid fraction %q", s)
	}

	return limitDenominator(r), nil
}

// FormatFraction renders a rational as "n" when it's a whole number, or
// "num/denom" otherwise.
func FormatFraction(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}

	return fmt.Sprintf("%s/%s", r.Num().String(), r.Denom().String())
}

func limitDenominator(r *big.Rat) *big.Rat {
	if r.Denom().IsInt64() && r.Denom().Int64() <= maxDenominator {
		return r
	}

	// Stern-Brocot search for the closest fraction with a bounded
	// denominator, the same algorithm Python's Fraction.limit_denominator
	// uses.
	p0, q0, p1, q1 := int64(0), int64(1), int64(1), int64(0)
	num, den := r.Num().Int64(), r.Denom().Int64()
	n, d := num, den

	for {
		a := n / d
		q2 := q0 + a*q1
		if q2 > maxDenominator {
			break
		}
		p0, q0, p1, q1 = p1, q1, p0+a*p1, q2
		n, d = d, n-a*d
		if d == 0 {
			break
		}
	}

	k := (maxDenominator - q0) / q1
	bound1 := big.NewRat(p0+k*p1, q0+k*q1)
	bound2 := big.NewRat(p1, q1)

	diff1 := new(big.Rat).Sub(r, bound1)
	diff1.Abs(diff1)
	diff2 := new(big.Rat).Sub(r, bound2)
	diff2.Abs(diff2)

	if diff2.Cmp(diff1) <= 0 {
		return bound2
	}

	return bound1
}

// ParseTimestamp parses a UNIX timestamp with an optional fractional part,
// e.g. "1400803122.359911".
func ParseTimestamp(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}

	return v, nil
}

// FormatTimestamp renders a UNIX timestamp with a fractional part.
func FormatTimestamp(t float64) string {
	return strconv.FormatFloat(t, 'f', 6, 64)
}

// ParseBool parses the wire boolean convention: "0" is false, any other
// digit string is true.
func ParseBool(s string) (bool, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q: %w", s, err)
	}

	return n != 0, nil
}

// FormatBool renders the wire boolean convention.
func FormatBool(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
