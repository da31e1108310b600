package indexer

import (
	"fmt"
	"math/big"
)

// Decimal is the on-disk canonical representation of spec §4.7's
// fixed-point amounts: the "%.8f" string of a value carried with at
// least 8 fractional digits. No ecosystem decimal library appears
// anywhere in the retrieval pack, so arithmetic is done with
// math/big.Rat (exact rational arithmetic, no accumulated rounding
// across repeated incremental-mean updates) and only rendered to this
// string form at rest.
type Decimal string

// decimalScale is the power of ten backing the required 8 fractional
// digits.
var decimalScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(8), nil)

// ParseDecimal parses the canonical string form into an exact rational.
func ParseDecimal(d Decimal) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(string(d))
	if !ok {
		return nil, fmt.Errorf("indexer: malformed decimal %q", d)
	}
	return r, nil
}

// FormatDecimal renders r to the canonical "%.8f" form.
func FormatDecimal(r *big.Rat) Decimal {
	scaled := new(big.Int).Mul(new(big.Int).Abs(r.Num()), decimalScale)
	rem := new(big.Int)
	scaled.QuoRem(scaled, r.Denom(), rem)
	if rem.Lsh(rem, 1).Cmp(r.Denom()) >= 0 {
		scaled.Add(scaled, big.NewInt(1))
	}
	neg := r.Sign() < 0 && scaled.Sign() != 0
	s := scaled.String()
	for len(s) <= 8 {
		s = "0" + s
	}
	whole, frac := s[:len(s)-8], s[len(s)-8:]
	sign := ""
	if neg {
		sign = "-"
	}
	return Decimal(fmt.Sprintf("%s%s.%s", sign, whole, frac))
}

// MustDecimal parses n, panicking on malformed input; used only for
// literal test fixtures and zero-value construction.
func MustDecimal(n string) Decimal {
	r, err := ParseDecimal(Decimal(n))
	if err != nil {
		panic(err)
	}
	return FormatDecimal(r)
}

var zeroRat = new(big.Rat)

func ratOf(d Decimal) (*big.Rat, error) {
	if d == "" {
		return new(big.Rat).Set(zeroRat), nil
	}
	return ParseDecimal(d)
}
