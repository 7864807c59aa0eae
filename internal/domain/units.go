package domain

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Decimals is the scale of USD values, minted debt and health factors.
const Decimals = 18

// FormatUnits renders a fixed-point value with the given number of decimals,
// e.g. FormatUnits(1500000000000000000, 18) == "1.5".
func FormatUnits(v *uint256.Int, decimals int32) string {
	if v == nil {
		return "0"
	}

	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}

// ParseUnits converts a human readable amount into fixed-point base units.
// It rejects negative amounts and amounts with more fractional digits than
// decimals allows.
func ParseUnits(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "parse amount %q", s)
	}
	if d.IsNegative() {
		return nil, errors.Errorf("amount %q is negative", s)
	}

	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, errors.Errorf("amount %q has more than %d decimals", s, decimals)
	}

	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, errors.Errorf("amount %q overflows 256 bits", s)
	}

	return v, nil
}

// ParseBaseUnits parses an integer amount already expressed in base units.
func ParseBaseUnits(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errors.Wrapf(err, "parse base units %q", s)
	}

	return v, nil
}
