package money

import "fmt"

// Rates are expressed in basis points to keep VAT arithmetic integral:
// 1900 basis points = 19%.
const basisPointsDenominator = 10000

// ValidateRate checks that a VAT rate in basis points lies in [0, 100%).
func ValidateRate(rateBP int64) error {
	if rateBP < 0 || rateBP >= basisPointsDenominator {
		return fmt.Errorf("vat rate must be in [0, 10000) basis points, got %d", rateBP)
	}
	return nil
}

// NetToGross computes net * (1 + rate) with a single rounding.
func NetToGross(net Money, rateBP int64) (Money, error) {
	if err := ValidateRate(rateBP); err != nil {
		return Money{}, err
	}
	return net.Scale(basisPointsDenominator+rateBP, basisPointsDenominator)
}

// SplitGross decomposes a gross amount into net and VAT parts. Net is
// computed by dividing before rounding; VAT is derived as gross - net so
// that net + vat always reconstructs gross exactly.
func SplitGross(gross Money, rateBP int64) (net, vat Money, err error) {
	if err := ValidateRate(rateBP); err != nil {
		return Money{}, Money{}, err
	}
	net, err = gross.Scale(basisPointsDenominator, basisPointsDenominator+rateBP)
	if err != nil {
		return Money{}, Money{}, err
	}
	vat, err = gross.Sub(net)
	if err != nil {
		return Money{}, Money{}, err
	}
	return net, vat, nil
}
