package pricing

import (
	"fmt"
	"strconv"
	"strings"
)

// Bounds are the per-product dimension limits in inches. A zero maximum means
// the product has no upper limit on that axis.
type Bounds struct {
	MinWidth  float64 `json:"minWidth"`
	MaxWidth  float64 `json:"maxWidth"`
	MinHeight float64 `json:"minHeight"`
	MaxHeight float64 `json:"maxHeight"`
}

// ValidateBounds gates add-to-cart: both dimensions must be present and inside
// the product's range.
func ValidateBounds(in MeasurementInput, b Bounds) error {
	if in.WidthInch == 0 || in.HeightInch == 0 {
		return fmt.Errorf("%w: please enter both width and height", ErrInvalidMeasurement)
	}
	if err := checkMeasurement(in); err != nil {
		return err
	}
	if in.WidthInch < b.MinWidth || (b.MaxWidth > 0 && in.WidthInch > b.MaxWidth) {
		return fmt.Errorf("%w: width must be between %s and %s inches", ErrInvalidMeasurement, formatInches(b.MinWidth), formatMax(b.MaxWidth))
	}
	if in.HeightInch < b.MinHeight || (b.MaxHeight > 0 && in.HeightInch > b.MaxHeight) {
		return fmt.Errorf("%w: height must be between %s and %s inches", ErrInvalidMeasurement, formatInches(b.MinHeight), formatMax(b.MaxHeight))
	}
	return nil
}

// Inches composes a measurement from a whole number and a sixteenths addend.
func Inches(whole, sixteenths int) (float64, error) {
	if whole < 0 || sixteenths < 0 || sixteenths > 15 {
		return 0, fmt.Errorf("%w: fraction must be between 0 and 15/16", ErrInvalidMeasurement)
	}
	return float64(whole) + float64(sixteenths)/16, nil
}

// ParseFraction reads the fraction picker values ("0", "1/16", "1/8", "3/4"...)
// into sixteenths.
func ParseFraction(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	num, den, ok := strings.Cut(raw, "/")
	if !ok {
		return 0, fmt.Errorf("%w: unsupported fraction %q", ErrInvalidMeasurement, raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0, fmt.Errorf("%w: unsupported fraction %q", ErrInvalidMeasurement, raw)
	}
	dd, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil || dd <= 0 || 16%dd != 0 {
		return 0, fmt.Errorf("%w: unsupported fraction %q", ErrInvalidMeasurement, raw)
	}
	sixteenths := n * (16 / dd)
	if n < 0 || sixteenths > 15 {
		return 0, fmt.Errorf("%w: unsupported fraction %q", ErrInvalidMeasurement, raw)
	}
	return sixteenths, nil
}

func formatInches(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMax(v float64) string {
	if v <= 0 {
		return "any"
	}
	return formatInches(v)
}
