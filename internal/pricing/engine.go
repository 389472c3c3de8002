// Package pricing turns raw blind measurements into a manufacturing
// specification and price, and aggregates priced lines into cart totals.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-blinds/internal/numeric"
)

// ErrInvalidMeasurement is returned for non-positive or out-of-bounds
// dimensions, unknown mount types and negative surcharges.
var ErrInvalidMeasurement = errors.New("invalid measurement")

// MountType selects where the blind is fitted relative to the window frame.
type MountType string

const (
	MountInside  MountType = "inside"
	MountOutside MountType = "outside"
)

// Valid reports whether m is a known mount type.
func (m MountType) Valid() bool {
	return m == MountInside || m == MountOutside
}

// ParseMountType normalises user input into a MountType.
func ParseMountType(raw string) (MountType, error) {
	m := MountType(strings.ToLower(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: mount type must be inside or outside", ErrInvalidMeasurement)
	}
	return m, nil
}

// Manufacturing constants applied to every line regardless of product.
var (
	insideWidthDeductionCm = decimal.RequireFromString("0.3")
	heightAllowanceCm      = decimal.RequireFromString("5.0")
	sqCmPerSqm             = decimal.NewFromInt(10000)
)

// MeasurementInput is what the customer typed in, in inches.
type MeasurementInput struct {
	WidthInch  float64   `json:"widthInch"`
	HeightInch float64   `json:"heightInch"`
	MountType  MountType `json:"mountType"`
}

// Config holds the rates used for one calculation.
type Config struct {
	PricePerSquareInch    float64
	InchToCm              float64
	MinimumBilledAreaSqIn float64
}

// DefaultConfig returns the storefront's standard rates.
func DefaultConfig() Config {
	return Config{
		PricePerSquareInch:    0.07,
		InchToCm:              2.54,
		MinimumBilledAreaSqIn: 400,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.PricePerSquareInch <= 0 {
		c.PricePerSquareInch = def.PricePerSquareInch
	}
	if c.InchToCm <= 0 {
		c.InchToCm = def.InchToCm
	}
	if c.MinimumBilledAreaSqIn < 0 {
		c.MinimumBilledAreaSqIn = def.MinimumBilledAreaSqIn
	}
	return c
}

// LineSpecification is the priced, manufacturable description of one blind.
// The same record feeds the cart, checkout, the fulfillment sheet and CSV
// export, so field names and rounding are part of the external contract.
type LineSpecification struct {
	WidthInch            float64   `json:"widthInch"`
	HeightInch           float64   `json:"heightInch"`
	MountType            MountType `json:"mountType"`
	FabricCode           string    `json:"fabricCode"`
	Name                 string    `json:"name,omitempty"`
	Location             string    `json:"location,omitempty"`
	WidthCm              float64   `json:"widthCm"`
	HeightCm             float64   `json:"heightCm"`
	FinalWidthCm         float64   `json:"finalWidthCm"`
	FinalHeightCm        float64   `json:"finalHeightCm"`
	ActualAreaSqIn       float64   `json:"actualAreaSqIn"`
	BilledAreaSqIn       float64   `json:"billedAreaSqIn"`
	BasePrice            float64   `json:"basePrice"`
	TotalSqm             float64   `json:"totalSqm"`
	MotorSurcharge       float64   `json:"motorSurcharge"`
	TotalPrice           float64   `json:"totalPrice"`
	IsMinimumAreaApplied bool      `json:"isMinimumAreaApplied"`
}

// ComputeLineSpecification converts a measurement into cm dimensions, applies
// the mount deduction and height allowance, bills at least the minimum area and
// adds the pre-summed motor surcharge. It has no side effects.
func ComputeLineSpecification(in MeasurementInput, fabricCode string, motorSurcharge float64, cfg Config) (LineSpecification, error) {
	if err := checkMeasurement(in); err != nil {
		return LineSpecification{}, err
	}
	if !finite(motorSurcharge) || motorSurcharge < 0 {
		return LineSpecification{}, fmt.Errorf("%w: motor surcharge must not be negative", ErrInvalidMeasurement)
	}
	cfg = cfg.normalized()

	width := numeric.Dec(in.WidthInch)
	height := numeric.Dec(in.HeightInch)
	inchToCm := numeric.Dec(cfg.InchToCm)

	widthCm := numeric.Round4(width.Mul(inchToCm))
	heightCm := numeric.Round4(height.Mul(inchToCm))
	finalWidthCm := widthCm
	if in.MountType == MountInside {
		finalWidthCm = widthCm.Sub(insideWidthDeductionCm)
	}
	finalHeightCm := heightCm.Add(heightAllowanceCm)

	actual := width.Mul(height)
	minimum := numeric.Dec(cfg.MinimumBilledAreaSqIn)
	billed := numeric.Max(actual, minimum)
	basePrice := numeric.Round2(billed.Mul(numeric.Dec(cfg.PricePerSquareInch)))
	totalSqm := numeric.Round12(finalWidthCm.Mul(finalHeightCm).Div(sqCmPerSqm))
	surcharge := numeric.Dec(motorSurcharge)
	total := numeric.Round2(basePrice.Add(surcharge))

	return LineSpecification{
		WidthInch:            in.WidthInch,
		HeightInch:           in.HeightInch,
		MountType:            in.MountType,
		FabricCode:           strings.TrimSpace(fabricCode),
		WidthCm:              numeric.Float(widthCm),
		HeightCm:             numeric.Float(heightCm),
		FinalWidthCm:         numeric.Float(finalWidthCm),
		FinalHeightCm:        numeric.Float(finalHeightCm),
		ActualAreaSqIn:       numeric.Float(actual),
		BilledAreaSqIn:       numeric.Float(billed),
		BasePrice:            numeric.Float(basePrice),
		TotalSqm:             numeric.Float(totalSqm),
		MotorSurcharge:       numeric.Float(surcharge),
		TotalPrice:           numeric.Float(total),
		IsMinimumAreaApplied: actual.LessThan(minimum),
	}, nil
}

func checkMeasurement(in MeasurementInput) error {
	if !finite(in.WidthInch) || in.WidthInch <= 0 {
		return fmt.Errorf("%w: width must be greater than zero", ErrInvalidMeasurement)
	}
	if !finite(in.HeightInch) || in.HeightInch <= 0 {
		return fmt.Errorf("%w: height must be greater than zero", ErrInvalidMeasurement)
	}
	if !in.MountType.Valid() {
		return fmt.Errorf("%w: mount type must be inside or outside", ErrInvalidMeasurement)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
