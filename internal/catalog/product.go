package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-blinds/internal/numeric"
	"github.com/noah-isme/backend-blinds/internal/pricing"
)

var (
	// ErrNotFound indicates the product does not exist or is inactive.
	ErrNotFound = errors.New("product not found")
	// ErrUnknownOption indicates a motor option code the product does not offer.
	ErrUnknownOption = errors.New("unknown product option")
)

// MotorOption is a selectable motorisation upgrade with a flat surcharge.
// Code "manual" or an empty code means no motor.
type MotorOption struct {
	Code      string  `json:"code"`
	Label     string  `json:"label"`
	Surcharge float64 `json:"surcharge"`
}

// Product is the configurable blind as seen by the pricing path.
type Product struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Fabrics      []string       `json:"fabrics"`
	Bounds       pricing.Bounds `json:"bounds"`
	MotorOptions []MotorOption  `json:"motorOptions"`
	// RemoteSurcharge is added when the shopper asks for a remote with a motor.
	RemoteSurcharge float64 `json:"remoteSurcharge"`
}

// Options are the shopper's selections for one configured blind.
type Options struct {
	FabricCode string `json:"fabricCode" validate:"required"`
	Motor      string `json:"motor,omitempty"`
	Remote     bool   `json:"remote,omitempty"`
	Name       string `json:"name,omitempty" validate:"max=80"`
	Location   string `json:"location,omitempty" validate:"max=80"`
}

// Surcharge pre-sums the add-ons for the selected options.
func (p Product) Surcharge(opts Options) (float64, error) {
	code := strings.ToLower(strings.TrimSpace(opts.Motor))
	if code == "" || code == "manual" {
		if opts.Remote {
			return 0, fmt.Errorf("%w: remote requires a motor", ErrUnknownOption)
		}
		return 0, nil
	}
	for _, m := range p.MotorOptions {
		if strings.EqualFold(m.Code, code) {
			total := numeric.Dec(m.Surcharge)
			if opts.Remote {
				total = total.Add(numeric.Dec(p.RemoteSurcharge))
			}
			return numeric.Float(numeric.Round2(total)), nil
		}
	}
	return 0, fmt.Errorf("%w: motor %q", ErrUnknownOption, opts.Motor)
}

// CheckFabric verifies the fabric code is offered. Products with no fabric
// list accept any code.
func (p Product) CheckFabric(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: fabric is required", ErrUnknownOption)
	}
	if len(p.Fabrics) == 0 {
		return nil
	}
	for _, f := range p.Fabrics {
		if strings.EqualFold(f, code) {
			return nil
		}
	}
	return fmt.Errorf("%w: fabric %q", ErrUnknownOption, code)
}
