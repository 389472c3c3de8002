package pricing

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateBounds(t *testing.T) {
	b := Bounds{MinWidth: 12, MaxWidth: 96, MinHeight: 12, MaxHeight: 120}
	cases := []struct {
		name    string
		in      MeasurementInput
		wantErr string
	}{
		{"ok", MeasurementInput{WidthInch: 36, HeightInch: 48, MountType: MountInside}, ""},
		{"missing height", MeasurementInput{WidthInch: 36, MountType: MountInside}, "please enter both width and height"},
		{"too narrow", MeasurementInput{WidthInch: 10, HeightInch: 48, MountType: MountInside}, "width must be between 12 and 96 inches"},
		{"too tall", MeasurementInput{WidthInch: 36, HeightInch: 121, MountType: MountOutside}, "height must be between 12 and 120 inches"},
		{"bad mount", MeasurementInput{WidthInch: 36, HeightInch: 48, MountType: "x"}, "mount type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateBounds(tc.in, b)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidMeasurement) {
				t.Fatalf("expected ErrInvalidMeasurement, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected message containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestValidateBoundsUnboundedMax(t *testing.T) {
	if err := ValidateBounds(MeasurementInput{WidthInch: 500, HeightInch: 500, MountType: MountOutside}, Bounds{MinWidth: 1, MinHeight: 1}); err != nil {
		t.Fatalf("expected no error for unbounded product, got %v", err)
	}
}

func TestInchesAndFractions(t *testing.T) {
	sixteenths, err := ParseFraction("3/8")
	if err != nil || sixteenths != 6 {
		t.Fatalf("expected 6 sixteenths, got %d err=%v", sixteenths, err)
	}
	v, err := Inches(35, sixteenths)
	if err != nil || v != 35.375 {
		t.Fatalf("expected 35.375, got %v err=%v", v, err)
	}
	for _, raw := range []string{"1/3", "16/16", "abc", "-1/16"} {
		if _, err := ParseFraction(raw); !errors.Is(err, ErrInvalidMeasurement) {
			t.Fatalf("fraction %q: expected ErrInvalidMeasurement, got %v", raw, err)
		}
	}
	if _, err := Inches(3, 16); !errors.Is(err, ErrInvalidMeasurement) {
		t.Fatalf("expected ErrInvalidMeasurement for 16 sixteenths, got %v", err)
	}
}
