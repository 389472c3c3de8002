package fulfillment_test

import (
	"time"

	"github.com/noah-isme/backend-blinds/internal/order"
	"github.com/noah-isme/backend-blinds/internal/pricing"
)

func sampleOrder(id string) order.Order {
	placed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	return order.Order{
		ID:         id,
		UserID:     "user-1",
		CartID:     "cart-1",
		Status:     order.StatusPending,
		CouponCode: "WELCOME10",
		Customer:   order.Customer{Name: "Ada Lovelace", Email: "ada@example.com", City: "Austin"},
		Lines: []order.Line{{
			ID:          "line-1",
			ProductID:   "roller-shade",
			ProductName: "Roller Shade",
			Quantity:    2,
			UnitPrice:   325,
			LineTotal:   650,
			Specification: pricing.LineSpecification{
				WidthInch:      36,
				HeightInch:     48.5,
				MountType:      pricing.MountInside,
				FabricCode:     "WHITE01",
				Name:           "Kitchen",
				WidthCm:        91.44,
				HeightCm:       123.19,
				FinalWidthCm:   90.84,
				FinalHeightCm:  133.19,
				ActualAreaSqIn: 1746,
				BilledAreaSqIn: 1746,
				BasePrice:      250,
				TotalSqm:       1.2099,
				MotorSurcharge: 75,
				TotalPrice:     325,
			},
		}},
		Totals: pricing.CheckoutTotals{
			Totals: pricing.Totals{
				Subtotal: 650, VolumeDiscount: 130, VolumeDiscountRate: 0.2,
				CouponCode: "WELCOME10", CouponDiscount: 52, DiscountedSubtotal: 468,
				Tax: 38.61, Total: 506.61,
			},
			PointsUsed:     10,
			PointsDiscount: 10,
			PointsEarned:   49.6,
			FinalTotal:     496.61,
		},
		CreatedAt: placed,
		UpdatedAt: placed,
	}
}
