package order_test

import (
	"github.com/noah-isme/backend-blinds/internal/catalog"
	"github.com/noah-isme/backend-blinds/internal/loyalty"
)

func sampleProduct() catalog.Product {
	return catalog.Product{ID: "roller-shade", Name: "Roller Shade", Fabrics: []string{"WHITE01"}}
}

func defaultRates() loyalty.Rates {
	return loyalty.DefaultRates()
}
