package fulfillment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-blinds/internal/common"
	"github.com/noah-isme/backend-blinds/internal/order"
)

var exportHeader = []string{
	"orderId", "lineId", "productName", "name", "location", "fabricCode", "mountType", "quantity",
	"widthInch", "heightInch", "widthCm", "heightCm", "finalWidthCm", "finalHeightCm",
	"actualAreaSqIn", "billedAreaSqIn", "isMinimumAreaApplied",
	"basePrice", "totalSqm", "motorSurcharge", "totalPrice", "lineTotal",
}

// WriteCSV writes one row per order line. Numbers are printed with the
// shortest exact representation of the stored, already rounded values so the
// export matches the cart and the sheet digit for digit.
func WriteCSV(w io.Writer, o order.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, l := range o.Lines {
		s := l.Specification
		row := []string{
			o.ID, l.ID, l.ProductName, s.Name, s.Location, s.FabricCode, string(s.MountType), strconv.Itoa(l.Quantity),
			num(s.WidthInch), num(s.HeightInch), num(s.WidthCm), num(s.HeightCm), num(s.FinalWidthCm), num(s.FinalHeightCm),
			num(s.ActualAreaSqIn), num(s.BilledAreaSqIn), strconv.FormatBool(s.IsMinimumAreaApplied),
			num(s.BasePrice), num(s.TotalSqm), num(s.MotorSurcharge), num(s.TotalPrice), num(l.LineTotal),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// OrderSource loads orders for export.
type OrderSource interface {
	Get(ctx context.Context, id string) (order.Order, error)
}

// ExportHandler serves the per-order CSV download.
type ExportHandler struct {
	Orders OrderSource
}

func (h *ExportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="order-%s.csv"`, o.ID))
	w.WriteHeader(http.StatusOK)
	_ = WriteCSV(w, o)
}
