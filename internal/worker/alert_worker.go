package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"clawpos/internal/infra"

	"github.com/rs/zerolog/log"
)

// LowStockAlertPayload is enqueued after a sale leaves a warehouse row at or
// below its minimum.
type LowStockAlertPayload struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	CurrentStock int    `json:"current_stock"`
	MinStock     int    `json:"min_stock"`
	SaleNumber   string `json:"sale_number"`
}

// TextMailer is the subset of infra.Mailer the alert worker needs.
type TextMailer interface {
	SendText(to, subject, body string) error
}

// AlertWorker mails low-stock alerts to the store manager.
type AlertWorker struct {
	mailer TextMailer
	to     string
}

func NewAlertWorker(mailer TextMailer, to string) *AlertWorker {
	return &AlertWorker{mailer: mailer, to: to}
}

// Process implements Handler.
func (w *AlertWorker) Process(_ context.Context, raw json.RawMessage) error {
	var p LowStockAlertPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", ErrDropJob, err)
	}
	if w.to == "" {
		log.Info().Str("product", p.ProductName).Int("stock", p.CurrentStock).Msg("alert_worker: low stock (no recipient configured)")
		return nil
	}

	subject := fmt.Sprintf("Low stock: %s (%d left)", p.ProductName, p.CurrentStock)
	body := fmt.Sprintf("Warehouse stock of %s dropped to %d (minimum %d) after sale %s.\nProduct ID: %s\n",
		p.ProductName, p.CurrentStock, p.MinStock, p.SaleNumber, p.ProductID)

	err := w.mailer.SendText(w.to, subject, body)
	if errors.Is(err, infra.ErrMailerDisabled) {
		return fmt.Errorf("%w: %v", ErrDropJob, err)
	}
	if err != nil {
		return err
	}
	log.Info().Str("product", p.ProductName).Msg("alert_worker: low stock alert sent")
	return nil
}
