package worker

// receipt_worker.go
// Renders the PDF receipt of a synced sale and mails it to the customer.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"clawpos/internal/infra"
	"clawpos/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ReceiptJobPayload is the job envelope sent to QueueReceipt.
type ReceiptJobPayload struct {
	SaleID  string `json:"sale_id"`
	ToEmail string `json:"to_email"`
}

// ReceiptMailer is the subset of infra.Mailer the receipt worker needs.
type ReceiptMailer interface {
	SendReceipt(to, subject, body, fileName string, pdf []byte) error
}

// SaleLoader loads a sale with items and cashier preloaded.
type SaleLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
}

type ReceiptWorker struct {
	mailer    ReceiptMailer
	sales     SaleLoader
	storeName string
}

func NewReceiptWorker(mailer ReceiptMailer, sales SaleLoader, storeName string) *ReceiptWorker {
	return &ReceiptWorker{mailer: mailer, sales: sales, storeName: storeName}
}

// Process implements Handler.
func (w *ReceiptWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var p ReceiptJobPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", ErrDropJob, err)
	}
	if p.ToEmail == "" {
		return fmt.Errorf("%w: empty to_email", ErrDropJob)
	}
	id, err := uuid.Parse(p.SaleID)
	if err != nil {
		return fmt.Errorf("%w: bad sale id %q", ErrDropJob, p.SaleID)
	}

	sale, err := w.sales.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: sale %s not found", ErrDropJob, p.SaleID)
	}
	if err != nil {
		return err
	}

	pdf, err := infra.RenderReceiptPDF(sale, w.storeName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDropJob, err)
	}

	subject := fmt.Sprintf("%s receipt %s", w.storeName, sale.SaleNumber)
	body := fmt.Sprintf("Thanks for visiting %s.\nYour receipt for %s (total %s) is attached.\n",
		w.storeName, sale.SaleNumber, sale.Total.StringFixed(2))

	err = w.mailer.SendReceipt(p.ToEmail, subject, body, sale.SaleNumber+".pdf", pdf)
	if errors.Is(err, infra.ErrMailerDisabled) {
		return fmt.Errorf("%w: %v", ErrDropJob, err)
	}
	if err != nil {
		return err
	}
	log.Info().Str("to", p.ToEmail).Str("sale", sale.SaleNumber).Msg("receipt_worker: receipt sent")
	return nil
}
