package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"clawpos/internal/infra"
	"clawpos/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

type sentMail struct {
	to, subject, body, fileName string
	pdf                         []byte
}

type stubMailer struct {
	sent []sentMail
	err  error
}

func (m *stubMailer) SendText(to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *stubMailer) SendReceipt(to, subject, body, fileName string, pdf []byte) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body, fileName: fileName, pdf: pdf})
	return nil
}

type stubSales map[uuid.UUID]*model.Sale

func (s stubSales) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	if sale, ok := s[id]; ok {
		return sale, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// ── Alert worker ──────────────────────────────────────────────────────────────

func TestAlertWorker_SendsToConfiguredRecipient(t *testing.T) {
	m := &stubMailer{}
	w := NewAlertWorker(m, "manager@arcade.test")

	err := w.Process(context.Background(), mustJSON(t, LowStockAlertPayload{
		ProductName: "Pikachu Plush", CurrentStock: 3, MinStock: 5, SaleNumber: "SALE-000042",
	}))
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "manager@arcade.test", m.sent[0].to)
	assert.Contains(t, m.sent[0].subject, "Pikachu Plush")
	assert.Contains(t, m.sent[0].body, "SALE-000042")
}

func TestAlertWorker_NoRecipientIsNoop(t *testing.T) {
	m := &stubMailer{}
	err := NewAlertWorker(m, "").Process(context.Background(), mustJSON(t, LowStockAlertPayload{ProductName: "x"}))
	require.NoError(t, err)
	assert.Empty(t, m.sent)
}

func TestAlertWorker_DisabledMailerDropsJob(t *testing.T) {
	m := &stubMailer{err: infra.ErrMailerDisabled}
	err := NewAlertWorker(m, "a@b.test").Process(context.Background(), mustJSON(t, LowStockAlertPayload{}))
	assert.ErrorIs(t, err, ErrDropJob)
}

func TestAlertWorker_RelayFailureIsRetryable(t *testing.T) {
	m := &stubMailer{err: errors.New("connection refused")}
	err := NewAlertWorker(m, "a@b.test").Process(context.Background(), mustJSON(t, LowStockAlertPayload{}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDropJob)
}

func TestAlertWorker_BadPayload(t *testing.T) {
	err := NewAlertWorker(&stubMailer{}, "a@b.test").Process(context.Background(), json.RawMessage(`{`))
	assert.ErrorIs(t, err, ErrDropJob)
}

// ── Receipt worker ────────────────────────────────────────────────────────────

func TestReceiptWorker_AttachesPDF(t *testing.T) {
	saleID := uuid.New()
	product := &model.Product{ID: uuid.New(), Name: "Coin Bundle x10"}
	sales := stubSales{saleID: {
		ID:            saleID,
		SaleNumber:    "SALE-000007",
		PaymentMethod: model.PaymentCash,
		Total:         decimal.NewFromInt(20),
		SoldAt:        time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
		Items: []model.SaleItem{{
			ProductID: product.ID, Product: product, Quantity: 2,
			UnitPrice: decimal.NewFromInt(10), LineTotal: decimal.NewFromInt(20),
		}},
		Cashier: &model.User{Username: "cashier1"},
	}}
	m := &stubMailer{}
	w := NewReceiptWorker(m, sales, "Claw Arcade")

	err := w.Process(context.Background(), mustJSON(t, ReceiptJobPayload{SaleID: saleID.String(), ToEmail: "kid@example.test"}))
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "SALE-000007.pdf", m.sent[0].fileName)
	assert.True(t, len(m.sent[0].pdf) > 4)
	assert.Equal(t, "%PDF", string(m.sent[0].pdf[:4]))
}

func TestReceiptWorker_UnknownSaleDropped(t *testing.T) {
	w := NewReceiptWorker(&stubMailer{}, stubSales{}, "Claw Arcade")
	err := w.Process(context.Background(), mustJSON(t, ReceiptJobPayload{SaleID: uuid.NewString(), ToEmail: "a@b.test"}))
	assert.ErrorIs(t, err, ErrDropJob)
}

func TestReceiptWorker_EmptyRecipientDropped(t *testing.T) {
	w := NewReceiptWorker(&stubMailer{}, stubSales{}, "Claw Arcade")
	err := w.Process(context.Background(), mustJSON(t, ReceiptJobPayload{SaleID: uuid.NewString()}))
	assert.ErrorIs(t, err, ErrDropJob)
}

// ── Retry backoff ─────────────────────────────────────────────────────────────

func TestComputeRetryBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, computeRetryBackoff(0))
	assert.Equal(t, 30*time.Second, computeRetryBackoff(1))
	assert.Equal(t, time.Minute, computeRetryBackoff(2))
	assert.Equal(t, 4*time.Minute, computeRetryBackoff(4))
	assert.Equal(t, 30*time.Minute, computeRetryBackoff(20))
}

func TestQueueFor(t *testing.T) {
	assert.Equal(t, QueueStockAlert, QueueFor(JobStockAlert))
	assert.Equal(t, QueueReceipt, QueueFor(JobReceipt))
}
