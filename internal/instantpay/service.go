// Package instantpay orchestrates the instant-payment checkout flow: issue a
// transaction id over mTLS, render the payment link, and wait for the broker
// confirmation.
package instantpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/efabox/instapay-api/internal/cert"
	"github.com/efabox/instapay-api/internal/common"
	"github.com/efabox/instapay-api/internal/confirm"
	"github.com/efabox/instapay-api/internal/device"
	"github.com/efabox/instapay-api/internal/nop"
	"github.com/efabox/instapay-api/internal/obs"
	"github.com/efabox/instapay-api/internal/paylink"
	"github.com/efabox/instapay-api/internal/qr"
)

// InitInput is the initiation request from the checkout UI.
type InitInput struct {
	Amount       string `json:"amount" validate:"required"`
	IBAN         string `json:"iban" validate:"required"`
	CreditorName string `json:"creditorName" validate:"required"`
	Message      string `json:"message"`
}

// InitOutput is the initiation response. QRCodeDataURL is null for mobile
// devices; CertificateData is null when the client certificate carries no
// identity markers.
type InitOutput struct {
	Success         bool           `json:"success"`
	TransactionID   string         `json:"transactionId"`
	PaymentLink     string         `json:"paymentLink"`
	IsMobile        bool           `json:"isMobile"`
	Platform        string         `json:"platform"`
	QRCodeDataURL   *string        `json:"qrCodeDataUrl"`
	CertificateData *cert.Identity `json:"certificateData"`
}

// SubscribeInput identifies the confirmation to wait for.
type SubscribeInput struct {
	TransactionID string `json:"transactionId"`
	TenantID      string `json:"tenantId"`
	TerminalID    string `json:"terminalId"`
}

// SubscribeOutput reports the terminal state of one confirmation wait,
// including the full communication log for UI diagnostics.
type SubscribeOutput struct {
	Success           bool            `json:"success"`
	HasMessages       bool            `json:"hasMessages"`
	Messages          []string        `json:"messages"`
	MessageCount      int             `json:"messageCount"`
	CommunicationLog  []string        `json:"communicationLog"`
	PaymentData       json.RawMessage `json:"paymentData,omitempty"`
	Status            string          `json:"status"`
	ListeningDuration string          `json:"listeningDuration,omitempty"`
}

// TransactionIDProvider issues one upstream transaction id per initiation.
type TransactionIDProvider interface {
	GenerateTransactionID(ctx context.Context) (nop.TransactionID, error)
}

// ConfirmationWaiter blocks until a payment confirmation resolves.
type ConfirmationWaiter interface {
	Await(ctx context.Context, req confirm.Request) (confirm.Outcome, error)
}

const dueDateLayout = "20060102"

// Service wires the flow together. Waiter may be nil when certificate
// material is not configured; initiation still works, confirmation reports a
// configuration error.
type Service struct {
	Transactions TransactionIDProvider
	Waiter       ConfirmationWaiter
	Links        paylink.Encoder
	Identity     cert.Identity

	Currency         string
	SubscribeTimeout time.Duration

	Validate *validator.Validate
	Metrics  *obs.PaymentMetrics
	Logger   zerolog.Logger

	// Now is a test seam for the due-date stamp.
	Now func() time.Time
}

func (s *Service) Init(ctx context.Context, in InitInput, userAgent string) (InitOutput, error) {
	if s == nil || s.Transactions == nil {
		return InitOutput{}, common.ConfigError("instant payment service not configured", nil)
	}
	if err := s.validateInput(in); err != nil {
		s.Metrics.ObserveInit("failure")
		return InitOutput{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil || !amount.IsPositive() {
		s.Metrics.ObserveInit("failure")
		return InitOutput{}, common.ValidationError("amount must be a positive decimal number", err)
	}

	tx, err := s.Transactions.GenerateTransactionID(ctx)
	if err != nil {
		s.Metrics.ObserveInit("failure")
		s.Logger.Error().Err(err).Msg("transaction id generation failed")
		return InitOutput{}, err
	}

	link, err := s.Links.Generate(paylink.Params{
		IBAN:         in.IBAN,
		Amount:       amount,
		Currency:     s.currency(),
		CreditorName: in.CreditorName,
		EndToEndID:   tx.ID,
		Message:      in.Message,
		DueDate:      s.now().Format(dueDateLayout),
	})
	if err != nil {
		s.Metrics.ObserveInit("failure")
		return InitOutput{}, common.ValidationError("invalid payment parameters", err)
	}

	cls := device.Classify(userAgent)
	out := InitOutput{
		Success:       true,
		TransactionID: tx.ID,
		PaymentLink:   link,
		IsMobile:      cls.IsMobile,
		Platform:      string(cls.Platform),
	}
	// Desktop checkouts get the link as a scannable QR; mobile devices open
	// the link directly in their banking app.
	if !cls.IsMobile {
		if data := qr.DataURL(link); data != "" {
			out.QRCodeDataURL = &data
		}
	}
	if s.Identity.Complete() {
		identity := s.Identity
		out.CertificateData = &identity
	}

	s.Metrics.ObserveInit("success")
	s.Logger.Info().
		Str("transaction_id", tx.ID).
		Bool("is_mobile", cls.IsMobile).
		Str("platform", string(cls.Platform)).
		Msg("payment initiated")
	return out, nil
}

// Confirm waits for the broker confirmation of one transaction. Identity
// fields missing from the request fall back to the identity extracted from
// the server's own client certificate.
func (s *Service) Confirm(ctx context.Context, in SubscribeInput) (SubscribeOutput, error) {
	if s == nil {
		return SubscribeOutput{}, common.ConfigError("instant payment service not configured", nil)
	}
	if s.Waiter == nil {
		return SubscribeOutput{}, common.ConfigError("certificate material is not configured; confirmation is unavailable", nil)
	}

	identity := cert.Identity{
		TenantID:   firstNonEmpty(in.TenantID, s.Identity.TenantID),
		TerminalID: firstNonEmpty(in.TerminalID, s.Identity.TerminalID),
	}
	outcome, err := s.Waiter.Await(ctx, confirm.Request{
		Identity:      identity,
		TransactionID: strings.TrimSpace(in.TransactionID),
	})
	if outcome.Status != "" {
		s.Metrics.ObserveConfirmation(string(outcome.Status), outcome.Elapsed)
	}
	return s.subscribeOutput(outcome), err
}

func (s *Service) subscribeOutput(outcome confirm.Outcome) SubscribeOutput {
	messages := outcome.Messages
	if messages == nil {
		messages = []string{}
	}
	log := outcome.Log
	if log == nil {
		log = []string{}
	}
	out := SubscribeOutput{
		Success:          outcome.Status == confirm.StatusCompleted,
		HasMessages:      len(messages) > 0,
		Messages:         messages,
		MessageCount:     len(messages),
		CommunicationLog: log,
		PaymentData:      outcome.PaymentData,
		Status:           string(outcome.Status),
	}
	switch outcome.Status {
	case confirm.StatusCompleted:
		out.ListeningDuration = fmt.Sprintf("%ds", int(outcome.Elapsed.Seconds()))
	case confirm.StatusTimedOut:
		out.ListeningDuration = fmt.Sprintf("%d seconds", int(s.subscribeTimeout().Seconds()))
	}
	return out
}

func (s *Service) validateInput(in InitInput) error {
	v := s.Validate
	if v == nil {
		v = validator.New()
	}
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
		appErr := common.ValidationError("missing or malformed payment parameters", err)
		appErr.Details = details
		return appErr
	}
	return common.ValidationError("invalid payment parameters", err)
}

func (s *Service) currency() string {
	if strings.TrimSpace(s.Currency) == "" {
		return "EUR"
	}
	return s.Currency
}

func (s *Service) subscribeTimeout() time.Duration {
	if s.SubscribeTimeout <= 0 {
		return 60 * time.Second
	}
	return s.SubscribeTimeout
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
