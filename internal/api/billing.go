package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v72/webhook"
	"github.com/yakoovad/teamsaas/internal/model"
	"github.com/yakoovad/teamsaas/internal/service"
	"github.com/yakoovad/teamsaas/pkg/logger"
	"go.uber.org/zap"
)

const (
	maxWebhookBodyBytes   = int64(65536)
	stripeSignatureHeader = "Stripe-Signature"
)

func (h *Handler) CreateCheckout(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		PriceID string  `json:"priceId" validate:"required"`
		Mode    string  `json:"mode" validate:"omitempty,oneof=subscription payment"`
		TeamID  *string `json:"teamId" validate:"omitempty,uuid"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Error(err))
		return h.transportError(e, err)
	}

	session, err := h.billing.CreateCheckout(e.Request().Context(), currentUser(e), &model.CheckoutRequest{
		PriceID: req.PriceID,
		Mode:    model.CheckoutMode(req.Mode),
		TeamID:  req.TeamID,
	})
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, session)
}

// StripeWebhook verifies the signature before anything is recorded. A processing
// failure answers 500 so the event is redelivered.
func (h *Handler) StripeWebhook(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	signature := e.Request().Header.Get(stripeSignatureHeader)
	if signature == "" {
		l.Warn("webhook without signature")
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "missing signature"))
	}

	body := http.MaxBytesReader(e.Response(), e.Request().Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		l.Warn("failed to read webhook payload", zap.Error(err))
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "invalid request body"))
	}

	event, err := webhook.ConstructEvent(payload, signature, h.webhookSecret)
	if err != nil {
		l.Warn("failed to verify webhook signature", zap.Error(err))
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "invalid signature"))
	}

	if err = h.billing.HandleEvent(e.Request().Context(), event, payload); err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) ListSubscriptions(e echo.Context) error {
	subs, err := h.billing.ListSubscriptions(e.Request().Context(), currentUser(e).ID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, subs)
}

func (h *Handler) ListInvoices(e echo.Context) error {
	invoices, err := h.billing.ListInvoices(e.Request().Context(), currentUser(e).ID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, invoices)
}
