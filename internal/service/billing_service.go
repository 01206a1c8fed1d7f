package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/yakoovad/teamsaas/internal/db"
	"github.com/yakoovad/teamsaas/internal/metrics"
	"github.com/yakoovad/teamsaas/internal/model"
	"github.com/yakoovad/teamsaas/internal/repository"
	"github.com/yakoovad/teamsaas/pkg/logger"
	"go.uber.org/zap"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventInvoicePaid              = "invoice.paid"
)

const (
	metadataUserID = "userId"
	metadataTeamID = "teamId"
)

// CheckoutProvider opens a hosted checkout session with the payment processor.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutSession, error)
}

type BillingService struct {
	tx db.Transactor

	billing  repository.BillingRepository
	users    repository.UserRepository
	teams    repository.TeamRepository
	members  repository.MemberRepository
	checkout CheckoutProvider

	fallbackUserID string
}

func NewBillingService(tx db.Transactor) *BillingService {
	return &BillingService{tx: tx}
}

// HandleEvent records a verified processor event and applies it. The log entry
// and the resulting writes share one transaction, so a failed event is retried
// in full on redelivery and a processed one is skipped.
func (b *BillingService) HandleEvent(ctx context.Context, event stripe.Event, payload []byte) error {
	l := logger.FromContext(ctx).With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	l.Info("handling billing event")

	outcome := "processed"
	err := b.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		fresh, err := b.billing.LogEvent(txCtx, &repository.EventLog{
			ID:      uuid.NewString(),
			RawID:   event.ID,
			Type:    event.Type,
			Payload: payload,
		})
		if err != nil {
			return errors.Wrap(err, "log event")
		}
		if !fresh {
			outcome = "duplicate"
			return nil
		}

		handled, err := b.apply(txCtx, event)
		if !handled {
			outcome = "ignored"
		}
		return err
	})
	if err != nil {
		metrics.ReportBillingEvent(event.Type, "failed")
		l.Error("failed to handle billing event", zap.Error(err))
		return internal("failed to process event")
	}

	metrics.ReportBillingEvent(event.Type, outcome)
	l.Debug("billing event handled", zap.String("outcome", outcome))
	return nil
}

func (b *BillingService) apply(ctx context.Context, event stripe.Event) (bool, error) {
	if event.Data == nil {
		return false, nil
	}

	switch event.Type {
	case EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return true, errors.Wrap(err, "decode checkout session")
		}
		return true, b.checkoutCompleted(ctx, &session)
	case EventSubscriptionCreated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return true, errors.Wrap(err, "decode subscription")
		}
		return true, b.subscriptionCreated(ctx, &sub)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return true, errors.Wrap(err, "decode subscription")
		}
		return true, b.subscriptionChanged(ctx, &sub)
	case EventInvoicePaymentSucceeded, EventInvoicePaid:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return true, errors.Wrap(err, "decode invoice")
		}
		return true, b.invoicePaid(ctx, &invoice)
	default:
		return false, nil
	}
}

func (b *BillingService) checkoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	l := logger.FromContext(ctx)

	if session.Subscription == nil || session.Subscription.ID == "" {
		l.Info("checkout session without subscription", zap.String("session_id", session.ID))
		return nil
	}

	sub := &repository.Subscription{
		ID:                   uuid.NewString(),
		UserID:               b.knownUser(ctx, session.Metadata[metadataUserID]),
		TeamID:               b.knownTeam(ctx, session.Metadata[metadataTeamID]),
		StripeSubscriptionID: session.Subscription.ID,
		Status:               string(model.SubscriptionStatusActive),
		Plan:                 string(model.PlanPro),
	}
	if session.Customer != nil && session.Customer.ID != "" {
		sub.StripeCustomerID = &session.Customer.ID
	}

	return errors.Wrap(b.billing.UpsertCheckoutSubscription(ctx, sub), "upsert checkout subscription")
}

func (b *BillingService) subscriptionCreated(ctx context.Context, s *stripe.Subscription) error {
	sub := &repository.Subscription{
		ID:                   uuid.NewString(),
		UserID:               b.knownUser(ctx, s.Metadata[metadataUserID]),
		TeamID:               b.knownTeam(ctx, s.Metadata[metadataTeamID]),
		StripeSubscriptionID: s.ID,
		Status:               string(SubscriptionStatusFromStripe(s.Status)),
		Plan:                 string(model.PlanPro),
		CurrentPeriodStart:   unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
	}
	if s.Customer != nil && s.Customer.ID != "" {
		sub.StripeCustomerID = &s.Customer.ID
	}

	return errors.Wrap(b.billing.UpsertSubscription(ctx, sub), "upsert subscription")
}

func (b *BillingService) subscriptionChanged(ctx context.Context, s *stripe.Subscription) error {
	n, err := b.billing.UpdateSubscriptionState(ctx, &repository.SubscriptionStatePatch{
		StripeSubscriptionID: s.ID,
		Status:               string(SubscriptionStatusFromStripe(s.Status)),
		CurrentPeriodStart:   unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
	})
	if err != nil {
		return errors.Wrap(err, "update subscription state")
	}
	if n == 0 {
		logger.FromContext(ctx).Info("no local subscription for update", zap.String("stripe_subscription_id", s.ID))
	}
	return nil
}

func (b *BillingService) invoicePaid(ctx context.Context, inv *stripe.Invoice) error {
	invoice := &repository.Invoice{
		ID:              uuid.NewString(),
		UserID:          b.invoiceOwner(ctx, inv),
		StripeInvoiceID: inv.ID,
		Amount:          inv.AmountPaid,
		Currency:        strings.ToUpper(string(inv.Currency)),
		Status:          string(inv.Status),
	}
	if inv.InvoicePDF != "" {
		invoice.InvoicePDF = &inv.InvoicePDF
	}
	if inv.HostedInvoiceURL != "" {
		invoice.HostedInvoiceURL = &inv.HostedInvoiceURL
	}

	if inv.Subscription != nil && inv.Subscription.ID != "" {
		sub, err := b.billing.GetSubscriptionByStripeID(ctx, inv.Subscription.ID)
		switch {
		case err == nil:
			invoice.SubscriptionID = &sub.ID
		case !errors.Is(err, repository.ErrNotFound):
			return errors.Wrap(err, "get subscription")
		}
	}

	return errors.Wrap(b.billing.UpsertInvoice(ctx, invoice), "upsert invoice")
}

// invoiceOwner matches the customer email to a user, then falls back to the
// configured fallback user. Without either the invoice stays unattributed.
func (b *BillingService) invoiceOwner(ctx context.Context, inv *stripe.Invoice) *string {
	l := logger.FromContext(ctx).With(zap.String("stripe_invoice_id", inv.ID))

	if email := normalizeEmail(inv.CustomerEmail); email != "" {
		user, err := b.users.GetByEmail(ctx, email)
		if err == nil {
			metrics.ReportInvoiceAttribution(metrics.AttributionMatched)
			return &user.ID
		}
		if !errors.Is(err, repository.ErrNotFound) {
			l.Error("failed to look up invoice customer", zap.Error(err))
		}
	}

	if fallback := b.knownUser(ctx, b.fallbackUserID); fallback != nil {
		l.Warn("invoice attributed to fallback user", zap.String("user_id", *fallback))
		metrics.ReportInvoiceAttribution(metrics.AttributionFallback)
		return fallback
	}

	l.Warn("invoice has no owner")
	metrics.ReportInvoiceAttribution(metrics.AttributionUnattributed)
	return nil
}

// knownUser returns id when it names an existing user.
func (b *BillingService) knownUser(ctx context.Context, id string) *string {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := b.users.Get(ctx, id); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.FromContext(ctx).Error("failed to get user", zap.String("user_id", id), zap.Error(err))
		}
		return nil
	}
	return &id
}

func (b *BillingService) knownTeam(ctx context.Context, id string) *string {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := b.teams.Get(ctx, id); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.FromContext(ctx).Error("failed to get team", zap.String("team_id", id), zap.Error(err))
		}
		return nil
	}
	return &id
}

// SubscriptionStatusFromStripe maps processor statuses onto ours; anything unknown is INACTIVE.
func SubscriptionStatusFromStripe(s stripe.SubscriptionStatus) model.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive:
		return model.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue:
		return model.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return model.SubscriptionStatusCanceled
	case stripe.SubscriptionStatusUnpaid:
		return model.SubscriptionStatusUnpaid
	case stripe.SubscriptionStatusTrialing:
		return model.SubscriptionStatusTrialing
	default:
		return model.SubscriptionStatusInactive
	}
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// CreateCheckout opens a checkout session for the user. Team checkouts require membership.
func (b *BillingService) CreateCheckout(ctx context.Context, user *model.User, req *model.CheckoutRequest) (*model.CheckoutSession, error) {
	l := logger.FromContext(ctx)

	if b.checkout == nil {
		return nil, NewError(ErrorCodeBillingDisabled, "billing is not configured")
	}

	if req.Mode == "" {
		req.Mode = model.CheckoutModeSubscription
	}
	if req.Mode != model.CheckoutModeSubscription && req.Mode != model.CheckoutModePayment {
		return nil, invalid("mode must be subscription or payment")
	}
	if req.PriceID == "" {
		return nil, invalid("priceId is required")
	}

	if req.TeamID != nil {
		if _, serr := requireMember(ctx, b.members, *req.TeamID, user.ID); serr != nil {
			return nil, serr
		}
	}

	req.UserID = user.ID
	req.Email = user.Email

	session, err := b.checkout.CreateSession(ctx, req)
	if err != nil {
		l.Error("failed to create checkout session", zap.String("user_id", user.ID), zap.Error(err))
		return nil, internal("failed to create checkout session")
	}
	return session, nil
}

func (b *BillingService) ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	rows, err := b.billing.ListSubscriptions(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list subscriptions", zap.String("user_id", userID), zap.Error(err))
		return nil, internal("failed to list subscriptions")
	}

	res := make([]*model.Subscription, 0, len(rows))
	for _, s := range rows {
		res = append(res, &model.Subscription{
			ID:                   s.ID,
			UserID:               s.UserID,
			TeamID:               s.TeamID,
			StripeSubscriptionID: s.StripeSubscriptionID,
			StripeCustomerID:     s.StripeCustomerID,
			Status:               model.SubscriptionStatus(s.Status),
			Plan:                 model.Plan(s.Plan),
			CurrentPeriodStart:   s.CurrentPeriodStart,
			CurrentPeriodEnd:     s.CurrentPeriodEnd,
			CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
			CreatedAt:            s.CreatedAt,
			UpdatedAt:            s.UpdatedAt,
		})
	}
	return res, nil
}

func (b *BillingService) ListInvoices(ctx context.Context, userID string) ([]*model.Invoice, error) {
	rows, err := b.billing.ListInvoices(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list invoices", zap.String("user_id", userID), zap.Error(err))
		return nil, internal("failed to list invoices")
	}

	res := make([]*model.Invoice, 0, len(rows))
	for _, i := range rows {
		res = append(res, &model.Invoice{
			ID:               i.ID,
			UserID:           i.UserID,
			SubscriptionID:   i.SubscriptionID,
			StripeInvoiceID:  i.StripeInvoiceID,
			Amount:           i.Amount,
			Currency:         i.Currency,
			Status:           i.Status,
			InvoicePDF:       i.InvoicePDF,
			HostedInvoiceURL: i.HostedInvoiceURL,
			CreatedAt:        i.CreatedAt,
		})
	}
	return res, nil
}

func (b *BillingService) WithBillingRepo(r repository.BillingRepository) *BillingService {
	b.billing = r
	return b
}

func (b *BillingService) WithUserRepo(r repository.UserRepository) *BillingService {
	b.users = r
	return b
}

func (b *BillingService) WithTeamRepo(r repository.TeamRepository) *BillingService {
	b.teams = r
	return b
}

func (b *BillingService) WithMemberRepo(r repository.MemberRepository) *BillingService {
	b.members = r
	return b
}

func (b *BillingService) WithCheckoutProvider(p CheckoutProvider) *BillingService {
	b.checkout = p
	return b
}

func (b *BillingService) WithFallbackUserID(id string) *BillingService {
	b.fallbackUserID = id
	return b
}
