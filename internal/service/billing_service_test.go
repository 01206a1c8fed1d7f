package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
	"github.com/yakoovad/teamsaas/internal/metrics"
	"github.com/yakoovad/teamsaas/internal/model"
	"github.com/yakoovad/teamsaas/internal/repository"
)

const (
	billingUserID     = "5b1c9a0e-3c1f-4d36-9a57-0d5a1c2f7e01"
	billingTeamID     = "7f0e2b4c-8d1a-4e3b-b5c6-1a2b3c4d5e6f"
	billingFallbackID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

type billingMocks struct {
	billing  *MockBillingRepository
	users    *MockUserRepository
	teams    *MockTeamRepository
	members  *MockMemberRepository
	checkout *MockCheckoutProvider
}

func newBillingMocks() *billingMocks {
	return &billingMocks{
		billing:  new(MockBillingRepository),
		users:    new(MockUserRepository),
		teams:    new(MockTeamRepository),
		members:  new(MockMemberRepository),
		checkout: new(MockCheckoutProvider),
	}
}

func (m *billingMocks) service() *BillingService {
	return NewBillingService(new(MockTransactor)).
		WithBillingRepo(m.billing).
		WithUserRepo(m.users).
		WithTeamRepo(m.teams).
		WithMemberRepo(m.members).
		WithCheckoutProvider(m.checkout)
}

func (m *billingMocks) assertExpectations(t *testing.T) {
	m.billing.AssertExpectations(t)
	m.users.AssertExpectations(t)
	m.teams.AssertExpectations(t)
	m.members.AssertExpectations(t)
	m.checkout.AssertExpectations(t)
}

func stripeEvent(t *testing.T, id, eventType string, object map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return stripe.Event{
		ID:   id,
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func loggedAs(rawID string) any {
	return mock.MatchedBy(func(e *repository.EventLog) bool { return e.RawID == rawID })
}

func TestBillingService_HandleEvent(t *testing.T) {
	periodStart := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	tests := []struct {
		name            string
		event           func(*testing.T) stripe.Event
		setupMocks      func(*billingMocks)
		expectedError   bool
		expectedOutcome string
	}{
		{
			name: "checkout completed creates subscription",
			event: func(t *testing.T) stripe.Event {
				return stripeEvent(t, "evt_checkout", EventCheckoutSessionCompleted, map[string]any{
					"id":           "cs_1",
					"object":       "checkout.session",
					"subscription": "sub_1",
					"customer":     "cus_1",
					"metadata":     map[string]string{"userId": billingUserID, "teamId": billingTeamID},
				})
			},
			setupMocks: func(m *billingMocks) {
				m.billing.On("LogEvent", mock.Anything, loggedAs("evt_checkout")).Return(true, nil)
				m.users.On("Get", mock.Anything, billingUserID).Return(&repository.User{ID: billingUserID}, nil)
				m.teams.On("Get", mock.Anything, billingTeamID).Return(&repository.Team{ID: billingTeamID}, nil)
				m.billing.On("UpsertCheckoutSubscription", mock.Anything, mock.MatchedBy(func(s *repository.Subscription) bool {
					return s.StripeSubscriptionID == "sub_1" &&
						*s.StripeCustomerID == "cus_1" &&
						*s.UserID == billingUserID &&
						*s.TeamID == billingTeamID &&
						s.Status == "ACTIVE" &&
						s.Plan == "PRO"
				})).Return(nil)
			},
			expectedOutcome: "processed",
		},
		{
			name: "checkout with unknown metadata keeps nulls",
			event: func(t *testing.T) stripe.Event {
				return stripeEvent(t, "evt_checkout_bad_meta", EventCheckoutSessionCompleted, map[string]any{
					"id":           "cs_2",
					"subscription": "sub_2",
					"metadata":     map[string]string{"userId": "not-a-uuid", "teamId": billingTeamID},
				})
			},
			setupMocks: func(m *billingMocks) {
				m.billing.On("LogEvent", mock.Anything, loggedAs("evt_checkout_bad_meta")).Return(true, nil)
				m.teams.On("Get", mock.Anything, billingTeamID).Return(nil, repository.ErrNotFound)
				m.billing.On("UpsertCheckoutSubscription", mock.Anything, mock.MatchedBy(func(s *repository.Subscription) bool {
					return s.UserID == nil && s.TeamID == nil && s.StripeCustomerID == nil
				})).Return(nil)
			},
			expectedOutcome: "processed",
		},
		{
			name: "subscription created maps status and periods",
			event: func(t *testing.T) stripe.Event {
				return stripeEvent(t, "evt_sub_created", EventSubscriptionCreated, map[string]any{
					"id":                   "sub_3",
					"object":               "subscription",
					"status":               "trialing",
					"customer":             "cus_3",
					"current_period_start": periodStart.Unix(),
					"current_period_end":   periodEnd.Unix(),
					"cancel_at_period_end": true,
					"metadata":             map[string]string{},
				})
			},
			setupMocks: func(m *billingMocks) {
				m.billing.On("LogEvent", mock.Anything, loggedAs("evt_sub_created")).Return(true, nil)
				m.billing.On("UpsertSubscription", mock.Anything, mock.MatchedBy(func(s *repository.Subscription) bool {
					return s.StripeSubscriptionID == "sub_3" &&
						s.Status == "TRIALING" &&
						s.CurrentPeriodStart.Equal(periodStart) &&
						s.CurrentPeriodEnd.Equal(periodEnd) &&
						s.CancelAtPeriodEnd
				})).Return(nil)
			},
			expectedOutcome: "processed",
		},
		{
			name: "subscription deleted updates state",
			event: func(t *testing.T) stripe.Event {
				return stripeEvent(t, "evt_sub_deleted", EventSubscriptionDeleted, map[string]any{
					"id":     "sub_4",
					"status": "canceled",
				})
			},
			setupMocks: func(m *billingMocks) {
				m.billing.On("LogEvent", mock.Anything, loggedAs("evt_sub_deleted")).Return(true, nil)
				m.billing.On("UpdateSubscriptionState", mock.Anything, &repository.SubscriptionStatePatch{
					StripeSubscriptionID: "sub_4",
					Status:               "CANCELED",
				}).Return(int64(0), nil)
			},
			expectedOutcome: "processed",
		},
		{
			name: "invoice paid matched by email",
			event: func(t *testing.T) stripe.Event {
				return stripeEvent(t, "evt_invoice", EventInvoicePaid, map[string]any{
					"id":                 "in_1",
					"object":             "invoice",
					"amount_paid":        2900,
					"currency":           "usd",
					"status":             "paid",
					"customer_email":     "Alice@X.io",
					"subscription":       "sub_1",
					"invoice_pdf":        "https://pay.example/in_1.pdf",
					"hosted_invoice_url": "https://pay.example/in_1",
				})
			},
			setupMocks: func(m *billingMocks) {
				m.billing.On("LogEvent", mock.Anything, loggedAs("evt_invoice")).Return(true, nil)
				m.users.On("GetByEmail", mock.Anything, "alice@x.io").Return(&repository.User{ID: billingUserID}, nil)
				m.billing.On("GetSubscriptionByStripeID", mock.Anything, "sub_1").Return(&repository.Subscription{ID: "local-sub"}, nil)
				m.billing.On("UpsertInvoice", mock.Anything, mock.MatchedBy(func(i *repository.Invoice) bool {
					return i.StripeInvoiceID == "in_1" &&
						i.Amount == 2900 &&
						i.Currency == "USD" &&
						i.Status == "paid" &&
						*i.UserID == billingUserID &&
						*i.SubscriptionID == "local-sub" &&
						*i.InvoicePDF == "https://pay.example/in_1.pdf"
				})).Return(nil)
			},
			expectedOutcome: "processed",
		},
		{
			name: "duplicate delivery is skipped",
			event: func(t *testing.T) stripe.Event {
				return stripeEvent(t, "evt_dup", EventInvoicePaid, map[string]any{"id": "in_dup"})
			},
			setupMocks: func(m *billingMocks) {
				m.billing.On("LogEvent", mock.Anything, loggedAs("evt_dup")).Return(false, nil)
			},
			expectedOutcome: "duplicate",
		},
		{
			name: "unknown type is ignored",
			event: func(t *testing.T) stripe.Event {
				return stripeEvent(t, "evt_other", "customer.created", map[string]any{"id": "cus_9"})
			},
			setupMocks: func(m *billingMocks) {
				m.billing.On("LogEvent", mock.Anything, loggedAs("evt_other")).Return(true, nil)
			},
			expectedOutcome: "ignored",
		},
		{
			name: "storage failure surfaces",
			event: func(t *testing.T) stripe.Event {
				return stripeEvent(t, "evt_fail", EventSubscriptionUpdated, map[string]any{"id": "sub_5", "status": "active"})
			},
			setupMocks: func(m *billingMocks) {
				m.billing.On("LogEvent", mock.Anything, loggedAs("evt_fail")).Return(true, nil)
				m.billing.On("UpdateSubscriptionState", mock.Anything, mock.Anything).Return(int64(0), errors.New("deadlock detected"))
			},
			expectedError:   true,
			expectedOutcome: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newBillingMocks()
			tt.setupMocks(m)

			event := tt.event(t)
			counter := metrics.BillingEvents(event.Type, tt.expectedOutcome)
			before := testutil.ToFloat64(counter)

			err := m.service().HandleEvent(context.Background(), event, []byte(`{}`))

			if tt.expectedError {
				assertErrorCode(t, err, ErrorCodeUnspecified)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, before+1, testutil.ToFloat64(counter))

			m.assertExpectations(t)
		})
	}
}

func TestBillingService_InvoiceAttribution(t *testing.T) {
	invoice := map[string]any{
		"id":             "in_2",
		"amount_paid":    1000,
		"currency":       "eur",
		"status":         "paid",
		"customer_email": "ghost@x.io",
	}

	t.Run("falls back to configured user", func(t *testing.T) {
		m := newBillingMocks()
		m.billing.On("LogEvent", mock.Anything, mock.Anything).Return(true, nil)
		m.users.On("GetByEmail", mock.Anything, "ghost@x.io").Return(nil, repository.ErrNotFound)
		m.users.On("Get", mock.Anything, billingFallbackID).Return(&repository.User{ID: billingFallbackID}, nil)
		m.billing.On("UpsertInvoice", mock.Anything, mock.MatchedBy(func(i *repository.Invoice) bool {
			return i.UserID != nil && *i.UserID == billingFallbackID && i.Currency == "EUR" && i.SubscriptionID == nil
		})).Return(nil)

		before := testutil.ToFloat64(metrics.InvoiceAttributions(metrics.AttributionFallback))

		err := m.service().WithFallbackUserID(billingFallbackID).
			HandleEvent(context.Background(), stripeEvent(t, "evt_fb", EventInvoicePaymentSucceeded, invoice), nil)
		require.NoError(t, err)

		assert.Equal(t, before+1, testutil.ToFloat64(metrics.InvoiceAttributions(metrics.AttributionFallback)))
		m.assertExpectations(t)
	})

	t.Run("stays unattributed without fallback", func(t *testing.T) {
		m := newBillingMocks()
		m.billing.On("LogEvent", mock.Anything, mock.Anything).Return(true, nil)
		m.users.On("GetByEmail", mock.Anything, "ghost@x.io").Return(nil, repository.ErrNotFound)
		m.billing.On("UpsertInvoice", mock.Anything, mock.MatchedBy(func(i *repository.Invoice) bool {
			return i.UserID == nil
		})).Return(nil)

		before := testutil.ToFloat64(metrics.InvoiceAttributions(metrics.AttributionUnattributed))

		err := m.service().HandleEvent(context.Background(), stripeEvent(t, "evt_none", EventInvoicePaid, invoice), nil)
		require.NoError(t, err)

		assert.Equal(t, before+1, testutil.ToFloat64(metrics.InvoiceAttributions(metrics.AttributionUnattributed)))
		m.assertExpectations(t)
	})

	t.Run("missing fallback user is ignored", func(t *testing.T) {
		m := newBillingMocks()
		m.billing.On("LogEvent", mock.Anything, mock.Anything).Return(true, nil)
		m.users.On("GetByEmail", mock.Anything, "ghost@x.io").Return(nil, repository.ErrNotFound)
		m.users.On("Get", mock.Anything, billingFallbackID).Return(nil, repository.ErrNotFound)
		m.billing.On("UpsertInvoice", mock.Anything, mock.MatchedBy(func(i *repository.Invoice) bool {
			return i.UserID == nil
		})).Return(nil)

		err := m.service().WithFallbackUserID(billingFallbackID).
			HandleEvent(context.Background(), stripeEvent(t, "evt_gone", EventInvoicePaid, invoice), nil)
		require.NoError(t, err)
		m.assertExpectations(t)
	})
}

func TestSubscriptionStatusFromStripe(t *testing.T) {
	tests := []struct {
		in   stripe.SubscriptionStatus
		want model.SubscriptionStatus
	}{
		{in: stripe.SubscriptionStatusActive, want: model.SubscriptionStatusActive},
		{in: stripe.SubscriptionStatusPastDue, want: model.SubscriptionStatusPastDue},
		{in: stripe.SubscriptionStatusCanceled, want: model.SubscriptionStatusCanceled},
		{in: stripe.SubscriptionStatusUnpaid, want: model.SubscriptionStatusUnpaid},
		{in: stripe.SubscriptionStatusTrialing, want: model.SubscriptionStatusTrialing},
		{in: stripe.SubscriptionStatusIncomplete, want: model.SubscriptionStatusInactive},
		{in: "paused", want: model.SubscriptionStatusInactive},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, SubscriptionStatusFromStripe(tt.in))
		})
	}
}

func TestBillingService_CreateCheckout(t *testing.T) {
	user := &model.User{ID: "u1", Email: "alice@x.io"}

	tests := []struct {
		name          string
		req           *model.CheckoutRequest
		disabled      bool
		setupMocks    func(*billingMocks)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name: "success defaults to subscription",
			req:  &model.CheckoutRequest{PriceID: "price_pro"},
			setupMocks: func(m *billingMocks) {
				m.checkout.On("CreateSession", mock.Anything, &model.CheckoutRequest{
					UserID:  "u1",
					Email:   "alice@x.io",
					PriceID: "price_pro",
					Mode:    model.CheckoutModeSubscription,
				}).Return(&model.CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil)
			},
		},
		{
			name: "team checkout requires membership",
			req:  &model.CheckoutRequest{PriceID: "price_pro", TeamID: strPtr("t1")},
			setupMocks: func(m *billingMocks) {
				m.members.On("Get", mock.Anything, "t1", "u1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeForbidden,
		},
		{
			name:          "unknown mode",
			req:           &model.CheckoutRequest{PriceID: "price_pro", Mode: "setup"},
			setupMocks:    func(m *billingMocks) {},
			expectedError: true,
			errorCode:     ErrorCodeInvalidBody,
		},
		{
			name:          "missing price",
			req:           &model.CheckoutRequest{},
			setupMocks:    func(m *billingMocks) {},
			expectedError: true,
			errorCode:     ErrorCodeInvalidBody,
		},
		{
			name:          "billing disabled",
			req:           &model.CheckoutRequest{PriceID: "price_pro"},
			disabled:      true,
			setupMocks:    func(m *billingMocks) {},
			expectedError: true,
			errorCode:     ErrorCodeBillingDisabled,
		},
		{
			name: "processor failure",
			req:  &model.CheckoutRequest{PriceID: "price_pro", Mode: model.CheckoutModePayment},
			setupMocks: func(m *billingMocks) {
				m.checkout.On("CreateSession", mock.Anything, mock.Anything).Return(nil, errors.New("stripe unavailable"))
			},
			expectedError: true,
			errorCode:     ErrorCodeUnspecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newBillingMocks()
			tt.setupMocks(m)

			svc := m.service()
			if tt.disabled {
				svc.WithCheckoutProvider(nil)
			}

			got, err := svc.CreateCheckout(context.Background(), user, tt.req)

			if tt.expectedError {
				assertErrorCode(t, err, tt.errorCode)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "cs_1", got.ID)
			}

			m.assertExpectations(t)
		})
	}
}

func TestBillingService_ListInvoices(t *testing.T) {
	m := newBillingMocks()
	created := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	m.billing.On("ListInvoices", mock.Anything, "u1").Return([]*repository.Invoice{
		{ID: "i1", UserID: strPtr("u1"), StripeInvoiceID: "in_1", Amount: 2900, Currency: "USD", Status: "paid", CreatedAt: created},
	}, nil)
	m.billing.On("ListSubscriptions", mock.Anything, "u2").Return(nil, errors.New("timeout"))

	invoices, err := m.service().ListInvoices(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []*model.Invoice{
		{ID: "i1", UserID: strPtr("u1"), StripeInvoiceID: "in_1", Amount: 2900, Currency: "USD", Status: "paid", CreatedAt: created},
	}, invoices)

	_, err = m.service().ListSubscriptions(context.Background(), "u2")
	assertErrorCode(t, err, ErrorCodeUnspecified)

	m.assertExpectations(t)
}
