package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
	"github.com/yakoovad/teamsaas/internal/model"
)

type fakeSessions struct {
	got *stripe.CheckoutSessionParams
	err error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

func TestClient_CreateSession(t *testing.T) {
	teamID := "team-1"

	tests := []struct {
		name             string
		req              *model.CheckoutRequest
		sessionsErr      error
		expectError      bool
		expectedMetadata map[string]string
		expectSubData    bool
	}{
		{
			name: "success: subscription for a team",
			req: &model.CheckoutRequest{
				UserID:  "user-1",
				Email:   "alice@x.io",
				PriceID: "price_pro",
				Mode:    model.CheckoutModeSubscription,
				TeamID:  &teamID,
			},
			expectedMetadata: map[string]string{"userId": "user-1", "teamId": "team-1"},
			expectSubData:    true,
		},
		{
			name: "success: one-off payment",
			req: &model.CheckoutRequest{
				UserID:  "user-1",
				Email:   "alice@x.io",
				PriceID: "price_credits",
				Mode:    model.CheckoutModePayment,
			},
			expectedMetadata: map[string]string{"userId": "user-1"},
		},
		{
			name: "failure: processor error",
			req: &model.CheckoutRequest{
				UserID:  "user-1",
				PriceID: "price_pro",
				Mode:    model.CheckoutModeSubscription,
			},
			sessionsErr: errors.New("card_declined"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{err: tt.sessionsErr}
			c := &Client{sessions: sessions, appURL: "https://app.example.com"}

			got, err := c.CreateSession(context.Background(), tt.req)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, &model.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, got)

			params := sessions.got
			require.NotNil(t, params)
			assert.Equal(t, tt.expectedMetadata, params.Metadata)
			assert.Equal(t, string(tt.req.Mode), *params.Mode)
			assert.Equal(t, "https://app.example.com/pricing?canceled=true", *params.CancelURL)
			require.Len(t, params.LineItems, 1)
			assert.Equal(t, tt.req.PriceID, *params.LineItems[0].Price)
			assert.Equal(t, tt.expectSubData, params.SubscriptionData != nil)
		})
	}
}
