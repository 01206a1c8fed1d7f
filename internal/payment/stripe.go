package payment

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/yakoovad/teamsaas/internal/model"
)

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Client creates hosted checkout sessions.
type Client struct {
	sessions sessionCreator
	appURL   string
}

func New(secretKey, appURL string) *Client {
	sc := &client.API{}
	sc.Init(secretKey, stripe.NewBackends(&http.Client{
		Timeout: 10 * time.Second,
	}))

	return &Client{sessions: sc.CheckoutSessions, appURL: strings.TrimRight(appURL, "/")}
}

// SessionParams builds the processor request. The user and team ids travel as
// metadata so the completion webhook can attribute the subscription.
func (c *Client) SessionParams(ctx context.Context, req *model.CheckoutRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Mode:          stripe.String(string(req.Mode)),
		CustomerEmail: stripe.String(req.Email),
		SuccessURL:    stripe.String(c.appURL + "/dashboard?success=true&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     stripe.String(c.appURL + "/pricing?canceled=true"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata("userId", req.UserID)
	if req.TeamID != nil {
		params.AddMetadata("teamId", *req.TeamID)
	}
	if req.Mode == model.CheckoutModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: params.Metadata,
		}
	}
	return params
}

func (c *Client) CreateSession(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutSession, error) {
	session, err := c.sessions.New(c.SessionParams(ctx, req))
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	return &model.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
