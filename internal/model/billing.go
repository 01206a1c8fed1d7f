package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusInactive SubscriptionStatus = "INACTIVE"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
	SubscriptionStatusUnpaid   SubscriptionStatus = "UNPAID"
	SubscriptionStatusTrialing SubscriptionStatus = "TRIALING"
)

type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

type Subscription struct {
	ID                   string             `json:"id"`
	UserID               *string            `json:"userId"`
	TeamID               *string            `json:"teamId"`
	StripeSubscriptionID string             `json:"stripeSubscriptionId"`
	StripeCustomerID     *string            `json:"stripeCustomerId"`
	Status               SubscriptionStatus `json:"status"`
	Plan                 Plan               `json:"plan"`
	CurrentPeriodStart   *time.Time         `json:"currentPeriodStart"`
	CurrentPeriodEnd     *time.Time         `json:"currentPeriodEnd"`
	CancelAtPeriodEnd    bool               `json:"cancelAtPeriodEnd"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

type Invoice struct {
	ID               string    `json:"id"`
	UserID           *string   `json:"userId"`
	SubscriptionID   *string   `json:"subscriptionId"`
	StripeInvoiceID  string    `json:"stripeInvoiceId"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	InvoicePDF       *string   `json:"invoicePdf"`
	HostedInvoiceURL *string   `json:"hostedInvoiceUrl"`
	CreatedAt        time.Time `json:"createdAt"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModePayment      CheckoutMode = "payment"
)

type CheckoutRequest struct {
	UserID  string
	Email   string
	PriceID string
	Mode    CheckoutMode
	TeamID  *string
}
