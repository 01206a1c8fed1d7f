package repository

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/teamsaas/internal/db"
)

type Subscription struct {
	ID                   string     `db:"id"`
	UserID               *string    `db:"user_id"`
	TeamID               *string    `db:"team_id"`
	StripeSubscriptionID string     `db:"stripe_subscription_id"`
	StripeCustomerID     *string    `db:"stripe_customer_id"`
	Status               string     `db:"status"`
	Plan                 string     `db:"plan"`
	CurrentPeriodStart   *time.Time `db:"current_period_start"`
	CurrentPeriodEnd     *time.Time `db:"current_period_end"`
	CancelAtPeriodEnd    bool       `db:"cancel_at_period_end"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// SubscriptionStatePatch carries the processor-owned fields of a subscription.
type SubscriptionStatePatch struct {
	StripeSubscriptionID string
	Status               string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
}

type Invoice struct {
	ID               string    `db:"id"`
	UserID           *string   `db:"user_id"`
	SubscriptionID   *string   `db:"subscription_id"`
	StripeInvoiceID  string    `db:"stripe_invoice_id"`
	Amount           int64     `db:"amount"`
	Currency         string    `db:"currency"`
	Status           string    `db:"status"`
	InvoicePDF       *string   `db:"invoice_pdf"`
	HostedInvoiceURL *string   `db:"hosted_invoice_url"`
	CreatedAt        time.Time `db:"created_at"`
}

type EventLog struct {
	ID      string
	RawID   string
	Type    string
	Payload []byte
}

type BillingRepository interface {
	// LogEvent stores a processor event once; it reports false for a redelivery.
	LogEvent(ctx context.Context, event *EventLog) (bool, error)
	// UpsertCheckoutSubscription refreshes only customer and status on conflict.
	UpsertCheckoutSubscription(ctx context.Context, sub *Subscription) error
	// UpsertSubscription refreshes the processor-owned state on conflict.
	UpsertSubscription(ctx context.Context, sub *Subscription) error
	UpdateSubscriptionState(ctx context.Context, patch *SubscriptionStatePatch) (int64, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
	UpsertInvoice(ctx context.Context, invoice *Invoice) error
	ListSubscriptions(ctx context.Context, userID string) ([]*Subscription, error)
	ListInvoices(ctx context.Context, userID string) ([]*Invoice, error)
}

var subscriptionColumns = []any{
	"id", "user_id", "team_id", "stripe_subscription_id", "stripe_customer_id", "status", "plan",
	"current_period_start", "current_period_end", "cancel_at_period_end", "created_at", "updated_at",
}

var invoiceColumns = []any{
	"id", "user_id", "subscription_id", "stripe_invoice_id", "amount", "currency", "status",
	"invoice_pdf", "hosted_invoice_url", "created_at",
}

type pgxBillingRepository struct {
	pool *pgxpool.Pool
}

func NewPgxBillingRepository(pool *pgxpool.Pool) BillingRepository {
	return &pgxBillingRepository{pool: pool}
}

func (p *pgxBillingRepository) LogEvent(ctx context.Context, event *EventLog) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("stripe_event_logs", "id", "raw_id", "type", "payload"),
		im.Values(psql.Arg(event.ID), psql.Arg(event.RawID), psql.Arg(event.Type), psql.Arg(event.Payload)),
		im.OnConflict(psql.Quote("raw_id")).DoNothing(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *pgxBillingRepository) UpsertCheckoutSubscription(ctx context.Context, sub *Subscription) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("subscriptions",
			"id", "user_id", "team_id", "stripe_subscription_id", "stripe_customer_id", "status", "plan",
			"current_period_start", "current_period_end", "cancel_at_period_end"),
		im.Values(
			psql.Arg(sub.ID), psql.Arg(sub.UserID), psql.Arg(sub.TeamID), psql.Arg(sub.StripeSubscriptionID),
			psql.Arg(sub.StripeCustomerID), psql.Arg(sub.Status), psql.Arg(sub.Plan),
			psql.Arg(sub.CurrentPeriodStart), psql.Arg(sub.CurrentPeriodEnd), psql.Arg(sub.CancelAtPeriodEnd),
		),
		im.OnConflict(psql.Quote("stripe_subscription_id")).DoUpdate(
			im.SetCol("stripe_customer_id").ToArg(sub.StripeCustomerID),
			im.SetCol("status").ToArg(sub.Status),
			im.SetCol("updated_at").ToArg(time.Now().UTC()),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return translate(err)
}

func (p *pgxBillingRepository) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("subscriptions",
			"id", "user_id", "team_id", "stripe_subscription_id", "stripe_customer_id", "status", "plan",
			"current_period_start", "current_period_end", "cancel_at_period_end"),
		im.Values(
			psql.Arg(sub.ID), psql.Arg(sub.UserID), psql.Arg(sub.TeamID), psql.Arg(sub.StripeSubscriptionID),
			psql.Arg(sub.StripeCustomerID), psql.Arg(sub.Status), psql.Arg(sub.Plan),
			psql.Arg(sub.CurrentPeriodStart), psql.Arg(sub.CurrentPeriodEnd), psql.Arg(sub.CancelAtPeriodEnd),
		),
		im.OnConflict(psql.Quote("stripe_subscription_id")).DoUpdate(
			im.SetCol("status").ToArg(sub.Status),
			im.SetCol("current_period_start").ToArg(sub.CurrentPeriodStart),
			im.SetCol("current_period_end").ToArg(sub.CurrentPeriodEnd),
			im.SetCol("cancel_at_period_end").ToArg(sub.CancelAtPeriodEnd),
			im.SetCol("updated_at").ToArg(time.Now().UTC()),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return translate(err)
}

func (p *pgxBillingRepository) UpdateSubscriptionState(ctx context.Context, patch *SubscriptionStatePatch) (int64, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("subscriptions"),
		um.SetCol("status").ToArg(patch.Status),
		um.SetCol("current_period_start").ToArg(patch.CurrentPeriodStart),
		um.SetCol("current_period_end").ToArg(patch.CurrentPeriodEnd),
		um.SetCol("cancel_at_period_end").ToArg(patch.CancelAtPeriodEnd),
		um.SetCol("updated_at").ToArg(time.Now().UTC()),
		um.Where(psql.Quote("stripe_subscription_id").EQ(psql.Arg(patch.StripeSubscriptionID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (p *pgxBillingRepository) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(subscriptionColumns...),
		sm.From("subscriptions"),
		sm.Where(psql.Quote("stripe_subscription_id").EQ(psql.Arg(stripeSubscriptionID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{}
	if err = pgxscan.Get(ctx, e, sub, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (p *pgxBillingRepository) UpsertInvoice(ctx context.Context, invoice *Invoice) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("invoices",
			"id", "user_id", "subscription_id", "stripe_invoice_id", "amount", "currency", "status",
			"invoice_pdf", "hosted_invoice_url"),
		im.Values(
			psql.Arg(invoice.ID), psql.Arg(invoice.UserID), psql.Arg(invoice.SubscriptionID),
			psql.Arg(invoice.StripeInvoiceID), psql.Arg(invoice.Amount), psql.Arg(invoice.Currency),
			psql.Arg(invoice.Status), psql.Arg(invoice.InvoicePDF), psql.Arg(invoice.HostedInvoiceURL),
		),
		im.OnConflict(psql.Quote("stripe_invoice_id")).DoUpdate(
			im.SetCol("amount").ToArg(invoice.Amount),
			im.SetCol("status").ToArg(invoice.Status),
			im.SetCol("invoice_pdf").ToArg(invoice.InvoicePDF),
			im.SetCol("hosted_invoice_url").ToArg(invoice.HostedInvoiceURL),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return translate(err)
}

func (p *pgxBillingRepository) ListSubscriptions(ctx context.Context, userID string) ([]*Subscription, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(subscriptionColumns...),
		sm.From("subscriptions"),
		sm.Where(psql.Quote("user_id").EQ(psql.Arg(userID))),
		sm.OrderBy(psql.Quote("created_at")).Desc(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	subs := make([]*Subscription, 0)
	if err = pgxscan.Select(ctx, e, &subs, sql, args...); err != nil {
		return nil, err
	}
	return subs, nil
}

func (p *pgxBillingRepository) ListInvoices(ctx context.Context, userID string) ([]*Invoice, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(invoiceColumns...),
		sm.From("invoices"),
		sm.Where(psql.Quote("user_id").EQ(psql.Arg(userID))),
		sm.OrderBy(psql.Quote("created_at")).Desc(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	invoices := make([]*Invoice, 0)
	if err = pgxscan.Select(ctx, e, &invoices, sql, args...); err != nil {
		return nil, err
	}
	return invoices, nil
}
