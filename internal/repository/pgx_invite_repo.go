package repository

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/teamsaas/internal/db"
)

type Invite struct {
	ID        string    `db:"id"`
	TeamID    string    `db:"team_id"`
	Email     string    `db:"email"`
	Role      string    `db:"role"`
	Token     string    `db:"token"`
	InvitedBy string    `db:"invited_by"`
	ExpiresAt time.Time `db:"expires_at"`
	Accepted  bool      `db:"accepted"`
	CreatedAt time.Time `db:"created_at"`
}

type InviteRepository interface {
	Create(ctx context.Context, invite *Invite) error
	Get(ctx context.Context, inviteID string) (*Invite, error)
	GetPending(ctx context.Context, teamID, email string) (*Invite, error)
	ListByTeam(ctx context.Context, teamID string) ([]*Invite, error)
	MarkAccepted(ctx context.Context, inviteID string) error
	Delete(ctx context.Context, inviteID string) error
}

var inviteColumns = []any{"id", "team_id", "email", "role", "token", "invited_by", "expires_at", "accepted", "created_at"}

type pgxInviteRepository struct {
	pool *pgxpool.Pool
}

func NewPgxInviteRepository(pool *pgxpool.Pool) InviteRepository {
	return &pgxInviteRepository{pool: pool}
}

func scanInvite(row pgx.Row) (*Invite, error) {
	i := &Invite{}
	if err := row.Scan(
		&i.ID,
		&i.TeamID,
		&i.Email,
		&i.Role,
		&i.Token,
		&i.InvitedBy,
		&i.ExpiresAt,
		&i.Accepted,
		&i.CreatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return i, nil
}

// Create inserts a pending invite. invites_pending_email_key allows a single
// unaccepted invite per (team, email); the loser of a race gets ErrAlreadyExists.
func (p *pgxInviteRepository) Create(ctx context.Context, invite *Invite) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("invites", "id", "team_id", "email", "role", "token", "invited_by", "expires_at", "created_at"),
		im.Values(
			psql.Arg(invite.ID),
			psql.Arg(invite.TeamID),
			psql.Arg(invite.Email),
			psql.Arg(invite.Role),
			psql.Arg(invite.Token),
			psql.Arg(invite.InvitedBy),
			psql.Arg(invite.ExpiresAt),
			psql.Arg(invite.CreatedAt),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return translate(err)
}

func (p *pgxInviteRepository) Get(ctx context.Context, inviteID string) (*Invite, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(inviteColumns...),
		sm.From("invites"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(inviteID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanInvite(e.QueryRow(ctx, sql, args...))
}

func (p *pgxInviteRepository) GetPending(ctx context.Context, teamID, email string) (*Invite, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(inviteColumns...),
		sm.From("invites"),
		sm.Where(
			psql.Quote("team_id").EQ(psql.Arg(teamID)).
				And(psql.Quote("email").EQ(psql.Arg(email))).
				And(psql.Quote("accepted").EQ(psql.Arg(false))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanInvite(e.QueryRow(ctx, sql, args...))
}

func (p *pgxInviteRepository) ListByTeam(ctx context.Context, teamID string) ([]*Invite, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(inviteColumns...),
		sm.From("invites"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID))),
		sm.OrderBy(psql.Quote("created_at")).Desc(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	invites := make([]*Invite, 0)
	if err = pgxscan.Select(ctx, e, &invites, sql, args...); err != nil {
		return nil, err
	}
	return invites, nil
}

// MarkAccepted flips a pending invite to accepted. An invite that is already
// accepted (or gone) returns ErrNotFound, so two concurrent accepts cannot both win.
func (p *pgxInviteRepository) MarkAccepted(ctx context.Context, inviteID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("invites"),
		um.SetCol("accepted").ToArg(true),
		um.Where(
			psql.Quote("id").EQ(psql.Arg(inviteID)).
				And(psql.Quote("accepted").EQ(psql.Arg(false))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a pending invite. Accepted invites are kept as history, so
// deleting one returns ErrNotFound.
func (p *pgxInviteRepository) Delete(ctx context.Context, inviteID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("invites"),
		dm.Where(
			psql.Quote("id").EQ(psql.Arg(inviteID)).
				And(psql.Quote("accepted").EQ(psql.Arg(false))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
