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
	"github.com/yakoovad/teamsaas/internal/db"
)

type Member struct {
	ID       string    `db:"id"`
	TeamID   string    `db:"team_id"`
	UserID   string    `db:"user_id"`
	Role     string    `db:"role"`
	JoinedAt time.Time `db:"joined_at"`
}

// MemberWithUser is a membership joined with the public fields of its user.
type MemberWithUser struct {
	Member
	UserName   *string `db:"user_name"`
	UserEmail  string  `db:"user_email"`
	UserAvatar *string `db:"user_avatar"`
}

type MemberRepository interface {
	Create(ctx context.Context, member *Member) error
	Get(ctx context.Context, teamID, userID string) (*Member, error)
	GetByEmail(ctx context.Context, teamID, email string) (*Member, error)
	ListByTeams(ctx context.Context, teamIDs ...string) ([]*MemberWithUser, error)
	Delete(ctx context.Context, teamID, userID string) error
}

var memberColumns = []any{"memberships.id", "memberships.team_id", "memberships.user_id", "memberships.role", "memberships.joined_at"}

type pgxMemberRepository struct {
	pool *pgxpool.Pool
}

func NewPgxMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &pgxMemberRepository{pool: pool}
}

func scanMember(row pgx.Row) (*Member, error) {
	m := &Member{}
	if err := row.Scan(&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// Create inserts a membership. Duplicate (team, user) pairs and a second OWNER
// for the same team both come back as ErrAlreadyExists.
func (p *pgxMemberRepository) Create(ctx context.Context, member *Member) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("memberships", "id", "team_id", "user_id", "role"),
		im.Values(psql.Arg(member.ID), psql.Arg(member.TeamID), psql.Arg(member.UserID), psql.Arg(member.Role)),
		im.Returning("joined_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	return translate(e.QueryRow(ctx, sql, args...).Scan(&member.JoinedAt))
}

func (p *pgxMemberRepository) Get(ctx context.Context, teamID, userID string) (*Member, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(memberColumns...),
		sm.From("memberships"),
		sm.Where(
			psql.Quote("memberships", "team_id").EQ(psql.Arg(teamID)).
				And(psql.Quote("memberships", "user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanMember(e.QueryRow(ctx, sql, args...))
}

func (p *pgxMemberRepository) GetByEmail(ctx context.Context, teamID, email string) (*Member, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(memberColumns...),
		sm.From("memberships"),
		sm.InnerJoin("users").On(psql.Quote("users", "id").EQ(psql.Quote("memberships", "user_id"))),
		sm.Where(
			psql.Quote("memberships", "team_id").EQ(psql.Arg(teamID)).
				And(psql.Quote("users", "email").EQ(psql.Arg(email))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanMember(e.QueryRow(ctx, sql, args...))
}

// ListByTeams returns the memberships of all given teams ordered by join time.
func (p *pgxMemberRepository) ListByTeams(ctx context.Context, teamIDs ...string) ([]*MemberWithUser, error) {
	if len(teamIDs) == 0 {
		return []*MemberWithUser{}, nil
	}

	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	ids := make([]any, 0, len(teamIDs))
	for _, id := range teamIDs {
		ids = append(ids, id)
	}

	q := psql.Select(
		sm.Columns(memberColumns...),
		sm.Columns("users.name AS user_name", "users.email AS user_email", "users.avatar AS user_avatar"),
		sm.From("memberships"),
		sm.InnerJoin("users").On(psql.Quote("users", "id").EQ(psql.Quote("memberships", "user_id"))),
		sm.Where(psql.Quote("memberships", "team_id").In(psql.Arg(ids...))),
		sm.OrderBy(psql.Quote("memberships", "joined_at")).Asc(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	members := make([]*MemberWithUser, 0)
	if err = pgxscan.Select(ctx, e, &members, sql, args...); err != nil {
		return nil, err
	}
	return members, nil
}

func (p *pgxMemberRepository) Delete(ctx context.Context, teamID, userID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("memberships"),
		dm.Where(
			psql.Quote("team_id").EQ(psql.Arg(teamID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
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
