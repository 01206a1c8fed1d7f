package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/teamsaas/internal/db"
	"github.com/yakoovad/teamsaas/internal/metrics"
	"github.com/yakoovad/teamsaas/internal/model"
	"github.com/yakoovad/teamsaas/internal/repository"
	"github.com/yakoovad/teamsaas/pkg/logger"
	"go.uber.org/zap"
)

// InviteTTL is how long an invite can be accepted after it was created.
const InviteTTL = 7 * 24 * time.Hour

const inviteTokenBytes = 32

// Notifier receives membership changes once they are committed.
type Notifier interface {
	InviteCreated(ctx context.Context, invite *model.Invite) error
	MemberAdded(ctx context.Context, member *model.Member) error
}

type InviteService struct {
	tx db.Transactor

	users    repository.UserRepository
	teams    repository.TeamRepository
	members  repository.MemberRepository
	invites  repository.InviteRepository
	notifier Notifier

	now func() time.Time
}

func NewInviteService(tx db.Transactor) *InviteService {
	return &InviteService{
		tx:  tx,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func newInviteToken() (string, error) {
	b := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// InviteMember adds an existing user straight to the team, or records a pending
// invite for an unknown email. An empty role means MEMBER.
func (s *InviteService) InviteMember(ctx context.Context, requesterID, teamID, email string, role model.TeamRole) (*model.InviteResult, error) {
	l := logger.FromContext(ctx).With(zap.String("team_id", teamID))
	l.Info("inviting member", zap.String("role", string(role)))

	if role == "" {
		role = model.TeamRoleMember
	}
	if !role.Invitable() {
		return nil, invalid("role must be ADMIN or MEMBER")
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, invalid("email is required")
	}

	if _, err := s.teams.Get(ctx, teamID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewError(ErrorCodeNotFound, "team not found")
		}
		l.Error("failed to get team", zap.Error(err))
		return nil, internal("failed to invite member")
	}

	if _, serr := requireManager(ctx, s.members, teamID, requesterID); serr != nil {
		return nil, serr
	}

	var res *model.InviteResult
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		_, err := s.members.GetByEmail(txCtx, teamID, email)
		if err == nil {
			l.Warn("email already belongs to a member")
			return NewError(ErrorCodeAlreadyMember, "user is already a member of this team")
		}
		if !errors.Is(err, repository.ErrNotFound) {
			l.Error("failed to check membership", zap.Error(err))
			return internal("failed to invite member")
		}

		pending, err := s.invites.GetPending(txCtx, teamID, email)
		switch {
		case err == nil && !s.now().After(pending.ExpiresAt):
			l.Warn("pending invite already exists")
			return NewError(ErrorCodeAlreadyInvited, "an invite for this email is already pending")
		case err == nil:
			// expired invites can never be accepted, so they do not block a new one
			l.Info("replacing expired invite", zap.String("invite_id", pending.ID))
			if err = s.invites.Delete(txCtx, pending.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				l.Error("failed to delete expired invite", zap.Error(err))
				return internal("failed to invite member")
			}
		case !errors.Is(err, repository.ErrNotFound):
			l.Error("failed to check pending invites", zap.Error(err))
			return internal("failed to invite member")
		}

		user, err := s.users.GetByEmail(txCtx, email)
		switch {
		case err == nil:
			res, err = s.addExisting(txCtx, teamID, user.ID, role)
			return err
		case errors.Is(err, repository.ErrNotFound):
			res, err = s.createInvite(txCtx, requesterID, teamID, email, role)
			return err
		default:
			l.Error("failed to look up invitee", zap.Error(err))
			return internal("failed to invite member")
		}
	})
	metrics.ReportMembershipOperation("invite_member", err)
	if err != nil {
		return nil, asError(err)
	}

	s.notify(ctx, res)
	return res, nil
}

func (s *InviteService) addExisting(ctx context.Context, teamID, userID string, role model.TeamRole) (*model.InviteResult, error) {
	member := &repository.Member{
		ID:     uuid.NewString(),
		TeamID: teamID,
		UserID: userID,
		Role:   string(role),
	}
	err := s.members.Create(ctx, member)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return nil, NewError(ErrorCodeAlreadyMember, "user is already a member of this team")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to add member", zap.String("team_id", teamID), zap.Error(err))
		return nil, internal("failed to invite member")
	}

	return &model.InviteResult{
		Outcome: model.InviteOutcomeAdded,
		Member: &model.Member{
			ID:       member.ID,
			TeamID:   member.TeamID,
			UserID:   member.UserID,
			Role:     role,
			JoinedAt: member.JoinedAt,
		},
	}, nil
}

func (s *InviteService) createInvite(ctx context.Context, requesterID, teamID, email string, role model.TeamRole) (*model.InviteResult, error) {
	token, err := newInviteToken()
	if err != nil {
		logger.FromContext(ctx).Error("failed to generate invite token", zap.Error(err))
		return nil, internal("failed to invite member")
	}

	now := s.now()
	invite := &repository.Invite{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		Email:     email,
		Role:      string(role),
		Token:     token,
		InvitedBy: requesterID,
		ExpiresAt: now.Add(InviteTTL),
		CreatedAt: now,
	}
	err = s.invites.Create(ctx, invite)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return nil, NewError(ErrorCodeAlreadyInvited, "an invite for this email is already pending")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to create invite", zap.String("team_id", teamID), zap.Error(err))
		return nil, internal("failed to invite member")
	}

	return &model.InviteResult{
		Outcome: model.InviteOutcomeInvited,
		Invite:  toModelInvite(invite),
	}, nil
}

// AcceptInvite consumes the invite and creates the membership in one transaction.
// A missing invite, one for another team or email, and one already accepted are
// indistinguishable to the caller.
func (s *InviteService) AcceptInvite(ctx context.Context, userID, teamID, inviteID string) (*model.Team, error) {
	l := logger.FromContext(ctx).With(zap.String("team_id", teamID), zap.String("invite_id", inviteID))
	l.Info("accepting invite")

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeUnauthorized, "unauthorized")
	}
	if err != nil {
		l.Error("failed to get user", zap.Error(err))
		return nil, internal("failed to accept invite")
	}

	notFound := NewError(ErrorCodeInviteNotFound, "invite not found")

	invite, err := s.invites.Get(ctx, inviteID)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("invite not found")
		return nil, notFound
	}
	if err != nil {
		l.Error("failed to get invite", zap.Error(err))
		return nil, internal("failed to accept invite")
	}
	if invite.TeamID != teamID || !strings.EqualFold(invite.Email, user.Email) || invite.Accepted {
		l.Warn("invite does not match requester")
		return nil, notFound
	}
	if s.now().After(invite.ExpiresAt) {
		l.Warn("invite expired", zap.Time("expires_at", invite.ExpiresAt))
		return nil, NewError(ErrorCodeInviteExpired, "invite has expired")
	}

	_, err = s.members.Get(ctx, teamID, userID)
	if err == nil {
		return nil, NewError(ErrorCodeAlreadyMember, "user is already a member of this team")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		l.Error("failed to check membership", zap.Error(err))
		return nil, internal("failed to accept invite")
	}

	member := &repository.Member{
		ID:     uuid.NewString(),
		TeamID: teamID,
		UserID: userID,
		Role:   invite.Role,
	}
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		err := s.invites.MarkAccepted(txCtx, inviteID)
		if errors.Is(err, repository.ErrNotFound) {
			l.Warn("invite consumed concurrently")
			return notFound
		}
		if err != nil {
			l.Error("failed to mark invite accepted", zap.Error(err))
			return internal("failed to accept invite")
		}

		err = s.members.Create(txCtx, member)
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeAlreadyMember, "user is already a member of this team")
		}
		if err != nil {
			l.Error("failed to create membership", zap.Error(err))
			return internal("failed to accept invite")
		}
		return nil
	})
	metrics.ReportMembershipOperation("accept_invite", err)
	if err != nil {
		return nil, asError(err)
	}

	s.notify(ctx, &model.InviteResult{
		Outcome: model.InviteOutcomeAdded,
		Member: &model.Member{
			ID:       member.ID,
			TeamID:   teamID,
			UserID:   userID,
			Role:     model.TeamRole(member.Role),
			JoinedAt: member.JoinedAt,
		},
	})

	team, err := s.teams.Get(ctx, teamID)
	if err != nil {
		l.Error("failed to load team", zap.Error(err))
		return nil, internal("failed to load team")
	}
	res, err := buildTeams(ctx, s.members, team)
	if err != nil {
		l.Error("failed to load team members", zap.Error(err))
		return nil, internal("failed to load team")
	}
	return res[0], nil
}

// RemoveMember deletes a non-owner membership.
func (s *InviteService) RemoveMember(ctx context.Context, requesterID, teamID, targetUserID string) error {
	l := logger.FromContext(ctx).With(zap.String("team_id", teamID), zap.String("target_user_id", targetUserID))
	l.Info("removing member")

	if _, serr := requireManager(ctx, s.members, teamID, requesterID); serr != nil {
		return serr
	}

	team, err := s.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to get team", zap.Error(err))
		return internal("failed to remove member")
	}
	if targetUserID == team.OwnerID {
		l.Warn("attempt to remove team owner")
		return NewError(ErrorCodeCannotRemoveOwner, "the team owner cannot be removed")
	}

	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		err := s.members.Delete(txCtx, teamID, targetUserID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "member not found")
		}
		if err != nil {
			l.Error("failed to delete membership", zap.Error(err))
			return internal("failed to remove member")
		}
		return nil
	})
	metrics.ReportMembershipOperation("remove_member", err)
	return asError(err)
}

func (s *InviteService) ListMembers(ctx context.Context, requesterID, teamID string) ([]*model.Member, error) {
	if _, serr := requireMember(ctx, s.members, teamID, requesterID); serr != nil {
		return nil, serr
	}

	rows, err := s.members.ListByTeams(ctx, teamID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list members", zap.String("team_id", teamID), zap.Error(err))
		return nil, internal("failed to list members")
	}

	res := make([]*model.Member, 0, len(rows))
	for _, row := range rows {
		res = append(res, toModelMember(row))
	}
	sortMembers(res)
	return res, nil
}

func (s *InviteService) ListInvites(ctx context.Context, requesterID, teamID string) ([]*model.Invite, error) {
	if _, serr := requireMember(ctx, s.members, teamID, requesterID); serr != nil {
		return nil, serr
	}

	rows, err := s.invites.ListByTeam(ctx, teamID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list invites", zap.String("team_id", teamID), zap.Error(err))
		return nil, internal("failed to list invites")
	}

	res := make([]*model.Invite, 0, len(rows))
	for _, row := range rows {
		res = append(res, toModelInvite(row))
	}
	return res, nil
}

// notify is best effort: the change is already committed.
func (s *InviteService) notify(ctx context.Context, res *model.InviteResult) {
	if s.notifier == nil || res == nil {
		return
	}

	var err error
	switch res.Outcome {
	case model.InviteOutcomeInvited:
		err = s.notifier.InviteCreated(ctx, res.Invite)
	case model.InviteOutcomeAdded:
		err = s.notifier.MemberAdded(ctx, res.Member)
	}
	if err != nil {
		logger.FromContext(ctx).Warn("failed to publish membership notification",
			zap.String("outcome", string(res.Outcome)),
			zap.Error(err))
	}
}

func (s *InviteService) WithUserRepo(r repository.UserRepository) *InviteService {
	s.users = r
	return s
}

func (s *InviteService) WithTeamRepo(r repository.TeamRepository) *InviteService {
	s.teams = r
	return s
}

func (s *InviteService) WithMemberRepo(r repository.MemberRepository) *InviteService {
	s.members = r
	return s
}

func (s *InviteService) WithInviteRepo(r repository.InviteRepository) *InviteService {
	s.invites = r
	return s
}

func (s *InviteService) WithNotifier(n Notifier) *InviteService {
	s.notifier = n
	return s
}

func (s *InviteService) WithClock(now func() time.Time) *InviteService {
	s.now = now
	return s
}
