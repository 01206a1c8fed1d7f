package service

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/teamsaas/internal/db"
	"github.com/yakoovad/teamsaas/internal/metrics"
	"github.com/yakoovad/teamsaas/internal/model"
	"github.com/yakoovad/teamsaas/internal/repository"
	"github.com/yakoovad/teamsaas/pkg/logger"
	"go.uber.org/zap"
)

const maxTeamNameLength = 50

type TeamService struct {
	tx db.Transactor

	teams   repository.TeamRepository
	members repository.MemberRepository
}

func NewTeamService(tx db.Transactor) *TeamService {
	return &TeamService{
		tx: tx,
	}
}

func validateTeamName(name string) *Error {
	if n := utf8.RuneCountInString(name); n < 1 || n > maxTeamNameLength {
		return invalid("name must be between 1 and 50 characters")
	}
	return nil
}

// CreateTeam stores the team together with the owner's OWNER membership.
func (t *TeamService) CreateTeam(ctx context.Context, ownerID, name string, description *string) (*model.Team, error) {
	l := logger.FromContext(ctx)
	l.Info("creating team", zap.String("owner_id", ownerID), zap.String("team_name", name))

	if err := validateTeamName(name); err != nil {
		return nil, err
	}

	team := &repository.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Slug:        Slugify(name),
		OwnerID:     ownerID,
	}

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		err := t.teams.Create(txCtx, team)
		if errors.Is(err, repository.ErrAlreadyExists) {
			l.Warn("team already exists", zap.String("owner_id", ownerID), zap.String("team_name", name))
			return NewError(ErrorCodeTeamExists, "a team with this name already exists")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeUnauthorized, "unauthorized")
		}
		if err != nil {
			l.Error("failed to create team", zap.String("team_name", name), zap.Error(err))
			return internal("failed to create team")
		}

		if err = t.members.Create(txCtx, &repository.Member{
			ID:     uuid.NewString(),
			TeamID: team.ID,
			UserID: ownerID,
			Role:   string(model.TeamRoleOwner),
		}); err != nil {
			l.Error("failed to create owner membership", zap.String("team_id", team.ID), zap.Error(err))
			return internal("failed to create team")
		}

		return nil
	})
	metrics.ReportMembershipOperation("create_team", err)
	if err != nil {
		return nil, asError(err)
	}

	l.Debug("team created", zap.String("team_id", team.ID))

	return t.populate(ctx, team)
}

func (t *TeamService) ListTeams(ctx context.Context, requesterID string) ([]*model.Team, error) {
	l := logger.FromContext(ctx)
	l.Debug("listing teams", zap.String("user_id", requesterID))

	teams, err := t.teams.ListByMember(ctx, requesterID)
	if err != nil {
		l.Error("failed to list teams", zap.String("user_id", requesterID), zap.Error(err))
		return nil, internal("failed to list teams")
	}

	res, err := buildTeams(ctx, t.members, teams...)
	if err != nil {
		l.Error("failed to load team members", zap.String("user_id", requesterID), zap.Error(err))
		return nil, internal("failed to list teams")
	}
	return res, nil
}

func (t *TeamService) GetTeam(ctx context.Context, requesterID, teamID string) (*model.Team, error) {
	l := logger.FromContext(ctx)
	l.Debug("getting team", zap.String("team_id", teamID))

	team, err := t.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("team not found", zap.String("team_id", teamID))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
		return nil, internal("failed to get team")
	}

	if _, serr := requireMember(ctx, t.members, teamID, requesterID); serr != nil {
		return nil, serr
	}

	return t.populate(ctx, team)
}

// UpdateTeam applies a partial update. Renaming recomputes the slug and a blank
// description clears it.
func (t *TeamService) UpdateTeam(ctx context.Context, requesterID, teamID string, patch model.TeamPatch) (*model.Team, error) {
	l := logger.FromContext(ctx)
	l.Info("updating team", zap.String("team_id", teamID))

	if patch.Name != nil {
		if err := validateTeamName(*patch.Name); err != nil {
			return nil, err
		}
	}

	if _, err := t.teams.Get(ctx, teamID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewError(ErrorCodeNotFound, "team not found")
		}
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
		return nil, internal("failed to update team")
	}

	if _, serr := requireManager(ctx, t.members, teamID, requesterID); serr != nil {
		return nil, serr
	}

	repoPatch := &repository.TeamPatch{
		ID:          teamID,
		Name:        patch.Name,
		Description: patch.Description,
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		repoPatch.Description = nil
		repoPatch.ClearDescription = true
	}
	if patch.Name != nil {
		slug := Slugify(*patch.Name)
		repoPatch.Slug = &slug
	}

	var updated *repository.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = t.teams.Patch(txCtx, repoPatch)
		if errors.Is(err, repository.ErrAlreadyExists) {
			l.Warn("team rename conflicts", zap.String("team_id", teamID))
			return NewError(ErrorCodeTeamExists, "a team with this name already exists")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			l.Error("failed to patch team", zap.String("team_id", teamID), zap.Error(err))
			return internal("failed to update team")
		}
		return nil
	})
	if err != nil {
		return nil, asError(err)
	}

	return t.populate(ctx, updated)
}

// DeleteTeam is reserved for the owner. A missing team is reported as Forbidden too.
func (t *TeamService) DeleteTeam(ctx context.Context, requesterID, teamID string) error {
	l := logger.FromContext(ctx)
	l.Info("deleting team", zap.String("team_id", teamID))

	team, err := t.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && team.OwnerID != requesterID) {
		l.Warn("team delete denied", zap.String("team_id", teamID), zap.String("user_id", requesterID))
		return forbidden()
	}
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
		return internal("failed to delete team")
	}

	err = t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := t.teams.Delete(txCtx, teamID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			l.Error("failed to delete team", zap.String("team_id", teamID), zap.Error(err))
			return internal("failed to delete team")
		}
		return nil
	})
	metrics.ReportMembershipOperation("delete_team", err)
	return asError(err)
}

func (t *TeamService) populate(ctx context.Context, team *repository.Team) (*model.Team, error) {
	res, err := buildTeams(ctx, t.members, team)
	if err != nil {
		logger.FromContext(ctx).Error("failed to load team members", zap.String("team_id", team.ID), zap.Error(err))
		return nil, internal("failed to load team")
	}
	return res[0], nil
}

func (t *TeamService) WithTeamRepo(r repository.TeamRepository) *TeamService {
	t.teams = r
	return t
}

func (t *TeamService) WithMemberRepo(r repository.MemberRepository) *TeamService {
	t.members = r
	return t
}

// buildTeams attaches owner, ordered members and member count to each team.
func buildTeams(ctx context.Context, members repository.MemberRepository, teams ...*repository.Team) ([]*model.Team, error) {
	ids := make([]string, 0, len(teams))
	for _, team := range teams {
		ids = append(ids, team.ID)
	}

	rows, err := members.ListByTeams(ctx, ids...)
	if err != nil {
		return nil, err
	}

	byTeam := make(map[string][]*model.Member, len(teams))
	for _, row := range rows {
		byTeam[row.TeamID] = append(byTeam[row.TeamID], toModelMember(row))
	}

	res := make([]*model.Team, 0, len(teams))
	for _, team := range teams {
		list := byTeam[team.ID]
		sortMembers(list)
		if list == nil {
			list = []*model.Member{}
		}

		m := &model.Team{
			ID:          team.ID,
			Name:        team.Name,
			Description: team.Description,
			Slug:        team.Slug,
			OwnerID:     team.OwnerID,
			Members:     list,
			MemberCount: len(list),
			CreatedAt:   team.CreatedAt,
			UpdatedAt:   team.UpdatedAt,
		}
		for _, member := range list {
			if member.UserID == team.OwnerID {
				m.Owner = member.User
				break
			}
		}
		res = append(res, m)
	}
	return res, nil
}

// sortMembers orders by role (OWNER, ADMIN, MEMBER) keeping join order within a role.
func sortMembers(list []*model.Member) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Role.Rank() < list[j].Role.Rank()
	})
}

func toModelMember(row *repository.MemberWithUser) *model.Member {
	return &model.Member{
		ID:       row.ID,
		TeamID:   row.TeamID,
		UserID:   row.UserID,
		Role:     model.TeamRole(row.Role),
		JoinedAt: row.JoinedAt,
		User: &model.UserSummary{
			ID:     row.UserID,
			Name:   row.UserName,
			Email:  row.UserEmail,
			Avatar: row.UserAvatar,
		},
	}
}

func toModelInvite(i *repository.Invite) *model.Invite {
	return &model.Invite{
		ID:        i.ID,
		TeamID:    i.TeamID,
		Email:     i.Email,
		Role:      model.TeamRole(i.Role),
		Token:     i.Token,
		InvitedBy: i.InvitedBy,
		ExpiresAt: i.ExpiresAt,
		Accepted:  i.Accepted,
		CreatedAt: i.CreatedAt,
	}
}

// requireMember returns the requester's membership or Forbidden.
func requireMember(ctx context.Context, members repository.MemberRepository, teamID, userID string) (*repository.Member, *Error) {
	m, err := members.Get(ctx, teamID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		logger.FromContext(ctx).Warn("requester is not a team member", zap.String("team_id", teamID), zap.String("user_id", userID))
		return nil, forbidden()
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get membership", zap.String("team_id", teamID), zap.Error(err))
		return nil, internal("failed to check membership")
	}
	return m, nil
}

// requireManager is requireMember restricted to roles that may manage the team.
func requireManager(ctx context.Context, members repository.MemberRepository, teamID, userID string) (*repository.Member, *Error) {
	m, serr := requireMember(ctx, members, teamID, userID)
	if serr != nil {
		return nil, serr
	}
	if !model.TeamRole(m.Role).CanManage() {
		logger.FromContext(ctx).Warn("requester cannot manage team",
			zap.String("team_id", teamID),
			zap.String("user_id", userID),
			zap.String("role", m.Role))
		return nil, forbidden()
	}
	return m, nil
}
