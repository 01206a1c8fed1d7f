package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yakoovad/teamsaas/internal/repository"
)

// memStore mimics the relational constraints the services rely on: unique
// emails, unique team names per owner, one membership per (team, user), one
// owner per team and one pending invite per (team, email).
type memStore struct {
	mu      sync.Mutex
	seq     int
	users   map[string]*repository.User
	teams   map[string]*repository.Team
	members map[string]*repository.Member
	invites map[string]*repository.Invite
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]*repository.User{},
		teams:   map[string]*repository.Team{},
		members: map[string]*repository.Member{},
		invites: map[string]*repository.Invite{},
	}
}

type memTransactor struct{}

func (memTransactor) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type memUsers struct{ s *memStore }
type memTeams struct{ s *memStore }
type memMembers struct{ s *memStore }
type memInvites struct{ s *memStore }

func (r memUsers) Create(_ context.Context, user *repository.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrAlreadyExists
		}
	}
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r memUsers) Get(_ context.Context, userID string) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) Patch(_ context.Context, patch *repository.UserPatch) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[patch.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Name != nil {
		u.Name = patch.Name
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) Delete(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, userID)
	return nil
}

func (r memTeams) Create(_ context.Context, team *repository.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.teams {
		if t.OwnerID == team.OwnerID && strings.EqualFold(t.Name, team.Name) {
			return repository.ErrAlreadyExists
		}
	}
	cp := *team
	r.s.teams[team.ID] = &cp
	return nil
}

func (r memTeams) Get(_ context.Context, teamID string) (*repository.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTeams) ListByMember(_ context.Context, userID string) ([]*repository.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res := make([]*repository.Team, 0)
	for _, m := range r.s.members {
		if m.UserID == userID {
			cp := *r.s.teams[m.TeamID]
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r memTeams) Patch(_ context.Context, patch *repository.TeamPatch) (*repository.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[patch.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Name != nil {
		for _, other := range r.s.teams {
			if other.ID != t.ID && other.OwnerID == t.OwnerID && strings.EqualFold(other.Name, *patch.Name) {
				return nil, repository.ErrAlreadyExists
			}
		}
		t.Name = *patch.Name
	}
	if patch.Slug != nil {
		t.Slug = *patch.Slug
	}
	switch {
	case patch.ClearDescription:
		t.Description = nil
	case patch.Description != nil:
		t.Description = patch.Description
	}
	cp := *t
	return &cp, nil
}

func (r memTeams) Delete(_ context.Context, teamID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.teams[teamID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.teams, teamID)
	for id, m := range r.s.members {
		if m.TeamID == teamID {
			delete(r.s.members, id)
		}
	}
	for id, i := range r.s.invites {
		if i.TeamID == teamID {
			delete(r.s.invites, id)
		}
	}
	return nil
}

func (r memMembers) Create(_ context.Context, member *repository.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.members {
		if m.TeamID != member.TeamID {
			continue
		}
		if m.UserID == member.UserID || (m.Role == "OWNER" && member.Role == "OWNER") {
			return repository.ErrAlreadyExists
		}
	}
	r.s.seq++
	member.JoinedAt = joined.Add(time.Duration(r.s.seq) * time.Second)
	cp := *member
	r.s.members[member.ID] = &cp
	return nil
}

func (r memMembers) Get(_ context.Context, teamID, userID string) (*repository.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.members {
		if m.TeamID == teamID && m.UserID == userID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memMembers) GetByEmail(_ context.Context, teamID, email string) (*repository.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.members {
		if u, ok := r.s.users[m.UserID]; ok && m.TeamID == teamID && u.Email == email {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memMembers) ListByTeams(_ context.Context, teamIDs ...string) ([]*repository.MemberWithUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range teamIDs {
		wanted[id] = true
	}
	res := make([]*repository.MemberWithUser, 0)
	for _, m := range r.s.members {
		if !wanted[m.TeamID] {
			continue
		}
		u := r.s.users[m.UserID]
		res = append(res, &repository.MemberWithUser{
			Member:     *m,
			UserName:   u.Name,
			UserEmail:  u.Email,
			UserAvatar: u.Avatar,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].JoinedAt.Before(res[j].JoinedAt) })
	return res, nil
}

func (r memMembers) Delete(_ context.Context, teamID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, m := range r.s.members {
		if m.TeamID == teamID && m.UserID == userID {
			delete(r.s.members, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r memInvites) Create(_ context.Context, invite *repository.Invite) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.invites {
		if i.TeamID == invite.TeamID && i.Email == invite.Email && !i.Accepted {
			return repository.ErrAlreadyExists
		}
	}
	cp := *invite
	r.s.invites[invite.ID] = &cp
	return nil
}

func (r memInvites) Get(_ context.Context, inviteID string) (*repository.Invite, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.invites[inviteID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (r memInvites) GetPending(_ context.Context, teamID, email string) (*repository.Invite, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.invites {
		if i.TeamID == teamID && i.Email == email && !i.Accepted {
			cp := *i
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memInvites) ListByTeam(_ context.Context, teamID string) ([]*repository.Invite, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res := make([]*repository.Invite, 0)
	for _, i := range r.s.invites {
		if i.TeamID == teamID {
			cp := *i
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(a, b int) bool { return res[a].CreatedAt.After(res[b].CreatedAt) })
	return res, nil
}

func (r memInvites) MarkAccepted(_ context.Context, inviteID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.invites[inviteID]
	if !ok || i.Accepted {
		return repository.ErrNotFound
	}
	i.Accepted = true
	return nil
}

func (r memInvites) Delete(_ context.Context, inviteID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.invites[inviteID]
	if !ok || i.Accepted {
		return repository.ErrNotFound
	}
	delete(r.s.invites, inviteID)
	return nil
}

func (s *memStore) inviteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invites)
}

func (s *memStore) ownerCount(teamID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.members {
		if m.TeamID == teamID && m.Role == "OWNER" {
			n++
		}
	}
	return n
}
