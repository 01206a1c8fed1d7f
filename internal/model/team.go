package model

import "time"

type Team struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Slug        string       `json:"slug"`
	OwnerID     string       `json:"ownerId"`
	Owner       *UserSummary `json:"owner,omitempty"`
	Members     []*Member    `json:"members"`
	MemberCount int          `json:"memberCount"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type TeamPatch struct {
	Name        *string
	Description *string
}

type Member struct {
	ID       string       `json:"id"`
	TeamID   string       `json:"teamId"`
	UserID   string       `json:"userId"`
	Role     TeamRole     `json:"role"`
	JoinedAt time.Time    `json:"joinedAt"`
	User     *UserSummary `json:"user,omitempty"`
}

// Invite never serializes its token.
type Invite struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	Email     string    `json:"email"`
	Role      TeamRole  `json:"role"`
	Token     string    `json:"-"`
	InvitedBy string    `json:"invitedBy"`
	ExpiresAt time.Time `json:"expiresAt"`
	Accepted  bool      `json:"accepted"`
	CreatedAt time.Time `json:"createdAt"`
}

type InviteOutcome string

const (
	// InviteOutcomeAdded means an existing user was made a member directly.
	InviteOutcomeAdded   InviteOutcome = "added"
	InviteOutcomeInvited InviteOutcome = "invited"
)

type InviteResult struct {
	Outcome InviteOutcome `json:"outcome"`
	Member  *Member       `json:"member,omitempty"`
	Invite  *Invite       `json:"invite,omitempty"`
}
