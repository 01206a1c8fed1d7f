package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/yakoovad/teamsaas/internal/model"
)

const (
	SubjectInviteCreated = "invite.created"
	SubjectMemberAdded   = "member.added"
)

// InviteCreated is published when an invite row is stored. The token is not part of it.
type InviteCreated struct {
	InviteID  string         `json:"inviteId"`
	TeamID    string         `json:"teamId"`
	Email     string         `json:"email"`
	Role      model.TeamRole `json:"role"`
	InvitedBy string         `json:"invitedBy"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

type MemberAdded struct {
	TeamID   string         `json:"teamId"`
	UserID   string         `json:"userId"`
	Role     model.TeamRole `json:"role"`
	JoinedAt time.Time      `json:"joinedAt"`
}

type publisher interface {
	Publish(subj string, data []byte) error
}

// Publisher sends membership notifications to NATS subjects under a common prefix.
type Publisher struct {
	conn   publisher
	prefix string
}

func Connect(url, prefix string, opts ...nats.Option) (*Publisher, *nats.Conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to nats")
	}
	return NewPublisher(nc, prefix), nc, nil
}

func NewPublisher(conn publisher, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: prefix}
}

func (p *Publisher) InviteCreated(_ context.Context, invite *model.Invite) error {
	return p.publish(SubjectInviteCreated, &InviteCreated{
		InviteID:  invite.ID,
		TeamID:    invite.TeamID,
		Email:     invite.Email,
		Role:      invite.Role,
		InvitedBy: invite.InvitedBy,
		ExpiresAt: invite.ExpiresAt,
	})
}

func (p *Publisher) MemberAdded(_ context.Context, member *model.Member) error {
	return p.publish(SubjectMemberAdded, &MemberAdded{
		TeamID:   member.TeamID,
		UserID:   member.UserID,
		Role:     member.Role,
		JoinedAt: member.JoinedAt,
	})
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.prefix != "" {
		subject = p.prefix + "." + subject
	}
	return errors.Wrapf(p.conn.Publish(subject, data), "publish %s", subject)
}

// Noop drops every notification. Used when NATS_URL is not configured.
type Noop struct{}

func (Noop) InviteCreated(context.Context, *model.Invite) error { return nil }
func (Noop) MemberAdded(context.Context, *model.Member) error   { return nil }
