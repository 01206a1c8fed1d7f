package model

type TeamRole string

const (
	TeamRoleOwner  TeamRole = "OWNER"
	TeamRoleAdmin  TeamRole = "ADMIN"
	TeamRoleMember TeamRole = "MEMBER"
)

// ParseTeamRole accepts only the three known roles.
func ParseTeamRole(s string) (TeamRole, bool) {
	switch r := TeamRole(s); r {
	case TeamRoleOwner, TeamRoleAdmin, TeamRoleMember:
		return r, true
	default:
		return "", false
	}
}

// CanManage reports whether the role may edit the team and its membership.
func (r TeamRole) CanManage() bool {
	switch r {
	case TeamRoleOwner, TeamRoleAdmin:
		return true
	case TeamRoleMember:
		return false
	default:
		return false
	}
}

// Invitable reports whether an invite may carry the role.
func (r TeamRole) Invitable() bool {
	switch r {
	case TeamRoleAdmin, TeamRoleMember:
		return true
	case TeamRoleOwner:
		return false
	default:
		return false
	}
}

// Rank orders roles for listings: owner first.
func (r TeamRole) Rank() int {
	switch r {
	case TeamRoleOwner:
		return 0
	case TeamRoleAdmin:
		return 1
	case TeamRoleMember:
		return 2
	default:
		return 3
	}
}

type UserRole string

const (
	UserRoleUser       UserRole = "USER"
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleSuperAdmin UserRole = "SUPER_ADMIN"
)
