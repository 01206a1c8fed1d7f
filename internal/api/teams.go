package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/teamsaas/internal/model"
	"github.com/yakoovad/teamsaas/pkg/logger"
	"go.uber.org/zap"
)

func (h *Handler) CreateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Name        string  `json:"name" validate:"required,min=1,max=50"`
		Description *string `json:"description" validate:"omitempty,max=500"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Error(err))
		return h.transportError(e, err)
	}

	team, err := h.team.CreateTeam(e.Request().Context(), currentUser(e).ID, req.Name, req.Description)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, team)
}

func (h *Handler) ListTeams(e echo.Context) error {
	teams, err := h.team.ListTeams(e.Request().Context(), currentUser(e).ID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, teams)
}

func (h *Handler) GetTeam(e echo.Context) error {
	team, err := h.team.GetTeam(e.Request().Context(), currentUser(e).ID, e.Param("id"))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) UpdateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Name        *string `json:"name" validate:"omitempty,min=1,max=50"`
		Description *string `json:"description" validate:"omitempty,max=500"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Error(err))
		return h.transportError(e, err)
	}

	team, err := h.team.UpdateTeam(e.Request().Context(), currentUser(e).ID, e.Param("id"), model.TeamPatch{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) DeleteTeam(e echo.Context) error {
	if err := h.team.DeleteTeam(e.Request().Context(), currentUser(e).ID, e.Param("id")); err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"message": "team deleted"})
}

func (h *Handler) ListMembers(e echo.Context) error {
	members, err := h.invite.ListMembers(e.Request().Context(), currentUser(e).ID, e.Param("id"))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, members)
}

func (h *Handler) InviteMember(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Email string `json:"email" validate:"required,email"`
		Role  string `json:"role" validate:"omitempty,oneof=ADMIN MEMBER"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Error(err))
		return h.transportError(e, err)
	}

	res, err := h.invite.InviteMember(e.Request().Context(), currentUser(e).ID, e.Param("id"), req.Email, model.TeamRole(req.Role))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, res)
}

func (h *Handler) RemoveMember(e echo.Context) error {
	if err := h.invite.RemoveMember(e.Request().Context(), currentUser(e).ID, e.Param("id"), e.Param("userId")); err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"message": "member removed"})
}

func (h *Handler) ListInvites(e echo.Context) error {
	invites, err := h.invite.ListInvites(e.Request().Context(), currentUser(e).ID, e.Param("id"))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, invites)
}

func (h *Handler) AcceptInvite(e echo.Context) error {
	team, err := h.invite.AcceptInvite(e.Request().Context(), currentUser(e).ID, e.Param("id"), e.Param("inviteId"))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}
