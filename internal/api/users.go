package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/teamsaas/pkg/logger"
	"go.uber.org/zap"
)

func (h *Handler) Register(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8,max=72"`
		Name     string `json:"name" validate:"required,min=1"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Error(err))
		return h.transportError(e, err)
	}

	res, err := h.user.Register(e.Request().Context(), req.Email, req.Password, req.Name)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, res)
}

func (h *Handler) Login(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Error(err))
		return h.transportError(e, err)
	}

	res, err := h.user.Login(e.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, res)
}

func (h *Handler) Me(e echo.Context) error {
	user, err := h.user.Me(e.Request().Context(), currentUser(e).ID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateProfile(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Name  *string `json:"name" validate:"omitempty,min=1"`
		Email *string `json:"email" validate:"omitempty,email"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Error(err))
		return h.transportError(e, err)
	}

	user, err := h.user.UpdateProfile(e.Request().Context(), currentUser(e).ID, req.Name, req.Email)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, user)
}

func (h *Handler) ChangePassword(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Error(err))
		return h.transportError(e, err)
	}

	if err := h.user.ChangePassword(e.Request().Context(), currentUser(e).ID, req.CurrentPassword, req.NewPassword); err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *Handler) DeleteAccount(e echo.Context) error {
	if err := h.user.DeleteAccount(e.Request().Context(), currentUser(e).ID); err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"message": "account deleted"})
}
