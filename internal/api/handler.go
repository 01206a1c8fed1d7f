package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/yakoovad/teamsaas/internal/service"
	"go.uber.org/zap"
)

type Handler struct {
	team    *service.TeamService
	invite  *service.InviteService
	user    *service.UserService
	billing *service.BillingService

	healthChecker  HealthChecker
	metrics        http.Handler
	webhookSecret  string
	allowedOrigins []string

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithTeamService(team *service.TeamService) *Handler {
	h.team = team
	return h
}

func (h *Handler) WithInviteService(invite *service.InviteService) *Handler {
	h.invite = invite
	return h
}

func (h *Handler) WithUserService(user *service.UserService) *Handler {
	h.user = user
	return h
}

func (h *Handler) WithBillingService(billing *service.BillingService, webhookSecret string) *Handler {
	h.billing = billing
	h.webhookSecret = webhookSecret
	return h
}

func (h *Handler) WithMetricsHandler(m http.Handler) *Handler {
	h.metrics = m
	return h
}

func (h *Handler) WithAllowedOrigins(origins []string) *Handler {
	h.allowedOrigins = origins
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	if len(h.allowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: h.allowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}

	e.POST("/auth/register", h.Register)
	e.POST("/auth/login", h.Login)
	e.POST("/stripe/webhook", h.StripeWebhook)

	secured := e.Group("", AuthMiddleware(h.user))

	secured.GET("/auth/me", h.Me)
	secured.GET("/users/me", h.Me)
	secured.PATCH("/users/me", h.UpdateProfile)
	secured.PUT("/users/me", h.ChangePassword)
	secured.DELETE("/users/me", h.DeleteAccount)

	secured.POST("/teams", h.CreateTeam)
	secured.GET("/teams", h.ListTeams)
	ids := PathIDMiddleware()
	secured.GET("/teams/:id", h.GetTeam, ids)
	secured.PATCH("/teams/:id", h.UpdateTeam, ids)
	secured.DELETE("/teams/:id", h.DeleteTeam, ids)
	secured.GET("/teams/:id/members", h.ListMembers, ids)
	secured.POST("/teams/:id/members", h.InviteMember, ids)
	secured.DELETE("/teams/:id/members/:userId", h.RemoveMember, ids)
	secured.GET("/teams/:id/invites", h.ListInvites, ids)
	secured.POST("/teams/:id/invites/:inviteId", h.AcceptInvite, ids)

	secured.POST("/stripe/checkout", h.CreateCheckout)
	secured.GET("/billing/subscriptions", h.ListSubscriptions)
	secured.GET("/billing/invoices", h.ListInvoices)
}

func (h *Handler) decodeRequest(e echo.Context, req any) error {
	return ProcessRequest(e, &req, bindBody, validateBody)
}

func statusFor(code service.ErrorCode) int {
	switch code {
	case service.ErrorCodeInvalidBody, service.ErrorCodeCannotRemoveOwner, service.ErrorCodeInvalidPassword:
		return http.StatusBadRequest
	case service.ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case service.ErrorCodeForbidden:
		return http.StatusForbidden
	case service.ErrorCodeNotFound, service.ErrorCodeInviteNotFound:
		return http.StatusNotFound
	case service.ErrorCodeTeamExists, service.ErrorCodeAlreadyMember, service.ErrorCodeAlreadyInvited, service.ErrorCodeEmailTaken:
		return http.StatusConflict
	case service.ErrorCodeInviteExpired:
		return http.StatusGone
	case service.ErrorCodeBillingDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) transportError(e echo.Context, err error) error {
	serviceErr := &service.Error{}
	if !errors.As(err, &serviceErr) {
		serviceErr = service.NewError(service.ErrorCodeUnspecified, "internal error")
	}
	return e.JSON(statusFor(serviceErr.Code), serviceErr)
}
