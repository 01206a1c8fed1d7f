package api

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yakoovad/teamsaas/internal/model"
	"github.com/yakoovad/teamsaas/internal/service"
	"github.com/yakoovad/teamsaas/pkg/logger"
	"go.uber.org/zap"
)

const userKey = "user"

func ZapLoggerMiddleware(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()

			requestID := res.Header().Get(echo.HeaderXRequestID)

			reqLogger := l.With(
				zap.String("request_id", requestID),
			)

			ctx := logger.WithLogger(req.Context(), reqLogger)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			// auth may have replaced the logger with one carrying user_id
			reqLogger = logger.FromContext(c.Request().Context())

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.Int64("bytes_in", req.ContentLength),
				zap.Int64("bytes_out", res.Size),
			}

			if err != nil {
				fields = append(fields, zap.Error(err))
				reqLogger.Error("request failed", fields...)
			} else {
				reqLogger.Info("request completed", fields...)
			}

			return err
		}
	}
}

// AuthMiddleware accepts "Authorization: Bearer <token>" for a user that still exists.
func AuthMiddleware(users *service.UserService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			unauthorized := service.NewError(service.ErrorCodeUnauthorized, "unauthorized")

			scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				return c.JSON(statusFor(unauthorized.Code), unauthorized)
			}

			ctx := c.Request().Context()
			user, err := users.Authenticate(ctx, strings.TrimSpace(token))
			if err != nil {
				serviceErr := &service.Error{}
				if errors.As(err, &serviceErr) {
					return c.JSON(statusFor(serviceErr.Code), serviceErr)
				}
				return c.JSON(statusFor(unauthorized.Code), unauthorized)
			}

			l := logger.FromContext(ctx).With(zap.String("user_id", user.ID))
			c.SetRequest(c.Request().WithContext(logger.WithLogger(ctx, l)))
			c.Set(userKey, user)

			return next(c)
		}
	}
}

// pathIDErrors is what a malformed path id answers with; such an id cannot name a row.
var pathIDErrors = map[string]*service.Error{
	"id":       service.NewError(service.ErrorCodeNotFound, "team not found"),
	"userId":   service.NewError(service.ErrorCodeNotFound, "member not found"),
	"inviteId": service.NewError(service.ErrorCodeInviteNotFound, "invite not found"),
}

// PathIDMiddleware rejects route ids that are not UUIDs before they reach a query.
func PathIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, name := range c.ParamNames() {
				notFound, ok := pathIDErrors[name]
				if !ok {
					continue
				}
				if _, err := uuid.Parse(c.Param(name)); err != nil {
					logger.FromContext(c.Request().Context()).Warn("malformed path id", zap.String("param", name))
					return c.JSON(statusFor(notFound.Code), notFound)
				}
			}
			return next(c)
		}
	}
}

func currentUser(c echo.Context) *model.User {
	u, _ := c.Get(userKey).(*model.User)
	return u
}
