package api

import (
	"github.com/labstack/echo/v4"
	"github.com/yakoovad/teamsaas/internal/service"
)

func ProcessRequest[T any](e echo.Context, req *T, steps ...func(echo.Context, *T) error) error {
	for _, step := range steps {
		if err := step(e, req); err != nil {
			return err
		}
	}
	return nil
}

func bindBody(e echo.Context, req *any) error {
	if err := e.Bind(*req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}
	return nil
}

func validateBody(e echo.Context, req *any) error {
	if err := e.Validate(*req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "validation failed").WithDetails(firstViolation(err))
	}
	return nil
}
