package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/account-service/internal/core/domain"
)

// ctxClaims extracts the claims injected by the Auth middleware. A missing
// subject or role means the middleware did not run, which is rejected as 401.
func ctxClaims(c echo.Context) (accountID string, role domain.Role, err error) {
	accountID, _ = c.Get("account_id").(string)
	r, _ := c.Get("role").(string)
	if accountID == "" || r == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return accountID, domain.Role(r), nil
}

var errForbidden = echo.NewHTTPError(http.StatusForbidden, "forbidden")
