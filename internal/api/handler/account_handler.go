package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/account-service/internal/core/domain"
	"github.com/99minutos/account-service/internal/core/ports"
)

// AccountHandler serves the /users resource.
type AccountHandler struct {
	accounts ports.AccountService
}

func NewAccountHandler(accounts ports.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// List handles GET /users.
//
// @Summary      List accounts
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        skip   query     int  false  "Accounts to skip"
// @Param        limit  query     int  false  "Page size"
// @Success      200    {object}  listAccountsResponse
// @Failure      400    {object}  map[string]string
// @Failure      403    {object}  map[string]string
// @Router       /users [get]
func (h *AccountHandler) List(c echo.Context) error {
	var skip, limit int
	if err := echo.QueryParamsBinder(c).
		Int("skip", &skip).
		Int("limit", &limit).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "skip and limit must be integers")
	}

	page, err := h.accounts.List(c.Request().Context(), skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toListResponse(page))
}

// Create handles POST /users. Only administrators may choose a role other
// than the default.
//
// @Summary      Create an account
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createAccountRequest  true  "Account details"
// @Success      201   {object}  createAccountResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /users [post]
func (h *AccountHandler) Create(c echo.Context) error {
	_, callerRole, err := ctxClaims(c)
	if err != nil {
		return err
	}

	var req createAccountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	role := domain.Role(req.Role)
	if role != "" && role != domain.RoleAuthenticated && callerRole != domain.RoleAdmin {
		return errForbidden
	}

	result, err := h.accounts.Create(c.Request().Context(), req.toInput(role))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createAccountResponse{
		Account:  toAccountResponse(result.Account),
		Warnings: result.Warnings,
	})
}

// Lookup handles GET /users/lookup?nickname= or ?email=.
//
// @Summary      Find an account by nickname or email
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        nickname  query     string  false  "Nickname"
// @Param        email     query     string  false  "Email"
// @Success      200       {object}  accountResponse
// @Failure      400       {object}  map[string]string
// @Failure      404       {object}  map[string]string
// @Router       /users/lookup [get]
func (h *AccountHandler) Lookup(c echo.Context) error {
	nickname := c.QueryParam("nickname")
	email := c.QueryParam("email")

	var (
		account *domain.Account
		err     error
	)
	switch {
	case nickname != "" && email == "":
		account, err = h.accounts.GetByNickname(c.Request().Context(), nickname)
	case email != "" && nickname == "":
		account, err = h.accounts.GetByEmail(c.Request().Context(), email)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of nickname or email is required")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(account))
}

// LockStatus handles GET /users/lock-status?email=.
//
// @Summary      Report whether an account is locked
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        email  query     string  true  "Email"
// @Success      200    {object}  lockStatusResponse
// @Failure      400    {object}  map[string]string
// @Router       /users/lock-status [get]
func (h *AccountHandler) LockStatus(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}

	locked, err := h.accounts.IsAccountLocked(c.Request().Context(), email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lockStatusResponse{Email: domain.NormalizeEmail(email), IsLocked: locked})
}

// Get handles GET /users/:id. Accounts may read themselves; staff may read anyone.
//
// @Summary      Get an account
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Account id"
// @Success      200  {object}  accountResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /users/{id} [get]
func (h *AccountHandler) Get(c echo.Context) error {
	id := c.Param("id")
	if err := authorizeSelfOr(c, id, domain.RoleManager, domain.RoleAdmin); err != nil {
		return err
	}

	account, err := h.accounts.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(account))
}

// Update handles PUT /users/:id. Only administrators may change roles.
// Managers editing another account cannot touch its email or password and
// cannot edit administrators.
//
// @Summary      Update an account
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                true  "Account id"
// @Param        body  body      updateAccountRequest  true  "Fields to change"
// @Success      200   {object}  accountResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /users/{id} [put]
func (h *AccountHandler) Update(c echo.Context) error {
	id := c.Param("id")
	if err := authorizeSelfOr(c, id, domain.RoleManager, domain.RoleAdmin); err != nil {
		return err
	}

	var req updateAccountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	callerID, callerRole, _ := ctxClaims(c)
	if req.Role != nil && callerRole != domain.RoleAdmin {
		return errForbidden
	}
	if callerID != id && callerRole != domain.RoleAdmin {
		// Managers may edit profiles of non-admin accounts but never their credentials.
		if req.Password != nil || req.Email != nil {
			return errForbidden
		}
		target, err := h.accounts.GetByID(c.Request().Context(), id)
		if err != nil {
			return err
		}
		if target.Role == domain.RoleAdmin {
			return errForbidden
		}
	}

	account, err := h.accounts.Update(c.Request().Context(), id, req.toInput())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(account))
}

// Delete handles DELETE /users/:id.
//
// @Summary      Delete an account
// @Tags         users
// @Security     BearerAuth
// @Param        id  path  string  true  "Account id"
// @Success      204
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /users/{id} [delete]
func (h *AccountHandler) Delete(c echo.Context) error {
	deleted, err := h.accounts.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrAccountNotFound
	}
	return c.NoContent(http.StatusNoContent)
}

// Unlock handles POST /users/:id/unlock.
//
// @Summary      Unlock an account
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Account id"
// @Success      200  {object}  messageResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /users/{id}/unlock [post]
func (h *AccountHandler) Unlock(c echo.Context) error {
	if err := h.accounts.UnlockAccount(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "account unlocked"})
}

// ResetPassword handles POST /users/:id/reset-password.
//
// @Summary      Reset an account password
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                true  "Account id"
// @Param        body  body      resetPasswordRequest  true  "New password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /users/{id}/reset-password [post]
func (h *AccountHandler) ResetPassword(c echo.Context) error {
	id := c.Param("id")
	if err := authorizeSelfOr(c, id, domain.RoleAdmin); err != nil {
		return err
	}

	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.accounts.ResetPassword(c.Request().Context(), id, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password reset"})
}

// authorizeSelfOr lets the request through when the caller owns id or holds
// one of roles.
func authorizeSelfOr(c echo.Context, id string, roles ...domain.Role) error {
	callerID, callerRole, err := ctxClaims(c)
	if err != nil {
		return err
	}
	if callerID == id {
		return nil
	}
	for _, r := range roles {
		if callerRole == r {
			return nil
		}
	}
	return errForbidden
}
