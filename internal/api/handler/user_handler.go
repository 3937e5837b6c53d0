package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/classroll/records-api/internal/core/domain"
	"github.com/classroll/records-api/internal/core/ports"
)

// UserHandler serves the administrative user and role endpoints.
type UserHandler struct {
	service ports.UserService
}

func NewUserHandler(service ports.UserService) *UserHandler {
	return &UserHandler{service: service}
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,max=64"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role"`
	Password *string `json:"password" validate:"omitempty,min=6,max=72"`
}

type userResponse struct {
	Message string          `json:"message"`
	User    domain.Identity `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// List returns every account with its current role.
//
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.Identity
// @Failure      401  {object}  apierr.Response
// @Failure      403  {object}  apierr.Response
// @Router       /api/users [get]
func (h *UserHandler) List(c echo.Context, _ domain.Identity) error {
	users, err := h.service.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

// Update patches another user's account.
//
// @Summary      Update a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                true  "User id"
// @Param        body  body      updateUserRequest  true  "Fields to change"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  apierr.Response
// @Failure      404   {object}  apierr.Response
// @Failure      409   {object}  apierr.Response
// @Router       /api/users/{id} [put]
func (h *UserHandler) Update(c echo.Context, actor domain.Identity) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.service.UpdateUser(c.Request().Context(), actor, id, ports.UpdateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{Message: "user updated successfully", User: user})
}

// Delete removes another user's account.
//
// @Summary      Delete a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User id"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  apierr.Response
// @Failure      404  {object}  apierr.Response
// @Router       /api/users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context, actor domain.Identity) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteUser(c.Request().Context(), actor, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "user deleted successfully"})
}

// Roles lists the roles with their current permissions.
//
// @Summary      List roles
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.Role
// @Failure      403  {object}  apierr.Response
// @Router       /api/roles [get]
func (h *UserHandler) Roles(c echo.Context, _ domain.Identity) error {
	roles, err := h.service.ListRoles(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, roles)
}

func userID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return id, nil
}
