package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/notification"
)

// ListNotifications returns the notification center entries, newest
// first. Optional filters: status, type, limit.
func (c *Controller) ListNotifications(ctx echo.Context) error {
	if c.deps.Notifications == nil {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: "notification center unavailable"})
	}

	filter := &notification.FilterOptions{}
	if raw := ctx.QueryParam("status"); raw != "" {
		filter.Status = []notification.Status{notification.Status(raw)}
	}
	if raw := ctx.QueryParam("type"); raw != "" {
		filter.Types = []notification.Type{notification.Type(raw)}
	}
	if raw := ctx.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return c.handleError(ctx, validationf("invalid limit %q", raw), http.StatusUnprocessableEntity)
		}
		filter.Limit = limit
	}

	notifications, err := c.deps.Notifications.List(filter)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	unread, err := c.deps.Notifications.GetUnreadCount()
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"notifications": notifications,
		"unread_count":  unread,
	})
}

// MarkNotificationRead marks one notification as read.
func (c *Controller) MarkNotificationRead(ctx echo.Context) error {
	if c.deps.Notifications == nil {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: "notification center unavailable"})
	}

	id := ctx.Param("id")
	if err := c.deps.Notifications.MarkAsRead(id); err != nil {
		if errors.Is(err, notification.ErrNotificationNotFound) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: "notification " + id + " not found"})
		}
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}
