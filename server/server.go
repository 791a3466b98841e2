// Package server re-serves the reconciled session state to local consumers
// over HTTP and SSE.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"wolfpack-sync/session"
)

// StateSource exposes the session to the handlers.
type StateSource interface {
	View() session.View
	Subscribe() chan struct{}
	Unsubscribe(ch chan struct{})
}

// ProjectSelector switches the active project (and the live connection).
type ProjectSelector interface {
	SetProject(ctx context.Context, projectID string) error
}

// TokenCheck authorizes local consumers against the session bearer token.
type TokenCheck func(token string) bool

const keepaliveInterval = 30 * time.Second

// Register wires the local state endpoints onto the Echo instance.
func Register(e *echo.Echo, src StateSource, selector ProjectSelector, check TokenCheck) {
	e.GET("/healthz", healthz)
	e.GET("/state", getState(src, check))
	e.GET("/stream", streamState(src, check))
	e.PUT("/project", putProject(selector, check))
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func authorize(c echo.Context, check TokenCheck) bool {
	if check == nil {
		return true
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if h == "" {
		if t := c.QueryParam("token"); t != "" {
			h = "Bearer " + t
		}
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return false
	}
	return check(parts[1])
}

func getState(src StateSource, check TokenCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !authorize(c, check) {
			return c.NoContent(http.StatusUnauthorized)
		}
		return c.JSON(http.StatusOK, src.View())
	}
}

type projectRequest struct {
	ProjectID string `json:"project_id"`
}

func putProject(selector ProjectSelector, check TokenCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !authorize(c, check) {
			return c.NoContent(http.StatusUnauthorized)
		}
		var req projectRequest
		if err := c.Bind(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := selector.SetProject(c.Request().Context(), req.ProjectID); err != nil {
			return c.String(http.StatusBadGateway, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// streamState pushes the full view on every session change, with keepalive
// comments to hold the connection open through proxies.
func streamState(src StateSource, check TokenCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !authorize(c, check) {
			return c.NoContent(http.StatusUnauthorized)
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := src.Subscribe()
		defer src.Unsubscribe(ch)
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()

		if err := writeView(c, flusher, src.View()); err != nil {
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				if err := writeView(c, flusher, src.View()); err != nil {
					return nil
				}
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(":keepalive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeView(c echo.Context, flusher http.Flusher, v session.View) error {
	data, err := json.Marshal(v)
	if err != nil {
		c.Logger().Error(err)
		return err
	}
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
