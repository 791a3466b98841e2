package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"wolfpack-sync/chat"
	"wolfpack-sync/domain"
)

// chatHub lazily opens channels and keeps them live for the daemon's
// lifetime; the UI process attaches and detaches freely.
type chatHub struct {
	manager *chat.Manager
	user    domain.User

	mu       sync.Mutex
	channels map[string]*chat.Channel
}

// RegisterChat wires the chat endpoints onto the Echo instance.
func RegisterChat(e *echo.Echo, manager *chat.Manager, user domain.User, check TokenCheck) {
	h := &chatHub{manager: manager, user: user, channels: make(map[string]*chat.Channel)}
	e.GET("/chats/:kind/:id/messages", h.getMessages(check))
	e.POST("/chats/:kind/:id/messages", h.postMessage(check))
}

func (h *chatHub) channel(kind, id string) *chat.Channel {
	key := kind + "/" + id
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[key]; ok {
		return ch
	}
	var ch *chat.Channel
	switch kind {
	case "pack":
		ch = h.manager.Pack(context.Background(), id)
	case "territory":
		ch = h.manager.Territory(context.Background(), id)
	default:
		ch = h.manager.Direct(context.Background(), id)
	}
	h.channels[key] = ch
	return ch
}

type chatResponse struct {
	State    int32                `json:"state"`
	Messages []domain.ChatMessage `json:"messages"`
}

func (h *chatHub) getMessages(check TokenCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !authorize(c, check) {
			return c.NoContent(http.StatusUnauthorized)
		}
		ch := h.channel(c.Param("kind"), c.Param("id"))
		msgs := ch.Messages()
		if msgs == nil {
			msgs = []domain.ChatMessage{}
		}
		return c.JSON(http.StatusOK, chatResponse{State: ch.State(), Messages: msgs})
	}
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *chatHub) postMessage(check TokenCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !authorize(c, check) {
			return c.NoContent(http.StatusUnauthorized)
		}
		var req sendRequest
		if err := c.Bind(&req); err != nil || req.Text == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ch := h.channel(c.Param("kind"), c.Param("id"))
		if err := ch.Send(c.Request().Context(), h.user, req.Text); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusBadGateway, err.Error())
		}
		return c.NoContent(http.StatusAccepted)
	}
}
