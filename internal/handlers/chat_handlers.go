package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pelusa-v/chatroom/internal/chat"
	"github.com/pelusa-v/chatroom/internal/protocol"
)

const loginTimeout = 10 * time.Second

type Handler struct {
	hub *chat.ChatManager
	log *zap.Logger
}

func New(hub *chat.ChatManager, log *zap.Logger) *Handler {
	return &Handler{hub: hub, log: log}
}

// Routes mounts the relay on app.
func (h *Handler) Routes(app *fiber.App) {
	app.Use("/api/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/ws", websocket.New(h.SocketHandler))
	app.Get("/api/users", h.ShowUsersHandler) // ?exclude=nameOrId
	app.Get("/api/chats", h.ChatsHandler)     // ?user=
	app.Get("/api/chats/:id", h.ChatHandler)
}

// SocketHandler GET /api/ws
// The first frame must be login or register; the connection is dropped otherwise.
func (h *Handler) SocketHandler(c *websocket.Conn) {
	user, err := h.login(c)
	if err != nil {
		h.log.Info("login failed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
		if b, encErr := protocol.Encode(protocol.ErrorReply("", err.Error())); encErr == nil {
			_ = c.WriteMessage(websocket.TextMessage, b)
		}
		return
	}

	client := chat.NewClient(h.hub, c, user)
	if !h.hub.Register(client) {
		return
	}
	go client.WritePump()
	client.ReadPump()
	<-client.Done()
}

var errExpectedLogin = errors.New("expected login or register")

func (h *Handler) login(c *websocket.Conn) (protocol.User, error) {
	_ = c.SetReadDeadline(time.Now().Add(loginTimeout))
	_, data, err := c.ReadMessage()
	if err != nil {
		return protocol.User{}, err
	}
	_ = c.SetReadDeadline(time.Time{})

	f, err := protocol.Decode(data)
	if err != nil {
		return protocol.User{}, err
	}
	switch f.Type {
	case protocol.TypeLogin:
		return h.hub.Authenticate(f.Name, f.Password, false)
	case protocol.TypeRegister:
		return h.hub.Authenticate(f.Name, f.Password, true)
	default:
		return protocol.User{}, errExpectedLogin
	}
}

// ShowUsersHandler GET /api/users?exclude=nameOrId
func (h *Handler) ShowUsersHandler(c *fiber.Ctx) error {
	ex := strings.TrimSpace(c.Query("exclude"))
	return c.JSON(h.hub.ListClients(ex))
}

// ChatsHandler GET /api/chats?user=
func (h *Handler) ChatsHandler(c *fiber.Ctx) error {
	user := strings.TrimSpace(c.Query("user"))
	return c.JSON(h.hub.ListChatsFor(user))
}

// ChatHandler GET /api/chats/:id
func (h *Handler) ChatHandler(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid chat id"})
	}
	info, ok := h.hub.Chat(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	return c.JSON(info)
}
