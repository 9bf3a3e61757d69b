package chat

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pelusa-v/chatroom/internal/protocol"
)

const sendBuffer = 64

type Client struct {
	Id   string
	User protocol.User
	Conn ConnLike
	Send chan []byte

	hub  *ChatManager
	done chan struct{}
}

type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

func NewClient(hub *ChatManager, conn ConnLike, user protocol.User) *Client {
	return &Client{
		Id:   uuid.NewString(),
		User: user,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		hub:  hub,
		done: make(chan struct{}),
	}
}

func (c *Client) ReadPump() {
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			c.hub.unregister(c)
			return
		}
		f, err := protocol.Decode(data)
		if err != nil {
			c.hub.log.Debug("dropping malformed frame", zap.Int("user", c.User.ID), zap.Error(err))
			continue
		}
		c.hub.dispatch(c, f)
	}
}

// Send 被 manager 关闭后退出并关闭连接
func (c *Client) WritePump() {
	defer close(c.done)
	defer c.Conn.Close()
	for data := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.hub.log.Debug("write failed", zap.Int("user", c.User.ID), zap.Error(err))
			_ = c.Conn.Close()
		}
	}
}

func (c *Client) Done() <-chan struct{} { return c.done }
