package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/fasthttp/websocket"
	"go.uber.org/zap"

	"github.com/pelusa-v/chatroom/internal/protocol"
	"github.com/pelusa-v/chatroom/internal/session"
)

const sendBuffer = 256

// Socket is the transport the core issues requests through. Every request carries
// the id the server echoes in its reply.
type Socket interface {
	RequestChatInfo(reqID string, chatID int) error
	RequestJoinChat(reqID string, chatID, userID int) error
	RequestInitChat(reqID string, name string, memberIDs []int) error
	RequestQuitChat(reqID string, chatID, userID int) error
	SendMessage(reqID string, key session.ConversationKey, text string) error
	SendFileMsg(reqID string, key session.ConversationKey, name string, data []byte) error
	ReplyJoin(chatID, userID int, approve bool) error
	Close() error
}

// ConnLike is the subset of a websocket connection the socket needs.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (ConnLike, error)
}

type wsDialer struct {
	d *websocket.Dialer
}

// DefaultDialer dials with fasthttp/websocket's default client settings.
func DefaultDialer() Dialer {
	return wsDialer{d: websocket.DefaultDialer}
}

func (w wsDialer) Dial(ctx context.Context, url string) (ConnLike, error) {
	conn, resp, err := w.d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

type Credentials struct {
	Name     string
	Password string
	// Register creates the account instead of logging in. Confirm must match
	// Password.
	Register bool
	Confirm  string
}

func (c Credentials) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty user name", ErrHandshake)
	}
	if c.Register && c.Password != c.Confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// handshake sends login or register and waits for the welcome frame.
func handshake(ctx context.Context, conn ConnLike, creds Credentials) (protocol.User, error) {
	typ := protocol.TypeLogin
	if creds.Register {
		typ = protocol.TypeRegister
	}
	b, err := protocol.Encode(protocol.Frame{Type: typ, Name: creds.Name, Password: creds.Password})
	if err != nil {
		return protocol.User{}, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return protocol.User{}, fmt.Errorf("send %s: %w", typ, err)
	}

	type result struct {
		f   protocol.Frame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ch <- result{err: err}
			return
		}
		f, err := protocol.Decode(data)
		ch <- result{f: f, err: err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		_ = conn.Close()
		<-ch
		return protocol.User{}, ctx.Err()
	}
	if r.err != nil {
		return protocol.User{}, fmt.Errorf("read welcome: %w", r.err)
	}
	switch r.f.Type {
	case protocol.TypeWelcome:
		if r.f.User == nil {
			return protocol.User{}, fmt.Errorf("%w: welcome without user", ErrHandshake)
		}
		return *r.f.User, nil
	case protocol.TypeError:
		return protocol.User{}, fmt.Errorf("%w: %s", ErrHandshake, r.f.Error)
	default:
		return protocol.User{}, fmt.Errorf("%w: unexpected %q frame", ErrHandshake, r.f.Type)
	}
}

// wsSocket frames requests onto a websocket connection. Writes are queued and
// drained by the write pump so callers never block on the network.
type wsSocket struct {
	conn ConnLike
	log  *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSocket(conn ConnLike, log *zap.Logger) *wsSocket {
	return &wsSocket{
		conn: conn,
		log:  log,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// start runs the pumps. onClose is called once when the read side fails, unless
// the socket was closed locally first.
func (s *wsSocket) start(onFrame func(protocol.Frame), onClose func(error)) {
	go s.readPump(onFrame, onClose)
	go s.writePump()
}

func (s *wsSocket) readPump(onFrame func(protocol.Frame), onClose func(error)) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed() {
				return
			}
			_ = s.Close()
			onClose(err)
			return
		}
		f, err := protocol.Decode(data)
		if err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		onFrame(f)
	}
}

func (s *wsSocket) writePump() {
	for {
		select {
		case data := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Warn("write failed", zap.Error(err))
				_ = s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *wsSocket) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close stops both pumps.
func (s *wsSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *wsSocket) write(f protocol.Frame) error {
	if s.closed() {
		return ErrNotConnected
	}
	b, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	select {
	case s.send <- b:
		return nil
	case <-s.done:
		return ErrNotConnected
	default:
		return errSendBufferFull
	}
}

func (s *wsSocket) RequestChatInfo(reqID string, chatID int) error {
	return s.write(protocol.Frame{Type: protocol.TypeChatInfo, ReqID: reqID, ChatID: chatID})
}

func (s *wsSocket) RequestJoinChat(reqID string, chatID, userID int) error {
	return s.write(protocol.Frame{Type: protocol.TypeJoinChat, ReqID: reqID, ChatID: chatID, UserID: userID})
}

func (s *wsSocket) RequestInitChat(reqID string, name string, memberIDs []int) error {
	return s.write(protocol.Frame{Type: protocol.TypeInitChat, ReqID: reqID, Name: name, Members: memberIDs})
}

func (s *wsSocket) RequestQuitChat(reqID string, chatID, userID int) error {
	return s.write(protocol.Frame{Type: protocol.TypeQuitChat, ReqID: reqID, ChatID: chatID, UserID: userID})
}

func (s *wsSocket) SendMessage(reqID string, key session.ConversationKey, text string) error {
	f := protocol.Frame{Type: protocol.TypeMessage, ReqID: reqID, Text: text}
	addressFrame(&f, key)
	return s.write(f)
}

func (s *wsSocket) SendFileMsg(reqID string, key session.ConversationKey, name string, data []byte) error {
	f := protocol.Frame{Type: protocol.TypeFile, ReqID: reqID, File: &protocol.FilePayload{Name: name, Data: data}}
	addressFrame(&f, key)
	return s.write(f)
}

func (s *wsSocket) ReplyJoin(chatID, userID int, approve bool) error {
	return s.write(protocol.Frame{Type: protocol.TypeJoinReply, ChatID: chatID, UserID: userID, Approve: approve})
}

func addressFrame(f *protocol.Frame, key session.ConversationKey) {
	switch key.Kind {
	case session.Group:
		f.ChatID = key.ID
	case session.Direct:
		f.To = key.ID
	}
}
