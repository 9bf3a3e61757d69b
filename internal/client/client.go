// Package client is the chat session core: it owns the connection to the relay,
// the local session state and the active selection, and serializes every change
// to them on one loop goroutine.
package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/pelusa-v/chatroom/internal/protocol"
	"github.com/pelusa-v/chatroom/internal/session"
)

// Prompter is the UI side of the two interactive gates. It is always called on
// the goroutine that invoked the intent, never on the client loop.
type Prompter interface {
	Confirm(prompt string) bool
	Input(prompt string) string
}

// Archive mirrors history outside the process.
type Archive interface {
	Append(owner string, key session.ConversationKey, e session.Entry) error
	Load(owner string) ([]session.Record, error)
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option { return func(c *Client) { c.log = log } }
func WithDialer(d Dialer) Option        { return func(c *Client) { c.dialer = d } }
func WithPrompter(p Prompter) Option    { return func(c *Client) { c.prompter = p } }
func WithArchive(a Archive) Option      { return func(c *Client) { c.archive = a } }

type declinePrompter struct{}

func (declinePrompter) Confirm(string) bool  { return false }
func (declinePrompter) Input(string) string { return "" }

type Client struct {
	url      string
	log      *zap.Logger
	dialer   Dialer
	prompter Prompter
	archive  Archive

	ops       chan func()
	quit      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	// owned by the loop
	store      *session.Store
	corr       *correlator
	members    *membership
	notify     *notifier
	draft      string
	gen        int
	connecting bool
	owner      string // identity whose history the store holds
}

// New builds a disconnected client for the relay at url and starts its loop.
// Close releases it.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:      url,
		log:      zap.NewNop(),
		dialer:   DefaultDialer(),
		prompter: declinePrompter{},
		ops:      make(chan func()),
		quit:     make(chan struct{}),
		closed:   make(chan struct{}),
		store:    session.NewStore(),
		corr:     newCorrelator(),
		notify:   &notifier{},
	}
	for _, o := range opts {
		o(c)
	}
	c.members = &membership{store: c.store, notify: c.notify, log: c.log}
	go c.run()
	return c
}

func (c *Client) run() {
	defer close(c.closed)
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.quit:
			c.dropConnection(nil)
			return
		}
	}
}

// do runs fn on the loop and returns its error.
func (c *Client) do(fn func() error) error {
	res := make(chan error, 1)
	select {
	case c.ops <- func() { res <- fn() }:
	case <-c.closed:
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-c.closed:
		return ErrClosed
	}
}

// post queues fn without waiting for it.
func (c *Client) post(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.closed:
	}
}

// Close disconnects and stops the loop. The client is unusable afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.closed
	})
}

// Subscribe registers UI callbacks.
func (c *Client) Subscribe(cb Callbacks) {
	_ = c.do(func() error {
		c.notify.add(cb)
		return nil
	})
}

// Connect dials the relay and logs in (or registers). History already held is
// kept.
func (c *Client) Connect(ctx context.Context, creds Credentials) error {
	if err := creds.validate(); err != nil {
		return err
	}
	err := c.do(func() error {
		if c.corr.connected() || c.connecting {
			return ErrAlreadyConnected
		}
		c.connecting = true
		return nil
	})
	if err != nil {
		return err
	}
	defer c.post(func() { c.connecting = false })

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		return err
	}
	self, err := handshake(ctx, conn, creds)
	if err != nil {
		_ = conn.Close()
		return err
	}

	var restored []session.Record
	if c.archive != nil {
		if restored, err = c.archive.Load(self.Name); err != nil {
			c.log.Warn("history archive load failed", zap.Error(err))
			restored = nil
		}
	}

	ws := newSocket(conn, c.log)
	err = c.do(func() error {
		gen := c.install(ws, self, restored)
		ws.start(
			func(f protocol.Frame) {
				c.post(func() {
					if c.gen == gen {
						c.handleFrame(f)
					}
				})
			},
			func(err error) {
				c.post(func() {
					if c.gen == gen {
						c.log.Warn("connection lost", zap.Error(err))
						c.dropConnection(err)
					}
				})
			},
		)
		return nil
	})
	if err != nil {
		_ = ws.Close()
		return err
	}
	c.log.Info("connected", zap.String("url", c.url), zap.Int("user", self.ID), zap.String("name", self.Name))
	return nil
}

// install makes sock the live socket. It returns the connection generation that
// inbound events must carry to be applied. Logging in as someone else replaces
// the history with theirs; reconnecting as the same user keeps it.
func (c *Client) install(sock Socket, self protocol.User, restored []session.Record) int {
	c.gen++
	c.corr.attach(sock)
	c.store.SetSelf(self)
	if self.Name != c.owner {
		c.store.ClearHistory()
		c.owner = self.Name
		for _, r := range restored {
			c.store.Append(r.Key, r.Entry)
		}
	}
	return c.gen
}

// Disconnect closes the connection. The selection is reset; history stays.
func (c *Client) Disconnect() error {
	return c.do(func() error {
		if !c.corr.connected() {
			return ErrNotConnected
		}
		c.dropConnection(nil)
		return nil
	})
}

func (c *Client) dropConnection(cause error) {
	sock := c.corr.detach()
	if sock == nil {
		return
	}
	c.gen++
	_ = sock.Close()
	c.members.set(session.None())
	c.notify.disconnected(cause)
}

func (c *Client) SelectUser(userID int) error {
	return c.do(func() error {
		if userID == c.store.Self().ID {
			return fmt.Errorf("%w: cannot chat with yourself", ErrInvalidSelection)
		}
		if _, ok := c.store.User(userID); !ok {
			return fmt.Errorf("%w: unknown user %d", ErrInvalidSelection, userID)
		}
		c.members.set(session.DirectWith(userID))
		return nil
	})
}

// SelectChat makes chatID the active conversation. A chat the local user is not
// in needs the Prompter's confirmation; then a join request is sent and the
// selection waits in the pending state until the server confirms.
func (c *Client) SelectChat(chatID int) error {
	var (
		needConfirm bool
		name        string
	)
	err := c.do(func() error {
		if c.members.selection().IsChat(chatID) {
			return nil
		}
		if c.store.IsMember(chatID, c.store.Self().ID) {
			c.members.set(session.InChat(chatID, true))
			c.refreshChat(chatID)
			return nil
		}
		if c.corr.joinPending(chatID) {
			c.members.set(session.InChat(chatID, false))
			return nil
		}
		chat, ok := c.store.Chat(chatID)
		if !ok {
			return fmt.Errorf("%w: unknown chat %d", ErrInvalidSelection, chatID)
		}
		if !c.corr.connected() {
			return ErrNotConnected
		}
		needConfirm, name = true, chat.Name
		return nil
	})
	if err != nil || !needConfirm {
		return err
	}

	if !c.prompter.Confirm(fmt.Sprintf("You are not in %q. Ask its creator to let you join?", name)) {
		return nil
	}

	return c.do(func() error {
		if c.members.selection().IsChat(chatID) {
			return nil
		}
		self := c.store.Self().ID
		if c.store.IsMember(chatID, self) {
			c.members.set(session.InChat(chatID, true))
			c.refreshChat(chatID)
			return nil
		}
		if err := c.corr.joinChat(chatID, self); err != nil {
			return err
		}
		c.members.set(session.InChat(chatID, false))
		c.refreshChat(chatID)
		return nil
	})
}

func (c *Client) refreshChat(chatID int) {
	if !c.corr.connected() {
		return
	}
	if err := c.corr.chatInfo(chatID); err != nil {
		c.log.Debug("chat info request failed", zap.Int("chat", chatID), zap.Error(err))
	}
}

func (c *Client) ClearSelection() {
	_ = c.do(func() error {
		c.members.set(session.None())
		return nil
	})
}

// InitChat asks for a chat name and requests a new chat with memberIDs. The local
// user is always the creator and is dropped from memberIDs.
func (c *Client) InitChat(memberIDs []int) error {
	var members []int
	err := c.do(func() error {
		self := c.store.Self().ID
		seen := map[int]bool{}
		for _, id := range memberIDs {
			if id == self || seen[id] {
				continue
			}
			seen[id] = true
			members = append(members, id)
		}
		if len(members) == 0 {
			return ErrEmptyMemberList
		}
		if !c.corr.connected() {
			return ErrNotConnected
		}
		return nil
	})
	if err != nil {
		return err
	}

	name := c.prompter.Input("Chat name:")
	if name == "" {
		return ErrChatNameRequired
	}
	return c.do(func() error {
		return c.corr.initChat(name, members)
	})
}

// QuitChat leaves the active chat.
func (c *Client) QuitChat() error {
	return c.do(func() error {
		sel := c.members.selection()
		if sel.State != session.GroupChat || !sel.Joined {
			return ErrInvalidSelection
		}
		return c.corr.quitChat(sel.ChatID, c.store.Self().ID)
	})
}

// ApproveJoin answers a JoinRequested notification.
func (c *Client) ApproveJoin(chatID, userID int, approve bool) error {
	return c.do(func() error {
		return c.corr.replyJoin(chatID, userID, approve)
	})
}

// SendMessage queues text for the active conversation. The message shows up in
// history when the server echoes it.
func (c *Client) SendMessage(text string) error {
	return c.do(func() error {
		return c.sendText(text)
	})
}

func (c *Client) sendText(text string) error {
	key := c.members.selection().Key()
	if key.IsZero() {
		return ErrInvalidSelection
	}
	return c.corr.sendMessage(key, text)
}

func (c *Client) SetDraft(text string) {
	_ = c.do(func() error {
		c.draft = text
		return nil
	})
}

func (c *Client) Draft() string {
	var d string
	_ = c.do(func() error {
		d = c.draft
		return nil
	})
	return d
}

// SendDraft sends the input buffer and clears it once the message is queued.
func (c *Client) SendDraft() error {
	return c.do(func() error {
		if err := c.sendText(c.draft); err != nil {
			return err
		}
		c.draft = ""
		return nil
	})
}

// SendFile reads path on the calling goroutine and sends its content to the
// active conversation.
func (c *Client) SendFile(path string) error {
	var key session.ConversationKey
	err := c.do(func() error {
		key = c.members.selection().Key()
		if key.IsZero() {
			return ErrInvalidSelection
		}
		if !c.corr.connected() {
			return ErrNotConnected
		}
		return nil
	})
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Warn("file send aborted", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w %s: %w", ErrFileRead, path, err)
	}
	return c.do(func() error {
		return c.corr.sendFile(key, filepath.Base(path), data)
	})
}

func (c *Client) Self() protocol.User {
	var u protocol.User
	_ = c.do(func() error {
		u = c.store.Self()
		return nil
	})
	return u
}

func (c *Client) Connected() bool {
	var ok bool
	_ = c.do(func() error {
		ok = c.corr.connected()
		return nil
	})
	return ok
}

func (c *Client) Selection() session.Selection {
	var s session.Selection
	_ = c.do(func() error {
		s = c.members.selection()
		return nil
	})
	return s
}

func (c *Client) Users() []protocol.User {
	var out []protocol.User
	_ = c.do(func() error {
		out = c.store.Users()
		return nil
	})
	return out
}

func (c *Client) Chats() []protocol.Chat {
	var out []protocol.Chat
	_ = c.do(func() error {
		out = c.store.Chats()
		return nil
	})
	return out
}

func (c *Client) MyChats() []protocol.Chat {
	var out []protocol.Chat
	_ = c.do(func() error {
		out = c.store.MyChats()
		return nil
	})
	return out
}

// Members lists the members of a chat as known locally.
func (c *Client) Members(chatID int) []protocol.User {
	var out []protocol.User
	_ = c.do(func() error {
		out = c.store.Members(chatID)
		return nil
	})
	return out
}

func (c *Client) History(key session.ConversationKey) []session.Entry {
	out := []session.Entry{}
	_ = c.do(func() error {
		out = c.store.History(key)
		return nil
	})
	return out
}
