package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/chatroom/internal/protocol"
	"github.com/pelusa-v/chatroom/internal/session"
)

type call struct {
	Method  string
	ReqID   string
	ChatID  int
	UserID  int
	Name    string
	Members []int
	Key     session.ConversationKey
	Text    string
	Data    []byte
	Approve bool
}

// fakeSocket records every request. Only touched from the client loop, but the
// test goroutine reads calls, hence the mutex.
type fakeSocket struct {
	mu     sync.Mutex
	calls  []call
	fail   error
	closed bool
}

func (s *fakeSocket) record(c call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.calls = append(s.calls, c)
	return nil
}

func (s *fakeSocket) RequestChatInfo(reqID string, chatID int) error {
	return s.record(call{Method: "chat_info", ReqID: reqID, ChatID: chatID})
}

func (s *fakeSocket) RequestJoinChat(reqID string, chatID, userID int) error {
	return s.record(call{Method: "join_chat", ReqID: reqID, ChatID: chatID, UserID: userID})
}

func (s *fakeSocket) RequestInitChat(reqID string, name string, memberIDs []int) error {
	return s.record(call{Method: "init_chat", ReqID: reqID, Name: name, Members: memberIDs})
}

func (s *fakeSocket) RequestQuitChat(reqID string, chatID, userID int) error {
	return s.record(call{Method: "quit_chat", ReqID: reqID, ChatID: chatID, UserID: userID})
}

func (s *fakeSocket) SendMessage(reqID string, key session.ConversationKey, text string) error {
	return s.record(call{Method: "message", ReqID: reqID, Key: key, Text: text})
}

func (s *fakeSocket) SendFileMsg(reqID string, key session.ConversationKey, name string, data []byte) error {
	return s.record(call{Method: "file", ReqID: reqID, Key: key, Name: name, Data: data})
}

func (s *fakeSocket) ReplyJoin(chatID, userID int, approve bool) error {
	return s.record(call{Method: "join_reply", ChatID: chatID, UserID: userID, Approve: approve})
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *fakeSocket) Methods() []string {
	var out []string
	for _, c := range s.Calls() {
		out = append(out, c.Method)
	}
	return out
}

func (s *fakeSocket) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakePrompter struct {
	mu       sync.Mutex
	confirm  bool
	input    string
	confirms []string
	inputs   []string
}

func (p *fakePrompter) Confirm(prompt string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirms = append(p.confirms, prompt)
	return p.confirm
}

func (p *fakePrompter) Input(prompt string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, prompt)
	return p.input
}

func (p *fakePrompter) Confirms() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.confirms)
}

// recorder captures callbacks. Callbacks run on the loop; reads happen on the
// test goroutine after a synchronous client call, so the mutex is enough.
type recorder struct {
	mu         sync.Mutex
	selections []session.Selection
	lost       []int
	joined     []string
	quit       []string
	history    []session.Record
	members    map[int][]protocol.User
	failed     []string
	rejected   []int
	requests   []string
	disconnect []error
	chats      int
	dirs       int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		DirectoryChanged: func([]protocol.User) { r.mu.Lock(); r.dirs++; r.mu.Unlock() },
		ChatsChanged:     func([]protocol.Chat) { r.mu.Lock(); r.chats++; r.mu.Unlock() },
		HistoryChanged: func(k session.ConversationKey, e session.Entry) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.history = append(r.history, session.Record{Key: k, Entry: e})
		},
		MembersChanged: func(chatID int, m []protocol.User) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.members == nil {
				r.members = map[int][]protocol.User{}
			}
			r.members[chatID] = m
		},
		UserJoined: func(c protocol.Chat, u protocol.User) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.joined = append(r.joined, fmt.Sprintf("%d:%s", c.ID, u.Name))
		},
		UserQuit: func(c protocol.Chat, u protocol.User) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.quit = append(r.quit, fmt.Sprintf("%d:%s", c.ID, u.Name))
		},
		SelectionChanged: func(s session.Selection) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.selections = append(r.selections, s)
		},
		MembershipLost: func(chatID int) { r.mu.Lock(); r.lost = append(r.lost, chatID); r.mu.Unlock() },
		JoinRequested: func(c protocol.Chat, u protocol.User) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.requests = append(r.requests, fmt.Sprintf("%d:%s", c.ID, u.Name))
		},
		JoinRejected:  func(chatID int) { r.mu.Lock(); r.rejected = append(r.rejected, chatID); r.mu.Unlock() },
		RequestFailed: func(op string, err error) { r.mu.Lock(); r.failed = append(r.failed, op+": "+err.Error()); r.mu.Unlock() },
		Disconnected:  func(err error) { r.mu.Lock(); r.disconnect = append(r.disconnect, err); r.mu.Unlock() },
	}
}

func (r *recorder) Selections() []session.Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Selection(nil), r.selections...)
}

func (r *recorder) Lost() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.lost...)
}

type fixture struct {
	c      *Client
	sock   *fakeSocket
	prompt *fakePrompter
	rec    *recorder
}

// newFixture returns a client logged in as Alice(1) with Bob(2) and Carol(3) in
// the directory, connected through a fake socket.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{sock: &fakeSocket{}, prompt: &fakePrompter{}, rec: &recorder{}}
	fx.c = New("ws://relay.invalid/api/ws", WithPrompter(fx.prompt))
	t.Cleanup(fx.c.Close)
	fx.c.Subscribe(fx.rec.callbacks())
	require.NoError(t, fx.c.do(func() error {
		fx.c.install(fx.sock, protocol.User{ID: 1, Name: "Alice"}, nil)
		return nil
	}))
	fx.frame(t, protocol.Frame{Type: protocol.TypeUsers, Users: []protocol.User{
		{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}, {ID: 3, Name: "Carol"},
	}})
	return fx
}

// frame applies an inbound frame as if the read pump delivered it.
func (fx *fixture) frame(t *testing.T, f protocol.Frame) {
	t.Helper()
	require.NoError(t, fx.c.do(func() error {
		fx.c.handleFrame(f)
		return nil
	}))
}

func (fx *fixture) chats(t *testing.T, chats ...protocol.Chat) {
	t.Helper()
	fx.frame(t, protocol.Frame{Type: protocol.TypeChats, Chats: chats})
}

func (fx *fixture) pending() int {
	var n int
	_ = fx.c.do(func() error {
		n = fx.c.corr.pendingCount()
		return nil
	})
	return n
}

// pipeConn is an in-memory ConnLike. The test plays the server through
// toClient/fromClient.
type pipeConn struct {
	toClient   chan []byte
	fromClient chan []byte
	done       chan struct{}
	once       sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		toClient:   make(chan []byte, 16),
		fromClient: make(chan []byte, 16),
		done:       make(chan struct{}),
	}
}

func (p *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-p.toClient:
		return 1, b, nil
	case <-p.done:
		return 0, nil, errors.New("pipe closed")
	}
}

func (p *pipeConn) WriteMessage(_ int, b []byte) error {
	select {
	case p.fromClient <- b:
		return nil
	case <-p.done:
		return errors.New("pipe closed")
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *pipeConn) send(t *testing.T, f protocol.Frame) {
	t.Helper()
	b, err := protocol.Encode(f)
	require.NoError(t, err)
	p.toClient <- b
}

func (p *pipeConn) recv(t *testing.T) protocol.Frame {
	t.Helper()
	f, err := protocol.Decode(<-p.fromClient)
	require.NoError(t, err)
	return f
}

type pipeDialer struct {
	conn *pipeConn
	err  error
}

func (d pipeDialer) Dial(context.Context, string) (ConnLike, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// seqDialer hands out its connections in order.
type seqDialer struct {
	mu    sync.Mutex
	conns []*pipeConn
}

func (d *seqDialer) Dial(context.Context, string) (ConnLike, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}
