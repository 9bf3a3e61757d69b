package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pelusa-v/chatroom/internal/chat"
	"github.com/pelusa-v/chatroom/internal/client"
	"github.com/pelusa-v/chatroom/internal/protocol"
	"github.com/pelusa-v/chatroom/internal/session"
)

type relay struct {
	app *fiber.App
	hub *chat.ChatManager
	url string
}

func startRelay(t *testing.T) *relay {
	t.Helper()
	hub := chat.NewManager(chat.WithHashCost(bcrypt.MinCost))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Start(ctx)
		close(stopped)
	}()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	New(hub, zap.NewNop()).Routes(app)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()

	t.Cleanup(func() {
		cancel()
		<-stopped
		_ = app.Shutdown()
	})
	return &relay{app: app, hub: hub, url: "ws://" + ln.Addr().String() + "/api/ws"}
}

type scriptedPrompter struct {
	confirm bool
	input   string
}

func (p scriptedPrompter) Confirm(string) bool  { return p.confirm }
func (p scriptedPrompter) Input(string) string { return p.input }

func connect(t *testing.T, r *relay, name string, p client.Prompter) *client.Client {
	t.Helper()
	c := client.New(r.url, client.WithPrompter(p))
	t.Cleanup(c.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx, client.Credentials{Name: name, Password: "pw", Register: true, Confirm: "pw"}))
	return c
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}

func TestDirectMessageOverRelay(t *testing.T) {
	r := startRelay(t)
	alice := connect(t, r, "alice", scriptedPrompter{})
	bob := connect(t, r, "bob", scriptedPrompter{})
	eventually(t, func() bool { return len(alice.Users()) == 2 }, "alice sees bob")

	require.NoError(t, alice.SelectUser(bob.Self().ID))
	require.NoError(t, alice.SendMessage("hi"))

	want := []session.Entry{session.TextEntry("alice", "hi")}
	eventually(t, func() bool { return len(bob.History(session.UserKey(alice.Self().ID))) == 1 }, "bob receives")
	assert.Equal(t, want, bob.History(session.UserKey(alice.Self().ID)))
	eventually(t, func() bool { return len(alice.History(session.UserKey(bob.Self().ID))) == 1 }, "alice gets echo")
	assert.Equal(t, want, alice.History(session.UserKey(bob.Self().ID)))
}

func TestJoinApprovalOverRelay(t *testing.T) {
	r := startRelay(t)
	alice := connect(t, r, "alice", scriptedPrompter{input: "dev"})
	requests := make(chan [2]int, 1)
	alice.Subscribe(client.Callbacks{
		JoinRequested: func(c protocol.Chat, u protocol.User) { requests <- [2]int{c.ID, u.ID} },
	})
	carol := connect(t, r, "carol", scriptedPrompter{})
	bob := connect(t, r, "bob", scriptedPrompter{confirm: true})
	eventually(t, func() bool { return len(alice.Users()) == 3 }, "directory complete")

	require.NoError(t, alice.InitChat([]int{carol.Self().ID}))
	eventually(t, func() bool { return len(bob.Chats()) == 1 }, "bob sees the chat")
	chatID := bob.Chats()[0].ID
	assert.Empty(t, bob.MyChats())

	require.NoError(t, bob.SelectChat(chatID))
	assert.Equal(t, session.InChat(chatID, false), bob.Selection())

	var req [2]int
	select {
	case req = <-requests:
	case <-time.After(3 * time.Second):
		t.Fatal("no join request reached the creator")
	}
	assert.Equal(t, [2]int{chatID, bob.Self().ID}, req)
	require.NoError(t, alice.ApproveJoin(req[0], req[1], true))

	eventually(t, func() bool { return bob.Selection() == session.InChat(chatID, true) }, "bob joined")
	require.NoError(t, bob.SendMessage("hello all"))

	for _, c := range []*client.Client{alice, carol, bob} {
		eventually(t, func() bool { return len(c.History(session.ChatKey(chatID))) == 1 }, "group message delivered")
		assert.Equal(t, session.TextEntry("bob", "hello all"), c.History(session.ChatKey(chatID))[0])
	}

	resp, err := r.app.Test(httptest.NewRequest("GET", "/api/chats?user=bob", nil))
	require.NoError(t, err)
	var chats []chat.ChatJson
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chats))
	require.Len(t, chats, 1)
	assert.True(t, chats[0].Member)
	assert.Equal(t, []int{1, 2, 3}, chats[0].Members)
}

func TestJoinDeniedOverRelay(t *testing.T) {
	r := startRelay(t)
	alice := connect(t, r, "alice", scriptedPrompter{input: "dev"})
	requests := make(chan [2]int, 1)
	alice.Subscribe(client.Callbacks{
		JoinRequested: func(c protocol.Chat, u protocol.User) { requests <- [2]int{c.ID, u.ID} },
	})
	carol := connect(t, r, "carol", scriptedPrompter{})
	bob := connect(t, r, "bob", scriptedPrompter{confirm: true})
	rejected := make(chan int, 1)
	bob.Subscribe(client.Callbacks{JoinRejected: func(chatID int) { rejected <- chatID }})
	eventually(t, func() bool { return len(alice.Users()) == 3 }, "directory complete")

	require.NoError(t, alice.InitChat([]int{carol.Self().ID}))
	eventually(t, func() bool { return len(bob.Chats()) == 1 }, "bob sees the chat")
	chatID := bob.Chats()[0].ID
	require.NoError(t, bob.SelectChat(chatID))

	req := <-requests
	require.NoError(t, alice.ApproveJoin(req[0], req[1], false))

	select {
	case id := <-rejected:
		assert.Equal(t, chatID, id)
	case <-time.After(3 * time.Second):
		t.Fatal("no rejection")
	}
	assert.Equal(t, session.None(), bob.Selection())
}

func TestLoginRejected(t *testing.T) {
	r := startRelay(t)
	connect(t, r, "alice", scriptedPrompter{})

	c := client.New(r.url)
	defer c.Close()
	err := c.Connect(context.Background(), client.Credentials{Name: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, client.ErrHandshake)
	assert.Contains(t, err.Error(), chat.ErrInvalidCredentials.Error())
}

func TestReadAPI(t *testing.T) {
	r := startRelay(t)
	connect(t, r, "alice", scriptedPrompter{})
	connect(t, r, "bob", scriptedPrompter{})
	eventually(t, func() bool { return len(r.hub.ListClients("")) == 2 }, "both online")

	resp, err := r.app.Test(httptest.NewRequest("GET", "/api/users?exclude=alice", nil))
	require.NoError(t, err)
	var users []chat.UserJson
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	assert.Equal(t, []chat.UserJson{{Id: 2, Name: "bob"}}, users)

	resp, err = r.app.Test(httptest.NewRequest("GET", "/api/chats/7", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = r.app.Test(httptest.NewRequest("GET", "/api/chats/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = r.app.Test(httptest.NewRequest("GET", "/api/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
