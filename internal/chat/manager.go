package chat

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pelusa-v/chatroom/internal/protocol"
)

type ChatManager struct {
	log      *zap.Logger
	hashCost int

	// 只有 loop 写（accounts 除外），HTTP 接口读
	mu sync.RWMutex

	accounts  map[string]*account // name -> account
	usersByID map[int]*account
	nextUser  int

	Clients map[string]*Client // connection id -> client
	online  map[int]*Client    // user id -> client

	Rooms    map[int]*room
	Subs     *Subscriptions
	nextChat int

	// 仅 loop 访问
	approvals Approvals

	RegisterChan   chan *Client
	UnregisterChan chan *Client
	InboundChan    chan inbound
	done           chan struct{}
}

type Option func(*ChatManager)

func WithLogger(log *zap.Logger) Option { return func(m *ChatManager) { m.log = log } }

func WithHashCost(cost int) Option { return func(m *ChatManager) { m.hashCost = cost } }

func NewManager(opts ...Option) *ChatManager {
	m := &ChatManager{
		log:            zap.NewNop(),
		hashCost:       bcrypt.DefaultCost,
		accounts:       map[string]*account{},
		usersByID:      map[int]*account{},
		Clients:        map[string]*Client{},
		online:         map[int]*Client{},
		Rooms:          map[int]*room{},
		Subs:           newSubscriptions(),
		approvals:      Approvals{},
		RegisterChan:   make(chan *Client),
		UnregisterChan: make(chan *Client),
		InboundChan:    make(chan inbound),
		done:           make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// 在线用户列表（可排除自己：按 id 或 name）
func (m *ChatManager) ListClients(exclude string) []UserJson {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]UserJson, 0, len(m.online))
	for id, c := range m.online {
		if exclude != "" && (exclude == c.User.Name || exclude == strconv.Itoa(id)) {
			continue
		}
		out = append(out, UserJson{Id: id, Name: c.User.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *ChatManager) directory() []protocol.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.User, 0, len(m.online))
	for _, c := range m.online {
		out = append(out, c.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// loop 已停止时返回 false
func (m *ChatManager) Register(c *Client) bool {
	select {
	case m.RegisterChan <- c:
		return true
	case <-m.done:
		return false
	}
}

func (m *ChatManager) unregister(c *Client) {
	select {
	case m.UnregisterChan <- c:
	case <-m.done:
	}
}

func (m *ChatManager) dispatch(c *Client, f protocol.Frame) {
	select {
	case m.InboundChan <- inbound{client: c, frame: f}:
	case <-m.done:
	}
}

func (m *ChatManager) Start(ctx context.Context) error {
	defer close(m.done)
	for {
		select {
		case client := <-m.RegisterChan:
			m.onRegister(client)

		case client := <-m.UnregisterChan:
			m.onUnregister(client)

		case in := <-m.InboundChan:
			m.handle(in.client, in.frame)

		case <-ctx.Done():
			m.mu.Lock()
			for id, c := range m.Clients {
				close(c.Send)
				delete(m.Clients, id)
			}
			m.online = map[int]*Client{}
			m.mu.Unlock()
			m.log.Info("relay stopped")
			return nil
		}
	}
}

func (m *ChatManager) onRegister(c *Client) {
	m.mu.Lock()
	if _, taken := m.online[c.User.ID]; taken {
		m.mu.Unlock()
		m.send(c, protocol.ErrorReply("", "already logged in elsewhere"))
		close(c.Send)
		return
	}
	m.Clients[c.Id] = c
	m.online[c.User.ID] = c
	m.mu.Unlock()

	m.log.Info("user online", zap.Int("user", c.User.ID), zap.String("name", c.User.Name))
	user := c.User
	m.send(c, protocol.Frame{Type: protocol.TypeWelcome, User: &user})
	m.broadcastUsers()
	m.send(c, protocol.Frame{Type: protocol.TypeChats, Chats: m.Chats()})
}

func (m *ChatManager) onUnregister(c *Client) {
	m.mu.Lock()
	if m.Clients[c.Id] != c {
		m.mu.Unlock()
		return
	}
	delete(m.Clients, c.Id)
	if m.online[c.User.ID] == c {
		delete(m.online, c.User.ID)
	}
	close(c.Send)
	m.mu.Unlock()

	m.log.Info("user offline", zap.Int("user", c.User.ID), zap.String("name", c.User.Name))
	m.forgetRequester(c)
	m.failJoins(c.User.ID, "chat creator went offline")
	m.broadcastUsers()
}

// 缓冲满了就丢弃
func (m *ChatManager) send(c *Client, f protocol.Frame) {
	if c == nil {
		return
	}
	data, err := protocol.Encode(f)
	if err != nil {
		m.log.Error("encode frame", zap.Error(err))
		return
	}
	select {
	case c.Send <- data:
	default:
		m.log.Warn("client send buffer full, frame dropped", zap.Int("user", c.User.ID), zap.String("type", f.Type))
	}
}

func (m *ChatManager) replyError(c *Client, reqID, msg string) {
	m.send(c, protocol.ErrorReply(reqID, msg))
}

func (m *ChatManager) sendUser(userID int, f protocol.Frame) {
	m.mu.RLock()
	c := m.online[userID]
	m.mu.RUnlock()
	m.send(c, f)
}

func (m *ChatManager) broadcast(f protocol.Frame) {
	m.mu.RLock()
	snapshot := make([]*Client, 0, len(m.online))
	for _, c := range m.online {
		snapshot = append(snapshot, c)
	}
	m.mu.RUnlock()
	for _, c := range snapshot {
		m.send(c, f)
	}
}

func (m *ChatManager) broadcastUsers() {
	m.broadcast(protocol.Frame{Type: protocol.TypeUsers, Users: m.directory()})
}

func (m *ChatManager) broadcastChats() {
	m.broadcast(protocol.Frame{Type: protocol.TypeChats, Chats: m.Chats()})
}

func (m *ChatManager) handle(c *Client, f protocol.Frame) {
	if m.Clients[c.Id] != c {
		return // 注册时已被拒绝
	}
	uid := c.User.ID
	switch f.Type {
	case protocol.TypeChatInfo:
		chat, ok := m.Chat(f.ChatID)
		if !ok {
			m.replyError(c, f.ReqID, "unknown chat")
			return
		}
		m.send(c, protocol.Frame{Type: protocol.TypeChatInfo, ReqID: f.ReqID, Chat: &chat})

	case protocol.TypeInitChat:
		name := strings.TrimSpace(f.Name)
		if name == "" {
			m.replyError(c, f.ReqID, "chat name is required")
			return
		}
		chat := m.createChat(uid, name, f.Members)
		m.log.Info("chat created", zap.Int("chat", chat.ID), zap.String("name", chat.Name), zap.Int("creator", uid))
		m.send(c, protocol.Frame{Type: protocol.TypeChatCreated, ReqID: f.ReqID, Chat: &chat})
		m.broadcastChats()

	case protocol.TypeJoinChat:
		m.requestJoin(c, f)

	case protocol.TypeJoinReply:
		m.answerJoin(c, f)

	case protocol.TypeQuitChat:
		if f.UserID != 0 && f.UserID != uid {
			m.replyError(c, f.ReqID, "cannot remove another user")
			return
		}
		m.quit(c, f.ReqID, f.ChatID)

	case protocol.TypeMessage, protocol.TypeFile:
		m.relay(c, f)

	case protocol.TypeLogin, protocol.TypeRegister:
		m.replyError(c, f.ReqID, "already logged in")

	default:
		m.replyError(c, f.ReqID, "unsupported frame type "+f.Type)
	}
}

func (m *ChatManager) requestJoin(c *Client, f protocol.Frame) {
	uid := c.User.ID
	if f.UserID != 0 && f.UserID != uid {
		m.replyError(c, f.ReqID, "cannot join for another user")
		return
	}
	chat, ok := m.Chat(f.ChatID)
	if !ok {
		m.replyError(c, f.ReqID, "unknown chat")
		return
	}
	if chat.HasMember(uid) {
		m.send(c, protocol.Frame{Type: protocol.TypeJoined, ChatID: chat.ID, UserID: uid})
		return
	}
	m.mu.RLock()
	creator := m.online[chat.Creator]
	m.mu.RUnlock()
	if creator == nil {
		m.replyError(c, f.ReqID, "chat creator offline")
		return
	}
	m.queueJoin(chat.ID, uid, &joinTicket{ReqID: f.ReqID, Requester: c})
	m.log.Debug("join requested", zap.Int("chat", chat.ID), zap.Int("user", uid))
	m.send(creator, protocol.Frame{Type: protocol.TypeJoinRequest, ChatID: chat.ID, UserID: uid})
}

func (m *ChatManager) answerJoin(c *Client, f protocol.Frame) {
	chat, ok := m.Chat(f.ChatID)
	if !ok {
		m.replyError(c, "", "unknown chat")
		return
	}
	if chat.Creator != c.User.ID {
		m.replyError(c, "", "only the chat creator can answer join requests")
		return
	}
	t, ok := m.takeJoin(chat.ID, f.UserID)
	if !ok {
		m.replyError(c, "", "no pending join request")
		return
	}
	if !f.Approve {
		m.log.Info("join denied", zap.Int("chat", chat.ID), zap.Int("user", f.UserID))
		m.send(t.Requester, protocol.Frame{Type: protocol.TypeJoinReject, ReqID: t.ReqID, ChatID: chat.ID})
		return
	}
	if !m.addMember(chat.ID, f.UserID) {
		return
	}
	m.log.Info("join approved", zap.Int("chat", chat.ID), zap.Int("user", f.UserID))
	joined := protocol.Frame{Type: protocol.TypeJoined, ChatID: chat.ID, UserID: f.UserID}
	m.mu.RLock()
	members := m.Subs.members(chat.ID)
	m.mu.RUnlock()
	for _, id := range members {
		m.sendUser(id, joined)
	}
	m.broadcastChats()
}

func (m *ChatManager) quit(c *Client, reqID string, chatID int) {
	uid := c.User.ID
	m.mu.RLock()
	member := m.Subs.isMember(uid, chatID)
	m.mu.RUnlock()
	if !member {
		m.replyError(c, reqID, "not a member of this chat")
		return
	}
	before, _ := m.Chat(chatID)
	rest, alive := m.removeMember(chatID, uid)
	m.log.Info("user left chat", zap.Int("chat", chatID), zap.Int("user", uid), zap.Bool("chat_deleted", !alive))

	left := protocol.Frame{Type: protocol.TypeQuit, ChatID: chatID, UserID: uid}
	own := left
	own.ReqID = reqID
	m.send(c, own)
	for _, id := range rest {
		m.sendUser(id, left)
	}
	switch {
	case !alive:
		m.closeJoins(chatID, "chat was deleted")
	case before.Creator == uid:
		m.handoffJoins(chatID, rest[0])
	}
	m.broadcastChats()
}

// 群聊：推给成员；私聊：点对点。回显给发送者的那份带 req_id
func (m *ChatManager) relay(c *Client, f protocol.Frame) {
	uid := c.User.ID
	out := protocol.Frame{Type: f.Type, From: uid, Text: f.Text, File: f.File}
	if f.Type == protocol.TypeFile && (f.File == nil || f.File.Name == "") {
		m.replyError(c, f.ReqID, "file payload is required")
		return
	}

	if f.ChatID != 0 {
		m.mu.RLock()
		member := m.Subs.isMember(uid, f.ChatID)
		members := m.Subs.members(f.ChatID)
		m.mu.RUnlock()
		if !member {
			m.replyError(c, f.ReqID, "not a member of this chat")
			return
		}
		out.ChatID = f.ChatID
		for _, id := range members {
			if id == uid {
				continue
			}
			m.sendUser(id, out)
		}
		echo := out
		echo.ReqID = f.ReqID
		m.send(c, echo)
		return
	}

	if f.To == 0 || f.To == uid {
		m.replyError(c, f.ReqID, "invalid recipient")
		return
	}
	m.mu.RLock()
	peer := m.online[f.To]
	m.mu.RUnlock()
	if peer == nil {
		m.replyError(c, f.ReqID, "user offline")
		return
	}
	out.To = f.To
	m.send(peer, out)
	echo := out
	echo.ReqID = f.ReqID
	m.send(c, echo)
}
