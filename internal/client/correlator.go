package client

import (
	"github.com/google/uuid"

	"github.com/pelusa-v/chatroom/internal/session"
)

// Operation names reported through RequestFailed.
const (
	OpChatInfo = "chat_info"
	OpInitChat = "init_chat"
	OpJoinChat = "join_chat"
	OpQuitChat = "quit_chat"
	OpMessage  = "message"
	OpFile     = "file"
	OpJoinVote = "join_reply"
)

type request struct {
	op     string
	chatID int
}

// correlator issues requests on the current socket and remembers them by id until
// the server answers. Confined to the client loop.
type correlator struct {
	sock    Socket
	newID   func() string
	pending map[string]request
	joins   map[int]string // chat id -> outstanding join request id
}

func newCorrelator() *correlator {
	return &correlator{
		newID:   uuid.NewString,
		pending: map[string]request{},
		joins:   map[int]string{},
	}
}

func (r *correlator) connected() bool { return r.sock != nil }

func (r *correlator) attach(s Socket) { r.sock = s }

// detach forgets the socket and every outstanding request. Requests already sent
// are not cancelled on the server.
func (r *correlator) detach() Socket {
	s := r.sock
	r.sock = nil
	r.pending = map[string]request{}
	r.joins = map[int]string{}
	return s
}

func (r *correlator) withSocket(fn func(Socket) error) error {
	if r.sock == nil {
		return ErrNotConnected
	}
	return fn(r.sock)
}

// issue tracks a request and hands it to send. A send failure untracks it.
func (r *correlator) issue(op string, chatID int, send func(Socket, string) error) error {
	return r.withSocket(func(s Socket) error {
		id := r.newID()
		r.pending[id] = request{op: op, chatID: chatID}
		if op == OpJoinChat {
			r.joins[chatID] = id
		}
		if err := send(s, id); err != nil {
			r.resolve(id)
			return err
		}
		return nil
	})
}

// resolve pops a pending request.
func (r *correlator) resolve(reqID string) (request, bool) {
	if reqID == "" {
		return request{}, false
	}
	req, ok := r.pending[reqID]
	if !ok {
		return request{}, false
	}
	delete(r.pending, reqID)
	if req.op == OpJoinChat && r.joins[req.chatID] == reqID {
		delete(r.joins, req.chatID)
	}
	return req, true
}

func (r *correlator) joinPending(chatID int) bool {
	_, ok := r.joins[chatID]
	return ok
}

// settleJoin drops the outstanding join on chatID, if any.
func (r *correlator) settleJoin(chatID int) {
	if id, ok := r.joins[chatID]; ok {
		r.resolve(id)
	}
}

func (r *correlator) pendingCount() int { return len(r.pending) }

func (r *correlator) chatInfo(chatID int) error {
	return r.issue(OpChatInfo, chatID, func(s Socket, id string) error {
		return s.RequestChatInfo(id, chatID)
	})
}

func (r *correlator) initChat(name string, memberIDs []int) error {
	return r.issue(OpInitChat, 0, func(s Socket, id string) error {
		return s.RequestInitChat(id, name, memberIDs)
	})
}

func (r *correlator) joinChat(chatID, self int) error {
	return r.issue(OpJoinChat, chatID, func(s Socket, id string) error {
		return s.RequestJoinChat(id, chatID, self)
	})
}

func (r *correlator) quitChat(chatID, self int) error {
	return r.issue(OpQuitChat, chatID, func(s Socket, id string) error {
		return s.RequestQuitChat(id, chatID, self)
	})
}

func (r *correlator) sendMessage(key session.ConversationKey, text string) error {
	return r.issue(OpMessage, chatOf(key), func(s Socket, id string) error {
		return s.SendMessage(id, key, text)
	})
}

func (r *correlator) sendFile(key session.ConversationKey, name string, data []byte) error {
	return r.issue(OpFile, chatOf(key), func(s Socket, id string) error {
		return s.SendFileMsg(id, key, name, data)
	})
}

func (r *correlator) replyJoin(chatID, userID int, approve bool) error {
	return r.withSocket(func(s Socket) error {
		return s.ReplyJoin(chatID, userID, approve)
	})
}

func chatOf(key session.ConversationKey) int {
	if key.Kind == session.Group {
		return key.ID
	}
	return 0
}
