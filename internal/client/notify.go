package client

import (
	"github.com/pelusa-v/chatroom/internal/protocol"
	"github.com/pelusa-v/chatroom/internal/session"
)

// Callbacks is what a UI collaborator registers with Subscribe. Nil fields are
// skipped. Every callback runs on the client loop: it must not call back into the
// blocking Client methods, and should hand work off if it is slow.
type Callbacks struct {
	DirectoryChanged func(users []protocol.User)
	ChatsChanged     func(chats []protocol.Chat)
	HistoryChanged   func(key session.ConversationKey, entry session.Entry)
	MembersChanged   func(chatID int, members []protocol.User)
	UserJoined       func(chat protocol.Chat, user protocol.User)
	UserQuit         func(chat protocol.Chat, user protocol.User)
	SelectionChanged func(sel session.Selection)
	// MembershipLost reports that the active chat was left, disbanded, or the
	// local user was removed from it. The selection is already cleared.
	MembershipLost func(chatID int)
	// JoinRequested asks the chat creator to answer with Client.ApproveJoin.
	JoinRequested func(chat protocol.Chat, user protocol.User)
	JoinRejected  func(chatID int)
	RequestFailed func(op string, err error)
	Disconnected  func(err error)
}

type notifier struct {
	subs []Callbacks
}

func (n *notifier) add(cb Callbacks) { n.subs = append(n.subs, cb) }

func (n *notifier) directoryChanged(users []protocol.User) {
	for _, s := range n.subs {
		if s.DirectoryChanged != nil {
			s.DirectoryChanged(users)
		}
	}
}

func (n *notifier) chatsChanged(chats []protocol.Chat) {
	for _, s := range n.subs {
		if s.ChatsChanged != nil {
			s.ChatsChanged(chats)
		}
	}
}

func (n *notifier) historyChanged(key session.ConversationKey, e session.Entry) {
	for _, s := range n.subs {
		if s.HistoryChanged != nil {
			s.HistoryChanged(key, e)
		}
	}
}

func (n *notifier) membersChanged(chatID int, members []protocol.User) {
	for _, s := range n.subs {
		if s.MembersChanged != nil {
			s.MembersChanged(chatID, members)
		}
	}
}

func (n *notifier) userJoined(chat protocol.Chat, user protocol.User) {
	for _, s := range n.subs {
		if s.UserJoined != nil {
			s.UserJoined(chat, user)
		}
	}
}

func (n *notifier) userQuit(chat protocol.Chat, user protocol.User) {
	for _, s := range n.subs {
		if s.UserQuit != nil {
			s.UserQuit(chat, user)
		}
	}
}

func (n *notifier) selectionChanged(sel session.Selection) {
	for _, s := range n.subs {
		if s.SelectionChanged != nil {
			s.SelectionChanged(sel)
		}
	}
}

func (n *notifier) membershipLost(chatID int) {
	for _, s := range n.subs {
		if s.MembershipLost != nil {
			s.MembershipLost(chatID)
		}
	}
}

func (n *notifier) joinRequested(chat protocol.Chat, user protocol.User) {
	for _, s := range n.subs {
		if s.JoinRequested != nil {
			s.JoinRequested(chat, user)
		}
	}
}

func (n *notifier) joinRejected(chatID int) {
	for _, s := range n.subs {
		if s.JoinRejected != nil {
			s.JoinRejected(chatID)
		}
	}
}

func (n *notifier) requestFailed(op string, err error) {
	for _, s := range n.subs {
		if s.RequestFailed != nil {
			s.RequestFailed(op, err)
		}
	}
}

func (n *notifier) disconnected(err error) {
	for _, s := range n.subs {
		if s.Disconnected != nil {
			s.Disconnected(err)
		}
	}
}
