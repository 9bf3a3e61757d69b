package client

import (
	"go.uber.org/zap"

	"github.com/pelusa-v/chatroom/internal/protocol"
	"github.com/pelusa-v/chatroom/internal/session"
)

// membership applies join/quit events to the store and keeps the active selection
// consistent with them. Confined to the client loop.
type membership struct {
	store  *session.Store
	notify *notifier
	log    *zap.Logger
	sel    session.Selection
}

func (m *membership) selection() session.Selection { return m.sel }

func (m *membership) set(next session.Selection) {
	if next == m.sel {
		return
	}
	m.sel = next
	m.log.Debug("selection changed", zap.Stringer("selection", next))
	m.notify.selectionChanged(next)
}

// lose clears a group selection the local user can no longer be in.
func (m *membership) lose() {
	chatID := m.sel.ChatID
	m.set(session.None())
	m.notify.membershipLost(chatID)
}

func (m *membership) user(id int) protocol.User {
	if u, ok := m.store.User(id); ok {
		return u
	}
	return protocol.User{ID: id, Name: m.store.Label(id)}
}

func (m *membership) joined(chatID, userID int) {
	changed := m.store.AddMember(chatID, userID)
	if !m.sel.IsChat(chatID) {
		return
	}
	chat, _ := m.store.Chat(chatID)
	if changed {
		m.notify.userJoined(chat, m.user(userID))
	}
	if userID == m.store.Self().ID && !m.sel.Joined {
		m.set(session.InChat(chatID, true))
	}
}

func (m *membership) quit(chatID, userID int) {
	changed := m.store.RemoveMember(chatID, userID)
	if !m.sel.IsChat(chatID) {
		return
	}
	chat, _ := m.store.Chat(chatID)
	if changed {
		m.notify.userQuit(chat, m.user(userID))
	}
	if userID == m.store.Self().ID {
		m.lose()
	}
}

// reconcile runs after the chat list or a chat changed: a selected chat that is
// gone, or that no longer has the local user while joined, is dropped. A pending
// join on a chat that is gone counts as rejected; one whose chat now lists the
// local user is promoted.
func (m *membership) reconcile() {
	if m.sel.State != session.GroupChat {
		return
	}
	chat, ok := m.store.Chat(m.sel.ChatID)
	if !ok {
		if !m.sel.Joined {
			chatID := m.sel.ChatID
			m.abandonJoin(chatID)
			m.notify.joinRejected(chatID)
			return
		}
		m.lose()
		return
	}
	member := chat.HasMember(m.store.Self().ID)
	switch {
	case m.sel.Joined && !member:
		m.lose()
	case !m.sel.Joined && member:
		m.set(session.InChat(chat.ID, true))
	}
}

// abandonJoin drops a pending selection on chatID after a rejection.
func (m *membership) abandonJoin(chatID int) {
	if m.sel.IsChat(chatID) && !m.sel.Joined {
		m.set(session.None())
	}
}
