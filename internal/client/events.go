package client

import (
	"errors"

	"go.uber.org/zap"

	"github.com/pelusa-v/chatroom/internal/protocol"
	"github.com/pelusa-v/chatroom/internal/session"
)

// handleFrame applies one inbound frame. Runs on the loop.
func (c *Client) handleFrame(f protocol.Frame) {
	switch f.Type {
	case protocol.TypeUsers:
		c.store.SetUsers(f.Users)
		c.notify.directoryChanged(c.store.Users())

	case protocol.TypeChats:
		c.store.SetChats(f.Chats)
		c.settleJoins()
		c.notify.chatsChanged(c.store.Chats())
		c.members.reconcile()

	case protocol.TypeChatInfo:
		c.corr.resolve(f.ReqID)
		if f.Chat == nil {
			return
		}
		c.store.UpsertChat(*f.Chat)
		c.settleJoins()
		if c.members.selection().IsChat(f.Chat.ID) {
			c.notify.membersChanged(f.Chat.ID, c.store.Members(f.Chat.ID))
		}
		c.members.reconcile()

	case protocol.TypeChatCreated:
		c.corr.resolve(f.ReqID)
		if f.Chat != nil {
			c.store.UpsertChat(*f.Chat)
			c.notify.chatsChanged(c.store.Chats())
		}

	case protocol.TypeJoined:
		c.members.joined(f.ChatID, f.UserID)
		if f.UserID == c.store.Self().ID {
			c.corr.settleJoin(f.ChatID)
		}

	case protocol.TypeQuit:
		c.corr.resolve(f.ReqID)
		c.members.quit(f.ChatID, f.UserID)

	case protocol.TypeJoinRequest:
		chat, ok := c.store.Chat(f.ChatID)
		if !ok {
			chat = protocol.Chat{ID: f.ChatID}
		}
		c.notify.joinRequested(chat, c.members.user(f.UserID))

	case protocol.TypeJoinReject:
		c.corr.resolve(f.ReqID)
		c.corr.settleJoin(f.ChatID)
		c.members.abandonJoin(f.ChatID)
		c.notify.joinRejected(f.ChatID)

	case protocol.TypeMessage, protocol.TypeFile:
		c.corr.resolve(f.ReqID)
		c.deliver(f)

	case protocol.TypeError:
		req, ok := c.corr.resolve(f.ReqID)
		op := req.op
		if !ok {
			op = "unknown"
		}
		if op == OpJoinChat {
			c.members.abandonJoin(req.chatID)
		}
		c.log.Warn("request failed", zap.String("op", op), zap.String("error", f.Error))
		c.notify.requestFailed(op, errors.New(f.Error))

	default:
		c.log.Debug("ignoring frame", zap.String("type", f.Type))
	}
}

// settleJoins forgets outstanding joins the store already shows as done, or
// whose chat is gone.
func (c *Client) settleJoins() {
	self := c.store.Self().ID
	for chatID := range c.corr.joins {
		if _, ok := c.store.Chat(chatID); !ok || c.store.IsMember(chatID, self) {
			c.corr.settleJoin(chatID)
		}
	}
}

// deliver appends an inbound message or file exactly once.
func (c *Client) deliver(f protocol.Frame) {
	var key session.ConversationKey
	switch {
	case f.ChatID != 0:
		key = session.ChatKey(f.ChatID)
	case f.From == c.store.Self().ID:
		key = session.UserKey(f.To)
	default:
		key = session.UserKey(f.From)
	}

	sender := c.store.Label(f.From)
	var e session.Entry
	if f.Type == protocol.TypeFile {
		if f.File == nil {
			c.log.Warn("file frame without payload", zap.Int("from", f.From))
			return
		}
		e = session.FileEntry(sender, f.File.Name, f.File.Data)
	} else {
		e = session.TextEntry(sender, f.Text)
	}

	c.store.Append(key, e)
	if c.archive != nil {
		if err := c.archive.Append(c.store.Self().Name, key, e); err != nil {
			c.log.Warn("history archive append failed", zap.Stringer("conversation", key), zap.Error(err))
		}
	}
	c.notify.historyChanged(key, e)
}
