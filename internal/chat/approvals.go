package chat

import (
	"go.uber.org/zap"

	"github.com/pelusa-v/chatroom/internal/protocol"
)

// 入群申请：等待群创建者审批，只在 loop 里访问

func (m *ChatManager) ensureApprovals(chatID int) {
	if _, ok := m.approvals[chatID]; !ok {
		m.approvals[chatID] = map[int]*joinTicket{}
	}
}

func (m *ChatManager) queueJoin(chatID, userID int, t *joinTicket) {
	m.ensureApprovals(chatID)
	m.approvals[chatID][userID] = t
}

func (m *ChatManager) takeJoin(chatID, userID int) (*joinTicket, bool) {
	t, ok := m.approvals[chatID][userID]
	if !ok {
		return nil, false
	}
	delete(m.approvals[chatID], userID)
	if len(m.approvals[chatID]) == 0 {
		delete(m.approvals, chatID)
	}
	return t, true
}

// 某个群的申请全部以 error 回复并清掉
func (m *ChatManager) closeJoins(chatID int, reason string) {
	for userID, t := range m.approvals[chatID] {
		m.log.Debug("join request dropped", zap.Int("chat", chatID), zap.Int("user", userID), zap.String("reason", reason))
		m.replyError(t.Requester, t.ReqID, reason)
	}
	delete(m.approvals, chatID)
}

// 创建者下线：其名下所有群的申请都失败
func (m *ChatManager) failJoins(creatorID int, reason string) {
	for chatID := range m.approvals {
		if r, ok := m.Rooms[chatID]; ok && r.Creator != creatorID {
			continue
		}
		m.closeJoins(chatID, reason)
	}
}

// 群主转移：待审批的申请转给新群主，新群主不在线则失败
func (m *ChatManager) handoffJoins(chatID, creatorID int) {
	m.mu.RLock()
	creator := m.online[creatorID]
	m.mu.RUnlock()
	if creator == nil {
		m.closeJoins(chatID, "chat creator offline")
		return
	}
	for userID := range m.approvals[chatID] {
		m.send(creator, protocol.Frame{Type: protocol.TypeJoinRequest, ChatID: chatID, UserID: userID})
	}
}

// 连接断开：丢掉它发起的申请
func (m *ChatManager) forgetRequester(c *Client) {
	for chatID, tickets := range m.approvals {
		for userID, t := range tickets {
			if t.Requester == c {
				delete(tickets, userID)
			}
		}
		if len(tickets) == 0 {
			delete(m.approvals, chatID)
		}
	}
}
