package chat

import (
	"sort"

	"github.com/pelusa-v/chatroom/internal/protocol"
)

func newSubscriptions() *Subscriptions {
	return &Subscriptions{
		UserChats: map[int]map[int]bool{},
		ChatUsers: map[int]map[int]bool{},
	}
}

func (s *Subscriptions) subscribe(userID, chatID int) bool {
	if s.ChatUsers[chatID][userID] {
		return false
	}
	if _, ok := s.UserChats[userID]; !ok {
		s.UserChats[userID] = map[int]bool{}
	}
	s.UserChats[userID][chatID] = true

	if _, ok := s.ChatUsers[chatID]; !ok {
		s.ChatUsers[chatID] = map[int]bool{}
	}
	s.ChatUsers[chatID][userID] = true
	return true
}

func (s *Subscriptions) unsubscribe(userID, chatID int) bool {
	if !s.ChatUsers[chatID][userID] {
		return false
	}
	if uc, ok := s.UserChats[userID]; ok {
		delete(uc, chatID)
		if len(uc) == 0 {
			delete(s.UserChats, userID)
		}
	}
	delete(s.ChatUsers[chatID], userID)
	return true
}

func (s *Subscriptions) drop(chatID int) {
	for userID := range s.ChatUsers[chatID] {
		if uc, ok := s.UserChats[userID]; ok {
			delete(uc, chatID)
			if len(uc) == 0 {
				delete(s.UserChats, userID)
			}
		}
	}
	delete(s.ChatUsers, chatID)
}

func (s *Subscriptions) isMember(userID, chatID int) bool {
	return s.ChatUsers[chatID][userID]
}

func (s *Subscriptions) members(chatID int) []int {
	out := make([]int, 0, len(s.ChatUsers[chatID]))
	for id := range s.ChatUsers[chatID] {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// 创建群并设置创建者；自动加入创建者，未知用户跳过
func (m *ChatManager) createChat(creator int, name string, memberIDs []int) protocol.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextChat++
	r := &room{ID: m.nextChat, Name: name, Creator: creator}
	m.Rooms[r.ID] = r
	m.Subs.subscribe(creator, r.ID)
	for _, id := range memberIDs {
		if _, ok := m.usersByID[id]; ok {
			m.Subs.subscribe(id, r.ID)
		}
	}
	return m.chatLocked(r)
}

func (m *ChatManager) addMember(chatID, userID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Rooms[chatID]; !ok {
		return false
	}
	return m.Subs.subscribe(userID, chatID)
}

// 退群：没人了就删群；创建者退出则转给 id 最小的成员
func (m *ChatManager) removeMember(chatID, userID int) (rest []int, alive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.Rooms[chatID]
	if !ok || !m.Subs.unsubscribe(userID, chatID) {
		return nil, ok
	}
	rest = m.Subs.members(chatID)
	if len(rest) == 0 {
		m.Subs.drop(chatID)
		delete(m.Rooms, chatID)
		return nil, false
	}
	if r.Creator == userID {
		r.Creator = rest[0]
	}
	return rest, true
}

func (m *ChatManager) chatLocked(r *room) protocol.Chat {
	return protocol.Chat{ID: r.ID, Name: r.Name, Creator: r.Creator, Members: m.Subs.members(r.ID)}
}

func (m *ChatManager) Chat(chatID int) (protocol.Chat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.Rooms[chatID]
	if !ok {
		return protocol.Chat{}, false
	}
	return m.chatLocked(r), true
}

func (m *ChatManager) Chats() []protocol.Chat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.Chat, 0, len(m.Rooms))
	for _, r := range m.Rooms {
		out = append(out, m.chatLocked(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// 返回：群列表，包含该用户的成员状态与创建者信息
func (m *ChatManager) ListChatsFor(name string) []ChatJson {
	chats := m.Chats()

	m.mu.RLock()
	uid := 0
	if a, ok := m.accounts[name]; ok {
		uid = a.user.ID
	}
	m.mu.RUnlock()

	res := make([]ChatJson, 0, len(chats))
	for _, c := range chats {
		res = append(res, ChatJson{
			Chat:      c,
			Member:    uid != 0 && c.HasMember(uid),
			IsCreator: uid != 0 && c.Creator == uid,
		})
	}
	return res
}
