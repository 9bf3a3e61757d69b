package session

import (
	"fmt"
	"sort"

	"github.com/pelusa-v/chatroom/internal/protocol"
)

// Store holds the local view of the chat system. It is not safe for concurrent use;
// the client confines it to its mutation loop.
type Store struct {
	self protocol.User

	users map[int]protocol.User
	chats map[int]protocol.Chat

	chatHistory   map[int][]Entry // chat id -> entries
	directHistory map[int][]Entry // peer user id -> entries
}

func NewStore() *Store {
	return &Store{
		users:         map[int]protocol.User{},
		chats:         map[int]protocol.Chat{},
		chatHistory:   map[int][]Entry{},
		directHistory: map[int][]Entry{},
	}
}

func (s *Store) SetSelf(u protocol.User) { s.self = u }
func (s *Store) Self() protocol.User     { return s.self }

// SetUsers replaces the directory snapshot. History is not touched.
func (s *Store) SetUsers(list []protocol.User) {
	s.users = make(map[int]protocol.User, len(list))
	for _, u := range list {
		s.users[u.ID] = u
	}
}

func (s *Store) User(id int) (protocol.User, bool) {
	u, ok := s.users[id]
	return u, ok
}

func (s *Store) Users() []protocol.User {
	out := make([]protocol.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Label is the sender label used in history: the display name, or #id when unknown.
func (s *Store) Label(userID int) string {
	if userID == s.self.ID && s.self.Name != "" {
		return s.self.Name
	}
	if u, ok := s.users[userID]; ok && u.Name != "" {
		return u.Name
	}
	return fmt.Sprintf("#%d", userID)
}

// SetChats replaces the chat snapshot. Chats missing from list are gone, including
// from MyChats.
func (s *Store) SetChats(list []protocol.Chat) {
	s.chats = make(map[int]protocol.Chat, len(list))
	for _, c := range list {
		s.chats[c.ID] = cloneChat(c)
	}
}

// UpsertChat replaces a single chat, e.g. after a chat info reply.
func (s *Store) UpsertChat(c protocol.Chat) {
	s.chats[c.ID] = cloneChat(c)
}

func (s *Store) Chat(id int) (protocol.Chat, bool) {
	c, ok := s.chats[id]
	if !ok {
		return protocol.Chat{}, false
	}
	return cloneChat(c), true
}

func (s *Store) Chats() []protocol.Chat {
	out := make([]protocol.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, cloneChat(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MyChats returns the chats the local user belongs to.
func (s *Store) MyChats() []protocol.Chat {
	out := make([]protocol.Chat, 0)
	for _, c := range s.Chats() {
		if c.HasMember(s.self.ID) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) IsMember(chatID, userID int) bool {
	c, ok := s.chats[chatID]
	return ok && c.HasMember(userID)
}

// AddMember adds userID to a known chat. It reports whether the set changed.
func (s *Store) AddMember(chatID, userID int) bool {
	c, ok := s.chats[chatID]
	if !ok || c.HasMember(userID) {
		return false
	}
	c.Members = append(c.Members, userID)
	s.chats[chatID] = c
	return true
}

// RemoveMember drops userID from a known chat. It reports whether the set changed.
func (s *Store) RemoveMember(chatID, userID int) bool {
	c, ok := s.chats[chatID]
	if !ok || !c.HasMember(userID) {
		return false
	}
	members := make([]int, 0, len(c.Members)-1)
	for _, m := range c.Members {
		if m != userID {
			members = append(members, m)
		}
	}
	c.Members = members
	s.chats[chatID] = c
	return true
}

// Members resolves a chat's member ids against the directory.
func (s *Store) Members(chatID int) []protocol.User {
	c, ok := s.chats[chatID]
	if !ok {
		return []protocol.User{}
	}
	out := make([]protocol.User, 0, len(c.Members))
	for _, id := range c.Members {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
			continue
		}
		out = append(out, protocol.User{ID: id, Name: s.Label(id)})
	}
	return out
}

// Append adds e at the end of the conversation. There is no deduplication.
func (s *Store) Append(key ConversationKey, e Entry) {
	switch key.Kind {
	case Group:
		s.chatHistory[key.ID] = append(s.chatHistory[key.ID], e)
	case Direct:
		s.directHistory[key.ID] = append(s.directHistory[key.ID], e)
	}
}

// ClearHistory drops every conversation.
func (s *Store) ClearHistory() {
	s.chatHistory = map[int][]Entry{}
	s.directHistory = map[int][]Entry{}
}

// History returns a copy of the conversation in arrival order. It is never nil.
func (s *Store) History(key ConversationKey) []Entry {
	var src []Entry
	switch key.Kind {
	case Group:
		src = s.chatHistory[key.ID]
	case Direct:
		src = s.directHistory[key.ID]
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

func cloneChat(c protocol.Chat) protocol.Chat {
	members := make([]int, len(c.Members))
	copy(members, c.Members)
	c.Members = members
	return c
}
