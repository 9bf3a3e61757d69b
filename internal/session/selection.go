package session

import "fmt"

type SelectionState int

const (
	NoSelection SelectionState = iota
	DirectChat
	GroupChat
)

// Selection is the conversation the user is looking at. Joined is only meaningful
// for GroupChat: false means a join request is outstanding.
type Selection struct {
	State  SelectionState
	UserID int
	ChatID int
	Joined bool
}

func None() Selection { return Selection{} }

func DirectWith(userID int) Selection {
	return Selection{State: DirectChat, UserID: userID}
}

func InChat(chatID int, joined bool) Selection {
	return Selection{State: GroupChat, ChatID: chatID, Joined: joined}
}

// Key returns the conversation messages go to, or the zero key when nothing can be
// sent (no selection, or a join still pending).
func (s Selection) Key() ConversationKey {
	switch s.State {
	case DirectChat:
		return UserKey(s.UserID)
	case GroupChat:
		if s.Joined {
			return ChatKey(s.ChatID)
		}
	}
	return ConversationKey{}
}

func (s Selection) IsChat(chatID int) bool {
	return s.State == GroupChat && s.ChatID == chatID
}

func (s Selection) String() string {
	switch s.State {
	case DirectChat:
		return fmt.Sprintf("direct(%d)", s.UserID)
	case GroupChat:
		return fmt.Sprintf("group(%d, joined=%t)", s.ChatID, s.Joined)
	default:
		return "none"
	}
}
