package chat

import "github.com/pelusa-v/chatroom/internal/protocol"

type inbound struct {
	client *Client
	frame  protocol.Frame
}

// 群；成员在 Subscriptions 里
type room struct {
	ID      int
	Name    string
	Creator int
}

type UserJson struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

type ChatJson struct {
	protocol.Chat
	Member    bool `json:"member"`
	IsCreator bool `json:"is_creator"`
}

type Subscriptions struct {
	UserChats map[int]map[int]bool // user id -> set(chat id)
	ChatUsers map[int]map[int]bool // chat id -> set(user id)
}

type joinTicket struct {
	ReqID string
	Requester *Client
}

type Approvals map[int]map[int]*joinTicket // chat id -> requester user id -> ticket
