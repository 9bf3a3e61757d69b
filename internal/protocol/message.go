package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame types. Client requests, server replies and broadcasts share one envelope.
const (
	TypeLogin    = "login"
	TypeRegister = "register"
	TypeWelcome  = "welcome"
	TypeError    = "error"

	TypeUsers = "users" // directory snapshot
	TypeChats = "chats" // chat list snapshot

	TypeChatInfo    = "chat_info"
	TypeInitChat    = "init_chat"
	TypeChatCreated = "chat_created"
	TypeJoinChat    = "join_chat"
	TypeJoinRequest = "join_request" // forwarded to the chat creator
	TypeJoinReply   = "join_reply"
	TypeJoinReject  = "join_rejected"
	TypeJoined      = "joined"
	TypeQuitChat    = "quit_chat"
	TypeQuit        = "quit"

	TypeMessage = "message"
	TypeFile    = "file"
)

type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Chat struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Creator int    `json:"creator"`
	Members []int  `json:"members"`
}

// HasMember reports whether userID is in the member set.
func (c Chat) HasMember(userID int) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

type FilePayload struct {
	Name string `json:"name"`
	Data []byte `json:"data"` // base64 on the wire
}

type Frame struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`

	// login / register
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`

	ChatID  int   `json:"chat_id,omitempty"`
	UserID  int   `json:"user_id,omitempty"`
	Members []int `json:"members,omitempty"`
	Approve bool  `json:"approve,omitempty"`

	// message / file: either ChatID (group) or To (direct) is set
	From int          `json:"from,omitempty"`
	To   int          `json:"to,omitempty"`
	Text string       `json:"text,omitempty"`
	File *FilePayload `json:"file,omitempty"`

	// filled by server
	User  *User  `json:"user,omitempty"`
	Users []User `json:"users,omitempty"`
	Chat  *Chat  `json:"chat,omitempty"`
	Chats []Chat `json:"chats,omitempty"`
	Error string `json:"error,omitempty"`
}

func Encode(f Frame) ([]byte, error) {
	b, err := json.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return b, nil
}

func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

// ErrorReply builds an error frame correlated to reqID.
func ErrorReply(reqID, msg string) Frame {
	return Frame{Type: TypeError, ReqID: reqID, Error: msg}
}
