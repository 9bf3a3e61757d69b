package session

import "fmt"

type Kind int

const (
	Group Kind = iota + 1
	Direct
)

func (k Kind) String() string {
	switch k {
	case Group:
		return "group"
	case Direct:
		return "direct"
	default:
		return "none"
	}
}

// ConversationKey names a group chat or a direct conversation with a peer, never both.
type ConversationKey struct {
	Kind Kind
	ID   int
}

func ChatKey(chatID int) ConversationKey { return ConversationKey{Kind: Group, ID: chatID} }
func UserKey(userID int) ConversationKey { return ConversationKey{Kind: Direct, ID: userID} }

func (k ConversationKey) IsZero() bool { return k.Kind == 0 }

func (k ConversationKey) String() string {
	if k.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

// Content is either Text or FileRef.
type Content interface {
	isContent()
}

type Text string

type FileRef struct {
	Name string
	Data []byte
}

func (Text) isContent()    {}
func (FileRef) isContent() {}

type Entry struct {
	Sender  string
	Content Content
}

func TextEntry(sender, text string) Entry {
	return Entry{Sender: sender, Content: Text(text)}
}

func FileEntry(sender, name string, data []byte) Entry {
	return Entry{Sender: sender, Content: FileRef{Name: name, Data: data}}
}

// Summary is a one-line plain form of the entry content.
func (e Entry) Summary() string {
	switch c := e.Content.(type) {
	case Text:
		return string(c)
	case FileRef:
		return fmt.Sprintf("[file %s, %d bytes]", c.Name, len(c.Data))
	default:
		return ""
	}
}

// Record is an entry together with the conversation it belongs to.
type Record struct {
	Key   ConversationKey
	Entry Entry
}
