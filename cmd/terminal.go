package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pelusa-v/chatroom/internal/client"
	"github.com/pelusa-v/chatroom/internal/protocol"
	"github.com/pelusa-v/chatroom/internal/session"
)

// attach prints client notifications. Callbacks run on the client loop, so they
// only print.
func (t *terminal) attach(c *client.Client) {
	c.Subscribe(client.Callbacks{
		HistoryChanged: func(key session.ConversationKey, e session.Entry) {
			t.printf("[%s] %s: %s\n", key, e.Sender, e.Summary())
		},
		SelectionChanged: func(s session.Selection) {
			t.printf("-- now in %s\n", s)
		},
		UserJoined: func(ch protocol.Chat, u protocol.User) {
			t.printf("-- %s joined %s\n", u.Name, ch.Name)
		},
		UserQuit: func(ch protocol.Chat, u protocol.User) {
			t.printf("-- %s left %s\n", u.Name, ch.Name)
		},
		MembershipLost: func(chatID int) {
			t.printf("-- you are no longer in chat %d\n", chatID)
		},
		JoinRequested: func(ch protocol.Chat, u protocol.User) {
			t.printf("-- %s (%d) asks to join %s: /approve %d %d or /deny %d %d\n",
				u.Name, u.ID, ch.Name, ch.ID, u.ID, ch.ID, u.ID)
		},
		JoinRejected: func(chatID int) {
			t.printf("-- join request for chat %d was refused\n", chatID)
		},
		RequestFailed: func(op string, err error) {
			t.printf("! %s failed: %v\n", op, err)
		},
		Disconnected: func(err error) {
			if err != nil {
				t.printf("-- disconnected: %v\n", err)
				return
			}
			t.printf("-- disconnected\n")
		},
	})
}

// terminal is the line-oriented UI: it answers prompts from stdin and prints
// notifications as they arrive.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
	mu  sync.Mutex
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *terminal) Confirm(prompt string) bool {
	t.printf("%s [y/N] ", prompt)
	line, err := t.readLine()
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (t *terminal) Input(prompt string) string {
	t.printf("%s ", prompt)
	line, err := t.readLine()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}
