package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pelusa-v/chatroom/internal/archive"
	"github.com/pelusa-v/chatroom/internal/client"
	"github.com/pelusa-v/chatroom/internal/session"
)

var registerAccount bool

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a relay with the terminal client",
	RunE: func(cmd *cobra.Command, args []string) error {
		term := newTerminal(os.Stdin, os.Stdout)

		opts := []client.Option{client.WithLogger(logger.Named("client")), client.WithPrompter(term)}
		if cfg.Client.ArchivePath != "" {
			store, err := archive.Open(cfg.Client.ArchivePath)
			if err != nil {
				return err
			}
			defer store.Close()
			opts = append(opts, client.WithArchive(store))
		}
		c := client.New(cfg.Client.ServerURL, opts...)
		defer c.Close()
		term.attach(c)

		creds := client.Credentials{Name: cfg.Client.Username, Password: cfg.Client.Password, Register: registerAccount}
		if creds.Name == "" {
			creds.Name = term.Input("Name:")
		}
		if creds.Password == "" {
			creds.Password = term.Input("Password:")
		}
		if creds.Register {
			creds.Confirm = term.Input("Confirm password:")
		}

		ctx := cmd.Context()
		if d := cfg.Client.DialTimeout; d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		if err := c.Connect(ctx, creds); err != nil {
			return err
		}
		term.printf("connected as %s. /help lists commands.\n", c.Self().Name)
		return term.repl(c)
	},
}

func init() {
	connectCmd.Flags().BoolVar(&registerAccount, "register", false, "create the account before logging in")
}

var errQuit = errors.New("quit")

const helpText = `/users                 online users
/chats                 all chats, * marks yours
/dm <user>             talk to a user
/chat <chat>           open a chat, asking to join if needed
/new <user>...         create a chat with the given users
/members               members of the open chat
/history               history of the open conversation
/file <path>           send a file to the open conversation
/approve <chat> <user> let a user into your chat
/deny <chat> <user>    refuse a join request
/leave                 quit the open chat
/close                 close the open conversation
/quit                  disconnect and exit
anything else is sent as a message
`

func (t *terminal) repl(c *client.Client) error {
	for {
		line, err := t.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := t.run(c, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			t.printf("! %v\n", err)
		}
	}
}

func (t *terminal) run(c *client.Client, line string) error {
	if !strings.HasPrefix(line, "/") {
		c.SetDraft(line)
		return c.SendDraft()
	}
	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case "/help":
		t.printf("%s", helpText)
	case "/users":
		for _, u := range c.Users() {
			t.printf("  %d %s\n", u.ID, u.Name)
		}
	case "/chats":
		mine := map[int]bool{}
		for _, ch := range c.MyChats() {
			mine[ch.ID] = true
		}
		for _, ch := range c.Chats() {
			mark := " "
			if mine[ch.ID] {
				mark = "*"
			}
			t.printf(" %s%d %s (%d members)\n", mark, ch.ID, ch.Name, len(ch.Members))
		}
	case "/dm":
		id, err := intArg(args, 0)
		if err != nil {
			return err
		}
		return c.SelectUser(id)
	case "/chat":
		id, err := intArg(args, 0)
		if err != nil {
			return err
		}
		return c.SelectChat(id)
	case "/new":
		var ids []int
		for i := range args {
			id, err := intArg(args, i)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return c.InitChat(ids)
	case "/members":
		sel := c.Selection()
		if sel.State != session.GroupChat {
			return client.ErrInvalidSelection
		}
		for _, u := range c.Members(sel.ChatID) {
			t.printf("  %d %s\n", u.ID, u.Name)
		}
	case "/history":
		key := c.Selection().Key()
		if key.IsZero() {
			return client.ErrInvalidSelection
		}
		for _, e := range c.History(key) {
			t.printf("  %s: %s\n", e.Sender, e.Summary())
		}
	case "/file":
		if len(args) == 0 {
			return errors.New("usage: /file <path>")
		}
		return c.SendFile(strings.Join(args, " "))
	case "/approve", "/deny":
		chatID, err := intArg(args, 0)
		if err != nil {
			return err
		}
		userID, err := intArg(args, 1)
		if err != nil {
			return err
		}
		return c.ApproveJoin(chatID, userID, fields[0] == "/approve")
	case "/leave":
		return c.QuitChat()
	case "/close":
		c.ClearSelection()
	case "/quit":
		if err := c.Disconnect(); err != nil && !errors.Is(err, client.ErrNotConnected) {
			return err
		}
		return errQuit
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
	return nil
}

func intArg(args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("not a number: %s", args[i])
	}
	return n, nil
}
