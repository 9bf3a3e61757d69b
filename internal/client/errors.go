package client

import "errors"

var (
	// ErrNotConnected is returned by every intent issued without a live socket.
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidSelection means the action needs an active conversation, or the
	// requested target cannot be selected.
	ErrInvalidSelection = errors.New("no valid conversation selected")
	// ErrEmptyMemberList is returned by InitChat when no member other than the
	// local user was picked.
	ErrEmptyMemberList = errors.New("pick at least one other member")
	// ErrFileRead wraps the local I/O error of a file send. Nothing was sent.
	ErrFileRead = errors.New("read file")

	ErrChatNameRequired = errors.New("chat name required")
	ErrAlreadyConnected = errors.New("already connected")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrHandshake        = errors.New("handshake rejected")
	ErrClosed           = errors.New("client closed")

	errSendBufferFull = errors.New("send buffer full")
)
