package chat

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pelusa-v/chatroom/internal/protocol"
)

var (
	ErrInvalidCredentials = errors.New("invalid name or password")
	ErrNameTaken          = errors.New("name already registered")
	ErrEmptyName          = errors.New("name is required")
	ErrEmptyPassword      = errors.New("password is required")
)

type account struct {
	user protocol.User
	hash []byte
}

// 登录；register 为 true 时先注册。账号只存在内存里
func (m *ChatManager) Authenticate(name, password string, register bool) (protocol.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return protocol.User{}, ErrEmptyName
	}
	if register {
		return m.register(name, password)
	}

	m.mu.RLock()
	a, ok := m.accounts[name]
	m.mu.RUnlock()
	if !ok {
		return protocol.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return protocol.User{}, ErrInvalidCredentials
	}
	return a.user, nil
}

func (m *ChatManager) register(name, password string) (protocol.User, error) {
	if password == "" {
		return protocol.User{}, ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.hashCost)
	if err != nil {
		return protocol.User{}, fmt.Errorf("hash password: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[name]; ok {
		return protocol.User{}, ErrNameTaken
	}
	m.nextUser++
	a := &account{user: protocol.User{ID: m.nextUser, Name: name}, hash: hash}
	m.accounts[name] = a
	m.usersByID[a.user.ID] = a
	return a.user, nil
}
