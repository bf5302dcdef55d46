// Package auth handles GitHub login and signed session tokens.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/ncecere/viberank/internal/config"
)

var (
	ErrGitHubDisabled = errors.New("github login disabled")
	ErrInvalidSession = errors.New("invalid or expired session")
)

type Service struct {
	tokens *TokenManager
	github *GitHubProvider
	admins map[string]struct{}
}

func NewService(cfg config.AuthConfig) (*Service, error) {
	tokens, err := NewTokenManager(cfg.Session.JWTSecret, cfg.Session.TTL)
	if err != nil {
		return nil, err
	}
	var provider *GitHubProvider
	if cfg.GitHub.Enabled {
		provider = NewGitHubProvider(cfg.GitHub)
	}
	admins := make(map[string]struct{}, len(cfg.AdminLogins))
	for _, login := range cfg.AdminLogins {
		admins[strings.ToLower(strings.TrimSpace(login))] = struct{}{}
	}
	return &Service{tokens: tokens, github: provider, admins: admins}, nil
}

func (s *Service) GitHubEnabled() bool { return s.github != nil }

func (s *Service) StartLogin(state string) (string, error) {
	if s.github == nil {
		return "", ErrGitHubDisabled
	}
	return s.github.AuthCodeURL(state), nil
}

// CompleteLogin exchanges the callback code and issues a session token.
func (s *Service) CompleteLogin(ctx context.Context, code string) (string, *Session, error) {
	if s.github == nil {
		return "", nil, ErrGitHubDisabled
	}
	user, err := s.github.Exchange(ctx, code)
	if err != nil {
		return "", nil, err
	}
	return s.IssueSession(*user)
}

func (s *Service) IssueSession(user GitHubUser) (string, *Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, &Session{Login: user.Login, Name: user.Name, AvatarURL: user.AvatarURL, ExpiresAt: expires}, nil
}

func (s *Service) Authenticate(token string) (*Session, error) {
	return s.tokens.Parse(token)
}

// IsAdmin matches logins case-insensitively, as GitHub does.
func (s *Service) IsAdmin(login string) bool {
	_, ok := s.admins[strings.ToLower(login)]
	return ok
}
