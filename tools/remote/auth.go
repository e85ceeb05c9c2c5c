package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ErrTokenConfig 口令授权配置不完整
var ErrTokenConfig = errors.New("oauth token config incomplete")

// TokenConfig 描述一次 OAuth 口令授权（grant_type=password）
type TokenConfig struct {
	TokenURL string
	Username string
	Password string
	ClientID string
	Scopes   []string
}

func (c TokenConfig) validate() error {
	var missing []string
	if strings.TrimSpace(c.TokenURL) == "" {
		missing = append(missing, "token_url")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrTokenConfig, strings.Join(missing, ", "))
	}
	return nil
}

// PasswordGrant 向令牌端点发送一次表单编码的口令授权请求，返回固定令牌源。
// 令牌不会自动刷新，过期后需要重新启动会话。
func PasswordGrant(ctx context.Context, cfg TokenConfig, client *http.Client) (oauth2.TokenSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	oc := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: cfg.Scopes,
	}
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}

	tok, err := oc.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return oauth2.StaticTokenSource(tok), nil
}

// StaticToken 返回预先签发的 bearer 令牌源，token 为空时返回 nil
func StaticToken(token string) oauth2.TokenSource {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}
