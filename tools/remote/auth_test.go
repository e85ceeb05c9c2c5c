package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordGrant(t *testing.T) {
	var (
		mu          sync.Mutex
		form        url.Values
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		form, contentType = r.PostForm, r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	ts, err := PasswordGrant(context.Background(), TokenConfig{
		TokenURL: srv.URL + "/api/oauth/token",
		Username: "operator",
		Password: "s3cret",
		ClientID: "twin",
		Scopes:   []string{"full"},
	}, srv.Client())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "password", form.Get("grant_type"))
	assert.Equal(t, "operator", form.Get("username"))
	assert.Equal(t, "s3cret", form.Get("password"))
	assert.Equal(t, "twin", form.Get("client_id"))
	assert.Equal(t, "full", form.Get("scope"))
}

func TestPasswordGrant_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := PasswordGrant(context.Background(), TokenConfig{
		TokenURL: srv.URL, Username: "u", Password: "p",
	}, srv.Client())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password grant")
}

func TestPasswordGrant_IncompleteConfig(t *testing.T) {
	_, err := PasswordGrant(context.Background(), TokenConfig{TokenURL: "http://x"}, nil)
	assert.ErrorIs(t, err, ErrTokenConfig)
	assert.Contains(t, err.Error(), "username, password")
}

func TestStaticToken(t *testing.T) {
	assert.Nil(t, StaticToken("  "))

	tok, err := StaticToken(" abc ").Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
}
