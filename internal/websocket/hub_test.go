package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"adminauth/internal/rbac"
	"adminauth/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource map[string][]string

func (s staticSource) GrantedPermissions(_ context.Context, role string) ([]string, bool, error) {
	keys, ok := s[role]
	return keys, ok, nil
}

func newServer(t *testing.T) (*httptest.Server, *Hub, *token.Issuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	iss, err := token.NewIssuer(nil, token.IssuerConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)
	guard := rbac.NewGuard(staticSource{"admin": {"role.*"}, "user": {"profile.*"}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", Handler(hub, iss, guard, rbac.PermRoleView))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub, iss
}

func wsURL(srv *httptest.Server, tok string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tok
}

func TestHandler_RejectsBadTokensAndRoles(t *testing.T) {
	srv, _, iss := newServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "garbage"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	pair, err := iss.IssuePair(token.Subject{UserID: "u1", Role: "user"})
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, pair.AccessToken), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_BroadcastsEvents(t *testing.T) {
	srv, hub, iss := newServer(t)
	pair, err := iss.IssuePair(token.Subject{UserID: "u1", Role: "admin"})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, pair.AccessToken), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Notify("permissions.changed", map[string]any{"roles": []string{"admin"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "permissions.changed", ev.Type)
	assert.False(t, ev.At.IsZero())
}
