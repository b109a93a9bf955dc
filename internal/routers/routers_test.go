package routers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ProjectChat/internal/authz"
	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/handlers"
	"github.com/Gopher0727/ProjectChat/internal/repositories/repotest"
	"github.com/Gopher0727/ProjectChat/internal/routers"
	"github.com/Gopher0727/ProjectChat/internal/services"
	"github.com/Gopher0727/ProjectChat/internal/ws"
	"github.com/Gopher0727/ProjectChat/middleware/jwt"
	"github.com/Gopher0727/ProjectChat/utils/snowflake"
)

const (
	alice int64 = 2001
	bob   int64 = 2002
	carol int64 = 2003
)

type api struct {
	t      *testing.T
	engine *gin.Engine
	tokens map[int64]string
	rec    *events.Recorder
	hub    *ws.Hub
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tm := jwt.NewTokenManager("router-test-secret", 1)
	rec := &events.Recorder{}
	deps := services.Deps{
		Store:  repotest.NewStore(t),
		Oracle: authz.NewClaimsOracle(),
		Events: rec,
		IDs:    snowflake.MustNode(3),
	}
	channels := services.NewChannelService(deps)
	messages := services.NewMessageService(deps, services.DefaultEditWindow)
	presence := services.NewPresenceService(deps, services.DefaultPresenceWindow)
	hub := ws.NewHub(ws.HubConfig{}, nil)

	r := gin.New()
	routers.SetupRoutes(r, routers.Handlers{
		Channels: handlers.NewChannelHandler(channels, hub, nil),
		Messages: handlers.NewMessageHandler(messages, services.NewReactionService(deps), nil),
		Direct:   handlers.NewDirectHandler(services.NewDirectMessageService(deps), nil),
		Presence: handlers.NewPresenceHandler(presence, nil),
	}, routers.Options{
		Tokens:   tm,
		Profiles: services.NewProfileService(deps),
	})

	a := &api{t: t, engine: r, tokens: map[int64]string{}, rec: rec, hub: hub}
	for id, name := range map[int64]string{alice: "Alice", bob: "Bob"} {
		tok, err := tm.GenerateToken(id, name, []string{authz.Wildcard})
		require.NoError(t, err)
		a.tokens[id] = tok
	}
	// carol 只能读和发消息
	tok, err := tm.GenerateToken(carol, "Carol", []string{
		string(authz.ActionReadChannel), string(authz.ActionSendMessage),
	})
	require.NoError(t, err)
	a.tokens[carol] = tok
	return a
}

func (a *api) do(user int64, method, path string, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1/chat"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set("Authorization", "Bearer "+a.tokens[user])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (a *api) createChannel(user int64, name string, private bool) int64 {
	a.t.Helper()
	code, env := a.do(user, http.MethodPost, "/channels", map[string]any{
		"name": name, "channel_type": "team", "is_private": private,
	})
	require.Equal(a.t, http.StatusCreated, code, env.Message)
	return decode[struct {
		ID int64 `json:"id"`
	}](a.t, env).ID
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestUnauthenticated(t *testing.T) {
	a := newAPI(t)
	code, _ := a.do(0, http.MethodGet, "/channels", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestChannelLifecycle(t *testing.T) {
	a := newAPI(t)
	id := a.createChannel(alice, "backend", false)

	code, env := a.do(alice, http.MethodPost, fmt.Sprintf("/channels/%d/members", id), map[string]any{
		"employee_id": bob, "role": "member",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = a.do(bob, http.MethodGet, fmt.Sprintf("/channels/%d/members", id), nil)
	require.Equal(t, http.StatusOK, code)
	members := decode[[]struct {
		EmployeeID  int64  `json:"employee_id"`
		Role        string `json:"role"`
		DisplayName string `json:"display_name"`
	}](t, env)
	require.Len(t, members, 2)

	names := map[int64]string{}
	for _, m := range members {
		names[m.EmployeeID] = m.DisplayName
	}
	assert.Equal(t, "Alice", names[alice])
	assert.Equal(t, "Bob", names[bob])

	// 唯一管理员不能降级自己
	code, _ = a.do(alice, http.MethodPut, fmt.Sprintf("/channels/%d/members/%d/role", id, alice), map[string]any{"role": "member"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = a.do(alice, http.MethodPost, "/channels", map[string]any{"name": "backend", "channel_type": "team"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(alice, http.MethodPost, fmt.Sprintf("/channels/%d/members", id), map[string]any{"employee_id": bob})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = a.do(alice, http.MethodPost, "/channels", map[string]any{"name": "", "channel_type": "team"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(alice, http.MethodGet, fmt.Sprintf("/channels/%d/statistics", id), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(2), decode[services.ChannelStats](t, env).TotalMembers)

	code, _ = a.do(bob, http.MethodDelete, fmt.Sprintf("/channels/%d", id), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(alice, http.MethodDelete, fmt.Sprintf("/channels/%d", id), nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(alice, http.MethodGet, fmt.Sprintf("/channels/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOracleDeniesMissingPermission(t *testing.T) {
	a := newAPI(t)
	code, _ := a.do(carol, http.MethodPost, "/channels", map[string]any{"name": "nope", "channel_type": "team"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Empty(t, a.rec.Events())

	id := a.createChannel(alice, "town-hall", false)
	code, _ = a.do(carol, http.MethodGet, fmt.Sprintf("/channels/%d/messages", id), nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(carol, http.MethodPost, "/search/messages", map[string]any{"query": "anything"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestMessagingFlow(t *testing.T) {
	a := newAPI(t)
	id := a.createChannel(alice, "general-chat", false)
	code, _ := a.do(alice, http.MethodPost, fmt.Sprintf("/channels/%d/members", id), map[string]any{"employee_id": bob})
	require.Equal(t, http.StatusCreated, code)

	code, env := a.do(alice, http.MethodPost, fmt.Sprintf("/channels/%d/messages", id), map[string]any{
		"content": "hello team",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	msgID := decode[struct {
		ID int64 `json:"id"`
	}](t, env).ID

	code, _ = a.do(bob, http.MethodPost, fmt.Sprintf("/messages/%d/reactions", msgID), map[string]any{"emoji": "👍"})
	require.Equal(t, http.StatusOK, code)

	code, env = a.do(bob, http.MethodGet, fmt.Sprintf("/channels/%d/messages", id), nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[services.PageResult[json.RawMessage]](t, env)
	assert.Equal(t, int64(1), page.Total)
	assert.Contains(t, string(page.Items[0]), "hello team")

	code, _ = a.do(bob, http.MethodPut, fmt.Sprintf("/messages/%d", msgID), map[string]any{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(alice, http.MethodPut, fmt.Sprintf("/messages/%d", msgID), map[string]any{"content": "hello everyone"})
	assert.Equal(t, http.StatusOK, code)

	code, env = a.do(bob, http.MethodPost, "/search/messages", map[string]any{"query": "everyone"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), decode[services.PageResult[json.RawMessage]](t, env).Total)

	code, _ = a.do(bob, http.MethodDelete, fmt.Sprintf("/messages/%d/reactions/%s", msgID, url.PathEscape("👍")), nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(bob, http.MethodDelete, fmt.Sprintf("/messages/%d/reactions/%s", msgID, url.PathEscape("👍")), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(alice, http.MethodDelete, fmt.Sprintf("/messages/%d", msgID), nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = a.do(alice, http.MethodGet, fmt.Sprintf("/channels/%d/online-users", id), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"count":0`)
}

func TestDirectMessagesAndPresence(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(alice, http.MethodPost, "/direct-messages", map[string]any{
		"recipient_id": bob, "content": "ping",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, _ = a.do(alice, http.MethodPost, "/direct-messages", map[string]any{
		"recipient_id": alice, "content": "self",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(bob, http.MethodGet, fmt.Sprintf("/direct-messages/%d", alice), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), decode[services.PageResult[json.RawMessage]](t, env).Total)

	code, env = a.do(bob, http.MethodPut, fmt.Sprintf("/direct-messages/%d/mark-read", alice), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decode[struct {
		MarkedRead int `json:"marked_read"`
	}](t, env).MarkedRead)

	code, _ = a.do(alice, http.MethodPut, "/online-status", map[string]any{"status": "busy", "custom_status": "in a meeting"})
	require.Equal(t, http.StatusOK, code)

	code, _ = a.do(alice, http.MethodPut, "/online-status", map[string]any{"status": "sleeping"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(bob, http.MethodGet, fmt.Sprintf("/online-status/%d", alice), nil)
	require.Equal(t, http.StatusOK, code)
	status := decode[struct {
		Status   string `json:"status"`
		IsOnline bool   `json:"is_online"`
	}](t, env)
	assert.Equal(t, "busy", status.Status)
	assert.True(t, status.IsOnline)

	code, env = a.do(bob, http.MethodGet, "/online-users?window_minutes=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"count":1`)
}

func TestRecorderSeesCommittedEvents(t *testing.T) {
	a := newAPI(t)
	a.createChannel(alice, "events", false)
	assert.Contains(t, a.rec.Kinds(), events.KindChannelCreated)
}
