package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gluk-w/claworc/remote-access/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, ctx context.Context, srv *httptest.Server, id, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + id + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readMsg(t *testing.T, ctx context.Context, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestSessionWS_StreamUntilEnded(t *testing.T) {
	env := setupTest(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	out := env.open(t, "dev")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, srv, out.Session.ID, out.Token)

	first := readMsg(t, ctx, conn)
	require.Equal(t, "session_info", first.Type)
	require.NotNil(t, first.Session)
	assert.Equal(t, out.Session.ID, first.Session.ID)

	history := readMsg(t, ctx, conn)
	require.Equal(t, "update", history.Type)
	require.NotNil(t, history.Update)
	require.NotNil(t, history.Update.Status)
	assert.Equal(t, session.ReasonOpened, history.Update.Status.Reason)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+out.Session.ID+"/end", out.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var sawEnded bool
	for {
		msg := readMsg(t, ctx, conn)
		if msg.Type == "update" && msg.Update.Status != nil && msg.Update.Status.Reason == session.ReasonEnded {
			sawEnded = true
		}
		if msg.Type == "session_ended" {
			require.NotNil(t, msg.Session)
			assert.True(t, msg.Session.Ended)
			break
		}
	}
	assert.True(t, sawEnded, "ended notification precedes session_ended")

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestSessionWS_Heartbeat(t *testing.T) {
	env := setupTest(t)
	old := HeartbeatInterval
	HeartbeatInterval = 20 * time.Millisecond
	defer func() { HeartbeatInterval = old }()

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	out := env.open(t, "dev")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, srv, out.Session.ID, out.Token)

	for {
		if msg := readMsg(t, ctx, conn); msg.Type == "heartbeat" {
			break
		}
	}
}

func TestSessionWS_RejectsMissingToken(t *testing.T) {
	env := setupTest(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	out := env.open(t, "dev")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + out.Session.ID + "/ws"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
