package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/go-signin/internal/infrastructure"
	"github.com/pot-code/go-signin/internal/infrastructure/driver"
	"github.com/pot-code/go-signin/internal/infrastructure/uuid"
	"github.com/pot-code/go-signin/internal/session"
	"github.com/pot-code/go-signin/internal/signin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const cookieName = "sid"

type fixture struct {
	app     *echo.Echo
	store   *session.Store
	mr      *miniredis.Miniredis
	hits    *int32
	revoked chan string
}

// newFixture wires the front to a fake API accepting alice/pw only
func newFixture(t *testing.T) *fixture {
	t.Helper()

	hits := new(int32)
	revoked := make(chan string, 8)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == signin.SignOutPath {
			revoked <- strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		atomic.AddInt32(hits, 1)
		var body signin.Credentials
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case body.Identifier != "alice":
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"errors":["User not found."]}`)
		case body.Password != "pw":
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"errors":["Invalid password"]}`)
		default:
			io.WriteString(w, `{"access":"acc","refresh":"ref"}`)
		}
	}))
	t.Cleanup(api.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	rdb := driver.NewRedisClient(mr.Host(), port, "")
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	client, err := signin.NewClient(api.URL)
	require.NoError(t, err)
	store := session.NewStore(rdb, rdb, uuid.NewNanoIDGenerator(32), time.Hour, nil)

	option := &infra.WebConfig{Env: infra.EnvProduction, RequestTimeout: 5 * time.Second}
	option.Session.CookieName = cookieName
	option.Session.Lifetime = time.Hour
	app, err := NewServer(rdb, option, client, store, zap.NewNop())
	require.NoError(t, err)

	return &fixture{app: app, store: store, mr: mr, hits: hits, revoked: revoked}
}

// issue an anonymous browser session, as a first visit to /signin does
func (f *fixture) issue(t *testing.T) string {
	t.Helper()

	sid, err := f.store.Issue(context.Background())
	require.NoError(t, err)
	return sid
}

func (f *fixture) loggedIn(t *testing.T, sid string) bool {
	t.Helper()

	ok, err := f.store.IsLoggedIn(context.Background(), sid)
	require.NoError(t, err)
	return ok
}

func (f *fixture) do(method, path string, form url.Values, sid string) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: sid})
	}
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	return rec
}

// sessionCookie the last session cookie set, the one a browser keeps
func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			found = c
		}
	}
	require.NotNil(t, found, "no session cookie")
	return found
}

func TestShowForm(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/signin", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)
	assert.Len(t, cookie.Value, 32)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `type="password"`)
	assert.NotContains(t, rec.Body.String(), `class="errors"`)

	// the issued id is kept on the next visit
	rec = f.do(http.MethodGet, "/signin", nil, cookie.Value)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	require.NoError(t, f.store.Login(context.Background(), cookie.Value, "acc", "ref"))
	rec = f.do(http.MethodGet, "/signin", nil, cookie.Value)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
}

func TestShowForm_ReplacesUnknownSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/signin", nil, "attacker-chosen")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "attacker-chosen", sessionCookie(t, rec).Value)
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t)
	sid := f.issue(t)

	rec := f.do(http.MethodPost, "/signin", url.Values{"credential": {"alice"}, "password": {"pw"}}, sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
	assert.EqualValues(t, 1, atomic.LoadInt32(f.hits))

	// signing in moves the browser to a new session id
	signedIn := sessionCookie(t, rec).Value
	assert.NotEqual(t, sid, signedIn)
	assert.False(t, f.loggedIn(t, sid))

	tokens, err := f.store.Tokens(context.Background(), signedIn)
	require.NoError(t, err)
	assert.Equal(t, &signin.SessionTokens{Access: "acc", Refresh: "ref"}, tokens)

	rec = f.do(http.MethodGet, "/", nil, signedIn)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Signed in")

	rec = f.do(http.MethodGet, "/", nil, sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestSubmit_PlantedSessionIsNotSignedIn(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/signin", url.Values{"credential": {"alice"}, "password": {"pw"}}, "attacker-chosen")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NotEqual(t, "attacker-chosen", sessionCookie(t, rec).Value)

	rec = f.do(http.MethodGet, "/", nil, "attacker-chosen")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signin", rec.Header().Get(echo.HeaderLocation))
	assert.False(t, f.loggedIn(t, "attacker-chosen"))
}

func TestSubmit_Failure(t *testing.T) {
	f := newFixture(t)
	sid := f.issue(t)

	rec := f.do(http.MethodPost, "/signin", url.Values{"credential": {"alice"}, "password": {"nope"}}, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<li>Invalid password</li>")
	assert.Contains(t, rec.Body.String(), `value="alice"`)
	assert.NotContains(t, rec.Body.String(), `value="nope"`)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.False(t, f.loggedIn(t, sid))
	assert.False(t, f.mr.Exists("session:"+sid+":submitting"))
}

func TestSubmit_InProgress(t *testing.T) {
	f := newFixture(t)
	sid := f.issue(t)
	require.NoError(t, f.mr.Set("session:"+sid+":submitting", "1"))

	rec := f.do(http.MethodPost, "/signin", url.Values{"credential": {"alice"}, "password": {"pw"}}, sid)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, atomic.LoadInt32(f.hits))
	assert.False(t, f.loggedIn(t, sid))
}

func TestSubmit_MissingFieldsSkipsRequest(t *testing.T) {
	f := newFixture(t)
	sid := f.issue(t)

	rec := f.do(http.MethodPost, "/signin", url.Values{"credential": {""}, "password": {""}}, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<li>credential is a required field</li>")
	assert.Contains(t, rec.Body.String(), "<li>password is a required field</li>")
	assert.Zero(t, atomic.LoadInt32(f.hits))
}

func TestSubmit_TogglePasswordVisibility(t *testing.T) {
	f := newFixture(t)
	sid := f.issue(t)

	form := url.Values{"credential": {"alice"}, "password": {"s3cret"}, "action": {"toggle"}, "show_password": {"false"}}
	rec := f.do(http.MethodPost, "/signin", form, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `type="text" value="s3cret"`)
	assert.Contains(t, rec.Body.String(), `name="show_password" value="true"`)

	form.Set("show_password", "true")
	rec = f.do(http.MethodPost, "/signin", form, sid)
	assert.Contains(t, rec.Body.String(), `type="password" value="s3cret"`)
	assert.Zero(t, atomic.LoadInt32(f.hits))
}

func TestHomeAndSignOut(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signin", rec.Header().Get(echo.HeaderLocation))

	require.NoError(t, f.store.Login(context.Background(), "sid-1", "acc", "ref"))
	rec = f.do(http.MethodPost, "/signout", nil, "sid-1")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signin", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)

	select {
	case token := <-f.revoked:
		assert.Equal(t, "acc", token)
	default:
		t.Fatal("access token was not revoked")
	}

	rec = f.do(http.MethodGet, "/", nil, "sid-1")
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	// nothing to revoke without tokens
	rec = f.do(http.MethodPost, "/signout", nil, f.issue(t))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, f.revoked)
}

func dialWatch(t *testing.T, srv *httptest.Server, sid string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Cookie", cookieName+"="+sid)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/signin/watch", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNavigate(t *testing.T, conn *websocket.Conn) navigateMessage {
	t.Helper()

	var msg navigateMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWatch_NavigatesOnLogin(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.app)
	t.Cleanup(srv.Close)

	sid := f.issue(t)
	conn := dialWatch(t, srv, sid)

	// the subscription is set up after the handshake, keep publishing until it is seen
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(50 * time.Millisecond):
				_ = f.store.Bind(sid).Login(context.Background(), "acc", "ref")
			}
		}
	}()

	assert.Equal(t, navigateMessage{Type: "navigate", Path: "/"}, readNavigate(t, conn))

	// exactly once, the server closes the socket afterwards
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWatch_AlreadyLoggedIn(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.app)
	t.Cleanup(srv.Close)

	require.NoError(t, f.store.Login(context.Background(), "sid-1", "acc", "ref"))
	conn := dialWatch(t, srv, "sid-1")
	assert.Equal(t, navigateMessage{Type: "navigate", Path: "/"}, readNavigate(t, conn))
}

func TestWatch_RequiresSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/signin/watch", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/signin/watch", nil, "attacker-chosen")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
