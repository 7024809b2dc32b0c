package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pot-code/go-signin/internal/infrastructure/logging"
	"github.com/pot-code/go-signin/internal/infrastructure/validate"
	"github.com/pot-code/go-signin/internal/session"
	"github.com/pot-code/go-signin/internal/signin"
	"go.uber.org/zap"
)

// navigateMessage pushed to the watch socket
type navigateMessage struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// SessionCookie browser session cookie settings
type SessionCookie struct {
	Name     string
	Secure   bool
	Lifetime time.Duration
}

// pendingNavigation Navigator that remembers where the form wants to go,
// the handler turns it into a redirect once the form is done
type pendingNavigation struct {
	mu   sync.Mutex
	path string
}

func (pn *pendingNavigation) Navigate(path string) {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	pn.path = path
}

func (pn *pendingNavigation) Target() string {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	return pn.path
}

// submit lock used when no request timeout is configured
const defaultSubmitLock = 30 * time.Second

// SignInHandler serves the sign-in form and the pages around it
type SignInHandler struct {
	Auth       signin.Authenticator
	Revoker    signin.Revoker // optional, revokes the access token on sign-out
	Store      *session.Store
	Validator  validate.Validator
	Cookie     SessionCookie
	SubmitLock time.Duration // how long one browser session may hold a sign-in
}

// NewSignInHandler .
func NewSignInHandler(auth signin.Authenticator, store *session.Store, validator validate.Validator, cookie SessionCookie) *SignInHandler {
	revoker, _ := auth.(signin.Revoker)
	return &SignInHandler{
		Auth:       auth,
		Revoker:    revoker,
		Store:      store,
		Validator:  validator,
		Cookie:     cookie,
		SubmitLock: defaultSubmitLock,
	}
}

func (sh *SignInHandler) sessionID(c echo.Context) string {
	cookie, err := c.Cookie(sh.Cookie.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ensureSession return the browser session id, issuing a new cookie unless the
// browser presents one the store knows
func (sh *SignInHandler) ensureSession(c echo.Context) (string, error) {
	ctx := c.Request().Context()
	if sid := sh.sessionID(c); sid != "" {
		known, err := sh.Store.Known(ctx, sid)
		if err != nil {
			return "", err
		}
		if known {
			return sid, nil
		}
	}
	sid, err := sh.Store.Issue(ctx)
	if err != nil {
		return "", err
	}
	sh.setSessionCookie(c, sid)
	return sid, nil
}

func (sh *SignInHandler) setSessionCookie(c echo.Context, sid string) {
	c.SetCookie(sh.newCookie(sid, int(sh.Cookie.Lifetime.Seconds())))
}

func (sh *SignInHandler) newCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sh.Cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   sh.Cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (sh *SignInHandler) newForm(ctx context.Context, bound *session.Session, nav signin.Navigator, opts ...signin.FormOption) *signin.Form {
	opts = append([]signin.FormOption{
		signin.WithValidator(sh.Validator),
		signin.WithFormLogger(logging.ExtractLoggerFromContext(ctx)),
	}, opts...)
	return signin.NewForm(sh.Auth, bound, nav, opts...)
}

// renderForm the typed password is only written back into the page when keepPassword is set
func renderForm(c echo.Context, form *signin.Form, keepPassword bool) error {
	credentials := form.Credentials()
	page := signInPage{
		Title:        "Sign in",
		Identifier:   credentials.Identifier,
		ShowPassword: form.PasswordVisible(),
		Errors:       form.Errors(),
	}
	if keepPassword {
		page.Password = credentials.Password
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Render(http.StatusOK, "signin", page)
}

// HandleShowForm GET /signin
func (sh *SignInHandler) HandleShowForm(c echo.Context) error {
	sid, err := sh.ensureSession(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	nav := new(pendingNavigation)
	form := sh.newForm(ctx, sh.Store.Bind(sid), nav)
	defer form.Unmount()

	if err := form.Mount(ctx); err != nil {
		return err
	}
	if target := nav.Target(); target != "" {
		return c.Redirect(http.StatusSeeOther, target)
	}
	return renderForm(c, form, false)
}

// HandleSubmit POST /signin, either toggles password visibility or signs in
func (sh *SignInHandler) HandleSubmit(c echo.Context) error {
	sid, err := sh.ensureSession(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	identifier := c.FormValue("credential")
	password := c.FormValue("password")
	visible, _ := strconv.ParseBool(c.FormValue("show_password"))

	bound := sh.Store.Bind(sid)
	nav := new(pendingNavigation)
	form := sh.newForm(ctx, bound, nav,
		signin.WithCredentials(signin.Credentials{Identifier: identifier, Password: password}),
		signin.WithPasswordVisible(visible),
	)
	defer form.Unmount()

	if err := form.Mount(ctx); err != nil {
		return err
	}
	if target := nav.Target(); target != "" {
		return c.Redirect(http.StatusSeeOther, target)
	}

	if c.FormValue("action") == "toggle" {
		form.TogglePasswordVisibility()
		return renderForm(c, form, true)
	}

	// one sign-in per browser session at a time, across requests
	locked, err := sh.Store.LockSubmit(ctx, sid, sh.SubmitLock)
	if err != nil {
		return err
	}
	if !locked {
		return echo.NewHTTPError(http.StatusConflict, signin.ErrSubmitInProgress.Error())
	}
	defer func() {
		if err := sh.Store.UnlockSubmit(context.WithoutCancel(ctx), sid); err != nil {
			logging.ExtractLoggerFromContext(ctx).Warn("failed to release sign-in lock", zap.Error(err))
		}
	}()

	state, err := form.Submit(ctx, identifier, password)
	if err != nil {
		return err
	}
	logging.ExtractLoggerFromContext(ctx).Debug("sign-in submitted", zap.Stringer("signin.phase", state.Phase))
	if current := bound.ID(); current != sid {
		sh.setSessionCookie(c, current)
	}
	if target := nav.Target(); target != "" {
		return c.Redirect(http.StatusSeeOther, target)
	}
	return renderForm(c, form, false)
}

// HandleWatch GET /signin/watch, tells the page to navigate once its session becomes signed in
func (sh *SignInHandler) HandleWatch(c echo.Context) error {
	sid := sh.sessionID(c)
	known, err := sh.Store.Known(c.Request().Context(), sid)
	if err != nil {
		return err
	}
	if !known {
		return echo.NewHTTPError(http.StatusUnauthorized, "no browser session")
	}

	return WithHeartbeat(func(ctx context.Context, conn *websocket.Conn) error {
		// subscribe before the mount check, so a login in between is not missed
		sub, err := sh.Store.Watch(ctx, sid)
		if err != nil {
			return err
		}
		defer sub.Close()

		navigated := make(chan string, 1)
		form := sh.newForm(ctx, sh.Store.Bind(sid), signin.NavigatorFunc(func(path string) {
			navigated <- path
		}))
		defer form.Unmount()

		if err := form.Mount(ctx); err != nil {
			return err
		}
		for {
			select {
			case path := <-navigated:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				return conn.WriteJSON(navigateMessage{Type: "navigate", Path: path})
			case msg, ok := <-sub.Messages():
				if !ok {
					return errors.New("session events closed")
				}
				if msg == session.EventLogin {
					form.SessionChanged(true)
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})(c)
}

// HandleHome GET /, only for signed in sessions
func (sh *SignInHandler) HandleHome(c echo.Context) error {
	sid := sh.sessionID(c)
	if sid == "" {
		return c.Redirect(http.StatusSeeOther, "/signin")
	}
	remaining, err := sh.Store.Remaining(c.Request().Context(), sid)
	if errors.Is(err, session.ErrNoSession) {
		return c.Redirect(http.StatusSeeOther, "/signin")
	}
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "home", homePage{
		Title:     "Home",
		Remaining: remaining.Round(time.Second).String(),
	})
}

// HandleSignOut POST /signout, revokes the access token at the API as well
func (sh *SignInHandler) HandleSignOut(c echo.Context) error {
	ctx := c.Request().Context()
	sid := sh.sessionID(c)
	if sh.Revoker != nil {
		tokens, err := sh.Store.Tokens(ctx, sid)
		switch {
		case errors.Is(err, session.ErrNoSession):
		case err != nil:
			return err
		default:
			if err := sh.Revoker.Logout(ctx, tokens.Access); err != nil {
				logging.ExtractLoggerFromContext(ctx).Warn("failed to revoke access token", zap.Error(err))
			}
		}
	}
	if err := sh.Store.Logout(ctx, sid); err != nil {
		return err
	}
	c.SetCookie(sh.newCookie("", -1))
	return c.Redirect(http.StatusSeeOther, "/signin")
}
