package signin

import (
	"context"
	"errors"
	"sync"

	"github.com/pot-code/go-signin/internal/infrastructure/validate"
	"go.uber.org/zap"
)

// Phase where the form is in the handshake
type Phase int

// form phases
const (
	Idle Phase = iota
	Submitting
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// State snapshot of the form. Errors is only set when Phase is Failed.
type State struct {
	Phase  Phase
	Errors []string
}

func (s State) clone() State {
	if s.Errors != nil {
		s.Errors = append([]string(nil), s.Errors...)
	}
	return s
}

// Form a single sign-in form instance, from mount to unmount.
//
// All methods are safe for concurrent use.
type Form struct {
	auth      Authenticator
	store     SessionStore
	nav       Navigator
	validator validate.Validator
	logger    *zap.Logger

	mu           sync.Mutex
	credentials  Credentials
	showPassword bool
	state        State
	mounted      bool
	navigated    bool
	generation   uint64
	cancel       context.CancelFunc
}

// FormOption configures a Form
type FormOption func(*Form)

// WithValidator use v to check credentials before sending them
func WithValidator(v validate.Validator) FormOption {
	return func(f *Form) {
		if v != nil {
			f.validator = v
		}
	}
}

// WithFormLogger .
func WithFormLogger(logger *zap.Logger) FormOption {
	return func(f *Form) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithCredentials pre-fill the form, e.g. when re-rendering a failed attempt
func WithCredentials(c Credentials) FormOption {
	return func(f *Form) {
		f.credentials = c
	}
}

// WithPasswordVisible start with the password shown in plain text
func WithPasswordVisible(visible bool) FormOption {
	return func(f *Form) {
		f.showPassword = visible
	}
}

// NewForm create a mounted form in the Idle phase
func NewForm(auth Authenticator, store SessionStore, nav Navigator, opts ...FormOption) *Form {
	f := &Form{
		auth:    auth,
		store:   store,
		nav:     nav,
		logger:  zap.NewNop(),
		mounted: true,
		state:   State{Phase: Idle},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.validator == nil {
		f.validator = validate.NewValidator("en")
	}
	return f
}

// Mount asks the session store whether the user is already signed in and,
// if so, navigates to RootPath.
func (f *Form) Mount(ctx context.Context) error {
	f.mu.Lock()
	if !f.mounted {
		f.mounted = true
		f.navigated = false
		f.state = State{Phase: Idle}
	}
	f.mu.Unlock()

	loggedIn, err := f.store.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	f.SessionChanged(loggedIn)
	return nil
}

// SessionChanged observe the session store. The first time loggedIn is true
// while mounted the form navigates to RootPath, later calls do nothing.
func (f *Form) SessionChanged(loggedIn bool) {
	if !loggedIn {
		return
	}
	if f.claimNavigation() {
		f.nav.Navigate(RootPath)
	}
}

// Unmount tear the form down. Any in-flight request is cancelled and its
// result dropped, typed credentials are cleared.
func (f *Form) Unmount() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mounted = false
	f.generation++
	f.credentials = Credentials{}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Submit run one sign-in attempt and return the state it ended in.
//
// Missing fields fail locally without a request. A second Submit while one
// is pending returns ErrSubmitInProgress, and a Submit whose form got
// unmounted meanwhile returns ErrUnmounted.
func (f *Form) Submit(ctx context.Context, identifier, password string) (State, error) {
	f.mu.Lock()
	if !f.mounted {
		f.mu.Unlock()
		return State{}, ErrUnmounted
	}
	if f.state.Phase == Submitting {
		snapshot := f.state.clone()
		f.mu.Unlock()
		return snapshot, ErrSubmitInProgress
	}

	f.credentials = Credentials{Identifier: identifier, Password: password}
	credentials := f.credentials
	if errs := f.validator.Struct(&credentials); len(errs) > 0 {
		f.state = State{Phase: Failed, Errors: validate.Reasons(errs)}
		snapshot := f.state.clone()
		f.mu.Unlock()
		return snapshot, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.cancel = cancel
	f.generation++
	generation := f.generation
	f.state = State{Phase: Submitting}
	f.mu.Unlock()

	next, err := f.exchange(ctx, generation, credentials)
	if err != nil {
		return State{}, err
	}

	f.mu.Lock()
	if f.stale(generation) {
		f.mu.Unlock()
		return State{}, ErrUnmounted
	}
	f.cancel = nil
	f.state = next
	navigate := next.Phase == Succeeded && !f.navigated
	if navigate {
		f.navigated = true
	}
	snapshot := f.state.clone()
	f.mu.Unlock()

	if navigate {
		f.nav.Navigate(RootPath)
	}
	return snapshot, nil
}

func (f *Form) exchange(ctx context.Context, generation uint64, credentials Credentials) (State, error) {
	tokens, err := f.auth.Login(ctx, credentials)
	if err != nil {
		if f.isStale(generation) {
			return State{}, ErrUnmounted
		}
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			f.logger.Debug("sign-in rejected", zap.Int("status", rejected.Status), zap.Strings("errors", rejected.Errors))
			return State{Phase: Failed, Errors: rejected.Messages()}, nil
		}
		f.logger.Debug("sign-in request failed", zap.Error(err))
		return State{Phase: Failed, Errors: []string{err.Error()}}, nil
	}
	if !tokens.Complete() {
		f.logger.Debug("sign-in response without token pair")
		return State{Phase: Idle}, nil
	}

	if f.isStale(generation) {
		return State{}, ErrUnmounted
	}
	if err := f.store.Login(ctx, tokens.Access, tokens.Refresh); err != nil {
		f.logger.Warn("failed to store session", zap.Error(err))
		return State{Phase: Failed, Errors: []string{err.Error()}}, nil
	}
	return State{Phase: Succeeded}, nil
}

func (f *Form) claimNavigation() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.mounted || f.navigated {
		return false
	}
	f.navigated = true
	return true
}

func (f *Form) isStale(generation uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale(generation)
}

// stale must be called with mu held
func (f *Form) stale(generation uint64) bool {
	return !f.mounted || generation != f.generation
}

// TogglePasswordVisibility flip between masked and plain text password, returns the new visibility
func (f *Form) TogglePasswordVisibility() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.showPassword = !f.showPassword
	return f.showPassword
}

// PasswordVisible .
func (f *Form) PasswordVisible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.showPassword
}

// Credentials what is currently typed in the form
func (f *Form) Credentials() Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credentials
}

// State current phase and errors
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

// Errors messages of the last failed attempt, nil unless the form is Failed
func (f *Form) Errors() []string {
	return f.State().Errors
}
