// Package auth implements the session bootstrap against the backend:
// pre-validation, credential exchange, and teardown. Successful
// exchanges populate the session store; everything else leaves it
// untouched.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"spendbook/internal/cloudio"
	"spendbook/internal/core"
	"spendbook/internal/log"
	"spendbook/internal/session"
)

// State models the handshake lifecycle.
type State string

const (
	StateUnauthenticated State = "UNAUTHENTICATED"
	StatePreValidating   State = "PRE_VALIDATING"
	StatePreValidated    State = "PRE_VALIDATED"
	StateAuthenticating  State = "AUTHENTICATING"
	StateAuthenticated   State = "AUTHENTICATED"
)

// ErrPreValidation indicates login was attempted before a successful
// pre-validation round.
var ErrPreValidation = errors.New("pre-validation has not completed")

type Handshake struct {
	client *cloudio.Client
	store  *session.Store
	logger *log.Logger

	mu           sync.Mutex
	state        State
	preToken     string
	continuation string
}

// New creates a handshake bound to the given backend client and session
// store. When the store already holds a restored identity the handshake
// starts authenticated.
func New(client *cloudio.Client, store *session.Store, logger *log.Logger) *Handshake {
	state := StateUnauthenticated
	if _, ok := store.Current(); ok {
		state = StateAuthenticated
	}
	return &Handshake{
		client: client,
		store:  store,
		logger: logger.WithComponent(log.ComponentAuth),
		state:  state,
	}
}

// State returns the current handshake state.
func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// newPreToken generates a fresh pre-session token: an "X"-prefixed ULID,
// globally unique and ordered by generation time.
func newPreToken() string {
	return "X" + ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// PreValidate generates a fresh pre-session token, sends it to the
// backend, and stores the returned continuation token for the credential
// exchange. It runs once at startup and may be retried after failure.
// On failure both tokens stay unset and Login refuses to proceed.
func (h *Handshake) PreValidate(ctx context.Context) error {
	h.mu.Lock()
	authenticated := h.state == StateAuthenticated
	if !authenticated {
		h.state = StatePreValidating
	}
	token := newPreToken()
	h.mu.Unlock()

	continuation, err := h.client.PreValidate(ctx, token)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.preToken = ""
		h.continuation = ""
		if !authenticated {
			h.state = StateUnauthenticated
		}
		h.logger.Warn("pre-validation failed",
			log.FieldOperation, log.OpPreValidate, log.FieldError, err)
		return err
	}

	h.preToken = token
	h.continuation = continuation
	if !authenticated {
		h.state = StatePreValidated
	}
	h.logger.Debug("pre-validation complete", log.FieldOperation, log.OpPreValidate)
	return nil
}

// encode applies the backend's reversible credential encoding. This is
// transport framing, not cryptographic protection; confidentiality
// relies on TLS.
func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.TrimSpace(s)))
}

// Login exchanges credentials for a session. A successful prior
// PreValidate is required. Status "OK" populates the session store; any
// other outcome fails with core.ErrAuthentication (or core.ErrNetwork
// for transport failures) and leaves the store untouched. Concurrent calls
// are not deduplicated; the caller serializes submissions.
func (h *Handshake) Login(ctx context.Context, email, password string) error {
	h.mu.Lock()
	if h.preToken == "" || h.continuation == "" {
		h.mu.Unlock()
		return ErrPreValidation
	}
	transportToken := h.preToken + h.continuation
	h.state = StateAuthenticating
	h.mu.Unlock()

	resp, err := h.client.Login(ctx, transportToken, encode(email), encode(password))
	if err != nil {
		h.setState(StatePreValidated)
		return err
	}
	if resp.Status != "OK" {
		h.setState(StatePreValidated)
		h.logger.Warn("login rejected",
			log.FieldOperation, log.OpLogin, log.FieldState, resp.Status)
		return fmt.Errorf("backend status %q: %w", resp.Status, core.ErrAuthentication)
	}

	id := session.Identity{
		UserID:   resp.UserID,
		Email:    strings.TrimSpace(email),
		PreToken: transportToken,
		X:        resp.X,
		JWT:      resp.JWT,
	}
	if !id.Complete() {
		h.setState(StatePreValidated)
		return fmt.Errorf("incomplete identity in login response: %w", core.ErrAuthentication)
	}
	if err := h.store.Set(id); err != nil {
		h.setState(StatePreValidated)
		return fmt.Errorf("persist session: %w", err)
	}

	h.setState(StateAuthenticated)
	h.logger.Info("login succeeded",
		log.FieldOperation, log.OpLogin, log.FieldEmail, id.Email)
	return nil
}

// Logout tears the session down. The backend sign-out call is
// best-effort: failures are logged and swallowed, and the local session
// clears unconditionally. Calling Logout with no active identity is a
// no-op.
func (h *Handshake) Logout(ctx context.Context) error {
	id, ok := h.store.Current()
	if !ok {
		return nil
	}

	if id.X != "" {
		if err := h.client.Signout(ctx, id.X); err != nil {
			h.logger.Warn("backend sign-out failed, clearing local session anyway",
				log.FieldOperation, log.OpLogout, log.FieldError, err)
		}
	}

	if err := h.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	h.mu.Lock()
	if h.continuation != "" {
		h.state = StatePreValidated
	} else {
		h.state = StateUnauthenticated
	}
	h.mu.Unlock()

	h.logger.Info("logged out", log.FieldOperation, log.OpLogout, log.FieldEmail, id.Email)
	return nil
}

// Register provisions a new account. Registration runs outside any
// session and does not log the user in.
func (h *Handshake) Register(ctx context.Context, name, email, password string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return errors.New("name, email, and password are required")
	}
	if err := h.client.RegisterUser(ctx, name, email, password); err != nil {
		return err
	}
	h.logger.Info("user registered",
		log.FieldOperation, log.OpRegister,
		log.FieldEmail, strings.ToLower(strings.TrimSpace(email)))
	return nil
}

func (h *Handshake) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}
