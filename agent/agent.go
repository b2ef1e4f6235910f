// Package agent implements the client side of the session lifecycle: it
// holds the current token pair, attaches the access token to outgoing calls,
// and on an authorization failure runs exactly one refresh cycle shared by
// every concurrent caller before replaying each failed request once.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/phishguard/aegis/core"
)

const refreshPath = "/api/v1/users/refresh-access-token"

// ErrReauthRequired is returned when the session cannot be renewed and the
// user must log in again. All client session state has been cleared by then.
var ErrReauthRequired = errors.New("re-authentication required")

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// envelope mirrors the server's stable response shape.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

// Agent is the client session agent. It is safe for concurrent use; the
// refresh path is serialized through a single-flight group so N simultaneous
// authorization failures produce exactly one refresh request.
type Agent struct {
	baseURL        string
	httpClient     *http.Client
	storage        SessionStorage
	logger         *slog.Logger
	refreshTimeout time.Duration

	refreshGroup singleflight.Group

	mu      sync.Mutex
	session Session
}

// New creates an agent bound to the given server base URL and session
// storage, restoring any previously persisted session.
func New(baseURL string, storage SessionStorage, logger *slog.Logger) (*Agent, error) {
	session, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	return &Agent{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		storage:        storage,
		logger:         logger,
		refreshTimeout: 10 * time.Second,
		session:        session,
	}, nil
}

// Session returns a copy of the current session state.
func (a *Agent) Session() Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Do performs an authorized request against path, encoding body as JSON and
// decoding the response data into out. Both body and out may be nil. The
// refresh-and-replay protocol applies the same as for the typed helpers.
func (a *Agent) Do(ctx context.Context, method, path string, body, out any) error {
	return a.call(ctx, method, path, body, out)
}

// Authenticated reports whether the agent currently holds a token pair.
func (a *Agent) Authenticated() bool {
	return !a.Session().Empty()
}

// call performs one authorized round trip. On a 401 for a call that carried
// an access token it runs the shared refresh cycle and replays the request
// exactly once; every other failure propagates un-retried.
func (a *Agent) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	token := a.Session().AccessToken

	env, err := a.roundTrip(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if env.StatusCode == http.StatusUnauthorized && token != "" && path != refreshPath {
		if err := a.refresh(ctx, token); err != nil {
			return err
		}

		env, err = a.roundTrip(ctx, method, path, payload, a.Session().AccessToken)
		if err != nil {
			return err
		}
	}

	if !env.Success {
		return &APIError{StatusCode: env.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func (a *Agent) roundTrip(ctx context.Context, method, path string, payload []byte, token string) (envelope, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return env, nil
}

// refresh runs the shared refresh cycle. Concurrent callers collapse onto a
// single in-flight request; the single-flight key is released when the call
// resolves, so a later 401 starts a fresh cycle. Any refresh failure is
// terminal: the session is cleared and ErrReauthRequired returned to every
// waiter.
func (a *Agent) refresh(ctx context.Context, staleAccess string) error {
	_, err, _ := a.refreshGroup.Do("refresh", func() (any, error) {
		// Another caller may have finished a refresh between this caller's
		// 401 and now. If the stored access token already moved on, reuse it.
		if a.Session().AccessToken != staleAccess {
			return nil, nil
		}
		return nil, a.doRefresh()
	})
	if err != nil {
		if !errors.Is(err, ErrReauthRequired) {
			err = fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		return err
	}
	return nil
}

func (a *Agent) doRefresh() error {
	refreshToken := a.Session().RefreshToken
	if refreshToken == "" {
		a.clearSession()
		return ErrReauthRequired
	}

	// Detached from any single caller's context: waiters share this call, so
	// one caller cancelling must not fail the rest. The bounded timeout keeps
	// a hung refresh from wedging every waiter.
	ctx, cancel := context.WithTimeout(context.Background(), a.refreshTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	env, err := a.roundTrip(ctx, http.MethodPost, refreshPath, payload, "")
	if err != nil {
		a.clearSession()
		return err
	}
	if !env.Success {
		a.clearSession()
		return &APIError{StatusCode: env.StatusCode, Message: env.Message}
	}

	var pair struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(env.Data, &pair); err != nil {
		a.clearSession()
		return fmt.Errorf("failed to decode refresh response: %w", err)
	}

	a.mu.Lock()
	a.session.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		a.session.RefreshToken = pair.RefreshToken
	}
	session := a.session
	a.mu.Unlock()

	if err := a.storage.Save(session); err != nil {
		a.logger.Warn("failed to persist refreshed session", "error", err)
	}
	return nil
}

func (a *Agent) setSession(session Session) {
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	if err := a.storage.Save(session); err != nil {
		a.logger.Warn("failed to persist session", "error", err)
	}
}

func (a *Agent) clearSession() {
	a.mu.Lock()
	a.session = Session{}
	a.mu.Unlock()

	if err := a.storage.Clear(); err != nil {
		a.logger.Warn("failed to clear persisted session", "error", err)
	}
}

// updateUser refreshes the cached profile after a successful profile fetch.
func (a *Agent) updateUser(user core.User) {
	a.mu.Lock()
	a.session.User = user
	session := a.session
	a.mu.Unlock()

	if !session.Empty() {
		if err := a.storage.Save(session); err != nil {
			a.logger.Warn("failed to persist session", "error", err)
		}
	}
}
