package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/phishguard/aegis/core"
)

// Register creates a new account. The server sends the verification email
// out-of-band.
func (a *Agent) Register(ctx context.Context, username, email, password string) error {
	return a.call(ctx, http.MethodPost, "/api/v1/users/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, nil)
}

// Login authenticates and installs the returned session.
func (a *Agent) Login(ctx context.Context, email, password string) (core.User, error) {
	var data struct {
		User         core.User `json:"user"`
		AccessToken  string    `json:"accessToken"`
		RefreshToken string    `json:"refreshToken"`
	}

	err := a.call(ctx, http.MethodPost, "/api/v1/users/login", map[string]string{
		"email":    email,
		"password": password,
	}, &data)
	if err != nil {
		return core.User{}, err
	}

	a.setSession(Session{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		User:         data.User,
	})
	return data.User, nil
}

// Logout revokes the session server-side and clears local state either way.
func (a *Agent) Logout(ctx context.Context) error {
	err := a.call(ctx, http.MethodPost, "/api/v1/users/logout", nil, nil)
	a.clearSession()
	return err
}

// CurrentUser fetches the authenticated profile and refreshes the cache.
func (a *Agent) CurrentUser(ctx context.Context) (core.User, error) {
	var data struct {
		User core.User `json:"user"`
	}
	if err := a.call(ctx, http.MethodPost, "/api/v1/users/current-user", nil, &data); err != nil {
		return core.User{}, err
	}

	a.updateUser(data.User)
	return data.User, nil
}

// CachedUser returns the locally cached profile without a network call.
func (a *Agent) CachedUser() (core.User, bool) {
	session := a.Session()
	if session.Empty() || session.User.ID == "" {
		return core.User{}, false
	}
	return session.User, true
}

// ChangePassword changes the password; the server revokes every refresh
// token, so the caller should expect to re-login.
func (a *Agent) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return a.call(ctx, http.MethodPost, "/api/v1/users/change-password", map[string]string{
		"oldPassword": oldPassword,
		"newPassword": newPassword,
	}, nil)
}

// ForgotPassword requests a reset email. The response never reveals whether
// the account exists.
func (a *Agent) ForgotPassword(ctx context.Context, email string) error {
	return a.call(ctx, http.MethodPost, "/api/v1/users/forgot-password", map[string]string{
		"email": email,
	}, nil)
}

// ResetPassword consumes a reset token from the email link.
func (a *Agent) ResetPassword(ctx context.Context, token, password string) error {
	return a.call(ctx, http.MethodPost, "/api/v1/users/reset-password/"+token, map[string]string{
		"password": password,
	}, nil)
}

// VerifyEmail consumes a verification token from the email link.
func (a *Agent) VerifyEmail(ctx context.Context, token string) error {
	return a.call(ctx, http.MethodGet, "/api/v1/users/verify-email/"+token, nil, nil)
}

// ResendVerification asks for a fresh verification email.
func (a *Agent) ResendVerification(ctx context.Context) error {
	return a.call(ctx, http.MethodPost, "/api/v1/users/resend-email-verification", nil, nil)
}

// Healthcheck probes server liveness.
func (a *Agent) Healthcheck(ctx context.Context) error {
	return a.call(ctx, http.MethodGet, "/api/v1/healthcheck", nil, nil)
}

// URLPrediction is the classifier's score for a URL.
type URLPrediction struct {
	IsPhishing  *bool   `json:"is_phishing"`
	Probability float64 `json:"phishing_probability"`
}

// URLAnalysis is the classifier's verdict. The service is an opaque external
// scorer; anything beyond the prediction and risk summary is passed through
// untouched in Raw.
type URLAnalysis struct {
	URL         string        `json:"url"`
	Prediction  URLPrediction `json:"ml_prediction"`
	RiskFactors []string      `json:"risk_factors"`
	Raw         json.RawMessage
}

// AnalyzeURL submits a URL to the external phishing classifier at
// analyzerURL and returns its scored verdict. The classifier has its own
// base URL and no session semantics, so this bypasses the token machinery.
func (a *Agent) AnalyzeURL(ctx context.Context, analyzerURL, url string) (URLAnalysis, error) {
	payload, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return URLAnalysis{}, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzerURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return URLAnalysis{}, fmt.Errorf("failed to build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return URLAnalysis{}, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return URLAnalysis{}, fmt.Errorf("analyzer returned status %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return URLAnalysis{}, fmt.Errorf("failed to decode analyzer response: %w", err)
	}

	var analysis URLAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return URLAnalysis{}, fmt.Errorf("failed to decode analyzer verdict: %w", err)
	}
	analysis.Raw = raw
	return analysis, nil
}
