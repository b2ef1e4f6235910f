package ports

// Tokenizer mints and verifies the signed bearer tokens of a session.
type Tokenizer interface {
	// IssueAccessToken mints a short-lived access token for the user.
	IssueAccessToken(userID string) (string, error)

	// IssueRefreshToken mints a long-lived refresh token and returns it
	// together with its fingerprint, the value the credential store keeps to
	// pin exactly one live refresh token per user.
	IssueRefreshToken(userID string) (token, fingerprint string, err error)

	// VerifyAccessToken checks signature and expiry. Stateless; no store lookup.
	VerifyAccessToken(token string) (userID string, err error)

	// VerifyRefreshToken checks signature and expiry and returns the subject
	// plus the token's fingerprint for comparison against the stored one.
	VerifyRefreshToken(token string) (userID, fingerprint string, err error)
}
