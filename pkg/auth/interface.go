package auth

import "context"

// CredentialSource yields bearer tokens for the Qlik Cloud tenant API. The
// rest of the system treats it as opaque: callers ask for a token per call and
// never cache it themselves.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}
