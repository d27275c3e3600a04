// Package credential defines the narrow interface the git index reader
// (C3) needs to authenticate fetch and push operations. The concrete
// OS keyring integration is an external collaborator (§1 Non-goals);
// this package only provides the contract plus a token-based stub
// sufficient for CI and the registry's own git identity.
package credential

import "github.com/go-git/go-git/v5/plumbing/transport/http"

// Provider supplies a (username, password) pair for a git remote URL,
// re-evaluated on every call so rotating tokens are picked up without
// restarting a long-lived process.
type Provider interface {
	Credentials(remoteURL string) (username, password string, err error)
}

// Store is a Provider backed by a single static token, used for the
// registry's own push-back identity and for CLI sessions with a token
// already resolved by the external collaborator.
type Store struct {
	Username string
	Token    string
}

func (s Store) Credentials(string) (string, string, error) {
	return s.Username, s.Token, nil
}

// AuthMethod adapts a Provider into the go-git transport auth method
// used by C3's fetch/push calls.
func AuthMethod(p Provider, remoteURL string) (*http.BasicAuth, error) {
	user, pass, err := p.Credentials(remoteURL)
	if err != nil {
		return nil, err
	}
	if user == "" && pass == "" {
		return nil, nil
	}
	return &http.BasicAuth{Username: user, Password: pass}, nil
}
