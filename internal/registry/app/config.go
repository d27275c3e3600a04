// Package app wires together the registry's shared state and
// implements the publish pipeline of §4.5: archive validation, scope
// ownership, atomic index commit+push, then blob upload and search
// update (§5 "the entire publish path holds the index-repository
// mutex from step 2 through step 4 inclusive").
package app

import (
	"fmt"
	"net/http"
	"os"

	"github.com/wisp-pm/wisp/internal/credential"
	"github.com/wisp-pm/wisp/internal/gitindex"
	"github.com/wisp-pm/wisp/internal/registry/blobstore"
	"github.com/wisp-pm/wisp/internal/registry/search"
)

// AuthMode discriminates the registry's three supported
// authentication configurations (§6 environment variables).
type AuthMode int

const (
	AuthSingleToken AuthMode = iota
	AuthOAuth
	AuthSplitToken
)

// Config is the configuration snapshot of §5 "a configuration
// snapshot", read once from the environment at startup.
type Config struct {
	Address string
	Port    string

	AuthMode         AuthMode
	AccessToken      string
	ReadAccessToken  string
	WriteAccessToken string
	ReadNeedsAuth    bool
	GitHubSecret     string

	CommitterName  string
	CommitterEmail string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Address:        envDefault("ADDRESS", "0.0.0.0"),
		Port:           envDefault("PORT", "8080"),
		CommitterName:  envDefault("COMMITTER_GIT_NAME", "wisp-registry"),
		CommitterEmail: envDefault("COMMITTER_GIT_EMAIL", "wisp-registry@localhost"),
	}

	switch {
	case os.Getenv("GITHUB_CLIENT_SECRET") != "":
		cfg.AuthMode = AuthOAuth
		cfg.GitHubSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	case os.Getenv("READ_ACCESS_TOKEN") != "" || os.Getenv("WRITE_ACCESS_TOKEN") != "":
		cfg.AuthMode = AuthSplitToken
		cfg.ReadAccessToken = os.Getenv("READ_ACCESS_TOKEN")
		cfg.WriteAccessToken = os.Getenv("WRITE_ACCESS_TOKEN")
		cfg.ReadNeedsAuth = os.Getenv("READ_NEEDS_AUTH") == "1"
	case os.Getenv("ACCESS_TOKEN") != "":
		cfg.AuthMode = AuthSingleToken
		cfg.AccessToken = os.Getenv("ACCESS_TOKEN")
	default:
		return Config{}, fmt.Errorf("no authentication mode configured: set ACCESS_TOKEN, GITHUB_CLIENT_SECRET, or READ_ACCESS_TOKEN/WRITE_ACCESS_TOKEN")
	}
	return cfg, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// AuthorizeWrite reports whether token is permitted to publish.
func (c Config) AuthorizeWrite(token string) bool {
	switch c.AuthMode {
	case AuthSingleToken:
		return token != "" && token == c.AccessToken
	case AuthSplitToken:
		return token != "" && token == c.WriteAccessToken
	default:
		return token != ""
	}
}

// AuthorizeRead reports whether token is permitted to read, honoring
// ReadNeedsAuth for the split-token mode.
func (c Config) AuthorizeRead(token string) bool {
	switch c.AuthMode {
	case AuthSingleToken:
		return token != "" && token == c.AccessToken
	case AuthSplitToken:
		if !c.ReadNeedsAuth {
			return true
		}
		return token != "" && token == c.ReadAccessToken
	default:
		return true
	}
}

// App is the shared application state of §5: an index-repository
// handle, an HTTP client, a search index, a blob store, and the
// configuration snapshot.
type App struct {
	Config  Config
	Index   *gitindex.Index
	HTTP    *http.Client
	Search  *search.Index
	Blobs   blobstore.Store
	Version string
}

// New assembles an App from its already-constructed dependencies.
func New(cfg Config, idx *gitindex.Index, blobs blobstore.Store, searchIdx *search.Index, version string) *App {
	return &App{
		Config:  cfg,
		Index:   idx,
		HTTP:    http.DefaultClient,
		Search:  searchIdx,
		Blobs:   blobs,
		Version: version,
	}
}

// EnvCredentialProvider reads a static committer identity used when
// the index repository's remote requires git-level auth distinct from
// the HTTP API tokens above.
type EnvCredentialProvider struct {
	credential.Store
}
