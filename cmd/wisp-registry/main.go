// Command wisp-registry runs the git-backed package registry server
// (§5, §6): an HTTP API over an index repository and a blob store.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wisp-pm/wisp/internal/credential"
	"github.com/wisp-pm/wisp/internal/gitindex"
	"github.com/wisp-pm/wisp/internal/registry/app"
	"github.com/wisp-pm/wisp/internal/registry/blobstore"
	"github.com/wisp-pm/wisp/internal/registry/handlers"
	"github.com/wisp-pm/wisp/internal/registry/search"
)

// version is stamped by the release build; left as a placeholder for
// local and CI builds.
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "wisp-registry",
		Short:         "Git-backed package registry server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the registry HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	})
	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("wisp-registry exiting")
	}
}

func run() error {
	cfg, err := app.ConfigFromEnv()
	if err != nil {
		return err
	}

	repoURL := os.Getenv("INDEX_REPO_URL")
	if repoURL == "" {
		return fmt.Errorf("INDEX_REPO_URL must be set")
	}
	localPath := envDefault("INDEX_REPO_PATH", "./index")

	cred := credential.Store{
		Username: envDefault("GIT_PUSH_USERNAME", "wisp-registry"),
		Token:    os.Getenv("GIT_PUSH_TOKEN"),
	}
	idx := gitindex.Open(localPath, repoURL, cred)
	if err := idx.Refresh(); err != nil {
		return err
	}

	blobs, err := blobstore.FromEnv()
	if err != nil {
		return err
	}

	searchIdx, err := search.New()
	if err != nil {
		return err
	}

	a := app.New(cfg, idx, blobs, searchIdx, version)
	router := handlers.Router(a)

	addr := cfg.Address + ":" + cfg.Port
	logrus.WithField("addr", addr).Info("listening")
	return http.ListenAndServe(addr, router)
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
