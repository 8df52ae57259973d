package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/browser"
	"github.com/langchef/langchef/internal/deviceauth"
	"github.com/langchef/langchef/internal/localstate"
	"github.com/langchef/langchef/internal/session"
)

var (
	apiURL    string
	stateFile string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "langchef",
	Short: "LangChef command line client",
	Long: `Sign in to the LangChef platform from the terminal using the
device authorization flow and manage the local session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "LangChef auth service base URL")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state-file", "", "Path to the local state database (default ~/.langchef/langchef.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// env bundles everything a subcommand needs against one state file.
type env struct {
	store    localstate.Store
	sessions *session.Manager
	client   *deviceauth.Client
	log      zerolog.Logger
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.log.Debug().Err(err).Msg("closing state db")
	}
}

func newEnv(opts ...deviceauth.Option) (*env, error) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().
		Timestamp().
		Logger()

	path := stateFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dir := filepath.Join(home, ".langchef")
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
		path = filepath.Join(dir, "langchef.db")
	}

	store, err := localstate.OpenBolt(path)
	if err != nil {
		return nil, err
	}

	api, err := authapi.NewClient(apiURL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sessions := session.NewManager(store, api)
	sessions.Load()

	clientOpts := append([]deviceauth.Option{
		deviceauth.WithLogger(log),
		deviceauth.WithURLOpener(browser.OpenURL),
	}, opts...)
	client := deviceauth.NewClient(api, store, sessions, clientOpts...)

	return &env{
		store:    store,
		sessions: sessions,
		client:   client,
		log:      log,
	}, nil
}
