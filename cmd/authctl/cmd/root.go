package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var debugLogging bool

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "authctl manages an auth backend session from the command line",
	Long: `Sign in against an auth backend, keep the session in a local or shared store
and watch it being refreshed. Configuration is read from GOTRUE_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the command line with ctx, cancelled on SIGINT/SIGTERM.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "log client internals to stderr")
}

// clientHandle is a client together with the backend it was opened on.
type clientHandle struct {
	client  *auth.Client
	backend *backend
}

func (h *clientHandle) Close() error {
	h.client.Close()
	return h.backend.Close()
}

func loadSettings() (config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		return config.Settings{}, err
	}
	if debugLogging {
		settings.Debug = true
	}
	return settings, nil
}

func newLogger(settings config.Settings) zerolog.Logger {
	level := zerolog.WarnLevel
	if settings.GetDebug() {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// openClient opens the configured storage and builds a client on it.
func openClient(ctx context.Context, settings config.Settings, opts ...auth.ClientOption) (*clientHandle, error) {
	logger := newLogger(settings)
	b, err := openBackend(ctx, settings, logger)
	if err != nil {
		return nil, err
	}

	clientOpts := []auth.ClientOption{auth.WithStorage(b.storage), auth.WithLogger(logger)}
	if b.channel != nil {
		clientOpts = append(clientOpts, auth.WithBroadcastChannel(b.channel))
	}
	client, err := auth.NewClient(settings, append(clientOpts, opts...)...)
	if err != nil {
		_ = b.Close()
		return nil, errors.Wrap(err, "create client")
	}
	return &clientHandle{client: client, backend: b}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
