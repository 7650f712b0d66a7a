package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var oauthFlags struct {
	provider string
	scopes   string
	listen   string
	timeout  time.Duration
}

var oauthCmd = &cobra.Command{
	Use:   "oauth",
	Short: "Sign in through an OAuth provider using the PKCE flow",
	Long: `Prints the provider authorization URL and waits for the provider to redirect
back to a local callback server. The code on the callback is exchanged for a session.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), oauthFlags.timeout)
		defer cancel()

		settings, err := loadSettings()
		if err != nil {
			return err
		}
		settings.FlowType = string(oauth2.FlowPKCE)
		settings.DetectSessionInURL = true
		settings.AutoRefreshToken = false

		listener, err := net.Listen("tcp", oauthFlags.listen)
		if err != nil {
			return errors.Wrap(err, "listen for callback")
		}
		callbacks := make(chan *url.URL, 1)
		srv := &http.Server{
			Handler:           callbackRouter(callbacks),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() { _ = srv.Serve(listener) }()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()

		out := cmd.OutOrStdout()
		env := auth.NewURLEnvironment(nil, func(rawURL string) error {
			_, err := fmt.Fprintf(out, "Open this URL in a browser to continue:\n\n  %s\n\n", rawURL)
			return err
		})
		h, err := openClient(ctx, settings, auth.WithEnvironment(env))
		if err != nil {
			return err
		}
		defer h.Close()

		_, err = h.client.SignInWithOAuth(ctx, auth.OAuthSignIn{
			Provider:   oauthFlags.provider,
			Scopes:     oauthFlags.scopes,
			RedirectTo: "http://" + listener.Addr().String() + "/callback",
		})
		if err != nil {
			return err
		}

		var callback *url.URL
		select {
		case callback = <-callbacks:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "wait for provider callback")
		}

		env.ReplaceURL(callback)
		if err := h.client.Initialize(ctx); err != nil {
			return err
		}
		session, err := h.client.GetSession(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, session)
	},
}

// callbackRouter hands the first provider redirect to callbacks. Redirects
// carrying an error are still forwarded, the client reports them on Initialize.
func callbackRouter(callbacks chan<- *url.URL) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		u := *req.URL
		u.Scheme = "http"
		u.Host = req.Host
		select {
		case callbacks <- &u:
		default:
		}

		if desc := req.URL.Query().Get("error_description"); desc != "" {
			http.Error(w, "Sign in failed: "+desc, http.StatusBadRequest)
			return
		}
		_, _ = fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
	})
	return r
}

func init() {
	oauthCmd.Flags().StringVar(&oauthFlags.provider, "provider", "", "OAuth provider, e.g. github or google")
	oauthCmd.Flags().StringVar(&oauthFlags.scopes, "scopes", "", "space separated provider scopes")
	oauthCmd.Flags().StringVar(&oauthFlags.listen, "listen", "127.0.0.1:5789", "address of the local callback server")
	oauthCmd.Flags().DurationVar(&oauthFlags.timeout, "timeout", 5*time.Minute, "how long to wait for the provider callback")
	_ = oauthCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(oauthCmd)
}
