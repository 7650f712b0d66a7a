package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session refreshed and print every auth event until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		displayAppname(out, "authctl")

		settings, err := loadSettings()
		if err != nil {
			return err
		}
		settings.AutoRefreshToken = true

		reg := prometheus.NewRegistry()
		h, err := openClient(ctx, settings, auth.WithMetricsRegisterer(reg))
		if err != nil {
			return err
		}
		defer h.Close()

		if watchMetricsAddr != "" {
			srv := &http.Server{
				Addr:              watchMetricsAddr,
				Handler:           metricsRouter(reg),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %s\n", err)
				}
			}()
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		fmt.Fprintf(out, "watching as instance %s\n", h.client.InstanceID())
		sub := h.client.OnAuthStateChange(eventPrinter(out, time.Now))
		defer sub.Unsubscribe()

		if err := h.client.Initialize(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "initialize: %s\n", err)
		}

		<-ctx.Done()
		return nil
	},
}

// eventPrinter writes one line per auth event.
func eventPrinter(w io.Writer, now func() time.Time) events.Callback {
	var lock sync.Mutex
	return func(_ context.Context, event events.Event, session *sessions.Session) error {
		lock.Lock()
		defer lock.Unlock()

		at := now()
		line := fmt.Sprintf("%s %s", at.Format(time.RFC3339), event)
		if session != nil {
			line += fmt.Sprintf(" expires_at=%s expires_in=%s",
				time.Unix(session.ExpiresAt, 0).Format(time.RFC3339), session.TimeToExpiry(at).Round(time.Second))
			if session.User != nil && session.User.Email != "" {
				line += " user=" + session.User.Email
			}
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}
}

func metricsRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
	rootCmd.AddCommand(watchCmd)
}
