package cmd

import (
	"fmt"

	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Print the stored session, refreshing it when it is about to expire",
	RunE: func(cmd *cobra.Command, _ []string) error {
		h, err := openOneShotClient(cmd)
		if err != nil {
			return err
		}
		defer h.Close()

		session, err := h.client.GetSession(cmd.Context())
		if err != nil {
			return err
		}
		if session == nil {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "No session")
			return err
		}
		return printJSON(cmd.OutOrStdout(), session)
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the stored refresh token for a new session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		h, err := openOneShotClient(cmd)
		if err != nil {
			return err
		}
		defer h.Close()

		res, err := h.client.RefreshSession(cmd.Context(), nil)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res.Session)
	},
}

var signOutScope string

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Revoke the session on the backend and remove it locally",
	RunE: func(cmd *cobra.Command, _ []string) error {
		scope := oauth2.SignOutScope(signOutScope)
		switch scope {
		case oauth2.SignOutGlobal, oauth2.SignOutLocal, oauth2.SignOutOthers:
		default:
			return errors.Errorf("unknown sign out scope %q", signOutScope)
		}

		h, err := openOneShotClient(cmd)
		if err != nil {
			return err
		}
		defer h.Close()

		return h.client.SignOut(cmd.Context(), scope)
	},
}

// openOneShotClient opens a client for a single command, without a refresh ticker.
func openOneShotClient(cmd *cobra.Command) (*clientHandle, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	settings.AutoRefreshToken = false
	return openClient(cmd.Context(), settings)
}

func init() {
	signOutCmd.Flags().StringVar(&signOutScope, "scope", string(oauth2.SignOutGlobal), "global, local or others")
	rootCmd.AddCommand(sessionCmd, refreshCmd, signOutCmd)
}
