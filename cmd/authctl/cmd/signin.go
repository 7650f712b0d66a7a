package cmd

import (
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var signInFlags struct {
	email    string
	phone    string
	password string
	captcha  string
}

var signInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with an email or phone number and a password",
	RunE: func(cmd *cobra.Command, _ []string) error {
		creds, err := signInCredentials()
		if err != nil {
			return err
		}
		h, err := openOneShotClient(cmd)
		if err != nil {
			return err
		}
		defer h.Close()

		res, err := h.client.SignInWithPassword(cmd.Context(), creds, signInFlags.captcha)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res.Session)
	},
}

func signInCredentials() (auth.Credentials, error) {
	switch {
	case signInFlags.email != "" && signInFlags.phone != "":
		return nil, errors.New("use either --email or --phone, not both")
	case signInFlags.email != "":
		return auth.EmailCredentials{Email: signInFlags.email, Password: signInFlags.password}, nil
	case signInFlags.phone != "":
		return auth.PhoneCredentials{Phone: signInFlags.phone, Password: signInFlags.password}, nil
	}
	return nil, errors.New("one of --email or --phone is required")
}

func init() {
	signInCmd.Flags().StringVar(&signInFlags.email, "email", "", "email address to sign in with")
	signInCmd.Flags().StringVar(&signInFlags.phone, "phone", "", "phone number to sign in with")
	signInCmd.Flags().StringVar(&signInFlags.password, "password", "", "account password")
	signInCmd.Flags().StringVar(&signInFlags.captcha, "captcha", "", "captcha token, when the backend requires one")
	_ = signInCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(signInCmd)
}
