package cli

import (
	"fmt"
	"time"

	"github.com/pratik-mahalle/costlens/internal/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTokenCmd() *cobra.Command {
	var (
		secret string
		userID int64
		email  string
		ttl    time.Duration
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user",
		Long: `Mint a signed access token with the server's JWT secret.

The secret is read from --secret, then COSTLENS_JWT_SECRET, then jwt_secret
in the config file. Use --save to store the token for later commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = viper.GetString("jwt_secret")
			}
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}

			token, err := auth.MintAccessToken(userID, email, secret, ttl, time.Now())
			if err != nil {
				return err
			}

			if save {
				viper.Set("token", token)
				if err := writeConfig(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Token saved to config")
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&secret, "secret", "", "JWT signing secret")
	f.Int64Var(&userID, "user-id", 0, "user id to embed")
	f.StringVar(&email, "email", "", "email claim")
	f.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	f.BoolVar(&save, "save", false, "store the token in the config file")

	return cmd
}
