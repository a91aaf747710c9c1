package main

import (
	"errors"
	"fmt"
	"time"

	"SPost-Planner/internal/posts"
	"github.com/spf13/cobra"
)

func newConnectCmd(opts *options) *cobra.Command {
	var (
		member    string
		token     string
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Store the LinkedIn access token the bridge attaches to remote calls",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				return errors.New("--token is required")
			}
			store, err := posts.NewStore(opts.cfg.Store.Path)
			if err != nil {
				return err
			}
			c := posts.Connection{MemberURN: member, AccessToken: token}
			if expiresIn > 0 {
				c.ExpiresAt = time.Now().Add(expiresIn).UTC()
			}
			if err := store.SaveConnection(cmd.Context(), c); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "connection saved to %s\n", store.Path())
			return err
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "LinkedIn member urn")
	cmd.Flags().StringVar(&token, "token", "", "LinkedIn access token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime; zero means no expiry")
	return cmd
}
