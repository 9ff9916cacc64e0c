package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"deadsongs/core/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens := auth.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTokenTTL)
		token, err := tokens.Issue(args[0])
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
