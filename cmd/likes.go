package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var likesCmd = &cobra.Command{
	Use:   "likes",
	Short: "Like counter maintenance",
}

var likesRecountCmd = &cobra.Command{
	Use:   "recount",
	Short: "Rebuild every song's like counter from the like records",
	Long: `Rebuild likes_count from user_liked_songs. Use it after an outage left
counters out of step with the relation table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(false)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		n, err := b.Songs.RecountLikes(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %d songs.\n", n)
		return nil
	},
}

func init() {
	likesCmd.AddCommand(likesRecountCmd)
	rootCmd.AddCommand(likesCmd)
}
