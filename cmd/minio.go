package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"deadsongs/storage"
)

var minioSkipCheck bool

var minioCmd = &cobra.Command{
	Use:   "minio [object-key...]",
	Short: "Check object storage and resolve song URLs",
	Long: `Check that the configured bucket exists, then print the URL each given
object key resolves to. Absolute URLs are printed unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("MinIO: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		resolver, err := storage.NewResolver(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		if !minioSkipCheck {
			if err := resolver.Check(ctx); err != nil {
				return err
			}
			fmt.Printf("Bucket %s is reachable.\n", resolver.Bucket())
		}

		for _, key := range args {
			url, err := resolver.Resolve(ctx, key)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", key, err)
			}
			fmt.Printf("%s -> %s\n", key, url)
		}
		return nil
	},
}

func init() {
	minioCmd.Flags().BoolVar(&minioSkipCheck, "skip-check", false, "resolve keys without checking the bucket")
	rootCmd.AddCommand(minioCmd)
}
