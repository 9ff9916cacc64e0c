package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"deadsongs/cache"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the Redis connection",
	Long:  `Connect to Redis and run a set/get/delete round trip.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Redis: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := cache.ConnectRedis(cfg)
		if err != nil {
			return err
		}
		defer cache.CloseRedis()
		fmt.Println("Connected.")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := cache.CheckRedis(ctx, client); err != nil {
			return fmt.Errorf("redis round trip failed: %w", err)
		}
		fmt.Println("Round trip OK.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
