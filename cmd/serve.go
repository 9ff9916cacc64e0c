package cmd

import (
	"github.com/spf13/cobra"

	"deadsongs/server"
)

var serveMemory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and player websocket server",
	Long: `Start the HTTP API and the /ws/player websocket. With --memory the server
runs against an in-process store seeded with demo songs and needs no MySQL,
Redis or MinIO.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg, serveMemory)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "use the in-memory demo backend")
	rootCmd.AddCommand(serveCmd)
}
