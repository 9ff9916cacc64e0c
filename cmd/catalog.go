package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"deadsongs/core/apperr"
	"deadsongs/core/retry"
	"deadsongs/core/search"
	"deadsongs/model"
	"deadsongs/server"
)

var (
	catalogSort   string
	catalogSearch string
	catalogGenre  string
	catalogMemory bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Load and print the song catalog",
	Long: `Load the catalog in the given order and print it. --genre filters the
loaded catalog; --search queries song titles and playlist names instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := model.ParseSortKey(catalogSort)
		if err != nil {
			return err
		}

		b, err := openBackend(catalogMemory)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		store := server.NewCatalogStore(cfg, b)
		if _, err := store.Load(ctx, key); err != nil {
			return fmt.Errorf("%s: %w", apperr.Message(err), err)
		}
		agg := search.NewAggregator(b.Songs, b.Playlists, store, retry.FromConfig(cfg))

		if catalogSearch != "" {
			res, err := agg.Lookup(ctx, catalogSearch)
			printSongs(res.Tracks)
			if len(res.Playlists) > 0 {
				fmt.Println()
				for _, p := range res.Playlists {
					fmt.Printf("playlist %d\t%s\n", p.ID, p.Name)
				}
			}
			if err != nil {
				return fmt.Errorf("%s: %w", apperr.Message(err), err)
			}
			return nil
		}

		printSongs(agg.FilterByGenre("", catalogGenre))
		return nil
	},
}

func openBackend(memory bool) (*server.Backend, error) {
	if memory {
		return server.MemoryBackend(), nil
	}
	return server.OpenBackend(cfg)
}

func printSongs(songs []model.Song) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tARTIST\tGENRE\tPLAYS\tLIKES")
	for _, s := range songs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n", s.ID, s.Title, s.Artist, s.Genre, s.PlayCount, s.LikesCount)
	}
	w.Flush()
}

func init() {
	catalogCmd.Flags().StringVar(&catalogSort, "sort", "play_count", "order by play_count or likes_count")
	catalogCmd.Flags().StringVar(&catalogSearch, "search", "", "search titles and playlist names")
	catalogCmd.Flags().StringVar(&catalogGenre, "genre", "", "only songs of this genre")
	catalogCmd.Flags().BoolVar(&catalogMemory, "memory", false, "use the in-memory demo backend")
	rootCmd.AddCommand(catalogCmd)
}
