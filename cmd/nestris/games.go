package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/nestris-ocr/internal/platform/tui"
	"github.com/vovakirdan/nestris-ocr/internal/storage"
)

var (
	flagGamesLimit  int
	flagGamesTop    bool
	flagGamesStats  bool
	flagGamesBrowse bool
)

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List recorded games",
	Long: `Display the recorded games, newest first.

Examples:
  nestris games
  nestris games --top --limit 5
  nestris games --stats
  nestris games --browse`,
	Args: cobra.NoArgs,
	RunE: runGames,
}

func init() {
	gamesCmd.Flags().IntVar(&flagGamesLimit, "limit", 10, "Number of games to show")
	gamesCmd.Flags().BoolVar(&flagGamesTop, "top", false, "Order by score instead of date")
	gamesCmd.Flags().BoolVar(&flagGamesStats, "stats", false, "Show totals per source")
	gamesCmd.Flags().BoolVar(&flagGamesBrowse, "browse", false, "Browse the games interactively")
}

func runGames(_ *cobra.Command, _ []string) error {
	store, err := storage.Open(flagDBPath)
	if err != nil {
		return fmt.Errorf("cannot open games database: %w", err)
	}
	defer store.Close()

	if flagGamesBrowse {
		width, height := 80, 24
		if w, h, termErr := term.GetSize(0); termErr == nil {
			width, height = w, h
		}
		return tui.RunGames(store, width, height)
	}
	if flagGamesStats {
		return printStats(store)
	}

	var games []storage.GameRecord
	if flagGamesTop {
		fmt.Println("Top Games")
		games, err = store.TopGames(flagGamesLimit)
	} else {
		fmt.Println("Recent Games")
		games, err = store.RecentGames(flagGamesLimit)
	}
	if err != nil {
		return err
	}
	fmt.Println()

	if len(games) == 0 {
		fmt.Println("No games recorded yet.")
		fmt.Println()
		fmt.Println("Play 'nestris play' to record the first one!")
		return nil
	}

	fmt.Printf("  %-8s  %-8s  %-12s  %-5s  %5s  %10s  %4s  %-12s  %s\n",
		"ID", "Source", "Player", "Level", "Lines", "Score", "TRT", "End", "When")
	fmt.Printf("  %-8s  %-8s  %-12s  %-5s  %5s  %10s  %4s  %-12s  %s\n",
		"--", "------", "------", "-----", "-----", "-----", "---", "---", "----")
	for _, g := range games {
		row := tui.GameRow(g)
		fmt.Printf("  %-8s  %-8s  %-12s  %-5s  %5s  %10s  %4s  %-12s  %s\n",
			row[0], row[1], row[2], row[3], row[4], row[5], row[6], row[7], row[8])
	}

	if best, err := store.HighScore(); err == nil && best > 0 {
		fmt.Println()
		fmt.Printf("Best: %s\n", humanize.Comma(int64(best)))
	}
	return nil
}

func printStats(store *storage.Store) error {
	stats, err := store.Stats()
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Println("No games recorded yet.")
		return nil
	}

	sources := make([]string, 0, len(stats))
	for src := range stats {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	fmt.Printf("  %-8s  %5s  %10s  %10s  %7s  %s\n", "Source", "Games", "Best", "Average", "Lines", "Last played")
	fmt.Printf("  %-8s  %5s  %10s  %10s  %7s  %s\n", "------", "-----", "----", "-------", "-----", "-----------")
	for _, src := range sources {
		st := stats[src]
		fmt.Printf("  %-8s  %5d  %10s  %10s  %7s  %s\n",
			st.Source,
			st.GamesCount,
			humanize.Comma(int64(st.HighScore)),
			humanize.Comma(int64(st.AvgScore)),
			humanize.Comma(int64(st.TotalLines)),
			humanize.Time(st.LastPlayed))
	}
	return nil
}
