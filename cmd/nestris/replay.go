package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/nestris-ocr/internal/platform/tui"
	"github.com/vovakirdan/nestris-ocr/internal/storage"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

var flagReplayBoards bool

var replayCmd = &cobra.Command{
	Use:   "replay <id>",
	Short: "Print the placements of a recorded game",
	Long: `Replay a recorded game from its packet stream.

The id may be shortened to any unique prefix, as shown by 'nestris games'.

Examples:
  nestris replay 0f3a9c12
  nestris replay 0f3a9c12 --boards`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&flagReplayBoards, "boards", false, "Print the board after every placement")
}

func runReplay(_ *cobra.Command, args []string) error {
	store, err := storage.Open(flagDBPath)
	if err != nil {
		return fmt.Errorf("cannot open games database: %w", err)
	}
	defer store.Close()

	game, err := findGame(store, args[0])
	if err != nil {
		return err
	}
	placements, err := store.Placements(game.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Game %s  %s/%s  %s\n", game.ID, game.Source, game.Player, game.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Printf("Level %d-%d  Lines %d  Score %s  Tetris rate %.0f%%  Duration %s  End %s\n\n",
		game.StartLevel, game.Level, game.Lines, humanize.Comma(int64(game.Score)),
		game.TetrisRate*100, game.Duration.Round(time.Second), game.EndReason)

	return storage.Replay(game.Stream, func(index int, board *tetris.Board, st tetris.SmartGameStatus) {
		notation := "?"
		if index < len(placements) {
			notation = placements[index].Notation()
		}
		fmt.Printf("%4d  %-8s  level %02d  lines %03d  score %s\n",
			index+1, notation, st.Level, st.Lines, humanize.Comma(int64(st.Score)))
		if flagReplayBoards {
			fmt.Println(tui.BoardText(board))
		}
	})
}

// findGame looks a game up by its full id or a unique id prefix.
func findGame(store *storage.Store, id string) (*storage.GameRecord, error) {
	game, err := store.Game(id)
	if err != nil {
		return nil, err
	}
	if game != nil {
		return game, nil
	}

	recent, err := store.RecentGames(1000)
	if err != nil {
		return nil, err
	}
	var match string
	for _, g := range recent {
		if !strings.HasPrefix(g.ID, id) {
			continue
		}
		if match != "" {
			return nil, fmt.Errorf("game id %q is ambiguous", id)
		}
		match = g.ID
	}
	if match == "" {
		return nil, fmt.Errorf("no game with id %q", id)
	}
	return store.Game(match)
}
