// nestris plays, records and reads NES Tetris games.
//
// Usage:
//
//	nestris play               - Play the emulator in the terminal
//	nestris serve              - Start SSH server for remote play
//	nestris calibrate <frame>  - Locate the game boxes on a captured still
//	nestris ocr <dir>          - Track a captured game from frames
//	nestris games              - List recorded games
//	nestris replay <id>        - Print the placements of a recorded game
//	nestris list               - List classifiers and frame sources
//
// Global flags:
//
//	--fps <rate>         - Emulator frame rate (default: 60)
//	--seed <value>       - RNG seed for reproducible piece sequences
//	--db <path>          - Database path (default: ~/.nestris/nestris.db)
//	--config <path>      - Configuration file
//	--log-level <level>  - debug, info, warn or error
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/nestris-ocr/internal/config"
)

var (
	// Global flags
	flagFPS      int
	flagSeed     int64
	flagDBPath   string
	flagConfig   string
	flagLogLevel string

	logger *log.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nestris",
	Short: "NES Tetris emulator and capture tracker",
	Long: `nestris plays NES Tetris in the terminal and tracks real games from
captured frames. Both produce the same packet stream, and every game is
recorded to a local database.

Available commands:
  play       - Play the emulator in the terminal
  serve      - Start SSH server for remote play
  calibrate  - Locate the board and number boxes on a captured still
  ocr        - Track a game from captured frames
  games      - List recorded games
  replay     - Print the placements of a recorded game
  list       - Show digit classifiers and frame sources

Examples:
  nestris play --level 18
  nestris serve --ssh :2222
  nestris calibrate still.png --x 300 --y 200
  nestris ocr ./frames --watch
  nestris games --limit 20`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level, err := log.ParseLevel(flagLogLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "nestris",
			Level:           level,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagFPS, "fps", 60, "Emulator frame rate")
	rootCmd.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "RNG seed (0 = random based on time)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "~/.nestris/nestris.db", "Path to games database")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to nestris config YAML")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(gamesCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(listCmd)
}

// loadConfig loads the configuration and applies the global overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, fmt.Errorf("cannot load config: %w", err)
	}
	if flagFPS > 0 {
		cfg.Emulator.FPS = flagFPS
	}
	return cfg, nil
}

func componentLogger(prefix string) *log.Logger {
	return logger.WithPrefix(prefix)
}

// backgroundLogger returns a component logger that is silent while a
// full-screen program owns the terminal.
func backgroundLogger(prefix string, fullscreen bool) *log.Logger {
	l := componentLogger(prefix)
	if fullscreen {
		l.SetOutput(io.Discard)
	}
	return l
}
