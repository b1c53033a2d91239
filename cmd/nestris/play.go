package main

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/emulator"
	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/platform/tui"
	"github.com/vovakirdan/nestris-ocr/internal/storage"
)

var (
	flagPlayLevel  int
	flagPlayPreset string
	flagNoRecord   bool
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play NES Tetris in the terminal",
	Long: `Start an emulator game in the terminal.

Without --level or --preset a menu picks the start level.

Controls (default keybinds):
  Left/A, Right/D  - Shift
  Down/S           - Push down
  Z/J, X/K         - Rotate left, rotate right
  Enter/R          - Restart (after game over)
  Q/Esc/Ctrl+C     - Quit

Presets:
  easy (0), normal (9), hard (18), expert (19), killscreen (29)

Examples:
  nestris play
  nestris play --level 18
  nestris play --preset killscreen
  nestris play --seed 42 --no-record`,
	Args: cobra.NoArgs,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().IntVar(&flagPlayLevel, "level", -1, "Start level 0-29 (-1 shows the level menu)")
	playCmd.Flags().StringVar(&flagPlayPreset, "preset", "", "Level preset: easy, normal, hard, expert, killscreen")
	playCmd.Flags().BoolVar(&flagNoRecord, "no-record", false, "Do not record the games")
}

func runPlay(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := flagPlayLevel
	if flagPlayPreset != "" {
		preset, presetErr := config.ParseLevelPreset(flagPlayPreset)
		if presetErr != nil {
			return presetErr
		}
		level = preset.StartLevel()
	}

	if w, h, termErr := term.GetSize(int(os.Stdout.Fd())); termErr == nil {
		if w < tui.PlayfieldWidth || h < tui.PlayfieldHeight+4 {
			logger.Warn("terminal is smaller than the playfield",
				"size", fmt.Sprintf("%dx%d", w, h),
				"need", fmt.Sprintf("%dx%d", tui.PlayfieldWidth, tui.PlayfieldHeight+4))
		}
	}

	player := playerName()
	hub := packet.NewHub()

	var recorder *storage.Recorder
	if !flagNoRecord {
		store, openErr := storage.Open(flagDBPath)
		if openErr != nil {
			logger.Warn("could not open games database, games will not be recorded", "error", openErr)
		} else {
			defer store.Close()
			recorder = storage.NewRecorder(store, storage.RecorderOptions{
				ID:     packet.SessionID("local"),
				Source: storage.SourceEmulator,
				Player: player,
				Logger: backgroundLogger("recorder", true),
			})
			hub.Register(recorder)
		}
	}

	seed := flagSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sessionLogger := backgroundLogger("emulator", true)
	var session *emulator.Session
	start := func(level int) *emulator.Session {
		session = emulator.NewSession(emulator.SessionOptions{
			Config:     cfg.Emulator,
			StartLevel: level,
			Generator:  emulator.NewRandomGenerator(seed),
			Buffer:     packet.NewBuffer(hub),
			Logger:     sessionLogger,
		})
		return session
	}

	opts := tui.PlayerOptions{
		FPS:        cfg.Emulator.FPS,
		StartLevel: config.ClampStartLevel(level),
		Keybinds:   cfg.Emulator.Keybinds,
		Title:      fmt.Sprintf("NESTRIS  %s", player),
	}
	if level < 0 {
		err = tui.RunSession(start, opts)
	} else {
		err = tui.RunPlayer(start(opts.StartLevel), opts)
	}

	hub.Close("quit")
	if session != nil {
		session.Stop()
	}
	if recorder != nil {
		recorder.Close()
		for _, id := range recorder.Saved() {
			fmt.Printf("Recorded game %s\n", id)
		}
	}
	return err
}

func playerName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "player"
}
