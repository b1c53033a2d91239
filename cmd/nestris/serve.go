package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/platform/tui"
)

var (
	flagSSHAddr     string
	flagHostKey     string
	flagIdleTimeout int
	flagServeLevel  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nestris SSH server",
	Long: `Start an SSH server that lets users connect and play.

Each SSH connection gets its own emulator session with a level menu.
Every game is recorded to the shared games database under the SSH user name.

Host key handling:
  - If --host-key is provided, uses that key file
  - Otherwise, auto-generates a key at ~/.nestris/host_key

Examples:
  nestris serve                           # Listen on :23235 with auto-generated key
  nestris serve --ssh :2222               # Listen on port 2222
  nestris serve --host-key ./my_host_key  # Use specific host key
  nestris serve --db ./games.db           # Use specific database

Users can connect with:
  ssh localhost -p 23235`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagSSHAddr, "ssh", ":23235", "SSH server address (host:port)")
	serveCmd.Flags().StringVar(&flagHostKey, "host-key", "", "Path to host key file (auto-generated if not specified)")
	serveCmd.Flags().IntVar(&flagIdleTimeout, "idle-timeout", 30, "Idle timeout in minutes before disconnecting")
	serveCmd.Flags().IntVar(&flagServeLevel, "level", 18, "Custom level preselected in the menu")
}

func runServe(_ *cobra.Command, _ []string) error {
	appCfg, err := loadConfig()
	if err != nil {
		return err
	}

	cfg := tui.SSHServerConfig{
		Address:     flagSSHAddr,
		HostKeyPath: flagHostKey,
		DBPath:      flagDBPath,
		IdleTimeout: time.Duration(flagIdleTimeout) * time.Minute,
		Emulator:    appCfg.Emulator,
		StartLevel:  config.ClampStartLevel(flagServeLevel),
		Seed:        flagSeed,
	}

	server, err := tui.NewSSHServer(cfg, componentLogger("ssh"))
	if err != nil {
		return fmt.Errorf("cannot create server: %w", err)
	}

	fmt.Printf("Starting nestris SSH server on %s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	return server.ListenAndServe()
}
