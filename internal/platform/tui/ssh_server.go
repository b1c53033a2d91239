package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/google/uuid"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/emulator"
	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/storage"
)

// SSHServerConfig holds configuration for the SSH server.
type SSHServerConfig struct {
	// Address is the host:port to listen on (e.g., ":23235").
	Address string

	// HostKeyPath is the path to the host key file.
	// If empty, a key will be auto-generated at ~/.nestris/host_key.
	HostKeyPath string

	// DBPath is the path to the games database.
	DBPath string

	// IdleTimeout is how long to wait before closing idle connections.
	IdleTimeout time.Duration

	Emulator   config.EmulatorConfig
	StartLevel int
	// Seed seeds every session's piece generator; 0 seeds from the clock.
	Seed int64
}

// DefaultSSHServerConfig returns a config with sensible defaults.
func DefaultSSHServerConfig() SSHServerConfig {
	return SSHServerConfig{
		Address:     ":23235",
		DBPath:      "~/.nestris/nestris.db",
		IdleTimeout: 30 * time.Minute,
		Emulator:    config.DefaultEmulatorConfig(),
	}
}

// SSHServer wraps a Wish SSH server that gives each session its own
// emulator game. Every game is recorded to the games database.
type SSHServer struct {
	config SSHServerConfig
	server *ssh.Server
	store  *storage.Store
	logger *log.Logger
	active atomic.Int64
}

// NewSSHServer creates a new SSH server with the given configuration.
// A nil logger uses a default one.
func NewSSHServer(cfg SSHServerConfig, logger *log.Logger) (*SSHServer, error) {
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "nestris-ssh",
		})
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.Warn("could not open games database", "error", err)
		// Continue without recording
	}

	srv := &SSHServer{
		config: cfg,
		store:  store,
		logger: logger,
	}

	hostKeyPath := cfg.HostKeyPath
	if hostKeyPath == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return nil, fmt.Errorf("cannot get home directory: %w", homeErr)
		}
		hostKeyPath = filepath.Join(home, ".nestris", "host_key")
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(hostKeyPath), 0o700); mkdirErr != nil {
		return nil, fmt.Errorf("cannot create host key directory: %w", mkdirErr)
	}

	opts := []ssh.Option{
		wish.WithAddress(cfg.Address),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(
			bubbletea.Middleware(srv.teaHandler),
			srv.loggingMiddleware,
		),
	}

	server, err := wish.NewServer(opts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("cannot create SSH server: %w", err)
	}

	srv.server = server
	return srv, nil
}

// teaHandler creates an emulator session and its player for each SSH
// session. The game is torn down when the connection closes.
func (s *SSHServer) teaHandler(sshSession ssh.Session) (tea.Model, []tea.ProgramOption) {
	if _, _, ok := sshSession.Pty(); !ok {
		s.logger.Warn("no PTY requested", "user", sshSession.User())
		return nil, nil
	}

	user := sshSession.User()
	id := packet.SessionID(uuid.NewString())
	logger := s.logger.With("user", user, "session", string(id)[:8])

	hub := packet.NewHub()
	var recorder *storage.Recorder
	if s.store != nil {
		recorder = storage.NewRecorder(s.store, storage.RecorderOptions{
			ID:     id,
			Source: storage.SourceSSH,
			Player: user,
			Logger: logger,
		})
		hub.Register(recorder)
	}

	seed := s.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	var current atomic.Pointer[emulator.Session]
	start := func(level int) *emulator.Session {
		session := emulator.NewSession(emulator.SessionOptions{
			Config:     s.config.Emulator,
			StartLevel: level,
			Generator:  emulator.NewRandomGenerator(seed),
			Buffer:     packet.NewBuffer(hub),
			Logger:     logger,
		})
		current.Store(session)
		return session
	}

	go func() {
		<-sshSession.Context().Done()
		hub.Close("disconnected")
		if session := current.Load(); session != nil {
			session.Stop()
		}
		if recorder != nil {
			recorder.Close()
		}
	}()

	model := NewSessionModel(start, PlayerOptions{
		FPS:        s.config.Emulator.FPS,
		StartLevel: s.config.StartLevel,
		Keybinds:   s.config.Emulator.Keybinds,
		Title:      fmt.Sprintf("NESTRIS  %s", user),
	})

	return model, []tea.ProgramOption{
		tea.WithAltScreen(),
	}
}

// loggingMiddleware logs SSH session events.
func (s *SSHServer) loggingMiddleware(next ssh.Handler) ssh.Handler {
	return func(sshSession ssh.Session) {
		s.logger.Info("session started",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
			"active", s.active.Add(1),
		)
		next(sshSession)
		s.logger.Info("session ended",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
			"active", s.active.Add(-1),
		)
	}
}

// ListenAndServe starts the SSH server and blocks until shutdown.
func (s *SSHServer) ListenAndServe() error {
	s.logger.Info("starting SSH server", "address", s.config.Address, "level", s.config.StartLevel)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	<-done
	s.logger.Info("shutting down...")
	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *SSHServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if s.store != nil {
		s.store.Close()
	}
	return err
}

// Addr returns the server's listen address string.
func (s *SSHServer) Addr() string {
	return s.config.Address
}

// ActiveSessions returns how many SSH sessions are connected.
func (s *SSHServer) ActiveSessions() int {
	return int(s.active.Load())
}

// SessionModel manages the session flow: level menu, then the game.
type SessionModel struct {
	start    func(level int) *emulator.Session
	opts     PlayerOptions
	menu     MenuModel
	player   *PlayerModel
	width    int
	height   int
	quitting bool
}

// NewSessionModel creates a session model. start creates the emulator
// session once a level is picked; opts.StartLevel preselects the custom
// level.
func NewSessionModel(start func(level int) *emulator.Session, opts PlayerOptions) SessionModel {
	return SessionModel{
		start: start,
		opts:  opts,
		menu:  NewMenuModel(opts.StartLevel),
	}
}

// Init initializes the session.
func (m SessionModel) Init() tea.Cmd {
	return m.menu.Init()
}

// Update handles messages for the session.
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = wsm.Width
		m.height = wsm.Height
	}

	if m.player != nil {
		return m.updatePlayer(msg)
	}
	return m.updateMenu(msg)
}

func (m SessionModel) updateMenu(msg tea.Msg) (tea.Model, tea.Cmd) {
	newMenu, cmd := m.menu.Update(msg)
	if menuModel, ok := newMenu.(MenuModel); ok {
		m.menu = menuModel
	}

	if m.menu.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}

	if level := m.menu.Selected(); level >= 0 {
		opts := m.opts
		opts.StartLevel = level
		player := NewPlayerModel(m.start(level), opts)
		if m.width > 0 {
			resized, _ := player.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height})
			player = resized.(PlayerModel)
		}
		m.player = &player
		return m, player.Init()
	}

	return m, cmd
}

func (m SessionModel) updatePlayer(msg tea.Msg) (tea.Model, tea.Cmd) {
	newModel, cmd := m.player.Update(msg)
	if player, ok := newModel.(PlayerModel); ok {
		m.player = &player
	}
	if m.player.Quitting() {
		m.quitting = true
	}
	return m, cmd
}

// View renders the current view.
func (m SessionModel) View() string {
	if m.quitting {
		return ""
	}
	if m.player != nil {
		return m.player.View()
	}
	return m.menu.View()
}

// RunSession shows the level menu and then plays the emulator session
// created by start.
func RunSession(start func(level int) *emulator.Session, opts PlayerOptions) error {
	p := tea.NewProgram(
		NewSessionModel(start, opts),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
