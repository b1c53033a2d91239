package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/nestris-ocr/internal/analysis"
	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/ocr"
	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/platform/tui"
	"github.com/vovakirdan/nestris-ocr/internal/storage"
	"github.com/vovakirdan/nestris-ocr/internal/vision"
)

var (
	flagOCRCalibration string
	flagOCRCalFile     string
	flagOCRSource      string
	flagOCROracle      string
	flagOCRPlayer      string
	flagOCRCaptureFPS  int
	flagOCRMonitor     bool
	flagOCRNoRecord    bool
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <dir>",
	Short: "Track a game from captured frames",
	Long: `Read captured stills of a real NES Tetris game and track it.

Frames are read through a calibration made with 'nestris calibrate'. The
state machine follows the game frame by frame, emits the same packet
stream the emulator does and records every game it sees.

With --oracle, each placement is rated against the best move the oracle
finds.

Examples:
  nestris ocr ./frames
  nestris ocr ./frames --calibration stream --tui
  nestris ocr ./capture --source watch --oracle http://localhost:3000`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

func init() {
	ocrCmd.Flags().StringVar(&flagOCRCalibration, "calibration", "default", "Name of the stored calibration")
	ocrCmd.Flags().StringVar(&flagOCRCalFile, "calibration-file", "", "Read the calibration from a YAML file instead")
	ocrCmd.Flags().StringVar(&flagOCRSource, "source", "dir", "Frame source (see 'nestris list')")
	ocrCmd.Flags().StringVar(&flagOCROracle, "oracle", "", "Move oracle URL (overrides the config)")
	ocrCmd.Flags().StringVar(&flagOCRPlayer, "player", "capture", "Player name to record the games under")
	ocrCmd.Flags().IntVar(&flagOCRCaptureFPS, "capture-fps", 60, "Frame rate the stills were captured at")
	ocrCmd.Flags().BoolVar(&flagOCRMonitor, "tui", false, "Show the live state machine monitor")
	ocrCmd.Flags().BoolVar(&flagOCRNoRecord, "no-record", false, "Do not record the games")
}

func runOCR(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := args[0]

	var store *storage.Store
	if !flagOCRNoRecord || flagOCRCalFile == "" {
		store, err = storage.Open(flagDBPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	cal, err := loadOCRCalibration(store)
	if err != nil {
		return err
	}
	classifier, err := classifiers().Create(flagClassifier)
	if err != nil {
		return err
	}
	src, err := sources(dir).Create(flagOCRSource)
	if err != nil {
		return err
	}
	extractor := vision.NewExtractor(cal, cfg.Profile, classifier)

	hub := packet.NewHub()
	var recorder *storage.Recorder
	if !flagOCRNoRecord {
		recorder = storage.NewRecorder(store, storage.RecorderOptions{
			ID:     packet.SessionID("ocr"),
			Source: storage.SourceOCR,
			Player: flagOCRPlayer,
			Logger: backgroundLogger("recorder", flagOCRMonitor),
		})
		hub.Register(recorder)
	}

	// Stills carry no timestamps, so a directory replay is timed by its
	// frame index. Watched captures arrive live.
	clock := time.Now
	read := ocr.ExtractorReader(extractor)
	if flagOCRSource != "watch" {
		fps := max(1, flagOCRCaptureFPS)
		epoch := time.Now()
		var frameIndex atomic.Int64
		clock = func() time.Time {
			return epoch.Add(time.Duration(frameIndex.Load()) * time.Second / time.Duration(fps))
		}
		inner := read
		read = func(index int, frame vision.Frame) ocr.FrameFeatures {
			frameIndex.Store(int64(index))
			return inner(index, frame)
		}
	}

	var feed *tui.MonitorFeed
	opts := ocr.MachineOptions{
		Config:          cfg.OCR,
		NoiseThreshold:  cfg.Profile.NoiseThreshold,
		Buffer:          packet.NewBuffer(hub),
		AnalyzerFactory: analyzerFactory(cfg.Analysis),
		Logger:          backgroundLogger("ocr", flagOCRMonitor),
		Clock:           clock,
	}
	var pipeline *ocr.Pipeline
	if flagOCRMonitor {
		feed = tui.NewMonitorFeed(func() (int64, int64) { return pipeline.Stats() })
		opts.Sink = feed
	}
	machine := ocr.NewMachine(opts)
	pipeline = ocr.NewPipeline(machine, read, func(r ocr.FrameReport) {
		if feed != nil {
			feed.Report(r)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() {
			machine.Finish()
			if feed != nil {
				feed.Close()
			}
		}()
		if err := pipeline.Run(gctx, src); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if feed != nil {
		monitorErr := tui.RunMonitor(feed, fmt.Sprintf("%s  %s", flagOCRPlayer, dir))
		stop()
		if monitorErr != nil {
			logger.Error("monitor failed", "error", monitorErr)
		}
	}
	err = g.Wait()

	hub.Close("source finished")
	processed, dropped := pipeline.Stats()
	fmt.Printf("Processed %s frames (%s dropped), final state %s\n",
		humanize.Comma(processed), humanize.Comma(dropped), machine.State())
	if recorder != nil {
		recorder.Close()
		for _, id := range recorder.Saved() {
			fmt.Printf("Recorded game %s\n", id)
		}
	}
	return err
}

func loadOCRCalibration(store *storage.Store) (vision.Calibration, error) {
	if flagOCRCalFile != "" {
		return vision.LoadCalibration(flagOCRCalFile)
	}
	cal, err := store.Calibration(flagOCRCalibration)
	if err != nil {
		return vision.Calibration{}, err
	}
	if cal == nil {
		return vision.Calibration{}, fmt.Errorf("no calibration named %q, run 'nestris calibrate' first", flagOCRCalibration)
	}
	return *cal, nil
}

// analyzerFactory rates every placement of a tracked game when an oracle
// is configured.
func analyzerFactory(cfg config.AnalysisConfig) func(int) ocr.Analyzer {
	url := cfg.OracleURL
	if flagOCROracle != "" {
		url = flagOCROracle
	}
	if url == "" {
		return nil
	}
	oracle := analysis.NewHTTPOracle(url, cfg.Timeout())
	alog := backgroundLogger("analysis", flagOCRMonitor)
	return func(startLevel int) ocr.Analyzer {
		alog.Info("rating placements", "oracle", url, "level", startLevel)
		return analysis.NewLiveGameAnalyzer(analysis.Options{
			Oracle:     oracle,
			Timeout:    cfg.Timeout(),
			Difficulty: cfg.Difficulty,
			Logger:     alog,
			OnScore: func(s analysis.Score) {
				alog.Info("placement rated",
					"index", s.Index,
					"piece", s.Placement.Type,
					"score", fmt.Sprintf("%.2f", s.Score),
					"rating", s.Rating)
			},
		})
	}
}
