package main

import (
	"errors"
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/nestris-ocr/internal/storage"
	"github.com/vovakirdan/nestris-ocr/internal/vision"
)

var (
	flagCalX     int
	flagCalY     int
	flagCalName  string
	flagCalOut   string
	flagCalFrom  string
	flagCalIndex int
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate [frame]",
	Short: "Locate the board and number boxes on a captured still",
	Long: `Calibrate a capture setup from one still.

The board is found by floodfilling from the --x/--y pixel, which must lie
inside the board's black background. The next box and the level, score and
lines boxes are then found relative to the board. The result is stored in
the database under --name and optionally written to a YAML file.

With --from, a calibration YAML file is imported instead.

Examples:
  nestris calibrate still.png --x 300 --y 200
  nestris calibrate still.png --x 300 --y 200 --name stream --out stream.yaml
  nestris calibrate --from stream.yaml --name stream`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().IntVar(&flagCalX, "x", -1, "X of a pixel inside the board")
	calibrateCmd.Flags().IntVar(&flagCalY, "y", -1, "Y of a pixel inside the board")
	calibrateCmd.Flags().StringVar(&flagCalName, "name", "default", "Name to store the calibration under")
	calibrateCmd.Flags().StringVar(&flagCalOut, "out", "", "Also write the calibration to this YAML file")
	calibrateCmd.Flags().StringVar(&flagCalFrom, "from", "", "Import a calibration YAML file instead of calibrating")
	calibrateCmd.Flags().IntVar(&flagCalIndex, "frame-index", 0, "Index of the still within its capture")
}

func runCalibrate(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var (
		cal   vision.Calibration
		frame *vision.ImageFrame
	)
	switch {
	case flagCalFrom != "":
		cal, err = vision.LoadCalibration(flagCalFrom)
		if err != nil {
			return err
		}
	case len(args) == 1:
		if flagCalX < 0 || flagCalY < 0 {
			return errors.New("--x and --y are required to calibrate a frame")
		}
		frame, err = vision.LoadFrame(args[0])
		if err != nil {
			return err
		}
		cal, err = vision.Calibrate(frame, flagCalIndex, image.Pt(flagCalX, flagCalY), cfg.Profile.Calibration)
		if err != nil {
			return err
		}
	default:
		return errors.New("a frame or --from is required")
	}

	logger.Info("calibrated",
		"board", cal.Rects.Board,
		"next", cal.Rects.Next,
		"level", cal.Rects.Level,
		"score", cal.Rects.Score,
		"lines", cal.Rects.Lines)

	store, err := storage.Open(flagDBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SaveCalibration(flagCalName, cal); err != nil {
		return err
	}
	fmt.Printf("Saved calibration %q\n", flagCalName)

	if flagCalOut != "" {
		if err := vision.SaveCalibration(flagCalOut, cal); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", flagCalOut)
	}

	if frame == nil {
		return nil
	}

	// Read the calibration still back so the user can check the boxes.
	classifier, err := classifiers().Create(flagClassifier)
	if err != nil {
		return err
	}
	read := vision.NewExtractor(cal, cfg.Profile, classifier).Read(flagCalIndex, frame)
	fmt.Println()
	fmt.Println(read.BinaryBoard().String())
	fmt.Printf("next %v  level %d  score %d  lines %d  noise %.1f\n",
		read.NextType(), read.Level(), read.Score(), read.Lines(), read.Noise())
	return nil
}
