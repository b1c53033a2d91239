package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/registry"
	"github.com/vovakirdan/nestris-ocr/internal/vision"
)

var (
	flagDigits     string
	flagClassifier string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List digit classifiers and frame sources",
	Long:  `Shows the digit classifiers and frame sources the ocr command can use.`,
	Args:  cobra.NoArgs,
	Run:   runList,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDigits, "digits", "", "Path to digit templates YAML")
	rootCmd.PersistentFlags().StringVar(&flagClassifier, "classifier", "hamming", "Digit classifier (see 'nestris list')")
}

// classifiers returns the digit classifiers selectable with --classifier.
func classifiers() *registry.Registry[vision.DigitClassifier] {
	r := registry.New[vision.DigitClassifier]("classifier")
	r.Register("hamming", "Nearest digit template by Hamming distance", func() (vision.DigitClassifier, error) {
		set, err := config.LoadDigits(flagDigits)
		if err != nil {
			return nil, err
		}
		return vision.NewHammingClassifier(set)
	})
	return r
}

// sources returns the frame sources for dir selectable with --source.
func sources(dir string) *registry.Registry[vision.Source] {
	r := registry.New[vision.Source]("source")
	r.Register("dir", "Stills of a directory in file name order", func() (vision.Source, error) {
		return vision.DirSource{Dir: dir}, nil
	})
	r.Register("watch", "Stills written into a directory while capturing", func() (vision.Source, error) {
		return vision.WatchSource{Dir: dir, Logger: backgroundLogger("watch", flagOCRMonitor)}, nil
	})
	return r
}

func runList(_ *cobra.Command, _ []string) {
	printInfos("Digit classifiers", classifiers().List())
	fmt.Println()
	printInfos("Frame sources", sources("").List())
	fmt.Println()
	fmt.Println("Run 'nestris ocr <dir> --classifier <id> --source <id>' to track a game.")
}

func printInfos(title string, infos []registry.Info) {
	fmt.Printf("%s:\n\n", title)
	if len(infos) == 0 {
		fmt.Println("  none")
		return
	}

	// Calculate column widths
	maxIDLen := 2 // "ID" header
	for _, info := range infos {
		if len(info.ID) > maxIDLen {
			maxIDLen = len(info.ID)
		}
	}

	fmt.Printf("  %-*s  %s\n", maxIDLen, "ID", "Title")
	fmt.Printf("  %-*s  %s\n", maxIDLen, "--", "-----")
	for _, info := range infos {
		fmt.Printf("  %-*s  %s\n", maxIDLen, info.ID, info.Title)
	}
}
