// Position Replay - re-solves a recorded capture log offline
// This program replays every capture of a session through the positioner,
// optionally with different solver constants, compares the fixes against a
// least-squares reference and exports the track.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YingVictor/ultrasonic-positioning/internal/capturelog"
	"github.com/YingVictor/ultrasonic-positioning/internal/logging"
	"github.com/YingVictor/ultrasonic-positioning/internal/replay"
	"github.com/YingVictor/ultrasonic-positioning/internal/site"
	"github.com/YingVictor/ultrasonic-positioning/internal/version"
)

var (
	outputDir     string   // Output directory
	formats       []string // Exports to write: csv, geojson, chart, plot
	reference     bool     // Solve each cycle by least squares as well
	damping       float64  // Solver step scale override
	maxIterations int      // Solver iteration cap override
	acceptBelow   float64  // Acceptance ceiling override (ft^2)
	latitude      float64  // Anchor override
	longitude     float64  // Anchor override
	heading       float64  // Anchor override
	verbose       bool     // Enable verbose logging
	showVersion   bool     // Show version information
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "position-replay [capture.upos]",
	Short: "Replay a recorded capture log through the positioner",
	Long: `Position Replay reads a capture log written by ultrasonic-positioning --record
and solves every cycle again. Solver constants can be overridden to see how
they change convergence and acceptance.

Supported exports:
  - csv:     one row per cycle, with rejection reasons
  - geojson: site rectangle, emitters and the track (needs a site anchor)
  - chart:   interactive HTML scatter of the fixes
  - plot:    static PNG of the track

Example usage:
  position-replay session.upos
  position-replay session.upos --reference --export csv,chart
  position-replay session.upos --max-iterations 200 --damping 0.2`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.Get().String("position-replay"))
			return
		}

		if len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Error: capture log required\n")
			cmd.Usage()
			os.Exit(1)
		}

		if err := runReplay(cmd, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")

	// Output flags
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "./replay-results", "output directory")
	rootCmd.Flags().StringSliceVarP(&formats, "export", "e", nil, "exports to write (csv, geojson, chart, plot)")

	// Processing flags
	rootCmd.Flags().BoolVar(&reference, "reference", false, "compare every fix against a least-squares reference solution")
	rootCmd.Flags().Float64Var(&damping, "damping", 0, "override the solver step scale")
	rootCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "override the solver iteration cap")
	rootCmd.Flags().Float64Var(&acceptBelow, "accept-below", 0, "override the acceptance ceiling (ft²)")

	// Anchor flags
	rootCmd.Flags().Float64Var(&latitude, "latitude", 0, "override the site latitude (decimal degrees)")
	rootCmd.Flags().Float64Var(&longitude, "longitude", 0, "override the site longitude (decimal degrees)")
	rootCmd.Flags().Float64Var(&heading, "heading", 0, "override the site heading (degrees from north)")

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// buildOptions turns the override flags into replay options
func buildOptions(cmd *cobra.Command, header *capturelog.Header) (replay.Options, error) {
	opts := replay.Options{Reference: reference}
	params, anchor := header.Params, header.Anchor

	flags := cmd.Flags()
	if flags.Changed("damping") || flags.Changed("max-iterations") || flags.Changed("accept-below") {
		if flags.Changed("damping") {
			params.Damping = damping
		}
		if flags.Changed("max-iterations") {
			params.MaxIterations = maxIterations
		}
		if flags.Changed("accept-below") {
			params.AcceptBelow = acceptBelow
		}
		if err := params.Validate(); err != nil {
			return opts, err
		}
		opts.Params = &params
	}

	if flags.Changed("latitude") || flags.Changed("longitude") {
		if !flags.Changed("latitude") || !flags.Changed("longitude") {
			return opts, fmt.Errorf("--latitude and --longitude must be given together")
		}
		a := site.Anchor{Latitude: latitude, Longitude: longitude, Heading: heading}
		if err := a.Validate(); err != nil {
			return opts, err
		}
		opts.Anchor = &a
	} else if flags.Changed("heading") && anchor != nil {
		a := *anchor
		a.Heading = heading
		opts.Anchor = &a
	}
	return opts, nil
}

// runReplay is the main application logic
func runReplay(cmd *cobra.Command, filename string) error {
	if verbose {
		logging.SetLevel(logging.LevelDebug)
	}

	fmt.Printf("POSITION REPLAY %s\n\n", version.Get().Full())

	header, records, err := capturelog.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read capture log: %w", err)
	}
	fmt.Printf("Loaded %d records from %s\n\n", len(records), filepath.Base(filename))

	opts, err := buildOptions(cmd, header)
	if err != nil {
		return err
	}
	result, err := replay.Run(header, records, opts)
	if err != nil {
		return err
	}

	result.Print()

	if len(formats) == 0 {
		return nil
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	fmt.Println()
	for _, format := range formats {
		outputFile, err := exportResult(result, strings.ToLower(strings.TrimSpace(format)), filepath.Join(outputDir, base))
		if err != nil {
			return fmt.Errorf("failed to export %s: %w", format, err)
		}
		fmt.Printf("Wrote %s\n", outputFile)
	}
	return nil
}

// exportResult writes one export next to base and returns its path
func exportResult(result *replay.Result, format, base string) (string, error) {
	switch format {
	case "csv":
		return base + ".csv", result.ExportCSV(base + ".csv")
	case "geojson":
		return base + ".geojson", result.ExportGeoJSON(base + ".geojson")
	case "chart":
		return base + ".html", result.ExportChart(base + ".html")
	case "plot":
		return base + ".png", result.ExportPlot(base + ".png")
	default:
		return "", fmt.Errorf("unsupported export format: %s", format)
	}
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
