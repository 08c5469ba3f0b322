// Capture Reader - Utility to display contents of capture logs
// This program reads and displays the session header and raw capture records
// written by ultrasonic-positioning --record.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/YingVictor/ultrasonic-positioning/internal/capture"
	"github.com/YingVictor/ultrasonic-positioning/internal/capturelog"
	"github.com/YingVictor/ultrasonic-positioning/internal/position"
	"github.com/YingVictor/ultrasonic-positioning/internal/version"
)

var (
	showRecords  bool
	showStats    bool
	showNMEA     bool
	outputFormat string
	limit        int
	showVersion  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "capture-reader [file.upos]",
	Short: "Display contents of capture logs",
	Long: `Capture Reader displays the session header and raw arrival timestamps stored
in a capture log. Useful for checking what the receiver board latched before
replaying a session.

Display modes:
  --records    Show every record with its elapsed ticks and usability
  --stats      Show record timing and rejection statistics
  --nmea       Re-emit every record as a $UPTDA sentence`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.Get().String("capture-reader"))
			return
		}

		if len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Error: filename required\n")
			cmd.Usage()
			os.Exit(1)
		}

		if err := displayFile(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().BoolVarP(&showRecords, "records", "r", false, "display capture records")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "show record statistics")
	rootCmd.Flags().BoolVar(&showNMEA, "nmea", false, "print records as $UPTDA sentences")
	rootCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "record output format (table, json, csv)")
	rootCmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many records (0 = all)")
}

// recordView is one record as shown to the user
type recordView struct {
	Index   int              `json:"index"`
	Time    time.Time        `json:"time"`
	Capture position.Capture `json:"capture"`
	Elapsed [4]uint32        `json:"elapsed_ticks"`
	Status  string           `json:"status"`
}

func viewRecord(i int, rec capturelog.Record, p position.Params) recordView {
	v := recordView{Index: i, Time: rec.Time, Capture: rec.Capture, Status: "ok"}
	for k, t := range rec.Capture {
		v.Elapsed[k] = uint32(position.ElapsedTicks(t, p.CounterMax))
	}
	if err := position.ValidateCapture(rec.Capture, p); err != nil {
		v.Status = statusOf(err)
	} else if _, err := position.ComputeDifferences(rec.Capture, p); err != nil {
		v.Status = statusOf(err)
	}
	return v
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, position.ErrNoCapture):
		return "no_capture"
	case errors.Is(err, position.ErrStaleCapture):
		return "stale"
	case errors.Is(err, position.ErrImplausible):
		return "implausible"
	}
	return "error"
}

// displayFile reads and displays the contents of a capture log
func displayFile(filename string) error {
	fileInfo, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	} else if err != nil {
		return err
	}

	// Header only unless records are needed
	if !showRecords && !showStats && !showNMEA {
		header, err := capturelog.ReadHeader(filename)
		if err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
		displayHeader(filename, fileInfo, header)
		return nil
	}

	header, records, err := capturelog.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read capture log: %w", err)
	}

	if showNMEA {
		for i, rec := range records {
			if limit > 0 && i >= limit {
				break
			}
			fmt.Println(capture.FormatTDA(rec.Capture))
		}
		return nil
	}

	displayHeader(filename, fileInfo, header)
	fmt.Printf("Records: %d\n", len(records))
	if len(records) > 1 {
		span := records[len(records)-1].Time.Sub(records[0].Time)
		fmt.Printf("Span: %s\n", span.Round(time.Millisecond))
	}
	fmt.Println()

	views := make([]recordView, 0, len(records))
	for i, rec := range records {
		views = append(views, viewRecord(i, rec, header.Params))
	}

	if showStats {
		displayStatistics(records, views)
	}
	if showRecords {
		shown := views
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		return displayRecords(shown)
	}
	return nil
}

// displayHeader shows the session metadata
func displayHeader(filename string, fileInfo os.FileInfo, h *capturelog.Header) {
	fmt.Printf("CAPTURE LOG READER %s\n\n", version.Get().Full())

	fmt.Printf("File Information:\n")
	fmt.Printf("Name: %s\n", filepath.Base(filename))
	fmt.Printf("Size: %d bytes\n", fileInfo.Size())
	fmt.Printf("Modified: %s\n\n", fileInfo.ModTime().Format("2006-01-02 15:04:05"))

	p := h.Params
	fmt.Printf("Session:\n")
	fmt.Printf("File Format Version: %d\n", h.FormatVersion)
	fmt.Printf("Session ID: %s\n", h.SessionID)
	fmt.Printf("Start Time: %s\n", h.StartTime.Format("2006-01-02 15:04:05.000"))
	if h.Device != "" {
		fmt.Printf("Device: %s\n", h.Device)
	}
	if h.Anchor != nil {
		fmt.Printf("Site: %s\n", h.Anchor)
	} else {
		fmt.Printf("Site: not anchored\n")
	}
	fmt.Println()

	fmt.Printf("Parameters:\n")
	fmt.Printf("Rectangle: %.3f x %.3f ft, Z %.3f ft\n", p.Width, p.Height, p.Z)
	fmt.Printf("Wave Speed: %.1f ft/s\n", p.WaveSpeed)
	fmt.Printf("Counter: %.0f Hz, max %d, stale after %d ticks\n", p.CounterFreq, p.CounterMax, p.StaleMargin)
	fmt.Printf("Pulse Spacing: %s (%d ticks)\n", p.PulseSpacing, p.SpacingTicks())
	fmt.Printf("Solver: damping %.3f, converge < %.4f ft², accept < %.4f ft², max %d iterations\n\n",
		p.Damping, p.ConvergeBelow, p.AcceptBelow, p.MaxIterations)
}

// displayStatistics summarises record timing and usability
func displayStatistics(records []capturelog.Record, views []recordView) {
	counts := map[string]int{}
	for _, v := range views {
		counts[v.Status]++
	}

	fmt.Printf("Record Statistics:\n")
	for _, status := range []string{"ok", "no_capture", "stale", "implausible"} {
		fmt.Printf("%-12s %d\n", status+":", counts[status])
	}

	if len(records) > 1 {
		intervals := make([]float64, 0, len(records)-1)
		for i := 1; i < len(records); i++ {
			intervals = append(intervals, records[i].Time.Sub(records[i-1].Time).Seconds()*1000)
		}
		mean, std := stat.MeanStdDev(intervals, nil)
		fmt.Printf("Interval: %.1f ± %.1f ms\n", mean, std)
	}

	var elapsed []float64
	for _, v := range views {
		if v.Status == "ok" {
			elapsed = append(elapsed, float64(v.Elapsed[0]))
		}
	}
	if len(elapsed) > 1 {
		mean, std := stat.MeanStdDev(elapsed, nil)
		fmt.Printf("Emitter 0 elapsed: %.0f ± %.0f ticks\n", mean, std)
	}
	fmt.Println()
}

// displayRecords prints records in the selected format
func displayRecords(views []recordView) error {
	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(views)
	case "csv":
		w := csv.NewWriter(os.Stdout)
		w.Write([]string{"index", "time", "t0", "t1", "t2", "t3", "elapsed0", "elapsed1", "elapsed2", "elapsed3", "status"})
		for _, v := range views {
			row := []string{strconv.Itoa(v.Index), v.Time.UTC().Format(time.RFC3339Nano)}
			for _, t := range v.Capture {
				row = append(row, strconv.FormatUint(uint64(t), 10))
			}
			for _, e := range v.Elapsed {
				row = append(row, strconv.FormatUint(uint64(e), 10))
			}
			row = append(row, v.Status)
			w.Write(row)
		}
		w.Flush()
		return w.Error()
	case "table":
		fmt.Printf("%-6s %-12s %-11s %-11s %-11s %-11s %s\n", "#", "Time", "t0", "t1", "t2", "t3", "Status")
		for _, v := range views {
			fmt.Printf("%-6d %-12s %-11d %-11d %-11d %-11d %s\n", v.Index, v.Time.Format("15:04:05.000"),
				v.Capture[0], v.Capture[1], v.Capture[2], v.Capture[3], v.Status)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
