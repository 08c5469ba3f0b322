// Ultrasonic Positioning - computes the 2-D position of a receiver from the
// arrival times of pulses fired by four emitters at the corners of a
// rectangle, and publishes accepted fixes as they are found.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YingVictor/ultrasonic-positioning/internal/config"
	"github.com/YingVictor/ultrasonic-positioning/internal/logging"
	"github.com/YingVictor/ultrasonic-positioning/internal/receiver"
	"github.com/YingVictor/ultrasonic-positioning/internal/version"
)

// Command line flag variables
var (
	cfgFile     string // Configuration file path
	verbose     bool   // Enable debug logging
	writeConfig string // Write the effective configuration here and exit
	showVersion bool   // Print version information and exit
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ultrasonic-positioning",
	Short: "TDOA positioning from four ultrasonic emitters",
	Long: `Ultrasonic Positioning reads the arrival times of pulses from four emitters
placed at the corners of a rectangle and solves for the receiver's position
relative to the rectangle center. Captures come from the receiver board over
a serial port or from the built-in simulator.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.Get().String("ultrasonic-positioning"))
			return
		}
		if err := runReceiver(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// init initializes the CLI flags and configuration
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./config.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.Flags().StringVar(&writeConfig, "write-config", "", "write the effective configuration to this file and exit")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version information and exit")

	// Capture source
	rootCmd.Flags().String("capture-mode", "sim", "capture source: serial or sim")
	rootCmd.Flags().StringP("port", "p", "/dev/ttyACM0", "receiver board serial port (serial mode)")
	rootCmd.Flags().Int("baud", 115200, "receiver board baud rate (serial mode)")
	rootCmd.Flags().String("sim-path", "circle", "simulated path: circle or fixed")
	rootCmd.Flags().Int("sim-cycles", 0, "stop the simulator after this many captures (0 = forever)")

	// Site anchor
	rootCmd.Flags().String("site-mode", "none", "site anchor: none, manual, nmea or gpsd")
	rootCmd.Flags().String("gps-port", "/dev/ttyUSB0", "GPS serial port (nmea site mode)")
	rootCmd.Flags().String("gpsd-host", "localhost", "GPSD host address (gpsd site mode)")
	rootCmd.Flags().String("gpsd-port", "2947", "GPSD port (gpsd site mode)")
	rootCmd.Flags().Float64("latitude", 0.0, "rectangle center latitude in decimal degrees (manual site mode)")
	rootCmd.Flags().Float64("longitude", 0.0, "rectangle center longitude in decimal degrees (manual site mode)")
	rootCmd.Flags().Float64("heading", 0.0, "bearing of the rectangle +y axis in degrees from north")

	// Output
	rootCmd.Flags().StringP("record", "r", "", "record raw captures to this capture log")
	rootCmd.Flags().Bool("progress", false, "print every solver iteration")
	rootCmd.Flags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.Flags().String("log-file", "", "also write logs to this file")

	bindings := map[string]string{
		"capture.mode":          "capture-mode",
		"capture.port":          "port",
		"capture.baud_rate":     "baud",
		"capture.sim.path":      "sim-path",
		"capture.sim.cycles":    "sim-cycles",
		"site.mode":             "site-mode",
		"site.port":             "gps-port",
		"site.gpsd_host":        "gpsd-host",
		"site.gpsd_port":        "gpsd-port",
		"site.manual_latitude":  "latitude",
		"site.manual_longitude": "longitude",
		"site.heading":          "heading",
		"recording.file":        "record",
		"display.progress":      "progress",
		"logging.level":         "log-level",
		"logging.file":          "log-file",
	}
	for key, flag := range bindings {
		viper.BindPFlag(key, rootCmd.Flags().Lookup(flag))
	}
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	// UPOS_CAPTURE_MODE overrides capture.mode, and so on
	viper.SetEnvPrefix("upos")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, the config file, environment and flags
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runReceiver is the main application logic
func runReceiver() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if writeConfig != "" {
		if err := cfg.Save(writeConfig); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", writeConfig)
		return nil
	}

	logCloser, err := logging.Setup(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	fmt.Printf("Ultrasonic Positioning %s starting...\n", version.Get().Full())
	fmt.Printf("Rectangle: %.2f x %.2f ft, receiver offset %.2f ft\n",
		cfg.Geometry.Width, cfg.Geometry.Height, cfg.Geometry.Z)
	switch cfg.Capture.Mode {
	case "serial":
		fmt.Printf("Captures: SERIAL (%s at %d baud)\n", cfg.Capture.Port, cfg.Capture.BaudRate)
	case "sim":
		fmt.Printf("Captures: SIMULATED (%s path, one every %v)\n", cfg.Capture.Sim.Path, cfg.Capture.Sim.Cycle)
	}
	if cfg.Recording.File != "" {
		fmt.Printf("Recording: %s\n", cfg.Recording.File)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Printf("\nReceived interrupt signal, shutting down...\n")
		cancel()
	}()

	r := receiver.NewReceiver(cfg, os.Stdout)
	if err := r.Initialize(ctx); err != nil {
		r.Close()
		return fmt.Errorf("failed to initialize receiver: %w", err)
	}

	runErr := r.Run(ctx)
	r.PrintSummary()
	if err := r.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
