package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/igorfuzz/console/internal/log"
	"github.com/igorfuzz/console/internal/model"
	"github.com/igorfuzz/console/internal/walk"
)

var (
	userConfigPath string // /default/config/path/igor on given OS
	configPath     string // actual config file used
	configDir      string // relative paths in config are resolved against it
	config         model.Config
	logCloser      io.Closer

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		d = "."
	}
	userConfigPath = filepath.Join(d, "igor")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is igor.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	err := rootCmd.Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		slog.Error("igor failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "igor",
	Short:        "Runs a target program over many inputs on a fixed-size worker pool",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:               "run",
	Short:             "run executes the configured target once per input file",
	PersistentPreRunE: initIgor,
	RunE:              doRun,
}

var checkCmd = &cobra.Command{
	Use:               "check",
	Short:             "check probes the target, the inputs and the output locations",
	PersistentPreRunE: initIgor,
	RunE:              doCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of igor",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		info, ok := debug.ReadBuildInfo()
		if !ok {
			_, _ = fmt.Fprintln(out, "igor: version info not available")
			return
		}

		_, _ = fmt.Fprintf(out, "igor: %s\n", info.Main.Version)
		_, _ = fmt.Fprintf(out, "go:   %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				_, _ = fmt.Fprintf(out, "commit: %s\n", s.Value)
			case "vcs.time":
				_, _ = fmt.Fprintf(out, "date:   %s\n", s.Value)
			case "vcs.modified":
				_, _ = fmt.Fprintf(out, "dirty:  %s\n", s.Value)
			}
		}
	},
}

func doRun(cmd *cobra.Command, _ []string) error {
	console, err := NewConsole(cmd.Context(), config, configDir, slog.Default())
	if err != nil {
		return err
	}
	return console.Do(cmd.Context(), cmd.OutOrStdout())
}

func doCheck(cmd *cobra.Command, _ []string) error {
	return Check(cmd.Context(), config, configDir, cmd.OutOrStdout())
}

func initIgor(_ *cobra.Command, _ []string) error {
	path, err := findConfig()
	if err != nil {
		return err
	}
	configPath, err = filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	configDir = filepath.Dir(configPath)

	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.ConfigErrDetails(err) {
			slog.Error("invalid config", d.Attr("detail"))
		}
		return fmt.Errorf("parsing config %s: %w", configPath, err)
	}
	config = *cfg

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Log.Verbose = true
	}

	logDir := config.Log.Dir
	if logDir != "" {
		logDir = walk.Resolve(configDir, logDir)
	}
	logger, closer, err := log.New(log.Config{
		Level:   config.Log.Level,
		Verbose: config.Log.Verbose,
		Dir:     logDir,
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCloser = closer
	slog.SetDefault(logger)

	slog.Debug("igor run", "configPath", configPath)
	slog.Debug("igor run", "config", config)
	return nil
}

var errNoConfig = errors.New("no config file found")

func findConfig() (string, error) {
	if envConfig, ok := os.LookupEnv("IGORCONFIG"); ok {
		return envConfig, nil
	}
	if flagConfigFilePath != "" {
		return flagConfigFilePath, nil
	}
	for _, d := range []string{userConfigPath, "."} {
		path := filepath.Join(d, "igor.yaml")
		if exists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: use --config, IGORCONFIG or igor.yaml in %s or current directory", errNoConfig, userConfigPath)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
