package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/firmware-mirror/internal/config"
	"github.com/oshokin/firmware-mirror/internal/logger"
	"github.com/oshokin/firmware-mirror/internal/service/mirror"
	"github.com/oshokin/firmware-mirror/internal/version"
)

// Process exit codes.
const (
	exitFailure  = 1
	exitUpToDate = 3
)

var (
	// configPath to the optional configuration YAML file.
	configPath string
	// envFile is the dotenv file consulted for remote credentials.
	envFile string
	// logLevel is the minimum zap level printed.
	logLevel string
	// noProgress disables download progress bars.
	noProgress bool
	// options collects flag values passed straight to the mirror.
	options mirror.Options
	// result of the last run, turned into the exit code by Execute.
	result mirror.Result

	// rootCmd represents the base command for one mirroring pass.
	rootCmd = &cobra.Command{
		Use:   "firmware-mirror",
		Short: "Mirror the latest RouterOS release to an FTP server.",
		Long: `Checks the vendor feed for the latest release, downloads every configured
architecture into a local staging directory and publishes it to the remote store.

The remote keeps a version marker. When it already holds the latest release the
run exits with status 3 without downloading anything. Without a remote target
the artifacts are left in the staging directory.

Remote settings may also come from FIRMWARE_MIRROR_FTP_URL, FIRMWARE_MIRROR_FTP_USER
and FIRMWARE_MIRROR_FTP_PASSWORD, read from the environment or a .env file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			return config.LoadEnvFile(envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options.ConfigPath = configPath
			if !noProgress {
				options.Progress = cmd.ErrOrStderr()
			}

			var err error

			result, err = mirror.Run(ctx, &options)

			return err
		},
	}
)

// Execute runs the firmware-mirror CLI.
// It exits with 3 when the remote is already up to date and 1 on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.Background(), err)
		os.Exit(exitFailure)
	}

	if result == mirror.ResultUpToDate {
		os.Exit(exitUpToDate)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&options.RemoteURL, "ftp", "f", "", "remote target, ftp://host[:port]/path or file:///path")
	flags.StringVarP(&options.Username, "user", "u", "", "remote username, anonymous when empty")
	flags.StringVarP(&options.Password, "password", "p", "", "remote password")
	flags.StringVarP(&options.Version, "firmware-version", "V", "", "mirror this version instead of the latest one")
	flags.StringVarP(&options.StagingDir, "staging-dir", "d", "", "local download directory (default \"firmware\")")
	flags.BoolVar(&options.InsecureSkipVerify, "insecure", false, "skip TLS certificate verification for vendor downloads")
	flags.StringVarP(&configPath, "config", "c", "", "path to configuration file")
	flags.StringVar(&envFile, "env-file", config.DefaultEnvFilename, "dotenv file with remote settings")
	flags.StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&noProgress, "no-progress", false, "disable download progress bars")
}
