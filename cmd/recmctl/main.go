// Command recmctl inspects and maintains a recording catalog, either
// directly on disk or through a running recm server.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/logging"
)

// Version can be set at build time via ldflags
var Version = "0.0.1"

// cli holds the flags and state shared by every command.
type cli struct {
	configDir string
	dir       string
	logLevel  string
	noColor   bool

	fs    afero.Fs
	log   zerolog.Logger
	slogs *logging.SlogManager
}

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		log.Error().Err(err).Msg("recmctl failed")
		os.Exit(1)
	}
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	c := &cli{fs: fs}
	root := &cobra.Command{
		Use:           "recmctl",
		Short:         "Manage RecM vehicle recordings",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.setupLogger(cmd.ErrOrStderr())
			c.setupSlog(cmd.ErrOrStderr(), nil)
			return c.loadConfig()
		},
	}
	root.PersistentFlags().StringVarP(&c.configDir, "config", "c", ".", "directory holding "+config.FileName)
	root.PersistentFlags().StringVarP(&c.dir, "dir", "d", "", "recordings directory (overrides recordings.dir)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		c.listCmd(),
		c.inspectCmd(),
		c.deleteCmd(),
		c.compactCmd(),
		c.vanillaCmd(),
		c.importCmd(),
		c.simulateCmd(),
		c.remoteCmd(),
	)

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n%s", err, cmd.UsageString())
	})
	return root
}

func (c *cli) setupLogger(w io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.logLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	c.log = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
		NoColor:    c.noColor,
	}).Level(level).With().Timestamp().Logger()
}

// setupSlog configures the logger handed to library components. Their
// records only show at debug level so they do not interleave with command
// output.
func (c *cli) setupSlog(w io.Writer, attrs logging.ContextProvider) {
	level := "warn"
	if strings.EqualFold(c.logLevel, "debug") {
		level = "debug"
	}
	if c.slogs == nil {
		c.slogs = logging.NewSlogManager()
	}
	c.slogs.Setup(logging.Options{Level: level, Console: w, ServiceName: "recmctl", Context: attrs})
}

func (c *cli) slog() *slog.Logger {
	if c.slogs == nil {
		return slog.Default()
	}
	return c.slogs.Logger()
}

func (c *cli) loadConfig() error {
	err := config.Load(c.configDir)
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		c.log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Loaded config")
	case errors.As(err, &notFound):
		c.log.Debug().Str("dir", c.configDir).Msg("No config file, using defaults")
	default:
		return err
	}
	return nil
}

// openCatalog opens the configured recordings directory.
func (c *cli) openCatalog() (*catalog.Catalog, error) {
	rc := config.GetRecordingsConfig()
	if c.dir != "" {
		rc.Dir = c.dir
	}
	return catalog.New(c.fs, catalog.Config{Dir: rc.Dir, VanillaManifest: rc.VanillaManifest}, c.slog().With("component", "catalog"))
}
