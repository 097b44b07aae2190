// Package cli wires the era5 commands: retrieve a dataset from the Climate
// Data Store, inspect a downloaded file and export it to Victoria Metrics.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rtm0/era5cds/internal/config"
	"github.com/rtm0/era5cds/internal/logging"
)

// app carries what the commands share.
type app struct {
	v         *viper.Viper
	logger    *slog.Logger
	logCloser io.Closer
}

// NewRootCommand builds the era5 command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "era5",
		Short:         "era5 retrieves ERA5 datasets from the Climate Data Store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogging(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("rc", "", "path to the CDS API rc file (default ~/.cdsapirc, env CDSAPI_RC)")
	pf.String("url", "", "CDS API URL (env CDSAPI_URL)")
	pf.String("key", "", "CDS API personal access token (env CDSAPI_KEY)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-file", "", "also write logs to this file, rotated by size")
	for key, flag := range map[string]string{
		config.KeyRC:       "rc",
		config.KeyURL:      "url",
		config.KeyKey:      "key",
		config.KeyLogLevel: "log-level",
		config.KeyLogFile:  "log-file",
	} {
		cobra.CheckErr(a.v.BindPFlag(key, pf.Lookup(flag)))
	}

	root.AddCommand(
		newRetrieveCommand(a),
		newInspectCommand(a),
		newExportCommand(a),
	)
	return root
}

func (a *app) setupLogging(w io.Writer) error {
	if err := config.Bind(a.v); err != nil {
		return err
	}
	logger, closer, err := logging.New(w, a.v.GetString(config.KeyLogLevel), a.v.GetString(config.KeyLogFile))
	if err != nil {
		return err
	}
	a.logger = logger
	a.logCloser = closer
	return nil
}
