package cli

import (
	"github.com/spf13/cobra"

	"github.com/rtm0/era5cds/internal/era5"
)

func newInspectCommand(a *app) *cobra.Command {
	var variables []string
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Log a summary of an ERA5 NetCDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inspect(args[0], variables)
		},
	}
	cmd.Flags().StringSliceVar(&variables, "variable", nil, "variables to summarize (default: all gridded variables)")
	return cmd
}

func (a *app) inspect(path string, variables []string) error {
	s, err := era5.NewScanner(path, variables)
	if err != nil {
		return err
	}
	defer s.Close()
	a.logger.Info("ERA5 summary", append([]any{"file", path}, s.Summary()...)...)
	return nil
}
