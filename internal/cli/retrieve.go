package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rtm0/era5cds/internal/cds"
	"github.com/rtm0/era5cds/internal/config"
	"github.com/rtm0/era5cds/internal/era5"
	"github.com/rtm0/era5cds/internal/fetch"
)

type retrieveOptions struct {
	collection     string
	requestFile    string
	variables      []string
	productType    string
	from, to       string
	timesStep      int
	area           []float64
	grid           []float64
	format         string
	downloadFormat string
	output         string
	dryRun         bool
	inspect        bool
}

func newRetrieveCommand(a *app) *cobra.Command {
	o := &retrieveOptions{}
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve a dataset and save it to a local file",
		Long: `Retrieve submits one request to the Climate Data Store, waits for the
service to prepare the dataset and saves it to --output.

The request starts from the built-in default (ten surface energy-budget
variables, hourly, March to September 2022, over the Malacca Strait), is
overridden by the keys of --request and then by the flags given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, collection, err := o.buildRequest(cmd.Flags())
			if err != nil {
				return err
			}
			if o.dryRun {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Collection string       `json:"collection"`
					Request    era5.Request `json:"request"`
				}{collection, req})
			}
			return a.retrieve(cmd, collection, req, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.collection, "collection", era5.DefaultCollection, "CDS collection to retrieve from")
	f.StringVar(&o.requestFile, "request", "", "request document (YAML, JSON or TOML)")
	f.StringSliceVar(&o.variables, "variable", nil, "variable to retrieve (repeatable)")
	f.StringVar(&o.productType, "product-type", "", "product type, e.g. reanalysis")
	f.StringVar(&o.from, "from", "", "first day of the period, any common date layout")
	f.StringVar(&o.to, "to", "", "last day of the period, any common date layout")
	f.IntVar(&o.timesStep, "times-step", 1, "hours between requested times of day")
	f.Float64SliceVar(&o.area, "area", nil, "bounding box as north,west,south,east")
	f.Float64SliceVar(&o.grid, "grid", nil, "grid resolution as lat_step,lon_step in degrees")
	f.StringVar(&o.format, "format", "", "output format, e.g. netcdf or grib")
	f.StringVar(&o.downloadFormat, "download-format", "", "zip or unarchived")
	f.StringVarP(&o.output, "output", "o", "era5_data.nc", "destination file")
	f.Duration("poll-interval", 0, "first pause between job status checks (default 1s)")
	f.Duration("max-wait", 0, "give up when the job is not done after this long, 0 waits forever (default 12h)")
	f.BoolVar(&o.dryRun, "dry-run", false, "print the request and exit without contacting the service")
	f.BoolVar(&o.inspect, "inspect", false, "log a summary of the downloaded file")
	cobra.CheckErr(a.v.BindPFlag(config.KeyPollInterval, f.Lookup("poll-interval")))
	cobra.CheckErr(a.v.BindPFlag(config.KeyMaxWait, f.Lookup("max-wait")))
	return cmd
}

// buildRequest layers the request document and the changed flags over the
// default request.
func (o *retrieveOptions) buildRequest(flags *pflag.FlagSet) (era5.Request, string, error) {
	req, collection := era5.DefaultRequest(), era5.DefaultCollection
	if o.requestFile != "" {
		var err error
		if req, collection, err = config.LoadRequest(o.requestFile, req, collection); err != nil {
			return req, collection, err
		}
	}
	if flags.Changed("collection") {
		collection = o.collection
	}
	if flags.Changed("variable") {
		req.Variables = o.variables
	}
	if flags.Changed("product-type") {
		req.ProductType = o.productType
	}
	if flags.Changed("from") || flags.Changed("to") {
		if o.from == "" || o.to == "" {
			return req, collection, fmt.Errorf("--from and --to must be given together")
		}
		from, err := dateparse.ParseIn(o.from, time.UTC)
		if err != nil {
			return req, collection, fmt.Errorf("invalid --from: %w", err)
		}
		to, err := dateparse.ParseIn(o.to, time.UTC)
		if err != nil {
			return req, collection, fmt.Errorf("invalid --to: %w", err)
		}
		if from.After(to) {
			return req, collection, fmt.Errorf("--from %s is after --to %s", o.from, o.to)
		}
		req.Years, req.Months, req.Days = era5.CalendarSpan(from, to)
	}
	if flags.Changed("times-step") {
		req.Times = era5.HourlyTimes(o.timesStep)
	}
	if flags.Changed("area") {
		if len(o.area) != len(req.Area) {
			return req, collection, fmt.Errorf("--area needs %d numbers (north,west,south,east), got %d", len(req.Area), len(o.area))
		}
		copy(req.Area[:], o.area)
	}
	if flags.Changed("grid") {
		if len(o.grid) != len(req.Grid) {
			return req, collection, fmt.Errorf("--grid needs %d numbers (lat_step,lon_step), got %d", len(req.Grid), len(o.grid))
		}
		copy(req.Grid[:], o.grid)
	}
	if flags.Changed("format") {
		req.Format = o.format
	}
	if flags.Changed("download-format") {
		req.DownloadFormat = o.downloadFormat
	}
	if collection == "" {
		return req, collection, fmt.Errorf("no collection given")
	}
	return req, collection, req.Validate()
}

func (a *app) retrieve(cmd *cobra.Command, collection string, req era5.Request, o *retrieveOptions) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	client, err := cds.NewClient(a.logger, cfg.ClientConfig())
	if err != nil {
		return err
	}
	s := fetch.NewSubmitter(a.logger, client)
	if err := s.Submit(cmd.Context(), collection, req, o.output); err != nil {
		return err
	}
	if o.inspect {
		return a.inspect(o.output, nil)
	}
	return nil
}
