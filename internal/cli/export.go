package cli

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtm0/era5cds/internal/era5"
	"github.com/rtm0/era5cds/internal/vm"
)

type exportOptions struct {
	file          string
	variables     []string
	concurrency   int
	recsPerInsert int
	vmInsertURL   string
	metricPrefix  string
}

func newExportCommand(a *app) *cobra.Command {
	o := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Insert the records of an ERA5 NetCDF file into Victoria Metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.export(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.file, "file", "", "path to an ERA5 file in NetCDF format")
	f.StringSliceVar(&o.variables, "variable", nil, "variables to export (default: all gridded variables)")
	f.IntVar(&o.concurrency, "concurrency", runtime.NumCPU(), "number of concurrent requests to Victoria Metrics")
	f.IntVar(&o.recsPerInsert, "recsPerInsert", 500, "number of records sent to VM in one batch")
	f.StringVar(&o.vmInsertURL, "vmInsertUrl", "http://localhost:8428/write", "Victoria Metrics insert API URL. Default: InfluxDB line protocol v2")
	f.StringVar(&o.metricPrefix, "metricPrefix", "era5", "prefix of the exported metric names")
	cobra.CheckErr(cmd.MarkFlagRequired("file"))
	return cmd
}

func (a *app) export(cmd *cobra.Command, o *exportOptions) error {
	if o.concurrency < 1 || o.recsPerInsert < 1 {
		return fmt.Errorf("--concurrency and --recsPerInsert must be positive")
	}
	ctx := cmd.Context()

	s, err := era5.NewScanner(o.file, o.variables)
	if err != nil {
		return fmt.Errorf("could not create an ERA5 scanner: %w", err)
	}
	defer s.Close()
	a.logger.Info("ERA5 summary", s.Summary()...)

	vmCli, err := vm.NewClient(a.logger, o.vmInsertURL, o.concurrency, o.metricPrefix, s.Variables())
	if err != nil {
		return fmt.Errorf("could not create new VM client: %w", err)
	}

	var failed atomic.Int64
	recsCh := make(chan []era5.Record)
	progressCh := make(chan int)
	var wg sync.WaitGroup
	for range o.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for recs := range recsCh {
				n := len(recs)
				for i := 0; i < n; i += o.recsPerInsert {
					limit := min(i+o.recsPerInsert, n)
					if err := vmCli.Insert(ctx, recs[i:limit]); err != nil {
						a.logger.Error("Insert failed", "err", err)
						failed.Add(int64(limit - i))
					}
				}
				progressCh <- n * len(s.Variables())
			}
		}()
	}
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		var inserted, total float64
		total = float64(s.TotalRecCount())
		start := time.Now()
		for n := range progressCh {
			inserted += float64(n)
			percent := fmt.Sprintf("%.2f%%", 100*inserted/total)
			duration := time.Since(start).Round(1 * time.Second)
			a.logger.Info("progress", "inserted", percent, "in", duration)
		}
	}()

scan:
	for s.Scan() {
		select {
		case recsCh <- s.Records():
		case <-ctx.Done():
			break scan
		}
	}
	close(recsCh)
	wg.Wait()
	close(progressCh)
	<-progressDone

	if err := s.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", o.file, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d records were not inserted", n)
	}
	return nil
}
