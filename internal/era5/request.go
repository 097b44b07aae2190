package era5

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultCollection is the CDS collection that holds hourly ERA5 data on
// single levels.
const DefaultCollection = "reanalysis-era5-single-levels"

// Request describes what to retrieve from a CDS collection. The field tags
// are the request keys understood by the service.
//
// A Request is treated as immutable once built: pass it by value and use
// Clone when the slices must not be shared.
type Request struct {
	ProductType string     `json:"product_type" validate:"required"`
	Variables   []string   `json:"variable" validate:"min=1,dive,required"`
	Years       []string   `json:"year" validate:"min=1,dive,required"`
	Months      []string   `json:"month" validate:"min=1,dive,required"`
	Days        []string   `json:"day" validate:"min=1,dive,required"`
	Times       []string   `json:"time" validate:"min=1,dive,required"`
	Area        [4]float64 `json:"area"` // north, west, south, east
	Grid        [2]float64 `json:"grid"` // latitude step, longitude step
	Format      string     `json:"format" validate:"required"`

	// DownloadFormat asks the service to archive the result (zip) or not
	// (unarchived). Omitted when empty.
	DownloadFormat string `json:"download_format,omitempty"`
}

var validate = validator.New()

// Validate checks that every label and sequence of the request is present.
// Values themselves are not checked: a day "31" in a 30-day month or an
// inverted bounding box are left for the service to judge.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	c := r
	c.Variables = cloneStrings(r.Variables)
	c.Years = cloneStrings(r.Years)
	c.Months = cloneStrings(r.Months)
	c.Days = cloneStrings(r.Days)
	c.Times = cloneStrings(r.Times)
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

// DefaultRequest returns the surface energy-budget request used when no
// request document or flags say otherwise: ten single-level variables,
// hourly, March to September 2022, over a quarter-degree cell in the
// Malacca Strait.
func DefaultRequest() Request {
	years, months, days := CalendarSpan(
		time.Date(2022, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2022, time.September, 30, 0, 0, 0, 0, time.UTC),
	)
	return Request{
		ProductType: "reanalysis",
		Variables: []string{
			"skin_temperature",
			"sea_surface_temperature",
			"2m_temperature",
			"significant_height_of_combined_wind_waves_and_swell",
			"surface_downwelling_longwave_radiation",
			"surface_downwelling_shortwave_radiation",
			"surface_net_downward_longwave_radiation",
			"surface_net_downward_shortwave_radiation",
			"surface_latent_heat_flux",
			"surface_sensible_heat_flux",
		},
		Years:  years,
		Months: months,
		Days:   days,
		Times:  HourlyTimes(1),
		Area:   [4]float64{5.75, 100, 5.5, 100.25},
		Grid:   [2]float64{0.25, 0.25},
		Format: "netcdf",
	}
}

// CalendarSpan returns the distinct years, months and days of month that
// fall within [from, to]. The service expands a request into the cartesian
// product of these lists, so a range crossing months asks for days 01..31
// of every month in it.
func CalendarSpan(from, to time.Time) (years, months, days []string) {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	ys := map[int]bool{}
	ms := map[int]bool{}
	ds := map[int]bool{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		ys[d.Year()] = true
		ms[int(d.Month())] = true
		ds[d.Day()] = true
	}
	return formatSet(ys, "%04d"), formatSet(ms, "%02d"), formatSet(ds, "%02d")
}

func formatSet(set map[int]bool, format string) []string {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprintf(format, k)
	}
	return out
}

// HourlyTimes returns the times of day from 00:00 in steps of the given
// number of hours. A step outside 1..24 is treated as 1.
func HourlyTimes(step int) []string {
	if step < 1 || step > 24 {
		step = 1
	}
	var times []string
	for h := 0; h < 24; h += step {
		times = append(times, fmt.Sprintf("%02d:00", h))
	}
	return times
}
