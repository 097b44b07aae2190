package era5

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRequest(t *testing.T) {
	r := DefaultRequest()

	require.NoError(t, r.Validate())
	assert.Equal(t, "reanalysis", r.ProductType)
	assert.Len(t, r.Variables, 10)
	assert.Equal(t, "skin_temperature", r.Variables[0])
	assert.Equal(t, "surface_sensible_heat_flux", r.Variables[9])
	assert.Equal(t, []string{"2022"}, r.Years)
	assert.Equal(t, []string{"03", "04", "05", "06", "07", "08", "09"}, r.Months)
	assert.Len(t, r.Days, 31)
	assert.Equal(t, "31", r.Days[30])
	assert.Len(t, r.Times, 24)
	assert.Equal(t, "23:00", r.Times[23])
	assert.Equal(t, [4]float64{5.75, 100, 5.5, 100.25}, r.Area)
	assert.Equal(t, [2]float64{0.25, 0.25}, r.Grid)
	assert.Equal(t, "netcdf", r.Format)
}

func TestRequestJSON(t *testing.T) {
	r := Request{
		ProductType: "reanalysis",
		Variables:   []string{"2m_temperature"},
		Years:       []string{"2022"},
		Months:      []string{"03"},
		Days:        []string{"01"},
		Times:       []string{"00:00"},
		Area:        [4]float64{5.75, 100, 5.5, 100.25},
		Grid:        [2]float64{0.25, 0.25},
		Format:      "netcdf",
	}

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"product_type": "reanalysis",
		"variable": ["2m_temperature"],
		"year": ["2022"],
		"month": ["03"],
		"day": ["01"],
		"time": ["00:00"],
		"area": [5.75, 100, 5.5, 100.25],
		"grid": [0.25, 0.25],
		"format": "netcdf"
	}`, string(b))
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr bool
	}{
		{name: "default", mutate: func(*Request) {}},
		{name: "no variables", mutate: func(r *Request) { r.Variables = nil }, wantErr: true},
		{name: "empty variable", mutate: func(r *Request) { r.Variables = []string{""} }, wantErr: true},
		{name: "no years", mutate: func(r *Request) { r.Years = []string{} }, wantErr: true},
		{name: "no times", mutate: func(r *Request) { r.Times = nil }, wantErr: true},
		{name: "no format", mutate: func(r *Request) { r.Format = "" }, wantErr: true},
		{name: "no product type", mutate: func(r *Request) { r.ProductType = "" }, wantErr: true},
		{name: "impossible day is passed through", mutate: func(r *Request) {
			r.Months = []string{"02"}
			r.Days = []string{"31"}
		}},
		{name: "inverted area is passed through", mutate: func(r *Request) {
			r.Area = [4]float64{-10, 50, 10, -50}
		}},
		{name: "duplicate variables are passed through", mutate: func(r *Request) {
			r.Variables = []string{"2m_temperature", "2m_temperature"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRequest()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestClone(t *testing.T) {
	r := DefaultRequest()
	c := r.Clone()
	require.Equal(t, r, c)

	c.Variables[0] = "changed"
	c.Days[0] = "99"
	c.Area[0] = 90

	assert.Equal(t, "skin_temperature", r.Variables[0])
	assert.Equal(t, "01", r.Days[0])
	assert.Equal(t, 5.75, r.Area[0])
}

func TestCalendarSpan(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	t.Run("single day", func(t *testing.T) {
		years, months, days := CalendarSpan(day(2022, time.March, 1), day(2022, time.March, 1))
		assert.Equal(t, []string{"2022"}, years)
		assert.Equal(t, []string{"03"}, months)
		assert.Equal(t, []string{"01"}, days)
	})

	t.Run("within a month", func(t *testing.T) {
		_, months, days := CalendarSpan(day(2022, time.February, 10), day(2022, time.February, 12))
		assert.Equal(t, []string{"02"}, months)
		assert.Equal(t, []string{"10", "11", "12"}, days)
	})

	t.Run("across a year boundary", func(t *testing.T) {
		years, months, days := CalendarSpan(day(2021, time.December, 30), day(2022, time.January, 2))
		assert.Equal(t, []string{"2021", "2022"}, years)
		assert.Equal(t, []string{"01", "12"}, months)
		assert.Equal(t, []string{"01", "02", "30", "31"}, days)
	})

	t.Run("time of day is ignored", func(t *testing.T) {
		from := time.Date(2022, time.March, 1, 23, 0, 0, 0, time.UTC)
		to := time.Date(2022, time.March, 2, 1, 0, 0, 0, time.UTC)
		_, _, days := CalendarSpan(from, to)
		assert.Equal(t, []string{"01", "02"}, days)
	})

	t.Run("inverted range is empty", func(t *testing.T) {
		years, months, days := CalendarSpan(day(2022, time.March, 2), day(2022, time.March, 1))
		assert.Empty(t, years)
		assert.Empty(t, months)
		assert.Empty(t, days)
	})
}

func TestHourlyTimes(t *testing.T) {
	assert.Equal(t, []string{"00:00", "06:00", "12:00", "18:00"}, HourlyTimes(6))
	assert.Equal(t, []string{"00:00"}, HourlyTimes(24))
	assert.Len(t, HourlyTimes(0), 24)
	assert.Len(t, HourlyTimes(1), 24)
}
