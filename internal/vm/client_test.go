package vm

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/era5cds/internal/era5"
)

var testRecs = []era5.Record{
	{Timestamp: 1646092800000, Latitude: 5.75, Longitude: 100, Values: []float64{301.5, 299.25}},
	{Timestamp: 1646092800000, Latitude: 5.5, Longitude: 100.25, Values: []float64{302, math.NaN()}},
	{Timestamp: 1646092800000, Latitude: 5.5, Longitude: 100, Values: []float64{math.NaN(), math.NaN()}},
}

type capture struct {
	query url.Values
	body  string
}

func newServer(t *testing.T, status int, got *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		got.query = r.URL.Query()
		got.body = string(b)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, insertURL string) *Client {
	t.Helper()
	c, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), insertURL, 2, "era5", []string{"skt", "sst"})
	require.NoError(t, err)
	return c
}

func TestInsertInfluxDB(t *testing.T) {
	var got capture
	srv := newServer(t, http.StatusNoContent, &got)

	c := newTestClient(t, srv.URL+"/write")
	require.NoError(t, c.Insert(context.Background(), testRecs))

	assert.Equal(t, "ms", got.query.Get("precision"))
	assert.Equal(t, ""+
		"era5,la=5.75,lo=100.00 skt=301.5,sst=299.25 1646092800000\n"+
		"era5,la=5.50,lo=100.25 skt=302 1646092800000\n", got.body)
}

func TestInsertCSV(t *testing.T) {
	var got capture
	srv := newServer(t, http.StatusNoContent, &got)

	c := newTestClient(t, srv.URL+"/api/v1/import/csv")
	require.NoError(t, c.Insert(context.Background(), testRecs))

	assert.Equal(t, "1:time:unix_ms,2:label:la,3:label:lo,4:metric:era5_skt,5:metric:era5_sst", got.query.Get("format"))
	assert.Equal(t, ""+
		"1646092800000,5.75,100.00,301.5,299.25\n"+
		"1646092800000,5.50,100.25,302,\n"+
		"1646092800000,5.50,100.00,,\n", got.body)
}

func TestInsertUnexpectedStatus(t *testing.T) {
	var got capture
	srv := newServer(t, http.StatusBadRequest, &got)

	c := newTestClient(t, srv.URL+"/write")
	assert.ErrorContains(t, c.Insert(context.Background(), testRecs), "unexpected status 400")
}

func TestNewClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewClient(logger, "http://localhost:8428/write", 1, "era-5", []string{"t2m"})
	assert.ErrorContains(t, err, "metric prefix")

	_, err = NewClient(logger, "http://localhost:8428/api/v1/import", 1, "era5", []string{"t2m"})
	assert.ErrorContains(t, err, "not supported")

	_, err = NewClient(logger, "http://localhost:8428/write", 1, "era5", nil)
	assert.Error(t, err)
}
