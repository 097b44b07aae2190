package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rtm0/era5cds/internal/era5"
)

// Client is a Victoria Metrics client capable of inserting ERA5 metrics via
// various protocols.
type Client struct {
	logger       *slog.Logger
	httpCli      *http.Client
	insertURL    string
	metricPrefix string
	variables    []string
	recToText    recToTextFunc
}

const metricPrefixRE = "^[a-zA-Z0-9]+$"

// NewClient creates a new VM client. Variables names the values of every
// inserted record, in order.
func NewClient(logger *slog.Logger, insertURL string, maxConns int, metricPrefix string, variables []string) (*Client, error) {
	url, err := url.Parse(insertURL)
	if err != nil {
		return nil, err
	}

	matches, err := regexp.Match(metricPrefixRE, []byte(metricPrefix))
	if err != nil {
		return nil, err
	}
	if !matches {
		return nil, fmt.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}
	if len(variables) == 0 {
		return nil, fmt.Errorf("no variables to insert")
	}

	apiParams := apiParamsFuncs[url.Path]
	if apiParams == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}
	q := url.Query()
	for name, value := range apiParams(metricPrefix, variables) {
		q.Set(name, value)
	}
	url.RawQuery = q.Encode()

	recToText := recToTextFuncs[url.Path]
	if recToText == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}

	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        maxConns,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
			},
		},
		insertURL:    url.String(),
		metricPrefix: metricPrefix,
		variables:    variables,
		recToText:    recToText,
	}, nil
}

// Insert inserts ERA5 records into Victoria Metrics.
func (c *Client) Insert(ctx context.Context, recs []era5.Record) error {
	body := recsToText(recs, c.metricPrefix, c.variables, c.recToText)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.insertURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	res, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("could not post data: %w", err)
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Error("Failed to drain response body", "err", err)
	}
	if res.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return nil
}

type apiParamsFunc func(string, []string) map[string]string

var apiParamsFuncs = map[string]apiParamsFunc{
	"/influx/write":        influxDBAPIParams,
	"/influx/api/v2/write": influxDBAPIParams,
	"/write":               influxDBAPIParams,
	"/api/v2/write":        influxDBAPIParams,
	"/api/v1/import/csv":   csvAPIParams,
}

func influxDBAPIParams(string, []string) map[string]string {
	return map[string]string{"precision": "ms"}
}

func csvAPIParams(metricPrefix string, variables []string) map[string]string {
	var sb strings.Builder
	sb.WriteString("1:time:unix_ms,2:label:la,3:label:lo")
	for i, name := range variables {
		fmt.Fprintf(&sb, ",%d:metric:%s_%s", i+4, metricPrefix, name)
	}
	return map[string]string{"format": sb.String()}
}

type recToTextFunc func(*strings.Builder, *era5.Record, string, []string)

// recsToText converts multiple ERA5 records to text.
func recsToText(recs []era5.Record, metricPrefix string, variables []string, recToText recToTextFunc) io.Reader {
	var sb strings.Builder
	for _, r := range recs {
		recToText(&sb, &r, metricPrefix, variables)
	}
	return strings.NewReader(sb.String())
}

var recToTextFuncs = map[string]recToTextFunc{
	"/influx/write":        recToInfluxDB,
	"/influx/api/v2/write": recToInfluxDB,
	"/write":               recToInfluxDB,
	"/api/v2/write":        recToInfluxDB,
	"/api/v1/import/csv":   recToCSV,
}

// recToInfluxDB converts an ERA5 record into an InfluxDB line protocol v2
// line and appends it to the string builder. Missing values are left out and
// a record without any value produces no line.
func recToInfluxDB(sb *strings.Builder, r *era5.Record, metricPrefix string, variables []string) {
	var fields strings.Builder
	for i, v := range r.Values {
		if math.IsNaN(v) || i >= len(variables) {
			continue
		}
		if fields.Len() > 0 {
			fields.WriteByte(',')
		}
		fields.WriteString(variables[i])
		fields.WriteByte('=')
		fields.WriteString(formatValue(v))
	}
	if fields.Len() == 0 {
		return
	}
	fmt.Fprintf(sb, "%s,la=%.2f,lo=%.2f %s %d\n", metricPrefix, r.Latitude, r.Longitude, fields.String(), r.Timestamp)
}

// recToCSV converts an ERA5 record into a CSV record and appends it to the
// string builder. Missing values are written as empty fields.
func recToCSV(sb *strings.Builder, r *era5.Record, _ string, _ []string) {
	fmt.Fprintf(sb, "%d,%.2f,%.2f", r.Timestamp, r.Latitude, r.Longitude)
	for _, v := range r.Values {
		sb.WriteByte(',')
		if !math.IsNaN(v) {
			sb.WriteString(formatValue(v))
		}
	}
	sb.WriteByte('\n')
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
