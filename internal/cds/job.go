package cds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rtm0/era5cds/internal/era5"
)

// Status is the processing state of a job.
type Status string

// Job states. Accepted and running jobs are still in progress, the rest are
// terminal.
const (
	StatusAccepted   Status = "accepted"
	StatusRunning    Status = "running"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
	StatusDismissed  Status = "dismissed"
)

// Job is the server-side processing of one retrieve request.
type Job struct {
	ID        string `json:"jobID"`
	ProcessID string `json:"processID"`
	Status    Status `json:"status"`
	Created   string `json:"created,omitempty"`
	Updated   string `json:"updated,omitempty"`
}

// Asset is the prepared result of a successful job.
type Asset struct {
	Href     string `json:"href"`
	Type     string `json:"type"`
	Size     int64  `json:"file:size"`
	Checksum string `json:"file:checksum"`
}

type results struct {
	Asset struct {
		Value Asset `json:"value"`
	} `json:"asset"`
}

type executeRequest struct {
	Inputs era5.Request `json:"inputs"`
}

// Submit queues a retrieve request for the collection.
func (c *Client) Submit(ctx context.Context, collection string, req era5.Request) (Job, error) {
	target := c.endpoint("retrieve", "v1", "processes", collection, "execution")
	hr, err := c.newRequest(ctx, http.MethodPost, target, executeRequest{Inputs: req})
	if err != nil {
		return Job{}, err
	}
	var job Job
	if err := c.doJSON(hr, "", &job); err != nil {
		return Job{}, fmt.Errorf("cannot submit request to %q: %w", collection, err)
	}
	if job.ID == "" {
		return Job{}, &APIError{Title: "submission returned no job ID"}
	}
	c.logger.Info("Request submitted", "collection", collection, "jobID", job.ID, "status", job.Status)
	return job, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (Job, error) {
	hr, err := c.newRequest(ctx, http.MethodGet, c.endpoint("retrieve", "v1", "jobs", jobID), nil)
	if err != nil {
		return Job{}, err
	}
	var job Job
	if err := c.doJSON(hr, jobID, &job); err != nil {
		return Job{}, fmt.Errorf("cannot get status of job %s: %w", jobID, err)
	}
	return job, nil
}

// Wait polls the job until it reaches a terminal state. A job that did not
// succeed is reported as an *APIError.
func (c *Client) Wait(ctx context.Context, job Job) (Job, error) {
	start := time.Now()
	interval := c.pollInterval
	last := job.Status
	for {
		switch job.Status {
		case StatusSuccessful:
			c.logger.Info("Job completed", "jobID", job.ID, "in", time.Since(start).Round(time.Second))
			return job, nil
		case StatusFailed, StatusRejected, StatusDismissed:
			return job, c.jobFailure(ctx, job)
		case StatusAccepted, StatusRunning:
		default:
			return job, &APIError{JobID: job.ID, Title: fmt.Sprintf("unexpected job status %q", job.Status)}
		}

		if c.maxWait > 0 && time.Since(start)+interval > c.maxWait {
			return job, fmt.Errorf("%w: job %s still %s after %s", ErrWaitExceeded, job.ID, job.Status, time.Since(start).Round(time.Second))
		}
		if err := c.sleep(ctx, interval); err != nil {
			return job, err
		}
		interval = time.Duration(float64(interval) * 1.5)
		if interval > c.maxPollInterval {
			interval = c.maxPollInterval
		}

		var err error
		if job, err = c.Status(ctx, job.ID); err != nil {
			return job, err
		}
		if job.Status != last {
			c.logger.Info("Job status changed", "jobID", job.ID, "status", job.Status)
			last = job.Status
		}
	}
}

// jobFailure fetches the reason a job did not succeed. The results endpoint
// of a failed job answers with a problem document.
func (c *Client) jobFailure(ctx context.Context, job Job) error {
	failure := &APIError{JobID: job.ID, Title: fmt.Sprintf("job %s", job.Status)}
	hr, err := c.newRequest(ctx, http.MethodGet, c.endpoint("retrieve", "v1", "jobs", job.ID, "results"), nil)
	if err != nil {
		return failure
	}
	res, err := c.httpCli.Do(hr)
	if err != nil {
		c.logger.Warn("Could not fetch job failure details", "jobID", job.ID, "err", err)
		return failure
	}
	defer res.Body.Close()
	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return failure
	}
	e := newAPIError(res, job.ID)
	if e.Title == "" {
		e.Title = failure.Title
	}
	return e
}

// Results returns the asset prepared by a successful job.
func (c *Client) Results(ctx context.Context, jobID string) (Asset, error) {
	hr, err := c.newRequest(ctx, http.MethodGet, c.endpoint("retrieve", "v1", "jobs", jobID, "results"), nil)
	if err != nil {
		return Asset{}, err
	}
	var r results
	if err := c.doJSON(hr, jobID, &r); err != nil {
		return Asset{}, fmt.Errorf("cannot get results of job %s: %w", jobID, err)
	}
	if r.Asset.Value.Href == "" {
		return Asset{}, &APIError{JobID: jobID, Title: "results carry no asset location"}
	}
	return r.Asset.Value, nil
}

// Download opens the asset for reading. When the asset size is known the
// returned stream fails with ErrShortTransfer on a length mismatch.
func (c *Client) Download(ctx context.Context, asset Asset) (io.ReadCloser, error) {
	ref, err := url.Parse(asset.Href)
	if err != nil {
		return nil, fmt.Errorf("invalid asset location %q: %w", asset.Href, err)
	}
	target := c.baseURL.ResolveReference(ref)
	hr, err := c.newRequest(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	hr.Header.Del("Accept")
	res, err := c.httpCli.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("cannot download %s: %w", target.Redacted(), err)
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		return nil, newAPIError(res, "")
	}
	c.logger.Info("Downloading asset", "url", target.Redacted(), "size", asset.Size, "type", asset.Type)
	if asset.Size <= 0 {
		return res.Body, nil
	}
	return &sizeCheckReader{rc: res.Body, want: asset.Size}, nil
}

type sizeCheckReader struct {
	rc   io.ReadCloser
	want int64
	got  int64
}

func (r *sizeCheckReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.got += int64(n)
	if err == io.EOF && r.got != r.want {
		return n, fmt.Errorf("%w: got %d bytes, want %d", ErrShortTransfer, r.got, r.want)
	}
	return n, err
}

func (r *sizeCheckReader) Close() error {
	return r.rc.Close()
}
