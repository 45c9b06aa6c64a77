// Package segment downloads individual media segments to disk with the
// retry/backoff/resume semantics spec.md §4.2 defines. It is grounded on
// the teacher's pkg/media/segment.go (DownloadSegment), generalized from a
// fixed 2-attempt/300ms retry into the spec's attempt budget and backoff
// curve, and from a bare os.Create into the deterministic,
// resume-aware SegmentPath naming from pkg/model.
package segment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"streamengine/pkg/constants"
	"streamengine/pkg/engineerr"
	"streamengine/pkg/httpClient"
	"streamengine/pkg/model"
)

// Fetcher downloads one segment at a time with the spec's retry policy.
// It is safe for concurrent use: each call opens its own *http.Request and
// writes to a distinct destination path.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewFetcher builds a Fetcher whose client caps redirects at
// constants.SegmentMaxRedirects, per spec.md §4.2.
func NewFetcher(userAgent string) *Fetcher {
	return &Fetcher{
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= constants.SegmentMaxRedirects {
					return fmt.Errorf("stopped after %d redirects", constants.SegmentMaxRedirects)
				}
				return nil
			},
		},
		UserAgent: userAgent,
	}
}

// Result reports what a successful Fetch wrote to disk.
type Result struct {
	Path  string
	Bytes int64
}

// Fetch downloads segmentURL to SegmentPath(outputDir, filenameStem, index),
// retrying up to constants.SegmentMaxAttempts times with the backoff curve
// min(1000*attempt, 5000)ms (spec.md §4.2). A context cancellation aborts
// immediately without consuming a retry.
//
// If the destination file already exists with nonzero size, Fetch returns
// immediately without making a request: resume-from-disk is solely a
// nonzero-size file-existence check (spec.md §4.3).
func (f *Fetcher) Fetch(ctx context.Context, segmentURL, outputDir, filenameStem string, index int) (Result, error) {
	dest := model.SegmentPath(outputDir, filenameStem, index)

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return Result{Path: dest, Bytes: info.Size()}, nil
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= constants.SegmentMaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*1000) * time.Millisecond
			if cap := time.Duration(constants.SegmentBackoffCapMillis) * time.Millisecond; backoff > cap {
				backoff = cap
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{}, engineerr.New(engineerr.KindCancelRequested, "", "cancelled during backoff", ctx.Err())
			}
		}

		if err := ctx.Err(); err != nil {
			return Result{}, engineerr.New(engineerr.KindCancelRequested, "", "cancelled before attempt", err)
		}

		attempts = attempt
		n, err := f.attempt(ctx, segmentURL, dest)
		if err == nil {
			return Result{Path: dest, Bytes: n}, nil
		}
		lastErr = err

		if httpErr, ok := err.(*httpClient.HTTPError); ok && !httpClient.IsRetriable(httpErr.StatusCode) {
			break
		}
	}

	return Result{}, engineerr.New(engineerr.KindSegmentTransport, "", fmt.Sprintf("giving up on %s after %d attempt(s)", segmentURL, attempts), lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, segmentURL, dest string) (int64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(constants.SegmentAttemptTimeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, segmentURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Referer", segmentURL)

	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, httpClient.NewHTTPError(resp.StatusCode, segmentURL)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", tmp, err)
	}

	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return 0, copyErr
	}
	if closeErr != nil {
		os.Remove(tmp)
		return 0, closeErr
	}
	if n == 0 {
		os.Remove(tmp)
		return 0, engineerr.New(engineerr.KindSegmentEmpty, "", fmt.Sprintf("zero-byte response for %s", segmentURL), nil)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("renaming %s to %s: %w", tmp, dest, err)
	}

	return n, nil
}
