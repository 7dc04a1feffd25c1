// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package retry

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultRetryWaitMin = 1 * time.Second
	defaultRetryWaitMax = 30 * time.Second

	// maxRetryAfter bounds how long a Retry-After header may delay a retry.
	// Longer values are clamped to this bound; the retry count still limits
	// how often the request is repeated.
	maxRetryAfter = 2 * time.Minute
)

type HTTPOptions struct {
	RetryMax int

	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// WrapHTTPClient decorates the client with retries for transient transport
// failures and rate limiting. Rate-limited responses honor the server's
// Retry-After header up to a bounded budget.
func WrapHTTPClient(client *http.Client, opts HTTPOptions) *http.Client {
	if opts.RetryMax <= 0 {
		return client
	}
	retryWaitMin := opts.retryWaitMin
	if retryWaitMin == 0 {
		retryWaitMin = defaultRetryWaitMin
	}
	retryWaitMax := opts.retryWaitMax
	if retryWaitMax == 0 {
		retryWaitMax = defaultRetryWaitMax
	}

	if client == nil {
		client = &http.Client{}
	}
	if client.CheckRedirect == nil {
		client.CheckRedirect = checkRedirect
	}
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = client
	retryClient.Logger = nil
	retryClient.CheckRetry = checkRetry
	retryClient.Backoff = backoff
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = retryWaitMin
	retryClient.RetryWaitMax = retryWaitMax
	return retryClient.StandardClient()
}

var (
	maxRedirects   = 10
	redirectsError = fmt.Errorf("stopped after %d redirects", maxRedirects)
)

// checkRedirect reimplements default http redirect policy but returning a typed error.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return redirectsError
	}
	return nil
}

// checkRetry reimplements retryablehttp.DefaultRetryPolicy with better error checking.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		if errors.Is(err, redirectsError) {
			// Too many redirects, let's stop here.
			return false, nil
		}

		var urlError *url.Error
		if errors.As(err, &urlError) {
			// URL is invalid, not recoverable.
			return false, nil
		}

		var certError *x509.CertificateInvalidError
		if errors.As(err, &certError) {
			// Invalid certificate, not recoverable.
			return false, nil
		}

		var caError *x509.UnknownAuthorityError
		if errors.As(err, &caError) {
			// Unknown CA, not recoverable.
			return false, nil
		}

		// Consider other errors as recoverable.
		return true, nil
	}

	// Rate limiting, either explicit (429) or GitHub's secondary limit
	// (403 with a Retry-After header). Recoverable within the retry budget.
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("Retry-After") != "" {
		return true, nil
	}

	// Retry on 500-range responses to allow the server time to recover.
	if resp.StatusCode == 0 || (resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented) {
		return true, err
	}

	return false, nil
}

// backoff sleeps per Retry-After when the server provides one, falling back
// to the default exponential backoff with jitter otherwise.
func backoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
			if retryAfter > maxRetryAfter {
				return maxRetryAfter
			}
			return retryAfter
		}
	}
	wait := retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	if wait > 0 {
		wait += time.Duration(rand.Int63n(int64(wait)/2 + 1))
	}
	if wait > max {
		wait = max
	}
	return wait
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return time.Until(at)
	}
	return 0
}
