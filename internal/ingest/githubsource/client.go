// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package githubsource

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/go-github/v32/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/elastic/shiplog/internal/retry"
)

const envAuth = "GITHUB_TOKEN"

// AuthToken method finds the GitHub authorization token, if any. A missing
// token is not an error here: public repositories are readable anonymously
// and the server rejects the rest with a clear authentication failure.
func AuthToken() string {
	return strings.TrimSpace(os.Getenv(envAuth))
}

// newClient function creates a GitHub API client with retrying transport.
// An empty token yields an unauthenticated client; an empty apiBase keeps
// the public endpoint.
func newClient(token, apiBase string) (*github.Client, error) {
	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		))
	} else {
		httpClient = new(http.Client)
	}
	httpClient = retry.WrapHTTPClient(httpClient, retry.HTTPOptions{RetryMax: 4})

	client := github.NewClient(httpClient)
	if apiBase != "" {
		base, err := url.Parse(apiBase)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid API base URL %q", apiBase)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		client.BaseURL = base
	}
	return client, nil
}

// isAuthError function reports whether the API rejected our credentials.
// These are fatal: retrying can't help and silence would hide missing scope.
func isAuthError(err error) bool {
	var errorResponse *github.ErrorResponse
	if !errors.As(err, &errorResponse) {
		return false
	}
	code := errorResponse.Response.StatusCode
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
