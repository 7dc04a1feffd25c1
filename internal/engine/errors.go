// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package engine

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a flow failure. Kinds are stable: they appear in the
// single-line error users see and scripts match on.
type Kind string

const (
	KindConfig    Kind = "config"
	KindIO        Kind = "io"
	KindTransport Kind = "transport"

	// KindRateLimit is recovered inside the transport with backoff; it only
	// surfaces here when the retry budget is exhausted, as transport.
	KindRateLimit Kind = "rate-limit"

	KindParse Kind = "parse"
	KindSchema    Kind = "schema"
	KindIntegrity Kind = "integrity"
	KindRedaction Kind = "redaction"
	KindCancelled Kind = "cancelled"
)

// FlowError is the single failure type flows return: which flow, what kind,
// and the underlying cause with its context intact.
type FlowError struct {
	Flow string
	Kind Kind
	Err  error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Flow, e.Kind, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// failure wraps err as a FlowError, upgrading the kind to cancelled when the
// cause is a context cancellation.
func failure(flow string, kind Kind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCancelled
	}
	return &FlowError{Flow: flow, Kind: kind, Err: err}
}

// IsCancelled function reports whether the flow failed due to cooperative
// cancellation, for exit-code mapping.
func IsCancelled(err error) bool {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Kind == KindCancelled
	}
	return errors.Is(err, context.Canceled)
}
