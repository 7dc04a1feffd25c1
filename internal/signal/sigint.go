// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package signal

import (
	"context"
	"os"
	"os/signal"

	"github.com/elastic/shiplog/internal/logger"
)

// Enable returns a context configured to be cancelled if an interruption
// signal is received. Flows pass this context down so a cancelled ingest can
// stop issuing requests while keeping what it already fetched.
// Returned context can be cancelled explicitly with the returned function.
func Enable(ctx context.Context) (notifyCtx context.Context, stop func()) {
	notifyCtx, stopNotify := signal.NotifyContext(ctx, os.Interrupt)
	stopLogger := context.AfterFunc(notifyCtx, func() {
		logger.Info("Signal caught!")
	})

	return notifyCtx, func() {
		stopLogger()
		stopNotify()
	}
}
