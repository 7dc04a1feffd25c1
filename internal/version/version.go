// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package version

// Tag and CommitHash are set by the build system via -ldflags.
var (
	Tag        string
	CommitHash = "undefined"
	BuildTime  = "unknown"
)
