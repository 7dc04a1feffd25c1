// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package schema

// CurrentAliasCacheVersion is the only alias cache version understood today.
const CurrentAliasCacheVersion = 1

// AliasCacheFile is the persisted form of the redaction alias cache. It maps
// plaintext values to their stable aliases, grouped by alias kind. The file
// stays on the machine: it is never listed in any bundle manifest.
type AliasCacheFile struct {
	Version int `json:"version"`

	// KeyDigest fingerprints the redaction key the aliases were derived
	// with. A cache built with another key is discarded, not reused.
	KeyDigest string `json:"key_digest,omitempty"`

	Map map[string]map[string]string `json:"map"`
}
