// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package environment

const shiplogEnvPrefix = "SHIPLOG_"

// WithShiplogPrefix function prepends the tool prefix to a variable name.
func WithShiplogPrefix(variable string) string {
	return shiplogEnvPrefix + variable
}
