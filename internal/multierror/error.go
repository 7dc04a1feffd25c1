// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package multierror

import (
	"fmt"
	"sort"
	"strings"
)

// Error is a multi-error representation.
type Error []error

// Unique selects only unique errors, sorted by message.
func (me Error) Unique() Error {
	errs := make(Error, len(me))
	copy(errs, me)

	sort.Slice(errs, func(i, j int) bool {
		return errs[i].Error() < errs[j].Error()
	})

	var unique Error
	encountered := map[string]struct{}{}
	for _, err := range errs {
		if _, ok := encountered[err.Error()]; !ok {
			encountered[err.Error()] = struct{}{}
			unique = append(unique, err)
		}
	}
	return unique
}

// Strings returns the error messages, for recording as coverage warnings.
func (me Error) Strings() []string {
	strs := make([]string, len(me))
	for i, err := range me {
		strs[i] = err.Error()
	}
	return strs
}

// Error combines a detailed report consisting of attached errors separated with new lines.
func (me Error) Error() string {
	if me == nil {
		return ""
	}

	strs := make([]string, len(me))
	for i, err := range me {
		strs[i] = fmt.Sprintf("[%d] %v", i, err)
	}
	return strings.Join(strs, "\n")
}
