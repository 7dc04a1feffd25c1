// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/elastic/shiplog/internal/window"
)

func testWindow(sinceDay, untilDay int) window.TimeWindow {
	return window.TimeWindow{
		Since: time.Date(2025, 3, sinceDay, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 3, untilDay, 0, 0, 0, 0, time.UTC),
	}
}

func TestSliceValidate(t *testing.T) {
	cases := []struct {
		name  string
		slice CoverageSlice
		valid bool
	}{
		{"fetched equals total", CoverageSlice{Window: testWindow(1, 2), TotalCount: 10, Fetched: 10}, true},
		{"fetched below total incomplete", CoverageSlice{Window: testWindow(1, 2), TotalCount: 1500, Fetched: 1000, IncompleteResults: true}, true},
		{"fetched exceeds total", CoverageSlice{Window: testWindow(1, 2), TotalCount: 5, Fetched: 6}, false},
		{"incomplete but fully fetched", CoverageSlice{Window: testWindow(1, 2), TotalCount: 10, Fetched: 10, IncompleteResults: true}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.slice.Validate()
			if c.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestComputeCompleteness(t *testing.T) {
	manifest := CoverageManifest{
		Slices: []CoverageSlice{
			{Window: testWindow(1, 8), TotalCount: 3, Fetched: 3},
			{Window: testWindow(8, 15), TotalCount: 7, Fetched: 7},
		},
	}
	manifest.ComputeCompleteness()
	assert.Equal(t, CompletenessComplete, manifest.Completeness)

	manifest.Slices = append(manifest.Slices, CoverageSlice{
		Window: testWindow(15, 16), TotalCount: 1500, Fetched: 1000, IncompleteResults: true,
	})
	manifest.ComputeCompleteness()
	assert.Equal(t, CompletenessPartial, manifest.Completeness)

	empty := CoverageManifest{}
	empty.ComputeCompleteness()
	assert.Equal(t, CompletenessUnknown, empty.Completeness)
}

func TestSortSlices(t *testing.T) {
	manifest := CoverageManifest{
		Slices: []CoverageSlice{
			{Window: testWindow(15, 22)},
			{Window: testWindow(1, 8)},
			{Window: testWindow(8, 15)},
		},
	}
	manifest.SortSlices()

	assert.Equal(t, 1, manifest.Slices[0].Window.Since.Day())
	assert.Equal(t, 8, manifest.Slices[1].Window.Since.Day())
	assert.Equal(t, 15, manifest.Slices[2].Window.Since.Day())
}
