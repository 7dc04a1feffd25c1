// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package render writes the Markdown packet for a run. Rendering is
// deterministic: the same inputs and clock produce byte-identical output.
package render

import (
	"embed"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/aymerick/raymond"

	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/window"
	"github.com/elastic/shiplog/internal/workstream"
)

// PacketFileName is the rendered packet inside a run (or profile) directory.
const PacketFileName = "packet.md"

//go:embed _static
var static embed.FS

const packetTemplatePath = "_static/packet.md.hbs"

// Input is everything the packet template may reference. Events and
// workstreams must already be projected through the target profile: the
// renderer trusts its input and guards only against template drift.
type Input struct {
	RunID        string
	User         string
	Window       window.TimeWindow
	Mode         string
	Completeness schema.Completeness
	GeneratedAt  time.Time
	Events       []schema.EventEnvelope
	Workstreams  schema.WorkstreamsFile
	Coverage     schema.CoverageManifest
}

// allowedTemplateVars is the contract between the template and the context
// builder. A template referencing anything else is rejected before rendering
// so placeholder text can't silently leak into a packet.
var allowedTemplateVars = map[string]struct{}{
	"user": {}, "window": {}, "run_id": {}, "mode": {}, "completeness": {},
	"generated_at": {}, "receipt_ordering": {}, "workstreams": {}, "title": {},
	"summary": {}, "stats": {}, "event_count": {}, "receipts": {}, "date": {},
	"kind": {}, "state": {}, "url": {}, "slices": {}, "total": {},
	"fetched": {}, "status": {}, "warnings": {}, "query": {},
}

var templateVarPattern = regexp.MustCompile(`\{\{[#/]?\s*([a-zA-Z_][a-zA-Z0-9_]*)`)

// WritePacket function renders the packet template with the input and writes
// it to path.
func WritePacket(path string, in Input) error {
	source, err := static.ReadFile(packetTemplatePath)
	if err != nil {
		return fmt.Errorf("can't read packet template: %w", err)
	}
	if err := validateTemplate(string(source)); err != nil {
		return err
	}

	tmpl, err := raymond.Parse(string(source))
	if err != nil {
		return fmt.Errorf("can't parse packet template: %w", err)
	}
	output, err := tmpl.Exec(buildContext(in))
	if err != nil {
		return fmt.Errorf("can't render packet: %w", err)
	}

	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return fmt.Errorf("can't write packet (%s): %w", path, err)
	}
	return nil
}

// validateTemplate rejects templates that reference variables the context
// builder doesn't produce.
func validateTemplate(source string) error {
	for _, match := range templateVarPattern.FindAllStringSubmatch(source, -1) {
		name := match[1]
		switch name {
		case "each", "if", "else", "this":
			continue
		}
		if _, known := allowedTemplateVars[name]; !known {
			return fmt.Errorf("packet template references undefined variable %q", name)
		}
	}
	return nil
}

func buildContext(in Input) map[string]interface{} {
	byID := make(map[string]schema.EventEnvelope, len(in.Events))
	for _, event := range in.Events {
		byID[event.ID] = event
	}

	workstreams := make([]map[string]interface{}, 0, len(in.Workstreams.Workstreams))
	for _, ws := range in.Workstreams.Workstreams {
		workstreams = append(workstreams, map[string]interface{}{
			"title":   ws.Title,
			"summary": ws.Summary,
			"stats": map[string]interface{}{
				"pull_requests": ws.Stats.PullRequests,
				"reviews":       ws.Stats.Reviews,
				"manual":        ws.Stats.Manual,
			},
			"event_count": len(ws.Events),
			"receipts":    receiptContexts(ws, byID),
		})
	}

	slices := make([]map[string]interface{}, 0, len(in.Coverage.Slices))
	for _, slice := range in.Coverage.Slices {
		status := "complete"
		if slice.IncompleteResults || slice.Fetched != slice.TotalCount {
			status = "partial"
		}
		slices = append(slices, map[string]interface{}{
			"window":  slice.Window.String(),
			"query":   slice.Query,
			"total":   slice.TotalCount,
			"fetched": slice.Fetched,
			"status":  status,
		})
	}

	return map[string]interface{}{
		"user":             in.User,
		"window":           in.Window.String(),
		"run_id":           in.RunID,
		"mode":             in.Mode,
		"completeness":     string(in.Completeness),
		"generated_at":     in.GeneratedAt.UTC().Format(time.RFC3339),
		"receipt_ordering": workstream.ReceiptOrderingNote,
		"workstreams":      workstreams,
		"slices":           slices,
		"warnings":         in.Coverage.Warnings,
	}
}

func receiptContexts(ws schema.Workstream, byID map[string]schema.EventEnvelope) []map[string]interface{} {
	receipts := make([]map[string]interface{}, 0, len(ws.Receipts))
	for _, id := range ws.Receipts {
		event, found := byID[id]
		if !found {
			// Curated files may reference events from an older ledger.
			continue
		}

		ctx := map[string]interface{}{
			"date":  event.OccurredAt.UTC().Format(window.DateFormat),
			"kind":  string(event.Kind),
			"title": event.Title(),
		}
		switch {
		case event.PullRequest != nil:
			ctx["state"] = string(event.PullRequest.State)
		case event.Review != nil:
			ctx["state"] = string(event.Review.State)
		}
		if len(event.Links) > 0 {
			ctx["url"] = event.Links[0].URL
		}
		receipts = append(receipts, ctx)
	}
	return receipts
}
