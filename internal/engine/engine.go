// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package engine orchestrates the shiplog flows: collect, refresh, render
// and import. Every flow writes under a single run directory, persists the
// ledger and coverage before anything derived from them, and never modifies
// an existing user-curated workstreams file. Import copies the imported one
// into the new run directory.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/elastic/shiplog/internal/bundle"
	"github.com/elastic/shiplog/internal/cache"
	"github.com/elastic/shiplog/internal/environment"
	"github.com/elastic/shiplog/internal/identity"
	"github.com/elastic/shiplog/internal/ingest"
	"github.com/elastic/shiplog/internal/ledger"
	"github.com/elastic/shiplog/internal/logger"
	"github.com/elastic/shiplog/internal/narrative"
	"github.com/elastic/shiplog/internal/redact"
	"github.com/elastic/shiplog/internal/render"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/window"
	"github.com/elastic/shiplog/internal/workstream"
)

// CacheFileName is the shared response cache next to the run directories.
const CacheFileName = "cache.db"

// ImportFailedMarker is the only artifact written when an import fails its
// integrity check.
const ImportFailedMarker = "import.failed"

// Engine wires collectors, clock and output root together.
type Engine struct {
	// Out is the root under which run directories are created.
	Out string

	// Collectors by source system.
	Collectors map[schema.SourceSystem]ingest.Collector

	// Clock is injected for deterministic artifacts. Nil means time.Now.
	Clock func() time.Time

	// Narrative optionally drafts workstream summaries into suggestions.
	Narrative *narrative.Backend
}

// Options configures a flow invocation.
type Options struct {
	User           string
	Window         window.TimeWindow
	Mode           ingest.Mode
	IncludeReviews bool
	Throttle       time.Duration
	APIBase        string
	Token          string

	// Regen forces regeneration of the suggested workstreams file.
	Regen bool

	// RedactKey enables aliasing profiles. Empty skips them with a warning.
	RedactKey string

	// BundleProfile selects the bundle manifest's profile. Empty means internal.
	BundleProfile schema.Profile

	// Zip additionally writes the archive for the bundle profile.
	Zip bool
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Engine) collector(source string) (ingest.Collector, error) {
	system, err := schema.ParseSourceSystem(source)
	if err != nil {
		return nil, err
	}
	collector, found := e.Collectors[system]
	if !found {
		return nil, fmt.Errorf("no collector registered for source %q", system)
	}
	return collector, nil
}

// Collect runs the full pipeline: ingest, cluster, redact, render, bundle.
// Returns the run directory on success.
func (e *Engine) Collect(ctx context.Context, source string, opts Options) (string, error) {
	const flow = "collect"

	collector, err := e.collector(source)
	if err != nil {
		return "", failure(flow, KindConfig, err)
	}
	if err := validateOptions(&opts); err != nil {
		return "", failure(flow, KindConfig, err)
	}

	runID := identity.UniqueRunID(e.now(), func(id string) bool {
		_, err := os.Stat(filepath.Join(e.Out, id))
		return err == nil
	})
	dir := filepath.Join(e.Out, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", failure(flow, KindIO, err)
	}
	logger.Infof("Collecting %s activity for %s (%s) into %s", source, opts.User, opts.Window, dir)

	responseCache := cache.OpenOrNil(filepath.Join(e.Out, CacheFileName))
	defer responseCache.Close()

	result, collectErr := collector.Collect(ctx, ingest.Options{
		User:           opts.User,
		Window:         opts.Window,
		Mode:           opts.Mode,
		IncludeReviews: opts.IncludeReviews,
		Throttle:       opts.Throttle,
		APIBase:        opts.APIBase,
		Token:          opts.Token,
		Cache:          responseCache,
		Clock:          e.Clock,
	})
	if collectErr != nil && result == nil {
		return "", failure(flow, KindTransport, collectErr)
	}

	// Receipts first: the ledger and coverage are written before anything
	// else, including on cancellation.
	result.Coverage.RunID = runID
	if err := e.persistLedger(dir, result); err != nil {
		return dir, failure(flow, KindIO, err)
	}
	if collectErr != nil {
		return dir, failure(flow, KindTransport, collectErr)
	}

	// Collect always rebuilds the suggestion from fresh events.
	wsFile, origin, err := e.resolveWorkstreams(ctx, dir, result.Events, true)
	if err != nil {
		return dir, failure(flow, KindSchema, err)
	}
	logger.Debugf("Workstreams resolved from %s source", origin)

	if err := e.renderAndBundle(dir, runID, result.Events, result.Coverage, wsFile, opts, flow); err != nil {
		return dir, err
	}
	return dir, nil
}

// Refresh re-ingests into an existing run directory. The ledger and coverage
// are replaced; the curated workstreams file is left exactly as it is.
func (e *Engine) Refresh(ctx context.Context, source, dir string, opts Options) error {
	const flow = "refresh"

	collector, err := e.collector(source)
	if err != nil {
		return failure(flow, KindConfig, err)
	}
	if err := validateOptions(&opts); err != nil {
		return failure(flow, KindConfig, err)
	}
	runID := filepath.Base(dir)
	if _, err := os.Stat(dir); err != nil {
		return failure(flow, KindIO, fmt.Errorf("run directory not found: %w", err))
	}

	responseCache := cache.OpenOrNil(filepath.Join(filepath.Dir(dir), CacheFileName))
	defer responseCache.Close()

	result, collectErr := collector.Collect(ctx, ingest.Options{
		User:           opts.User,
		Window:         opts.Window,
		Mode:           opts.Mode,
		IncludeReviews: opts.IncludeReviews,
		Throttle:       opts.Throttle,
		APIBase:        opts.APIBase,
		Token:          opts.Token,
		Cache:          responseCache,
		Clock:          e.Clock,
	})
	if collectErr != nil && result == nil {
		return failure(flow, KindTransport, collectErr)
	}

	result.Coverage.RunID = runID
	if err := e.persistLedger(dir, result); err != nil {
		return failure(flow, KindIO, err)
	}
	if collectErr != nil {
		return failure(flow, KindTransport, collectErr)
	}

	// No forced regeneration: a curated file wins, a suggested file is
	// rebuilt only on --regen.
	wsFile, _, err := e.resolveWorkstreams(ctx, dir, result.Events, opts.Regen)
	if err != nil {
		return failure(flow, KindSchema, err)
	}

	return e.renderAndBundle(dir, runID, result.Events, result.Coverage, wsFile, opts, flow)
}

// Render re-renders an existing run directory without re-fetching.
func (e *Engine) Render(dir string, opts Options) error {
	const flow = "render"

	runID := filepath.Base(dir)
	events, err := ledger.ReadEvents(filepath.Join(dir, ledger.EventsFileName))
	if err != nil {
		return failure(flow, KindParse, err)
	}
	coverage, err := ledger.ReadCoverage(filepath.Join(dir, ledger.CoverageFileName))
	if err != nil {
		return failure(flow, KindParse, err)
	}

	wsFile, _, err := e.resolveWorkstreams(context.Background(), dir, events, opts.Regen)
	if err != nil {
		return failure(flow, KindSchema, err)
	}

	return e.renderAndBundle(dir, runID, events, coverage, wsFile, opts, flow)
}

// Import reads a foreign run directory and renders it under a new run id.
// When the source carries a bundle manifest, its checksums are verified
// first; on mismatch only a failure marker is written.
func (e *Engine) Import(ctx context.Context, sourceDir string, opts Options) (string, error) {
	const flow = "import"

	runID := identity.UniqueRunID(e.now(), func(id string) bool {
		_, err := os.Stat(filepath.Join(e.Out, id))
		return err == nil
	})
	dir := filepath.Join(e.Out, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", failure(flow, KindIO, err)
	}

	if _, err := os.Stat(filepath.Join(sourceDir, bundle.ManifestFileName)); err == nil {
		if err := bundle.Verify(sourceDir); err != nil {
			marker := fmt.Sprintf("import of %s failed: %v\n", sourceDir, err)
			if writeErr := os.WriteFile(filepath.Join(dir, ImportFailedMarker), []byte(marker), 0o644); writeErr != nil {
				logger.Errorf("Can't write import failure marker: %v", writeErr)
			}
			return dir, failure(flow, KindIntegrity, err)
		}
	}

	events, err := ledger.ReadEvents(filepath.Join(sourceDir, ledger.EventsFileName))
	if err != nil {
		return dir, failure(flow, KindParse, err)
	}
	coverage, err := ledger.ReadCoverage(filepath.Join(sourceDir, ledger.CoverageFileName))
	if err != nil {
		return dir, failure(flow, KindParse, err)
	}
	coverage.RunID = runID

	schema.SortEvents(events)
	if err := ledger.WriteEvents(filepath.Join(dir, ledger.EventsFileName), events); err != nil {
		return dir, failure(flow, KindIO, err)
	}
	if err := ledger.WriteCoverage(filepath.Join(dir, ledger.CoverageFileName), coverage); err != nil {
		return dir, failure(flow, KindIO, err)
	}

	// Imported workstream files travel with the run unless a regeneration
	// was requested.
	if !opts.Regen {
		for _, name := range []string{workstream.CuratedFileName, workstream.SuggestedFileName} {
			if err := copyIfExists(filepath.Join(sourceDir, name), filepath.Join(dir, name)); err != nil {
				return dir, failure(flow, KindIO, err)
			}
		}
	}

	wsFile, _, err := e.resolveWorkstreams(ctx, dir, events, opts.Regen)
	if err != nil {
		return dir, failure(flow, KindSchema, err)
	}

	if err := e.renderAndBundle(dir, runID, events, coverage, wsFile, opts, flow); err != nil {
		return dir, err
	}
	return dir, nil
}

func (e *Engine) persistLedger(dir string, result *ingest.Result) error {
	schema.SortEvents(result.Events)
	if err := ledger.WriteEvents(filepath.Join(dir, ledger.EventsFileName), result.Events); err != nil {
		return err
	}
	return ledger.WriteCoverage(filepath.Join(dir, ledger.CoverageFileName), result.Coverage)
}

func (e *Engine) resolveWorkstreams(ctx context.Context, dir string, events []schema.EventEnvelope, regen bool) (schema.WorkstreamsFile, workstream.Origin, error) {
	store := workstream.NewStore(dir)
	store.Clock = e.now

	file, origin, err := store.Resolve(events, regen)
	if err != nil {
		return schema.WorkstreamsFile{}, "", err
	}

	// Narrative drafts only decorate tool-owned suggestions. Curated state
	// is the user's and is returned untouched.
	if e.Narrative != nil && origin != workstream.OriginCurated {
		if decorated, changed := e.draftSummaries(ctx, file, events); changed {
			file = decorated
			if err := store.WriteSuggestion(file); err != nil {
				logger.Warnf("Can't persist drafted summaries: %v", err)
			}
		}
	}
	return file, origin, nil
}

func (e *Engine) draftSummaries(ctx context.Context, file schema.WorkstreamsFile, events []schema.EventEnvelope) (schema.WorkstreamsFile, bool) {
	byID := make(map[string]schema.EventEnvelope, len(events))
	for _, event := range events {
		byID[event.ID] = event
	}

	changed := false
	for i, ws := range file.Workstreams {
		if ws.Summary != "" {
			continue
		}
		var receipts []schema.EventEnvelope
		for _, id := range ws.Receipts {
			if event, found := byID[id]; found {
				receipts = append(receipts, event)
			}
		}
		summary, err := e.Narrative.Suggest(ctx, ws, receipts)
		if err != nil {
			logger.Warnf("Narrative draft for %q failed: %v", ws.Title, err)
			continue
		}
		if summary != "" {
			file.Workstreams[i].Summary = summary
			changed = true
		}
	}
	return file, changed
}

// renderAndBundle writes the internal packet, the aliased profile packets
// where possible, the bundle manifest and the optional archive.
func (e *Engine) renderAndBundle(dir, runID string, events []schema.EventEnvelope, coverage schema.CoverageManifest, wsFile schema.WorkstreamsFile, opts Options, flow string) error {
	generatedAt := e.now()
	baseInput := render.Input{
		RunID:        runID,
		User:         coverage.User,
		Window:       coverage.Window,
		Mode:         coverage.Mode,
		Completeness: coverage.Completeness,
		GeneratedAt:  generatedAt,
		Coverage:     coverage,
	}

	// Internal output is always produced.
	internalInput := baseInput
	internalInput.Events = events
	internalInput.Workstreams = wsFile
	if err := render.WritePacket(filepath.Join(dir, render.PacketFileName), internalInput); err != nil {
		return failure(flow, KindIO, err)
	}

	for _, profile := range []schema.Profile{schema.ProfileManager, schema.ProfilePublic} {
		if err := e.renderProfile(dir, profile, baseInput, events, wsFile, opts.RedactKey); err != nil {
			return failure(flow, KindRedaction, err)
		}
	}

	bundleProfile := opts.BundleProfile
	if bundleProfile == "" {
		bundleProfile = schema.ProfileInternal
	}
	if redact.RequiresKey(bundleProfile) && opts.RedactKey == "" {
		return failure(flow, KindRedaction, fmt.Errorf("bundle profile %q requires a redaction key", bundleProfile))
	}
	if _, err := bundle.Write(dir, runID, bundleProfile); err != nil {
		return failure(flow, KindIO, err)
	}
	if opts.Zip {
		archive, err := bundle.Archive(dir, runID, bundleProfile)
		if err != nil {
			return failure(flow, KindIO, err)
		}
		logger.Infof("Archive written: %s", archive)
	}
	return nil
}

func (e *Engine) renderProfile(dir string, profile schema.Profile, baseInput render.Input, events []schema.EventEnvelope, wsFile schema.WorkstreamsFile, key string) error {
	if redact.RequiresKey(profile) && key == "" {
		logger.Warnf("Skipping %s packet: no redaction key configured (set %s)", profile, RedactKeyEnv)
		return nil
	}

	redactor, err := redact.New(profile, key, filepath.Join(dir, redact.AliasFileName))
	if err != nil {
		return err
	}

	redactedEvents, err := redactor.Events(events)
	if err != nil {
		return err
	}
	redactedWorkstreams, err := redactor.Workstreams(wsFile)
	if err != nil {
		return err
	}

	profileDir := filepath.Join(dir, "profiles", string(profile))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return err
	}

	input := baseInput
	input.Events = redactedEvents
	input.Workstreams = redactedWorkstreams
	if err := render.WritePacket(filepath.Join(profileDir, render.PacketFileName), input); err != nil {
		return err
	}
	return redactor.Persist()
}

func validateOptions(opts *Options) error {
	if opts.User == "" {
		return fmt.Errorf("user is required")
	}
	if _, err := window.New(opts.Window.Since, opts.Window.Until); err != nil {
		return err
	}
	if opts.Mode == "" {
		opts.Mode = ingest.ModeMerged
	}
	if opts.BundleProfile != "" {
		if _, err := schema.ParseProfile(string(opts.BundleProfile)); err != nil {
			return err
		}
	}
	return nil
}

func copyIfExists(source, destination string) error {
	in, err := os.Open(source)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// RedactKeyEnv is the environment variable providing the redaction key when
// the flag is absent.
var RedactKeyEnv = environment.WithShiplogPrefix("REDACT_KEY")
