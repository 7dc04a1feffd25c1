// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

// Package bundle decides which run artifacts may leave the machine at a
// given profile, records their checksums, and optionally archives them.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/elastic/shiplog/internal/files"
	"github.com/elastic/shiplog/internal/ledger"
	"github.com/elastic/shiplog/internal/logger"
	"github.com/elastic/shiplog/internal/multierror"
	"github.com/elastic/shiplog/internal/redact"
	"github.com/elastic/shiplog/internal/render"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/workstream"
)

// ManifestFileName is the bundle manifest inside a run directory.
const ManifestFileName = "bundle.manifest.json"

// includedFiles returns the profile's inclusion list, relative to the run
// directory with slash separators. The manifest itself is part of every
// bundle but is not self-listed.
func includedFiles(dir string, profile schema.Profile) ([]string, error) {
	switch profile {
	case schema.ProfileInternal:
		workstreamsFile := workstream.CuratedFileName
		if _, err := os.Stat(filepath.Join(dir, workstreamsFile)); err != nil {
			workstreamsFile = workstream.SuggestedFileName
		}
		return []string{
			render.PacketFileName,
			ledger.EventsFileName,
			ledger.CoverageFileName,
			workstreamsFile,
		}, nil
	case schema.ProfileManager:
		return []string{
			path.Join("profiles", "manager", render.PacketFileName),
			ledger.EventsFileName,
			ledger.CoverageFileName,
		}, nil
	case schema.ProfilePublic:
		return []string{
			path.Join("profiles", "public", render.PacketFileName),
			ledger.CoverageFileName,
		}, nil
	}
	return nil, fmt.Errorf("unknown profile: %q", profile)
}

// Write function builds the bundle manifest for the profile and writes it
// into the run directory.
func Write(dir, runID string, profile schema.Profile) (schema.BundleManifest, error) {
	included, err := includedFiles(dir, profile)
	if err != nil {
		return schema.BundleManifest{}, err
	}

	manifest := schema.BundleManifest{
		RunID:   runID,
		Profile: profile,
		Files:   make([]schema.BundleFile, 0, len(included)),
	}
	for _, relative := range included {
		if path.Base(relative) == redact.AliasFileName {
			return schema.BundleManifest{}, fmt.Errorf("refusing to bundle %s", redact.AliasFileName)
		}
		entry, err := hashFile(dir, relative)
		if err != nil {
			return schema.BundleManifest{}, err
		}
		manifest.Files = append(manifest.Files, entry)
		logger.Debugf("Bundled %s (%s)", relative, humanize.Bytes(uint64(entry.Bytes)))
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return schema.BundleManifest{}, fmt.Errorf("can't marshal bundle manifest: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0o644); err != nil {
		return schema.BundleManifest{}, fmt.Errorf("can't write bundle manifest: %w", err)
	}
	return manifest, nil
}

// Read function parses the bundle manifest of a run directory.
func Read(dir string) (schema.BundleManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return schema.BundleManifest{}, fmt.Errorf("can't read bundle manifest: %w", err)
	}
	var manifest schema.BundleManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return schema.BundleManifest{}, fmt.Errorf("can't parse bundle manifest: %w", err)
	}
	return manifest, nil
}

// Verify function recomputes the checksum of every file the manifest lists.
// A mismatch means the bundle was tampered with or corrupted in transit.
// All failing files are reported, not just the first.
func Verify(dir string) error {
	manifest, err := Read(dir)
	if err != nil {
		return err
	}
	var errs multierror.Error
	for _, declared := range manifest.Files {
		actual, err := hashFile(dir, declared.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("bundle integrity: %w", err))
			continue
		}
		if actual.SHA256 != declared.SHA256 {
			errs = append(errs, fmt.Errorf("bundle integrity: checksum mismatch for %s (declared %s, actual %s)",
				declared.Path, declared.SHA256, actual.SHA256))
		}
	}
	if len(errs) > 0 {
		return errs.Unique()
	}
	return nil
}

// Archive function zips the bundled files plus the manifest. Internal
// bundles keep the bare <run_id>.zip name; other profiles are tagged.
func Archive(dir, runID string, profile schema.Profile) (string, error) {
	manifest, err := Read(dir)
	if err != nil {
		return "", err
	}

	name := runID + ".zip"
	if profile != schema.ProfileInternal {
		name = fmt.Sprintf("%s.%s.zip", runID, profile)
	}

	relativePaths := make([]string, 0, len(manifest.Files)+1)
	for _, f := range manifest.Files {
		relativePaths = append(relativePaths, f.Path)
	}
	relativePaths = append(relativePaths, ManifestFileName)

	destination := filepath.Join(dir, name)
	if err := files.ZipFiles(dir, destination, relativePaths); err != nil {
		return "", err
	}
	return destination, nil
}

func hashFile(dir, relative string) (schema.BundleFile, error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(relative)))
	if err != nil {
		return schema.BundleFile{}, fmt.Errorf("can't open %s: %w", relative, err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return schema.BundleFile{}, fmt.Errorf("can't hash %s: %w", relative, err)
	}
	return schema.BundleFile{
		Path:   relative,
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Bytes:  size,
	}, nil
}
