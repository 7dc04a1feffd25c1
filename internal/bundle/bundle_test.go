// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package bundle

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/shiplog/internal/ledger"
	"github.com/elastic/shiplog/internal/redact"
	"github.com/elastic/shiplog/internal/render"
	"github.com/elastic/shiplog/internal/schema"
	"github.com/elastic/shiplog/internal/workstream"
)

const testRunID = "20250315T120000Z"

func prepareRunDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(relative, content string) {
		path := filepath.Join(dir, filepath.FromSlash(relative))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(render.PacketFileName, "# packet\n")
	write(ledger.EventsFileName, "")
	write(ledger.CoverageFileName, "{}\n")
	write(workstream.SuggestedFileName, "version: 1\nworkstreams: []\n")
	write(redact.AliasFileName, `{"version":1,"map":{}}`)
	write("profiles/manager/packet.md", "# manager packet\n")
	write("profiles/public/packet.md", "# public packet\n")
	return dir
}

func TestWriteInternalManifest(t *testing.T) {
	dir := prepareRunDir(t)

	manifest, err := Write(dir, testRunID, schema.ProfileInternal)
	require.NoError(t, err)
	assert.Equal(t, testRunID, manifest.RunID)
	assert.Equal(t, schema.ProfileInternal, manifest.Profile)

	paths := manifestPaths(manifest)
	assert.Contains(t, paths, render.PacketFileName)
	assert.Contains(t, paths, ledger.EventsFileName)
	assert.Contains(t, paths, ledger.CoverageFileName)
	assert.Contains(t, paths, workstream.SuggestedFileName)

	for _, f := range manifest.Files {
		assert.Len(t, f.SHA256, 64)
	}
}

func TestWritePrefersCuratedWorkstreams(t *testing.T) {
	dir := prepareRunDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, workstream.CuratedFileName), []byte("version: 1\nworkstreams: []\n"), 0o644))

	manifest, err := Write(dir, testRunID, schema.ProfileInternal)
	require.NoError(t, err)
	paths := manifestPaths(manifest)
	assert.Contains(t, paths, workstream.CuratedFileName)
	assert.NotContains(t, paths, workstream.SuggestedFileName)
}

func TestManifestNeverListsAliasCache(t *testing.T) {
	dir := prepareRunDir(t)
	for _, profile := range []schema.Profile{schema.ProfileInternal, schema.ProfileManager, schema.ProfilePublic} {
		manifest, err := Write(dir, testRunID, profile)
		require.NoError(t, err)
		assert.NotContains(t, manifestPaths(manifest), redact.AliasFileName, "profile %s", profile)
	}
}

func TestProfileInclusionRules(t *testing.T) {
	dir := prepareRunDir(t)

	manager, err := Write(dir, testRunID, schema.ProfileManager)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"profiles/manager/packet.md",
		ledger.EventsFileName,
		ledger.CoverageFileName,
	}, manifestPaths(manager))

	public, err := Write(dir, testRunID, schema.ProfilePublic)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"profiles/public/packet.md",
		ledger.CoverageFileName,
	}, manifestPaths(public))
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := prepareRunDir(t)
	_, err := Write(dir, testRunID, schema.ProfileInternal)
	require.NoError(t, err)
	require.NoError(t, Verify(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ledger.EventsFileName), []byte("tampered\n"), 0o644))
	err = Verify(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
	assert.Contains(t, err.Error(), ledger.EventsFileName)
}

func TestArchiveNaming(t *testing.T) {
	dir := prepareRunDir(t)

	_, err := Write(dir, testRunID, schema.ProfileInternal)
	require.NoError(t, err)
	archive, err := Archive(dir, testRunID, schema.ProfileInternal)
	require.NoError(t, err)
	assert.Equal(t, testRunID+".zip", filepath.Base(archive))

	_, err = Write(dir, testRunID, schema.ProfilePublic)
	require.NoError(t, err)
	archive, err = Archive(dir, testRunID, schema.ProfilePublic)
	require.NoError(t, err)
	assert.Equal(t, testRunID+".public.zip", filepath.Base(archive))
}

func TestArchiveContents(t *testing.T) {
	dir := prepareRunDir(t)
	_, err := Write(dir, testRunID, schema.ProfilePublic)
	require.NoError(t, err)

	archive, err := Archive(dir, testRunID, schema.ProfilePublic)
	require.NoError(t, err)

	reader, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer reader.Close()

	var names []string
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	for _, name := range names {
		assert.NotContains(t, name, redact.AliasFileName)
		assert.NotContains(t, name, ledger.EventsFileName)
	}
	assert.Contains(t, names, testRunID+".public/profiles/public/packet.md")
	assert.Contains(t, names, testRunID+".public/"+ManifestFileName)
}

func manifestPaths(manifest schema.BundleManifest) []string {
	paths := make([]string, len(manifest.Files))
	for i, f := range manifest.Files {
		paths[i] = f.Path
	}
	return paths
}
