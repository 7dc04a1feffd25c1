// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License;
// you may not use this file except in compliance with the Elastic License.

package files

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/elastic/shiplog/internal/logger"
)

// ZipFiles function creates a .zip archive containing the selected files from
// the source directory. Paths are slash-separated and relative to sourceDir;
// the archive root is named after the destination file, e.g.
// 20250315T120000Z/packet.md.
func ZipFiles(sourceDir, destinationFile string, relativePaths []string) error {
	logger.Debugf("Compress run artifacts (destination: %s)", destinationFile)

	out, err := os.Create(destinationFile)
	if err != nil {
		return fmt.Errorf("can't create archive file: %w", err)
	}
	defer out.Close()

	folderName := folderNameFromFileName(destinationFile)

	z := zip.NewWriter(out)
	for _, relative := range relativePaths {
		err := addFileToZip(z, filepath.Join(sourceDir, filepath.FromSlash(relative)), path.Join(folderName, relative))
		if err != nil {
			z.Close()
			return fmt.Errorf("can't add %s to archive: %w", relative, err)
		}
	}
	// No need to z.Flush() because z.Close() already does it.
	err = z.Close()
	if err != nil {
		return fmt.Errorf("failed to write data to zip file: %w", err)
	}
	return nil
}

func addFileToZip(z *zip.Writer, sourcePath, archivePath string) error {
	in, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := z.Create(archivePath)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// folderNameFromFileName returns the folder name from the destination file.
// Based on mholt/archiver: https://github.com/mholt/archiver/blob/d35d4ce7c5b2411973fb7bd96ca1741eb011011b/archiver.go#L397
func folderNameFromFileName(filename string) string {
	base := filepath.Base(filename)
	firstDot := strings.LastIndex(base, ".")
	if firstDot > -1 {
		return base[:firstDot]
	}
	return base
}
