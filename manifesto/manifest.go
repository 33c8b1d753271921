package manifesto

import (
	"fmt"
	"net/http"

	perrors "github.com/pilab-dev/persona-client/errors"
)

const (
	FormatZip     = "zip"
	FormatTarball = "tarball"
)

// File is one entry of an archive.
type File struct {
	// Type is the storage backend the file is read from, e.g. "s3".
	Type            string `json:"type,omitempty"`
	Container       string `json:"container,omitempty"`
	File            string `json:"file"`
	DestinationPath string `json:"destinationPath,omitempty"`
}

// Manifest describes the archive manifesto should build.
type Manifest struct {
	Format           string `json:"format"`
	Files            []File `json:"files"`
	CallbackLocation string `json:"callbackLocation,omitempty"`
	CallbackMethod   string `json:"callbackMethod,omitempty"`
	SafeMode         bool   `json:"safeMode,omitempty"`
}

// document is the wire form of a manifest.
type document struct {
	Manifest
	FileCount int `json:"fileCount"`
}

func (m Manifest) document() document {
	if m.Format == "" {
		m.Format = FormatZip
	}
	return document{Manifest: m, FileCount: len(m.Files)}
}

// Validate checks the manifest before it is sent.
func (m Manifest) Validate() error {
	if m.Format != "" && m.Format != FormatZip && m.Format != FormatTarball {
		return perrors.NewRequestValidation("format", fmt.Sprintf("Unsupported format %q", m.Format))
	}
	if len(m.Files) == 0 {
		return perrors.NewRequestValidation("files", "Manifest must contain at least one file")
	}
	for i, f := range m.Files {
		if f.File == "" {
			return perrors.NewRequestValidation("files", fmt.Sprintf("File %d is missing a file path", i))
		}
	}
	switch m.CallbackMethod {
	case "", http.MethodGet, http.MethodPost:
	default:
		return perrors.NewRequestValidation("callbackMethod", "Callback method must be GET or POST")
	}
	if m.CallbackMethod != "" && m.CallbackLocation == "" {
		return perrors.NewRequestValidation("callbackLocation", "Callback method set without a callback location")
	}
	return nil
}

// Archive is a queued archive job.
type Archive struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Location string `json:"location"`
}
