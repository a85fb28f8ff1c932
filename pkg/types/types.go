// Package types provides shared types used across static-pages-deploy packages.
package types

import (
	"fmt"
	"net/url"
	"strings"
)

// UploadPath is the path template of the static-pages upload endpoint,
// relative to the Halo API base URL. The single verb is the project ID.
const UploadPath = "/apis/console.api.staticpage.halo.run/v1alpha1/projects/%s/upload"

// DeployRequest describes a single deploy invocation.
// It is built once from command line input and is not modified afterwards.
type DeployRequest struct {
	// Path to the file or directory to publish
	SourcePath string

	// Halo API base URL (e.g., "https://halo.example.com")
	Endpoint string

	// Static-pages project identifier
	ProjectID string

	// Personal access token sent as a bearer token
	Token string

	// Target directory inside the project - optional
	Dir string
}

// Validate checks that every required field is set and that the endpoint is
// an absolute http(s) URL. It does not touch the filesystem.
func (r *DeployRequest) Validate() error {
	if r.SourcePath == "" {
		return fmt.Errorf("source path is required")
	}
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if r.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if r.Token == "" {
		return fmt.Errorf("token is required")
	}

	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", r.Endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", r.Endpoint)
	}
	return nil
}

// UploadURL returns the full upload URL for the request's project.
//
// Example:
//
//	req := &DeployRequest{Endpoint: "https://example.com", ProjectID: "abc"}
//	req.UploadURL() // https://example.com/apis/console.api.staticpage.halo.run/v1alpha1/projects/abc/upload
func (r *DeployRequest) UploadURL() string {
	base := strings.TrimRight(r.Endpoint, "/")
	return base + fmt.Sprintf(UploadPath, url.PathEscape(r.ProjectID))
}

// Artifact is the single file that is actually transmitted.
// When IsArchive is true the file was generated under Dir, a private
// temporary directory owned by whoever called the archiver.
type Artifact struct {
	// Path of the file to upload
	Path string

	// True when Path is a generated zip archive that the server must unpack
	IsArchive bool

	// Temporary directory holding Path; empty when IsArchive is false
	Dir string
}

// UploadProgress is a snapshot of bytes written to the transport.
type UploadProgress struct {
	BytesSent  uint64
	BytesTotal uint64
}

// DeploymentResult contains information about a successful deployment.
type DeploymentResult struct {
	// Project the artifact was uploaded to
	ProjectID string

	// Artifact that was uploaded (the path may no longer exist)
	Artifact Artifact

	// Number of request body bytes sent
	BytesSent uint64

	// Location reported by the server (the stored path), if any
	Location string
}
