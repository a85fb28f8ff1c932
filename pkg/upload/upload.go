// Package upload sends a deploy artifact to the static-pages upload endpoint.
//
// The request body is multipart/form-data with a "file" part carrying the
// artifact and an "unzip" part telling the server whether to extract it. The
// file is streamed from disk, never buffered in memory, and the exact body
// size is sent as Content-Length so progress can be reported against it.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/jvreagan/static-pages-deploy/pkg/logging"
	"github.com/jvreagan/static-pages-deploy/pkg/types"
)

// Form field names understood by the upload endpoint.
const (
	FieldFile  = "file"
	FieldUnzip = "unzip"
	FieldDir   = "dir"
)

// Maximum number of response body bytes kept for error reporting.
const maxErrorBody = 64 << 10

// ProgressFunc receives progress snapshots. It is called from the transport's
// goroutine, zero or more times before Upload returns, and must not block.
type ProgressFunc func(types.UploadProgress)

// Request describes one upload.
type Request struct {
	// Full upload URL (see types.DeployRequest.UploadURL)
	URL string

	// Bearer token for the Authorization header
	Token string

	// File to send
	Artifact *types.Artifact

	// Target directory inside the project - optional, omitted from the form when empty
	Dir string
}

// Response is the server's answer to a successful upload.
type Response struct {
	StatusCode int

	// Response body as text; the static-pages API returns the stored path
	Body string
}

// Client uploads artifacts over HTTP. It never retries.
type Client struct {
	httpClient *http.Client

	// UserAgent is sent with every request when non-empty
	UserAgent string
}

// New creates a Client on a pooled transport from go-cleanhttp.
// A zero timeout means no overall request timeout.
func New(timeout time.Duration) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = timeout
	return &Client{httpClient: hc}
}

// NewWithHTTPClient creates a Client that sends requests through hc.
func NewWithHTTPClient(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

// Upload streams r.Artifact to r.URL and reports progress to onProgress,
// which may be nil. Any non-2xx status, transport failure, or timeout is
// returned as an *Error.
func (c *Client) Upload(ctx context.Context, r Request, onProgress ProgressFunc) (*Response, error) {
	if r.Artifact == nil {
		return nil, &Error{Err: fmt.Errorf("no artifact to upload")}
	}
	if onProgress == nil {
		onProgress = func(types.UploadProgress) {}
	}

	layout, err := newFormLayout(r.Artifact, r.Dir)
	if err != nil {
		return nil, &Error{Err: err}
	}

	body, err := layout.open(onProgress)
	if err != nil {
		return nil, &Error{Err: err}
	}
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, body)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.ContentLength = layout.size()
	// GetBody lets the transport replay the body on 307/308 redirects.
	req.GetBody = func() (io.ReadCloser, error) {
		return layout.open(onProgress)
	}
	req.Header.Set("Content-Type", layout.contentType)
	req.Header.Set("Authorization", "Bearer "+r.Token)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	logging.DebugFields("Uploading artifact", map[string]any{
		"url":     r.URL,
		"file":    r.Artifact.Path,
		"unzip":   r.Artifact.IsArchive,
		"bytes":   layout.size(),
		"dir":     r.Dir,
		"token":   r.Token,
		"timeout": c.httpClient.Timeout.String(),
	})

	onProgress(types.UploadProgress{BytesSent: 0, BytesTotal: uint64(layout.size())})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Err: err}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp, data)
	}
	if readErr != nil {
		logging.Warn("Failed to read upload response", "error", readErr)
	}

	logging.Debug("Upload accepted", "status", resp.StatusCode)
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(data)),
	}, nil
}

// formLayout is the precomputed multipart framing around the file content.
type formLayout struct {
	path        string
	fileSize    int64
	head        []byte
	tail        []byte
	contentType string
}

func newFormLayout(a *types.Artifact, dir string) (*formLayout, error) {
	info, err := os.Stat(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("artifact %s is not a regular file", a.Path)
	}

	var head bytes.Buffer
	headWriter := multipart.NewWriter(&head)
	if _, err := headWriter.CreateFormFile(FieldFile, filepath.Base(a.Path)); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	// The file content sits between head and tail, so the trailing parts
	// start with the CRLF that precedes every non-first boundary.
	var tail bytes.Buffer
	tail.WriteString("\r\n")
	tailWriter := multipart.NewWriter(&tail)
	if err := tailWriter.SetBoundary(headWriter.Boundary()); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if err := tailWriter.WriteField(FieldUnzip, strconv.FormatBool(a.IsArchive)); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if dir != "" {
		if err := tailWriter.WriteField(FieldDir, dir); err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
	}
	if err := tailWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	return &formLayout{
		path:        a.Path,
		fileSize:    info.Size(),
		head:        head.Bytes(),
		tail:        tail.Bytes(),
		contentType: headWriter.FormDataContentType(),
	}, nil
}

func (l *formLayout) size() int64 {
	return int64(len(l.head)) + l.fileSize + int64(len(l.tail))
}

// open returns a fresh body reader positioned at the start of the form.
func (l *formLayout) open(onProgress ProgressFunc) (io.ReadCloser, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return &progressReader{
		r:          io.MultiReader(bytes.NewReader(l.head), file, bytes.NewReader(l.tail)),
		closer:     file,
		total:      uint64(l.size()),
		onProgress: onProgress,
	}, nil
}

// progressReader counts bytes handed to the transport.
type progressReader struct {
	r          io.Reader
	closer     io.Closer
	sent       uint64
	total      uint64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += uint64(n)
		p.onProgress(types.UploadProgress{BytesSent: p.sent, BytesTotal: p.total})
	}
	return n, err
}

func (p *progressReader) Close() error {
	return p.closer.Close()
}

// Problem is the structured error payload the Halo API returns.
type Problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Error is returned for every failed upload.
type Error struct {
	// HTTP status code; 0 when no response was received
	StatusCode int

	// HTTP status line text (e.g., "401 Unauthorized")
	Status string

	// Decoded problem payload, when the server sent one
	Problem *Problem

	// Raw response body text, when it was not a problem payload
	Body string

	// Underlying transport error, when no response was received
	Err error
}

func newStatusError(resp *http.Response, data []byte) *Error {
	e := &Error{StatusCode: resp.StatusCode, Status: resp.Status}

	var problem Problem
	if err := json.Unmarshal(data, &problem); err == nil && (problem.Title != "" || problem.Detail != "") {
		e.Problem = &problem
	} else {
		e.Body = strings.TrimSpace(string(data))
	}
	return e
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upload failed: %v", e.Err)
	}

	msg := "upload failed: " + e.Status
	switch {
	case e.Problem != nil && e.Problem.Title != "" && e.Problem.Detail != "":
		msg += ": " + e.Problem.Title + ": " + e.Problem.Detail
	case e.Problem != nil && e.Problem.Detail != "":
		msg += ": " + e.Problem.Detail
	case e.Problem != nil:
		msg += ": " + e.Problem.Title
	case e.Body != "":
		msg += ": " + logging.SanitizeString(e.Body)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the upload failed because a deadline expired.
func (e *Error) Timeout() bool {
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}
