// Package deploy runs one static-pages deployment from start to finish:
//
//	Validating -> Archiving (directories only) -> Uploading -> CleaningUp -> Done | Failed
//
// CleaningUp runs on every path out of Archiving or Uploading, including
// archive failures, upload failures, and context cancellation. Cleanup
// problems are logged as warnings and never change the outcome.
package deploy

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/jvreagan/static-pages-deploy/pkg/logging"
	"github.com/jvreagan/static-pages-deploy/pkg/types"
	"github.com/jvreagan/static-pages-deploy/pkg/upload"
)

// State is a step of a deployment.
type State string

const (
	StateValidating State = "VALIDATING"
	StateArchiving  State = "ARCHIVING"
	StateUploading  State = "UPLOADING"
	StateCleaningUp State = "CLEANING_UP"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Archiver produces the artifact for a directory and releases it afterwards.
// Release must accept artifacts returned alongside a Prepare error.
type Archiver interface {
	Prepare(sourcePath string) (*types.Artifact, error)
	Release(a *types.Artifact) error
}

// Uploader sends an artifact. It reports progress zero or more times and
// then returns exactly once.
type Uploader interface {
	Upload(ctx context.Context, r upload.Request, onProgress upload.ProgressFunc) (*upload.Response, error)
}

// Reporter displays upload progress. Finish is called once the upload has
// returned, whatever the outcome.
type Reporter interface {
	Update(p types.UploadProgress)
	Finish()
}

// Deployer wires an Archiver, an Uploader, and a Reporter together.
type Deployer struct {
	archiver Archiver
	uploader Uploader
	reporter Reporter

	// OnState, when set, is called on every state transition.
	OnState func(State)
}

// New creates a Deployer. reporter may be nil to disable progress output.
func New(archiver Archiver, uploader Uploader, reporter Reporter) *Deployer {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Deployer{
		archiver: archiver,
		uploader: uploader,
		reporter: reporter,
	}
}

// Deploy publishes req.SourcePath to the project named by req.
// Errors are *Error values carrying one of the Err* kinds.
func (d *Deployer) Deploy(ctx context.Context, req *types.DeployRequest) (result *types.DeploymentResult, err error) {
	d.enter(StateValidating)
	defer func() {
		if err != nil {
			d.enter(StateFailed)
			return
		}
		d.enter(StateDone)
	}()

	if err := req.Validate(); err != nil {
		return nil, UsageError(err)
	}

	info, err := os.Stat(req.SourcePath)
	if err != nil {
		return nil, inputNotFound(req.SourcePath, err)
	}

	logging.DebugFields("Starting deployment", map[string]any{
		"source":   req.SourcePath,
		"endpoint": req.Endpoint,
		"project":  req.ProjectID,
		"token":    req.Token,
	})

	var artifact *types.Artifact
	defer func() {
		d.enter(StateCleaningUp)
		d.release(artifact)
	}()

	if info.IsDir() {
		d.enter(StateArchiving)
		artifact, err = d.archiver.Prepare(req.SourcePath)
		if err != nil {
			return nil, &Error{Kind: ErrArchive, State: StateArchiving, Err: err}
		}
	} else {
		artifact = &types.Artifact{Path: req.SourcePath, IsArchive: false}
	}

	d.enter(StateUploading)
	var sent atomic.Uint64
	resp, err := d.uploader.Upload(ctx, upload.Request{
		URL:      req.UploadURL(),
		Token:    req.Token,
		Artifact: artifact,
		Dir:      req.Dir,
	}, func(p types.UploadProgress) {
		sent.Store(p.BytesSent)
		d.reporter.Update(p)
	})
	d.reporter.Finish()
	if err != nil {
		return nil, &Error{Kind: ErrUpload, State: StateUploading, Err: err}
	}

	result = &types.DeploymentResult{
		ProjectID: req.ProjectID,
		Artifact:  *artifact,
		BytesSent: sent.Load(),
	}
	if resp != nil {
		result.Location = resp.Body
	}
	return result, nil
}

func (d *Deployer) enter(s State) {
	logging.Debug("Deploy state", "state", string(s))
	if d.OnState != nil {
		d.OnState(s)
	}
}

// release frees a generated artifact. Failures are downgraded to warnings.
func (d *Deployer) release(a *types.Artifact) {
	if a == nil {
		return
	}
	if err := d.archiver.Release(a); err != nil {
		cleanupErr := &Error{Kind: ErrCleanup, State: StateCleaningUp, Err: err}
		logging.WarnFields("Failed to remove temporary files", map[string]any{
			"dir":     a.Dir,
			"archive": a.Path,
		}, "error", cleanupErr.Error())
	}
}

type nopReporter struct{}

func (nopReporter) Update(types.UploadProgress) {}
func (nopReporter) Finish()                     {}
