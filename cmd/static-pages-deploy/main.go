package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jvreagan/static-pages-deploy/pkg/archive"
	"github.com/jvreagan/static-pages-deploy/pkg/credentials"
	"github.com/jvreagan/static-pages-deploy/pkg/deploy"
	"github.com/jvreagan/static-pages-deploy/pkg/logging"
	"github.com/jvreagan/static-pages-deploy/pkg/manifest"
	"github.com/jvreagan/static-pages-deploy/pkg/progress"
	"github.com/jvreagan/static-pages-deploy/pkg/types"
	"github.com/jvreagan/static-pages-deploy/pkg/upload"
)

// Version information (set via ldflags during build)
var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

// deployOptions holds the deploy command's flag values.
type deployOptions struct {
	file       string
	endpoint   string
	id         string
	token      string
	config     string
	dir        string
	timeout    time.Duration
	verbose    bool
	noProgress bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return deploy.ExitOK
	}

	// Anything cobra rejects before RunE is a usage problem.
	var derr *deploy.Error
	if !errors.As(err, &derr) {
		err = deploy.UsageError(err)
	}

	if errors.Is(err, deploy.ErrUsage) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", root.Name())
	} else {
		fmt.Fprintf(stderr, "Deployment failed: %v\n", err)
	}
	return deploy.ExitCode(err)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "static-pages-deploy",
		Short: "Publish a directory or file to a Halo static-pages project",
		Long: `static-pages-deploy uploads a build output to a Halo static-pages project.
A directory is zipped first and unpacked by the server; a single file is
uploaded as-is.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newDeployCmd(stdout, stderr))
	root.AddCommand(newVersionCmd(stdout))
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "static-pages-deploy version %s\n", version)
			fmt.Fprintf(stdout, "  commit: %s\n", commit)
			fmt.Fprintf(stdout, "  built: %s\n", date)
		},
	}
}

func newDeployCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &deployOptions{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload a file or directory to a static-pages project",
		Long: `Uploads --file to the project --id on the Halo server at --endpoint.
Values missing from the command line are taken from the --config deploy file.`,
		Example: `  static-pages-deploy deploy -f ./dist -e https://halo.example.com -i my-site -t "$HALO_TOKEN"
  static-pages-deploy deploy -c deploy.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Configure(stderr, opts.verbose)

			req, timeout, err := resolveRequest(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}

			client := upload.New(timeout)
			client.UserAgent = "static-pages-deploy/" + version

			var reporter deploy.Reporter
			if !opts.noProgress {
				reporter = progress.NewBar(stderr)
			}

			d := deploy.New(&archive.Zipper{}, client, reporter)
			result, err := d.Deploy(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintln(stdout, "Deployed successfully")
			if loc := strings.TrimSpace(result.Location); loc != "" {
				fmt.Fprintf(stdout, "  Location: %s\n", loc)
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return deploy.UsageError(err)
	})

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "File or directory to deploy")
	flags.StringVarP(&opts.endpoint, "endpoint", "e", "", "Halo API base URL")
	flags.StringVarP(&opts.id, "id", "i", "", "Static-pages project ID")
	flags.StringVarP(&opts.token, "token", "t", "", "Personal access token")
	flags.StringVarP(&opts.config, "config", "c", "", "Path to a YAML deploy file supplying defaults")
	flags.StringVar(&opts.dir, "dir", "", "Target directory inside the project")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Overall upload timeout (0 means none)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}

// resolveRequest merges flags over the optional deploy file and resolves the
// token. Flags set on the command line always win.
func resolveRequest(ctx context.Context, cmd *cobra.Command, opts *deployOptions) (*types.DeployRequest, time.Duration, error) {
	var m *manifest.Manifest
	if opts.config != "" {
		loaded, err := manifest.Load(opts.config)
		if err != nil {
			return nil, 0, deploy.UsageError(err)
		}
		m = loaded
		logging.Debug("Loaded deploy file", "path", opts.config)
	} else {
		m = &manifest.Manifest{}
	}

	req := &types.DeployRequest{
		SourcePath: pick(opts.file, m.Source),
		Endpoint:   pick(opts.endpoint, m.Endpoint),
		ProjectID:  pick(opts.id, m.ProjectID),
		Token:      opts.token,
		Dir:        pick(opts.dir, m.Dir),
	}

	timeout := opts.timeout
	if !cmd.Flags().Changed("timeout") {
		timeout = m.Timeout
	}
	if timeout < 0 {
		return nil, 0, deploy.UsageError(fmt.Errorf("timeout must not be negative"))
	}

	var missing []string
	if req.SourcePath == "" {
		missing = append(missing, "file")
	}
	if req.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if req.ProjectID == "" {
		missing = append(missing, "id")
	}
	if req.Token == "" && opts.config == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return nil, 0, deploy.UsageError(fmt.Errorf("required flag(s) %s not set", quoteJoin(missing)))
	}

	if req.Token == "" {
		token, err := credentials.NewManager(m.Token).Token(ctx)
		if err != nil {
			return nil, 0, deploy.CredentialsError(err)
		}
		req.Token = token
	}

	return req, timeout, nil
}

// quoteJoin renders names the way cobra reports missing required flags.
func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = strconv.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
