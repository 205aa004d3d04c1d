package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/logging"
)

// Kind says where a repository comes from
type Kind string

const (
	KindLocalPath Kind = "local_path"
	KindGitURL    Kind = "git_url"
	KindGitHubURL Kind = "github_url"
)

// DefaultCloneTimeout bounds one git clone
const DefaultCloneTimeout = 5 * time.Minute

var (
	// ErrUnsupportedKind is returned for an unknown repository source kind
	ErrUnsupportedKind = errors.New("unsupported repository source")
	// ErrInvalidURL is returned when a git URL fails validation
	ErrInvalidURL = errors.New("invalid git URL")
	// ErrCloneTimeout is returned when a clone outlives the clone timeout
	ErrCloneTimeout = errors.New("git clone timed out")

	sshURLPattern    = regexp.MustCompile(`^(git@|ssh://)[\w.\-@:/%~]+$`)
	githubRepoPath   = regexp.MustCompile(`^[\w.\-]+/[\w.\-]+$`)
	unsafeURLPattern = regexp.MustCompile("[;&|$`\\n\\r\\\\ ]")
)

// ParseKind accepts the kind names in either case, e.g. "GIT_URL". Empty
// means a local path.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindLocalPath:
		return KindLocalPath, nil
	case KindGitURL:
		return KindGitURL, nil
	case KindGitHubURL:
		return KindGitHubURL, nil
	}
	return "", fmt.Errorf("%w: %q (want local_path, git_url or github_url)", ErrUnsupportedKind, s)
}

// Remote reports whether the kind needs a clone
func (k Kind) Remote() bool {
	return k == KindGitURL || k == KindGitHubURL
}

// Config configures repository checkout
type Config struct {
	CloneTimeout time.Duration `mapstructure:"clone_timeout" yaml:"clone_timeout" json:"clone_timeout"`
}

// Checkout is a resolved repository root. Close removes the clone directory
// of remote sources and is a no-op for local paths.
type Checkout struct {
	Kind   Kind
	Source string
	Root   string

	temp   bool
	logger *logrus.Logger
}

// Close removes the temporary clone, if any. It is safe to call twice.
func (c *Checkout) Close() error {
	if c == nil || !c.temp {
		return nil
	}
	c.temp = false
	if err := os.RemoveAll(c.Root); err != nil {
		c.logger.WithError(err).WithField("dir", c.Root).Warn("Failed to remove clone directory")
		return err
	}
	c.logger.WithField("dir", c.Root).Debug("Removed clone directory")
	return nil
}

// Resolver turns a repository source into a local directory that discovery
// can walk
type Resolver struct {
	timeout time.Duration
	git     string
	logger  *logrus.Logger
}

// NewResolver creates a resolver. A zero CloneTimeout takes the default.
func NewResolver(cfg Config, logger *logrus.Logger) *Resolver {
	timeout := cfg.CloneTimeout
	if timeout <= 0 {
		timeout = DefaultCloneTimeout
	}
	return &Resolver{
		timeout: timeout,
		git:     "git",
		logger:  logging.OrDiscard(logger),
	}
}

// Resolve returns the checkout for value. Local paths are made absolute and
// must be directories. Git and GitHub sources are validated and shallow
// cloned into a new temporary directory; the caller must Close the checkout.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, value string) (*Checkout, error) {
	switch kind {
	case "", KindLocalPath:
		root, err := filepath.Abs(value)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve local path: %w", err)
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat local path: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("local path is not a directory: %s", root)
		}
		return &Checkout{Kind: KindLocalPath, Source: value, Root: root, logger: r.logger}, nil

	case KindGitURL:
		if err := validateGitURL(value); err != nil {
			return nil, err
		}
		return r.clone(ctx, kind, value)

	case KindGitHubURL:
		gitURL, err := githubCloneURL(value)
		if err != nil {
			return nil, err
		}
		return r.clone(ctx, kind, gitURL)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
}

func (r *Resolver) clone(ctx context.Context, kind Kind, gitURL string) (*Checkout, error) {
	dir, err := os.MkdirTemp("", "pyingest-clone-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create clone directory: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logURL := RedactURL(gitURL)
	log := r.logger.WithFields(logrus.Fields{"url": logURL, "dir": dir})
	log.Info("Cloning repository")
	start := time.Now()

	// #nosec G204 - gitURL is validated before reaching here
	cmd := exec.CommandContext(cloneCtx, r.git, "clone", "--depth", "1", "--quiet", "--", gitURL, dir)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.RemoveAll(dir)
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %s", ErrCloneTimeout, r.timeout, logURL)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("git clone failed: %s", msg)
	}

	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("Cloned repository")
	return &Checkout{Kind: kind, Source: gitURL, Root: dir, temp: true, logger: r.logger}, nil
}

// validateGitURL rejects URLs that are not https, ssh or file URLs, or that
// carry shell metacharacters or an embedded password
func validateGitURL(gitURL string) error {
	if gitURL == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if strings.HasPrefix(gitURL, "-") || unsafeURLPattern.MatchString(gitURL) {
		return fmt.Errorf("%w: contains unsafe characters", ErrInvalidURL)
	}

	switch {
	case strings.HasPrefix(gitURL, "http://"), strings.HasPrefix(gitURL, "https://"):
		parsed, err := url.Parse(gitURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%w: missing host", ErrInvalidURL)
		}
		if parsed.User != nil {
			if _, ok := parsed.User.Password(); ok {
				return fmt.Errorf("%w: embedded password", ErrInvalidURL)
			}
		}
		return nil
	case strings.HasPrefix(gitURL, "git@"), strings.HasPrefix(gitURL, "ssh://"):
		if !sshURLPattern.MatchString(gitURL) {
			return fmt.Errorf("%w: malformed ssh URL", ErrInvalidURL)
		}
		return nil
	case strings.HasPrefix(gitURL, "file://"):
		if len(gitURL) == len("file://") {
			return fmt.Errorf("%w: missing path", ErrInvalidURL)
		}
		return nil
	}
	return fmt.Errorf("%w: must be https://, git@, ssh:// or file://", ErrInvalidURL)
}

// githubCloneURL accepts owner/repo, an https github.com URL or a
// git@github.com: URL and returns the URL to clone
func githubCloneURL(value string) (string, error) {
	v := strings.TrimSuffix(strings.TrimSpace(value), "/")
	if githubRepoPath.MatchString(v) {
		return "https://github.com/" + v + ".git", nil
	}
	if err := validateGitURL(v); err != nil {
		return "", err
	}
	if strings.HasPrefix(v, "git@github.com:") {
		return v, nil
	}
	parsed, err := url.Parse(v)
	if err != nil || !strings.EqualFold(parsed.Host, "github.com") || parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: not a github.com repository: %s", ErrInvalidURL, value)
	}
	if !githubRepoPath.MatchString(strings.Trim(parsed.Path, "/")) {
		return "", fmt.Errorf("%w: expected https://github.com/OWNER/REPO: %s", ErrInvalidURL, value)
	}
	return v, nil
}

// RedactURL drops credentials and query parameters from a URL
func RedactURL(gitURL string) string {
	parsed, err := url.Parse(gitURL)
	if err != nil || parsed.Scheme == "" {
		return gitURL
	}
	parsed.RawQuery = ""
	if parsed.User != nil {
		parsed.User = url.User("***")
	}
	return parsed.String()
}
