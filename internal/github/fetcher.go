package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v81/github"
)

// Upstream repository defaults.
const (
	DefaultOwner       = "edward-playground"
	DefaultRepo        = "aidefense-framework"
	DefaultBranch      = "main"
	DefaultTacticsPath = "tactics"
)

// Manifest describes one consistent snapshot of the corpus: the commit it
// was taken at and the member files that existed at that commit.
type Manifest struct {
	Commit  string
	Members []Member
}

// Member is a single corpus module file within a manifest.
type Member struct {
	Path       string // path within the repository
	TacticName string // derived from the file name, e.g. "harden"
}

// FetchedModule is the raw source of one corpus member, pinned to the
// manifest commit.
type FetchedModule struct {
	Member
	Commit string
	Source []byte
	SHA    string // Git blob SHA
}

// Fetcher retrieves corpus manifests and member files from GitHub. All
// member reads are pinned to the manifest commit so a sync always observes
// one consistent snapshot even if upstream moves mid-run.
type Fetcher struct {
	client      *Client
	owner       string
	repo        string
	branch      string
	tacticsPath string
}

// NewFetcher creates a corpus fetcher for the given repository coordinates.
func NewFetcher(client *Client, owner, repo, branch, tacticsPath string) *Fetcher {
	return &Fetcher{
		client:      client,
		owner:       owner,
		repo:        repo,
		branch:      branch,
		tacticsPath: tacticsPath,
	}
}

// FetchManifest resolves the latest commit touching the tactics directory
// and lists the ".js" members present at that commit. Members are returned
// in lexicographic path order so manifests are comparable across runs.
func (f *Fetcher) FetchManifest(ctx context.Context) (*Manifest, error) {
	commit, err := f.latestCommitSHA(ctx)
	if err != nil {
		return nil, err
	}

	var dirContents []*github.RepositoryContent
	op := func() error {
		var opErr error
		_, dirContents, _, opErr = f.client.Repositories.GetContents(
			ctx,
			f.owner,
			f.repo,
			f.tacticsPath,
			&github.RepositoryContentGetOptions{Ref: commit},
		)
		return retryable(opErr)
	}
	if err := backoff.Retry(op, retryPolicy(ctx)); err != nil {
		return nil, fmt.Errorf("failed to list %s at %s: %w", f.tacticsPath, shortCommit(commit), err)
	}

	members := make([]Member, 0, len(dirContents))
	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil || *item.Type != "file" {
			continue
		}
		if !strings.HasSuffix(*item.Name, ".js") {
			continue
		}
		members = append(members, Member{
			Path:       path.Join(f.tacticsPath, *item.Name),
			TacticName: tacticNameFromFile(*item.Name),
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Path < members[j].Path })

	return &Manifest{Commit: commit, Members: members}, nil
}

// FetchMember downloads one member's source at the manifest commit.
func (f *Fetcher) FetchMember(ctx context.Context, manifest *Manifest, member Member) (*FetchedModule, error) {
	var fileContent *github.RepositoryContent
	op := func() error {
		var opErr error
		fileContent, _, _, opErr = f.client.Repositories.GetContents(
			ctx,
			f.owner,
			f.repo,
			member.Path,
			&github.RepositoryContentGetOptions{Ref: manifest.Commit},
		)
		return retryable(opErr)
	}
	if err := backoff.Retry(op, retryPolicy(ctx)); err != nil {
		return nil, fmt.Errorf("failed to get content of %s at %s: %w", member.Path, shortCommit(manifest.Commit), err)
	}

	if fileContent == nil || fileContent.Content == nil {
		return nil, fmt.Errorf("no file content returned for %s", member.Path)
	}

	source, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", member.Path, err)
	}

	sha := ""
	if fileContent.SHA != nil {
		sha = *fileContent.SHA
	}

	return &FetchedModule{
		Member: member,
		Commit: manifest.Commit,
		Source: source,
		SHA:    sha,
	}, nil
}

// latestCommitSHA retrieves the SHA of the most recent commit on the
// configured branch that touches the tactics directory.
func (f *Fetcher) latestCommitSHA(ctx context.Context) (string, error) {
	var commits []*github.RepositoryCommit
	op := func() error {
		var opErr error
		commits, _, opErr = f.client.Repositories.ListCommits(
			ctx,
			f.owner,
			f.repo,
			&github.CommitsListOptions{
				SHA:  f.branch,
				Path: f.tacticsPath,
				ListOptions: github.ListOptions{
					PerPage: 1,
				},
			},
		)
		return retryable(opErr)
	}
	if err := backoff.Retry(op, retryPolicy(ctx)); err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}

	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.tacticsPath)
	}
	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}

	return *commits[0].SHA, nil
}

// tacticNameFromFile maps "harden.js" to "harden". Underscores and hyphens
// become spaces so multi-word tactic files read naturally.
func tacticNameFromFile(name string) string {
	base := strings.TrimSuffix(name, ".js")
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return base
}

func shortCommit(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

// retryable classifies API errors: 4xx responses other than 429 will not
// improve on retry, everything else might.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		if code >= 400 && code < 500 && code != 429 {
			return backoff.Permanent(err)
		}
	}
	return err
}

func retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Minute
	return backoff.WithContext(policy, ctx)
}
