package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/repo_sync/gitops/git"
)

const defaultGraphQLURL = "https://api.github.com/graphql"

// Config holds the settings needed to create a GitHub
// host.
type Config struct {
	// AccessToken is a personal access token or
	// GitHub App token used for authentication.
	AccessToken string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
	// BaseURL overrides the REST endpoint. It must
	// end with a slash.
	BaseURL string
	// GraphQLURL overrides the GraphQL endpoint.
	GraphQLURL string
}

// Host talks to GitHub.
//
// Pattern: Strategy -- implements git.Host.
type Host struct {
	client  *gh.Client
	graphql *graphQLClient
}

var _ git.Host = (*Host)(nil)

// NewHost validates cfg and returns a Host.
func NewHost(cfg Config) (*Host, error) {
	const errCtx = "creating github host"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	client := gh.NewClient(nil).
		WithAuthToken(cfg.AccessToken)

	graphQLURL := defaultGraphQLURL

	if cfg.EnterpriseHost != "" {
		baseURL := "https://" +
			cfg.EnterpriseHost + "/api/v3/"
		uploadURL := "https://" +
			cfg.EnterpriseHost + "/api/uploads/"

		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: enterprise urls: %w",
				errCtx, err,
			)
		}

		graphQLURL = "https://" +
			cfg.EnterpriseHost + "/api/graphql"
	}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: base url: %w", errCtx, err,
			)
		}

		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}

		client.BaseURL = u
	}

	if cfg.GraphQLURL != "" {
		graphQLURL = cfg.GraphQLURL
	}

	return &Host{
		client: client,
		graphql: &graphQLClient{
			http: client.Client(),
			url:  graphQLURL,
		},
	}, nil
}

// GetRepository implements git.Host.
func (h *Host) GetRepository(
	ctx context.Context,
	owner string,
	name string,
) (git.Repository, error) {
	const errCtx = "getting github repository"

	repo, resp, err := h.client.Repositories.Get(
		ctx, owner, name,
	)
	if err != nil {
		return git.Repository{}, fmt.Errorf(
			"%s: %s/%s: %w",
			errCtx, owner, name, restError(resp, err),
		)
	}

	return fromREST(repo), nil
}

// LookupAccount implements git.Host.
func (h *Host) LookupAccount(
	ctx context.Context,
	owner string,
	kind git.AccountKind,
) error {
	const errCtx = "looking up github account"

	var (
		resp *gh.Response
		err  error
	)

	switch kind {
	case git.Organization:
		_, resp, err = h.client.Organizations.Get(ctx, owner)
	case git.User:
		_, resp, err = h.client.Users.Get(ctx, owner)
	default:
		return fmt.Errorf(
			"%s: unknown account kind %d", errCtx, kind,
		)
	}

	if err != nil {
		return fmt.Errorf(
			"%s: %s %s: %w",
			errCtx, kind, owner, restError(resp, err),
		)
	}

	return nil
}

// GetFileContent implements git.Host.
func (h *Host) GetFileContent(
	ctx context.Context,
	owner string,
	repo string,
	ref string,
	path string,
) ([]byte, error) {
	const errCtx = "getting github file content"

	file, dir, resp, err := h.client.Repositories.GetContents(
		ctx, owner, repo, path,
		&gh.RepositoryContentGetOptions{Ref: ref},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s/%s:%s: %w",
			errCtx, owner, repo, path, restError(resp, err),
		)
	}

	if file == nil || dir != nil {
		return nil, fmt.Errorf(
			"%s: %s/%s:%s is a directory",
			errCtx, owner, repo, path,
		)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf(
			"%s: decode %s: %w", errCtx, path, err,
		)
	}

	return []byte(content), nil
}

// CreateBranch implements git.Host.
func (h *Host) CreateBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
	fromRef string,
) error {
	const errCtx = "creating github branch"

	base, resp, err := h.client.Git.GetRef(
		ctx, owner, repo, "heads/"+fromRef,
	)
	if err != nil {
		return fmt.Errorf(
			"%s: resolve %s: %w",
			errCtx, fromRef, restError(resp, err),
		)
	}

	_, resp, err = h.client.Git.CreateRef(
		ctx, owner, repo,
		&gh.Reference{
			Ref: gh.Ptr("refs/heads/" + name),
			Object: &gh.GitObject{
				SHA: gh.Ptr(base.GetObject().GetSHA()),
			},
		},
	)
	if err == nil {
		return nil
	}

	// HTTP 422: Reference already exists.
	if resp != nil &&
		resp.StatusCode ==
			http.StatusUnprocessableEntity {
		return fmt.Errorf(
			"%s: %s: %w: %w",
			errCtx, name, git.ErrAlreadyExists, err,
		)
	}

	return fmt.Errorf(
		"%s: %s: %w", errCtx, name, restError(resp, err),
	)
}

// restError tags a REST failure with a git sentinel
// when the status code has one.
func restError(resp *gh.Response, err error) error {
	if resp == nil {
		var ghErr *gh.ErrorResponse
		if !errors.As(err, &ghErr) || ghErr.Response == nil {
			return err
		}

		resp = &gh.Response{Response: ghErr.Response}
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", git.ErrNotFound, err)
	}

	return err
}

func fromREST(r *gh.Repository) git.Repository {
	return git.Repository{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		URL:           r.GetHTMLURL(),
		ID:            r.GetNodeID(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		Fork:          r.GetFork(),
		Archived:      r.GetArchived(),
		Topics:        r.Topics,
	}
}
