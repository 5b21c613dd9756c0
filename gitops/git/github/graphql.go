package github

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/repo_sync/gitops/git"
)

const listRepositoriesQuery = `
query($owner: String!, $first: Int!, $after: String) {
  repositoryOwner(login: $owner) {
    repositories(first: $first, after: $after, orderBy: {field: NAME, direction: ASC}) {
      nodes {
        id
        name
        url
        isPrivate
        isFork
        isArchived
        owner { login }
        defaultBranchRef { name }
        repositoryTopics(first: 50) { nodes { topic { name } } }
      }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

const branchHeadQuery = `
query($owner: String!, $name: String!, $ref: String!) {
  repository(owner: $owner, name: $name) {
    id
    ref(qualifiedName: $ref) { target { oid } }
  }
}`

const createCommitMutation = `
mutation($input: CreateCommitOnBranchInput!) {
  createCommitOnBranch(input: $input) { commit { oid url } }
}`

const createPullRequestMutation = `
mutation($input: CreatePullRequestInput!) {
  createPullRequest(input: $input) { pullRequest { url } }
}`

// graphQLClient posts queries with the authenticated
// client of the REST API.
type graphQLClient struct {
	http *http.Client
	url  string
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// do runs query and decodes its data into out.
func (c *graphQLClient) do(
	ctx context.Context,
	query string,
	vars map[string]any,
	out any,
) error {
	const errCtx = "calling github graphql"

	payload, err := json.Marshal(graphQLRequest{
		Query:     query,
		Variables: vars,
	})
	if err != nil {
		return fmt.Errorf(
			"%s: marshal request: %w", errCtx, err,
		)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.url,
		bytes.NewBuffer(payload),
	)
	if err != nil {
		return fmt.Errorf(
			"%s: build request: %w", errCtx, err,
		)
	}

	req.Header.Set(
		"Content-Type",
		"application/json; charset=utf-8",
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf(
			"%s: send request: %w", errCtx, err,
		)
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf(
			"%s: read response: %w", errCtx, err,
		)
	}

	if resp.StatusCode != http.StatusOK {
		return classify(fmt.Errorf(
			"%s: %s: %s", errCtx, resp.Status, rb,
		), string(rb))
	}

	var gr graphQLResponse

	if err := json.Unmarshal(rb, &gr); err != nil {
		return fmt.Errorf(
			"%s: decode response: %w", errCtx, err,
		)
	}

	if len(gr.Errors) > 0 {
		msgs := make([]string, 0, len(gr.Errors))
		notFound := false

		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
			notFound = notFound || e.Type == "NOT_FOUND"
		}

		msg := strings.Join(msgs, "; ")
		err := fmt.Errorf("%s: %s", errCtx, msg)

		if notFound {
			return fmt.Errorf("%w: %w", git.ErrNotFound, err)
		}

		return classify(err, msg)
	}

	if out == nil || len(gr.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf(
			"%s: decode data: %w", errCtx, err,
		)
	}

	return nil
}

// classify tags throttling failures.
func classify(err error, msg string) error {
	if strings.Contains(
		strings.ToLower(msg), "was submitted too quickly",
	) {
		return fmt.Errorf(
			"%w: %w", git.ErrSubmittedTooQuickly, err,
		)
	}

	return err
}

type repositoryNode struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	IsPrivate  bool   `json:"isPrivate"`
	IsFork     bool   `json:"isFork"`
	IsArchived bool   `json:"isArchived"`
	Owner      struct {
		Login string `json:"login"`
	} `json:"owner"`
	DefaultBranchRef *struct {
		Name string `json:"name"`
	} `json:"defaultBranchRef"`
	RepositoryTopics struct {
		Nodes []struct {
			Topic struct {
				Name string `json:"name"`
			} `json:"topic"`
		} `json:"nodes"`
	} `json:"repositoryTopics"`
}

func (n repositoryNode) repository() git.Repository {
	r := git.Repository{
		Owner:    n.Owner.Login,
		Name:     n.Name,
		URL:      n.URL,
		ID:       n.ID,
		Private:  n.IsPrivate,
		Fork:     n.IsFork,
		Archived: n.IsArchived,
	}

	if n.DefaultBranchRef != nil {
		r.DefaultBranch = n.DefaultBranchRef.Name
	}

	for _, t := range n.RepositoryTopics.Nodes {
		r.Topics = append(r.Topics, t.Topic.Name)
	}

	return r
}

// ListRepositories implements git.Host. The owner
// query serves organisations and users alike;
// repositories owned by someone else are dropped.
func (h *Host) ListRepositories(
	ctx context.Context,
	owner string,
	_ git.AccountKind,
	cursor string,
	pageSize int,
) (git.RepositoryPage, error) {
	const errCtx = "listing github repositories"

	vars := map[string]any{
		"owner": owner,
		"first": pageSize,
	}

	if cursor != "" {
		vars["after"] = cursor
	}

	var data struct {
		RepositoryOwner *struct {
			Repositories struct {
				Nodes    []repositoryNode `json:"nodes"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"repositories"`
		} `json:"repositoryOwner"`
	}

	err := h.graphql.do(ctx, listRepositoriesQuery, vars, &data)
	if err != nil {
		return git.RepositoryPage{}, fmt.Errorf(
			"%s: %s: %w", errCtx, owner, err,
		)
	}

	if data.RepositoryOwner == nil {
		return git.RepositoryPage{}, fmt.Errorf(
			"%s: %s: %w", errCtx, owner, git.ErrNotFound,
		)
	}

	repos := data.RepositoryOwner.Repositories

	var page git.RepositoryPage

	for _, n := range repos.Nodes {
		if !strings.EqualFold(n.Owner.Login, owner) {
			continue
		}

		page.Repositories = append(
			page.Repositories, n.repository(),
		)
	}

	if repos.PageInfo.HasNextPage {
		page.Next = repos.PageInfo.EndCursor
	}

	return page, nil
}

// GetBranchHead implements git.Host. A branch that is
// not visible yet yields git.ErrEmptyResult.
func (h *Host) GetBranchHead(
	ctx context.Context,
	owner string,
	repo string,
	branch string,
) (git.BranchHead, error) {
	const errCtx = "getting github branch head"

	var data struct {
		Repository *struct {
			ID  string `json:"id"`
			Ref *struct {
				Target struct {
					OID string `json:"oid"`
				} `json:"target"`
			} `json:"ref"`
		} `json:"repository"`
	}

	err := h.graphql.do(
		ctx,
		branchHeadQuery,
		map[string]any{
			"owner": owner,
			"name":  repo,
			"ref":   "refs/heads/" + branch,
		},
		&data,
	)
	if err != nil {
		return git.BranchHead{}, fmt.Errorf(
			"%s: %s/%s@%s: %w", errCtx, owner, repo, branch, err,
		)
	}

	if data.Repository == nil ||
		data.Repository.Ref == nil ||
		data.Repository.Ref.Target.OID == "" {
		return git.BranchHead{}, fmt.Errorf(
			"%s: %s/%s@%s: %w",
			errCtx, owner, repo, branch, git.ErrEmptyResult,
		)
	}

	return git.BranchHead{
		OID:    data.Repository.Ref.Target.OID,
		RepoID: data.Repository.ID,
	}, nil
}

type fileAddition struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

type fileDeletion struct {
	Path string `json:"path"`
}

type commitInput struct {
	Branch struct {
		RepositoryNameWithOwner string `json:"repositoryNameWithOwner"`
		BranchName              string `json:"branchName"`
	} `json:"branch"`
	Message struct {
		Headline string `json:"headline"`
		Body     string `json:"body,omitempty"`
	} `json:"message"`
	ExpectedHeadOID string `json:"expectedHeadOid"`
	FileChanges     struct {
		Additions []fileAddition `json:"additions,omitempty"`
		Deletions []fileDeletion `json:"deletions,omitempty"`
	} `json:"fileChanges"`
}

// CommitFileChanges implements git.Host. A mutation
// that answers without a commit yields
// git.ErrEmptyResult.
func (h *Host) CommitFileChanges(
	ctx context.Context,
	req git.CommitRequest,
) (string, error) {
	const errCtx = "committing to github"

	var in commitInput

	in.Branch.RepositoryNameWithOwner = req.Owner + "/" + req.Repo
	in.Branch.BranchName = req.Branch
	in.Message.Headline = req.Headline
	in.Message.Body = req.Body
	in.ExpectedHeadOID = req.ExpectedHeadOID

	for _, a := range req.Changes.Additions {
		in.FileChanges.Additions = append(
			in.FileChanges.Additions,
			fileAddition{
				Path:     a.DestinationPath,
				Contents: a.Content,
			},
		)
	}

	for _, d := range req.Changes.Deletions {
		in.FileChanges.Deletions = append(
			in.FileChanges.Deletions,
			fileDeletion{Path: d.DestinationPath},
		)
	}

	var data struct {
		CreateCommitOnBranch *struct {
			Commit *struct {
				OID string `json:"oid"`
				URL string `json:"url"`
			} `json:"commit"`
		} `json:"createCommitOnBranch"`
	}

	err := h.graphql.do(
		ctx,
		createCommitMutation,
		map[string]any{"input": in},
		&data,
	)
	if err != nil {
		return "", fmt.Errorf(
			"%s: %s/%s@%s: %w",
			errCtx, req.Owner, req.Repo, req.Branch, err,
		)
	}

	if data.CreateCommitOnBranch == nil ||
		data.CreateCommitOnBranch.Commit == nil {
		return "", fmt.Errorf(
			"%s: %s/%s@%s: %w",
			errCtx, req.Owner, req.Repo, req.Branch,
			git.ErrEmptyResult,
		)
	}

	return data.CreateCommitOnBranch.Commit.URL, nil
}

type pullRequestInput struct {
	RepositoryID string `json:"repositoryId"`
	BaseRefName  string `json:"baseRefName"`
	HeadRefName  string `json:"headRefName"`
	Title        string `json:"title"`
	Body         string `json:"body"`
}

// CreatePullRequest implements git.Host.
func (h *Host) CreatePullRequest(
	ctx context.Context,
	req git.PullRequestRequest,
) (string, error) {
	const errCtx = "creating github pull request"

	var data struct {
		CreatePullRequest *struct {
			PullRequest *struct {
				URL string `json:"url"`
			} `json:"pullRequest"`
		} `json:"createPullRequest"`
	}

	err := h.graphql.do(
		ctx,
		createPullRequestMutation,
		map[string]any{
			"input": pullRequestInput{
				RepositoryID: req.RepoID,
				BaseRefName:  req.Base,
				HeadRefName:  req.Branch,
				Title:        req.Title,
				Body:         req.Body,
			},
		},
		&data,
	)
	if err != nil {
		return "", fmt.Errorf(
			"%s: %s/%s: %w", errCtx, req.Owner, req.Repo, err,
		)
	}

	if data.CreatePullRequest == nil ||
		data.CreatePullRequest.PullRequest == nil {
		return "", fmt.Errorf(
			"%s: %s/%s: %w",
			errCtx, req.Owner, req.Repo, git.ErrEmptyResult,
		)
	}

	return data.CreatePullRequest.PullRequest.URL, nil
}
