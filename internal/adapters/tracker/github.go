package tracker

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/okian/workloop/internal/domain/attribution"
	"github.com/okian/workloop/internal/domain/model"
)

var _ attribution.Tracker = (*Client)(nil)

type timelineEvent struct {
	Event     string    `json:"event"`
	CommitID  string    `json:"commit_id"`
	CreatedAt time.Time `json:"created_at"`
}

type pull struct {
	Number   int        `json:"number"`
	HTMLURL  string     `json:"html_url"`
	Title    string     `json:"title"`
	Body     string     `json:"body"`
	MergedAt *time.Time `json:"merged_at"`
	ClosedAt *time.Time `json:"closed_at"`
}

type searchResult struct {
	Items []struct {
		Number      int        `json:"number"`
		HTMLURL     string     `json:"html_url"`
		ClosedAt    *time.Time `json:"closed_at"`
		PullRequest *struct {
			MergedAt *time.Time `json:"merged_at"`
		} `json:"pull_request"`
	} `json:"items"`
}

type comment struct {
	Body string `json:"body"`
}

// FindClosingSubmission follows the issue's last closing commit to the pull
// request that carried it. An unknown issue or a manual close yields nil.
// Several pulls for the commit yield attribution.ErrAmbiguousLinkage.
func (c *Client) FindClosingSubmission(ctx context.Context, itemID string) (*model.SubmissionRef, error) {
	issue, err := parseID(itemID)
	if err != nil {
		return nil, err
	}

	var events []timelineEvent
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/timeline", issue.owner, issue.repo, issue.number)
	if err := c.get(ctx, "timeline", path, url.Values{"per_page": {pageSize}}, &events); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	sha := ""
	for _, ev := range events {
		if ev.Event == "closed" && ev.CommitID != "" {
			sha = ev.CommitID
		}
	}
	if sha == "" {
		return nil, nil
	}

	var pulls []pull
	path = fmt.Sprintf("/repos/%s/%s/commits/%s/pulls", issue.owner, issue.repo, url.PathEscape(sha))
	if err := c.get(ctx, "commit_pulls", path, nil, &pulls); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	switch len(pulls) {
	case 0:
		return nil, nil
	case 1:
		p := pulls[0]
		return &model.SubmissionRef{
			ID:       ref{owner: issue.owner, repo: issue.repo, number: p.Number}.String(),
			URL:      p.HTMLURL,
			ClosedAt: closedAt(p.MergedAt, p.ClosedAt),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s: commit %s is in %d pulls", attribution.ErrAmbiguousLinkage, itemID, sha, len(pulls))
	}
}

// SearchSubmissionsReferencing returns closed pull requests in the item's
// repository whose text mentions #N.
func (c *Client) SearchSubmissionsReferencing(ctx context.Context, itemID string) ([]model.SubmissionRef, error) {
	issue, err := parseID(itemID)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`type:pr "#%d" repo:%s/%s`, issue.number, issue.owner, issue.repo)
	var res searchResult
	if err := c.get(ctx, "search", "/search/issues", url.Values{"q": {q}, "per_page": {pageSize}}, &res); err != nil {
		return nil, err
	}

	out := make([]model.SubmissionRef, 0, len(res.Items))
	for _, it := range res.Items {
		if it.ClosedAt == nil {
			continue
		}
		var merged *time.Time
		if it.PullRequest != nil {
			merged = it.PullRequest.MergedAt
		}
		out = append(out, model.SubmissionRef{
			ID:       ref{owner: issue.owner, repo: issue.repo, number: it.Number}.String(),
			URL:      it.HTMLURL,
			ClosedAt: closedAt(merged, it.ClosedAt),
		})
	}
	return out, nil
}

// GetSubmissionText returns the pull request's title, body and comments.
func (c *Client) GetSubmissionText(ctx context.Context, sub model.SubmissionRef) (model.SubmissionText, error) {
	pr, err := parseID(sub.ID)
	if err != nil {
		return model.SubmissionText{}, err
	}

	var p pull
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", pr.owner, pr.repo, pr.number)
	if err := c.get(ctx, "pull", path, nil, &p); err != nil {
		return model.SubmissionText{}, err
	}

	var comments []comment
	path = fmt.Sprintf("/repos/%s/%s/issues/%d/comments", pr.owner, pr.repo, pr.number)
	if err := c.get(ctx, "comments", path, url.Values{"per_page": {pageSize}}, &comments); err != nil {
		return model.SubmissionText{}, err
	}

	text := model.SubmissionText{Title: p.Title, Description: p.Body}
	for _, cm := range comments {
		text.Comments = append(text.Comments, cm.Body)
	}
	return text, nil
}

func closedAt(merged, closed *time.Time) time.Time {
	switch {
	case merged != nil:
		return merged.UTC()
	case closed != nil:
		return closed.UTC()
	default:
		return time.Time{}
	}
}
