package githubclt

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"
)

type queryReviewAuthor struct {
	Login string
	User  struct {
		Name  string
		Email string
	} `graphql:"... on User"`
}

// ApprovedReviewerTrailers returns one "Signed-off-by:" trailer line per
// distinct reviewer that approved the pull request, in review order.
// Reviewers without a public name or email are attributed via their login
// and the github noreply address.
func (clt *Client) ApprovedReviewerTrailers(ctx context.Context, owner, repo string, prNumber int) ([]string, error) {
	type graphQLQueryReviews struct {
		Repository struct {
			PullRequest struct {
				Reviews struct {
					PageInfo struct {
						EndCursor   githubv4.String
						HasNextPage bool
					}
					Nodes []struct {
						Author queryReviewAuthor
					}
				} `graphql:"reviews(states: APPROVED, first: $reviewsFirst, after: $reviewsAfter)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	vars := map[string]any{
		"owner":        githubv4.String(owner),
		"name":         githubv4.String(repo),
		"number":       githubv4.Int(prNumber),
		"reviewsFirst": githubv4.Int(100),
		"reviewsAfter": (*githubv4.String)(nil),
	}

	var result []string
	seen := map[string]struct{}{}

	for {
		var q graphQLQueryReviews

		err := clt.graphQLClt.Query(ctx, &q, vars)
		if err != nil {
			return nil, clt.wrapGraphQLRetryableErrors(err)
		}

		for _, node := range q.Repository.PullRequest.Reviews.Nodes {
			author := node.Author
			if author.Login == "" {
				continue
			}

			if _, exists := seen[author.Login]; exists {
				continue
			}
			seen[author.Login] = struct{}{}

			result = append(result, signOffTrailer(&author))
		}

		pageInfo := q.Repository.PullRequest.Reviews.PageInfo
		if !pageInfo.HasNextPage {
			return result, nil
		}

		if pageInfo.EndCursor == "" {
			return nil, fmt.Errorf("retrieving all reviews failed, HasNextPage is set but EndCursor is empty")
		}

		vars["reviewsAfter"] = pageInfo.EndCursor
	}
}

func signOffTrailer(author *queryReviewAuthor) string {
	name := author.User.Name
	if name == "" {
		name = author.Login
	}

	email := author.User.Email
	if email == "" {
		email = author.Login + "@users.noreply.github.com"
	}

	return fmt.Sprintf("Signed-off-by: %s <%s>", name, email)
}
