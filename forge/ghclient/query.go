package ghclient

// snapshotQuery fetches the repository's open pull requests (GetSnapshot
// then keeps the viewer's own) together with enough commit metadata
// (message body, head oid, status rollup) to let matchStack rebuild the
// local stack's view
// of the forge. It is hand-written instead of genqlient-generated: the
// generator needs a schema fetch and a go:generate step this repo does
// not carry, so the runtime graphql.Client is driven directly with a
// literal document.
const snapshotQuery = `
query StackSnapshot($owner: String!, $name: String!) {
  viewer {
    login
  }
  repository(owner: $owner, name: $name) {
    id
    pullRequests(states: OPEN, first: 100, orderBy: {field: CREATED_AT, direction: ASC}) {
      nodes {
        id
        databaseId
        number
        title
        body
        baseRefName
        headRefName
        mergeable
        reviewDecision
        mergeQueueEntry {
          id
        }
        author {
          login
        }
        commits(last: 1) {
          nodes {
            commit {
              oid
              messageHeadline
              messageBody
              statusCheckRollup {
                state
              }
            }
          }
        }
      }
    }
  }
}
`

type snapshotResponse struct {
	Viewer struct {
		Login string `json:"login"`
	} `json:"viewer"`
	Repository struct {
		ID           string `json:"id"`
		PullRequests struct {
			Nodes []snapshotPRNode `json:"nodes"`
		} `json:"pullRequests"`
	} `json:"repository"`
}

type snapshotPRNode struct {
	ID              string `json:"id"`
	DatabaseID      int64  `json:"databaseId"`
	Number          int    `json:"number"`
	Title           string `json:"title"`
	Body            string `json:"body"`
	BaseRefName     string `json:"baseRefName"`
	HeadRefName     string `json:"headRefName"`
	Mergeable       string `json:"mergeable"`
	ReviewDecision  string `json:"reviewDecision"`
	MergeQueueEntry *struct {
		ID string `json:"id"`
	} `json:"mergeQueueEntry"`
	Author struct {
		Login string `json:"login"`
	} `json:"author"`
	Commits struct {
		Nodes []struct {
			Commit struct {
				Oid             string `json:"oid"`
				MessageHeadline string `json:"messageHeadline"`
				MessageBody     string `json:"messageBody"`
				StatusCheckRollup *struct {
					State string `json:"state"`
				} `json:"statusCheckRollup"`
			} `json:"commit"`
		} `json:"nodes"`
	} `json:"commits"`
}

const enableAutoMergeMutation = `
mutation EnablePullRequestAutoMerge($pullRequestId: ID!, $mergeMethod: PullRequestMergeMethod!) {
  enablePullRequestAutoMerge(input: {pullRequestId: $pullRequestId, mergeMethod: $mergeMethod}) {
    clientMutationId
  }
}
`

const assignableUsersQuery = `
query AssignableUsers($owner: String!, $name: String!, $after: String) {
  repository(owner: $owner, name: $name) {
    assignableUsers(first: 100, after: $after) {
      nodes {
        id
        login
        name
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}
`

type assignableUsersResponse struct {
	Repository struct {
		AssignableUsers struct {
			Nodes []struct {
				ID    string `json:"id"`
				Login string `json:"login"`
				Name  string `json:"name"`
			} `json:"nodes"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"assignableUsers"`
	} `json:"repository"`
}
