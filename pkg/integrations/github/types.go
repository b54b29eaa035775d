package github

import "time"

// Repository is the repository metadata the analyzer records.
type Repository struct {
	FullName      string        `json:"fullName"`
	Description   string        `json:"description,omitempty"`
	Homepage      string        `json:"homepage,omitempty"`
	DefaultBranch string        `json:"defaultBranch,omitempty"`
	Stars         int           `json:"starsCount"`
	Forks         int           `json:"forksCount"`
	Subscribers   int           `json:"subscribersCount"`
	OpenIssues    int           `json:"openIssuesCount"`
	Fork          bool          `json:"fork"`
	Archived      bool          `json:"archived"`
	CreatedAt     *time.Time    `json:"createdAt,omitempty"`
	PushedAt      *time.Time    `json:"pushedAt,omitempty"`
	Contributors  []Contributor `json:"contributors,omitempty"`
}

// Contributor is a repository contributor with their commit count.
type Contributor struct {
	Login         string `json:"username"`
	Contributions int    `json:"commitsCount"`
}

type repoResponse struct {
	FullName      string     `json:"full_name"`
	Description   string     `json:"description"`
	Homepage      string     `json:"homepage"`
	DefaultBranch string     `json:"default_branch"`
	Stars         int        `json:"stargazers_count"`
	Forks         int        `json:"forks_count"`
	Subscribers   int        `json:"subscribers_count"`
	OpenIssues    int        `json:"open_issues_count"`
	Fork          bool       `json:"fork"`
	Archived      bool       `json:"archived"`
	CreatedAt     *time.Time `json:"created_at"`
	PushedAt      *time.Time `json:"pushed_at"`
}

type contributorResponse struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
	Type          string `json:"type"`
}
