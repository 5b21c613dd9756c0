// Package github implements git.Host on GitHub (cloud or enterprise).
// Account lookup, repository metadata, file contents and branch creation
// go through the REST API; repository listing, branch heads, commits and
// pull requests go through the GraphQL API so a commit can be made against
// an expected head oid. Configure with a Config holding the access token
// and, for GitHub Enterprise installations, the EnterpriseHost.
package github
