// Package gitlab implements git.Host on GitLab. Groups play the role of
// organisations, projects the role of repositories and merge requests the
// role of pull requests.
package gitlab
