// Package git provides the version-control operations used by the
// pages-deploy workflow.
//
// All Git operations are performed via the git binary (through
// internal/runner), rather than using a Git library like go-git. This approach:
//   - Uses the exact same Git behavior, hooks and credentials the user has
//     in their terminal, which matters for `git push`
//   - Supports orphan branch creation, which go-git does not expose
//   - Keeps the repository path explicit: every command is run with
//     `git -C <repo>` instead of depending on the process working directory
//
// The Manager struct implements the deploy.VersionControl interface.
package git
