// Package deploy implements the publish workflow: build the site, switch
// to the hosting branch, replace its contents with the build output,
// commit, push, and return to the starting branch.
//
// The Orchestrator talks to git and to the site generator only through
// the VersionControl and SiteBuilder interfaces, so the workflow can be
// exercised against fakes. Every step's result is checked. Once the
// working tree has been touched, any failure (or an interrupt delivered
// through the context) triggers a rollback that returns to the starting
// branch and restores the stashed files before the error is reported.
package deploy
