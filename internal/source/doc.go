// Package source resolves where a repository comes from before discovery
// walks it.
//
// A local_path source is used in place. git_url and github_url sources are
// shallow cloned (git clone --depth 1) into a temporary directory under a
// timeout; the returned Checkout removes that directory on Close. github_url
// also accepts the OWNER/REPO shorthand.
package source
