// Package docker runs the static-site generator inside a container so that
// publishing does not require Ruby, Jekyll or Hugo on the host.
//
// This package handles:
//   - Connecting to the local daemon (DOCKER_HOST or the platform socket)
//   - The container site builder: image pull, bind mounts for the source
//     and output directories, log streaming, exit status check, removal
//   - Labels identifying build containers, so containers left behind by an
//     interrupted run can be listed and pruned
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
