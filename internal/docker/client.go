package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// pingTimeout bounds the daemon health check. Docker Desktop on macOS can
// take a few seconds to answer after waking up.
const pingTimeout = 5 * time.Second

// windowsPipe is the Docker Desktop named pipe. Named pipes cannot be
// checked with os.Stat, so the ping reports a missing daemon instead.
const windowsPipe = "npipe:////./pipe/docker_engine"

// Client is a live connection to the Docker daemon that runs build
// containers. Obtain one with Connect; the zero value is not usable.
type Client struct {
	api  *client.Client
	host string
}

// Connect opens a client for the local daemon and checks that it answers.
// Every failure is a model.CLIError with ExitDockerNotRunning, so callers
// can return it unchanged.
//
// The daemon address is, in order:
//  1. DOCKER_HOST when set
//  2. the first existing socket of the platform (see socketPaths)
//  3. the Docker Desktop named pipe on Windows
func Connect(ctx context.Context) (*Client, error) {
	home, _ := os.UserHomeDir()
	host, err := resolveHost(os.Getenv("DOCKER_HOST"), runtime.GOOS, home, socketExists)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "Docker socket not found", err)
	}

	api, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("cannot create Docker client for %s", host),
			err,
		)
	}
	c := &Client{api: api, host: host}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := api.Ping(pingCtx); err != nil {
		_ = c.Close()
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("Docker daemon at %s is not responding (is Docker running?)", host),
			err,
		)
	}
	return c, nil
}

// Host returns the daemon address the client is connected to.
func (c *Client) Host() string {
	return c.host
}

// Close releases the connection. It is safe to call more than once.
func (c *Client) Close() error {
	if c.api == nil {
		return nil
	}
	return c.api.Close()
}

// resolveHost picks the daemon address. exists reports whether a socket
// file is present.
func resolveHost(env, goos, home string, exists func(string) bool) (string, error) {
	if env != "" {
		return env, nil
	}
	if goos == "windows" {
		return windowsPipe, nil
	}

	paths := socketPaths(goos, home)
	if len(paths) == 0 {
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}
	for _, path := range paths {
		if exists(path) {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("no Docker socket at %v (is Docker running?)", paths)
}

// socketPaths lists the unix sockets a local daemon listens on.
func socketPaths(goos, home string) []string {
	switch goos {
	case "linux":
		return []string{"/var/run/docker.sock"}
	case "darwin":
		paths := []string{"/var/run/docker.sock"}
		if home != "" {
			paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
		}
		return paths
	default:
		return nil
	}
}

func socketExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
