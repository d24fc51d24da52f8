// container.go lists and removes build containers. A build container is
// normally removed by the builder as soon as the generator exits; the
// functions here let the prune command clean up after interrupted runs.
package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// ListBuildContainers returns every container carrying the pages-deploy
// managed-by label, stopped ones included, oldest first.
func ListBuildContainers(ctx context.Context, cli *Client) ([]model.BuildContainer, error) {
	filterArgs := filters.NewArgs()
	for key, value := range FilterLabels() {
		filterArgs.Add("label", key+"="+value)
	}

	containers, err := cli.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.BuildContainer, 0, len(containers))
	for _, c := range containers {
		result = append(result, summaryToBuildContainer(c))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// summaryToBuildContainer maps a container list entry to the domain
// model. Containers whose labels were edited by hand still appear, with
// the fields that could not be parsed left empty.
func summaryToBuildContainer(c types.Container) model.BuildContainer {
	bc := model.BuildContainer{}
	if parsed, err := ParseLabels(c.Labels); err == nil {
		bc = *parsed
	} else {
		bc.RepoRoot = c.Labels[LabelRepo]
		bc.HostingBranch = c.Labels[LabelBranch]
		bc.CreatedAt = time.Unix(c.Created, 0).UTC()
	}

	bc.ID = c.ID
	if len(c.Names) > 0 {
		bc.Name = strings.TrimPrefix(c.Names[0], "/")
	}
	bc.Status = string(c.State)
	return bc
}

// RemoveContainer removes a container by ID. With force, a running
// container is killed first.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.api.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}
