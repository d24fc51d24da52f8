package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

// Label keys stored on build containers. They are the only record of a
// build container; there is no state file.
const (
	// LabelPrefix namespaces every pages-deploy label.
	LabelPrefix = "pages-deploy."

	// LabelManagedBy identifies containers created by pages-deploy.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRepo stores the absolute path of the repository being built.
	LabelRepo = LabelPrefix + "repo"

	// LabelBranch stores the hosting branch the build is destined for.
	LabelBranch = LabelPrefix + "branch"

	// LabelGenerator stores the generator name (jekyll, hugo, command).
	LabelGenerator = LabelPrefix + "generator"

	// LabelCreatedAt stores the RFC3339 creation timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy on every build container.
const ManagedByValue = "pages-deploy"

// BuildLabels returns the labels for a build container.
func BuildLabels(bc *model.BuildContainer) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRepo:      bc.RepoRoot,
		LabelBranch:    bc.HostingBranch,
		LabelGenerator: bc.Generator.String(),
		LabelCreatedAt: bc.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reconstructs the label-derived fields of a BuildContainer.
// ID, Name and Status come from the container itself and are left empty.
func ParseLabels(labels map[string]string) (*model.BuildContainer, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelRepo,
		LabelBranch,
		LabelGenerator,
		LabelCreatedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	gen, err := model.ParseGenerator(labels[LabelGenerator])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelGenerator, err)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &model.BuildContainer{
		RepoRoot:      labels[LabelRepo],
		HostingBranch: labels[LabelBranch],
		Generator:     gen,
		CreatedAt:     createdAt,
	}, nil
}

// FilterLabels returns the label selector matching pages-deploy containers.
func FilterLabels() map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
	}
}
