package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/pages-deploy/internal/config"
	"github.com/mmr-tortoise/pages-deploy/internal/git"
	"github.com/mmr-tortoise/pages-deploy/internal/model"
)

type initFlags struct {
	force bool // --force: overwrite an existing config file
}

// NewInitCommand creates the "init" cobra command.
func NewInitCommand() *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .pages-deploy.yml",
		Long: `Write a .pages-deploy.yml with the default settings to the repository root.

The defaults build "website" with jekyll into the gh-pages branch and push
it to origin. Edit the file to change the generator, the branch or the list
of local files kept across the branch switch.

Examples:
  pages-deploy init
  pages-deploy init --force`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Overwrite an existing config file")
	return cmd
}

func runInit(ctx context.Context, flags *initFlags) error {
	dir := repoDir
	if dir == "" {
		dir = "."
	}
	repoRoot, err := git.NewManager().RepoRoot(ctx, dir)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "not inside a Git repository", err)
	}

	path, err := writeDefaultConfig(repoRoot, flags.force)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]interface{}{
			"path":   path,
			"action": "created",
		}, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Created %s\n", path)
	}
	return nil
}

// writeDefaultConfig writes Default() to the first config file name in
// repoRoot. Any existing config file, in whichever format, blocks the
// write unless force is set.
func writeDefaultConfig(repoRoot string, force bool) (string, error) {
	if existing, ok := config.Find(repoRoot); ok && !force {
		return "", model.NewCLIError(
			model.ExitConfigError,
			fmt.Sprintf("%s already exists (use --force to overwrite)", existing),
		)
	}

	data, err := config.Marshal(config.Default())
	if err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError, "failed to generate config", err)
	}

	path := filepath.Join(repoRoot, config.FileNames[0])
	if err := config.Write(path, data); err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to write %s", path), err)
	}
	return path, nil
}
