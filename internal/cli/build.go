package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewBuildCmd создаёт группу команд для управления сборками.
func NewBuildCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Manage deployment builds",
	}

	cmd.AddCommand(
		newBuildStartCmd(clientFn, outputFn),
		newBuildShowCmd(clientFn, outputFn),
		newBuildCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newBuildStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var retry bool
	var tmpl TemplateRequest

	cmd := &cobra.Command{
		Use:   "start FUNCTION_ID DEPLOYMENT_ID",
		Short: "Queue a build of a deployment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateBuildRequest{Retry: retry}
			if tmpl.Owner != "" || tmpl.Repository != "" {
				if tmpl.Owner == "" || tmpl.Repository == "" {
					return fmt.Errorf("--template-owner and --template-repo must be set together")
				}
				req.Template = &tmpl
			}

			queued, err := client.CreateBuild(args[0], args[1], req)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"TYPE", "FUNCTION_ID", "DEPLOYMENT_ID", "BUILD_ID"},
				[][]string{{queued.Type, queued.FunctionID, queued.DeploymentID, queued.BuildID}},
				queued,
			)
			out.Success("Build queued")
			return nil
		},
	}

	cmd.Flags().BoolVar(&retry, "retry", false, "Rebuild the already uploaded source")
	cmd.Flags().StringVar(&tmpl.Owner, "template-owner", "", "Template repository owner")
	cmd.Flags().StringVar(&tmpl.Repository, "template-repo", "", "Template repository name")
	cmd.Flags().StringVar(&tmpl.Branch, "template-branch", "main", "Template repository branch")
	cmd.Flags().StringVar(&tmpl.RootDirectory, "template-root", "", "Template directory inside the repository")

	return cmd
}

func newBuildShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var logs bool

	cmd := &cobra.Command{
		Use:   "show BUILD_ID",
		Short: "Show build details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			build, err := client.GetBuild(args[0])
			if err != nil {
				return err
			}

			printBuild(out, build)
			if logs && build.Logs != "" {
				out.Raw(build.Logs)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&logs, "logs", false, "Print build logs")

	return cmd
}

func newBuildCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel BUILD_ID",
		Short: "Cancel a build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			build, err := client.CancelBuild(args[0])
			if err != nil {
				return err
			}

			printBuild(out, build)
			out.Success("Build cancelled")
			return nil
		},
	}
}

func printBuild(out *Output, b *BuildResponse) {
	out.Print(
		[]string{"ID", "DEPLOYMENT_ID", "STATUS", "DURATION", "SIZE", "STARTED"},
		[][]string{{b.ID, b.DeploymentID, b.Status, strconv.Itoa(b.Duration) + "s", strconv.FormatInt(b.Size, 10), b.StartTime}},
		b,
	)
}
