package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/platform"
)

var platformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Interact with the hosted platform API",
}

func newPlatformClient() (*platform.Client, error) {
	return platform.NewClient(&platform.Config{
		BaseURL:      settings.Platform.BaseURL,
		Token:        settings.Platform.APIKey,
		PollInterval: settings.Platform.PollInterval,
	})
}

var platformWorkspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Workspace operations",
}

var platformWorkspaceGetCmd = &cobra.Command{
	Use:   "get <workspace-id>",
	Short: "Show one workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newPlatformClient()
		if err != nil {
			return err
		}
		defer client.Close()

		workspace, err := client.GetWorkspace(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", workspace.WorkspaceID, workspace.Name)
		return nil
	},
}

var platformConnectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Connection operations",
}

var platformRunWait bool

var platformConnectionRunCmd = &cobra.Command{
	Use:   "run <connection-id>",
	Short: "Start a sync job for a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newPlatformClient()
		if err != nil {
			return err
		}
		defer client.Close()

		job, err := client.RunConnectionJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "started sync job %d (%s)\n", job.JobID, job.Status)

		if platformRunWait {
			job, err = client.WaitForJob(cmd.Context(), job.JobID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sync job %d %s\n", job.JobID, job.Status)
		}
		return nil
	},
}

var platformConnectionWaitCmd = &cobra.Command{
	Use:   "wait <job-id>",
	Short: "Wait for a sync job to reach a terminal status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Newf(errors.ErrorTypeUsage, "job id %q is not numeric", args[0])
		}

		client, err := newPlatformClient()
		if err != nil {
			return err
		}
		defer client.Close()

		job, err := client.WaitForJob(cmd.Context(), jobID)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "sync job %d %s\n", job.JobID, job.Status)
		return nil
	},
}

func init() {
	platformConnectionRunCmd.Flags().BoolVar(&platformRunWait, "wait", false,
		"block until the job reaches a terminal status")

	platformWorkspaceCmd.AddCommand(platformWorkspaceGetCmd)
	platformConnectionCmd.AddCommand(platformConnectionRunCmd)
	platformConnectionCmd.AddCommand(platformConnectionWaitCmd)
	platformCmd.AddCommand(platformWorkspaceCmd)
	platformCmd.AddCommand(platformConnectionCmd)
	rootCmd.AddCommand(platformCmd)
}
