package cli

import (
	"fmt"
	"strconv"
	"time"

	apiv1 "github.com/ainblockchain/papers-with-claudecode-sub002/pkg/api/v1"
	"github.com/spf13/cobra"
)

var (
	progressUser  string
	progressStage int
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Record and show learning progress",
}

var progressSaveCmd = &cobra.Command{
	Use:   "save <paper-id>",
	Short: "Mark a stage, or the whole paper, as completed",
	Example: `  papers progress save attention --stage 2
  papers progress save attention --user u-42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := apiv1.SaveProgressRequest{UserId: progressUser, PaperId: args[0]}
		if cmd.Flags().Changed("stage") {
			stage := progressStage
			req.StageNumber = &stage
		}

		resp, err := getClient().SaveProgress(commandContext(cmd.Context()), req)
		if err != nil {
			return err
		}
		if PrintStructured(resp) {
			return nil
		}

		if req.StageNumber != nil {
			PrintSuccessf("Stage %d of %s completed", *req.StageNumber, CodeStyle.Render(resp.PaperId))
		} else {
			PrintSuccessf("Paper %s completed", CodeStyle.Render(resp.PaperId))
		}
		return nil
	},
}

var progressListCmd = &cobra.Command{
	Use:   "list <user-id> <paper-id>",
	Short: "List completions for a paper",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := getClient().Progress(commandContext(cmd.Context()), args[0], args[1])
		if err != nil {
			return err
		}
		if PrintStructured(resp) {
			return nil
		}
		if len(resp.Completions) == 0 {
			PrintInfo("No completions recorded")
			return nil
		}

		table := NewTable("STAGE", "COMPLETED")
		for _, c := range resp.Completions {
			stage := "paper"
			if c.StageNumber != nil {
				stage = strconv.Itoa(*c.StageNumber)
			}
			table.AddRow(stage, c.CompletedAt.Local().Format(time.RFC3339))
		}
		fmt.Fprintln(stdout)
		table.Print()
		fmt.Fprintln(stdout)
		return nil
	},
}

func init() {
	progressSaveCmd.Flags().StringVar(&progressUser, "user", "", "User id (defaults to the token subject)")
	progressSaveCmd.Flags().IntVar(&progressStage, "stage", 0, "Stage number; omit to complete the whole paper")

	progressCmd.AddCommand(progressSaveCmd)
	progressCmd.AddCommand(progressListCmd)
}
