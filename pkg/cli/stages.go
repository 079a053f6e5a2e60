package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stagesPath string

var stagesCmd = &cobra.Command{
	Use:   "stages <session-id>",
	Short: "Show the learning stages defined in a session",
	Long: `Read the stage definition file from a running session and list its
stages. An empty list means the file is missing or has no stage data.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stages, err := getClient().Stages(commandContext(cmd.Context()), args[0], stagesPath)
		if err != nil {
			return err
		}

		if PrintStructured(stages) {
			return nil
		}
		if len(stages) == 0 {
			PrintWarning("No stages found")
			return nil
		}

		table := NewTable("#", "TITLE")
		for i, stage := range stages {
			table.AddRow(stageNumber(stage, i), Truncate(stageTitle(stage), 60))
		}
		fmt.Fprintln(stdout)
		table.Print()
		fmt.Fprintln(stdout)
		return nil
	},
}

func init() {
	stagesCmd.Flags().StringVar(&stagesPath, "path", "", "Definition file inside the sandbox (default: gateway setting)")
}
