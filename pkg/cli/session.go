package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	apiv1 "github.com/ainblockchain/papers-with-claudecode-sub002/pkg/api/v1"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/spf13/cobra"
)

var (
	sessionOwner     string
	sessionRepo      string
	sessionImage     string
	sessionListOwner string
)

// ErrCommandFailed is returned when an exec'd command exits non-zero
var ErrCommandFailed = errors.New("command exited with a non-zero status")

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sandbox sessions",
	Long:  `Create, inspect, run commands in and stop sandbox sessions.`,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return createSession(cmd.Context())
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions(cmd.Context())
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getSession(cmd.Context(), args[0])
	},
}

var sessionExecCmd = &cobra.Command{
	Use:   "exec <id> -- <command> [args...]",
	Short: "Run a command in a session",
	Long: `Run a command inside a running session. A single argument is run
through sh -c; several arguments are run as-is.`,
	Example: `  papers session exec sess-123 -- "ls -la /home/claude"
  papers session exec sess-123 -- cat /home/claude/CLAUDE.md`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execInSession(cmd.Context(), args[0], args[1:])
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop a session and delete its sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopSession(cmd.Context(), args[0])
	},
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionOwner, "owner", "", "Owner id recorded on the session")
	sessionCreateCmd.Flags().StringVar(&sessionRepo, "repo", "", "Source repository cloned into the sandbox")
	sessionCreateCmd.Flags().StringVar(&sessionImage, "image", "", "Override the sandbox image")

	sessionListCmd.Flags().StringVar(&sessionListOwner, "owner", "", "Only show sessions owned by this id")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionExecCmd)
	sessionCmd.AddCommand(sessionStopCmd)
}

func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func createSession(ctx context.Context) error {
	session, err := getClient().CreateSession(commandContext(ctx), types.CreateSessionRequest{
		OwnerId:       sessionOwner,
		SourceRepoUrl: sessionRepo,
		Image:         sessionImage,
	})
	if err != nil {
		return err
	}

	if PrintStructured(session) {
		return nil
	}
	PrintSuccessf("Session %s is %s", CodeStyle.Render(session.Id), statusStyle(string(session.Status)).Render(string(session.Status)))
	printSession(session)
	return nil
}

func listSessions(ctx context.Context) error {
	sessions, err := getClient().ListSessions(commandContext(ctx), sessionListOwner)
	if err != nil {
		return err
	}

	if PrintStructured(sessions) {
		return nil
	}
	if len(sessions) == 0 {
		PrintInfo("No live sessions")
		return nil
	}

	table := NewTable("ID", "STATUS", "OWNER", "CREATED")
	for _, s := range sessions {
		table.AddRow(s.Id, string(s.Status), s.OwnerId, FormatRelativeTime(s.CreatedAt))
	}
	fmt.Fprintln(stdout)
	table.Print()
	fmt.Fprintln(stdout)
	return nil
}

func getSession(ctx context.Context, id string) error {
	session, err := getClient().GetSession(commandContext(ctx), id)
	if err != nil {
		return err
	}

	if PrintStructured(session) {
		return nil
	}
	PrintHeader(session.Id)
	printSession(session)
	return nil
}

func execInSession(ctx context.Context, id string, args []string) error {
	req := apiv1.ExecRequest{Argv: args}
	if len(args) == 1 {
		req = apiv1.ExecRequest{Command: args[0]}
	}

	result, err := getClient().Exec(commandContext(ctx), id, req)
	if err != nil {
		return err
	}

	if PrintStructured(result) {
		return nil
	}
	fmt.Fprint(stdout, result.Stdout)
	if result.Stderr != "" {
		fmt.Fprint(os.Stderr, result.Stderr)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %d", ErrCommandFailed, result.ExitCode)
	}
	return nil
}

func stopSession(ctx context.Context, id string) error {
	session, err := getClient().StopSession(commandContext(ctx), id)
	if err != nil {
		return err
	}

	if PrintStructured(session) {
		return nil
	}
	PrintSuccessf("Session %s stopped", CodeStyle.Render(session.Id))
	return nil
}

func printSession(s *types.Session) {
	PrintKeyValue("Status", statusStyle(string(s.Status)).Render(string(s.Status)))
	if s.OwnerId != "" {
		PrintKeyValue("Owner", s.OwnerId)
	}
	if s.SourceRepoUrl != "" {
		PrintKeyValue("Repository", s.SourceRepoUrl)
	}
	if !s.SandboxRef.IsZero() {
		PrintKeyValue("Sandbox", s.SandboxRef.String())
	}
	PrintKeyValue("Created", s.CreatedAt.Local().Format(time.RFC3339)+" "+DimStyle.Render("("+FormatRelativeTime(s.CreatedAt)+")"))
	if s.TerminatedAt != nil {
		PrintKeyValue("Terminated", s.TerminatedAt.Local().Format(time.RFC3339))
	}
}

func stageTitle(stage types.Stage) string {
	for _, key := range []string{"title", "name"} {
		if v, ok := stage[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func stageNumber(stage types.Stage, index int) string {
	switch n := stage["number"].(type) {
	case float64:
		return fmt.Sprintf("%d", int(n))
	case string:
		return strings.TrimSpace(n)
	}
	return fmt.Sprintf("%d", index+1)
}
