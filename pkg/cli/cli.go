package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Build information (injected at compile time via ldflags)
var Version = "dev"

const localGatewayHTTP = "http://localhost:1994"

var (
	gatewayHTTPAddr string
	authToken       string
	outputFormat    string
)

// Custom help template with styled output
var helpTemplate = `{{with .Long}}{{. | trim}}

{{end}}{{if .HasAvailableSubCommands}}` + `{{.CommandPath}}` + ` ` + `<command>` + `

{{end}}{{if .HasAvailableSubCommands}}Commands:
{{range .Commands}}{{if .IsAvailableCommand}}  {{rpad .Name .NamePadding }}  {{.Short}}
{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}
Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}
`

var rootCmd = &cobra.Command{
	Use:   "papers",
	Short: "Sandboxed paper-learning sessions",
	Long: lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Render("papers") + ` - Sandboxed paper-learning sessions

Create isolated sandboxes, run commands inside them, read their learning
stages and record progress.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return SetOutputFormat(outputFormat)
	},
}

func init() {
	rootCmd.SetHelpTemplate(helpTemplate)
	rootCmd.SetVersionTemplate(fmt.Sprintf("  %s version %s\n", BrandStyle.Render("papers"), Version))

	rootCmd.PersistentFlags().StringVar(&gatewayHTTPAddr, "gateway-http", getEnv("PAPERS_GATEWAY_HTTP", localGatewayHTTP), "Gateway HTTP address")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", getEnv("PAPERS_TOKEN", ""), "Authentication token")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json or yaml")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(progressCmd)
}

// Execute runs the CLI
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}

	if IsStructuredOutput() {
		PrintStructured(map[string]string{"error": FormatError(err)})
	} else {
		PrintFormattedError("Command failed", err)
	}
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getClient() *Client {
	return NewClient(gatewayHTTPAddr, authToken)
}
