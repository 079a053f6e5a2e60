package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// errorMessages maps gateway error types to human-readable messages
var errorMessages = map[string]string{
	"unauthorized":             "Authentication failed - invalid or missing token",
	"forbidden":                "Access denied",
	"not_found":                "Session not found",
	"bad_request":              "Invalid request parameters",
	"capacity_exceeded":        "All sandbox slots are in use - try again later",
	"session_not_running":      "Session is not running",
	"provision_error":          "The sandbox could not be provisioned",
	"exec_timeout":             "Command timed out; the session is still running",
	"upstream_unavailable":     "The orchestrator could not be reached",
	"orchestrator_unavailable": "The gateway has no orchestrator credentials",
	"internal_error":           "Internal server error",
}

// errorSuggestions provides helpful suggestions for specific error types
var errorSuggestions = map[string][]string{
	"unauthorized": {
		"Check that your token is correct: " + CodeStyle.Render("--token <token>"),
		"Or set " + CodeStyle.Render("PAPERS_TOKEN"),
	},
	"capacity_exceeded": {
		"Stop sessions you no longer need: " + CodeStyle.Render("papers session stop <id>"),
	},
	"session_not_running": {
		"Check its status: " + CodeStyle.Render("papers session get <id>"),
	},
	"orchestrator_unavailable": {
		"Verify the gateway's kubeconfig or service account",
	},
}

// FormatError converts an error to a human-readable message
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg, ok := errorMessages[apiErr.Type]
		if !ok {
			return apiErr.Message
		}
		if apiErr.Message != "" && !strings.EqualFold(msg, apiErr.Message) {
			return fmt.Sprintf("%s (%s)", msg, apiErr.Message)
		}
		return msg
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Sprintf("Cannot reach the gateway at %s", gatewayHTTPAddr)
	}

	return strings.TrimPrefix(err.Error(), "error: ")
}

// GetErrorSuggestions returns helpful suggestions for an error
func GetErrorSuggestions(err error) []string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return errorSuggestions[apiErr.Type]
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return []string{
			"Verify the gateway is running",
			"Check the address: " + CodeStyle.Render("--gateway-http <addr>") + " or " + CodeStyle.Render("PAPERS_GATEWAY_HTTP"),
		}
	}
	return nil
}

// PrintFormattedError prints an error with styling and optional suggestions
func PrintFormattedError(title string, err error) {
	fmt.Fprintln(stdout)
	PrintErrorMsg(title)

	if err != nil {
		fmt.Fprintf(stdout, "  %s\n", DimStyle.Render(FormatError(err)))
		if suggestions := GetErrorSuggestions(err); len(suggestions) > 0 {
			PrintSuggestions("Suggestions:", suggestions)
		}
	}
	fmt.Fprintln(stdout)
}
