package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/basket/scriptbot/internal/config"
	"github.com/basket/scriptbot/internal/doctor"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	skipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func runDoctorCommand(ctx context.Context, args []string) int {
	jsonOutput := false
	for _, arg := range args {
		switch arg {
		case "-json", "--json":
			jsonOutput = true
		default:
			fmt.Fprintln(os.Stderr, "usage: scriptbot doctor [-json]")
			return 2
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		// Keep going; the checks explain what is missing.
	}

	diag := doctor.Run(ctx, &cfg, Version)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diag); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding json: %v\n", err)
			return 1
		}
		return 0
	}

	styled := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	writeReport(os.Stdout, diag, styled)
	if diag.Failed() {
		return 1
	}
	return 0
}

func writeReport(w io.Writer, diag doctor.Diagnosis, styled bool) {
	render := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	fmt.Fprintln(w, render(titleStyle, fmt.Sprintf("Scriptbot Doctor Report (%s)", diag.Timestamp.Format(time.RFC3339))))
	fmt.Fprintf(w, "System: %s/%s (%s) %s\n", diag.System.OS, diag.System.Arch, diag.System.Go, diag.System.Version)
	fmt.Fprintln(w, "---")

	for _, res := range diag.Results {
		label := fmt.Sprintf("[%s]", res.Status)
		switch res.Status {
		case "PASS":
			label = render(passStyle, label)
		case "FAIL":
			label = render(failStyle, label)
		case "WARN":
			label = render(warnStyle, label)
		default:
			label = render(skipStyle, label)
		}
		fmt.Fprintf(w, "%s %-13s %s\n", label, res.Name, res.Message)
		if res.Detail != "" {
			fmt.Fprintf(w, "       %s\n", render(dimStyle, res.Detail))
		}
	}
}
