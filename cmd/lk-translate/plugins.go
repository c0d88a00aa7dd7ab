package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chriscow/livekit-translate-go/pkg/plugin"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Provider plugin commands",
}

var pluginListCmd = &cobra.Command{
	Use:   "list [kind]",
	Short: "List registered plugins",
	Long: `List all registered plugins or plugins of a specific kind.
Available kinds: llm, stt, tts`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := plugin.Kind("")
		if len(args) > 0 {
			kind = plugin.Kind(args[0])
		}
		listPlugins(cmd.OutOrStdout(), kind)
		return nil
	},
}

func listPlugins(w io.Writer, kind plugin.Kind) {
	plugins := plugin.List(kind)

	if len(plugins) == 0 {
		if kind == "" {
			fmt.Fprintln(w, "No plugins registered")
		} else {
			fmt.Fprintf(w, "No plugins registered for kind: %s\n", kind)
		}
		return
	}

	fmt.Fprintf(w, "%-8s %-20s %-10s %s\n", "KIND", "NAME", "VERSION", "DESCRIPTION")
	fmt.Fprintln(w, "------------------------------------------------------------")

	for _, p := range plugins {
		version := p.Version
		if version == "" {
			version = "N/A"
		}
		description := p.Description
		if description == "" {
			description = "No description"
		}
		fmt.Fprintf(w, "%-8s %-20s %-10s %s\n", p.Kind, p.Name, version, description)
	}
}
