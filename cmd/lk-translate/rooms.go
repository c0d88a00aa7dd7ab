package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chriscow/livekit-translate-go/internal/config"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Print the room to language mapping",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, offline("translation", "stt", "synthesis")...)
		if err != nil {
			return err
		}
		printRooms(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var roomsResolveCmd = &cobra.Command{
	Use:   "resolve NAME",
	Short: "Print the target language of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, offline("translation", "stt", "synthesis")...)
		if err != nil {
			return err
		}
		return resolveRoom(cmd.OutOrStdout(), cfg, args[0])
	},
}

func printRooms(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "%-20s %-8s %-10s %s\n", "PREFIX", "LANGUAGE", "NAME", "VOICE")
	fmt.Fprintln(w, "------------------------------------------------------------")
	for _, r := range cfg.Rooms {
		l := cfg.Languages[r.Language]
		voice := l.Voice
		if voice == "" {
			voice = "N/A"
		}
		fmt.Fprintf(w, "%-20s %-8s %-10s %s\n", r.Prefix, r.Language, l.Name, voice)
	}
}

func resolveRoom(w io.Writer, cfg *config.Config, room string) error {
	code, err := cfg.ResolveRoom(room)
	if err != nil {
		return err
	}
	target, _ := cfg.Target(code)
	fmt.Fprintf(w, "%s\t%s\n", target.Code, target.Name)
	return nil
}
