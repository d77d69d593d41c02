package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the validation rules",
	Long: `List every validation rule. Rules switched off by the active policy are
marked as disabled.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		s, err := newSession(cmd.Context(), cfg)
		if err == nil {
			err = listRules(s, output, os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list rules: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

func listRules(s *session, output string, w io.Writer) error {
	rules := s.advisor.Rules()
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rules)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDESCRIPTION")
	for _, r := range rules {
		status := "enabled"
		if r.Disabled {
			status = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, status, r.Description)
	}
	return tw.Flush()
}
