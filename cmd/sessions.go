package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/quorum/internal/output"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List past review sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun(cmd)
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session with its full submission history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsShowRun(cmd, args[0])
	},
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum number of sessions to list")
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func sessionsListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sessions, err := s.ListSessions(cmd.Context(), sessionsLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.Info("No review sessions yet. Run 'quorum review --base <ref>' to start one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Refs", "Lead", "Peers", "State", "Round", "Created"})
	for _, sess := range sessions {
		table.Append([]string{
			sess.ID,
			fmt.Sprintf("%s...%s", sess.BaseRef, sess.TargetRef),
			sess.Lead,
			strings.Join(sess.Peers, ","),
			output.StateColor(string(sess.State)),
			fmt.Sprintf("%d/%d", sess.Round, sess.MaxRounds),
			sess.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

func sessionsShowRun(cmd *cobra.Command, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sess, err := s.GetSession(cmd.Context(), id)
	if err != nil {
		return err
	}

	ui.Info("Session %s", sess.ID)
	fmt.Fprintf(ui.Out, "  Refs:      %s...%s\n", sess.BaseRef, sess.TargetRef)
	fmt.Fprintf(ui.Out, "  Lead:      %s\n", sess.Lead)
	fmt.Fprintf(ui.Out, "  Peers:     %s\n", strings.Join(sess.Peers, ", "))
	fmt.Fprintf(ui.Out, "  State:     %s\n", output.StateColor(string(sess.State)))
	fmt.Fprintf(ui.Out, "  Round:     %d of %d\n", sess.Round, sess.MaxRounds)
	fmt.Fprintf(ui.Out, "  Created:   %s\n", sess.CreatedAt.Local().Format(time.RFC1123))
	if sess.CompletedAt != nil {
		fmt.Fprintf(ui.Out, "  Completed: %s\n", sess.CompletedAt.Local().Format(time.RFC1123))
	}
	fmt.Fprintln(ui.Out)

	rounds := make([]int, 0, len(sess.Submissions))
	for r := range sess.Submissions {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)

	for _, r := range rounds {
		fmt.Fprintf(ui.Out, "  Round %d:\n", r)
		for _, sub := range sess.Submissions[r] {
			line := fmt.Sprintf("    %-10s %-10s", sub.Participant, sub.Phase)
			if sub.Verdict != "" {
				line += " " + output.VerdictColor(string(sub.Verdict))
			}
			if sub.Implicit {
				line += " (no response)"
			}
			fmt.Fprintln(ui.Out, line)
		}
	}

	if sess.FinalText != "" {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, sess.FinalText)
	}
	return nil
}
