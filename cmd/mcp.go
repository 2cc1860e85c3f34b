package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/quorum/internal/git"
	"github.com/joescharf/quorum/internal/mcp"
	"github.com/joescharf/quorum/internal/report"
	"github.com/joescharf/quorum/internal/review"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an AI assistant start consensus reviews and inspect their
history natively. Configure in Claude Code with:

  {
    "mcpServers": {
      "quorum": { "command": "quorum", "args": ["mcp"] }
    }
  }

Available tools: review_run, review_status, review_progress,
review_sessions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		cfg := review.DefaultConfig()
		svc := &review.Service{
			Git:     git.NewClient(),
			Caller:  buildCaller(cfg),
			Store:   s,
			Reports: report.NewWriter(viper.GetString("report_dir")),
		}

		srv := mcp.NewServer(svc, s, cfg)
		ui.VerboseLog("MCP server listening on stdio")
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
