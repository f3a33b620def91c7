package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/shubinmi/phonelist/agent"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Answer directory queries for a remote phone list server",
	Long: `agent runs next to the directory server, opens a websocket to the
phone list server (agent.hub) and answers its queries with the results of
the configured LDAP search.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Agent.Hub == "" || cfg.Agent.ID == "" {
			return errors.New("agent.hub and agent.id are required")
		}
		cl, err := cfg.LDAP.Client(logger.Named("ldap"))
		if err != nil {
			return err
		}
		if cl == nil {
			return errors.New("ldap.url is required")
		}
		rpc := agent.DefaultRPCFuncs(cl, agent.WithEntries(), agent.WithPing())
		return agent.Run(cmd.Context(), cfg.Agent.ID, cfg.Agent.Token,
			cfg.Agent.Hub, cfg.Agent.Path, rpc, logger.Named("agent"))
	},
}
