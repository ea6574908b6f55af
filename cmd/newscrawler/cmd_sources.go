package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"NewsCrawler/internal/config"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Validate the configuration and list the enabled sources",
	RunE:  runSources,
}

func runSources(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sources, err := cfg.DomainSources()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderSources(sources))
	return nil
}
