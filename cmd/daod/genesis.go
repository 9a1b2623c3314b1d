package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blockberries/dao/app"
)

func genesisCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Create and check genesis app state",
	}
	cmd.AddCommand(genesisInitCommand(), genesisValidateCommand())
	return cmd
}

func genesisInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default genesis app state to the genesis file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := cfg.GenesisFile
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			data, err := app.DefaultGenesis().Marshal()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func genesisValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Parse and validate genesis app state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.GenesisFile
			if len(args) == 1 {
				path = args[0]
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			g, err := app.ParseGenesis(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			var supply uint64
			for _, a := range g.Accounts {
				supply += a.Token
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d accounts, %d roles, token supply %d, treasury %d, reward pool %d\n",
				path, len(g.Accounts), len(g.Roles), supply+g.Treasury+g.RewardPool, g.Treasury, g.RewardPool)
			return nil
		},
	}
}
