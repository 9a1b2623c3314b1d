package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockberries/dao/app"
	"github.com/blockberries/dao/store"
)

func stateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persisted state snapshots",
	}
	cmd.AddCommand(stateHeightsCommand(), stateShowCommand())
	return cmd
}

func openStore() (*store.Store, error) {
	return store.Open(store.WithLogger(logger), store.WithDataDir(cfg.DataDir), store.WithRetain(0))
}

func stateHeightsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "heights",
		Short: "List retained snapshot heights",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			heights, err := st.Heights(context.Background())
			if err != nil {
				return err
			}
			for _, h := range heights {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}
}

func stateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [height]",
		Short: "Summarize the latest snapshot, or the one at height",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			var data []byte
			if len(args) == 1 {
				height, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid height %q: %w", args[0], err)
				}
				if data, err = st.StateAt(ctx, height); err != nil {
					return err
				}
			} else {
				_, latest, found, err := st.LoadState(ctx)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("no state in %s", cfg.DataDir)
				}
				data = latest
			}

			s, hash, err := app.DecodeState(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "height:      %d\n", s.Height)
			fmt.Fprintf(out, "time:        %s\n", time.Unix(int64(s.Time), 0).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "app hash:    %x\n", hash)
			fmt.Fprintf(out, "stakers:     %d (principal %d, auxiliary %d)\n",
				len(s.Staking.Stakes), s.Staking.TotalPrincipal, s.Staking.TotalAuxiliary)
			fmt.Fprintf(out, "proposals:   %d\n", len(s.Governance.Proposals))
			fmt.Fprintf(out, "treasury:    balance %d, committed %d, insurance %d\n",
				s.Treasury.Balance, s.Treasury.Committed, s.Treasury.InsurancePool)
			fmt.Fprintf(out, "projects:    %d (%d active)\n", len(s.Treasury.Projects), len(s.Treasury.Active))
			fmt.Fprintf(out, "elections:   %d\n", len(s.Election.Elections))
			return nil
		},
	}
}
