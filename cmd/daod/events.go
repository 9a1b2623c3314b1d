package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blockberries/dao/indexer"
	"github.com/blockberries/dao/types"
)

func eventsCommand() *cobra.Command {
	var (
		f      indexer.Filter
		attrs  []string
		sender string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Search indexed events, or transactions by sender",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cfg.Indexer.Enabled {
				return fmt.Errorf("indexer is disabled")
			}
			idx, err := indexer.Open(cfg.Indexer.Path)
			if err != nil {
				return err
			}
			defer idx.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()
			if sender != "" {
				addr, err := types.ParseAddress(sender)
				if err != nil {
					return err
				}
				txs, err := idx.TxsBySender(ctx, addr, f.Limit)
				if err != nil {
					return err
				}
				for _, tx := range txs {
					fmt.Fprintf(out, "%d/%d %s code=%d %s\n", tx.Height, tx.Index, tx.Kind, tx.Code, tx.Info)
				}
				return nil
			}

			if len(attrs) > 0 {
				f.Attributes = make(map[string]string, len(attrs))
				for _, a := range attrs {
					k, v, ok := strings.Cut(a, "=")
					if !ok {
						return fmt.Errorf("attribute %q: want key=value", a)
					}
					f.Attributes[k] = v
				}
			}
			events, err := idx.Events(ctx, f)
			if err != nil {
				return err
			}
			for _, ev := range events {
				printEvent(out, ev)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.Kind, "kind", "", "event kind")
	flags.Uint64Var(&f.FromHeight, "from", 0, "first height")
	flags.Uint64Var(&f.ToHeight, "to", 0, "last height")
	flags.StringArrayVar(&attrs, "attr", nil, "indexed attribute key=value, repeatable")
	flags.IntVar(&f.Limit, "limit", indexer.DefaultLimit, "maximum results")
	flags.StringVar(&sender, "sender", "", "list transactions sent by this address instead")
	return cmd
}

func printEvent(w io.Writer, ev indexer.Event) {
	pos := fmt.Sprintf("%d/%d", ev.Height, ev.TxIndex)
	if ev.TxIndex < 0 {
		pos = fmt.Sprintf("%d/block", ev.Height)
	}
	var b strings.Builder
	for _, a := range ev.Attributes {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value)
	}
	fmt.Fprintf(w, "%s %s%s\n", pos, ev.Kind, b.String())
}
