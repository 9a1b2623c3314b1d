package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/blockberries/dao/types"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	Kind       string
	FromHeight uint64
	// ToHeight is inclusive. 0 means no upper bound.
	ToHeight uint64
	// Attributes must all match an indexed attribute of the event.
	Attributes map[string]string
	// Limit caps the result. 0 means DefaultLimit.
	Limit int
}

// DefaultLimit is the result cap when Filter.Limit is 0.
const DefaultLimit = 100

// Event is an indexed event with its position.
type Event struct {
	Height     uint64
	TxIndex    int64
	EventIndex int
	types.Event
}

// Events returns the events matching f ordered by position.
func (x *Indexer) Events(ctx context.Context, f Filter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "e.kind = ?")
		args = append(args, f.Kind)
	}
	if f.FromHeight > 0 {
		where = append(where, "e.height >= ?")
		args = append(args, f.FromHeight)
	}
	if f.ToHeight > 0 {
		where = append(where, "e.height <= ?")
		args = append(args, f.ToHeight)
	}
	for k, v := range f.Attributes {
		where = append(where, `EXISTS (SELECT 1 FROM event_attributes a
			WHERE a.event_id = e.id AND a.indexed = 1 AND a.key = ? AND a.value = ?)`)
		args = append(args, k, v)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := `SELECT e.id, e.height, e.tx_index, e.event_index, e.kind FROM events e`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY e.height, e.tx_index, e.event_index LIMIT ?"
	args = append(args, limit)

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	var (
		out []Event
		ids []int64
	)
	for rows.Next() {
		var (
			id int64
			ev Event
		)
		if err := rows.Scan(&id, &ev.Height, &ev.TxIndex, &ev.EventIndex, &ev.Kind); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ids = append(ids, id)
		out = append(out, ev)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The single connection is free again once rows is closed.
	for i, id := range ids {
		attrs, err := x.attributes(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i].Attributes = attrs
	}
	return out, nil
}

func (x *Indexer) attributes(ctx context.Context, eventID int64) ([]types.EventAttribute, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT key, value, indexed FROM event_attributes WHERE event_id = ? ORDER BY rowid`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()
	var out []types.EventAttribute
	for rows.Next() {
		var a types.EventAttribute
		if err := rows.Scan(&a.Key, &a.Value, &a.Index); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TxResult is the indexed result of one transaction.
type TxResult struct {
	Height uint64
	Index  uint32
	Code   uint32
	Info   string
	Kind   string
	Sender string
}

// TxsBySender returns the transactions sent by sender, newest first.
func (x *Indexer) TxsBySender(ctx context.Context, sender types.Address, limit int) ([]TxResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := x.db.QueryContext(ctx,
		`SELECT height, tx_index, code, info, kind, sender FROM txs
		 WHERE sender = ? ORDER BY height DESC, tx_index DESC LIMIT ?`,
		sender.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query txs: %w", err)
	}
	defer rows.Close()
	var out []TxResult
	for rows.Next() {
		var r TxResult
		if err := rows.Scan(&r.Height, &r.Index, &r.Code, &r.Info, &r.Kind, &r.Sender); err != nil {
			return nil, fmt.Errorf("scan tx: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
