package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const hostColumns = `host_id, host_addr, active_state, copy_state, COALESCE(dest_id, 0), create_time`

func scanHost(row rowScanner) (Host, error) {
	var h Host
	var created string
	err := row.Scan(&h.HostID, &h.HostAddr, &h.ActiveState, &h.CopyState, &h.DestID, &created)
	h.CreateTime = parseTime(created)
	return h, err
}

// InsertHost adds a host. New hosts are inactive and idle.
func (c *Catalog) InsertHost(ctx context.Context, hostID int64, addr string) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx,
			`INSERT INTO hosts (host_id, host_addr) VALUES (?, ?)`, hostID, addr)
		if err != nil {
			return fmt.Errorf("insert host %d: %w", hostID, err)
		}
		return nil
	})
}

// HostExists reports whether a host with the given address is catalogued.
func (c *Catalog) HostExists(ctx context.Context, addr string) (bool, error) {
	return c.exists(ctx, `SELECT 1 FROM hosts WHERE host_addr = ? LIMIT 1`, addr)
}

// GetHost returns the host with the given ID.
func (c *Catalog) GetHost(ctx context.Context, hostID int64) (*Host, error) {
	var h *Host
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		found, err := scanHost(c.conn.QueryRowContext(ctx,
			`SELECT `+hostColumns+` FROM hosts WHERE host_id = ?`, hostID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		h = &found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get host %d: %w", hostID, err)
	}
	if h == nil {
		return nil, fmt.Errorf("host %d: %w", hostID, ErrNotFound)
	}
	return h, nil
}

// SetHostCopyStateByDir sets the copy state of the host owning dirID.
func (c *Catalog) SetHostCopyStateByDir(ctx context.Context, dirID int64, state CopyState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx, `
			UPDATE hosts SET copy_state = ?
			WHERE host_id IN (SELECT host_id FROM directories WHERE dir_id = ?)`,
			state, dirID)
		if err != nil {
			return fmt.Errorf("set host state for dir %d: %w", dirID, err)
		}
		return nil
	})
}

// ActivateHost sets the active state of one host.
func (c *Catalog) ActivateHost(ctx context.Context, hostID int64, state ActiveState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		return c.updateOne(ctx, fmt.Sprintf("host %d", hostID),
			`UPDATE hosts SET active_state = ? WHERE host_id = ?`, state, hostID)
	})
}

// exists runs a single-row probe query.
func (c *Catalog) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		var one int
		err := c.conn.QueryRowContext(ctx, query, args...).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return found, nil
}
