package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const destColumns = `dest_id, disk_sn, disk_batch, disk_model, disk_capacity, disk_path,
	active_state, copy_state, create_time`

func scanDestination(row rowScanner) (Destination, error) {
	var d Destination
	var created string
	err := row.Scan(&d.DestID, &d.DiskSN, &d.DiskBatch, &d.DiskModel, &d.DiskCapacity,
		&d.DiskPath, &d.ActiveState, &d.CopyState, &created)
	d.CreateTime = parseTime(created)
	return d, err
}

// InsertDestination adds a destination disk. New destinations are inactive
// and idle.
func (c *Catalog) InsertDestination(ctx context.Context, d Destination) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx, `
			INSERT INTO destinations (dest_id, disk_sn, disk_batch, disk_model, disk_capacity, disk_path)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.DestID, d.DiskSN, d.DiskBatch, d.DiskModel, d.DiskCapacity, d.DiskPath)
		if err != nil {
			return fmt.Errorf("insert destination %d: %w", d.DestID, err)
		}
		return nil
	})
}

// DestinationExists reports whether a disk with this batch and serial number
// is already catalogued.
func (c *Catalog) DestinationExists(ctx context.Context, batch, sn string) (bool, error) {
	return c.exists(ctx,
		`SELECT 1 FROM destinations WHERE disk_batch = ? AND disk_sn = ? LIMIT 1`, batch, sn)
}

// GetDestination returns the destination with the given ID.
func (c *Catalog) GetDestination(ctx context.Context, destID int64) (*Destination, error) {
	var d *Destination
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		found, err := scanDestination(c.conn.QueryRowContext(ctx,
			`SELECT `+destColumns+` FROM destinations WHERE dest_id = ?`, destID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		d = &found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get destination %d: %w", destID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("destination %d: %w", destID, ErrNotFound)
	}
	return d, nil
}

// ListDestinations returns every destination in DestID order.
func (c *Catalog) ListDestinations(ctx context.Context) ([]Destination, error) {
	return c.queryDestinations(ctx, `SELECT `+destColumns+` FROM destinations ORDER BY dest_id`)
}

// SchedulableDestinations returns the active, idle destinations in DestID
// order.
func (c *Catalog) SchedulableDestinations(ctx context.Context) ([]Destination, error) {
	return c.queryDestinations(ctx, `
		SELECT `+destColumns+` FROM destinations
		WHERE active_state = ? AND copy_state = ?
		ORDER BY dest_id`, Active, Idle)
}

func (c *Catalog) queryDestinations(ctx context.Context, query string, args ...any) ([]Destination, error) {
	var dests []Destination
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		rows, err := c.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDestination(rows)
			if err != nil {
				return err
			}
			dests = append(dests, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	return dests, nil
}

// SetDestinationCopyState sets the copy state of one destination.
func (c *Catalog) SetDestinationCopyState(ctx context.Context, destID int64, state CopyState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx,
			`UPDATE destinations SET copy_state = ? WHERE dest_id = ?`, state, destID)
		if err != nil {
			return fmt.Errorf("set destination %d state: %w", destID, err)
		}
		return nil
	})
}

// ActivateDestination sets the active state of one destination.
func (c *Catalog) ActivateDestination(ctx context.Context, destID int64, state ActiveState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		return c.updateOne(ctx, fmt.Sprintf("destination %d", destID),
			`UPDATE destinations SET active_state = ? WHERE dest_id = ?`, state, destID)
	})
}
