package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
)

const dirColumns = `d.dir_id, d.dir_name, d.dir_size, d.files_size, d.location,
	d.active_state, d.copy_state, d.host_id, COALESCE(d.dest_id, 0), d.create_time`

func scanDirectory(row rowScanner) (Directory, error) {
	var d Directory
	var created string
	err := row.Scan(&d.DirID, &d.DirName, &d.DirSize, &d.FilesSize, &d.Location,
		&d.ActiveState, &d.CopyState, &d.HostID, &d.DestID, &created)
	d.CreateTime = parseTime(created)
	return d, err
}

// InsertDirectory adds a directory. New directories are inactive and idle
// with a FilesSize of zero until RecomputeFilesSize runs.
func (c *Catalog) InsertDirectory(ctx context.Context, d Directory) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx, `
			INSERT INTO directories (dir_id, dir_name, dir_size, location, host_id)
			VALUES (?, ?, ?, ?, ?)`,
			d.DirID, d.DirName, d.DirSize, d.Location, d.HostID)
		if err != nil {
			return fmt.Errorf("insert directory %d: %w", d.DirID, err)
		}
		return nil
	})
}

// DirectoryExists reports whether name/location is already catalogued.
func (c *Catalog) DirectoryExists(ctx context.Context, name, location string) (bool, error) {
	return c.exists(ctx,
		`SELECT 1 FROM directories WHERE dir_name = ? AND location = ? LIMIT 1`, name, location)
}

// GetDirectory returns the directory with the given ID.
func (c *Catalog) GetDirectory(ctx context.Context, dirID int64) (*Directory, error) {
	var d *Directory
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		found, err := scanDirectory(c.conn.QueryRowContext(ctx,
			`SELECT `+dirColumns+` FROM directories AS d WHERE d.dir_id = ?`, dirID))
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
		return nil, fmt.Errorf("get directory %d: %w", dirID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("directory %d: %w", dirID, ErrNotFound)
	}
	return d, nil
}

// DirectoryIDByPath resolves a directory path to its DirID, or 0 when no
// directory matches. A bare name without a parent matches on name alone.
func (c *Catalog) DirectoryIDByPath(ctx context.Context, path string) (int64, error) {
	name := filepath.Base(path)
	parent := filepath.Dir(path)

	query := `SELECT dir_id FROM directories WHERE dir_name = ? AND location = ? LIMIT 1`
	args := []any{name, parent}
	if parent == "." {
		query = `SELECT dir_id FROM directories WHERE dir_name = ? LIMIT 1`
		args = []any{name}
	}

	var id int64
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		err := c.conn.QueryRowContext(ctx, query, args...).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("resolve directory %s: %w", path, err)
	}
	return id, nil
}

// SetDirectoryCopyState sets the copy state of one directory.
func (c *Catalog) SetDirectoryCopyState(ctx context.Context, dirID int64, state CopyState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx,
			`UPDATE directories SET copy_state = ? WHERE dir_id = ?`, state, dirID)
		if err != nil {
			return fmt.Errorf("set directory %d state: %w", dirID, err)
		}
		return nil
	})
}

// ActivateDirectory sets the active state of one directory.
func (c *Catalog) ActivateDirectory(ctx context.Context, dirID int64, state ActiveState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		return c.updateOne(ctx, fmt.Sprintf("directory %d", dirID),
			`UPDATE directories SET active_state = ? WHERE dir_id = ?`, state, dirID)
	})
}

// RecomputeFilesSize sets every directory's FilesSize to the total size of
// its idle files. The scheduler never maintains FilesSize itself.
func (c *Catalog) RecomputeFilesSize(ctx context.Context) error {
	return c.InTx(ctx, TxExclusive, func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx, `
			UPDATE directories SET files_size = COALESCE((
				SELECT sum(f.file_size) FROM files AS f
				WHERE f.dir_id = directories.dir_id AND f.copy_state = ?), 0)`,
			Idle)
		if err != nil {
			return fmt.Errorf("recompute files size: %w", err)
		}
		return nil
	})
}

// SchedulableDirectories lists active, idle directories whose host is active
// and idle, in DirID order.
func (c *Catalog) SchedulableDirectories(ctx context.Context) ([]Directory, error) {
	var dirs []Directory
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		rows, err := c.conn.QueryContext(ctx, `
			SELECT `+dirColumns+`
			FROM directories AS d
			INNER JOIN hosts AS h ON d.host_id = h.host_id
			WHERE d.active_state = ? AND d.copy_state = ?
			  AND h.active_state = ? AND h.copy_state = ?
			ORDER BY d.dir_id`,
			Active, Idle, Active, Idle)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDirectory(rows)
			if err != nil {
				return err
			}
			dirs = append(dirs, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list schedulable directories: %w", err)
	}
	return dirs, nil
}
