package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const fileColumns = `f.file_id, f.file_name, f.ext_name, f.file_size, f.location,
	f.active_state, f.copy_state, COALESCE(f.dest_id, 0), f.dir_id,
	COALESCE(f.copy_status, ''), f.create_time, COALESCE(f.copy_time, '')`

func scanFile(row rowScanner) (File, error) {
	var f File
	var created, copied string
	err := row.Scan(&f.FileID, &f.FileName, &f.ExtName, &f.FileSize, &f.Location,
		&f.ActiveState, &f.CopyState, &f.DestID, &f.DirID,
		&f.CopyStatus, &created, &copied)
	f.CreateTime = parseTime(created)
	f.CopyTime = parseTime(copied)
	return f, err
}

// InsertFile adds a file. New files are inactive and idle.
func (c *Catalog) InsertFile(ctx context.Context, f File) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx, `
			INSERT INTO files (file_id, file_name, ext_name, file_size, location, dir_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			f.FileID, f.FileName, f.ExtName, f.FileSize, f.Location, f.DirID)
		if err != nil {
			return fmt.Errorf("insert file %d: %w", f.FileID, err)
		}
		return nil
	})
}

// FileExists reports whether name/ext/location is already catalogued.
func (c *Catalog) FileExists(ctx context.Context, name, ext, location string) (bool, error) {
	return c.exists(ctx, `
		SELECT 1 FROM files WHERE file_name = ? AND ext_name = ? AND location = ? LIMIT 1`,
		name, ext, location)
}

// GetFile returns the file with the given ID.
func (c *Catalog) GetFile(ctx context.Context, fileID int64) (*File, error) {
	var f *File
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		found, err := scanFile(c.conn.QueryRowContext(ctx,
			`SELECT `+fileColumns+` FROM files AS f WHERE f.file_id = ?`, fileID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		f = &found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get file %d: %w", fileID, err)
	}
	if f == nil {
		return nil, fmt.Errorf("file %d: %w", fileID, ErrNotFound)
	}
	return f, nil
}

// NextIdleFile returns the lowest-ID active, idle file of an active
// directory, or nil when the directory has nothing left to copy.
func (c *Catalog) NextIdleFile(ctx context.Context, dirID int64) (*File, error) {
	var f *File
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		found, err := scanFile(c.conn.QueryRowContext(ctx, `
			SELECT `+fileColumns+`
			FROM files AS f
			INNER JOIN directories AS d ON f.dir_id = d.dir_id
			WHERE f.dir_id = ? AND f.active_state = ? AND f.copy_state = ?
			  AND d.active_state = ?
			ORDER BY f.file_id
			LIMIT 1`,
			dirID, Active, Idle, Active))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		f = &found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("next idle file of dir %d: %w", dirID, err)
	}
	return f, nil
}

// SetFileCopyState records the outcome of one copy attempt. status is the
// failure text and is cleared when empty. A finished file gets its CopyTime
// stamped.
func (c *Catalog) SetFileCopyState(ctx context.Context, fileID, destID int64, state CopyState, status string) error {
	var statusArg any
	if status != "" {
		statusArg = status
	}
	var destArg any
	if destID != 0 {
		destArg = destID
	}
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		var err error
		if state == Finished {
			_, err = c.conn.ExecContext(ctx, `
				UPDATE files SET dest_id = ?, copy_state = ?, copy_status = ?, copy_time = ?
				WHERE file_id = ?`,
				destArg, state, statusArg, formatTime(time.Now()), fileID)
		} else {
			_, err = c.conn.ExecContext(ctx, `
				UPDATE files SET dest_id = ?, copy_state = ?, copy_status = ?
				WHERE file_id = ?`,
				destArg, state, statusArg, fileID)
		}
		if err != nil {
			return fmt.Errorf("set file %d state: %w", fileID, err)
		}
		return nil
	})
}

// SetDirFilesCopyState sets the copy state of every file in dirID.
func (c *Catalog) SetDirFilesCopyState(ctx context.Context, dirID int64, state CopyState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx,
			`UPDATE files SET copy_state = ? WHERE dir_id = ?`, state, dirID)
		if err != nil {
			return fmt.Errorf("set files of dir %d state: %w", dirID, err)
		}
		return nil
	})
}

// ActivateFile sets the active state of one file.
func (c *Catalog) ActivateFile(ctx context.Context, fileID int64, state ActiveState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		return c.updateOne(ctx, fmt.Sprintf("file %d", fileID),
			`UPDATE files SET active_state = ? WHERE file_id = ?`, state, fileID)
	})
}

// ActivateFilesOfDir sets the active state of every file in dirID and returns
// how many files changed.
func (c *Catalog) ActivateFilesOfDir(ctx context.Context, dirID int64, state ActiveState) (int64, error) {
	var n int64
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		res, err := c.conn.ExecContext(ctx,
			`UPDATE files SET active_state = ? WHERE dir_id = ?`, state, dirID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("activate files of dir %d: %w", dirID, err)
	}
	return n, nil
}

// FileCounts tallies a directory's files by copy state.
func (c *Catalog) FileCounts(ctx context.Context, dirID int64) (map[CopyState]int64, error) {
	counts := make(map[CopyState]int64)
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		rows, err := c.conn.QueryContext(ctx,
			`SELECT copy_state, count(*) FROM files WHERE dir_id = ? GROUP BY copy_state`, dirID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s CopyState
			var n int64
			if err := rows.Scan(&s, &n); err != nil {
				return err
			}
			counts[s] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("count files of dir %d: %w", dirID, err)
	}
	return counts, nil
}
