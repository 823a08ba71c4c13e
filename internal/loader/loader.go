// Package loader fills an empty catalog from the inventory CSV files produced
// by the scanner and the operators' destination list.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/bamsammich/diskpack/internal/catalog"
	"github.com/bamsammich/diskpack/internal/units"
)

// Dictionary file names read by LoadDictionary, in load order.
const (
	HostsFile        = "StorageHost.csv"
	DirectoriesFile  = "StorageDir.csv"
	FilesFile        = "StorageFile.csv"
	DestinationsFile = "Destination.csv"
)

// Result counts the rows of one load.
type Result struct {
	Read     int
	Inserted int
	Skipped  int // already catalogued under the natural key
}

func (r Result) String() string {
	return fmt.Sprintf("read=%d inserted=%d skipped=%d", r.Read, r.Inserted, r.Skipped)
}

// Loader inserts CSV rows into a catalog, skipping rows whose natural key
// is already present.
type Loader struct {
	cat    *catalog.Catalog
	fs     afero.Fs
	logger *slog.Logger
}

// New returns a loader reading files from fsys. A nil logger uses
// slog.Default.
func New(cat *catalog.Catalog, fsys afero.Fs, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{cat: cat, fs: fsys, logger: logger}
}

// loadFunc inserts one row and reports whether it was new.
type loadFunc func(ctx context.Context, row record) (bool, error)

// LoadHosts loads a CSV with HostID,HostAddr columns.
func (l *Loader) LoadHosts(ctx context.Context, path string) (Result, error) {
	return l.loadFile(ctx, path, []string{"HostID", "HostAddr"}, l.host)
}

// LoadDirectories loads a CSV with DirID,DirName,DirSize,Location,HostID
// columns.
func (l *Loader) LoadDirectories(ctx context.Context, path string) (Result, error) {
	return l.loadFile(ctx, path,
		[]string{"DirID", "DirName", "DirSize", "Location", "HostID"}, l.directory)
}

// LoadFiles loads a CSV with FileID,FileName,ExtName,FileSize,Location
// columns. Each file's directory is resolved from its Location; load
// directories first.
func (l *Loader) LoadFiles(ctx context.Context, path string) (Result, error) {
	return l.loadFile(ctx, path,
		[]string{"FileID", "FileName", "ExtName", "FileSize", "Location"}, l.file)
}

// LoadDestinations loads a CSV with DestID,DiskBatch,DiskSN,DiskModel,
// DiskCapacity,DiskPath columns.
func (l *Loader) LoadDestinations(ctx context.Context, path string) (Result, error) {
	return l.loadFile(ctx, path,
		[]string{"DestID", "DiskBatch", "DiskSN", "DiskModel", "DiskCapacity", "DiskPath"},
		l.destination)
}

// LoadDictionary loads the four dictionary files under dir as one unit:
// either all of them land in the catalog or none do.
func (l *Loader) LoadDictionary(ctx context.Context, dir string) (map[catalog.Kind]Result, error) {
	steps := []struct {
		kind catalog.Kind
		file string
		load func(context.Context, string) (Result, error)
	}{
		{catalog.KindHost, HostsFile, l.LoadHosts},
		{catalog.KindDirectory, DirectoriesFile, l.LoadDirectories},
		{catalog.KindFile, FilesFile, l.LoadFiles},
		{catalog.KindDestination, DestinationsFile, l.LoadDestinations},
	}

	results := make(map[catalog.Kind]Result, len(steps))
	err := l.cat.InTx(ctx, catalog.TxExclusive, func(ctx context.Context) error {
		for _, s := range steps {
			res, err := s.load(ctx, filepath.Join(dir, s.file))
			if err != nil {
				return err
			}
			results[s.kind] = res
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load dictionary %s: %w", dir, err)
	}
	return results, nil
}

func (l *Loader) loadFile(ctx context.Context, path string, required []string, fn loadFunc) (Result, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var res Result
	err = l.cat.InTx(ctx, catalog.TxImmediate, func(ctx context.Context) error {
		var lerr error
		res, lerr = load(ctx, f, required, fn)
		return lerr
	})
	if err != nil {
		return res, fmt.Errorf("load %s: %w", path, err)
	}
	l.logger.Info("loaded csv",
		"path", path, "read", res.Read, "inserted", res.Inserted, "skipped", res.Skipped)
	return res, nil
}

func load(ctx context.Context, r io.Reader, required []string, fn loadFunc) (Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, errors.New("missing header row")
	}
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header, required)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		res.Read++

		inserted, err := fn(ctx, record{cols: cols, fields: fields})
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
}

func columnIndex(header, required []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return cols, nil
}

// record is one CSV row addressed by column name.
type record struct {
	cols   map[string]int
	fields []string
}

func (r record) str(name string) string {
	i := r.cols[name]
	if i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

func (r record) num(name string) (int64, error) {
	s := r.str(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", name, err)
	}
	return n, nil
}

func (l *Loader) host(ctx context.Context, r record) (bool, error) {
	id, err := r.num("HostID")
	if err != nil {
		return false, err
	}
	addr := r.str("HostAddr")
	found, err := l.cat.HostExists(ctx, addr)
	if err != nil || found {
		return false, err
	}
	return true, l.cat.InsertHost(ctx, id, addr)
}

func (l *Loader) directory(ctx context.Context, r record) (bool, error) {
	d := catalog.Directory{DirName: r.str("DirName"), Location: r.str("Location")}
	var err error
	if d.DirID, err = r.num("DirID"); err != nil {
		return false, err
	}
	if d.DirSize, err = r.num("DirSize"); err != nil {
		return false, err
	}
	if d.HostID, err = r.num("HostID"); err != nil {
		return false, err
	}
	found, err := l.cat.DirectoryExists(ctx, d.DirName, d.Location)
	if err != nil || found {
		return false, err
	}
	return true, l.cat.InsertDirectory(ctx, d)
}

func (l *Loader) file(ctx context.Context, r record) (bool, error) {
	f := catalog.File{
		FileName: r.str("FileName"),
		ExtName:  r.str("ExtName"),
		Location: r.str("Location"),
	}
	var err error
	if f.FileID, err = r.num("FileID"); err != nil {
		return false, err
	}
	if f.FileSize, err = r.num("FileSize"); err != nil {
		return false, err
	}
	found, err := l.cat.FileExists(ctx, f.FileName, f.ExtName, f.Location)
	if err != nil || found {
		return false, err
	}
	if f.DirID, err = l.cat.DirectoryIDByPath(ctx, f.Location); err != nil {
		return false, err
	}
	if f.DirID == 0 {
		l.logger.Warn("file outside any catalogued directory",
			"file", f.FileID, "location", f.Location)
	}
	return true, l.cat.InsertFile(ctx, f)
}

func (l *Loader) destination(ctx context.Context, r record) (bool, error) {
	d := catalog.Destination{
		DiskBatch: r.str("DiskBatch"),
		DiskSN:    r.str("DiskSN"),
		DiskModel: r.str("DiskModel"),
		DiskPath:  r.str("DiskPath"),
	}
	var err error
	if d.DestID, err = r.num("DestID"); err != nil {
		return false, err
	}
	if c := r.str("DiskCapacity"); c != "" {
		if d.DiskCapacity, err = units.ParseSize(c); err != nil {
			return false, fmt.Errorf("column DiskCapacity: %w", err)
		}
	}
	found, err := l.cat.DestinationExists(ctx, d.DiskBatch, d.DiskSN)
	if err != nil || found {
		return false, err
	}
	return true, l.cat.InsertDestination(ctx, d)
}
