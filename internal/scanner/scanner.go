// Package scanner walks source trees and writes the inventory CSV that the
// loader turns into catalog rows.
package scanner

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/bamsammich/diskpack/internal/platform"
)

// Header is the first row of every inventory CSV.
var Header = []string{
	"Location", "FileName", "ExtName", "CreateTime", "UpdateTime",
	"Size", "FileNum", "DirNum", "MaxLayer",
}

const dateLayout = "2006/01/02"

// Info is the aggregate of one scanned entry and everything below it.
type Info struct {
	Path     string
	Size     int64
	FileNum  int64
	DirNum   int64
	MaxLayer int // 0 for files, 1 + deepest child for directories
}

// WriteHeader writes the column row.
func WriteHeader(w *csv.Writer) error {
	return w.Write(Header)
}

// Scan walks root depth first and writes one row per entry, children before
// their parent. Symlinks are recorded as files and never followed.
func Scan(ctx context.Context, fsys afero.Fs, root string, w *csv.Writer) (Info, error) {
	info, err := scan(ctx, fsys, filepath.Clean(root), w)
	if err != nil {
		return info, err
	}
	w.Flush()
	return info, w.Error()
}

// ScanLocations reads a CSV with a Location column and scans every listed
// path, writing the header once before the first row.
func ScanLocations(ctx context.Context, fsys afero.Fs, r io.Reader, w *csv.Writer) ([]Info, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read locations header: %w", err)
	}
	col := -1
	for i, name := range header {
		if name == "Location" {
			col = i
		}
	}
	if col < 0 {
		return nil, errors.New(`missing column "Location"`)
	}

	if err := WriteHeader(w); err != nil {
		return nil, err
	}
	var infos []Info
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return infos, fmt.Errorf("read locations: %w", err)
		}
		if col >= len(row) || row[col] == "" {
			continue
		}
		info, err := Scan(ctx, fsys, row[col], w)
		if err != nil {
			return infos, err
		}
		infos = append(infos, info)
	}
	w.Flush()
	return infos, w.Error()
}

func scan(ctx context.Context, fsys afero.Fs, path string, w *csv.Writer) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	fi, err := lstat(fsys, path)
	if err != nil {
		return Info{}, fmt.Errorf("stat %s: %w", path, err)
	}

	info := Info{Path: path}
	if !fi.IsDir() {
		info.Size = fi.Size()
		return info, writeRow(w, path, fi, info)
	}

	children, err := afero.ReadDir(fsys, path)
	if err != nil {
		return info, fmt.Errorf("read dir %s: %w", path, err)
	}
	for _, child := range children {
		ci, err := scan(ctx, fsys, filepath.Join(path, child.Name()), w)
		if err != nil {
			return info, err
		}
		info.Size += ci.Size
		info.FileNum += ci.FileNum
		info.DirNum += ci.DirNum
		if child.IsDir() {
			info.DirNum++
		} else {
			info.FileNum++
		}
		info.MaxLayer = max(info.MaxLayer, ci.MaxLayer)
	}
	info.MaxLayer++
	return info, writeRow(w, path, fi, info)
}

func lstat(fsys afero.Fs, path string) (fs.FileInfo, error) {
	if ls, ok := fsys.(afero.Lstater); ok {
		fi, _, err := ls.LstatIfPossible(path)
		return fi, err
	}
	return fsys.Stat(path)
}

func writeRow(w *csv.Writer, path string, fi fs.FileInfo, info Info) error {
	stem, ext := SplitName(filepath.Base(path))
	return w.Write([]string{
		filepath.Dir(path),
		stem,
		ext,
		platform.ChangeTime(fi).Format(dateLayout),
		fi.ModTime().Format(dateLayout),
		strconv.FormatInt(info.Size, 10),
		strconv.FormatInt(info.FileNum, 10),
		strconv.FormatInt(info.DirNum, 10),
		strconv.Itoa(info.MaxLayer),
	})
}

// SplitName splits a base name into stem and extension. The extension keeps
// its dot; dotfiles and names ending in a dot have none.
func SplitName(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return name, ""
	}
	return name[:i], name[i:]
}
