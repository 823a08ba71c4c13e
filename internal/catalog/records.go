package catalog

import (
	"path/filepath"
	"time"
)

// Host is a source machine. Its CopyState is shared by every directory it
// owns, so a busy host means "some directory under it is being copied".
type Host struct {
	CreateTime  time.Time
	HostAddr    string
	HostID      int64
	DestID      int64
	ActiveState ActiveState
	CopyState   CopyState
}

// Directory is the unit of allocation: a whole directory is copied onto one
// destination. FilesSize is the precomputed size of its idle files.
type Directory struct {
	CreateTime  time.Time
	DirName     string
	Location    string
	DirID       int64
	DirSize     int64
	FilesSize   int64
	HostID      int64
	DestID      int64
	ActiveState ActiveState
	CopyState   CopyState
}

// Path returns the directory's absolute source path.
func (d Directory) Path() string {
	return filepath.Join(d.Location, d.DirName)
}

// File is a single source file. CopyState is relative to DestID.
type File struct {
	CreateTime  time.Time
	CopyTime    time.Time // zero until the first successful copy
	FileName    string
	ExtName     string
	Location    string
	CopyStatus  string // error text of the last failed copy
	FileID      int64
	FileSize    int64
	DestID      int64
	DirID       int64
	ActiveState ActiveState
	CopyState   CopyState
}

// BaseName returns FileName with its extension.
func (f File) BaseName() string {
	return f.FileName + f.ExtName
}

// Path returns the file's absolute source path.
func (f File) Path() string {
	return filepath.Join(f.Location, f.BaseName())
}

// Destination is one removable disk mounted at DiskPath.
type Destination struct {
	CreateTime   time.Time
	DiskBatch    string
	DiskSN       string
	DiskModel    string
	DiskPath     string
	DestID       int64
	DiskCapacity int64
	ActiveState  ActiveState
	CopyState    CopyState
}

// Task binds one Directory to one Destination.
type Task struct {
	TaskID    int64
	DestID    int64
	DirID     int64
	CopyState CopyState
}

// Kind names one of the catalog tables.
type Kind string

const (
	KindHost        Kind = "hosts"
	KindDirectory   Kind = "directories"
	KindFile        Kind = "files"
	KindDestination Kind = "destinations"
	KindTask        Kind = "tasks"
)

// Kinds lists every table in creation order.
var Kinds = []Kind{KindHost, KindDirectory, KindFile, KindDestination, KindTask}
