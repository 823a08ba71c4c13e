package worker

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/bamsammich/diskpack/internal/catalog"
)

// copyLog appends one line per copied file to <dir>/<DestID>.log:
// DestID,DirName,FileName,ExtName,SourcePath.
type copyLog struct {
	dir string
	mu  sync.Mutex
}

func newCopyLog(dir string) *copyLog {
	return &copyLog{dir: dir}
}

// Path returns the log file of one destination.
func (l *copyLog) Path(destID int64) string {
	return filepath.Join(l.dir, strconv.FormatInt(destID, 10)+".log")
}

// Append records a copied file. The file is opened per line so an operator
// can rotate or move logs between tasks.
func (l *copyLog) Append(destID int64, dirName string, f *catalog.File, src string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	fd, err := os.OpenFile(l.Path(destID), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open copy log: %w", err)
	}

	cw := csv.NewWriter(fd)
	_ = cw.Write([]string{strconv.FormatInt(destID, 10), dirName, f.FileName, f.ExtName, src})
	cw.Flush()
	if err := cw.Error(); err != nil {
		fd.Close()
		return fmt.Errorf("write copy log: %w", err)
	}
	return fd.Close()
}
