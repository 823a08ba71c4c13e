// Package platform holds the OS-specific parts of copying one file onto a
// destination disk: kernel copy offload, metadata preservation and live free
// space.
package platform

import "os"

// CopyMethod is the kernel interface a copy went through.
type CopyMethod int

const (
	ReadWrite     CopyMethod = iota // pread(2)/pwrite(2) loop
	CopyFileRange                   // copy_file_range(2), Linux
	Sendfile                        // sendfile(2), Linux
)

var methodNames = [...]string{
	ReadWrite:     "read_write",
	CopyFileRange: "copy_file_range",
	Sendfile:      "sendfile",
}

func (m CopyMethod) String() string {
	if m >= 0 && int(m) < len(methodNames) {
		return methodNames[m]
	}
	return "unknown"
}

// CopyResult is what a copy achieved, also on error.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CopyParams describes a whole-file copy from SrcPath into the already open
// DstFd, which must be positioned at offset zero.
type CopyParams struct {
	DstFd   *os.File
	SrcPath string
	Size    int64
}
