//go:build !linux

package platform

// CopyFile copies with pread/pwrite where no kernel offload is available.
func CopyFile(params CopyParams) (CopyResult, error) {
	return copyReadWrite(params)
}
