package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// sqliteSidecars are the files SQLite keeps next to a WAL-mode database.
var sqliteSidecars = []string{"-wal", "-shm"}

// DiskUsageBytes returns the bytes held by the run log database, its WAL
// sidecar files and each extra path. Directories are summed recursively.
// Empty and missing paths count as zero.
func DiskUsageBytes(runLogPath string, extra ...string) (int64, error) {
	paths := make([]string, 0, len(extra)+1+len(sqliteSidecars))
	if runLogPath != "" {
		paths = append(paths, runLogPath)
		for _, suffix := range sqliteSidecars {
			paths = append(paths, runLogPath+suffix)
		}
	}
	paths = append(paths, extra...)

	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func pathSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return total, err
}
