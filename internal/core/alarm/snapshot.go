package alarm

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SnapshotPath 报警截图的落盘路径，按日期/摄像头分目录
// <baseDir>/<yyyy-mm-dd>/<cameraID>/<alarmID>.jpg
func SnapshotPath(baseDir, cameraID, alarmID string, ts time.Time) string {
	return filepath.Join(baseDir, ts.Format(time.DateOnly), cameraID, alarmID+".jpg")
}

// SnapshotURL 拼出截图的对外访问地址
func SnapshotURL(publicBase, baseDir, path string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/api/snapshots/%s", publicBase, filepath.ToSlash(rel))
}

type snapshotFile struct {
	path    string
	modTime time.Time
}

// CleanupSnapshots 按摄像头裁剪截图数量，淘汰最旧的文件
// 在写入新截图之前调用并预留一个空位，落盘后单摄像头最多保留 maxPerCamera 张
// 返回被淘汰文件对应的报警编号，调用方负责清掉记录里的截图字段
func CleanupSnapshots(baseDir, cameraID string, maxPerCamera int) []string {
	if maxPerCamera <= 0 {
		return nil
	}

	var files []snapshotFile
	dates, err := os.ReadDir(baseDir)
	if err != nil {
		return nil
	}
	for _, d := range dates {
		if !d.IsDir() {
			continue
		}
		camDir := filepath.Join(baseDir, d.Name(), cameraID)
		entries, err := os.ReadDir(camDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			files = append(files, snapshotFile{
				path:    filepath.Join(camDir, e.Name()),
				modTime: info.ModTime(),
			})
		}
	}

	if len(files) < maxPerCamera {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	// 留出一个空位给即将写入的新截图
	excess := len(files) - maxPerCamera + 1
	evicted := make([]string, 0, excess)
	for _, f := range files[:excess] {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove old snapshot", "path", f.path, "err", err)
			continue
		}
		name := filepath.Base(f.path)
		evicted = append(evicted, strings.TrimSuffix(name, filepath.Ext(name)))
		slog.Debug("evicted old snapshot", "camera_id", cameraID, "path", f.path)
	}

	removeEmptyDirs(baseDir)
	return evicted
}

// removeEmptyDirs 自底向上删除空目录，保留根目录
func removeEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	// 先删深层目录
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dir)
		}
	}
}
