// Package clip 管理报警剪辑文件的落盘、淘汰与访问地址
package clip

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Evicted 一个被淘汰的剪辑，回调给上层清理关联数据
type Evicted struct {
	AlarmID  string
	CameraID string
}

// EvictFunc 淘汰回调，在持有存储锁之外调用
type EvictFunc func([]Evicted)

// Store 剪辑文件存储
// 目录布局 <baseDir>/<yyyy-mm-dd>/<cameraID>/<alarmID>.mp4
type Store struct {
	baseDir      string
	publicBase   string
	maxPerCamera int
	onEvict      EvictFunc
}

type Option func(*Store)

// WithEvictFunc 注入淘汰回调
func WithEvictFunc(fn EvictFunc) Option {
	return func(s *Store) { s.onEvict = fn }
}

func NewStore(baseDir, publicBase string, maxPerCamera int, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clip dir: %w", err)
	}
	s := &Store{
		baseDir:      baseDir,
		publicBase:   publicBase,
		maxPerCamera: maxPerCamera,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AllocatePath 新剪辑的编码临时路径，编码完成后 Commit
func (s *Store) AllocatePath(cameraID, alarmID string) string {
	return filepath.Join(s.baseDir, ".tmp", cameraID, alarmID+".mp4")
}

// FinalPath 剪辑的最终落盘路径
func (s *Store) FinalPath(cameraID, alarmID string, ts time.Time) string {
	return filepath.Join(s.baseDir, ts.Format(time.DateOnly), cameraID, alarmID+".mp4")
}

// Commit 把编码完成的剪辑移入最终位置并触发淘汰，返回对外访问地址
func (s *Store) Commit(tmpPath, cameraID, alarmID string, ts time.Time) (string, error) {
	final := s.FinalPath(cameraID, alarmID, ts)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", fmt.Errorf("create clip dir: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", fmt.Errorf("commit clip: %w", err)
	}
	slog.Info("clip committed", "camera_id", cameraID, "alarm_id", alarmID, "path", final)

	s.evictOldest(cameraID)
	return s.URL(final), nil
}

// URL 剪辑的对外访问地址
func (s *Store) URL(path string) string {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/api/clips/%s", s.publicBase, filepath.ToSlash(rel))
}

// Resolve 把 URL 中的相对路径还原为 baseDir 下的文件路径
// 拒绝逃出 baseDir 的路径
func (s *Store) Resolve(rel string) (string, error) {
	full := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid clip path: %s", rel)
	}
	return full, nil
}

type clipFile struct {
	path    string
	alarmID string
	modTime time.Time
}

// evictOldest 按 mtime 淘汰单摄像头超出上限的旧剪辑
func (s *Store) evictOldest(cameraID string) {
	if s.maxPerCamera <= 0 {
		return
	}

	var files []clipFile
	dates, err := os.ReadDir(s.baseDir)
	if err != nil {
		return
	}
	for _, d := range dates {
		if !d.IsDir() || d.Name() == ".tmp" {
			continue
		}
		camDir := filepath.Join(s.baseDir, d.Name(), cameraID)
		entries, err := os.ReadDir(camDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".mp4") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			files = append(files, clipFile{
				path:    filepath.Join(camDir, e.Name()),
				alarmID: strings.TrimSuffix(e.Name(), ".mp4"),
				modTime: info.ModTime(),
			})
		}
	}

	if len(files) <= s.maxPerCamera {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	var evicted []Evicted
	for _, f := range files[:len(files)-s.maxPerCamera] {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove old clip", "path", f.path, "err", err)
			continue
		}
		slog.Info("evicted old clip", "camera_id", cameraID, "alarm_id", f.alarmID)
		evicted = append(evicted, Evicted{AlarmID: f.alarmID, CameraID: cameraID})
	}

	s.cleanupEmptyDirs()

	if len(evicted) > 0 && s.onEvict != nil {
		s.onEvict(evicted)
	}
}

// cleanupEmptyDirs 自底向上清掉淘汰后留下的空目录
func (s *Store) cleanupEmptyDirs() {
	dates, err := os.ReadDir(s.baseDir)
	if err != nil {
		return
	}
	for _, d := range dates {
		if !d.IsDir() || d.Name() == ".tmp" {
			continue
		}
		dateDir := filepath.Join(s.baseDir, d.Name())
		cams, err := os.ReadDir(dateDir)
		if err != nil {
			continue
		}
		for _, cam := range cams {
			if !cam.IsDir() {
				continue
			}
			camDir := filepath.Join(dateDir, cam.Name())
			if entries, err := os.ReadDir(camDir); err == nil && len(entries) == 0 {
				_ = os.Remove(camDir)
			}
		}
		if entries, err := os.ReadDir(dateDir); err == nil && len(entries) == 0 {
			_ = os.Remove(dateDir)
		}
	}
}
