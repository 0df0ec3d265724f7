// Package alarmjsonl 以 JSON Lines 文件实现报警记录的持久化
// 一行一条记录，追加写入，更新时整文件重写
package alarmjsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gowvp/kestrel/internal/core/alarm"
)

const fileName = "alarms.jsonl"

var _ alarm.Storer = (*DB)(nil)

// DB 报警存储，单文件 + 单锁
// 记录量级为每摄像头每天几十条，不值得上数据库
type DB struct {
	mu   sync.Mutex
	path string
}

func NewDB(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create alarm dir: %w", err)
	}
	return &DB{path: filepath.Join(dir, fileName)}, nil
}

func (d *DB) Alarm() alarm.RecordStorer {
	return d
}

// Append implements alarm.RecordStorer.
func (d *DB) Append(_ context.Context, r *alarm.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal alarm record: %w", err)
	}
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open alarm file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("append alarm record: %w", err)
	}
	return nil
}

// UpdateFields implements alarm.RecordStorer.
func (d *DB) UpdateFields(_ context.Context, alarmID string, fields map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return err
	}
	found := false
	for _, r := range records {
		if r.AlarmID != alarmID {
			continue
		}
		found = true
		if err := applyFields(r, fields); err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", alarm.ErrNotFound, alarmID)
	}
	return d.writeAll(records)
}

// Get implements alarm.RecordStorer.
func (d *DB) Get(_ context.Context, alarmID string) (*alarm.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.AlarmID == alarmID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", alarm.ErrNotFound, alarmID)
}

// ListRecent implements alarm.RecordStorer.
func (d *DB) ListRecent(_ context.Context, limit int) ([]*alarm.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return nil, err
	}
	// 文件内按写入时间正序，倒过来让最新的排前面
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (d *DB) readAll() ([]*alarm.Record, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open alarm file: %w", err)
	}
	defer f.Close()

	var records []*alarm.Record
	scan := bufio.NewScanner(f)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scan.Scan() {
		line := scan.Bytes()
		if len(line) == 0 {
			continue
		}
		var r alarm.Record
		if err := json.Unmarshal(line, &r); err != nil {
			// 坏行跳过，不让单条损坏拖垮整个文件
			continue
		}
		records = append(records, &r)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("scan alarm file: %w", err)
	}
	return records, nil
}

// writeAll 先写临时文件再原子替换，避免中途崩溃留下半个文件
func (d *DB) writeAll(records []*alarm.Record) error {
	tmp := d.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp alarm file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshal alarm record: %w", err)
		}
		w.Write(b)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush alarm file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close alarm file: %w", err)
	}
	return os.Rename(tmp, d.path)
}

func applyFields(r *alarm.Record, fields map[string]any) error {
	for k, v := range fields {
		switch k {
		case "clip_url":
			r.ClipURL = toString(v)
		case "snapshot_path":
			r.SnapshotPath = toString(v)
		case "snapshot_url":
			r.SnapshotURL = toString(v)
		case "msg":
			r.Msg = toString(v)
		default:
			return fmt.Errorf("unknown alarm field: %s", k)
		}
	}
	return nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
