package monitor

import (
	"log/slog"
)

// FinishedClip 收满帧的剪辑任务，交给上层编码落盘
type FinishedClip struct {
	AlarmID string
	Trigger float64
	Frames  []Frame
}

type clipTask struct {
	alarmID string
	trigger float64
	end     float64
	frames  []Frame
}

// ClipRecorder 维护报警前滚动缓冲与进行中的剪辑任务
// 非并发安全，由 Worker 串行驱动
type ClipRecorder struct {
	beforeSec float64
	afterSec  float64
	buffer    []Frame
	tasks     []*clipTask
}

func NewClipRecorder(beforeSec, afterSec int) *ClipRecorder {
	return &ClipRecorder{
		beforeSec: float64(beforeSec),
		afterSec:  float64(afterSec),
	}
}

// OnFrame 处理一帧：滚动缓冲淘汰、进行中任务追加、到期任务收尾
// 返回本帧触发收尾的剪辑（可能多个）
func (r *ClipRecorder) OnFrame(f Frame) []FinishedClip {
	// 缓冲只保留报警前窗口内的帧
	r.buffer = append(r.buffer, f)
	cutoff := f.TS - r.beforeSec
	i := 0
	for i < len(r.buffer) && r.buffer[i].TS < cutoff {
		i++
	}
	if i > 0 {
		r.buffer = append(r.buffer[:0], r.buffer[i:]...)
	}

	var finished []FinishedClip
	remaining := r.tasks[:0]
	for _, t := range r.tasks {
		if f.TS > t.end {
			if fc, ok := t.finish(); ok {
				finished = append(finished, fc)
			}
			continue
		}
		if f.TS > t.trigger {
			t.frames = append(t.frames, f)
		}
		remaining = append(remaining, t)
	}
	r.tasks = remaining
	return finished
}

// StartClip 开启一个剪辑任务，用缓冲中触发点之前的帧打底
// 同一报警重复触发只生效一次
func (r *ClipRecorder) StartClip(alarmID string, trigger float64) bool {
	for _, t := range r.tasks {
		if t.alarmID == alarmID {
			return false
		}
	}
	t := &clipTask{
		alarmID: alarmID,
		trigger: trigger,
		end:     trigger + r.afterSec,
	}
	for _, f := range r.buffer {
		if f.TS <= trigger {
			t.frames = append(t.frames, f)
		}
	}
	r.tasks = append(r.tasks, t)
	return true
}

// FlushAll 无条件收尾所有任务，停流时调用
func (r *ClipRecorder) FlushAll() []FinishedClip {
	var finished []FinishedClip
	for _, t := range r.tasks {
		if fc, ok := t.finish(); ok {
			finished = append(finished, fc)
		}
	}
	r.tasks = nil
	return finished
}

// Pending 进行中的剪辑任务数
func (r *ClipRecorder) Pending() int {
	return len(r.tasks)
}

// BufferLen 滚动缓冲中的帧数
func (r *ClipRecorder) BufferLen() int {
	return len(r.buffer)
}

func (t *clipTask) finish() (FinishedClip, bool) {
	if len(t.frames) == 0 {
		// 触发点之后流立刻断了也会走到这里
		slog.Warn("clip task finished with no frames", "alarm_id", t.alarmID)
		return FinishedClip{}, false
	}
	return FinishedClip{AlarmID: t.alarmID, Trigger: t.trigger, Frames: t.frames}, true
}
