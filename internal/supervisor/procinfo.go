package supervisor

import (
	"context"
	"errors"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ProcInfo is an OS-level snapshot of the managed process.
type ProcInfo struct {
	Pid        int       `json:"pid"`
	CreateTime time.Time `json:"create_time"`
	RSSBytes   uint64    `json:"rss_bytes"`
	Threads    int32     `json:"threads"`
	Cmdline    string    `json:"cmdline"`
}

// ErrNotRunning is returned by Inspect when no live process is tracked.
var ErrNotRunning = errors.New("managed process is not running")

// Inspect reads process details of the tracked pid. Fields that cannot be
// read are left zero.
func (s *Supervisor) Inspect(ctx context.Context) (*ProcInfo, error) {
	if !s.CheckAlive() {
		return nil, ErrNotRunning
	}
	pid := s.Pid()
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}
	info := &ProcInfo{Pid: pid}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		info.CreateTime = time.UnixMilli(ms)
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		info.Threads = n
	}
	if cl, err := p.CmdlineWithContext(ctx); err == nil {
		info.Cmdline = cl
	}
	return info, nil
}
