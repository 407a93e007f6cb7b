package main

import (
	"log/slog"
	"time"

	"github.com/valydumitru01/Burst/internal/profiling"
	"github.com/valydumitru01/Burst/internal/render"
	"github.com/valydumitru01/Burst/internal/streaming"
)

// frameLog reports pipeline statistics about once per interval.
type frameLog struct {
	log      *slog.Logger
	interval time.Duration
	last     time.Time
	frames   int
}

func newFrameLog(log *slog.Logger, interval time.Duration) *frameLog {
	return &frameLog{log: log, interval: interval, last: time.Now()}
}

func (l *frameLog) frame(st streaming.FrameStats, rs render.Stats) {
	l.frames++
	now := time.Now()
	elapsed := now.Sub(l.last)
	if elapsed < l.interval {
		return
	}
	fps := float64(l.frames) / elapsed.Seconds()
	l.log.Info("frame",
		"fps", int(fps+0.5),
		"center", st.Center,
		"radius", st.Radius,
		"loaded", st.Loaded,
		"desired", st.Desired,
		"queued", st.Queued,
		"generating", st.Generating,
		"meshing", st.Meshing,
		"pending_upload", st.PendingUpload,
		"evicting", st.Evicting,
		"drawn", rs.Drawn,
		"culled", rs.Culled,
		"triangles", rs.Triangles,
		"top", profiling.Default().TopN(5))
	profiling.Default().Reset()
	l.last = now
	l.frames = 0
}
