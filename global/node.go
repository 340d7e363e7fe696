package global

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var startTime = time.Now()

// UptimeMs is the daemon's monotonic uptime, the counterpart of the
// firmware millis() clock stamped on every telemetry record.
func UptimeMs() uint64 {
	return uint64(time.Since(startTime).Milliseconds())
}

var (
	chipIdOnce sync.Once
	chipId     string
)

// ChipId returns a stable hex identifier for this board, read from
// /etc/machine-id. Falls back to a hash of the hostname.
func ChipId() string {
	chipIdOnce.Do(func() {
		if b, err := os.ReadFile("/etc/machine-id"); err == nil {
			s := strings.TrimSpace(string(b))
			if len(s) > 16 {
				s = s[:16]
			}
			if s != "" {
				chipId = s
				return
			}
		}
		host, _ := os.Hostname()
		h := fnv.New64a()
		_, _ = h.Write([]byte(host))
		chipId = strconv.FormatUint(h.Sum64(), 16)
	})
	return chipId
}

var abortedAt time.Time

// MarkAborted records that the previous run did not shut down cleanly.
func MarkAborted(t time.Time) {
	abortedAt = t
}

func LastAborted() (time.Time, bool) {
	return abortedAt, !abortedAt.IsZero()
}

func ResetReason() string {
	if abortedAt.IsZero() {
		return "PowerOn"
	}
	return "Aborted"
}
