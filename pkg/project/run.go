package project

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

// The liveness marker holds the last heartbeat as unix seconds. Finding one
// at startup means the previous run died without a clean stop.
const (
	markerName        = "lastActive"
	heartbeatInterval = 30 * time.Second
)

// Run wraps the daemon in the liveness protocol: a stale marker is reported
// through aborted before start, the marker is refreshed while running and
// removed again on a clean SIGTERM or SIGINT stop.
func Run(start, stop func(), aborted func(time.Time)) {
	marker, err := openMarker(aborted)
	if err != nil {
		log.Fatal(err)
	}
	go heartbeat(marker)

	start()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	<-c
	stop()

	_ = marker.Close()
	if err = os.Remove(markerName); err != nil {
		log.Println(err)
	}
}

func openMarker(aborted func(time.Time)) (*os.File, error) {
	f, err := os.OpenFile(markerName, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return os.Create(markerName)
	}
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	// A marker killed before its first heartbeat is empty; nothing to report.
	if ts, err := strconv.ParseInt(string(b), 10, 0); err == nil {
		aborted(time.Unix(ts, 0))
	}
	return f, nil
}

func heartbeat(marker *os.File) {
	for {
		if _, err := marker.WriteAt([]byte(strconv.FormatInt(time.Now().Unix(), 10)), 0); err != nil {
			log.Println(err)
			_ = marker.Close()
			return
		}
		time.Sleep(heartbeatInterval)
	}
}

var releaseJobs []func()

// RegisterReleaseFunc queues a cleanup to run at shutdown; CallReleaseFunc
// runs the queue in reverse registration order.
func RegisterReleaseFunc(f func()) {
	releaseJobs = append(releaseJobs, f)
}

func CallReleaseFunc() {
	for i := len(releaseJobs) - 1; i >= 0; i-- {
		releaseJobs[i]()
	}
}
