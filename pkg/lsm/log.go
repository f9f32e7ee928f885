package lsm

import (
	"log"

	"k8s.io/klog/v2"
)

// logf reports a background-worker error (or an SSTable skipped at open). Flush and
// compaction errors are never surfaced to callers — they retry on the
// next tick; this is the only place they're observable.
func (lsm *LSMTree) logf(format string, args ...interface{}) {
	if lsm.config.Logger != nil {
		lsm.config.Logger(format, args...)
		return
	}
	log.Printf(format, args...)
}

// verbosef reports a lifecycle event (a flush or compaction completing)
// that is noise in the common case. Routed through klog's verbosity gate so
// embedding applications that already run klog get it for free; skipped
// entirely unless Config.Verbose is set.
func (lsm *LSMTree) verbosef(format string, args ...interface{}) {
	if !lsm.config.Verbose {
		return
	}
	klog.V(2).Infof(format, args...)
}
