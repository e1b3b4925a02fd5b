// Package collector implements C1, the Event Normalizer: it turns
// source-specific raw records (an eBPF ring-buffer record on Linux, a
// minifilter IOCTL record on Windows) into the canonical model.IoEvent and
// pushes them onto the worker's bounded queue.
package collector

import (
	"sync/atomic"

	"github.com/sitincloud/owlyshield-predict/engine"
)

// Normalizer is the common surface every platform collector satisfies: start
// reading raw records and push normalized events onto queue until Close is
// called.
type Normalizer interface {
	Name() string
	Run(queue *engine.EventQueue) error
	Close() error
}

// Dropped counts raw records that failed to decode into a complete IoEvent.
// A malformed record is never partially normalized — it is either a full
// IoEvent or it is dropped and counted here. No component in this
// repository reads or reports the counter.
var Dropped atomic.Uint64
