package engine

import (
	"log"
	"time"

	"github.com/sitincloud/owlyshield-predict/connectors"
	"github.com/sitincloud/owlyshield-predict/model"
)

// Recorder is the narrow interface the worker loop drives for C9's
// record-to-disk sink: every ingested event is appended, independent of
// cadence, so replay can reconstruct every timestep the live run produced.
type Recorder interface {
	RecordEvent(e *model.IoEvent) error
}

// SweepInterval is how often the worker loop runs the purge pass and the
// suspended-family sweep, per §4.7's "secondary timer (every ~3 s)".
const SweepInterval = 3 * time.Second

// WorkerConfig bundles the cadence thresholds §4.4's should_predict and the
// controller's decision threshold pull from configuration.
type WorkerConfig struct {
	Stride            int
	MinPathsUpdated   int
	MinMatrixRows     int
	DecisionThreshold float32
}

// DefaultWorkerConfig matches the defaults named throughout spec.md §6.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{Stride: 70, MinPathsUpdated: 60, MinMatrixRows: 70, DecisionThreshold: 0.55}
}

// Worker is C7: the single consumer that owns the registry, runs cadence
// checks, invokes the predictor and threat controller, and fans timesteps
// out to post-processors. It is the sole mutator of family state.
type Worker struct {
	Queue      *EventQueue
	Registry   *Registry
	Whitelist  *Whitelist
	Predictor  Predictor
	Controller *Controller
	Sinks      *connectors.Broadcaster
	Clusterer  *ClusterRunner
	Recorder   Recorder
	Config     WorkerConfig

	lastScore map[uint64]float32
}

// NewWorker wires together a ready-to-run worker loop.
func NewWorker(queue *EventQueue, registry *Registry, whitelist *Whitelist, predictor Predictor, controller *Controller, sinks *connectors.Broadcaster, clusterer *ClusterRunner, cfg WorkerConfig) *Worker {
	return &Worker{
		Queue:      queue,
		Registry:   registry,
		Whitelist:  whitelist,
		Predictor:  predictor,
		Controller: controller,
		Sinks:      sinks,
		Clusterer:  clusterer,
		Config:     cfg,
		lastScore:  make(map[uint64]float32),
	}
}

// Run drains the event queue until it is closed, performing a sweep every
// SweepInterval. It is meant to run on its own goroutine (T2).
func (w *Worker) Run(stop <-chan struct{}) {
	sweep := time.NewTicker(SweepInterval)
	defer sweep.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			e, ok := w.Queue.Pop()
			if !ok {
				return
			}
			w.handleEvent(e)
		}
	}()

	var clusterResults <-chan clusterResult
	if w.Clusterer != nil {
		clusterResults = w.Clusterer.Results()
	}

	for {
		select {
		case <-stop:
			w.Queue.Close()
			<-done
			return
		case <-sweep.C:
			now := time.Now()
			w.Controller.Sweep(w.Registry, now)
			if purged := w.Registry.Purge(processAlive); purged > 0 {
				log.Printf("purged %d dead families", purged)
			}
		case res := <-clusterResults:
			w.Clusterer.Apply(w.Registry, res)
		case <-done:
			return
		}
	}
}

// HandleEvent runs one iteration of the per-event algorithm directly,
// bypassing the queue. Used by the replay path, which already has its full
// event sequence in hand and needs no back-pressure behavior.
func (w *Worker) HandleEvent(e *model.IoEvent) {
	w.handleEvent(e)
}

// handleEvent is one iteration of §4.7's per-event algorithm.
func (w *Worker) handleEvent(e *model.IoEvent) {
	f, ok := w.Registry.GetOrCreate(e.FamilyID, e.SourceExe, w.Whitelist, e.Timestamp)
	if !ok {
		return
	}

	if w.Recorder != nil {
		if err := w.Recorder.RecordEvent(e); err != nil {
			log.Printf("record gid %d: %v", f.FamilyID, err)
		}
	}

	f.Ingest(e)

	var score float32
	if f.DriverMsgCount%uint64(max(w.Config.Stride, 1)) == 0 {
		f.PushTimestep()
		if w.Clusterer != nil {
			w.Clusterer.MaybeLaunch(f)
		}
		if f.ShouldPredict(w.Config.Stride, w.Config.MinPathsUpdated, w.Config.MinMatrixRows) {
			var err error
			score, err = w.Predictor.Predict(f.Matrix.Rows())
			if err != nil {
				log.Printf("predict gid %d: %v", f.FamilyID, err)
			} else {
				f.RecordPrediction()
				w.lastScore[f.FamilyID] = score
				w.Controller.Evaluate(f, score)
			}
		}
	}

	last := w.lastScore[f.FamilyID]
	view := f.Snapshot(last)
	if w.Sinks != nil {
		w.Sinks.Timestep(view, view.LastTimestep)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
