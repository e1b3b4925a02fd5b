package engine

import "github.com/sitincloud/owlyshield-predict/model"

// clusterResult is a completed async clustering job's output, carried back
// to the worker loop over a channel so only T2 ever mutates FamilyRecord.
type clusterResult struct {
	familyID uint64
	count    int
	maxSize  int
}

// ClusterRunner offloads C3 to a worker pool, enforcing a single-slot
// "in-flight" guard per family: if a job is already running for a family no
// second one is launched, and a stale result is simply applied when it
// eventually arrives — matching §4.3's concurrency note that stale cluster
// results are acceptable because the matrix is rolling.
type ClusterRunner struct {
	results chan clusterResult
}

// NewClusterRunner creates a runner with a buffered result channel so
// MaybeLaunch's background goroutines never block on publishing.
func NewClusterRunner(buffer int) *ClusterRunner {
	return &ClusterRunner{results: make(chan clusterResult, buffer)}
}

// MaybeLaunch starts an async clustering job for f's current directory set
// if none is already in flight for it.
func (c *ClusterRunner) MaybeLaunch(f *model.FamilyRecord) {
	if f.ClusterInFlight {
		return
	}
	f.ClusterInFlight = true
	paths := f.ClusterInputPaths()
	familyID := f.FamilyID
	go func() {
		clusters := ClusterPaths(paths)
		maxSize := 0
		for _, cl := range clusters {
			if cl.Size > maxSize {
				maxSize = cl.Size
			}
		}
		c.results <- clusterResult{familyID: familyID, count: len(clusters), maxSize: maxSize}
	}()
}

// Results exposes the completion channel for the worker loop to select on.
func (c *ClusterRunner) Results() <-chan clusterResult {
	return c.results
}

// Apply writes a completed job's output onto the matching family record and
// clears its in-flight guard. A result for a family that has since been
// purged is silently dropped.
func (c *ClusterRunner) Apply(registry *Registry, res clusterResult) {
	f, ok := registry.Get(res.familyID)
	if !ok {
		return
	}
	f.ClusterCount = res.count
	f.ClusterMaxSize = res.maxSize
	f.ClusterInFlight = false
}
