//go:build !linux && !windows

package cmd

import (
	"errors"

	"github.com/sitincloud/owlyshield-predict/collector"
	"github.com/sitincloud/owlyshield-predict/config"
	"github.com/sitincloud/owlyshield-predict/engine"
)

// newPlatformCollector has no kernel collaborator on platforms other than
// the two spec.md §6 names (Windows minifilter, Linux eBPF). It fails
// fast rather than running a daemon with no event source.
func newPlatformCollector(cfg config.Config) (collector.Normalizer, engine.KillRequester, func(stop <-chan struct{}), error) {
	return nil, nil, nil, errors.New("owlyshield-predict: no kernel collaborator on this platform")
}
