package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/sitincloud/owlyshield-predict/config"
	"github.com/sitincloud/owlyshield-predict/connectors"
	"github.com/sitincloud/owlyshield-predict/engine"
	"github.com/sitincloud/owlyshield-predict/model"
)

// RunReplay re-ingests a recorded file's events through a fresh registry and
// worker, with no live collector and no kernel-side kill requester, so the
// same feature vectors and decisions the live run produced can be inspected
// offline. Matches spec.md §8's "writing them to the record sink and
// replaying them ... yields byte-identical final feature vectors" property.
func RunReplay(path string, cfg config.Config) error {
	events, err := connectors.ReadRecordFile(path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	log.Printf("replay: loaded %d events from %s", len(events), path)

	registry := engine.NewRegistry(matrixRows)
	whitelist := engine.NewWhitelist(cfg.WhitelistPath)
	sinks := connectors.NewBroadcaster()
	sinks.Register(connectors.NewReportWriter(cfg.ConfigPath))
	rpcSink := connectors.NewRPCSink()
	sinks.Register(rpcSink)

	predictor := engine.NewSequence(engine.NullModel{}, engine.ColumnStats{})
	controller := engine.NewController(
		engine.ParseKillPolicy(string(cfg.KillPolicy)),
		cfg.ThresholdPrediction,
		noopKillRequester{},
		"",
		func(f *model.FamilyRecord, score float32) {
			sinks.Kill(f.Snapshot(score), score)
		},
	)
	workerCfg := engine.DefaultWorkerConfig()
	workerCfg.Stride = cfg.ThresholdDriverMsgs
	workerCfg.DecisionThreshold = cfg.ThresholdPrediction
	worker := engine.NewWorker(nil, registry, whitelist, predictor, controller, sinks, nil, workerCfg)

	start := time.Now()
	for _, e := range events {
		worker.HandleEvent(e)
	}
	log.Printf("replay: processed %d events across %d families in %s", len(events), registry.Len(), time.Since(start))
	return nil
}

type noopKillRequester struct{}

func (noopKillRequester) RequestKill(familyID uint64) error { return nil }
