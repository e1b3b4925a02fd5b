// Package cmd implements the command-line surface: flag parsing and mode
// dispatch, following xtop's cmd/root.go "one flat Config struct, one
// printUsage banner" shape.
package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/sitincloud/owlyshield-predict/config"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

func printUsage() {
	fmt.Fprintf(os.Stderr, `owlyshield-predict v%s — behavioral anti-ransomware agent

Usage:
  owlyshield-predict [OPTIONS]

Modes:
  (default)      Run the foreground daemon: attach the kernel collaborator,
                 score live process families, apply the configured kill policy
  -replay FILE   Re-ingest a recorded event file instead of attaching the
                 live kernel collaborator, and print a summary
  -watch         Live terminal view of tracked families, polling the RPC
                 surface of a daemon already running on -rpc-addr
  -version       Print version and exit

Options:
  -config PATH   Path to config.json (default: platform config dir)
  -datadir PATH  Override the data/config directory
  -record FILE   Record every ingested event to FILE for later -replay
  -rpc-addr ADDR Override the JSON-RPC listen/poll address
  -whitelist PATH  Override the whitelist file path
  -kill-policy P Override the kill policy: Suspend, Kill, DoNothing

Examples:
  sudo owlyshield-predict
  sudo owlyshield-predict -kill-policy Kill
  sudo owlyshield-predict -record /var/lib/owlyshield-predict/session.rec
  owlyshield-predict -replay /var/lib/owlyshield-predict/session.rec
  owlyshield-predict -watch
`, Version)
}

// Run parses flags and dispatches to the selected mode.
func Run() error {
	var (
		configPath  string
		dataDir     string
		recordPath  string
		replayPath  string
		rpcAddr     string
		whitelist   string
		killPolicy  string
		watchMode   bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config.json")
	flag.StringVar(&dataDir, "datadir", "", "Override the data/config directory")
	flag.StringVar(&recordPath, "record", "", "Record every ingested event to FILE")
	flag.StringVar(&replayPath, "replay", "", "Replay a recorded event file and exit")
	flag.StringVar(&rpcAddr, "rpc-addr", "", "Override the JSON-RPC listen/poll address")
	flag.StringVar(&whitelist, "whitelist", "", "Override the whitelist file path")
	flag.StringVar(&killPolicy, "kill-policy", "", "Override the kill policy: Suspend, Kill, DoNothing")
	flag.BoolVar(&watchMode, "watch", false, "Live terminal view of a running daemon")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Printf("owlyshield-predict v%s\n", Version)
		return nil
	}

	if configPath != "" {
		if _, err := os.ReadFile(configPath); err != nil {
			return fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	cfg := config.Load(configPath)
	if dataDir != "" {
		cfg.ConfigPath = dataDir
	}
	if recordPath != "" {
		cfg.RecordPath = recordPath
	}
	if rpcAddr != "" {
		cfg.RPCAddr = rpcAddr
	}
	if whitelist != "" {
		cfg.WhitelistPath = whitelist
	}
	if killPolicy != "" {
		cfg.KillPolicy = config.ParseKillPolicy(killPolicy)
	}

	if watchMode {
		return RunWatch(cfg)
	}
	if replayPath != "" {
		return RunReplay(replayPath, cfg)
	}
	return RunDaemon(cfg)
}
