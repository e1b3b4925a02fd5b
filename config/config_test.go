package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseKillPolicy(t *testing.T) {
	cases := map[string]KillPolicy{
		"Kill":      PolicyKill,
		"Suspend":   PolicySuspend,
		"DoNothing": PolicyDoNothing,
		"bogus":     PolicySuspend,
		"":          PolicySuspend,
	}
	for in, want := range cases {
		if got := ParseKillPolicy(in); got != want {
			t.Errorf("ParseKillPolicy(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	got := Load(path)
	want := Default()
	if got.KillPolicy != want.KillPolicy {
		t.Fatalf("KillPolicy = %q, want %q", got.KillPolicy, want.KillPolicy)
	}
	if got.ThresholdPrediction != want.ThresholdPrediction {
		t.Fatalf("ThresholdPrediction = %v, want %v", got.ThresholdPrediction, want.ThresholdPrediction)
	}
	if got.TimestepsStride != want.TimestepsStride {
		t.Fatalf("TimestepsStride = %v, want %v", got.TimestepsStride, want.TimestepsStride)
	}
	if got.RPCAddr != want.RPCAddr {
		t.Fatalf("RPCAddr = %q, want %q", got.RPCAddr, want.RPCAddr)
	}
	if len(got.LinuxScanDirs) != 0 {
		t.Fatalf("LinuxScanDirs = %v, want empty", got.LinuxScanDirs)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := Default()
	cfg.KillPolicy = PolicyKill
	cfg.ThresholdPrediction = 0.75
	cfg.MqttServer = "broker:1883"
	cfg.LinuxScanDirs = []string{"/home", "/data"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := Load(path)
	if got.KillPolicy != PolicyKill {
		t.Fatalf("KillPolicy = %q, want Kill", got.KillPolicy)
	}
	if got.ThresholdPrediction != 0.75 {
		t.Fatalf("ThresholdPrediction = %v, want 0.75", got.ThresholdPrediction)
	}
	if got.MqttServer != "broker:1883" {
		t.Fatalf("MqttServer = %q, want broker:1883", got.MqttServer)
	}
	if len(got.LinuxScanDirs) != 2 || got.LinuxScanDirs[0] != "/home" {
		t.Fatalf("LinuxScanDirs = %v, want [/home /data]", got.LinuxScanDirs)
	}
}

func TestLoadMalformedFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatalf("write malformed config: %v", err)
	}
	got := Load(path)
	if got.KillPolicy != PolicySuspend {
		t.Fatalf("KillPolicy = %q after malformed load, want default Suspend", got.KillPolicy)
	}
}
