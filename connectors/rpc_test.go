package connectors

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/sitincloud/owlyshield-predict/model"
)

func TestRPCSinkPing(t *testing.T) {
	s := NewRPCSink()
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"jsonrpc":"2.0","method":"ping","id":"1"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp rpcResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result != "pong" {
		t.Fatalf("result = %v, want pong", resp.Result)
	}
	if resp.Error != nil {
		t.Fatalf("error = %v, want nil", resp.Error)
	}
}

func TestRPCSinkLastPredictionReflectsOnTimestep(t *testing.T) {
	s := NewRPCSink()
	view := model.FamilyView{FamilyID: 5, AppName: "evil.exe", State: model.StateRunning, LastScore: 0.42}
	if err := s.OnTimestep(view, model.Timestep{}); err != nil {
		t.Fatalf("on timestep: %v", err)
	}

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"jsonrpc":"2.0","method":"last_prediction","id":"2"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp rpcResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var entries []lastPredictionEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("unmarshal entries: %v", err)
	}
	if len(entries) != 1 || entries[0].FamilyID != 5 || entries[0].AppName != "evil.exe" {
		t.Fatalf("entries = %+v, want one entry for family 5", entries)
	}
}

func TestRPCSinkUnknownMethod(t *testing.T) {
	s := NewRPCSink()
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"jsonrpc":"2.0","method":"nope","id":"3"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp rpcResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("error = %+v, want code -32601", resp.Error)
	}
}

func TestRPCSinkOnKillUpdatesExistingEntry(t *testing.T) {
	s := NewRPCSink()
	view := model.FamilyView{FamilyID: 5, AppName: "evil.exe", State: model.StateRunning}
	_ = s.OnTimestep(view, model.Timestep{})

	killed := view
	killed.State = model.StateKilled
	if err := s.OnKill(killed, 0.99); err != nil {
		t.Fatalf("on kill: %v", err)
	}

	entries := s.snapshot()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Score != 0.99 || entries[0].State != "Killed" {
		t.Fatalf("entries[0] = %+v, want score 0.99 state Killed", entries[0])
	}
}
