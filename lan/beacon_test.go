package lan

import (
	"encoding/json"
	"testing"
)

func TestBeaconWireShape(t *testing.T) {
	raw, err := json.Marshal(Beacon{Type: "beacon", Name: "den", Port: 8080, TS: 1700000000})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"type", "name", "port", "ts"} {
		if _, ok := m[k]; !ok {
			t.Errorf("beacon missing %q field: %s", k, raw)
		}
	}
	if m["type"] != "beacon" {
		t.Errorf("type = %v, want beacon", m["type"])
	}
}
