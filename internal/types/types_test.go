package types

import (
	"encoding/json"
	"testing"
)

func TestFlexIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    uint
		wantErr bool
	}{
		{in: `42`, want: 42},
		{in: `"42"`, want: 42},
		{in: `" 7 "`, want: 7},
		{in: `0`, wantErr: true},
		{in: `"abc"`, wantErr: true},
		{in: `true`, wantErr: true},
	}

	for _, tt := range tests {
		var got FlexID
		err := json.Unmarshal([]byte(tt.in), &got)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.in, err)
			continue
		}
		if got.Uint() != tt.want {
			t.Errorf("%s: got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFlexListUnmarshal(t *testing.T) {
	var body struct {
		IDs FlexList[FlexID] `json:"ids"`
	}

	if err := json.Unmarshal([]byte(`{"ids": "5"}`), &body); err != nil {
		t.Fatalf("Unmarshal single failed: %v", err)
	}
	if len(body.IDs) != 1 || body.IDs[0] != 5 {
		t.Errorf("Expected [5], got %v", body.IDs)
	}

	body.IDs = nil
	if err := json.Unmarshal([]byte(`{"ids": [3, "4", 3]}`), &body); err != nil {
		t.Fatalf("Unmarshal list failed: %v", err)
	}
	unique := body.IDs.Unique()
	if len(unique) != 2 || unique[0] != 3 || unique[1] != 4 {
		t.Errorf("Expected [3 4], got %v", unique)
	}
}
