package store

import (
	"reflect"
	"testing"
)

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "postgres://replica1/db", []string{"postgres://replica1/db"}},
		{
			"multiple with whitespace",
			"postgres://replica1/db, postgres://replica2/db ,postgres://replica3/db",
			[]string{"postgres://replica1/db", "postgres://replica2/db", "postgres://replica3/db"},
		},
		{"trailing comma", "postgres://replica1/db,", []string{"postgres://replica1/db"}},
		{"only commas", ",,,", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReplicaURLs(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseReplicaURLs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestReplicaFallsBackToPrimary(t *testing.T) {
	store, _ := newTestStore(t)

	if store.conn.Replica() != store.conn.Primary() {
		t.Error("Replica() should return primary when no replicas configured")
	}
}
