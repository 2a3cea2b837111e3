package pg

import (
	"strings"
	"testing"
)

func TestSchemaStatus(t *testing.T) {
	tests := []struct {
		name    string
		version uint
		dirty   bool
		wantErr string
	}{
		{"current", RequiredSchemaVersion, false, ""},
		{"behind", RequiredSchemaVersion - 1, false, "migrate up"},
		{"ahead", RequiredSchemaVersion + 1, false, "newer than this binary"},
		{"dirty", RequiredSchemaVersion, true, "migrate force"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schemaStatus(tt.version, tt.dirty).Err()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
