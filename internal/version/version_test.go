package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFillDefaults(t *testing.T) {
	tests := []struct {
		name        string
		settings    []debug.BuildSetting
		wantVersion string
		wantCommit  string
		wantDate    string
	}{
		{
			name:        "no vcs stamp",
			wantVersion: "dev",
			wantCommit:  "none",
			wantDate:    "unknown",
		},
		{
			name: "vcs stamp",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef"},
				{Key: "vcs.time", Value: "2025-08-11T18:42:00Z"},
				{Key: "vcs.modified", Value: "true"},
			},
			wantVersion: "dev-dirty",
			wantCommit:  "0123456",
			wantDate:    "2025-08-11T18:42:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit, BuildDate = "dev", "", ""
			fillDefaults(tt.settings)
			if Version != tt.wantVersion || Commit != tt.wantCommit || BuildDate != tt.wantDate {
				t.Errorf("got (%s, %s, %s), want (%s, %s, %s)",
					Version, Commit, BuildDate, tt.wantVersion, tt.wantCommit, tt.wantDate)
			}
		})
	}
}

func TestFillDefaultsKeepsLinkerValues(t *testing.T) {
	Version, Commit, BuildDate = "v1.2.3", "abc1234", "2025-01-01T00:00:00Z"
	fillDefaults([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "fffffffffff"},
		{Key: "vcs.modified", Value: "true"},
	})

	if got := String(); !strings.HasPrefix(got, "hometab v1.2.3 (commit=abc1234, built=2025-01-01T00:00:00Z") {
		t.Errorf("String() = %q", got)
	}
}
