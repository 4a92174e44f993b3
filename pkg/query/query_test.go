package query

import (
	"fmt"
	"runtime"
	"strings"
	"testing"
)

func TestConfigSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "defaults use one thread per cpu",
			cfg:  DefaultConfig(),
			want: []string{fmt.Sprintf("SET threads=%d", runtime.NumCPU())},
		},
		{
			name: "explicit resources",
			cfg:  Config{MemoryLimit: "4GB", Threads: 8, TempDir: "/tmp/tf"},
			want: []string{
				"SET threads=8",
				"SET memory_limit='4GB'",
				"SET temp_directory='/tmp/tf'",
			},
		},
		{
			name: "negative threads fall back to cpu count",
			cfg:  Config{Threads: -1},
			want: []string{fmt.Sprintf("SET threads=%d", runtime.NumCPU())},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.settings()
			if len(got) != len(tt.want) {
				t.Fatalf("settings = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("settings[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestConfigSettingsQuoting(t *testing.T) {
	cfg := Config{Threads: 1, TempDir: "/tmp/o'brien"}
	got := cfg.settings()
	if !strings.Contains(got[1], "'/tmp/o''brien'") {
		t.Errorf("temp_directory not quoted: %q", got[1])
	}
}
