package main

import (
	"path/filepath"
	"testing"

	"contact_harvest/internal/shared/types"
)

func TestResolvePathsAgainstConfigDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "out.csv")
	cfg := &types.Config{
		LogConf:   types.LogConf{File: "harvest.log"},
		StoreConf: types.StoreConf{Backend: "file", Dir: "data"},
		RunConf:   types.RunConf{CandidatesFile: "proxies.txt", OutputFile: abs},
	}
	resolvePaths(filepath.Join("/etc", "harvest"), cfg)

	tests := []struct {
		name, got, want string
	}{
		{"log file", cfg.LogConf.File, filepath.Join("/etc", "harvest", "harvest.log")},
		{"store dir", cfg.StoreConf.Dir, filepath.Join("/etc", "harvest", "data")},
		{"candidates", cfg.RunConf.CandidatesFile, filepath.Join("/etc", "harvest", "proxies.txt")},
		{"absolute output kept", cfg.RunConf.OutputFile, abs},
		{"empty profile kept", cfg.RunConf.SiteProfile, ""},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
