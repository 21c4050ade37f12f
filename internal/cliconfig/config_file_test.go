package cliconfig

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true
	falseVal := false
	xid := int64(734)

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				Start:        "0/16B3F28",
				Dest:         "/file/pages",
				PollInterval: "5m",
				Check:        &trueVal,
			},
			changed: map[string]bool{},
			expected: Config{
				StartText:    "0/16B3F28",
				Dest:         "/file/pages",
				PollInterval: 5 * time.Minute,
				Check:        true,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				Dest:      "/file/pages",
				XID:       &xid,
				Relations: []uint{1259},
			},
			changed: map[string]bool{"dest": true, "rel": true},
			initial: Config{
				Dest:      "/flag/pages",
				XID:       NoXID,
				Relations: []uint{16384},
			},
			expected: Config{
				Dest:      "/flag/pages", // unchanged because flag was set
				XID:       734,
				Relations: []uint{16384},
			},
		},
		{
			name:       "returns error for invalid duration",
			fileConfig: FileConfig{MaxPollInterval: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
		{
			name: "handles all field types correctly",
			fileConfig: FileConfig{
				Start:           "0/1000000",
				End:             "0/2000000",
				XID:             &xid,
				Relations:       []uint{16384, 16390},
				Dest:            "/pages",
				Check:           &trueVal,
				DryRun:          &falseVal,
				Follow:          &trueVal,
				PollInterval:    "1s",
				MaxPollInterval: "1m",
				OnMalformed:     "fail",
				LogLevel:        "warn",
				LogFormat:       "console",
			},
			changed: map[string]bool{},
			initial: Config{DryRun: true},
			expected: Config{
				StartText:       "0/1000000",
				EndText:         "0/2000000",
				XID:             734,
				Relations:       []uint{16384, 16390},
				Dest:            "/pages",
				Check:           true,
				DryRun:          false,
				Follow:          true,
				PollInterval:    time.Second,
				MaxPollInterval: time.Minute,
				OnMalformed:     OnMalformedFail,
				LogLevel:        "warn",
				LogFormat:       LogFormatConsole,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyFileConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyFileConfig() unexpected error: %v", err)
				return
			}

			if !tt.wantErr && !reflect.DeepEqual(cfg, tt.expected) {
				t.Errorf("ApplyFileConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
start = "0/16B3F28"
xid = 734
relations = [16384, 16390]
poll_interval = "5m"
dry_run = true
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.Start != "0/16B3F28" {
		t.Errorf("Start = %v, want 0/16B3F28", fc.Start)
	}
	if fc.XID == nil || *fc.XID != 734 {
		t.Errorf("XID = %v, want 734", fc.XID)
	}
	if !reflect.DeepEqual(fc.Relations, []uint{16384, 16390}) {
		t.Errorf("Relations = %v, want [16384 16390]", fc.Relations)
	}
	if fc.PollInterval != "5m" {
		t.Errorf("PollInterval = %v, want 5m", fc.PollInterval)
	}
	if fc.DryRun == nil || *fc.DryRun != true {
		t.Errorf("DryRun = %v, want true", fc.DryRun)
	}
}

func TestLoadFileConfig_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "walfp.yaml")

	yamlContent := `
end: 0/3000000
relations:
  - 2619
dest: /yaml/pages
on_malformed: fail
follow: true
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.End != "0/3000000" {
		t.Errorf("End = %v, want 0/3000000", fc.End)
	}
	if !reflect.DeepEqual(fc.Relations, []uint{2619}) {
		t.Errorf("Relations = %v, want [2619]", fc.Relations)
	}
	if fc.Dest != "/yaml/pages" {
		t.Errorf("Dest = %v, want /yaml/pages", fc.Dest)
	}
	if fc.OnMalformed != "fail" {
		t.Errorf("OnMalformed = %v, want fail", fc.OnMalformed)
	}
	if fc.Follow == nil || !*fc.Follow {
		t.Errorf("Follow = %v, want true", fc.Follow)
	}
	if fc.XID != nil {
		t.Errorf("XID = %v, want nil", *fc.XID)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
start = "0/1"
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestLoadFileConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yml")

	if err := os.WriteFile(configPath, []byte("relations: [1, 2\n"), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid YAML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" && !strings.Contains(path, ".walfp") {
		t.Errorf("DefaultConfigPath() = %v, should contain .walfp", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
