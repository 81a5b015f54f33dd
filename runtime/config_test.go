package runtime

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/bfbridge/errors"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvResourcePath, "/opt/bfbridge/jar/*")
	t.Setenv(EnvCachePath, "/var/cache/bfbridge")

	cfg := ConfigFromEnv()
	if cfg.ResourcePath != "/opt/bfbridge/jar/*" || cfg.CachePath != "/var/cache/bfbridge" {
		t.Errorf("ConfigFromEnv() = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{ResourcePath: "/x"}, false},
		{"missing resource path", Config{CachePath: "/c"}, true},
		{"negative buffer", Config{ResourcePath: "/x", BufferSize: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !stderrors.Is(err, errors.Configuration) {
				t.Errorf("error %v is not a configuration error", err)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("resource_path: /opt/bf\ncache_path: /tmp/c\nbuffer_size: 1048576\n"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	want := Config{ResourcePath: "/opt/bf", CachePath: "/tmp/c", BufferSize: 1 << 20}
	if cfg != want {
		t.Errorf("ParseConfig() = %+v, want %+v", cfg, want)
	}

	if _, err := ParseConfig([]byte("classpath: /x\n")); !stderrors.Is(err, errors.Configuration) {
		t.Errorf("unknown key = %v, want configuration error", err)
	}

	empty, err := ParseConfig(nil)
	if err != nil || empty != (Config{}) {
		t.Errorf("ParseConfig(nil) = %+v, %v", empty, err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bfbridge.yaml")
	if err := os.WriteFile(path, []byte("resource_path: /from/file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ResourcePath != "/from/file" {
		t.Errorf("ResourcePath = %q", cfg.ResourcePath)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig on a missing file should fail")
	}
}

func TestConfig_Merge(t *testing.T) {
	base := Config{ResourcePath: "/file", CachePath: "/file-cache", BufferSize: 10}
	got := base.Merge(Config{ResourcePath: "/env"})
	want := Config{ResourcePath: "/env", CachePath: "/file-cache", BufferSize: 10}
	if got != want {
		t.Errorf("Merge() = %+v, want %+v", got, want)
	}
	if base.bufferSize() != 10 || (Config{}).bufferSize() != DefaultBufferSize {
		t.Error("bufferSize() default not applied")
	}
}
