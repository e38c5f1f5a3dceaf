package config

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func reloaderConfigYAML(chunkSize int64) string {
	return fmt.Sprintf(`
remote:
  driver: telegram
  telegram:
    bot_token: "tok"
    chat_id: "42"
chunking:
  enabled: true
  size: %d
`, chunkSize)
}

func newTestReloader(t *testing.T) (*ConfigReloader, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(reloaderConfigYAML(1024)), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	initial, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	r, err := NewConfigReloader(path, initial, logger)
	if err != nil {
		t.Fatalf("NewConfigReloader: %v", err)
	}
	t.Cleanup(r.Stop)
	return r, path
}

func waitForChunkSize(t *testing.T, r *ConfigReloader, want int64) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if r.Current().Chunking.Size == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("chunk size never became %d, still %d", want, r.Current().Chunking.Size)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestReloaderPicksUpFileChange(t *testing.T) {
	r, path := newTestReloader(t)

	if got := r.Current().Chunking.Size; got != 1024 {
		t.Fatalf("initial chunk size = %d", got)
	}

	if err := os.WriteFile(path, []byte(reloaderConfigYAML(2048)), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	waitForChunkSize(t, r, 2048)
}

func TestReloaderInvokesCallbacks(t *testing.T) {
	r, path := newTestReloader(t)

	sizes := make(chan int64, 4)
	r.OnReload(func(cfg *Config) { sizes <- cfg.Chunking.Size })

	if err := os.WriteFile(path, []byte(reloaderConfigYAML(4096)), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case got := <-sizes:
		if got != 4096 {
			t.Errorf("callback saw chunk size %d, want 4096", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestReloaderKeepsPreviousOnInvalidConfig(t *testing.T) {
	r, path := newTestReloader(t)

	// Invalid config: bot token removed. The reload must be rejected and
	// the previous config retained.
	bad := `
remote:
  driver: telegram
  telegram:
    chat_id: "42"
`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	time.Sleep(600 * time.Millisecond)
	if got := r.Current().Chunking.Size; got != 1024 {
		t.Errorf("invalid reload replaced config, chunk size = %d", got)
	}
	if r.Current().Remote.Telegram.BotToken != "tok" {
		t.Error("invalid reload dropped bot token")
	}
}

func TestReloaderSIGHUP(t *testing.T) {
	r, path := newTestReloader(t)

	// Replace the file via rename to avoid relying on the watcher here,
	// then trigger the reload explicitly with SIGHUP.
	tmp := path + ".new"
	if err := os.WriteFile(tmp, []byte(reloaderConfigYAML(8192)), 0o644); err != nil {
		t.Fatalf("write replacement: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("kill: %v", err)
	}

	waitForChunkSize(t, r, 8192)
}

func TestReloaderStopIsIdempotent(t *testing.T) {
	r, _ := newTestReloader(t)
	r.Stop()
	r.Stop()
}
