package secrets

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	store := NewFileStore(path)

	if _, ok, err := store.Get("missing"); err != nil || ok {
		t.Fatalf("Get on empty store = ok=%v err=%v", ok, err)
	}

	key := Key("translator", "api_key")
	if key != "plugin.translator.api_key" {
		t.Fatalf("Key = %q", key)
	}
	if err := store.Set(key, "sk-test"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := store.Get(key)
	if err != nil || !ok || v != "sk-test" {
		t.Fatalf("Get = %q ok=%v err=%v", v, ok, err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("secrets file mode = %o, want 600", perm)
		}
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(key); ok {
		t.Error("secret still present after Delete")
	}
	// deleting again is a no-op
	if err := store.Delete(key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}
