package crypto

import (
	"path/filepath"
	"testing"
)

func TestKeystoreSaveAndLoad(t *testing.T) {
	key, err := GenerateKey(AlgoDilithium)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "validator.keystore")
	if err := SaveToKeystore(path, key, "hunter2"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}

	loaded, err := LoadFromKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if loaded.Public().Address() != key.Public().Address() {
		t.Fatalf("loaded key address mismatch")
	}

	if _, err := LoadFromKeystore(path, "wrong passphrase"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
