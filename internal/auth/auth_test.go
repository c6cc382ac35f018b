package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return key
}

func TestSigner_SignAndVerify(t *testing.T) {
	key := testKey(t)
	s := &Signer{KeyID: "test-key-id", PrivateKey: key}

	payload := []byte(`{"epoch_id":"e1","tier":2,"prize":540}`)
	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if sig == "" {
		t.Fatal("Sign returned empty signature")
	}

	if err := Verify(&key.PublicKey, payload, sig); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	if err := Verify(&key.PublicKey, []byte("tampered"), sig); err == nil {
		t.Error("Verify accepted a tampered payload")
	}
}

func TestLoadPrivateKey_PKCS8(t *testing.T) {
	key := testKey(t)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	path := writeKeyFile(t, "PRIVATE KEY", der)

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}
	if loaded.N.Cmp(key.N) != 0 {
		t.Error("loaded key does not match original")
	}
}

func TestLoadPrivateKey_PKCS1(t *testing.T) {
	key := testKey(t)
	path := writeKeyFile(t, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}
	if loaded.N.Cmp(key.N) != 0 {
		t.Error("loaded key does not match original")
	}
}

func TestLoadPrivateKey_InvalidPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(path, []byte("not a pem"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPrivateKey(path); err == nil || !strings.Contains(err.Error(), "PEM") {
		t.Errorf("error = %v, want PEM decode failure", err)
	}
}

func TestLoadSigner_RequiresKeyID(t *testing.T) {
	if _, err := LoadSigner("", "/tmp/key.pem"); err == nil {
		t.Error("LoadSigner with empty key id succeeded")
	}
}

func writeKeyFile(t *testing.T, blockType string, der []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "key.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
