package crypto

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("unexpected encoding %s", encoded)
	}
	decoded, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded != addr {
		t.Fatalf("bech32 round trip mismatch")
	}
	fromHex, err := ParseAddress(addr.Hex())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if fromHex != addr {
		t.Fatalf("hex round trip mismatch")
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if restored.Address() != addr {
		t.Fatalf("restored key controls a different address")
	}
}

func TestParseAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := ParseAddress("cosmos1qqqsyqcyq5rqwzqfpg9scrgwpugpzysnzs23v9"); err == nil {
		t.Fatalf("expected foreign prefix to be rejected")
	}
	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatalf("expected short hex to be rejected")
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	a := DeriveAddress("treasury")
	b := DeriveAddress("treasury")
	if a != b || a.IsZero() {
		t.Fatalf("derived addresses differ or zero")
	}
	if DeriveAddress("other") == a {
		t.Fatalf("labels collide")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "admin.json")
	if err := SaveKey(path, key, "hunter2"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadKey(path, "hunter2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Address() != key.Address() {
		t.Fatalf("keystore returned a different key")
	}
	if _, err := LoadKey(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
