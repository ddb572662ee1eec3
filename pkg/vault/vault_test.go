package vault

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/docwallet-hq/agent/pkg/model"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		t.Fatal(err)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	v, err := New(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	bundle := CredentialBundle{ChainRPCToken: "rpc-secret", WalletPrivKey: "0xdeadbeef"}
	secrets, err := v.Seal("doc-1", bundle)
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.Open(secrets)
	if err != nil {
		t.Fatal(err)
	}
	if got.ChainRPCToken != bundle.ChainRPCToken || got.WalletPrivKey != bundle.WalletPrivKey {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestOpenWrongDocumentFails(t *testing.T) {
	v, err := New(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	secrets, err := v.Seal("doc-1", CredentialBundle{ChainRPCToken: "x"})
	if err != nil {
		t.Fatal(err)
	}
	secrets.DocumentID = "doc-2"
	if _, err := v.Open(secrets); err == nil {
		t.Fatal("expected decryption to fail when document ID is tampered with")
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New([]byte("too-short")); err == nil {
		t.Fatal("expected error for short master key")
	}
}
