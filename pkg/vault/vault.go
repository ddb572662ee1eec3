// Package vault encrypts and decrypts the per-document credential bundle
// (API keys, wallet private keys, chain RPC tokens) stored as
// model.DocSecrets. The repository only ever sees ciphertext; this is
// the one place plaintext credentials exist in memory.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/docwallet-hq/agent/pkg/model"
)

// Vault seals and opens DocSecrets using a single master key, derived
// per-document via HKDF so a compromise of one document's derived key
// does not expose the master key or other documents' secrets.
type Vault struct {
	masterKey []byte
}

// LoadOrCreateMasterKey reads a 32-byte master key from path, generating
// and persisting a new random one (mode 0600) if the file does not exist.
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("master key at %s has wrong length %d, want %d", path, len(data), chacha20poly1305.KeySize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read master key %s: %w", path, err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create master key dir: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write master key %s: %w", path, err)
	}
	return key, nil
}

// New builds a Vault from a loaded master key.
func New(masterKey []byte) (*Vault, error) {
	if len(masterKey) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", chacha20poly1305.KeySize, len(masterKey))
	}
	return &Vault{masterKey: masterKey}, nil
}

// CredentialBundle is the plaintext shape sealed inside DocSecrets.
type CredentialBundle struct {
	ChainRPCToken   string            `json:"chain_rpc_token,omitempty"`
	WalletPrivKey   string            `json:"wallet_priv_key,omitempty"`
	StablecoinAPIKey string           `json:"stablecoin_api_key,omitempty"`
	BridgeAPIKey    string            `json:"bridge_api_key,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// IsZero reports whether the bundle carries no credentials at all, used
// to distinguish "never set up" from "set up with an empty extra map".
func (c CredentialBundle) IsZero() bool {
	return c.ChainRPCToken == "" && c.WalletPrivKey == "" && c.StablecoinAPIKey == "" &&
		c.BridgeAPIKey == "" && len(c.Extra) == 0
}

// Seal encrypts a CredentialBundle into a model.DocSecrets ready for
// storage. The document ID is bound into the derived key and AEAD
// additional data so ciphertext cannot be replayed under another
// document's ID.
func (v *Vault) Seal(docID model.DocumentID, bundle CredentialBundle) (*model.DocSecrets, error) {
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("marshal credential bundle: %w", err)
	}

	aead, err := v.aeadFor(docID)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, []byte(docID))

	return &model.DocSecrets{
		DocumentID: docID,
		Ciphertext: ciphertext,
		Nonce:      nonce,
	}, nil
}

// Open decrypts a model.DocSecrets back into its plaintext CredentialBundle.
func (v *Vault) Open(secrets *model.DocSecrets) (CredentialBundle, error) {
	var bundle CredentialBundle
	aead, err := v.aeadFor(secrets.DocumentID)
	if err != nil {
		return bundle, err
	}
	plaintext, err := aead.Open(nil, secrets.Nonce, secrets.Ciphertext, []byte(secrets.DocumentID))
	if err != nil {
		return bundle, fmt.Errorf("decrypt secrets for %s: %w", secrets.DocumentID, err)
	}
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return bundle, fmt.Errorf("unmarshal credential bundle: %w", err)
	}
	return bundle, nil
}

func (v *Vault) aeadFor(docID model.DocumentID) (cipher.AEAD, error) {
	derived := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, v.masterKey, nil, []byte("docwallet-secrets:"+string(docID)))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("derive per-document key: %w", err)
	}
	aead, err := chacha20poly1305.New(derived)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return aead, nil
}
