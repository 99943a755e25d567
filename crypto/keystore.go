package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
)

// keystoreFile is the on-disk JSON envelope for a saved key. Unlike the
// predecessor chain's go-ethereum v3 keystore format (wired to secp256k1
// keys only), this envelope is algorithm-agnostic: Algo and Ciphertext wrap
// whatever PrivateKey.Bytes produced, so the same file format stores either
// a Dilithium or a legacy ECDSA key.
type keystoreFile struct {
	Algo       Algo   `json:"algo"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

const (
	keystoreArgonTime    = 1
	keystoreArgonMemory  = 64 * 1024
	keystoreArgonThreads = 4
	keystoreArgonKeyLen  = 32
	keystoreSaltLen      = 16
)

func keystoreDeriveAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, keystoreArgonTime, keystoreArgonMemory, keystoreArgonThreads, keystoreArgonKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: keystore cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// SaveToKeystore writes key to path as a passphrase-encrypted JSON envelope.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return fmt.Errorf("crypto: nil private key")
	}
	salt := make([]byte, keystoreSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("crypto: keystore salt: %w", err)
	}
	aead, err := keystoreDeriveAEAD(passphrase, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("crypto: keystore nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, key.Bytes(), nil)

	enc, err := json.Marshal(keystoreFile{
		Algo:       key.Algo(),
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return fmt.Errorf("crypto: keystore encode: %w", err)
	}
	return os.WriteFile(path, enc, 0o600)
}

// LoadFromKeystore decrypts a keystore file written by SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: keystore read: %w", err)
	}
	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("crypto: keystore decode: %w", err)
	}
	aead, err := keystoreDeriveAEAD(passphrase, file.Salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, file.Nonce, file.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: keystore decrypt (wrong passphrase?): %w", err)
	}
	return PrivateKeyFromBytes(plaintext)
}
