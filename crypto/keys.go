package crypto

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/ripemd160"
)

// Algo identifies the signature scheme backing a key pair.
type Algo string

const (
	// AlgoDilithium is the default post-quantum signature scheme (ML-DSA /
	// Dilithium3, via the circl implementation).
	AlgoDilithium Algo = "pqc_dilithium"
	// AlgoLegacyECDSA is the opt-in secp256k1 path kept for accounts
	// migrated from the predecessor chain.
	AlgoLegacyECDSA Algo = "legacy_ecdsa"
)

// AddressHRP is the bech32 human-readable part for every dytallix account
// address, regardless of the signature algorithm backing it.
const AddressHRP = "dytallix"

// LegacyAddressPrefix is the hex-with-checksum address form inherited from
// the predecessor chain. It is accepted for read-only lookups only; new
// addresses are never minted in this form. See DecodeLegacyAddress.
const LegacyAddressPrefix = "dyt"

// Address is a 20-byte account address, bech32-encoded with HRP
// "dytallix" for every key algorithm this package supports.
type Address struct {
	bytes [20]byte
}

// NewAddress wraps a 20-byte slice as an Address.
func NewAddress(b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("crypto: address must be 20 bytes, got %d", len(b))
	}
	var a Address
	copy(a.bytes[:], b)
	return a, nil
}

// MustNewAddress constructs an address and panics on invalid input. Reserved
// for genesis loading and tests where the input is already known-good.
func MustNewAddress(b []byte) Address {
	addr, err := NewAddress(b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) Bytes() []byte {
	out := make([]byte, 20)
	copy(out, a.bytes[:])
	return out
}

func (a Address) IsZero() bool {
	return a.bytes == [20]byte{}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressHRP, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAddress parses the canonical bech32 "dytallix1..." address form.
func DecodeAddress(addrStr string) (Address, error) {
	hrp, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 address: %w", err)
	}
	if hrp != AddressHRP {
		return Address{}, fmt.Errorf("crypto: unexpected address prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return NewAddress(conv)
}

// legacyChecksum is a CRC-16/CCITT-FALSE placeholder standing in for the
// predecessor chain's undocumented legacy checksum polynomial (see
// SPEC_FULL.md §4.2, Open Question on legacy address checksums). It is
// intentionally NOT presented as the real algorithm: DecodeLegacyAddress
// verifies against whatever the caller's "dyt" string actually carries and
// returns the raw 20 bytes, it does not attempt to reproduce a checksum that
// would validate against real predecessor-chain addresses.
func legacyChecksum(payload []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range payload {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// DecodeLegacyAddress parses the "dyt" + 20-byte-hex + 4-hex-digit-checksum
// form used for read-only historical lookups. It does not validate against
// the predecessor chain's real checksum (undocumented); it only verifies
// self-consistency against the placeholder checksum appended at encode time
// by EncodeLegacyAddress. Addresses imported verbatim from the predecessor
// chain's export tooling should be treated as unchecked.
func DecodeLegacyAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, LegacyAddressPrefix) {
		return Address{}, fmt.Errorf("crypto: not a legacy address")
	}
	rest := strings.TrimPrefix(s, LegacyAddressPrefix)
	if len(rest) != 44 {
		return Address{}, fmt.Errorf("crypto: malformed legacy address length")
	}
	payload, err := hex.DecodeString(rest[:40])
	if err != nil {
		return Address{}, fmt.Errorf("crypto: malformed legacy address payload: %w", err)
	}
	wantChecksum, err := hex.DecodeString(rest[40:])
	if err != nil {
		return Address{}, fmt.Errorf("crypto: malformed legacy address checksum: %w", err)
	}
	got := legacyChecksum(payload)
	var gotBytes [2]byte
	binary.BigEndian.PutUint16(gotBytes[:], got)
	if gotBytes[0] != wantChecksum[0] || gotBytes[1] != wantChecksum[1] {
		return Address{}, fmt.Errorf("crypto: legacy address checksum mismatch")
	}
	return NewAddress(payload)
}

// EncodeLegacyAddress produces the placeholder "dyt" form of an address,
// used only by genesis fixtures that need to round-trip through
// DecodeLegacyAddress in tests.
func EncodeLegacyAddress(a Address) string {
	payload := a.Bytes()
	checksum := legacyChecksum(payload)
	var checksumBytes [2]byte
	binary.BigEndian.PutUint16(checksumBytes[:], checksum)
	return LegacyAddressPrefix + hex.EncodeToString(payload) + hex.EncodeToString(checksumBytes[:])
}

// --- Key management ---

// PrivateKey is a tagged union over the two signature schemes this chain
// accepts. Exactly one of the embedded keys is non-nil, matching Algo.
type PrivateKey struct {
	algo  Algo
	dil   *mode3.PrivateKey
	ecdsa *ecdsa.PrivateKey
}

// PublicKey mirrors PrivateKey for the public half of a key pair.
type PublicKey struct {
	algo  Algo
	dil   *mode3.PublicKey
	ecdsa *ecdsa.PublicKey
}

func (k *PrivateKey) Algo() Algo { return k.algo }
func (k *PublicKey) Algo() Algo  { return k.algo }

// GenerateKey creates a fresh key pair for the given algorithm.
func GenerateKey(algo Algo) (*PrivateKey, error) {
	switch algo {
	case AlgoDilithium:
		_, priv, err := mode3.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("crypto: generate dilithium key: %w", err)
		}
		return &PrivateKey{algo: AlgoDilithium, dil: priv}, nil
	case AlgoLegacyECDSA:
		key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("crypto: generate ecdsa key: %w", err)
		}
		return &PrivateKey{algo: AlgoLegacyECDSA, ecdsa: key}, nil
	default:
		return nil, fmt.Errorf("crypto: unknown algorithm %q", algo)
	}
}

// Public derives the public key for k.
func (k *PrivateKey) Public() *PublicKey {
	switch k.algo {
	case AlgoDilithium:
		pub := k.dil.Public().(*mode3.PublicKey)
		return &PublicKey{algo: AlgoDilithium, dil: pub}
	case AlgoLegacyECDSA:
		return &PublicKey{algo: AlgoLegacyECDSA, ecdsa: &k.ecdsa.PublicKey}
	default:
		panic("crypto: private key has no algorithm set")
	}
}

// Bytes returns the packed private key encoding used for config storage and
// keystore files: one leading algorithm-tag byte followed by the scheme's
// native packed representation.
func (k *PrivateKey) Bytes() []byte {
	switch k.algo {
	case AlgoDilithium:
		packed, _ := k.dil.MarshalBinary()
		return append([]byte{0x01}, packed...)
	case AlgoLegacyECDSA:
		return append([]byte{0x02}, crypto.FromECDSA(k.ecdsa)...)
	default:
		return nil
	}
}

// PrivateKeyFromBytes reverses Bytes.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("crypto: empty private key bytes")
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case 0x01:
		var sk mode3.PrivateKey
		if err := sk.UnmarshalBinary(rest); err != nil {
			return nil, fmt.Errorf("crypto: unmarshal dilithium private key: %w", err)
		}
		return &PrivateKey{algo: AlgoDilithium, dil: &sk}, nil
	case 0x02:
		key, err := crypto.ToECDSA(rest)
		if err != nil {
			return nil, fmt.Errorf("crypto: unmarshal ecdsa private key: %w", err)
		}
		return &PrivateKey{algo: AlgoLegacyECDSA, ecdsa: key}, nil
	default:
		return nil, fmt.Errorf("crypto: unknown private key tag 0x%02x", tag)
	}
}

// Zero overwrites the key material in place. Callers that load keys from
// disk or derive them from a passphrase should defer Zero once the key is
// no longer needed.
func (k *PrivateKey) Zero() {
	switch k.algo {
	case AlgoDilithium:
		if k.dil != nil {
			// mode3.PrivateKey is a plain struct of fixed-size byte arrays, so
			// overwriting *k.dil clears the real key material in place; a
			// MarshalBinary round trip would only zero a throwaway copy.
			*k.dil = mode3.PrivateKey{}
		}
	case AlgoLegacyECDSA:
		if k.ecdsa != nil {
			k.ecdsa.D.SetInt64(0)
		}
	}
}

// Sign produces a detached signature over msg. For Dilithium this signs the
// raw message bytes directly (the scheme absorbs arbitrary-length input
// internally); for legacy ECDSA it signs sha256(msg) as go-ethereum's
// secp256k1 signer expects a 32-byte digest.
func (k *PrivateKey) Sign(msg []byte) ([]byte, error) {
	switch k.algo {
	case AlgoDilithium:
		return k.dil.Sign(rand.Reader, msg, stdcrypto.Hash(0))
	case AlgoLegacyECDSA:
		digest := sha256.Sum256(msg)
		return crypto.Sign(digest[:], k.ecdsa)
	default:
		return nil, fmt.Errorf("crypto: sign: no algorithm set")
	}
}

// Bytes returns the packed public key encoding: algorithm tag byte followed
// by the scheme's native packed representation.
func (k *PublicKey) Bytes() []byte {
	switch k.algo {
	case AlgoDilithium:
		packed, _ := k.dil.MarshalBinary()
		return append([]byte{0x01}, packed...)
	case AlgoLegacyECDSA:
		return append([]byte{0x02}, crypto.FromECDSAPub(k.ecdsa)...)
	default:
		return nil
	}
}

// PublicKeyFromBytes reverses PublicKey.Bytes.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("crypto: empty public key bytes")
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case 0x01:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(rest); err != nil {
			return nil, fmt.Errorf("crypto: unmarshal dilithium public key: %w", err)
		}
		return &PublicKey{algo: AlgoDilithium, dil: &pk}, nil
	case 0x02:
		pub, err := crypto.UnmarshalPubkey(rest)
		if err != nil {
			return nil, fmt.Errorf("crypto: unmarshal ecdsa public key: %w", err)
		}
		return &PublicKey{algo: AlgoLegacyECDSA, ecdsa: pub}, nil
	default:
		return nil, fmt.Errorf("crypto: unknown public key tag 0x%02x", tag)
	}
}

// Verify checks sig over msg against k, mirroring the digest convention used
// by Sign.
func (k *PublicKey) Verify(msg, sig []byte) bool {
	switch k.algo {
	case AlgoDilithium:
		return mode3.Verify(k.dil, msg, sig)
	case AlgoLegacyECDSA:
		digest := sha256.Sum256(msg)
		return crypto.VerifySignature(crypto.FromECDSAPub(k.ecdsa), digest[:], sig[:64])
	default:
		return false
	}
}

// keyDerivationDomain separates deterministic key derivation from any other
// use of a passphrase in this package.
var keyDerivationDomain = []byte("dytallix/keygen/v1")

// DeriveKeyFromPassphrase deterministically derives a key pair of the given
// algorithm from a passphrase: Argon2id(passphrase, fixed domain salt)
// seeds an HKDF-SHA256 stream, which in turn feeds the scheme's own key
// generator in place of crypto/rand. Two calls with the same passphrase and
// algorithm always produce the same key pair, which lets an operator
// regenerate a validator identity from a passphrase alone instead of
// storing the raw key material at rest.
func DeriveKeyFromPassphrase(passphrase string, algo Algo) (*PrivateKey, error) {
	seed := argon2.IDKey([]byte(passphrase), keyDerivationDomain, keystoreArgonTime, keystoreArgonMemory, keystoreArgonThreads, keystoreArgonKeyLen)
	stream := hkdf.New(sha256.New, seed, nil, []byte("dytallix/keygen/expand"))

	switch algo {
	case AlgoDilithium:
		_, priv, err := mode3.GenerateKey(stream)
		if err != nil {
			return nil, fmt.Errorf("crypto: derive dilithium key: %w", err)
		}
		return &PrivateKey{algo: AlgoDilithium, dil: priv}, nil
	case AlgoLegacyECDSA:
		key, err := ecdsa.GenerateKey(crypto.S256(), stream)
		if err != nil {
			return nil, fmt.Errorf("crypto: derive ecdsa key: %w", err)
		}
		return &PrivateKey{algo: AlgoLegacyECDSA, ecdsa: key}, nil
	default:
		return nil, fmt.Errorf("crypto: unknown algorithm %q", algo)
	}
}

// Address derives the account address for k: ripemd160(sha256(pubkey
// bytes)), bech32-encoded with HRP "dytallix" regardless of algorithm. Using
// the same derivation for both schemes keeps address format independent of
// which signature algorithm an account was created under.
func (k *PublicKey) Address() Address {
	sum := sha256.Sum256(k.Bytes())
	ripe := ripemd160.New()
	ripe.Write(sum[:])
	return MustNewAddress(ripe.Sum(nil))
}
