package types

import (
	"crypto/sha256"
	"fmt"

	"dytallix/codec"
	"dytallix/crypto"
)

// Signature carries the algorithm tag, public key, and raw signature bytes
// that accompany a transaction, per spec.md §6.
type Signature struct {
	Algo   byte // 0x01 = pqc_dilithium, 0x02 = legacy_ecdsa; mirrors crypto.PrivateKey.Bytes tags.
	PubKey []byte
	Sig    []byte
}

// Transaction is the wire/consensus transaction envelope: one or more
// messages, a chain-id binding, a strictly-increasing nonce, an upfront fee
// and gas limit, and a detached signature covering everything else.
type Transaction struct {
	ChainID  string
	Nonce    uint64
	Messages []Message
	Fee      []byte // u128 magnitude
	GasLimit uint64
	Memo     string

	Signature Signature

	hash []byte
}

// CanonicalBytes encodes the transaction fields the signature commits to,
// in the order spec.md §6 lists them, excluding the signature itself.
func (tx *Transaction) CanonicalBytes() []byte {
	w := codec.NewWriter()
	w.WriteString(tx.ChainID)
	w.WriteUint64(tx.Nonce)
	w.WriteUint64(uint64(len(tx.Messages)))
	for _, m := range tx.Messages {
		EncodeMessage(w, m)
	}
	w.WriteBytes(tx.Fee)
	w.WriteUint64(tx.GasLimit)
	w.WriteString(tx.Memo)
	return w.Bytes()
}

// Hash returns tx_hash = H(canonical(tx_without_signature)); re-encoding
// the same logical transaction always yields the same hash.
func (tx *Transaction) Hash() []byte {
	if tx.hash != nil {
		return tx.hash
	}
	sum := sha256.Sum256(tx.CanonicalBytes())
	tx.hash = sum[:]
	return tx.hash
}

// Sign signs tx.Hash() with key and populates the Signature field.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	tx.hash = nil
	sig, err := key.Sign(tx.Hash())
	if err != nil {
		return fmt.Errorf("types: sign transaction: %w", err)
	}
	algoTag := byte(0x01)
	if key.Algo() == crypto.AlgoLegacyECDSA {
		algoTag = 0x02
	}
	tx.Signature = Signature{
		Algo:   algoTag,
		PubKey: key.Public().Bytes(),
		Sig:    sig,
	}
	return nil
}

// Verify checks the transaction's signature against its declared public
// key, and returns the recovered sender address and signing algorithm on
// success. It does not know which algorithm the sender's account has
// pinned — callers holding account state must additionally check the
// returned Algo against the account's declared PubKeyAlgo (see
// executor.DeliverTx), since a legacy-ECDSA signature is only valid for an
// account that has never signed with Dilithium before (spec.md §4.2).
func (tx *Transaction) Verify() (crypto.Address, crypto.Algo, error) {
	pub, err := crypto.PublicKeyFromBytes(tx.Signature.PubKey)
	if err != nil {
		return crypto.Address{}, "", fmt.Errorf("types: invalid public key: %w", err)
	}
	if !pub.Verify(tx.Hash(), tx.Signature.Sig) {
		return crypto.Address{}, "", fmt.Errorf("types: signature verification failed")
	}
	return pub.Address(), pub.Algo(), nil
}

// EncodeTransaction writes tx's full wire form: CanonicalBytes' fields
// followed by the detached signature, so the result can be handed
// straight back to DecodeTransaction without any side channel carrying
// the signature separately.
func EncodeTransaction(w *codec.Writer, tx *Transaction) {
	w.WriteString(tx.ChainID)
	w.WriteUint64(tx.Nonce)
	w.WriteUint64(uint64(len(tx.Messages)))
	for _, m := range tx.Messages {
		EncodeMessage(w, m)
	}
	w.WriteBytes(tx.Fee)
	w.WriteUint64(tx.GasLimit)
	w.WriteString(tx.Memo)
	w.WriteUint8(tx.Signature.Algo)
	w.WriteBytes(tx.Signature.PubKey)
	w.WriteBytes(tx.Signature.Sig)
}

// DecodeTransaction reads a transaction written by EncodeTransaction. It
// does not verify the signature; callers (mempool admission, the
// executor's deliver_tx re-check) call Verify() themselves once the
// sender needs to be known.
func DecodeTransaction(r *codec.Reader) (*Transaction, error) {
	tx := &Transaction{}
	var err error
	if tx.ChainID, err = r.ReadString(); err != nil {
		return nil, fmt.Errorf("types: decode tx chain_id: %w", err)
	}
	if tx.Nonce, err = r.ReadUint64(); err != nil {
		return nil, fmt.Errorf("types: decode tx nonce: %w", err)
	}
	count, err := r.ReadUint64()
	if err != nil {
		return nil, fmt.Errorf("types: decode tx message count: %w", err)
	}
	tx.Messages = make([]Message, 0, count)
	for i := uint64(0); i < count; i++ {
		msg, err := DecodeMessage(r)
		if err != nil {
			return nil, fmt.Errorf("types: decode tx message %d: %w", i, err)
		}
		tx.Messages = append(tx.Messages, msg)
	}
	if tx.Fee, err = r.ReadBytes(); err != nil {
		return nil, fmt.Errorf("types: decode tx fee: %w", err)
	}
	if tx.GasLimit, err = r.ReadUint64(); err != nil {
		return nil, fmt.Errorf("types: decode tx gas_limit: %w", err)
	}
	if tx.Memo, err = r.ReadString(); err != nil {
		return nil, fmt.Errorf("types: decode tx memo: %w", err)
	}
	if tx.Signature.Algo, err = r.ReadUint8(); err != nil {
		return nil, fmt.Errorf("types: decode tx signature.algo: %w", err)
	}
	if tx.Signature.PubKey, err = r.ReadBytes(); err != nil {
		return nil, fmt.Errorf("types: decode tx signature.pubkey: %w", err)
	}
	if tx.Signature.Sig, err = r.ReadBytes(); err != nil {
		return nil, fmt.Errorf("types: decode tx signature.sig: %w", err)
	}
	return tx, nil
}
