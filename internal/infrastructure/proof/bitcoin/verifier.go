package bitcoinproof

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anchoros/anchord/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const messagePrefix = "Bitcoin Signed Message:\n"

// verifier checks signed-message proofs of control: the signature must
// recover a pubkey whose address matches the claimed one. No transaction is
// required, the key holder signs the challenge offline.
type verifier struct {
	params *chaincfg.Params
}

func NewVerifier(params *chaincfg.Params) ports.ProofVerifier {
	return &verifier{params}
}

func (v *verifier) Verify(_ context.Context, proof ports.Proof) error {
	if proof.Address == "" {
		return fmt.Errorf("missing address")
	}
	if proof.Message == "" {
		return fmt.Errorf("missing message")
	}

	sig, err := base64.StdEncoding.DecodeString(proof.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %s", err)
	}

	digest, err := messageDigest(proof.Message)
	if err != nil {
		return err
	}

	pubkey, compressed, err := ecdsa.RecoverCompact(sig, digest)
	if err != nil {
		return fmt.Errorf("failed to recover pubkey: %s", err)
	}

	var serialized []byte
	if compressed {
		serialized = pubkey.SerializeCompressed()
	} else {
		serialized = pubkey.SerializeUncompressed()
	}
	pubkeyHash := btcutil.Hash160(serialized)

	// the recovered key must map to the claimed address under one of the
	// single-key address forms
	p2pkh, err := btcutil.NewAddressPubKeyHash(pubkeyHash, v.params)
	if err != nil {
		return fmt.Errorf("failed to derive address: %s", err)
	}
	if p2pkh.EncodeAddress() == proof.Address {
		return nil
	}
	if compressed {
		p2wpkh, err := btcutil.NewAddressWitnessPubKeyHash(pubkeyHash, v.params)
		if err != nil {
			return fmt.Errorf("failed to derive address: %s", err)
		}
		if p2wpkh.EncodeAddress() == proof.Address {
			return nil
		}
	}

	return fmt.Errorf("signature does not match address %s", proof.Address)
}

// messageDigest is the double-sha256 of the prefixed, varint-framed message,
// the scheme wallet "sign message" features implement.
func messageDigest(message string) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarString(&buf, 0, messagePrefix); err != nil {
		return nil, err
	}
	if err := wire.WriteVarString(&buf, 0, message); err != nil {
		return nil, err
	}
	return chainhash.DoubleHashB(buf.Bytes()), nil
}
