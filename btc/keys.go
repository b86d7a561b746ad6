// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package btc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is a secp256k1 public key that is always serialized in its
// 33-byte compressed form.
type PublicKey struct {
	key *btcec.PublicKey
}

// NewPublicKey wraps a parsed key.
func NewPublicKey(key *btcec.PublicKey) PublicKey {
	return PublicKey{key: key}
}

// ParsePublicKey decodes a serialized public key and rejects the
// uncompressed encoding, which segwit scripts do not accept.
func ParsePublicKey(b []byte) (PublicKey, error) {
	if len(b) != btcec.PubKeyBytesLenCompressed {
		return PublicKey{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, btcec.PubKeyBytesLenCompressed, len(b))
	}
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return PublicKey{key: key}, nil
}

// ParsePublicKeyHex decodes a hex encoded compressed public key.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return ParsePublicKey(b)
}

// Key returns the underlying key.
func (k PublicKey) Key() *btcec.PublicKey {
	return k.key
}

// Bytes returns the compressed encoding, or nil for the zero value.
func (k PublicKey) Bytes() []byte {
	if k.key == nil {
		return nil
	}
	return k.key.SerializeCompressed()
}

func (k PublicKey) Equal(o PublicKey) bool {
	if k.key == nil || o.key == nil {
		return k.key == o.key
	}
	return k.key.IsEqual(o.key)
}

func (k PublicKey) String() string {
	return hex.EncodeToString(k.Bytes())
}

func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *PublicKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePublicKeyHex(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseWIF decodes a private key in wallet import format.
func ParseWIF(s string) (*btcec.PrivateKey, error) {
	wif, err := btcutil.DecodeWIF(s)
	if err != nil {
		return nil, err
	}
	return wif.PrivKey, nil
}

// EncodeWIF encodes a private key in wallet import format for the given
// network, always with the compressed public key flag.
func EncodeWIF(key *btcec.PrivateKey, params *chaincfg.Params) (string, error) {
	wif, err := btcutil.NewWIF(key, params, true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}
