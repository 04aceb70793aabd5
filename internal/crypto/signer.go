package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the operator key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner wraps key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the address derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs tx for chainID.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign tx: %w", err)
	}
	return signed, nil
}

// SignMessage produces an EIP-191 personal signature over msg with v in
// {27, 28}.
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign message: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverMessageSigner returns the address that produced an EIP-191 sig
// over msg. Both {0,1} and {27,28} recovery ids are accepted.
func RecoverMessageSigner(msg, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("crypto/signer: signature must be 65 bytes")
	}
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), cp)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
