package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// Deriver produces per-user custodial deposit addresses from a single master
// mnemonic using the standard BIP44 ethereum path m/44'/60'/0'/0/index. The
// address at a given index is permanent: the same index always yields the
// same address and key.
type Deriver struct {
	change *hdkeychain.ExtendedKey
}

func NewDeriver(mnemonic string) (*Deriver, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid master mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")

	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	purpose, err := masterKey.Derive(hdkeychain.HardenedKeyStart + 44)
	if err != nil {
		return nil, fmt.Errorf("derive purpose: %w", err)
	}
	coinType, err := purpose.Derive(hdkeychain.HardenedKeyStart + 60)
	if err != nil {
		return nil, fmt.Errorf("derive coin type: %w", err)
	}
	account, err := coinType.Derive(hdkeychain.HardenedKeyStart + 0)
	if err != nil {
		return nil, fmt.Errorf("derive account: %w", err)
	}
	change, err := account.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("derive change: %w", err)
	}

	return &Deriver{change: change}, nil
}

// Address returns the deposit address at the given derivation index.
func (d *Deriver) Address(index int64) (string, error) {
	key, err := d.Key(index)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// Key returns the private key at the given derivation index. Needed by the
// sweep pipeline to move funds off a custodial deposit address.
func (d *Deriver) Key(index int64) (*ecdsa.PrivateKey, error) {
	child, err := d.change.Derive(uint32(index))
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", Path(index), err)
	}
	ecPriv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key at %s: %w", Path(index), err)
	}
	return ecPriv.ToECDSA(), nil
}

// Path returns the BIP44 derivation path string for a given index.
func Path(index int64) string {
	return fmt.Sprintf("m/44'/60'/0'/0/%d", index)
}
