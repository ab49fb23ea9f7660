package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// Minimal ERC20 ABI: balanceOf for deposit detection, transfer for payouts
// and sweeps.
const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const (
	nativeTransferGas = uint64(21000)
	erc20TransferGas  = uint64(100000)
)

// Receipt is the confirmation state of a broadcast transaction. A nil receipt
// from TransactionReceipt means the transaction is still pending.
type Receipt struct {
	TxHash      string
	Success     bool
	BlockNumber uint64
}

// FeeData carries EIP-1559 fee caps for a transfer.
type FeeData struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Client wraps an EVM RPC endpoint with the calls the treasury pipeline
// needs. Every call runs under a bounded timeout; a timeout must be treated
// as "unknown, retry next run", never as failure.
type Client struct {
	client       *ethclient.Client
	chainID      *big.Int
	usdcContract common.Address
	usdcDecimals int32
	callTimeout  time.Duration
	erc20        abi.ABI
}

func Init(cfg config.ChainConfig) (*Client, error) {
	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}

	timeout := time.Duration(cfg.CallTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		client:       client,
		chainID:      big.NewInt(cfg.ChainId),
		usdcContract: common.HexToAddress(cfg.UsdcContract),
		usdcDecimals: cfg.UsdcDecimals,
		callTimeout:  timeout,
		erc20:        parsedABI,
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// USDCBalance reads the token balance of an address, in whole USD units.
func (c *Client) USDCBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := c.erc20.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack balanceOf: %w", err)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.usdcContract,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf call failed: %w", err)
	}

	raw := new(big.Int).SetBytes(result)
	return decimal.NewFromBigInt(raw, -c.usdcDecimals), nil
}

// NativeBalance reads the gas-token balance of an address in wei.
func (c *Client) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// TransactionReceipt polls for a receipt. Returns (nil, nil) while the
// transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Receipt{
		TxHash:      txHash,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// GetFeeData returns current EIP-1559 fee caps.
func (c *Client) GetFeeData(ctx context.Context) (*FeeData, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}
	// maxFee = 2*baseFee + tip, the usual headroom for base-fee spikes.
	maxFee := new(big.Int).Add(
		new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
		tip,
	)
	return &FeeData{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}

// PendingNonce returns the next nonce for an address including pending txs.
func (c *Client) PendingNonce(ctx context.Context, address string) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.PendingNonceAt(ctx, common.HexToAddress(address))
}

// SendNative broadcasts a native-token transfer with an explicit nonce, so a
// caller can fan out several transfers from one wallet without waiting for
// confirmations in between.
func (c *Client) SendNative(ctx context.Context, key *ecdsa.PrivateKey, to string, amountWei *big.Int, nonce uint64, fee *FeeData) (string, error) {
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: fee.MaxPriorityFeePerGas,
		GasFeeCap: fee.MaxFeePerGas,
		Gas:       nativeTransferGas,
		To:        addrPtr(to),
		Value:     amountWei,
	})
	return c.signAndSend(ctx, key, tx)
}

// SendUSDC broadcasts an ERC20 transfer of the given whole-USD amount from
// the key's address. Nonce is resolved from the pending pool.
func (c *Client) SendUSDC(ctx context.Context, key *ecdsa.PrivateKey, to string, amount decimal.Decimal) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := c.PendingNonce(ctx, from.Hex())
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	fee, err := c.GetFeeData(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch fee data: %w", err)
	}

	value := amount.Shift(c.usdcDecimals).BigInt()
	data, err := c.erc20.Pack("transfer", common.HexToAddress(to), value)
	if err != nil {
		return "", fmt.Errorf("pack transfer: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: fee.MaxPriorityFeePerGas,
		GasFeeCap: fee.MaxFeePerGas,
		Gas:       erc20TransferGas,
		To:        &c.usdcContract,
		Data:      data,
	})
	return c.signAndSend(ctx, key, tx)
}

func (c *Client) signAndSend(ctx context.Context, key *ecdsa.PrivateKey, tx *types.Transaction) (string, error) {
	signedTx, err := types.SignTx(tx, types.NewLondonSigner(c.chainID), key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("broadcast transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

func addrPtr(hex string) *common.Address {
	addr := common.HexToAddress(hex)
	return &addr
}
