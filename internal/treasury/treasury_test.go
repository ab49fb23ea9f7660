package treasury

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/chain"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/database"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/fiat"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/notify"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return ledger.NewStore(db)
}

var testIndex int64

func createUser(t *testing.T, store *ledger.Store, mutate func(*model.User)) *model.User {
	t.Helper()
	testIndex++
	user := &model.User{
		ID:              uuid.NewString(),
		Email:           uuid.NewString() + "@example.com",
		DepositAddress:  "0xdep" + uuid.NewString()[:8],
		DerivationIndex: testIndex,
		SweepStatus:     model.SweepIdle,
		PaymentSchedule: model.ScheduleMonthly,
		PayoutMethod:    model.PayoutMethodCrypto,
		Qualified:       true,
	}
	if mutate != nil {
		mutate(user)
	}
	if err := store.CreateUser(user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func auditCount(t *testing.T, store *ledger.Store, eventType string) int {
	t.Helper()
	events, err := store.AuditEvents(eventType, 100)
	if err != nil {
		t.Fatalf("Failed to list audit events: %v", err)
	}
	return len(events)
}

type nativeSend struct {
	to     string
	amount *big.Int
	nonce  uint64
}

type usdcSend struct {
	to     string
	amount decimal.Decimal
	key    *ecdsa.PrivateKey
}

type fakeChain struct {
	mu       sync.Mutex
	usdc     map[string]decimal.Decimal
	native   map[string]*big.Int
	receipts map[string]*chain.Receipt

	usdcErr     error
	sendUSDCErr error

	startNonce  uint64
	txCounter   int
	nativeSends []nativeSend
	usdcSends   []usdcSend
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		usdc:     map[string]decimal.Decimal{},
		native:   map[string]*big.Int{},
		receipts: map[string]*chain.Receipt{},
	}
}

func (f *fakeChain) USDCBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usdcErr != nil {
		return decimal.Zero, f.usdcErr
	}
	return f.usdc[address], nil
}

func (f *fakeChain) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.native[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[txHash], nil
}

func (f *fakeChain) GetFeeData(ctx context.Context) (*chain.FeeData, error) {
	return &chain.FeeData{
		MaxFeePerGas:         big.NewInt(100_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(30_000_000_000),
	}, nil
}

func (f *fakeChain) PendingNonce(ctx context.Context, address string) (uint64, error) {
	return f.startNonce, nil
}

func (f *fakeChain) SendNative(ctx context.Context, key *ecdsa.PrivateKey, to string, amountWei *big.Int, nonce uint64, fee *chain.FeeData) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCounter++
	f.nativeSends = append(f.nativeSends, nativeSend{to: to, amount: amountWei, nonce: nonce})
	return fmt.Sprintf("0xnative%d", f.txCounter), nil
}

func (f *fakeChain) SendUSDC(ctx context.Context, key *ecdsa.PrivateKey, to string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendUSDCErr != nil {
		return "", f.sendUSDCErr
	}
	f.txCounter++
	f.usdcSends = append(f.usdcSends, usdcSend{to: to, amount: amount, key: key})
	return fmt.Sprintf("0xusdc%d", f.txCounter), nil
}

type fiatTransfer struct {
	params fiat.TransferParams
	id     string
}

type fakeFiat struct {
	accounts    map[string]fiat.Account
	transferErr error
	transfers   []fiatTransfer
}

func newFakeFiat() *fakeFiat {
	return &fakeFiat{accounts: map[string]fiat.Account{}}
}

func (f *fakeFiat) Transfer(ctx context.Context, params fiat.TransferParams) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	id := fmt.Sprintf("tr_%d", len(f.transfers)+1)
	f.transfers = append(f.transfers, fiatTransfer{params: params, id: id})
	return id, nil
}

func (f *fakeFiat) RetrieveAccount(ctx context.Context, accountID string) (*fiat.Account, error) {
	account, ok := f.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s not found", accountID)
	}
	return &account, nil
}

type fakeSender struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (f *fakeSender) Send(ctx context.Context, event notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeWallet struct {
	key *ecdsa.PrivateKey
}

func newFakeWallet(t *testing.T) *fakeWallet {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return &fakeWallet{key: key}
}

func (f *fakeWallet) Key(index int64) (*ecdsa.PrivateKey, error) {
	return f.key, nil
}

func (f *fakeWallet) Address(index int64) (string, error) {
	return fmt.Sprintf("0xderived%d", index), nil
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}
