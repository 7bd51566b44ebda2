package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testToken      = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	testRecipient  = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
)

// fakeEVMClient имитирует RPC-узел с управляемым поведением квитанций.
type fakeEVMClient struct {
	mu            sync.Mutex
	receiptStatus uint64
	receiptErr    error
	sendErr       error
	decimalsCalls int
	sentTxs       []*gethtypes.Transaction
}

func (f *fakeEVMClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeEVMClient) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (f *fakeEVMClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeEVMClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decimalsCalls++
	return common.LeftPadBytes([]byte{18}, 32), nil
}

func (f *fakeEVMClient) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTxs = append(f.sentTxs, tx)
	return nil
}

func (f *fakeEVMClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &gethtypes.Receipt{Status: f.receiptStatus, BlockNumber: big.NewInt(100)}, nil
}

func newTestDispatcher(t *testing.T, client *fakeEVMClient, receiptTimeout time.Duration) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(client, testPrivateKey, testToken, 56, receiptTimeout)
	require.NoError(t, err)
	return d
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(nil, testPrivateKey, testToken, 56, time.Minute)
	assert.Error(t, err)

	_, err = NewDispatcher(&fakeEVMClient{}, "not-a-key", testToken, 56, time.Minute)
	assert.Error(t, err)

	_, err = NewDispatcher(&fakeEVMClient{}, testPrivateKey, "not-an-address", 56, time.Minute)
	assert.Error(t, err)
}

func TestTransferSuccess(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: gethtypes.ReceiptStatusSuccessful}
	d := newTestDispatcher(t, client, time.Minute)

	hash, err := d.Transfer(context.Background(), testRecipient, 5)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "0x"))
	require.Len(t, client.sentTxs, 1)

	tx := client.sentTxs[0]
	assert.Equal(t, common.HexToAddress(testToken), *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())

	// Calldata: transfer(получатель, 5 × 10^18).
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	require.NoError(t, err)
	args, err := erc20.Methods["transfer"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, common.HexToAddress(testRecipient), args[0].(common.Address))
	expected := new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	assert.Equal(t, 0, expected.Cmp(args[1].(*big.Int)))
}

func TestTransferCachesDecimals(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: gethtypes.ReceiptStatusSuccessful}
	d := newTestDispatcher(t, client, time.Minute)

	_, err := d.Transfer(context.Background(), testRecipient, 1)
	require.NoError(t, err)
	_, err = d.Transfer(context.Background(), testRecipient, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, client.decimalsCalls)
}

func TestTransferRejectsBadInput(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: gethtypes.ReceiptStatusSuccessful}
	d := newTestDispatcher(t, client, time.Minute)

	var failed *TransferFailedError
	_, err := d.Transfer(context.Background(), "garbage", 5)
	require.ErrorAs(t, err, &failed)

	_, err = d.Transfer(context.Background(), testRecipient, 0)
	require.ErrorAs(t, err, &failed)

	_, err = d.Transfer(context.Background(), testRecipient, -3)
	require.ErrorAs(t, err, &failed)

	assert.Empty(t, client.sentTxs)
}

func TestTransferRevertedIsDefiniteFailure(t *testing.T) {
	client := &fakeEVMClient{receiptStatus: gethtypes.ReceiptStatusFailed}
	d := newTestDispatcher(t, client, time.Minute)

	_, err := d.Transfer(context.Background(), testRecipient, 5)
	var failed *TransferFailedError
	require.ErrorAs(t, err, &failed)
	assert.NotEmpty(t, failed.TxHash)
	assert.Contains(t, failed.Reason, "reverted")
}

func TestTransferNoReceiptIsUnknownOutcome(t *testing.T) {
	client := &fakeEVMClient{receiptErr: ethereum.NotFound}
	d := newTestDispatcher(t, client, 50*time.Millisecond)

	_, err := d.Transfer(context.Background(), testRecipient, 5)
	var unknown *OutcomeUnknownError
	require.ErrorAs(t, err, &unknown)
	assert.NotEmpty(t, unknown.TxHash)

	// Транзакция ушла в сеть; классифицировать это как провал нельзя.
	require.Len(t, client.sentTxs, 1)
}

func TestTransferBroadcastRejectedIsDefiniteFailure(t *testing.T) {
	client := &fakeEVMClient{sendErr: ethereum.NotFound} // любой не-контекстный сбой
	d := newTestDispatcher(t, client, time.Minute)

	_, err := d.Transfer(context.Background(), testRecipient, 5)
	var failed *TransferFailedError
	require.ErrorAs(t, err, &failed)
	assert.Empty(t, client.sentTxs)
}
