package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Minimal ERC-20 ABI: decimals, balanceOf, transfer.
const erc20ABI = `[
    {"name":"decimals","outputs":[{"type":"uint8","name":""}],"inputs":[],"stateMutability":"view","type":"function"},
    {"name":"balanceOf","outputs":[{"type":"uint256","name":""}],"inputs":[{"type":"address","name":"account"}],"stateMutability":"view","type":"function"},
    {"name":"transfer","outputs":[{"type":"bool","name":""}],"inputs":[{"type":"address","name":"to"},{"type":"uint256","name":"amount"}],"stateMutability":"nonpayable","type":"function"}
]`

// Gas limit for a plain ERC-20 transfer.
const transferGasLimit = 100000

// Interval between receipt polls while waiting for confirmation.
const receiptPollInterval = 2 * time.Second

// EVMClient defines the subset of the Ethereum RPC used by the dispatcher.
type EVMClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Dial initialises an EVM RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("пустой адрес RPC-узла")
	}
	return ethclient.Dial(trimmed)
}

// Dispatcher отправляет BEP20-переводы с админского кошелька.
// Dispatcher sends BEP20 transfers from the admin wallet. Constructed once
// at startup and passed by reference; it holds no ledger state. Unit
// amounts are integral tokens — scaling to the token's smallest denomination
// happens here and nowhere else.
type Dispatcher struct {
	client         EVMClient
	key            *ecdsa.PrivateKey
	from           common.Address
	token          common.Address
	chainID        *big.Int
	erc20          abi.ABI
	receiptTimeout time.Duration

	mu       sync.Mutex
	decimals *uint8 // fetched once, cached
}

// NewDispatcher создает диспетчер выплат.
func NewDispatcher(client EVMClient, adminPrivateKey, tokenContract string, chainID int64, receiptTimeout time.Duration) (*Dispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("EVM-клиент не предоставлен")
	}
	if !IsAddress(tokenContract) {
		return nil, fmt.Errorf("некорректный адрес контракта токена: %q", tokenContract)
	}
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(adminPrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора приватного ключа: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора ERC-20 ABI: %w", err)
	}
	from := gethcrypto.PubkeyToAddress(key.PublicKey)
	log.Printf("Диспетчер выплат: админский адрес %s, контракт %s, chain id %d", from.Hex(), Checksum(tokenContract), chainID)
	return &Dispatcher{
		client:         client,
		key:            key,
		from:           from,
		token:          common.HexToAddress(tokenContract),
		chainID:        big.NewInt(chainID),
		erc20:          parsed,
		receiptTimeout: receiptTimeout,
	}, nil
}

// Transfer отправляет amountUnits токенов на адрес toAddress и ждет подтверждения.
// Transfer sends amountUnits tokens to toAddress and waits for the receipt.
// Returns the transaction hash on confirmed success. Failure classification:
//   - *TransferFailedError  — funds definitively did not move; retry is safe;
//   - *OutcomeUnknownError  — the transaction may have landed (timeout after
//     broadcast); the caller must NOT retry and must reconcile manually.
func (d *Dispatcher) Transfer(ctx context.Context, toAddress string, amountUnits int64) (string, error) {
	if !IsAddress(toAddress) {
		return "", &TransferFailedError{Reason: fmt.Sprintf("invalid recipient address %q", toAddress)}
	}
	if amountUnits <= 0 {
		return "", &TransferFailedError{Reason: fmt.Sprintf("non-positive amount %d", amountUnits)}
	}
	to := common.HexToAddress(toAddress)

	dec, err := d.tokenDecimals(ctx)
	if err != nil {
		return "", &TransferFailedError{Reason: "decimals lookup failed", Err: err}
	}
	amount := new(big.Int).Mul(big.NewInt(amountUnits), pow10(dec))

	data, err := d.erc20.Pack("transfer", to, amount)
	if err != nil {
		return "", &TransferFailedError{Reason: "calldata encoding failed", Err: err}
	}

	nonce, err := d.client.PendingNonceAt(ctx, d.from)
	if err != nil {
		return "", &TransferFailedError{Reason: "nonce lookup failed", Err: err}
	}
	gasTipCap, gasFeeCap, err := d.feeCaps(ctx)
	if err != nil {
		return "", &TransferFailedError{Reason: "fee estimation failed", Err: err}
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   d.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       transferGasLimit,
		To:        &d.token,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(d.chainID), d.key)
	if err != nil {
		return "", &TransferFailedError{Reason: "signing failed", Err: err}
	}
	txHash := signed.Hash()

	if err := d.client.SendTransaction(ctx, signed); err != nil {
		// A timeout here is ambiguous: the node may have accepted the
		// transaction before the connection dropped.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", &OutcomeUnknownError{TxHash: txHash.Hex(), Reason: "broadcast interrupted: " + err.Error()}
		}
		return "", &TransferFailedError{Reason: "broadcast rejected", Err: err}
	}
	log.Printf("Транзакция %s отправлена: %d единиц на %s (nonce %d)", txHash.Hex(), amountUnits, to.Hex(), nonce)

	return d.waitReceipt(ctx, txHash)
}

// waitReceipt опрашивает узел до подтверждения, ревёрта или таймаута.
func (d *Dispatcher) waitReceipt(ctx context.Context, txHash common.Hash) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := d.client.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == gethtypes.ReceiptStatusSuccessful {
				log.Printf("Транзакция %s подтверждена в блоке %s", txHash.Hex(), receipt.BlockNumber)
				return txHash.Hex(), nil
			}
			// Mined and reverted: funds did not move.
			return "", &TransferFailedError{TxHash: txHash.Hex(), Reason: "transaction reverted"}
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) &&
			!errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			log.Printf("waitReceipt: временная ошибка запроса квитанции %s: %v", txHash.Hex(), err)
		}

		select {
		case <-waitCtx.Done():
			// Broadcast succeeded but no receipt in time: the transfer may
			// still be mined later. Never fold this into failure.
			return "", &OutcomeUnknownError{TxHash: txHash.Hex(), Reason: "no receipt before timeout"}
		case <-ticker.C:
		}
	}
}

// tokenDecimals возвращает decimals контракта, кэшируя результат.
func (d *Dispatcher) tokenDecimals(ctx context.Context) (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.decimals != nil {
		return *d.decimals, nil
	}

	data, err := d.erc20.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := d.client.CallContract(ctx, ethereum.CallMsg{To: &d.token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("вызов decimals() не удался: %w", err)
	}
	results, err := d.erc20.Unpack("decimals", out)
	if err != nil || len(results) != 1 {
		return 0, fmt.Errorf("декодирование decimals() не удалось: %v", err)
	}
	dec, ok := results[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals() вернул неожиданный тип %T", results[0])
	}
	d.decimals = &dec
	log.Printf("Токен использует %d знаков после запятой", dec)
	return dec, nil
}

// feeCaps вычисляет EIP-1559 лимиты комиссии: tip от узла, fee cap с запасом
// в два базовых тарифа.
func (d *Dispatcher) feeCaps(ctx context.Context) (gasTipCap, gasFeeCap *big.Int, err error) {
	gasTipCap, err = d.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}
	head, err := d.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	if head.BaseFee == nil {
		// Pre-London chain: flat fee equal to the tip.
		return gasTipCap, new(big.Int).Set(gasTipCap), nil
	}
	gasFeeCap = new(big.Int).Add(gasTipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return gasTipCap, gasFeeCap, nil
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
