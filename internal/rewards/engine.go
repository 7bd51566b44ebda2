package rewards

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"srd-airdrop-bot/internal/chain"
	"srd-airdrop-bot/internal/constants"
	"srd-airdrop-bot/internal/db"
	"srd-airdrop-bot/internal/membership"
	"srd-airdrop-bot/internal/models"
)

// Ledger — контракт леджера участников (реализуется db.Store).
// Ledger is the participant ledger contract, implemented by db.Store.
type Ledger interface {
	GetOrCreateParticipant(tgUserID int64, username string) (models.Participant, error)
	GetParticipant(tgUserID int64) (models.Participant, error)
	SetWallet(tgUserID int64, address string) error
	ClearPendingInput(tgUserID int64) error
	SetMembershipVerified(tgUserID int64, verified bool) error
	Attribute(referrerTg, refereeTg, rewardUnits int64) error
	RecordPayout(tgUserID, amount int64, txHash, kind string) error
	MarkReconciliation(tgUserID, amount int64, kind, txHash, reason string) (string, error)
}

// Dispatcher — контракт внешнего сервиса перевода токенов.
// Dispatcher is the external token-transfer collaborator contract.
type Dispatcher interface {
	Transfer(ctx context.Context, toAddress string, amountUnits int64) (string, error)
}

// MembershipChecker — контракт проверки обязательных подписок.
type MembershipChecker interface {
	CheckAll(ctx context.Context, tgUserID int64) ([]membership.Result, error)
}

// Payout описывает одну успешно отправленную выплату.
type Payout struct {
	Amount int64
	TxHash string
}

// Engine — машина состояний выплат.
// Engine is the eligibility and reward state machine. Participant states
// are derived from ledger fields, never stored: NEW (no wallet) →
// WALLET_SUBMITTED → WELCOMED, and independently the referral accrual
// cycle driven by owed_unpaid against the withdrawal unit.
//
// Every reward-triggering transition runs the sequence "read → decide →
// dispatch → persist" under the participant's lock, and ledger state is
// committed only after the dispatcher confirmed success (commit-after,
// never commit-before-with-rollback).
type Engine struct {
	ledger         Ledger
	dispatcher     Dispatcher
	verifier       MembershipChecker
	welcomeReward  int64
	referralReward int64
	withdrawalUnit int64 // referralReward × threshold, derived in config
	locks          *participantLocks
}

// NewEngine создает движок наград.
func NewEngine(ledger Ledger, dispatcher Dispatcher, verifier MembershipChecker, welcomeReward, referralReward, withdrawalUnit int64) (*Engine, error) {
	if ledger == nil || dispatcher == nil || verifier == nil {
		return nil, fmt.Errorf("не все зависимости движка наград предоставлены")
	}
	if welcomeReward <= 0 || referralReward <= 0 || withdrawalUnit <= 0 {
		return nil, fmt.Errorf("некорректные суммы наград: welcome=%d, referral=%d, unit=%d", welcomeReward, referralReward, withdrawalUnit)
	}
	if withdrawalUnit%referralReward != 0 {
		// One unit must equal reward-per-referral × threshold, or the
		// owed_unpaid accounting drifts from the referral counter.
		return nil, fmt.Errorf("единица вывода %d не кратна награде за реферала %d", withdrawalUnit, referralReward)
	}
	return &Engine{
		ledger:         ledger,
		dispatcher:     dispatcher,
		verifier:       verifier,
		welcomeReward:  welcomeReward,
		referralReward: referralReward,
		withdrawalUnit: withdrawalUnit,
		locks:          newParticipantLocks(),
	}, nil
}

// SubmitWallet валидирует, нормализует и привязывает адрес выплат.
// SubmitWallet validates, checksums and binds a payout address. Returns the
// normalized address. Errors: ErrInvalidAddress (re-prompt),
// db.ErrWalletConflict (bound to someone else, caller's state unchanged).
func (e *Engine) SubmitWallet(ctx context.Context, tgUserID int64, raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if !chain.IsAddress(candidate) {
		return "", ErrInvalidAddress
	}
	address := chain.Checksum(candidate)

	lock := e.locks.get(tgUserID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.ledger.SetWallet(tgUserID, address); err != nil {
		return "", err
	}
	if err := e.ledger.ClearPendingInput(tgUserID); err != nil {
		log.Printf("SubmitWallet: не удалось сбросить pending_input для %d: %v", tgUserID, err)
	}
	return address, nil
}

// ClaimWelcome пытается выдать одноразовую приветственную награду.
// ClaimWelcome attempts the one-time welcome reward. Guard: wallet present
// AND not yet paid AND membership all-satisfied (checked fresh here, cached
// flag updated as a side effect). All failure paths are side-effect free
// and retryable, so repeated verify taps are safe.
func (e *Engine) ClaimWelcome(ctx context.Context, tgUserID int64) (*Payout, error) {
	lock := e.locks.get(tgUserID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.ledger.GetParticipant(tgUserID)
	if err != nil {
		return nil, err
	}
	if p.NeedsReconciliation {
		return nil, ErrReconciliationPending
	}
	if p.WelcomePaid {
		return nil, ErrAlreadyWelcomed
	}
	if !p.HasWallet() {
		return nil, ErrNoWallet
	}

	results, err := e.verifier.CheckAll(ctx, tgUserID)
	if err != nil {
		return nil, err
	}
	allJoined := membership.AllJoined(results)
	if cacheErr := e.ledger.SetMembershipVerified(tgUserID, allJoined); cacheErr != nil {
		log.Printf("ClaimWelcome: не удалось обновить кэш подписок для %d: %v", tgUserID, cacheErr)
	}
	if !allJoined {
		return nil, &MembershipError{Results: results}
	}

	return e.dispatchAndCommit(ctx, p, e.welcomeReward, constants.PAYOUT_KIND_WELCOME)
}

// CompleteReferral атрибутирует реферала при первом контакте.
// CompleteReferral attributes a referee on their first contact. Credit is
// granted for joining via the link, independent of the referee's own later
// wallet/membership progress. Self-referrals, repeat attributions and
// unknown referrers are rejected silently (attributed=false, nil error):
// the referee's own flow must not fail because the link was bad.
func (e *Engine) CompleteReferral(ctx context.Context, referrerTg, refereeTg int64) (bool, error) {
	err := e.ledger.Attribute(referrerTg, refereeTg, e.referralReward)
	if err != nil {
		if errors.Is(err, db.ErrSelfReferral) || errors.Is(err, db.ErrAlreadyAttributed) || errors.Is(err, db.ErrParticipantNotFound) {
			log.Printf("CompleteReferral: атрибуция %d -> %d отклонена: %v", referrerTg, refereeTg, err)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AutoWithdraw срабатывает после пополнения счетчиков пригласившего.
// AutoWithdraw is evaluated right after a referral completion credits the
// referrer. Guard: wallet bound AND owed_unpaid has crossed the withdrawal
// unit. Dispatches exactly one unit; residual credit above the unit stays
// queued for the next trigger. Returns (nil, nil) when the guard is simply
// not met.
func (e *Engine) AutoWithdraw(ctx context.Context, tgUserID int64) (*Payout, error) {
	lock := e.locks.get(tgUserID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.ledger.GetParticipant(tgUserID)
	if err != nil {
		return nil, err
	}
	if p.NeedsReconciliation {
		return nil, ErrReconciliationPending
	}
	if !p.HasWallet() || p.OwedUnpaid < e.withdrawalUnit {
		// No wallet yet: the credit stays queued in owed_unpaid until an
		// address is submitted or a manual withdrawal is requested.
		return nil, nil
	}

	return e.dispatchAndCommit(ctx, p, e.withdrawalUnit, constants.PAYOUT_KIND_REFERRAL)
}

// Withdraw — ручной вывод всего накопленного остатка.
// Withdraw is the participant-initiated manual withdrawal: unlike the
// automatic per-unit trigger it moves the entire owed_unpaid balance in a
// single transfer. Guard: owed_unpaid > 0 AND wallet present.
func (e *Engine) Withdraw(ctx context.Context, tgUserID int64) (*Payout, error) {
	lock := e.locks.get(tgUserID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.ledger.GetParticipant(tgUserID)
	if err != nil {
		return nil, err
	}
	if p.NeedsReconciliation {
		return nil, ErrReconciliationPending
	}
	if !p.HasWallet() {
		return nil, ErrNoWallet
	}
	if p.OwedUnpaid <= 0 {
		return nil, ErrNothingOwed
	}

	return e.dispatchAndCommit(ctx, p, p.OwedUnpaid, constants.PAYOUT_KIND_REFERRAL)
}

// dispatchAndCommit выполняет перевод и фиксирует результат в леджере.
// dispatchAndCommit performs the transfer and, only on confirmed success,
// commits the ledger mutation. Caller must hold the participant's lock.
// Outcome handling:
//   - confirmed success  → RecordPayout (the only post-success mutation);
//   - definite failure   → ledger untouched, retryable DispatchFailedError;
//   - unknown outcome    → reconciliation record, DispatchUnknownError;
//   - success but RecordPayout fails → also reconciliation: funds moved,
//     books did not, and re-dispatching would double-pay.
func (e *Engine) dispatchAndCommit(ctx context.Context, p models.Participant, amount int64, kind string) (*Payout, error) {
	txHash, err := e.dispatcher.Transfer(ctx, p.WalletAddress.String, amount)
	if err != nil {
		var unknown *chain.OutcomeUnknownError
		if errors.As(err, &unknown) {
			recID, mErr := e.ledger.MarkReconciliation(p.TgUserID, amount, kind, unknown.TxHash,
				"dispatch outcome unconfirmed: "+unknown.Reason)
			if mErr != nil {
				log.Printf("dispatchAndCommit: КРИТИЧНО: не удалось записать сверку для %d: %v", p.TgUserID, mErr)
			}
			return nil, &DispatchUnknownError{ReconciliationID: recID, TxHash: unknown.TxHash}
		}
		return nil, &DispatchFailedError{Err: err}
	}

	if err := e.ledger.RecordPayout(p.TgUserID, amount, txHash, kind); err != nil {
		log.Printf("dispatchAndCommit: КРИТИЧНО: перевод %s прошел, но запись в леджер не удалась: %v", txHash, err)
		recID, mErr := e.ledger.MarkReconciliation(p.TgUserID, amount, kind, txHash,
			"transfer confirmed but ledger commit failed: "+err.Error())
		if mErr != nil {
			log.Printf("dispatchAndCommit: КРИТИЧНО: сверка для %d тоже не записалась: %v", p.TgUserID, mErr)
		}
		return nil, &DispatchUnknownError{ReconciliationID: recID, TxHash: txHash}
	}

	return &Payout{Amount: amount, TxHash: txHash}, nil
}

// WithdrawalUnit возвращает размер одной автоматической выплаты.
func (e *Engine) WithdrawalUnit() int64 { return e.withdrawalUnit }
