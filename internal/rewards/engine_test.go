package rewards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srd-airdrop-bot/internal/chain"
	"srd-airdrop-bot/internal/constants"
	"srd-airdrop-bot/internal/db"
	"srd-airdrop-bot/internal/membership"
	"srd-airdrop-bot/internal/models"
)

const (
	testWallet      = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	otherWallet     = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	welcomeAmount   = int64(5)
	referralAmount  = int64(5)
	withdrawalValue = int64(15) // 3 referrals × 5
)

// fakeLedger — in-memory реализация Ledger для тестов движка.
type fakeLedger struct {
	mu              sync.Mutex
	participants    map[int64]*models.Participant
	payouts         []models.Payout
	reconciliations []models.Reconciliation
	attributions    map[int64]int64 // referee -> referrer
	failRecord      bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		participants: make(map[int64]*models.Participant),
		attributions: make(map[int64]int64),
	}
}

func (f *fakeLedger) addParticipant(tgUserID int64, wallet string) *models.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &models.Participant{TgUserID: tgUserID}
	if wallet != "" {
		p.WalletAddress = sql.NullString{String: wallet, Valid: true}
	}
	f.participants[tgUserID] = p
	return p
}

func (f *fakeLedger) GetOrCreateParticipant(tgUserID int64, username string) (models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[tgUserID]; ok {
		return *p, nil
	}
	p := &models.Participant{TgUserID: tgUserID}
	f.participants[tgUserID] = p
	return *p, nil
}

func (f *fakeLedger) GetParticipant(tgUserID int64) (models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[tgUserID]
	if !ok {
		return models.Participant{}, db.ErrParticipantNotFound
	}
	return *p, nil
}

func (f *fakeLedger) SetWallet(tgUserID int64, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.participants {
		if id != tgUserID && p.WalletAddress.Valid && p.WalletAddress.String == address {
			return db.ErrWalletConflict
		}
	}
	p, ok := f.participants[tgUserID]
	if !ok {
		return db.ErrParticipantNotFound
	}
	p.WalletAddress = sql.NullString{String: address, Valid: true}
	return nil
}

func (f *fakeLedger) ClearPendingInput(tgUserID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[tgUserID]; ok {
		p.PendingInput = sql.NullString{}
	}
	return nil
}

func (f *fakeLedger) SetMembershipVerified(tgUserID int64, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[tgUserID]; ok {
		p.MembershipVerified = verified
	}
	return nil
}

func (f *fakeLedger) Attribute(referrerTg, refereeTg, rewardUnits int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if referrerTg == refereeTg {
		return db.ErrSelfReferral
	}
	if _, ok := f.attributions[refereeTg]; ok {
		return db.ErrAlreadyAttributed
	}
	referrer, ok := f.participants[referrerTg]
	if !ok {
		return db.ErrParticipantNotFound
	}
	f.attributions[refereeTg] = referrerTg
	referrer.ReferralCount++
	referrer.OwedUnpaid += rewardUnits
	return nil
}

func (f *fakeLedger) RecordPayout(tgUserID, amount int64, txHash, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRecord {
		return errors.New("simulated ledger failure")
	}
	p, ok := f.participants[tgUserID]
	if !ok {
		return db.ErrParticipantNotFound
	}
	switch kind {
	case constants.PAYOUT_KIND_WELCOME:
		p.WelcomePaid = true
	case constants.PAYOUT_KIND_REFERRAL:
		if p.OwedUnpaid < amount {
			return db.ErrInsufficientOwed
		}
		p.OwedUnpaid -= amount
	}
	p.BalancePaidTotal += amount
	f.payouts = append(f.payouts, models.Payout{TgUserID: tgUserID, Amount: amount, TxHash: txHash, Kind: kind})
	return nil
}

func (f *fakeLedger) MarkReconciliation(tgUserID, amount int64, kind, txHash, reason string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("rec-%d", len(f.reconciliations)+1)
	f.reconciliations = append(f.reconciliations, models.Reconciliation{
		ID: id, TgUserID: tgUserID, Amount: amount, Kind: kind, TxHash: txHash, Reason: reason,
	})
	if p, ok := f.participants[tgUserID]; ok {
		p.NeedsReconciliation = true
	}
	return id, nil
}

// fakeDispatcher имитирует диспетчер с управляемым исходом.
type fakeDispatcher struct {
	mu       sync.Mutex
	mode     string // "success", "fail", "unknown"
	calls    []int64
	lastAddr string
}

func (f *fakeDispatcher) Transfer(ctx context.Context, toAddress string, amountUnits int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.mode {
	case "fail":
		return "", &chain.TransferFailedError{Reason: "simulated revert"}
	case "unknown":
		return "", &chain.OutcomeUnknownError{TxHash: "0xunknown", Reason: "simulated timeout"}
	}
	f.calls = append(f.calls, amountUnits)
	f.lastAddr = toAddress
	return fmt.Sprintf("0xhash%d", len(f.calls)), nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeChecker возвращает заранее заданные результаты проверки подписок.
type fakeChecker struct {
	joined bool
}

func (f *fakeChecker) CheckAll(ctx context.Context, tgUserID int64) ([]membership.Result, error) {
	state, status := membership.StateJoined, "member"
	if !f.joined {
		state, status = membership.StateNotJoined, "left"
	}
	return []membership.Result{
		{Channel: "srdexchange", State: membership.StateJoined, Status: "member"},
		{Channel: "srdearning", State: state, Status: status},
	}, nil
}

func newTestEngine(t *testing.T, ledger *fakeLedger, dispatcher *fakeDispatcher, joined bool) *Engine {
	t.Helper()
	engine, err := NewEngine(ledger, dispatcher, &fakeChecker{joined: joined}, welcomeAmount, referralAmount, withdrawalValue)
	require.NoError(t, err)
	return engine
}

func TestNewEngineRejectsMismatchedUnit(t *testing.T) {
	_, err := NewEngine(newFakeLedger(), &fakeDispatcher{}, &fakeChecker{}, 5, 5, 7)
	require.Error(t, err)
}

func TestSubmitWalletNormalizesToChecksum(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(1, "")
	engine := newTestEngine(t, ledger, &fakeDispatcher{}, true)

	addr, err := engine.SubmitWallet(context.Background(), 1, "  0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed ")
	require.NoError(t, err)
	assert.Equal(t, testWallet, addr)

	p, err := ledger.GetParticipant(1)
	require.NoError(t, err)
	assert.Equal(t, testWallet, p.WalletAddress.String)
	assert.False(t, p.PendingInput.Valid)
}

func TestSubmitWalletRejectsMalformed(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(1, "")
	engine := newTestEngine(t, ledger, &fakeDispatcher{}, true)

	for _, input := range []string{"", "nonsense", "0x123", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed0x"} {
		_, err := engine.SubmitWallet(context.Background(), 1, input)
		assert.ErrorIs(t, err, ErrInvalidAddress, "input %q", input)
	}
}

func TestSubmitWalletConflictKeepsOwnState(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(1, testWallet)
	ledger.addParticipant(2, "")
	engine := newTestEngine(t, ledger, &fakeDispatcher{}, true)

	_, err := engine.SubmitWallet(context.Background(), 2, testWallet)
	require.ErrorIs(t, err, db.ErrWalletConflict)

	p, err := ledger.GetParticipant(2)
	require.NoError(t, err)
	assert.False(t, p.HasWallet())
}

func TestClaimWelcomeHappyPath(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(1, testWallet)
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(t, ledger, dispatcher, true)

	payout, err := engine.ClaimWelcome(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, welcomeAmount, payout.Amount)
	assert.NotEmpty(t, payout.TxHash)
	assert.Equal(t, testWallet, dispatcher.lastAddr)

	p, err := ledger.GetParticipant(1)
	require.NoError(t, err)
	assert.True(t, p.WelcomePaid)
	assert.True(t, p.MembershipVerified)
	assert.Equal(t, welcomeAmount, p.BalancePaidTotal)
	require.Len(t, ledger.payouts, 1)
	assert.Equal(t, constants.PAYOUT_KIND_WELCOME, ledger.payouts[0].Kind)
}

func TestClaimWelcomeIsOneTime(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(1, testWallet)
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(t, ledger, dispatcher, true)

	_, err := engine.ClaimWelcome(context.Background(), 1)
	require.NoError(t, err)
	_, err = engine.ClaimWelcome(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAlreadyWelcomed)
	assert.Equal(t, 1, dispatcher.callCount())
}

func TestClaimWelcomeRequiresWallet(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(1, "")
	engine := newTestEngine(t, ledger, &fakeDispatcher{}, true)

	_, err := engine.ClaimWelcome(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestClaimWelcomeMembershipGateIsSideEffectFree(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(1, testWallet)
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(t, ledger, dispatcher, false)

	_, err := engine.ClaimWelcome(context.Background(), 1)
	var membershipErr *MembershipError
	require.ErrorAs(t, err, &membershipErr)
	assert.Equal(t, []string{"srdearning"}, membershipErr.Missing())

	// Ничего не выплачено, состояние можно перепроверять сколько угодно.
	assert.Equal(t, 0, dispatcher.callCount())
	p, err := ledger.GetParticipant(1)
	require.NoError(t, err)
	assert.False(t, p.WelcomePaid)
	assert.False(t, p.MembershipVerified)
	assert.Empty(t, ledger.payouts)
}

func TestCompleteReferralCreditsReferrer(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(10, testWallet)
	engine := newTestEngine(t, ledger, &fakeDispatcher{}, true)

	attributed, err := engine.CompleteReferral(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.True(t, attributed)

	p, err := ledger.GetParticipant(10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ReferralCount)
	assert.Equal(t, referralAmount, p.OwedUnpaid)
}

func TestCompleteReferralSilentRejections(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(10, testWallet)
	engine := newTestEngine(t, ledger, &fakeDispatcher{}, true)

	// Самоприглашение.
	attributed, err := engine.CompleteReferral(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.False(t, attributed)

	// Повторная атрибуция того же приглашенного.
	attributed, err = engine.CompleteReferral(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.True(t, attributed)
	attributed, err = engine.CompleteReferral(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.False(t, attributed)

	// Несуществующий пригласивший.
	attributed, err = engine.CompleteReferral(context.Background(), 999, 30)
	require.NoError(t, err)
	assert.False(t, attributed)

	p, err := ledger.GetParticipant(10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ReferralCount)
}

func TestAutoWithdrawDispatchesExactlyOneUnit(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(10, testWallet)
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(t, ledger, dispatcher, true)

	// Две атрибуции: порог в три реферала еще не пройден.
	for referee := int64(20); referee < 22; referee++ {
		_, err := engine.CompleteReferral(context.Background(), 10, referee)
		require.NoError(t, err)
		payout, err := engine.AutoWithdraw(context.Background(), 10)
		require.NoError(t, err)
		assert.Nil(t, payout)
	}

	// Третья атрибуция пересекает порог: уходит ровно одна единица вывода.
	_, err := engine.CompleteReferral(context.Background(), 10, 22)
	require.NoError(t, err)
	payout, err := engine.AutoWithdraw(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.Equal(t, withdrawalValue, payout.Amount)

	p, err := ledger.GetParticipant(10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.OwedUnpaid)
	assert.Equal(t, int64(3), p.ReferralCount) // Счетчик рефералов не списывается.
	assert.Equal(t, 1, dispatcher.callCount())
}

func TestAutoWithdrawWithoutWalletQueuesCredit(t *testing.T) {
	ledger := newFakeLedger()
	p := ledger.addParticipant(10, "")
	p.OwedUnpaid = withdrawalValue
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(t, ledger, dispatcher, true)

	payout, err := engine.AutoWithdraw(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, payout)
	assert.Equal(t, 0, dispatcher.callCount())

	got, err := ledger.GetParticipant(10)
	require.NoError(t, err)
	assert.Equal(t, withdrawalValue, got.OwedUnpaid)
}

func TestWithdrawMovesFullBalance(t *testing.T) {
	ledger := newFakeLedger()
	p := ledger.addParticipant(10, testWallet)
	p.OwedUnpaid = 7 // Ниже порога автоматической выплаты.
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(t, ledger, dispatcher, true)

	payout, err := engine.Withdraw(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(7), payout.Amount)

	got, err := ledger.GetParticipant(10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.OwedUnpaid)
	assert.Equal(t, int64(7), got.BalancePaidTotal)
}

func TestWithdrawEmptyBalance(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(10, testWallet)
	engine := newTestEngine(t, ledger, &fakeDispatcher{}, true)

	_, err := engine.Withdraw(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNothingOwed)
}

func TestDispatchFailureLeavesLedgerUntouched(t *testing.T) {
	ledger := newFakeLedger()
	p := ledger.addParticipant(10, testWallet)
	p.OwedUnpaid = withdrawalValue
	dispatcher := &fakeDispatcher{mode: "fail"}
	engine := newTestEngine(t, ledger, dispatcher, true)

	_, err := engine.Withdraw(context.Background(), 10)
	var dispatchFailed *DispatchFailedError
	require.ErrorAs(t, err, &dispatchFailed)

	got, err := ledger.GetParticipant(10)
	require.NoError(t, err)
	assert.Equal(t, withdrawalValue, got.OwedUnpaid)
	assert.Empty(t, ledger.payouts)
	assert.False(t, got.NeedsReconciliation)

	// Повтор после восстановления диспетчера проходит без двойной выплаты.
	dispatcher.mode = "success"
	payout, err := engine.Withdraw(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, withdrawalValue, payout.Amount)
}

func TestDispatchUnknownOpensReconciliationAndFreezes(t *testing.T) {
	ledger := newFakeLedger()
	p := ledger.addParticipant(10, testWallet)
	p.OwedUnpaid = withdrawalValue
	dispatcher := &fakeDispatcher{mode: "unknown"}
	engine := newTestEngine(t, ledger, dispatcher, true)

	_, err := engine.Withdraw(context.Background(), 10)
	var unknown *DispatchUnknownError
	require.ErrorAs(t, err, &unknown)
	assert.NotEmpty(t, unknown.ReconciliationID)

	got, err := ledger.GetParticipant(10)
	require.NoError(t, err)
	assert.Equal(t, withdrawalValue, got.OwedUnpaid) // Кредит не списан.
	assert.True(t, got.NeedsReconciliation)
	require.Len(t, ledger.reconciliations, 1)

	// Дальнейшие выплаты заморожены до ручного разрешения.
	dispatcher.mode = "success"
	_, err = engine.Withdraw(context.Background(), 10)
	assert.ErrorIs(t, err, ErrReconciliationPending)
	_, err = engine.ClaimWelcome(context.Background(), 10)
	assert.ErrorIs(t, err, ErrReconciliationPending)
}

func TestLedgerFailureAfterConfirmedDispatchOpensReconciliation(t *testing.T) {
	ledger := newFakeLedger()
	p := ledger.addParticipant(10, testWallet)
	p.OwedUnpaid = withdrawalValue
	ledger.failRecord = true
	engine := newTestEngine(t, ledger, &fakeDispatcher{}, true)

	_, err := engine.Withdraw(context.Background(), 10)
	var unknown *DispatchUnknownError
	require.ErrorAs(t, err, &unknown)
	assert.NotEmpty(t, unknown.TxHash)
	require.Len(t, ledger.reconciliations, 1)
	assert.Contains(t, ledger.reconciliations[0].Reason, "ledger commit failed")
}

func TestConcurrentWithdrawNeverDoubleSpends(t *testing.T) {
	ledger := newFakeLedger()
	p := ledger.addParticipant(10, testWallet)
	p.OwedUnpaid = withdrawalValue
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(t, ledger, dispatcher, true)

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.Withdraw(context.Background(), 10)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrNothingOwed)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, dispatcher.callCount())

	got, err := ledger.GetParticipant(10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.OwedUnpaid)
	assert.Equal(t, withdrawalValue, got.BalancePaidTotal)
}

func TestWalletlessReferrerPaidAfterSubmission(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addParticipant(10, "")
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(t, ledger, dispatcher, true)

	for referee := int64(20); referee < 23; referee++ {
		_, err := engine.CompleteReferral(context.Background(), 10, referee)
		require.NoError(t, err)
	}
	payout, err := engine.AutoWithdraw(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, payout)

	_, err = engine.SubmitWallet(context.Background(), 10, otherWallet)
	require.NoError(t, err)

	payout, err = engine.AutoWithdraw(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.Equal(t, withdrawalValue, payout.Amount)
}
