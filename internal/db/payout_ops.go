package db

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"srd-airdrop-bot/internal/constants"
	"srd-airdrop-bot/internal/models"
)

// RecordPayout фиксирует успешно отправленную выплату.
// RecordPayout is the single place ledger state changes after a dispatch
// succeeds, and it must never be called before the transfer confirmed.
// One transaction: append the immutable payout row, increment
// balance_paid_total, and depending on the kind either set welcome_paid or
// decrement owed_unpaid by exactly the dispatched amount. The CHECK
// constraint on owed_unpaid rolls everything back if the decrement would
// go negative.
func (s *Store) RecordPayout(tgUserID, amount int64, txHash, kind string) error {
	if amount <= 0 {
		return fmt.Errorf("RecordPayout: некорректная сумма %d", amount)
	}
	if txHash == "" {
		return fmt.Errorf("RecordPayout: пустой tx_hash")
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("RecordPayout: ошибка начала транзакции: %v", err)
		return err
	}
	var opErr error
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if opErr != nil {
			tx.Rollback()
		} else {
			opErr = tx.Commit()
			if opErr != nil {
				log.Printf("RecordPayout: ошибка коммита транзакции: %v", opErr)
			}
		}
	}()

	_, opErr = tx.Exec(
		"INSERT INTO payouts (tg_user_id, amount, tx_hash, kind, created_at) VALUES ($1, $2, $3, $4, NOW())",
		tgUserID, amount, txHash, kind)
	if opErr != nil {
		return opErr
	}

	switch kind {
	case constants.PAYOUT_KIND_WELCOME:
		_, opErr = tx.Exec(`
            UPDATE participants
            SET welcome_paid = TRUE,
                balance_paid_total = balance_paid_total + $1,
                updated_at = NOW()
            WHERE tg_user_id=$2`, amount, tgUserID)
	case constants.PAYOUT_KIND_REFERRAL:
		_, opErr = tx.Exec(`
            UPDATE participants
            SET owed_unpaid = owed_unpaid - $1,
                balance_paid_total = balance_paid_total + $1,
                updated_at = NOW()
            WHERE tg_user_id=$2`, amount, tgUserID)
		if pqErr, ok := opErr.(*pq.Error); ok && pqErr.Code == "23514" { // check_violation
			opErr = ErrInsufficientOwed
		}
	default:
		opErr = fmt.Errorf("RecordPayout: неизвестный вид выплаты '%s'", kind)
	}
	if opErr != nil {
		log.Printf("RecordPayout: ошибка обновления баланса участника %d (%s, %d): %v", tgUserID, kind, amount, opErr)
		return opErr
	}

	log.Printf("Выплата зафиксирована: участник %d, %d единиц, вид %s, tx %s", tgUserID, amount, kind, txHash)
	return opErr
}

// MarkReconciliation создает запись о выплате с неподтвержденным исходом и
// помечает участника для ручной сверки.
// MarkReconciliation records a dispatch whose outcome could not be
// confirmed and flags the participant. Reward-triggering transitions for a
// flagged participant are refused until an operator resolves the record:
// an automatic retry could double-pay if the transfer actually landed.
func (s *Store) MarkReconciliation(tgUserID, amount int64, kind, txHash, reason string) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("MarkReconciliation: ошибка начала транзакции: %v", err)
		return "", err
	}
	var opErr error
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if opErr != nil {
			tx.Rollback()
		} else {
			opErr = tx.Commit()
		}
	}()

	_, opErr = tx.Exec(`
        INSERT INTO reconciliations (id, tg_user_id, amount, kind, tx_hash, reason, created_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NOW())`,
		id, tgUserID, amount, kind, txHash, reason)
	if opErr != nil {
		return "", opErr
	}

	_, opErr = tx.Exec(
		"UPDATE participants SET needs_reconciliation=TRUE, updated_at=NOW() WHERE tg_user_id=$1",
		tgUserID)
	if opErr != nil {
		return "", opErr
	}

	log.Printf("СВЕРКА: участник %d помечен, запись %s (%s, %d единиц): %s", tgUserID, id, kind, amount, reason)
	return id, opErr
}

// ResolveReconciliation закрывает запись сверки и снимает флаг с участника,
// если открытых записей больше не осталось.
// ResolveReconciliation closes a reconciliation record and clears the
// participant flag once no open records remain.
func (s *Store) ResolveReconciliation(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	var opErr error
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if opErr != nil {
			tx.Rollback()
		} else {
			opErr = tx.Commit()
		}
	}()

	var tgUserID int64
	opErr = tx.QueryRow(
		"UPDATE reconciliations SET resolved=TRUE WHERE id=$1 AND NOT resolved RETURNING tg_user_id",
		id).Scan(&tgUserID)
	if opErr != nil {
		return opErr
	}

	var openLeft bool
	opErr = tx.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM reconciliations WHERE tg_user_id=$1 AND NOT resolved)",
		tgUserID).Scan(&openLeft)
	if opErr != nil {
		return opErr
	}
	if !openLeft {
		_, opErr = tx.Exec(
			"UPDATE participants SET needs_reconciliation=FALSE, updated_at=NOW() WHERE tg_user_id=$1",
			tgUserID)
	}
	return opErr
}

// GetOpenReconciliations возвращает все незакрытые записи сверки.
func (s *Store) GetOpenReconciliations() ([]models.Reconciliation, error) {
	rows, err := s.db.Query(`
        SELECT id, tg_user_id, amount, kind, COALESCE(tx_hash, ''), COALESCE(reason, ''), resolved, created_at
        FROM reconciliations WHERE NOT resolved ORDER BY created_at`)
	if err != nil {
		log.Printf("GetOpenReconciliations: ошибка запроса: %v", err)
		return nil, err
	}
	defer rows.Close()

	var recs []models.Reconciliation
	for rows.Next() {
		var r models.Reconciliation
		if errScan := rows.Scan(&r.ID, &r.TgUserID, &r.Amount, &r.Kind, &r.TxHash, &r.Reason, &r.Resolved, &r.CreatedAt); errScan != nil {
			return nil, errScan
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// GetPayoutsByParticipant возвращает журнал выплат участника.
func (s *Store) GetPayoutsByParticipant(tgUserID int64) ([]models.Payout, error) {
	rows, err := s.db.Query(
		"SELECT id, tg_user_id, amount, tx_hash, kind, created_at FROM payouts WHERE tg_user_id=$1 ORDER BY created_at",
		tgUserID)
	if err != nil {
		log.Printf("GetPayoutsByParticipant: ошибка запроса для %d: %v", tgUserID, err)
		return nil, err
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var p models.Payout
		if errScan := rows.Scan(&p.ID, &p.TgUserID, &p.Amount, &p.TxHash, &p.Kind, &p.CreatedAt); errScan != nil {
			return nil, errScan
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
