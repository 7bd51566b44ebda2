package db

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/lib/pq"

	"srd-airdrop-bot/internal/models"
)

// Attribute записывает реферальную связь и начисляет награду пригласившему.
// Attribute is the sole writer of referral edges. In one transaction it
// inserts the (referrer, referee) edge, stamps referred_by on the referee
// and credits the referrer (referral_count + 1, owed_unpaid + rewardUnits).
// A referee is attributed at most once, ever; self-referrals are rejected.
func (s *Store) Attribute(referrerTg, refereeTg, rewardUnits int64) error {
	if referrerTg == refereeTg {
		return ErrSelfReferral
	}
	if rewardUnits <= 0 {
		return fmt.Errorf("Attribute: некорректная сумма награды %d", rewardUnits)
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("Attribute: ошибка начала транзакции: %v", err)
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
				log.Printf("Attribute: ошибка коммита транзакции: %v", opErr)
			}
		}
	}()

	// Блокируем строку реферала: параллельные атрибуции одного и того же
	// участника сериализуются здесь.
	// Lock the referee row: concurrent attributions of the same participant
	// serialize here.
	var referredBy sql.NullInt64
	opErr = tx.QueryRow(
		"SELECT referred_by FROM participants WHERE tg_user_id=$1 FOR UPDATE",
		refereeTg).Scan(&referredBy)
	if opErr != nil {
		if opErr == sql.ErrNoRows {
			opErr = ErrParticipantNotFound
		}
		return opErr
	}
	if referredBy.Valid {
		opErr = ErrAlreadyAttributed
		return opErr
	}

	// Пригласивший должен существовать: ссылка с выдуманным ID не начисляет ничего.
	// The referrer must exist: a link with a made-up id credits nothing.
	var referrerExists bool
	opErr = tx.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM participants WHERE tg_user_id=$1)",
		referrerTg).Scan(&referrerExists)
	if opErr != nil {
		return opErr
	}
	if !referrerExists {
		opErr = ErrParticipantNotFound
		return opErr
	}

	_, opErr = tx.Exec(
		"INSERT INTO referrals (referrer_tg, referee_tg, created_at) VALUES ($1, $2, NOW())",
		referrerTg, refereeTg)
	if opErr != nil {
		if pqErr, ok := opErr.(*pq.Error); ok && pqErr.Code == "23505" {
			opErr = ErrAlreadyAttributed
		}
		return opErr
	}

	_, opErr = tx.Exec(
		"UPDATE participants SET referred_by=$1, updated_at=NOW() WHERE tg_user_id=$2",
		referrerTg, refereeTg)
	if opErr != nil {
		return opErr
	}

	_, opErr = tx.Exec(`
        UPDATE participants
        SET referral_count = referral_count + 1,
            owed_unpaid = owed_unpaid + $1,
            updated_at = NOW()
        WHERE tg_user_id=$2`, rewardUnits, referrerTg)
	if opErr != nil {
		return opErr
	}

	log.Printf("Атрибуция: участник %d приглашен участником %d, начислено %d", refereeTg, referrerTg, rewardUnits)
	return opErr
}

// GetReferralsByReferrer возвращает все реферальные связи пригласившего.
func (s *Store) GetReferralsByReferrer(referrerTg int64) ([]models.Referral, error) {
	rows, err := s.db.Query(
		"SELECT id, referrer_tg, referee_tg, created_at FROM referrals WHERE referrer_tg=$1 ORDER BY created_at",
		referrerTg)
	if err != nil {
		log.Printf("GetReferralsByReferrer: ошибка получения рефералов для %d: %v", referrerTg, err)
		return nil, err
	}
	defer rows.Close()

	var referrals []models.Referral
	for rows.Next() {
		var r models.Referral
		if errScan := rows.Scan(&r.ID, &r.ReferrerTg, &r.RefereeTg, &r.CreatedAt); errScan != nil {
			log.Printf("GetReferralsByReferrer: ошибка сканирования строки: %v", errScan)
			return nil, errScan
		}
		referrals = append(referrals, r)
	}
	return referrals, rows.Err()
}
