package db

import (
	"database/sql"
	"log"

	"github.com/lib/pq"

	"srd-airdrop-bot/internal/models"
)

const participantColumns = `
        id, tg_user_id, username, wallet_address, membership_verified, welcome_paid,
        referral_count, owed_unpaid, balance_paid_total, referred_by, pending_input,
        needs_reconciliation, created_at`

func scanParticipant(row *sql.Row) (models.Participant, error) {
	var p models.Participant
	err := row.Scan(
		&p.ID, &p.TgUserID, &p.Username, &p.WalletAddress, &p.MembershipVerified, &p.WelcomePaid,
		&p.ReferralCount, &p.OwedUnpaid, &p.BalancePaidTotal, &p.ReferredBy, &p.PendingInput,
		&p.NeedsReconciliation, &p.CreatedAt)
	return p, err
}

// GetOrCreateParticipant регистрирует нового участника или возвращает существующего.
// GetOrCreateParticipant registers a new participant or returns the existing
// one. Idempotent: concurrent first contacts resolve to a single row.
func (s *Store) GetOrCreateParticipant(tgUserID int64, username string) (models.Participant, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM participants WHERE tg_user_id=$1)", tgUserID).Scan(&exists)
	if err != nil {
		log.Printf("GetOrCreateParticipant: ошибка проверки существования участника %d: %v", tgUserID, err)
		return models.Participant{}, err
	}

	if !exists {
		// ON CONFLICT guards against a concurrent first contact.
		_, err = s.db.Exec(`
            INSERT INTO participants (tg_user_id, username, created_at, updated_at)
            VALUES ($1, NULLIF($2, ''), NOW(), NOW())
            ON CONFLICT (tg_user_id) DO NOTHING`, tgUserID, username)
		if err != nil {
			log.Printf("GetOrCreateParticipant: ошибка вставки нового участника %d: %v", tgUserID, err)
			return models.Participant{}, err
		}
		log.Printf("Зарегистрирован новый участник %d (@%s)", tgUserID, username)
	}

	return s.GetParticipant(tgUserID)
}

// GetParticipant извлекает участника по его Telegram user id.
// GetParticipant retrieves a participant by Telegram user id.
func (s *Store) GetParticipant(tgUserID int64) (models.Participant, error) {
	p, err := scanParticipant(s.db.QueryRow(
		"SELECT"+participantColumns+" FROM participants WHERE tg_user_id=$1", tgUserID))
	if err != nil {
		if err == sql.ErrNoRows {
			return p, ErrParticipantNotFound
		}
		log.Printf("GetParticipant: ошибка получения участника %d: %v", tgUserID, err)
		return p, err
	}
	return p, nil
}

// SetWallet привязывает нормализованный (checksummed) адрес к участнику.
// SetWallet binds the normalized (checksummed) address to the participant.
// Returns ErrWalletConflict if the address is already bound to somebody
// else; the participant's own wallet is left untouched in that case.
// Re-submitting one's own current address is a no-op, not a conflict.
func (s *Store) SetWallet(tgUserID int64, address string) error {
	var existingOwner int64
	err := s.db.QueryRow(
		"SELECT tg_user_id FROM participants WHERE wallet_address=$1 AND tg_user_id != $2",
		address, tgUserID).Scan(&existingOwner)
	if err == nil {
		log.Printf("SetWallet: адрес %s уже привязан к участнику %d (запрошено %d)", address, existingOwner, tgUserID)
		return ErrWalletConflict
	}
	if err != sql.ErrNoRows {
		log.Printf("SetWallet: ошибка проверки уникальности адреса %s: %v", address, err)
		return err
	}

	res, err := s.db.Exec(
		"UPDATE participants SET wallet_address=$1, updated_at=NOW() WHERE tg_user_id=$2",
		address, tgUserID)
	if err != nil {
		// Пара конкурентных привязок может проскочить проверку выше; уникальный
		// индекс — последний рубеж.
		// A pair of concurrent binds can slip past the check above; the unique
		// index is the last line of defense.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrWalletConflict
		}
		log.Printf("SetWallet: ошибка сохранения адреса для участника %d: %v", tgUserID, err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrParticipantNotFound
	}
	log.Printf("Адрес %s привязан к участнику %d", address, tgUserID)
	return nil
}

// SetPendingInput сохраняет ожидаемый от участника ввод (например, адрес кошелька).
// SetPendingInput persists what input the bot expects from the participant next.
func (s *Store) SetPendingInput(tgUserID int64, kind string) error {
	_, err := s.db.Exec(
		"UPDATE participants SET pending_input=NULLIF($1, ''), updated_at=NOW() WHERE tg_user_id=$2",
		kind, tgUserID)
	if err != nil {
		log.Printf("SetPendingInput: ошибка сохранения pending_input '%s' для участника %d: %v", kind, tgUserID, err)
	}
	return err
}

// ClearPendingInput сбрасывает ожидаемый ввод.
func (s *Store) ClearPendingInput(tgUserID int64) error {
	return s.SetPendingInput(tgUserID, "")
}

// SetMembershipVerified обновляет кэшированный результат проверки подписок.
// SetMembershipVerified updates the cached membership verification result.
// The cache is informational only: reward-triggering transitions always
// re-check membership before dispatching.
func (s *Store) SetMembershipVerified(tgUserID int64, verified bool) error {
	_, err := s.db.Exec(
		"UPDATE participants SET membership_verified=$1, updated_at=NOW() WHERE tg_user_id=$2",
		verified, tgUserID)
	if err != nil {
		log.Printf("SetMembershipVerified: ошибка обновления для участника %d: %v", tgUserID, err)
	}
	return err
}
