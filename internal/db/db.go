// Файл: internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Store владеет подключением к базе данных и реализует леджер участников.
// Store owns the database connection and implements the participant ledger.
// The handle is constructed once at startup and injected into consumers;
// there is no package-level global.
type Store struct {
	db *sql.DB
}

// InitDB открывает соединение с базой данных и выполняет миграции.
// InitDB opens the database connection and runs migrations.
func InitDB(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL не установлена")
	}

	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %v", err)
	}

	conn.SetMaxOpenConns(50)
	conn.SetMaxIdleConns(20)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ошибка проверки соединения с базой данных: %v", err)
	}
	log.Println("Успешное подключение к базе данных.")

	s := &Store{db: conn}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.migrateSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ошибка выполнения миграции схемы: %v", err)
	}
	if err := s.createIndexes(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Println("Инициализация базы данных успешно завершена.")
	return s, nil
}

func (s *Store) createTables() (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции для создания таблиц: %v", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			log.Printf("Откат транзакции из-за ошибки: %v", err)
			tx.Rollback()
		}
	}()

	createTablesSQL := `
        CREATE TABLE IF NOT EXISTS participants (
            id SERIAL PRIMARY KEY,
            tg_user_id BIGINT UNIQUE NOT NULL,
            username VARCHAR(100),
            wallet_address TEXT UNIQUE,
            membership_verified BOOLEAN DEFAULT FALSE,
            welcome_paid BOOLEAN DEFAULT FALSE,
            referral_count BIGINT DEFAULT 0,
            owed_unpaid BIGINT DEFAULT 0 CHECK (owed_unpaid >= 0),
            balance_paid_total BIGINT DEFAULT 0,
            referred_by BIGINT,
            pending_input TEXT,
            needs_reconciliation BOOLEAN DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT NOW(),
            updated_at TIMESTAMP DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS referrals (
            id SERIAL PRIMARY KEY,
            referrer_tg BIGINT NOT NULL,
            referee_tg BIGINT UNIQUE NOT NULL,
            created_at TIMESTAMP DEFAULT NOW(),
            CHECK (referrer_tg <> referee_tg)
        );
        CREATE TABLE IF NOT EXISTS payouts (
            id SERIAL PRIMARY KEY,
            tg_user_id BIGINT NOT NULL,
            amount BIGINT NOT NULL CHECK (amount > 0),
            tx_hash TEXT NOT NULL,
            kind TEXT NOT NULL CHECK (kind IN ('welcome', 'referral')),
            created_at TIMESTAMP DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS reconciliations (
            id UUID PRIMARY KEY,
            tg_user_id BIGINT NOT NULL,
            amount BIGINT NOT NULL,
            kind TEXT NOT NULL,
            tx_hash TEXT,
            reason TEXT,
            resolved BOOLEAN DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT NOW()
        );
    `
	_, err = tx.Exec(createTablesSQL)
	if err != nil {
		return fmt.Errorf("ошибка создания таблиц: %v", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("ошибка фиксации транзакции создания таблиц: %v", err)
	}
	log.Println("Создание таблиц (если не существуют) завершено.")
	return nil
}

// migrateSchema выполняет необходимые миграции схемы базы данных.
// This function must stay idempotent.
func (s *Store) migrateSchema() error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "participants.pending_input",
			sql: `ALTER TABLE participants
                  ADD COLUMN IF NOT EXISTS pending_input TEXT;`,
		},
		{
			name: "participants.needs_reconciliation",
			sql: `ALTER TABLE participants
                  ADD COLUMN IF NOT EXISTS needs_reconciliation BOOLEAN DEFAULT FALSE;`,
		},
		{
			name: "payouts.kind",
			sql: `ALTER TABLE payouts
                  ADD COLUMN IF NOT EXISTS kind TEXT NOT NULL DEFAULT 'welcome';`,
		},
	}

	for _, migration := range migrations {
		_, err := s.db.Exec(migration.sql)
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.Printf("INFO: Миграция '%s' пропущена (объект уже существует). Детали: %v", migration.name, err)
				continue
			}
			return fmt.Errorf("ошибка миграции схемы ('%s'): %v", migration.name, err)
		}
	}

	log.Println("Миграция схемы базы данных успешно выполнена (или не требовалась).")
	return nil
}

func (s *Store) createIndexes() error {
	createIndexesSQL := `
        CREATE INDEX IF NOT EXISTS idx_participants_tg_user_id ON participants(tg_user_id);
        CREATE INDEX IF NOT EXISTS idx_participants_needs_reconciliation ON participants(needs_reconciliation);
        CREATE INDEX IF NOT EXISTS idx_referrals_referrer_tg ON referrals(referrer_tg);
        CREATE INDEX IF NOT EXISTS idx_payouts_tg_user_id ON payouts(tg_user_id);
        CREATE INDEX IF NOT EXISTS idx_reconciliations_resolved ON reconciliations(resolved);
    `
	indexStatements := strings.Split(strings.TrimSpace(createIndexesSQL), ";")
	for _, stmt := range indexStatements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		if _, errIdx := s.db.Exec(trimmedStmt); errIdx != nil {
			log.Printf("Предупреждение: ошибка при создании индекса ('%s'): %v.", trimmedStmt, errIdx)
		}
	}
	log.Println("Создание индексов (если не существуют) завершено.")
	return nil
}

// Close закрывает соединение с базой данных.
// Close closes the database connection.
func (s *Store) Close() {
	if s != nil && s.db != nil {
		s.db.Close()
		log.Println("Соединение с базой данных закрыто.")
	}
}
