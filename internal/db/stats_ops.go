package db

import (
	"database/sql"
	"log"
)

// CampaignStats — агрегированные показатели кампании для админ-API.
// CampaignStats holds aggregate campaign figures for the admin API.
type CampaignStats struct {
	Participants        int64 `json:"participants"`
	WalletsSubmitted    int64 `json:"wallets_submitted"`
	WelcomesPaid        int64 `json:"welcomes_paid"`
	ReferralEdges       int64 `json:"referral_edges"`
	TotalPaidUnits      int64 `json:"total_paid_units"`
	OwedOutstanding     int64 `json:"owed_outstanding"`
	OpenReconciliations int64 `json:"open_reconciliations"`
}

// GetCampaignStats собирает статистику кампании одним запросом на таблицу.
func (s *Store) GetCampaignStats() (CampaignStats, error) {
	var st CampaignStats
	err := s.db.QueryRow(`
        SELECT COUNT(*),
               COUNT(wallet_address),
               COUNT(*) FILTER (WHERE welcome_paid),
               COALESCE(SUM(balance_paid_total), 0),
               COALESCE(SUM(owed_unpaid), 0)
        FROM participants`).Scan(
		&st.Participants, &st.WalletsSubmitted, &st.WelcomesPaid, &st.TotalPaidUnits, &st.OwedOutstanding)
	if err != nil {
		log.Printf("GetCampaignStats: ошибка агрегации участников: %v", err)
		return st, err
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM referrals").Scan(&st.ReferralEdges); err != nil {
		log.Printf("GetCampaignStats: ошибка подсчета рефералов: %v", err)
		return st, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM reconciliations WHERE NOT resolved").Scan(&st.OpenReconciliations); err != nil {
		log.Printf("GetCampaignStats: ошибка подсчета сверок: %v", err)
		return st, err
	}
	return st, nil
}

// GetPayoutsForExport возвращает строки журнала выплат для Excel-отчета.
// Порядок колонок должен соответствовать сканированию в api.ExportPayoutsHandler.
// GetPayoutsForExport returns payout log rows for the Excel report.
// Column order must match the scan in api.ExportPayoutsHandler.
func (s *Store) GetPayoutsForExport() (*sql.Rows, error) {
	rows, err := s.db.Query(`
        SELECT p.id, p.tg_user_id, COALESCE(u.username, ''), COALESCE(u.wallet_address, ''),
               p.amount, p.kind, p.tx_hash, p.created_at
        FROM payouts p
        LEFT JOIN participants u ON u.tg_user_id = p.tg_user_id
        ORDER BY p.created_at`)
	if err != nil {
		log.Printf("GetPayoutsForExport: ошибка запроса: %v", err)
		return nil, err
	}
	return rows, nil
}
