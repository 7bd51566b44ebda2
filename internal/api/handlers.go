package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"srd-airdrop-bot/internal/db"
	"srd-airdrop-bot/internal/models"
)

type apiHandlers struct {
	deps ApiDependencies
}

// jsonResponse — единый конверт для всех JSON-ответов API.
type jsonResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// --- Вспомогательные функции для JSON-ответов ---

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonResponse{Status: "error", Message: message})
}

func writeJSONSuccess(w http.ResponseWriter, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(jsonResponse{Status: "success", Message: message, Data: data})
}

// Health — публичная проба живости.
func (h *apiHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSONSuccess(w, "ok", map[string]string{"time": time.Now().UTC().Format(time.RFC3339)})
}

// GetStats возвращает агрегированную статистику кампании.
func (h *apiHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Store.GetCampaignStats()
	if err != nil {
		log.Printf("GetStats: ошибка сбора статистики: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to collect statistics")
		return
	}
	writeJSONSuccess(w, "Statistics retrieved successfully", stats)
}

// participantView — представление участника для API, без sql.Null* типов.
type participantView struct {
	TgUserID            int64          `json:"tg_user_id"`
	Username            string         `json:"username,omitempty"`
	WalletAddress       string         `json:"wallet_address,omitempty"`
	MembershipVerified  bool           `json:"membership_verified"`
	WelcomePaid         bool           `json:"welcome_paid"`
	ReferralCount       int64          `json:"referral_count"`
	OwedUnpaid          int64          `json:"owed_unpaid"`
	BalancePaidTotal    int64          `json:"balance_paid_total"`
	ReferredBy          int64          `json:"referred_by,omitempty"`
	NeedsReconciliation bool           `json:"needs_reconciliation"`
	CreatedAt           time.Time      `json:"created_at"`
	Payouts             []payoutView   `json:"payouts"`
	Referrals           []referralView `json:"referrals"`
}

type payoutView struct {
	Amount    int64     `json:"amount"`
	Kind      string    `json:"kind"`
	TxHash    string    `json:"tx_hash"`
	CreatedAt time.Time `json:"created_at"`
}

type referralView struct {
	RefereeTg int64     `json:"referee_tg"`
	CreatedAt time.Time `json:"created_at"`
}

// GetParticipant возвращает участника с его выплатами и рефералами.
func (h *apiHandlers) GetParticipant(w http.ResponseWriter, r *http.Request) {
	tgID, err := strconv.ParseInt(chi.URLParam(r, "tgID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid tg user id")
		return
	}

	p, err := h.deps.Store.GetParticipant(tgID)
	if err != nil {
		if errors.Is(err, db.ErrParticipantNotFound) {
			writeJSONError(w, http.StatusNotFound, "Participant not found")
			return
		}
		log.Printf("GetParticipant: ошибка получения участника %d: %v", tgID, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load participant")
		return
	}

	payouts, err := h.deps.Store.GetPayoutsByParticipant(tgID)
	if err != nil {
		log.Printf("GetParticipant: ошибка получения выплат участника %d: %v", tgID, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load payouts")
		return
	}
	referrals, err := h.deps.Store.GetReferralsByReferrer(tgID)
	if err != nil {
		log.Printf("GetParticipant: ошибка получения рефералов участника %d: %v", tgID, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load referrals")
		return
	}

	writeJSONSuccess(w, "Participant retrieved successfully", buildParticipantView(p, payouts, referrals))
}

func buildParticipantView(p models.Participant, payouts []models.Payout, referrals []models.Referral) participantView {
	view := participantView{
		TgUserID:            p.TgUserID,
		Username:            p.Username.String,
		WalletAddress:       p.WalletAddress.String,
		MembershipVerified:  p.MembershipVerified,
		WelcomePaid:         p.WelcomePaid,
		ReferralCount:       p.ReferralCount,
		OwedUnpaid:          p.OwedUnpaid,
		BalancePaidTotal:    p.BalancePaidTotal,
		ReferredBy:          p.ReferredBy.Int64,
		NeedsReconciliation: p.NeedsReconciliation,
		CreatedAt:           p.CreatedAt,
		Payouts:             make([]payoutView, 0, len(payouts)),
		Referrals:           make([]referralView, 0, len(referrals)),
	}
	for _, payout := range payouts {
		view.Payouts = append(view.Payouts, payoutView{
			Amount: payout.Amount, Kind: payout.Kind, TxHash: payout.TxHash, CreatedAt: payout.CreatedAt,
		})
	}
	for _, ref := range referrals {
		view.Referrals = append(view.Referrals, referralView{RefereeTg: ref.RefereeTg, CreatedAt: ref.CreatedAt})
	}
	return view
}

// reconciliationView — открытая сверка в API-представлении.
type reconciliationView struct {
	ID        string    `json:"id"`
	TgUserID  int64     `json:"tg_user_id"`
	Amount    int64     `json:"amount"`
	Kind      string    `json:"kind"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// GetReconciliations возвращает все неразрешенные сверки.
func (h *apiHandlers) GetReconciliations(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Store.GetOpenReconciliations()
	if err != nil {
		log.Printf("GetReconciliations: ошибка получения сверок: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load reconciliations")
		return
	}

	views := make([]reconciliationView, 0, len(records))
	for _, rec := range records {
		views = append(views, reconciliationView{
			ID: rec.ID, TgUserID: rec.TgUserID, Amount: rec.Amount, Kind: rec.Kind,
			TxHash: rec.TxHash, Reason: rec.Reason, CreatedAt: rec.CreatedAt,
		})
	}
	writeJSONSuccess(w, "Reconciliations retrieved successfully", views)
}

// ResolveReconciliation помечает сверку разрешенной после ручной проверки.
// ResolveReconciliation marks a record resolved after an operator verified
// on-chain what actually happened and fixed the books by hand if needed.
func (h *apiHandlers) ResolveReconciliation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "Reconciliation id is required")
		return
	}

	if err := h.deps.Store.ResolveReconciliation(id); err != nil {
		log.Printf("ResolveReconciliation: ошибка разрешения сверки %s: %v", id, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to resolve reconciliation")
		return
	}
	log.Printf("Сверка %s разрешена оператором.", id)
	writeJSONSuccess(w, "Reconciliation resolved", map[string]string{"id": id})
}
