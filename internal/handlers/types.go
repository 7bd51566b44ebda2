package handlers

import (
	"log"

	"srd-airdrop-bot/internal/config"
	"srd-airdrop-bot/internal/db"
	"srd-airdrop-bot/internal/membership"
	"srd-airdrop-bot/internal/models"
	"srd-airdrop-bot/internal/rewards"
	"srd-airdrop-bot/internal/telegram_api"
)

// HandlerDependencies содержит все зависимости, необходимые для обработчиков.
// HandlerDependencies contains all dependencies required for handlers.
// Everything is passed explicitly; no package-level state.
type HandlerDependencies struct {
	Config    *config.Config
	BotClient *telegram_api.BotClient
	Store     *db.Store
	Engine    *rewards.Engine
	Verifier  *membership.Verifier
}

// BotHandler инкапсулирует логику обработки сообщений и коллбэков.
// BotHandler encapsulates the logic for handling messages and callbacks.
type BotHandler struct {
	Deps HandlerDependencies
}

// NewBotHandler создает новый экземпляр BotHandler.
// NewBotHandler creates a new instance of BotHandler.
func NewBotHandler(deps HandlerDependencies) *BotHandler {
	if deps.Config == nil || deps.BotClient == nil || deps.Store == nil || deps.Engine == nil || deps.Verifier == nil {
		// Это критическая ошибка конфигурации, приложение не сможет работать корректно.
		// This is a critical configuration error; the application cannot work correctly.
		panic("Не все зависимости для BotHandler были предоставлены.")
	}
	return &BotHandler{Deps: deps}
}

// getParticipantFromDB регистрирует (при первом контакте) и возвращает участника.
// Helper to get-or-create the participant row for an incoming update.
func (bh *BotHandler) getParticipantFromDB(tgUserID int64, username string) (models.Participant, bool) {
	p, err := bh.Deps.Store.GetOrCreateParticipant(tgUserID, username)
	if err != nil {
		log.Printf("Ошибка получения участника %d из БД: %v", tgUserID, err)
		return models.Participant{}, false
	}
	return p, true
}
