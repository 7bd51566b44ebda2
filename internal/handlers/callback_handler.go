package handlers

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"srd-airdrop-bot/internal/constants"
	"srd-airdrop-bot/internal/telegram_api"
	"srd-airdrop-bot/internal/utils"
)

// HandleCallback обрабатывает входящие callback query от Telegram.
func (bh *BotHandler) HandleCallback(update tgbotapi.Update) {
	query := update.CallbackQuery
	if query == nil {
		log.Println("[CALLBACK_HANDLER] Получен пустой CallbackQuery.")
		return
	}

	chatID := query.Message.Chat.ID
	originalMessageID := query.Message.MessageID
	data := query.Data
	tgUserID := query.From.ID

	log.Printf("[CALLBACK_HANDLER] START: ChatID=%d, User=%s, OriginalMsgID=%d, Data='%s'",
		chatID, query.From.UserName, originalMessageID, data)

	// Сначала снимаем "часики", затем обрабатываем.
	// Acknowledge first, then process.
	telegram_api.AnswerCallback(bh.Deps.BotClient, query.ID, "")

	if query.Message.Chat.Type != "private" {
		return
	}

	p, ok := bh.getParticipantFromDB(tgUserID, query.From.UserName)
	if !ok {
		log.Printf("[CALLBACK_HANDLER] КРИТИЧЕСКАЯ ОШИБКА: не удалось получить участника для ChatID=%d. Data: '%s'.", chatID, data)
		bh.sendErrorMessageHelper(chatID, 0, "Something went wrong with your data. Please try /start.")
		return
	}

	ctx := context.Background()

	switch data {
	case constants.CALLBACK_VERIFY:
		bh.attemptWelcome(ctx, chatID, tgUserID, originalMessageID)

	case constants.CALLBACK_X_TASKS:
		bh.sendXTasks(chatID, originalMessageID)

	case constants.CALLBACK_SUBMIT_ADDRESS:
		bh.promptWalletAddress(chatID, tgUserID, originalMessageID,
			"💼 Please send your BSC (BEP20) wallet address as a message.\nExample: <code>0x1234…abcd</code>")

	case constants.CALLBACK_BALANCE:
		if _, err := bh.sendOrEditMessageHelper(chatID, originalMessageID, bh.balanceText(p), ptrKeyboard(backToMainKeyboard())); err != nil {
			log.Printf("[CALLBACK_HANDLER] ошибка отправки баланса для chatID %d: %v", chatID, err)
		}

	case constants.CALLBACK_WITHDRAW:
		bh.handleWithdraw(chatID, tgUserID, originalMessageID)

	case constants.CALLBACK_REFERRAL:
		bh.sendReferralLink(chatID, tgUserID, originalMessageID)

	case constants.CALLBACK_HELP:
		if _, err := bh.sendOrEditMessageHelper(chatID, originalMessageID, bh.helpText(), ptrKeyboard(backToMainKeyboard())); err != nil {
			log.Printf("[CALLBACK_HANDLER] ошибка отправки справки для chatID %d: %v", chatID, err)
		}

	case constants.CALLBACK_BACK_MAIN:
		bh.SendMainMenu(chatID, p, originalMessageID)

	default:
		log.Printf("[CALLBACK_HANDLER] Неизвестный callback '%s' от chatID %d", data, chatID)
		bh.SendMainMenu(chatID, p, originalMessageID)
	}
}

// sendXTasks показывает задания в X (Twitter).
// sendXTasks shows the X (Twitter) follow tasks. These are on the honor
// system: follows cannot be verified through the Telegram API.
func (bh *BotHandler) sendXTasks(chatID int64, messageIDToEdit int) {
	text := "🐦 <b>X (Twitter) Tasks</b>\n\nFollow both accounts to support the project:"
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Follow @srdaryandubey", xAccountPersonalURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Follow @srdexchange", xAccountProjectURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Main Menu", constants.CALLBACK_BACK_MAIN),
		),
	)
	if _, err := bh.sendOrEditMessageHelper(chatID, messageIDToEdit, text, &keyboard); err != nil {
		log.Printf("sendXTasks: ошибка отправки заданий для chatID %d: %v", chatID, err)
	}
}

// sendReferralLink отправляет реферальную ссылку и QR-код к ней.
func (bh *BotHandler) sendReferralLink(chatID, tgUserID int64, messageIDToEdit int) {
	link, err := utils.GenerateReferralLink(bh.Deps.Config.BotUsername, tgUserID)
	if err != nil {
		bh.sendErrorMessageHelper(chatID, messageIDToEdit, "❌ Referral links are not configured right now. Please try later.")
		return
	}

	text := fmt.Sprintf(
		"👥 <b>Your referral link</b>\n\n<code>%s</code>\n\n🎁 You earn <b>%d BEAM</b> for every friend who joins.\n📤 Every %d referrals, <b>%d BEAM</b> is sent automatically.",
		link, bh.Deps.Config.ReferralReward, bh.Deps.Config.ReferralsPerWithdrawal, bh.Deps.Config.WithdrawalUnit())
	if _, err := bh.sendOrEditMessageHelper(chatID, messageIDToEdit, text, ptrKeyboard(backToMainKeyboard())); err != nil {
		log.Printf("sendReferralLink: ошибка отправки ссылки для chatID %d: %v", chatID, err)
	}

	// QR-код отдельным фото; его отсутствие не ломает основную функцию.
	// The QR code goes as a separate photo; failing to build it is not fatal.
	qrBytes, err := utils.GenerateQRCode(bh.Deps.Config.BotUsername, tgUserID)
	if err != nil {
		log.Printf("sendReferralLink: QR-код для %d не сгенерирован: %v", tgUserID, err)
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "referral_qr.png", Bytes: qrBytes})
	photo.Caption = "📱 Scan to open your referral link"
	if _, err := bh.Deps.BotClient.Send(photo); err != nil {
		log.Printf("sendReferralLink: ошибка отправки QR-кода для chatID %d: %v", chatID, err)
	}
}
