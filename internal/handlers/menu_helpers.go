package handlers

import (
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"srd-airdrop-bot/internal/constants"
	"srd-airdrop-bot/internal/membership"
	"srd-airdrop-bot/internal/models"
	"srd-airdrop-bot/internal/telegram_api"
)

// X (Twitter) accounts participants are asked to follow.
const (
	xAccountPersonalURL = "https://x.com/srdaryandubey"
	xAccountProjectURL  = "https://x.com/srdexchange"
)

// --- Вспомогательные функции для отправки сообщений ---
// --- Helper functions for sending messages ---

// sendOrEditMessageHelper отправляет или редактирует сообщение главного меню.
func (bh *BotHandler) sendOrEditMessageHelper(
	chatID int64,
	messageIDToTryEdit int,
	text string,
	keyboard *tgbotapi.InlineKeyboardMarkup,
) (tgbotapi.Message, error) {
	return telegram_api.SendOrEditMessage(bh.Deps.BotClient, chatID, messageIDToTryEdit, text, keyboard, tgbotapi.ModeHTML)
}

// sendErrorMessageHelper отправляет стандартизированное сообщение об ошибке.
func (bh *BotHandler) sendErrorMessageHelper(chatID int64, messageIDToTryEdit int, errorText string) {
	if _, err := telegram_api.SendErrorMessage(bh.Deps.BotClient, chatID, messageIDToTryEdit, errorText); err != nil {
		log.Printf("sendErrorMessageHelper: ошибка отправки сообщения об ошибке для chatID %d: %v", chatID, err)
	}
}

// deleteMessageHelper удаляет сообщение, логируя неудачу.
func (bh *BotHandler) deleteMessageHelper(chatID int64, messageID int) {
	telegram_api.DeleteMessage(bh.Deps.BotClient, chatID, messageID)
}

// SendMainMenu отправляет главное меню кампании.
// SendMainMenu sends the campaign main menu, reflecting the participant's
// progress in the button labels.
func (bh *BotHandler) SendMainMenu(chatID int64, p models.Participant, messageIDToEdit int) {
	log.Printf("BotHandler.SendMainMenu для chatID %d, messageIDToEdit: %d", chatID, messageIDToEdit)

	text := bh.welcomeText(p)
	keyboard := bh.mainMenuKeyboard(p)
	if _, err := bh.sendOrEditMessageHelper(chatID, messageIDToEdit, text, &keyboard); err != nil {
		log.Printf("SendMainMenu: ошибка отправки главного меню для chatID %d: %v", chatID, err)
	}
}

// welcomeText собирает приветственный текст с актуальными суммами наград.
func (bh *BotHandler) welcomeText(p models.Participant) string {
	cfg := bh.Deps.Config
	var b strings.Builder
	b.WriteString("🎉 <b>Welcome to the SRD BEAM Airdrop!</b>\n\n")
	fmt.Fprintf(&b, "🎁 Join our channels and verify to receive <b>%d BEAM</b>.\n", cfg.WelcomeReward)
	fmt.Fprintf(&b, "👥 Earn <b>%d BEAM</b> for every friend who joins with your link.\n", cfg.ReferralReward)
	fmt.Fprintf(&b, "📤 Every <b>%d referrals</b>, <b>%d BEAM</b> is sent to your wallet automatically.\n\n",
		cfg.ReferralsPerWithdrawal, cfg.WithdrawalUnit())

	if !p.HasWallet() {
		b.WriteString("👉 Start by submitting your BSC (BEP20) wallet address.")
	} else if !p.WelcomePaid {
		b.WriteString("👉 Join all required channels, then tap <b>Verify Join</b>.")
	} else {
		b.WriteString("✅ You are verified. Share your referral link to earn more!")
	}
	return b.String()
}

// mainMenuKeyboard собирает клавиатуру главного меню.
func (bh *BotHandler) mainMenuKeyboard(p models.Participant) tgbotapi.InlineKeyboardMarkup {
	walletLabel := "💼 Submit Wallet"
	if p.HasWallet() {
		walletLabel = "💼 Change Wallet"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Verify Join", constants.CALLBACK_VERIFY),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🐦 X Tasks", constants.CALLBACK_X_TASKS),
			tgbotapi.NewInlineKeyboardButtonData(walletLabel, constants.CALLBACK_SUBMIT_ADDRESS),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💰 Balance", constants.CALLBACK_BALANCE),
			tgbotapi.NewInlineKeyboardButtonData("📤 Withdraw", constants.CALLBACK_WITHDRAW),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👥 Referral Link", constants.CALLBACK_REFERRAL),
			tgbotapi.NewInlineKeyboardButtonData("❓ Help", constants.CALLBACK_HELP),
		),
	)
}

// joinChannelsKeyboard собирает клавиатуру со ссылками на недостающие каналы.
// joinChannelsKeyboard builds URL buttons for every unjoined channel plus a
// re-verify button.
func (bh *BotHandler) joinChannelsKeyboard(missing []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, channel := range missing {
		link := membership.ChannelLink(channel)
		if !strings.HasPrefix(link, "https://") {
			// Numeric chat id without a public link: nothing to open.
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📢 Join @"+strings.TrimPrefix(channel, "@"), link),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Verify Again", constants.CALLBACK_VERIFY),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Main Menu", constants.CALLBACK_BACK_MAIN),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// backToMainKeyboard — одна кнопка возврата в главное меню.
func backToMainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Main Menu", constants.CALLBACK_BACK_MAIN),
		),
	)
}

// balanceText собирает текст с текущим состоянием счета участника.
func (bh *BotHandler) balanceText(p models.Participant) string {
	var b strings.Builder
	b.WriteString("💰 <b>Your Balance</b>\n\n")
	fmt.Fprintf(&b, "👥 Referrals: <b>%d</b>\n", p.ReferralCount)
	fmt.Fprintf(&b, "⏳ Pending payout: <b>%d BEAM</b>\n", p.OwedUnpaid)
	fmt.Fprintf(&b, "✅ Paid out so far: <b>%d BEAM</b>\n", p.BalancePaidTotal)
	if p.HasWallet() {
		fmt.Fprintf(&b, "\n💼 Wallet: <code>%s</code>", p.WalletAddress.String)
	} else {
		b.WriteString("\n💼 Wallet: <i>not submitted yet</i>")
	}
	fmt.Fprintf(&b, "\n\n📤 Payouts are sent automatically every %d referrals.", bh.Deps.Config.ReferralsPerWithdrawal)
	return b.String()
}

// helpText — текст справки.
func (bh *BotHandler) helpText() string {
	cfg := bh.Deps.Config
	var b strings.Builder
	b.WriteString("❓ <b>How it works</b>\n\n")
	b.WriteString("1️⃣ Submit your BSC (BEP20) wallet address.\n")
	fmt.Fprintf(&b, "2️⃣ Join all required channels and tap <b>Verify Join</b> to receive %d BEAM.\n", cfg.WelcomeReward)
	fmt.Fprintf(&b, "3️⃣ Share your referral link: %d BEAM per friend, sent automatically every %d referrals.\n\n",
		cfg.ReferralReward, cfg.ReferralsPerWithdrawal)
	b.WriteString("Commands:\n")
	b.WriteString("/start — main menu\n")
	b.WriteString("/withdraw — withdraw your full pending balance\n")
	b.WriteString("/help — this message")
	return b.String()
}
