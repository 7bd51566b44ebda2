package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"srd-airdrop-bot/internal/constants"
	"srd-airdrop-bot/internal/db"
	"srd-airdrop-bot/internal/membership"
	"srd-airdrop-bot/internal/rewards"
	"srd-airdrop-bot/internal/utils"
)

// HandleMessage обрабатывает входящие сообщения от Telegram.
func (bh *BotHandler) HandleMessage(update tgbotapi.Update) {
	if update.Message == nil {
		return
	}

	message := update.Message
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)

	// Кампания работает только в личных чатах.
	// The campaign runs in private chats only.
	if message.Chat.Type != "private" || message.From == nil {
		return
	}
	tgUserID := message.From.ID

	log.Printf("HandleMessage: ChatID=%d, UserID=%d, Text='%s'", chatID, tgUserID, text)

	p, ok := bh.getParticipantFromDB(tgUserID, message.From.UserName)
	if !ok {
		bh.sendErrorMessageHelper(chatID, 0, "❌ Something went wrong with your data. Please try /start again.")
		return
	}

	if message.IsCommand() {
		switch message.Command() {
		case "start":
			bh.handleStart(chatID, tgUserID, message.CommandArguments())
		case "help":
			if _, err := bh.sendOrEditMessageHelper(chatID, 0, bh.helpText(), ptrKeyboard(backToMainKeyboard())); err != nil {
				log.Printf("HandleMessage: /help: ошибка отправки для chatID %d: %v", chatID, err)
			}
		case "withdraw":
			bh.handleWithdraw(chatID, tgUserID, 0)
		case "checkverify":
			bh.handleCheckVerify(chatID, tgUserID)
		default:
			log.Printf("HandleMessage: неизвестная команда '%s' от chatID %d", message.Command(), chatID)
			bh.sendErrorMessageHelper(chatID, 0, "Unknown command. Use /start to open the menu.")
		}
		return
	}

	// Не команда: смотрим, какой ввод от участника ожидается.
	// Not a command: consult the persisted dialogue expectation.
	if p.PendingInput.Valid && p.PendingInput.String == constants.PENDING_WALLET_ADDRESS {
		bh.handleWalletSubmission(chatID, tgUserID, text)
		return
	}

	log.Printf("HandleMessage: неожиданный текст от chatID %d вне диалога, показываем меню", chatID)
	bh.SendMainMenu(chatID, p, 0)
}

// handleStart обрабатывает /start, включая реферальный payload.
// handleStart processes /start including the referral deep-link payload.
// Attribution happens on the referee's first contact; repeated /start taps
// with the same payload are silently ignored by the attribution guards.
func (bh *BotHandler) handleStart(chatID, tgUserID int64, payload string) {
	ctx := context.Background()

	if referrerTg, ok := utils.ParseReferralPayload(payload); ok && referrerTg != tgUserID {
		attributed, err := bh.Deps.Engine.CompleteReferral(ctx, referrerTg, tgUserID)
		if err != nil {
			log.Printf("handleStart: ошибка атрибуции %d -> %d: %v", referrerTg, tgUserID, err)
		} else if attributed {
			bh.notifyReferrer(ctx, referrerTg)
		}
	}

	p, ok := bh.getParticipantFromDB(tgUserID, "")
	if !ok {
		bh.sendErrorMessageHelper(chatID, 0, "❌ Something went wrong with your data. Please try /start again.")
		return
	}
	bh.SendMainMenu(chatID, p, 0)
}

// notifyReferrer уведомляет пригласившего о новом реферале и, если порог
// пройден, запускает автоматическую выплату.
// notifyReferrer tells the inviter about the new referral and evaluates the
// automatic withdrawal right after the credit landed.
func (bh *BotHandler) notifyReferrer(ctx context.Context, referrerTg int64) {
	payout, err := bh.Deps.Engine.AutoWithdraw(ctx, referrerTg)

	text := fmt.Sprintf("🎉 <b>New referral!</b> +%d BEAM added to your pending balance.", bh.Deps.Config.ReferralReward)
	switch {
	case err == nil && payout != nil:
		text += fmt.Sprintf("\n\n📤 <b>%d BEAM</b> sent to your wallet!\nTx: <code>%s</code>", payout.Amount, payout.TxHash)
	case err != nil:
		// Кредит уже записан; сбой выплаты не отменяет уведомление.
		// The credit is already booked; a payout hiccup does not cancel the note.
		log.Printf("notifyReferrer: автоматическая выплата для %d не прошла: %v", referrerTg, err)
		var dispatchFailed *rewards.DispatchFailedError
		if errors.As(err, &dispatchFailed) {
			text += "\n\n⏳ Your payout will be retried on the next referral."
		}
	}

	msg := tgbotapi.NewMessage(referrerTg, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, sendErr := bh.Deps.BotClient.Send(msg); sendErr != nil {
		// Пригласивший мог заблокировать бота; леджер от этого не страдает.
		log.Printf("notifyReferrer: не удалось уведомить %d: %v", referrerTg, sendErr)
	}
}

// handleWalletSubmission обрабатывает присланный адрес кошелька.
func (bh *BotHandler) handleWalletSubmission(chatID, tgUserID int64, text string) {
	ctx := context.Background()

	address, err := bh.Deps.Engine.SubmitWallet(ctx, tgUserID, text)
	if err != nil {
		switch {
		case errors.Is(err, rewards.ErrInvalidAddress):
			bh.sendErrorMessageHelper(chatID, 0,
				"❌ That doesn't look like a valid BSC (BEP20) address.\nPlease send an address like <code>0x…</code> (42 characters).")
		case errors.Is(err, db.ErrWalletConflict):
			bh.sendErrorMessageHelper(chatID, 0,
				"❌ This wallet address is already used by another participant. Please send a different address.")
		default:
			log.Printf("handleWalletSubmission: ошибка сохранения адреса для %d: %v", tgUserID, err)
			bh.sendErrorMessageHelper(chatID, 0, "❌ Could not save your address. Please try again.")
		}
		return
	}

	confirmation := fmt.Sprintf("✅ Wallet saved: <code>%s</code>", address)
	if _, err := bh.sendOrEditMessageHelper(chatID, 0, confirmation, nil); err != nil {
		log.Printf("handleWalletSubmission: ошибка отправки подтверждения для chatID %d: %v", chatID, err)
	}

	// Адрес мог быть последним недостающим условием: пробуем приветственную
	// награду и накопившийся реферальный остаток сразу.
	// The address may have been the last missing guard: try the welcome
	// reward and any queued referral balance right away.
	bh.attemptWelcome(ctx, chatID, tgUserID, 0)
	if payout, err := bh.Deps.Engine.AutoWithdraw(ctx, tgUserID); err == nil && payout != nil {
		text := fmt.Sprintf("📤 <b>%d BEAM</b> from your referrals sent to your wallet!\nTx: <code>%s</code>", payout.Amount, payout.TxHash)
		if _, sendErr := bh.sendOrEditMessageHelper(chatID, 0, text, ptrKeyboard(backToMainKeyboard())); sendErr != nil {
			log.Printf("handleWalletSubmission: ошибка отправки уведомления о выплате для chatID %d: %v", chatID, sendErr)
		}
	} else if err != nil {
		log.Printf("handleWalletSubmission: отложенная выплата для %d не прошла: %v", tgUserID, err)
	}
}

// attemptWelcome пробует выдать приветственную награду и сообщает результат.
// attemptWelcome runs the welcome claim and reports the outcome. Shared by
// the verify button and the post-wallet-submission flow.
func (bh *BotHandler) attemptWelcome(ctx context.Context, chatID, tgUserID int64, messageIDToEdit int) {
	payout, err := bh.Deps.Engine.ClaimWelcome(ctx, tgUserID)
	if err == nil {
		text := fmt.Sprintf("🎉 <b>Verified!</b>\n\n🎁 <b>%d BEAM</b> sent to your wallet.\nTx: <code>%s</code>\n\n👥 Now share your referral link to earn more!",
			payout.Amount, payout.TxHash)
		if _, sendErr := bh.sendOrEditMessageHelper(chatID, messageIDToEdit, text, ptrKeyboard(backToMainKeyboard())); sendErr != nil {
			log.Printf("attemptWelcome: ошибка отправки результата для chatID %d: %v", chatID, sendErr)
		}
		return
	}

	var membershipErr *rewards.MembershipError
	var dispatchFailed *rewards.DispatchFailedError
	var dispatchUnknown *rewards.DispatchUnknownError
	switch {
	case errors.Is(err, rewards.ErrNoWallet):
		bh.promptWalletAddress(chatID, tgUserID, messageIDToEdit,
			"✅ Membership looks good!\n\n💼 Now send your BSC (BEP20) wallet address to receive your reward.")
	case errors.Is(err, rewards.ErrAlreadyWelcomed):
		if _, sendErr := bh.sendOrEditMessageHelper(chatID, messageIDToEdit,
			"✅ You are already verified and your welcome reward was paid.", ptrKeyboard(backToMainKeyboard())); sendErr != nil {
			log.Printf("attemptWelcome: ошибка отправки для chatID %d: %v", chatID, sendErr)
		}
	case errors.As(err, &membershipErr):
		keyboard := bh.joinChannelsKeyboard(membershipErr.Missing())
		text := "📢 <b>Please join all required channels first:</b>\n\n"
		for _, ch := range membershipErr.Missing() {
			text += fmt.Sprintf("• @%s\n", strings.TrimPrefix(ch, "@"))
		}
		text += "\nThen tap <b>Verify Again</b>."
		if _, sendErr := bh.sendOrEditMessageHelper(chatID, messageIDToEdit, text, &keyboard); sendErr != nil {
			log.Printf("attemptWelcome: ошибка отправки списка каналов для chatID %d: %v", chatID, sendErr)
		}
	case errors.As(err, &dispatchFailed):
		bh.sendErrorMessageHelper(chatID, messageIDToEdit,
			"❌ The token transfer failed. Nothing was deducted — please try <b>Verify Join</b> again in a minute.")
	case errors.As(err, &dispatchUnknown):
		bh.sendErrorMessageHelper(chatID, messageIDToEdit,
			"⏳ Your payout is being processed and will be confirmed manually. Please do not retry; we will sort it out.")
	case errors.Is(err, rewards.ErrReconciliationPending):
		bh.sendErrorMessageHelper(chatID, messageIDToEdit,
			"⏳ A previous payout of yours is still being confirmed. New payouts are paused until it is resolved.")
	default:
		log.Printf("attemptWelcome: непредвиденная ошибка для %d: %v", tgUserID, err)
		bh.sendErrorMessageHelper(chatID, messageIDToEdit, "❌ Verification failed unexpectedly. Please try again later.")
	}
}

// handleWithdraw выполняет ручной вывод всего накопленного остатка.
func (bh *BotHandler) handleWithdraw(chatID, tgUserID int64, messageIDToEdit int) {
	ctx := context.Background()

	payout, err := bh.Deps.Engine.Withdraw(ctx, tgUserID)
	if err == nil {
		text := fmt.Sprintf("📤 <b>%d BEAM</b> sent to your wallet!\nTx: <code>%s</code>", payout.Amount, payout.TxHash)
		if _, sendErr := bh.sendOrEditMessageHelper(chatID, messageIDToEdit, text, ptrKeyboard(backToMainKeyboard())); sendErr != nil {
			log.Printf("handleWithdraw: ошибка отправки результата для chatID %d: %v", chatID, sendErr)
		}
		return
	}

	var dispatchFailed *rewards.DispatchFailedError
	var dispatchUnknown *rewards.DispatchUnknownError
	switch {
	case errors.Is(err, rewards.ErrNothingOwed):
		if _, sendErr := bh.sendOrEditMessageHelper(chatID, messageIDToEdit,
			"💰 Your pending balance is empty. Invite friends with your referral link to earn BEAM!",
			ptrKeyboard(backToMainKeyboard())); sendErr != nil {
			log.Printf("handleWithdraw: ошибка отправки для chatID %d: %v", chatID, sendErr)
		}
	case errors.Is(err, rewards.ErrNoWallet):
		bh.promptWalletAddress(chatID, tgUserID, messageIDToEdit,
			"💼 Please send your BSC (BEP20) wallet address first, then withdraw.")
	case errors.As(err, &dispatchFailed):
		bh.sendErrorMessageHelper(chatID, messageIDToEdit,
			"❌ The token transfer failed. Your balance is untouched — please try again in a minute.")
	case errors.As(err, &dispatchUnknown):
		bh.sendErrorMessageHelper(chatID, messageIDToEdit,
			"⏳ Your withdrawal is being processed and will be confirmed manually. Please do not retry.")
	case errors.Is(err, rewards.ErrReconciliationPending):
		bh.sendErrorMessageHelper(chatID, messageIDToEdit,
			"⏳ A previous payout of yours is still being confirmed. Withdrawals are paused until it is resolved.")
	default:
		log.Printf("handleWithdraw: непредвиденная ошибка для %d: %v", tgUserID, err)
		bh.sendErrorMessageHelper(chatID, messageIDToEdit, "❌ Withdrawal failed unexpectedly. Please try again later.")
	}
}

// handleCheckVerify — диагностика подписок без каких-либо выплат.
// handleCheckVerify reports the per-channel membership state without
// touching rewards. Useful when a channel is misconfigured.
func (bh *BotHandler) handleCheckVerify(chatID, tgUserID int64) {
	results, err := bh.Deps.Verifier.CheckAll(context.Background(), tgUserID)
	if err != nil {
		log.Printf("handleCheckVerify: проверка для %d прервана: %v", tgUserID, err)
		bh.sendErrorMessageHelper(chatID, 0, "❌ Could not complete the membership check. Please try again.")
		return
	}

	var b strings.Builder
	b.WriteString("🔍 <b>Membership check</b>\n\n")
	for _, r := range results {
		switch r.State {
		case membership.StateJoined:
			fmt.Fprintf(&b, "✅ @%s — joined (%s)\n", r.Channel, r.Status)
		case membership.StateNotJoined:
			fmt.Fprintf(&b, "❌ @%s — not joined\n", r.Channel)
		default:
			fmt.Fprintf(&b, "⚠️ @%s — could not be checked\n", r.Channel)
		}
	}
	if len(results) == 0 {
		b.WriteString("No channels are configured.")
	}
	if _, sendErr := bh.sendOrEditMessageHelper(chatID, 0, b.String(), ptrKeyboard(backToMainKeyboard())); sendErr != nil {
		log.Printf("handleCheckVerify: ошибка отправки для chatID %d: %v", chatID, sendErr)
	}
}

// promptWalletAddress переводит диалог в ожидание адреса кошелька.
// promptWalletAddress persists the dialogue expectation and asks for the
// address, so the next plain-text message is interpreted as the wallet.
func (bh *BotHandler) promptWalletAddress(chatID, tgUserID int64, messageIDToEdit int, prompt string) {
	if err := bh.Deps.Store.SetPendingInput(tgUserID, constants.PENDING_WALLET_ADDRESS); err != nil {
		bh.sendErrorMessageHelper(chatID, messageIDToEdit, "❌ Something went wrong. Please try again.")
		return
	}
	if _, err := bh.sendOrEditMessageHelper(chatID, messageIDToEdit, prompt, nil); err != nil {
		log.Printf("promptWalletAddress: ошибка отправки запроса адреса для chatID %d: %v", chatID, err)
	}
}

func ptrKeyboard(k tgbotapi.InlineKeyboardMarkup) *tgbotapi.InlineKeyboardMarkup {
	return &k
}
