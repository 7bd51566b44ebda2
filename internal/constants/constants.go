package constants

// Pending input kinds, persisted on the participant row so that a restart
// (or another process instance picking up the next message) does not lose
// the dialogue expectation.
const (
	PENDING_NONE           = ""
	PENDING_WALLET_ADDRESS = "wallet_address"
)

// Callback data tags for the inline main menu.
// Теги callback-данных для кнопок главного меню.
const (
	CALLBACK_VERIFY         = "verify"
	CALLBACK_X_TASKS        = "x_tasks"
	CALLBACK_SUBMIT_ADDRESS = "submit_addr"
	CALLBACK_BALANCE        = "balance"
	CALLBACK_WITHDRAW       = "withdraw"
	CALLBACK_REFERRAL       = "ref"
	CALLBACK_HELP           = "help"
	CALLBACK_BACK_MAIN      = "back_main"
)

// Payout kinds recorded in the payout log.
const (
	PAYOUT_KIND_WELCOME  = "welcome"
	PAYOUT_KIND_REFERRAL = "referral"
)

// Referral deep-link payload: /start ref_<tg_user_id>.
const REFERRAL_PAYLOAD_PREFIX = "ref_"

// Membership statuses reported by Telegram that count as "not joined".
// Everything else (creator, administrator, member, restricted) counts as joined.
const (
	MEMBER_STATUS_LEFT   = "left"
	MEMBER_STATUS_KICKED = "kicked"
)
