package membership

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"srd-airdrop-bot/internal/constants"
)

// State классифицирует результат проверки одного канала.
// State classifies the verification result for one required channel.
type State string

const (
	StateJoined    State = "joined"
	StateNotJoined State = "not-joined"
	// StateUnresolvable: the lookup itself failed (chat not found, bot has
	// no access, network error). Gated as not-joined, but reported
	// distinctly so genuine non-membership is not confused with a broken
	// channel configuration.
	StateUnresolvable State = "unresolvable"
)

// Result — результат проверки участника в одном канале.
type Result struct {
	Channel string // As configured: username without @, or -100… id
	State   State
	Status  string // Raw member status when the lookup resolved
	Err     error  // Lookup error for unresolvable results
}

// Joined reports whether this single channel requirement is satisfied.
func (r Result) Joined() bool { return r.State == StateJoined }

// ChatAPI — контракт внешнего сервиса проверки членства.
// ChatAPI is the membership lookup service contract, implemented by the
// Telegram bot client.
type ChatAPI interface {
	// ResolveChatID resolves a channel reference (@username or -100… id)
	// to a numeric chat id.
	ResolveChatID(channel string) (int64, error)
	// MemberStatus returns the raw membership status of the user in the chat
	// (creator, administrator, member, restricted, left, kicked).
	MemberStatus(chatID int64, userID int64) (string, error)
}

// Verifier проверяет подписку участника на все обязательные каналы.
// Verifier checks a participant against every configured required channel.
type Verifier struct {
	api      ChatAPI
	channels []string
	delay    time.Duration // Inter-check pacing, to be gentle with the API
}

// NewVerifier создает верификатор подписок.
func NewVerifier(api ChatAPI, channels []string, delay time.Duration) *Verifier {
	return &Verifier{api: api, channels: channels, delay: delay}
}

// CheckAll проверяет каждый обязательный канал и возвращает результат по каждому.
// CheckAll checks every configured channel and returns one Result per
// channel. Lookup failures become StateUnresolvable, never success. The
// error return is non-nil only when ctx is done; total latency is bounded
// by channels × (lookup timeout + delay). An empty channel list trivially
// satisfies.
func (v *Verifier) CheckAll(ctx context.Context, tgUserID int64) ([]Result, error) {
	results := make([]Result, 0, len(v.channels))
	for i, channel := range v.channels {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		results = append(results, v.checkOne(channel, tgUserID))

		// Pacing between lookups, not after the last one.
		if i < len(v.channels)-1 && v.delay > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(v.delay):
			}
		}
	}
	return results, nil
}

func (v *Verifier) checkOne(channel string, tgUserID int64) Result {
	chatID, err := v.api.ResolveChatID(channel)
	if err != nil {
		log.Printf("Verifier: канал %s не разрешается: %v", channel, err)
		return Result{Channel: channel, State: StateUnresolvable, Err: err}
	}

	status, err := v.api.MemberStatus(chatID, tgUserID)
	if err != nil {
		log.Printf("Verifier: статус участника %d в канале %s недоступен: %v", tgUserID, channel, err)
		return Result{Channel: channel, State: StateUnresolvable, Err: err}
	}

	state := StateJoined
	switch strings.ToLower(status) {
	case constants.MEMBER_STATUS_LEFT, constants.MEMBER_STATUS_KICKED:
		state = StateNotJoined
	}
	log.Printf("Verifier: канал %s, участник %d -> status=%s => %s", channel, tgUserID, status, state)
	return Result{Channel: channel, State: state, Status: status}
}

// AllJoined — логическое И по всем каналам.
// AllJoined is the aggregate: logical AND over all configured channels.
func AllJoined(results []Result) bool {
	for _, r := range results {
		if !r.Joined() {
			return false
		}
	}
	return true
}

// Missing возвращает каналы, условие по которым не выполнено.
// Missing returns channels whose requirement is unsatisfied (including
// unresolvable ones).
func Missing(results []Result) []string {
	var missing []string
	for _, r := range results {
		if !r.Joined() {
			missing = append(missing, r.Channel)
		}
	}
	return missing
}

// ChannelLink строит отображаемую ссылку на канал.
// ChannelLink builds a user-facing link for a configured channel reference.
func ChannelLink(channel string) string {
	if strings.HasPrefix(channel, "-100") {
		return channel // Numeric id, no public link
	}
	return fmt.Sprintf("https://t.me/%s", strings.TrimPrefix(channel, "@"))
}
