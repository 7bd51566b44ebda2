package telegram_api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

// chatInfo — минимальный срез ответа getChat.
type chatInfo struct {
	ID int64 `json:"id"`
}

// chatMemberInfo — минимальный срез ответа getChatMember.
type chatMemberInfo struct {
	Status string `json:"status"`
}

// ResolveChatID разрешает ссылку на канал в числовой chat id.
// ResolveChatID resolves a channel reference to a numeric chat id. Accepts
// a numeric id (-100…) as-is and a username (with or without @) via getChat.
// Implements the membership lookup contract of the verifier.
func (bc *BotClient) ResolveChatID(channel string) (int64, error) {
	ref := strings.TrimSpace(channel)
	if ref == "" {
		return 0, fmt.Errorf("пустая ссылка на канал")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	if !strings.HasPrefix(ref, "@") {
		ref = "@" + ref
	}

	params := tgbotapi.Params{}
	params.AddNonEmpty("chat_id", ref)
	resp, err := bc.MakeRequest("getChat", params)
	if err != nil {
		return 0, fmt.Errorf("getChat(%s): %w", ref, err)
	}
	var chat chatInfo
	if err := json.Unmarshal(resp.Result, &chat); err != nil {
		return 0, fmt.Errorf("разбор ответа getChat(%s): %w", ref, err)
	}
	if chat.ID == 0 {
		return 0, fmt.Errorf("getChat(%s): пустой chat id в ответе", ref)
	}
	return chat.ID, nil
}

// MemberStatus возвращает статус участника в чате.
// MemberStatus returns the raw membership status (creator, administrator,
// member, restricted, left, kicked) of the user in the chat.
func (bc *BotClient) MemberStatus(chatID int64, userID int64) (string, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("user_id", userID)
	resp, err := bc.MakeRequest("getChatMember", params)
	if err != nil {
		return "", fmt.Errorf("getChatMember(chat=%d, user=%d): %w", chatID, userID, err)
	}
	var member chatMemberInfo
	if err := json.Unmarshal(resp.Result, &member); err != nil {
		return "", fmt.Errorf("разбор ответа getChatMember(chat=%d, user=%d): %w", chatID, userID, err)
	}
	if member.Status == "" {
		return "", fmt.Errorf("getChatMember(chat=%d, user=%d): пустой статус в ответе", chatID, userID)
	}
	return member.Status, nil
}
