package utils

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"

	"srd-airdrop-bot/internal/constants"
)

// GenerateReferralLink генерирует реферальную ссылку для пользователя.
// botUsername должен передаваться, так как это конфигурационное значение.
func GenerateReferralLink(botUsername string, tgUserID int64) (string, error) {
	if botUsername == "" {
		log.Println("GenerateReferralLink: botUsername не предоставлен.")
		return "", fmt.Errorf("имя пользователя бота не настроено")
	}
	if tgUserID == 0 {
		log.Printf("GenerateReferralLink: невалидный tgUserID: %d", tgUserID)
		return "", fmt.Errorf("невалидный ID пользователя для реферальной ссылки")
	}
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, constants.REFERRAL_PAYLOAD_PREFIX, tgUserID), nil
}

// ParseReferralPayload разбирает payload команды /start.
// ParseReferralPayload parses the /start payload. Returns the referrer's
// tg user id and true when the payload carries a well-formed referral tag;
// any other payload (empty, malformed, non-numeric) yields (0, false).
func ParseReferralPayload(payload string) (int64, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, constants.REFERRAL_PAYLOAD_PREFIX) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(payload, constants.REFERRAL_PAYLOAD_PREFIX), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// GenerateQRCode генерирует QR-код для реферальной ссылки.
// botUsername также нужен здесь, так как он используется в GenerateReferralLink.
func GenerateQRCode(botUsername string, tgUserID int64) ([]byte, error) {
	link, err := GenerateReferralLink(botUsername, tgUserID)
	if err != nil {
		log.Printf("GenerateQRCode: ошибка генерации реферальной ссылки для QR-кода (tgUserID %d): %v", tgUserID, err)
		return nil, err
	}

	// qrcode.Medium - уровень коррекции ошибок, 256 - размер QR-кода в пикселях.
	qrBytes, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		log.Printf("GenerateQRCode: ошибка кодирования QR-кода для ссылки '%s': %v", link, err)
		return nil, err
	}
	return qrBytes, nil
}
