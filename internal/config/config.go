// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config хранит все конфигурационные параметры приложения.
// Config holds all application configuration parameters.
type Config struct {
	TelegramToken string
	BotUsername   string
	DatabaseURL   string
	AppEnv        string

	// Required channels: @usernames or -100… chat IDs, comma separated.
	RequiredChannels []string
	// Delay between successive membership lookups, to be gentle with the API.
	MembershipCheckDelay time.Duration

	// Blockchain (BSC / BEP20)
	BSCRPCEndpoint     string
	AdminPrivateKey    string
	TokenContract      string
	ChainID            int64
	ReceiptWaitTimeout time.Duration

	// Rewards, in whole token units.
	WelcomeReward          int64
	ReferralReward         int64
	ReferralsPerWithdrawal int64

	// Admin HTTP API
	AdminAPIToken string
	HTTPPort      string
}

// WithdrawalUnit is the amount moved by one automatic withdrawal.
// It is derived, never configured independently: one unit is always exactly
// the per-referral reward times the referral threshold, which keeps the
// owed_unpaid accounting and the referral counter consistent.
func (c *Config) WithdrawalUnit() int64 {
	return c.ReferralReward * c.ReferralsPerWithdrawal
}

// LoadConfig загружает конфигурацию из переменных окружения.
// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		TelegramToken:   os.Getenv("BOT_TOKEN"),
		BotUsername:     os.Getenv("BOT_USERNAME"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		AppEnv:          os.Getenv("ENV"),
		BSCRPCEndpoint:  os.Getenv("BSC_RPC"),
		AdminPrivateKey: os.Getenv("ADMIN_PRIVATE_KEY"),
		TokenContract:   os.Getenv("BEAM_CONTRACT"),
		AdminAPIToken:   os.Getenv("ADMIN_API_TOKEN"),
		HTTPPort:        os.Getenv("PORT"),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN не установлен")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL не установлен")
	}
	if cfg.BotUsername == "" {
		log.Println("Предупреждение: BOT_USERNAME не установлен. Реферальные ссылки не будут работать.")
	}
	if cfg.AdminAPIToken == "" {
		log.Println("Предупреждение: ADMIN_API_TOKEN не установлен. Админ-API будет отклонять все запросы.")
	}

	if cfg.BSCRPCEndpoint == "" {
		cfg.BSCRPCEndpoint = "https://bsc-dataseed.binance.org/"
		log.Printf("BSC_RPC не установлен, используется значение по умолчанию %s", cfg.BSCRPCEndpoint)
	}
	if cfg.AdminPrivateKey == "" {
		log.Println("Критическая ошибка: ADMIN_PRIVATE_KEY не установлен. Выплаты работать не будут.")
	}
	if cfg.TokenContract == "" {
		log.Println("Критическая ошибка: BEAM_CONTRACT не установлен. Выплаты работать не будут.")
	}
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}

	// Required channels: strip @ and whitespace, skip empties.
	rawChannels := os.Getenv("REQUIRED_CHANNELS")
	if rawChannels == "" {
		rawChannels = "srdexchange,srdexchangeglobal,srdearning"
	}
	for _, c := range strings.Split(rawChannels, ",") {
		c = strings.TrimPrefix(strings.TrimSpace(c), "@")
		if c != "" {
			cfg.RequiredChannels = append(cfg.RequiredChannels, c)
		}
	}

	cfg.ChainID = parseInt64Env("CHAIN_ID", 56) // BSC mainnet by default
	cfg.WelcomeReward = parseInt64Env("WELCOME_REWARD_BEAM", 5)
	cfg.ReferralReward = parseInt64Env("REFERRAL_REWARD_BEAM", 5)
	cfg.ReferralsPerWithdrawal = parseInt64Env("REFERRALS_PER_WITHDRAWAL", 3)
	if cfg.WelcomeReward <= 0 || cfg.ReferralReward <= 0 || cfg.ReferralsPerWithdrawal <= 0 {
		return nil, fmt.Errorf("суммы наград и порог вывода должны быть положительными (welcome=%d, referral=%d, threshold=%d)",
			cfg.WelcomeReward, cfg.ReferralReward, cfg.ReferralsPerWithdrawal)
	}

	cfg.MembershipCheckDelay = parseDurationEnv("MEMBERSHIP_CHECK_DELAY", 200*time.Millisecond)
	cfg.ReceiptWaitTimeout = parseDurationEnv("RECEIPT_WAIT_TIMEOUT", 90*time.Second)

	log.Println("Конфигурация загружена.")
	return cfg, nil
}

func parseInt64Env(name string, def int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("Предупреждение: некорректное значение %s ('%s'): %v. Используется %d.", name, raw, err, def)
		return def
	}
	return v
}

func parseDurationEnv(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		log.Printf("Предупреждение: некорректное значение %s ('%s'): %v. Используется %s.", name, raw, err, def)
		return def
	}
	return v
}
