package telegram_api

import (
	"fmt"
	"log"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

// BotClient представляет собой обертку для Telegram Bot API.
// BotClient is a wrapper around the Telegram Bot API. It is constructed
// once in main and passed explicitly to every consumer; the package keeps
// no global instance.
type BotClient struct {
	api   *tgbotapi.BotAPI
	Debug bool
}

// NewBotClient инициализирует Telegram бота и возвращает клиента.
// token - API токен вашего бота.
// debug - флаг для включения режима отладки.
// NewBotClient initializes the Telegram bot and returns the client.
// token - API token of your bot.
// debug - flag to enable debug mode.
func NewBotClient(token string, debug bool) (*BotClient, error) {
	if token == "" {
		return nil, fmt.Errorf("токен Telegram API не предоставлен")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Telegram Bot API: %w", err)
	}

	api.Debug = debug

	log.Printf("Авторизован как аккаунт %s", api.Self.UserName)

	// Отключаем вебхук, если он активен (важно для getUpdates)
	// Disable webhook if active (important for getUpdates)
	deleteWebhookConfig := tgbotapi.DeleteWebhookConfig{
		DropPendingUpdates: true,
	}
	_, err = api.Request(deleteWebhookConfig)
	if err != nil {
		// Ошибка может возникнуть, если вебхука и не было.
		// An error might occur if no webhook was set.
		log.Printf("Предупреждение или ошибка при отключении вебхука: %v. Это может быть нормально, если вебхук не был установлен.", err)
	} else {
		log.Println("Вебхук успешно отключен (или не был установлен).")
	}

	return &BotClient{
		api:   api,
		Debug: debug,
	}, nil
}

// Self возвращает имя пользователя авторизованного бота.
// Self returns the authorized bot's username.
func (bc *BotClient) Self() string {
	if bc == nil || bc.api == nil {
		return ""
	}
	return bc.api.Self.UserName
}

// GetUpdatesChan возвращает канал обновлений от Telegram.
// GetUpdatesChan returns the update channel from Telegram.
func (bc *BotClient) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	if bc == nil || bc.api == nil {
		log.Fatal("BotClient или его API не инициализирован перед запросом обновлений.")
	}
	if bc.Debug {
		log.Printf("Запрос канала обновлений с конфигурацией: %+v", config)
	}
	return bc.api.GetUpdatesChan(config)
}

// Send отправляет сообщение через BotClient.
// Send sends a message via BotClient.
func (bc *BotClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if bc == nil || bc.api == nil {
		return tgbotapi.Message{}, fmt.Errorf("BotClient или его API не инициализирован")
	}
	if bc.Debug {
		// Логирование может быть очень объемным, особенно для сложных структур.
		// Logging can be very verbose, especially for complex structures.
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			log.Printf("Отправка сообщения: ChatID=%d, Text='%.50s...'", msg.ChatID, msg.Text)
		} else if editMsg, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			log.Printf("Редактирование сообщения: ChatID=%d, MessageID=%d, Text='%.50s...'", editMsg.ChatID, editMsg.MessageID, editMsg.Text)
		} else if photoMsg, ok := c.(tgbotapi.PhotoConfig); ok {
			log.Printf("Отправка фото: ChatID=%d, Caption='%.50s...'", photoMsg.ChatID, photoMsg.Caption)
		} else {
			log.Printf("Отправка/запрос типа %T", c)
		}
	}
	return bc.api.Send(c)
}

// Request выполняет запрос через BotClient.
// Request performs a request via BotClient.
func (bc *BotClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if bc == nil || bc.api == nil {
		return nil, fmt.Errorf("BotClient или его API не инициализирован")
	}
	if bc.Debug {
		if delMsg, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			log.Printf("Запрос на удаление: ChatID=%d, MessageID=%d", delMsg.ChatID, delMsg.MessageID)
		} else if cbAns, ok := c.(tgbotapi.CallbackConfig); ok {
			log.Printf("Запрос ответа на коллбэк: CallbackQueryID=%s, Text='%.50s...'", cbAns.CallbackQueryID, cbAns.Text)
		} else {
			log.Printf("Выполнение запроса типа %T", c)
		}
	}
	return bc.api.Request(c)
}

// MakeRequest выполняет произвольный запрос к API Telegram.
// Этот метод полезен для вызовов API, не обернутых в стандартные методы tgbotapi.
// MakeRequest performs an arbitrary request to the Telegram API.
// This method is useful for API calls not wrapped in standard tgbotapi methods.
func (bc *BotClient) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	if bc == nil || bc.api == nil {
		return nil, fmt.Errorf("BotClient или его API не инициализирован")
	}
	if bc.Debug {
		log.Printf("Выполнение MakeRequest: endpoint=%s, params=%v", endpoint, params)
	}
	return bc.api.MakeRequest(endpoint, params)
}
