package main

import (
	"log"
	"net/http"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"srd-airdrop-bot/internal/api"
	"srd-airdrop-bot/internal/chain"
	"srd-airdrop-bot/internal/config"
	"srd-airdrop-bot/internal/db"
	"srd-airdrop-bot/internal/handlers"
	"srd-airdrop-bot/internal/membership"
	"srd-airdrop-bot/internal/rewards"
	"srd-airdrop-bot/internal/telegram_api"
)

func main() {
	// --- Блок инициализации ---
	err := godotenv.Load()
	if err != nil {
		log.Println("Предупреждение: не удалось загрузить файл .env. Переменные окружения должны быть установлены иным способом.")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Критическая ошибка: не удалось загрузить конфигурацию: %v", err)
	}

	store, err := db.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Критическая ошибка: не удалось инициализировать базу данных: %v", err)
	}
	defer store.Close()

	evmClient, err := chain.Dial(cfg.BSCRPCEndpoint)
	if err != nil {
		log.Fatalf("Критическая ошибка: не удалось подключиться к RPC-узлу %s: %v", cfg.BSCRPCEndpoint, err)
	}
	dispatcher, err := chain.NewDispatcher(evmClient, cfg.AdminPrivateKey, cfg.TokenContract, cfg.ChainID, cfg.ReceiptWaitTimeout)
	if err != nil {
		log.Fatalf("Критическая ошибка: не удалось создать диспетчер выплат: %v", err)
	}

	botClient, err := telegram_api.NewBotClient(cfg.TelegramToken, cfg.AppEnv == "dev")
	if err != nil {
		log.Fatalf("Критическая ошибка: не удалось инициализировать Telegram бота: %v", err)
	}
	if cfg.BotUsername == "" {
		// Реферальные ссылки строятся из имени бота; берем его у самого API.
		// Referral links are built from the bot's name; take it from the API.
		cfg.BotUsername = botClient.Self()
	}

	verifier := membership.NewVerifier(botClient, cfg.RequiredChannels, cfg.MembershipCheckDelay)

	engine, err := rewards.NewEngine(store, dispatcher, verifier, cfg.WelcomeReward, cfg.ReferralReward, cfg.WithdrawalUnit())
	if err != nil {
		log.Fatalf("Критическая ошибка: не удалось создать движок наград: %v", err)
	}

	botHandler := handlers.NewBotHandler(handlers.HandlerDependencies{
		Config:    cfg,
		BotClient: botClient,
		Store:     store,
		Engine:    engine,
		Verifier:  verifier,
	})

	// --- Настройка роутера и Middleware ---
	apiRouter := chi.NewRouter()

	// ГЛОБАЛЬНЫЕ MIDDLEWARES ДОЛЖНЫ ИДТИ ПЕРЕД api.SetupRoutes
	apiRouter.Use(middleware.Logger)
	apiRouter.Use(middleware.Recoverer)
	apiRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.SetupRoutes(apiRouter, api.ApiDependencies{
		Config: cfg,
		Store:  store,
	})

	// Запускаем HTTP-сервер для админ-API в отдельной горутине
	go func() {
		log.Printf("Запуск HTTP-сервера админ-API на порту %s", cfg.HTTPPort)
		if err := http.ListenAndServe(":"+cfg.HTTPPort, apiRouter); err != nil {
			log.Fatalf("КРИТИЧЕСКАЯ ОШИБКА: не удалось запустить HTTP-сервер: %v", err)
		}
	}()

	// Запуск самого бота
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botClient.GetUpdatesChan(u)

	log.Println("Бот и API-сервер запущены и готовы к работе...")

	for update := range updates {
		if update.Message != nil {
			log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
			go botHandler.HandleMessage(update)
		} else if update.CallbackQuery != nil {
			log.Printf("Callback от %s: %s", update.CallbackQuery.From.UserName, update.CallbackQuery.Data)
			go botHandler.HandleCallback(update)
		}
	}
}
