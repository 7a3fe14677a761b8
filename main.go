package main

import (
	"fmt"
	"log"
	"net/http"

	"bankcore/config"
	"bankcore/controllers"
	"bankcore/database"
	"bankcore/middleware"
	"bankcore/services"
	"bankcore/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
)

// openStore выбирает хранилище по STORAGE_DRIVER; close освобождает соединения
func openStore(cfg *config.Config) (database.Store, func(), error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		utils.LogInfo("Используется хранилище в памяти, данные не сохраняются между запусками")
		return database.NewMemoryStore(), func() {}, nil
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, func() {
		if err := db.Close(); err != nil {
			utils.LogError("Ошибка закрытия соединения с базой данных: %v", err)
		}
	}, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// newRouter собирает сервисы, контроллеры и маршруты
func newRouter(cfg *config.Config, store database.Store) *mux.Router {
	verifier := middleware.NewTokenVerifier(cfg.JWT.SecretKey)

	// Сервисы
	userService := services.NewUserService(store)
	cardService := services.NewCardService(store)
	transferService := services.NewTransferService(store, cardService)
	depositService := services.NewDepositService(store, cardService)
	loanService := services.NewLoanService(store, cardService)
	adminService := services.NewAdminService(store, loanService, depositService)

	// Контроллеры
	authController := controllers.NewAuthController(userService, verifier, cfg)
	cardController := controllers.NewCardController(cardService, transferService)
	depositController := controllers.NewDepositController(depositService)
	loanController := controllers.NewLoanController(loanService)
	adminController := controllers.NewAdminController(adminService, userService)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler).Methods("GET")

	// Административный шлюз на gin
	adminEngine := controllers.NewAdminEngine(adminController, verifier,
		utils.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	router.PathPrefix("/api/admin").Handler(adminEngine)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.LoggingMiddleware)

	// Публичные маршруты для аутентификации
	api.HandleFunc("/auth/signUp", authController.SignUp).Methods("POST")
	api.HandleFunc("/auth/signIn", authController.SignIn).Methods("POST")

	// Защищенные маршруты
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(verifier))
	protected.Use(middleware.RateLimitMiddleware(utils.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)))

	protected.HandleFunc("/users/me", authController.Me).Methods("GET")

	// Карта и переводы
	protected.HandleFunc("/cards", cardController.CreateCard).Methods("POST")
	protected.HandleFunc("/cards/me", cardController.GetCard).Methods("GET")
	protected.HandleFunc("/cards/me/top-up", cardController.TopUp).Methods("POST")
	protected.HandleFunc("/cards/me/renewal", cardController.RequestRenewal).Methods("POST")
	protected.HandleFunc("/cards/me/transactions", cardController.History).Methods("GET")
	protected.HandleFunc("/transfers", cardController.Transfer).Methods("POST")

	// Депозиты
	protected.HandleFunc("/deposits", depositController.Apply).Methods("POST")
	protected.HandleFunc("/deposits", depositController.List).Methods("GET")
	protected.HandleFunc("/deposits/{id:[0-9]+}/early-withdrawal", depositController.EarlyWithdrawal).Methods("POST")
	protected.HandleFunc("/deposits/{id:[0-9]+}/withdraw", depositController.WithdrawMatured).Methods("POST")

	// Кредиты
	protected.HandleFunc("/loans", loanController.Apply).Methods("POST")
	protected.HandleFunc("/loans", loanController.List).Methods("GET")
	protected.HandleFunc("/loans/{id:[0-9]+}/payments", loanController.MakePayment).Methods("POST")
	protected.HandleFunc("/loans/{id:[0-9]+}/penalty", loanController.PayPenalty).Methods("POST")
	protected.HandleFunc("/loans/{id:[0-9]+}", loanController.Delete).Methods("DELETE")

	return router
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	if err := utils.InitLoggers(cfg.LogDir); err != nil {
		log.Fatalf("Ошибка инициализации логгеров: %v", err)
	}
	defer utils.CloseLoggers()

	gin.SetMode(gin.ReleaseMode)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer closeStore()

	router := newRouter(cfg, store)

	port := fmt.Sprintf(":%d", cfg.Server.Port)
	utils.LogInfo("Сервер запущен на порту %s", port)
	if err := http.ListenAndServe(port, router); err != nil {
		utils.LogError("Ошибка запуска сервера: %v", err)
	}
}
