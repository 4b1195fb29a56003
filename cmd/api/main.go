package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"taskeval-backend/internal/analytics"
	"taskeval-backend/internal/auth"
	"taskeval-backend/internal/config"
	"taskeval-backend/internal/db"
	"taskeval-backend/internal/dedup"
	"taskeval-backend/internal/evaluation"
	"taskeval-backend/internal/logger"
	"taskeval-backend/internal/payments"
	"taskeval-backend/internal/signature"
	"taskeval-backend/internal/store"
	"taskeval-backend/internal/tasks"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Get()

	database, err := db.Connect(cfg.ConnString())
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer database.Close()
	log.Info("connected to postgres", zap.String("db", cfg.DBName))

	ledger := store.NewPostgres(database)
	events := analytics.NewRecorder(database)

	// Two verifiers, two secrets: the webhook secret signs raw
	// bodies, the API key secret signs checkout order/payment pairs.
	webhookVerifier := signature.New(cfg.RazorpayWebhookSecret)
	checkoutVerifier := signature.New(cfg.RazorpayKeySecret)

	var scorer evaluation.Scorer
	switch cfg.Scorer {
	case "openai":
		scorer = evaluation.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel)
	default:
		scorer = evaluation.Heuristic{}
	}

	trigger := evaluation.NewTrigger(ledger, scorer, events, cfg.ScorerTimeout, log)
	queue := evaluation.NewQueue(trigger, cfg.EvalQueueSize, log)
	queue.Start(cfg.EvalWorkers)
	defer queue.Stop()

	var deduper dedup.Deduper
	if cfg.RedisAddr != "" {
		rd, err := dedup.NewRedis(cfg.RedisAddr, cfg.RedisDB, 24*time.Hour)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rd.Close()
		deduper = rd
		log.Info("webhook dedup enabled", zap.String("redis", cfg.RedisAddr))
	} else {
		deduper = dedup.NewMemory()
	}

	webhookReconciler := payments.NewReconciler(ledger, webhookVerifier, queue, log)
	checkoutReconciler := payments.NewReconciler(ledger, checkoutVerifier, queue, log)
	rzp := payments.NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL)

	secret := []byte(cfg.JWTSecret)
	mw := auth.New(secret)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// ----- AUTH -----
	mux.HandleFunc("/auth/register", postOnly(auth.RegisterHandler(database, secret)))
	mux.HandleFunc("/auth/login", postOnly(auth.LoginHandler(database, secret)))
	mux.HandleFunc("/auth/logout", postOnly(auth.LogoutHandler()))
	mux.HandleFunc("/auth/me", mw.Wrap(auth.MeHandler(database)))
	mux.HandleFunc("/auth/account", mw.Wrap(auth.DeleteAccountHandler(database)))

	// ----- TASKS -----
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			mw.Wrap(tasks.ListTasksHandler(ledger))(w, r)
		case http.MethodPost:
			mw.Wrap(tasks.CreateTaskHandler(ledger, events))(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/task", mw.Wrap(tasks.GetTaskHandler(ledger)))
	mux.HandleFunc("/evaluation", mw.Wrap(tasks.GetEvaluationHandler(ledger)))
	mux.HandleFunc("/evaluations/retry", postOnly(mw.Wrap(evaluation.RetryHandler(ledger, queue, log))))

	// ----- PAYMENTS -----
	mux.HandleFunc("/payments/order", postOnly(mw.Wrap(
		payments.CreateOrderHandler(ledger, rzp, cfg.EvaluationFee, cfg.Currency, events))))
	mux.HandleFunc("/payments/confirm", postOnly(mw.Wrap(
		payments.ConfirmHandler(checkoutReconciler, ledger, events))))
	mux.HandleFunc("/payments/webhook", postOnly(
		payments.WebhookHandler(webhookReconciler, webhookVerifier, deduper, log)))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info("api server running", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, c.Handler(mux)); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			next(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
