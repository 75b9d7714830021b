package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hqms/queue-service/internal/config"
	"hqms/queue-service/internal/events"
	"hqms/queue-service/internal/httpapi"
	"hqms/queue-service/internal/hub"
	"hqms/queue-service/internal/queue"
	"hqms/queue-service/internal/store"
	"hqms/queue-service/internal/store/memory"
	"hqms/queue-service/internal/store/postgres"
	"hqms/queue-service/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	entities, closeStore := buildStore(cfg)
	defer closeStore()

	realtime := hub.New()
	publishers := events.Fanout{realtime}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()
		publishers = append(publishers, events.NewRedisPublisher(client))
	}

	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("amqp connect: %v", err)
		}
		defer amqpPublisher.Close()
		publishers = append(publishers, amqpPublisher)
	}

	engine := queue.NewEngine(entities, publishers)
	handler := httpapi.NewHandler(engine)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, realtimeSession(realtime)))
	mux.Handle("/", handler.Routes())

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "queue-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// buildStore connects to PostgreSQL when DB_DSN is set and falls back to the
// in-memory store for local runs.
func buildStore(cfg config.Config) (store.EntityStore, func()) {
	if cfg.DatabaseURL == "" {
		log.Printf("DB_DSN not set, using in-memory store")
		return memory.NewStore(), func() {}
	}
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return postgres.NewStore(pool), pool.Close
}

// realtimeSession pumps hub messages to a SockJS session and applies
// subscribe/unsubscribe messages sent by the client.
func realtimeSession(realtime *hub.Hub) func(sockjs.Session) {
	return func(session sockjs.Session) {
		client := realtime.Register(uuid.NewString())
		defer realtime.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "subscribe" {
				realtime.Subscribe(client, parsed.Topic)
			} else {
				realtime.Unsubscribe(client, parsed.Topic)
			}
		}
	}
}
