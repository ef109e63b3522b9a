package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"sessionRelay/config"
	"sessionRelay/internal/cache"
	"sessionRelay/internal/editlog"
	"sessionRelay/internal/httpapi/handlers"
	"sessionRelay/internal/httpapi/middleware"
	"sessionRelay/internal/relay"
	"sessionRelay/internal/store"
	"sessionRelay/internal/ws"
)

func initConfig() (*config.Config, error) {
	cfg := &config.Config{}
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 config 目录启动
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	// === Redis ===
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	// === MySQL ===
	db, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// === Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	kafkaRelay := relay.NewKafkaRelay(producer, cfg.Kafka.Topic, relay.KafkaRelayOptions{
		QueueSize:   10_000,
		Workers:     4,
		MaxRetry:    3,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  1 * time.Second,
	})

	pairing := cache.NewRedisPairing(rdb)
	hub := ws.NewHub(pairing)
	logStore := store.NewSessionLogStore(db)

	// 批次双路广播：Kafka（外部消费者）+ 房间内 ws 连接（遥控端实时预览）
	registry := editlog.NewRegistry(logStore, editlog.MultiRelay{kafkaRelay, hub}, editlog.SessionConfig{
		Mode:               editlog.ModeRealtime,
		BatchThresholds:    cfg.Thresholds.Batch,
		SnapshotThresholds: cfg.Thresholds.Snapshot,
	})

	manager := ws.NewManager(hub, registry)

	tokenTTL := time.Duration(cfg.Token.TTLMinutes) * time.Minute
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	sessionHandlers := handlers.NewSessionHandlers(logStore, pairing, registry, tokenTTL)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	v1 := r.Group("/v1")
	v1.POST("/sessions", sessionHandlers.CreateSession)
	v1.POST("/sessions/pair", sessionHandlers.Pair)

	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware())
	authed.GET("/sessions/:sessionID/reconstruct", sessionHandlers.Reconstruct)
	authed.GET("/sessions/:sessionID/snapshots", sessionHandlers.ListSnapshots)
	authed.GET("/sessions/:sessionID/status", sessionHandlers.Status)
	authed.GET("/ws", manager.WebSocketConnect)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}
