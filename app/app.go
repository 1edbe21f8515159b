package app

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"toolkiosk/bus"
	"toolkiosk/db"
	"toolkiosk/session"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合后端进程的各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Bus    *bus.Bus
	Log    *zap.SugaredLogger
	Config Config

	cardSess *session.CardSessionStore
}

func (a *App) CardSessions() *session.CardSessionStore { return a.cardSess }

func MustNew() *App {
	cfg := LoadConfig()

	logger := MustLogger()

	dbConn := db.ConnectDB()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	b, err := bus.Connect(cfg.MQTTHost, cfg.MQTTPort, "toolkiosk-backend", logger)
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}

	r := gin.Default()
	useCORS(r, cfg.WebOrigin)

	return &App{
		Router: r, DB: dbConn, RDB: rdb, Bus: b, Log: logger, Config: cfg,
		cardSess: session.NewCardSessionStore(rdb, cfg.SessionTTL),
	}
}

func (a *App) Close() {
	a.Bus.Close()
	_ = a.RDB.Close()
	_ = a.Log.Sync()
}

// MustLogger builds the process logger. Production config, sugared.
func MustLogger() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap: %v", err)
	}
	return l.Sugar()
}
