package main

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wepaintai/wepaintai-sub000/api"
	"github.com/wepaintai/wepaintai-sub000/cache/redis"
	"github.com/wepaintai/wepaintai-sub000/config"
	"github.com/wepaintai/wepaintai-sub000/mq/sqsmq"
	"github.com/wepaintai/wepaintai-sub000/store"
	"github.com/wepaintai/wepaintai-sub000/store/dynamo"
	"github.com/wepaintai/wepaintai-sub000/store/pebbledb"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var paintStore store.PaintStore
	switch cfg.Store.Backend {
	case "pebble":
		paintStore, err = pebbledb.NewPebblePaintStore(cfg.Store.PebblePath)
	case "dynamo":
		paintStore, err = dynamo.NewDynamoPaintStore(ctx, cfg.DevMode, cfg.Store.DynamoDBEndpoint, cfg.Store.DynamoDBTable)
	default:
		log.Fatalf("Unknown store backend: %s", cfg.Store.Backend)
	}
	if err != nil {
		log.Fatalf("Failed to create %s store: %v", cfg.Store.Backend, err)
	}

	purgeLayerStrokesQueue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQS.Endpoint, cfg.SQS.QueueName)
	if err != nil {
		log.Fatalf("Failed to create SQS MQ: %v", err)
	}

	paintCache, err := redis.NewRedisPaintCache(ctx, cfg.DevMode, cfg.Redis.Endpoint)
	if err != nil {
		log.Fatalf("Failed to create redis cache: %v", err)
	}

	jwtSecret, err := base64.StdEncoding.DecodeString(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Failed to decode base64 jwtSecret: %v", err)
	}
	if len(jwtSecret) == 0 && cfg.DevMode {
		jwtSecret = []byte("dev-only-secret")
	}

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	paintAPI, err := api.NewPaintAPI(paintStore, purgeLayerStrokesQueue, paintCache, jwtSecret, shutdownCtx)
	if err != nil {
		log.Fatalf("Failed to create paint api: %v", err)
	}

	mux := http.NewServeMux()
	paintAPI.RegisterRoutes(mux, cfg.Server.RequiredOrigin)

	log.Printf("Starting server on host port: %s\n", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, mux))
}
