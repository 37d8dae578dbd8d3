package api

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wepaintai/wepaintai-sub000/api/rest"
	"github.com/wepaintai/wepaintai-sub000/api/ws"
	"github.com/wepaintai/wepaintai-sub000/cache"
	"github.com/wepaintai/wepaintai-sub000/mq"
	"github.com/wepaintai/wepaintai-sub000/service"
	"github.com/wepaintai/wepaintai-sub000/store"
	"github.com/wepaintai/wepaintai-sub000/worker"
)

type PaintAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	shutdownCtx context.Context
}

func NewPaintAPI(
	paintStore store.PaintStore,
	purgeLayerStrokesQueue mq.MessageQueue,
	paintCache cache.PaintCache,
	jwtSecret []byte,
	shutdownCtx context.Context,
) (*PaintAPI, error) {
	wsHub := ws.NewHub(paintCache)
	go wsHub.Run()

	statBatcher := worker.NewStatBatcher(paintStore, 60000)
	go statBatcher.Run(shutdownCtx)

	strokeBatcher := worker.NewStrokeBatcher(paintStore, 500, statBatcher)
	go strokeBatcher.Run(shutdownCtx)

	cascadeConsumer := worker.NewCascadeConsumer(purgeLayerStrokesQueue, paintStore, paintCache, statBatcher)
	go cascadeConsumer.Run(shutdownCtx)

	svc, err := service.NewService(
		paintStore,
		paintCache,
		purgeLayerStrokesQueue,
		strokeBatcher,
		statBatcher,
		jwtSecret,
	)
	if err != nil {
		log.Printf("Failed to create service: %v", err)
		return &PaintAPI{}, err
	}

	restHandler := rest.NewHandler(svc)
	wsHandler := ws.NewHandler(svc, wsHub)

	return &PaintAPI{
		restHandler: restHandler,
		wsHandler:   wsHandler,
		shutdownCtx: shutdownCtx,
	}, nil
}

func (paintAPI *PaintAPI) RegisterRoutes(mux *http.ServeMux, requiredOrigin string) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/guest", paintAPI.restHandler.HandleGuest)
	mux.HandleFunc("/sessions", paintAPI.restHandler.HandleSessions)
	mux.HandleFunc("/sessions/{id}", paintAPI.restHandler.HandleSession)

	wsUpgrader := paintAPI.wsHandler.NewWsUpgrader(requiredOrigin)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		paintAPI.wsHandler.ServeWS(wsUpgrader, w, r, paintAPI.shutdownCtx)
	})
}
