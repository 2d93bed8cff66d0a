package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/mbolis/quick-funnel/app"
	"github.com/mbolis/quick-funnel/config"
	"github.com/mbolis/quick-funnel/database"
	"github.com/mbolis/quick-funnel/funnel"
	"github.com/mbolis/quick-funnel/httpx"
	"github.com/mbolis/quick-funnel/log"
	"github.com/mbolis/quick-funnel/routes"
	"github.com/mbolis/quick-funnel/storage"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	app := app.App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(db, cfg),
		Config:       cfg,
		Chats:        funnel.NewRegistry(),
		Blobs:        storage.NewDisk(cfg.UploadDir, cfg.BaseURL),
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
