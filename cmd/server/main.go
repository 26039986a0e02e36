package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"delivro/internal/catalog"
	"delivro/internal/config"
	"delivro/internal/db"
	"delivro/internal/dispatch"
	"delivro/internal/httpapi"
	"delivro/internal/tracking"
	"delivro/internal/verify"
	"delivro/models"
	"delivro/repository"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	log.WithField("config", cfg.String()).Info("configuration loaded")

	// Open DB
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.WithError(err).Warn("close db")
		}
	}()

	orders := repository.NewOrderRepository(d)
	drivers := repository.NewDriverRepository(d)
	profiles := repository.NewProfileRepository(d)

	cat := catalog.Seed()
	controller := dispatch.NewController(d, orders, drivers, cat)

	trackCfg := tracking.Config{Steps: cfg.Tracking.Steps, Tick: cfg.Tracking.Tick}
	feeds := tracking.NewManager(trackCfg, orders, drivers, log)
	jitter := tracking.NewJitter(drivers, cfg.Tracking.JitterTick)
	trackFleet(log, drivers, jitter)

	verifier := verify.NewService(profiles)

	srv := httpapi.NewServer(httpapi.Deps{
		Log:      log,
		Dispatch: controller,
		Orders:   orders,
		Drivers:  drivers,
		Profiles: profiles,
		Catalog:  cat,
		Tracking: feeds,
		Verify:   verifier,
		Jitter:   jitter,
		Secret:   cfg.Auth.JWTSecret,
	})

	httpSrv := &http.Server{Addr: cfg.HTTP.Address, Handler: srv.Router()}
	go func() {
		log.WithField("address", cfg.HTTP.Address).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	// Wait for signal
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	feeds.StopAll()
	jitter.Stop()
}

// trackFleet puts every non-BUSY registered driver under the idle-position
// jitter so the fleet map moves on a fresh boot.
func trackFleet(log *logrus.Logger, drivers *repository.DriverRepository, jitter *tracking.Jitter) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	list, err := drivers.List(ctx)
	if err != nil {
		log.WithError(err).Warn("list drivers for jitter")
		return
	}
	for _, d := range list {
		if d.Status != models.DriverStatusBusy {
			jitter.Track(d.ID)
		}
	}
	log.WithField("drivers", len(list)).Info("fleet jitter started")
}
