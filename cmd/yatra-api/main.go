// README: Entry point; loads config, wires stores and services, serves HTTP until SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"yatra/internal/config"
	"yatra/internal/events"
	httptransport "yatra/internal/http"
	"yatra/internal/http/handlers"
	"yatra/internal/infra"
	"yatra/internal/maps"
	"yatra/internal/modules/booking"
	"yatra/internal/modules/matching"
	"yatra/internal/modules/rating"
	"yatra/internal/modules/route"
	"yatra/internal/modules/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := infra.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier = infra.DevVerifier{}
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.WithError(err).Fatal("firebase init")
		}
	} else {
		log.Warn("YATRA_FIREBASE_PROJECT_ID not set; trusting bearer tokens as <uid>[:<role>]")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer dbPool.Close()
	tx := infra.NewTxRunner(dbPool, cfg.DB.LockTimeout, cfg.DB.StatementTimeout)

	var publisher events.Publisher = events.Nop{}
	if w := infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic); w != nil {
		kp := events.NewKafkaPublisher(w, log)
		defer kp.Close()
		publisher = kp
	}

	var cache matching.SearchCache
	if rc := infra.NewRedis(cfg.Redis.Addr); rc != nil {
		defer rc.Close()
		cache = matching.NewCache(rc)
	}

	var (
		geocoder handlers.Geocoder
		paths    handlers.PathFinder
	)
	if cfg.Maps.APIKey != "" {
		client, err := maps.NewClient(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("maps client")
		}
		geocoder = maps.NewGeocoder(client)
		paths = maps.NewRouteService(client)
	}

	routeStore := route.NewStore()
	tripStore := trip.NewStore()
	requestStore := booking.NewStore()

	tripSvc := trip.NewService(trip.Deps{
		Store:      tripStore,
		Routes:     route.NewService(routeStore, dbPool, cfg.Matching.CorridorMeters),
		RouteStore: routeStore,
		Tx:         tx,
		Events:     publisher,
		Log:        log,
	})
	matchingSvc := matching.NewService(matching.NewStore(dbPool), cache, cfg.Matching, log)
	bookingSvc := booking.NewService(booking.Deps{
		Store:      requestStore,
		Trips:      tripStore,
		Routes:     routeStore,
		Tx:         tx,
		Events:     publisher,
		Log:        log,
		ProximityM: cfg.Matching.ProximityMeters,
	})
	ratingSvc := rating.NewService(rating.Deps{
		Store:    rating.NewStore(),
		Trips:    tripStore,
		Requests: requestStore,
		Tx:       tx,
		Events:   publisher,
		Log:      log,
	})

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Trips:    tripSvc,
		Search:   matchingSvc,
		Bookings: bookingSvc,
		Ratings:  ratingSvc,
		Geocoder: geocoder,
		Paths:    paths,
		Verifier: verifier,
		Log:      log,
	})

	if err := httptransport.Serve(ctx, cfg.HTTP.Addr, router, log); err != nil {
		log.WithError(err).Fatal("http server")
	}
}
