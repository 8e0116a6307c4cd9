// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"yatra/internal/http/handlers"
	"yatra/internal/http/middleware"
	"yatra/internal/infra"
)

type RouterDeps struct {
	Trips    handlers.TripService
	Search   handlers.SearchService
	Bookings handlers.BookingService
	Ratings  handlers.RatingService
	Geocoder handlers.Geocoder
	Paths    handlers.PathFinder
	Verifier infra.TokenVerifier
	Log      logrus.FieldLogger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Metrics(), middleware.Logging(d.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(d.Verifier))

	trips := handlers.NewTripHandler(d.Trips, d.Bookings, d.Search, d.Paths, d.Log)
	api.POST("/trips", trips.Create)
	api.GET("/trips", trips.List)
	api.GET("/trips/search", trips.Search)
	api.GET("/trips/:id", trips.Get)
	api.GET("/trips/:id/requests", trips.Requests)
	api.POST("/trips/:id/cancel", trips.Cancel)
	api.POST("/trips/:id/start", trips.Start)
	api.POST("/trips/:id/complete", trips.Complete)
	api.GET("/me/trips", trips.Mine)

	requests := handlers.NewRequestHandler(d.Bookings, d.Geocoder, d.Log)
	api.POST("/trips/:id/book", requests.Book)
	api.GET("/requests/:id", requests.Get)
	api.POST("/requests/:id/cancel", requests.Cancel)
	api.POST("/requests/:id/reject", requests.Reject)
	api.POST("/requests/:id/onboard", requests.Onboard)
	api.POST("/requests/:id/dropoff", requests.DropOff)
	api.GET("/me/requests", requests.Mine)

	ratings := handlers.NewRatingHandler(d.Ratings, d.Log)
	api.POST("/requests/:id/ratings", ratings.Rate)
	api.GET("/requests/:id/ratings", ratings.List)
	api.GET("/ratings/:party/:id", ratings.Aggregate)

	return r
}
