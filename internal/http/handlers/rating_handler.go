// README: Rating handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"yatra/internal/http/middleware"
	"yatra/internal/modules/rating"
	"yatra/internal/types"
)

type RatingHandler struct {
	ratings RatingService
	log     logrus.FieldLogger
}

func NewRatingHandler(ratings RatingService, log logrus.FieldLogger) *RatingHandler {
	return &RatingHandler{ratings: ratings, log: log}
}

type rateReq struct {
	Direction rating.Direction `json:"direction"`
	Score     int              `json:"score"`
	Comment   string           `json:"comment"`
}

func (h *RatingHandler) Rate(c *gin.Context) {
	var req rateReq
	if !requireJSON(c, &req) {
		return
	}
	err := h.ratings.SubmitRating(c.Request.Context(), rating.SubmitCommand{
		RequestID: pathID(c),
		ActorID:   types.ID(middleware.CallerUID(c)),
		Direction: req.Direction,
		Score:     req.Score,
		Comment:   req.Comment,
	})
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ok": true})
}

func (h *RatingHandler) Aggregate(c *gin.Context) {
	agg, err := h.ratings.Aggregate(c.Request.Context(), rating.Party(c.Param("party")), pathID(c))
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, agg)
}

// List returns the ratings on a request to its rider or driver.
func (h *RatingHandler) List(c *gin.Context) {
	list, err := h.ratings.ListByRequest(c.Request.Context(), pathID(c), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ratings": list})
}
