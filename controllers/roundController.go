// controllers/roundController.go
package controllers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"wingo/models"
	"wingo/rules"
	"wingo/store"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RoundController serves the read API, bet intake and the operator preset.
type RoundController struct {
	Store store.RoundStore
	Bets  *BetService
	Clock Clock
	Log   *zap.SugaredLogger
}

func NewRoundController(st store.RoundStore, bets *BetService, clock Clock, log *zap.SugaredLogger) *RoundController {
	return &RoundController{Store: st, Bets: bets, Clock: clock, Log: log}
}

func (rc *RoundController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": rc.Clock.Now()})
}

// ListGames returns the active variants.
func (rc *RoundController) ListGames(c *gin.Context) {
	games, err := rc.Store.ActiveGames(c.Request.Context())
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

// CurrentRound returns the open round for a game with the outcome hidden, plus
// the server time and betting deadline so clients can run their countdown.
func (rc *RoundController) CurrentRound(c *gin.Context) {
	ctx := c.Request.Context()
	game, err := rc.Store.GameByCode(ctx, c.Param("code"))
	if err != nil {
		rc.fail(c, err)
		return
	}
	rounds, err := rc.Store.FindRounds(ctx, store.RoundQuery{
		GameCode: game.GameCode,
		Statuses: []models.RoundStatus{models.StatusOpen},
		Newest:   true,
		Limit:    1,
	})
	if err != nil {
		rc.fail(c, err)
		return
	}
	if len(rounds) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No open round."})
		return
	}
	round := rounds[0]
	c.JSON(http.StatusOK, gin.H{
		"round":           round.Public(),
		"serverTime":      rc.Clock.Now(),
		"bettingDeadline": round.BettingDeadline(rc.Bets.Cutoff()),
	})
}

// History pages through finished rounds, newest first.
func (rc *RoundController) History(c *gin.Context) {
	ctx := c.Request.Context()
	page, ok := pageParams(c)
	if !ok {
		return
	}
	q := store.RoundQuery{
		GameCode: c.Param("code"),
		Statuses: []models.RoundStatus{models.StatusClosed, models.StatusSettled},
		Newest:   true,
		Skip:     page.Skip(),
		Limit:    page.PageSize,
	}
	rounds, err := rc.Store.FindRounds(ctx, q)
	if err != nil {
		rc.fail(c, err)
		return
	}
	total, err := rc.Store.CountRounds(ctx, store.RoundQuery{GameCode: q.GameCode, Statuses: q.Statuses})
	if err != nil {
		rc.fail(c, err)
		return
	}
	public := make([]models.Round, 0, len(rounds))
	for _, r := range rounds {
		public = append(public, r.Public())
	}
	c.JSON(http.StatusOK, gin.H{"rounds": public, "total": total, "page": page.Page, "pageSize": page.PageSize})
}

// UserBets pages through the caller's bets on one game.
func (rc *RoundController) UserBets(c *gin.Context) {
	userID, ok := userFromHeader(c)
	if !ok {
		return
	}
	page, ok := pageParams(c)
	if !ok {
		return
	}
	bets, total, err := rc.Store.BetsForUser(c.Request.Context(), userID, c.Param("code"), page)
	if err != nil {
		rc.fail(c, err)
		return
	}
	if bets == nil {
		bets = []models.Bet{}
	}
	c.JSON(http.StatusOK, gin.H{"bets": bets, "total": total, "page": page.Page, "pageSize": page.PageSize})
}

// PlaceBet is the bet intake endpoint.
func (rc *RoundController) PlaceBet(c *gin.Context) {
	userID, ok := userFromHeader(c)
	if !ok {
		return
	}
	var req BetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bet, err := rc.Bets.PlaceBet(c.Request.Context(), userID, req)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Bet placed.", "bet": bet})
}

type presetRequest struct {
	Digit *int `json:"digit" binding:"required"`
}

// PresetDigit fills the operator outcome slot of a round that has not been drawn.
func (rc *RoundController) PresetDigit(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid round id."})
		return
	}
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := rules.Classify(*req.Digit); err != nil {
		rc.fail(c, err)
		return
	}
	if err := rc.Store.SetPresetDigit(c.Request.Context(), id, *req.Digit); err != nil {
		rc.fail(c, err)
		return
	}
	rc.Log.Infow("outcome preset", "round", id.Hex(), "digit", *req.Digit)
	c.JSON(http.StatusOK, gin.H{"message": "Preset stored.", "round": id.Hex(), "digit": *req.Digit})
}

// fail maps domain errors to HTTP statuses.
func (rc *RoundController) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, rules.ErrInvalidBet), errors.Is(err, rules.ErrInvalidDigit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, ErrBettingClosed), errors.Is(err, ErrBetTooEarly), errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		rc.Log.Errorw("request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error."})
	}
}

// userFromHeader reads the authenticated user set by the upstream gateway.
func userFromHeader(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required."})
		return primitive.NilObjectID, false
	}
	return id, true
}

func pageParams(c *gin.Context) (store.Page, bool) {
	p := store.Page{Page: 1, PageSize: defaultPageSize}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n-1 > math.MaxInt/maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Valid page parameter is required."})
			return p, false
		}
		p.Page = n
	}
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pageSize must be between 1 and 100."})
			return p, false
		}
		p.PageSize = n
	}
	return p, true
}
