package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wingo/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultOpTimeout = 5 * time.Second

// Mongo is the RoundStore backed by MongoDB. Every state change is a single
// document update; there are no multi-document transactions.
type Mongo struct {
	games     *mongo.Collection
	rounds    *mongo.Collection
	bets      *mongo.Collection
	users     *mongo.Collection
	errorLogs *mongo.Collection
	timeout   time.Duration
}

var _ RoundStore = (*Mongo)(nil)

// NewMongo binds the store to its collections in database.
func NewMongo(database *mongo.Database) *Mongo {
	return &Mongo{
		games:     database.Collection("wingo_games"),
		rounds:    database.Collection("wingo_rounds"),
		bets:      database.Collection("wingo_bets"),
		users:     database.Collection("users"),
		errorLogs: database.Collection("error_logs"),
		timeout:   defaultOpTimeout,
	}
}

// EnsureIndexes creates the indexes the store relies on. The unique index on
// period is what resolves round creation races between scheduler instances.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	specs := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.games, []mongo.IndexModel{
			{Keys: bson.D{{Key: "gameCode", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{s.rounds, []mongo.IndexModel{
			{Keys: bson.D{{Key: "period", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "gameCode", Value: 1}, {Key: "status", Value: 1}, {Key: "endsAt", Value: 1}}},
			{Keys: bson.D{{Key: "gameCode", Value: 1}, {Key: "startsAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
		}},
		{s.bets, []mongo.IndexModel{
			{Keys: bson.D{{Key: "round", Value: 1}}},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
		}},
		{s.errorLogs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "source", Value: 1}, {Key: "createdAt", Value: -1}}},
		}},
	}

	for _, spec := range specs {
		if _, err := spec.coll.Indexes().CreateMany(ctx, spec.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", spec.coll.Name(), err)
		}
	}
	return nil
}

func (s *Mongo) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Mongo) UpsertGame(ctx context.Context, game models.Game) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":            game.Name,
			"durationSeconds": game.DurationSeconds,
			"isActive":        game.IsActive,
			"updatedAt":       now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.games.UpdateOne(ctx, bson.M{"gameCode": game.GameCode}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", game.GameCode, err)
	}
	return nil
}

func (s *Mongo) ActiveGames(ctx context.Context) ([]models.Game, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	cursor, err := s.games.Find(ctx, bson.M{"isActive": bson.M{"$ne": false}},
		options.Find().SetSort(bson.D{{Key: "durationSeconds", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find games: %w", err)
	}
	var games []models.Game
	if err := cursor.All(ctx, &games); err != nil {
		return nil, fmt.Errorf("decode games: %w", err)
	}
	return games, nil
}

func (s *Mongo) GameByCode(ctx context.Context, code string) (*models.Game, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var game models.Game
	if err := s.games.FindOne(ctx, bson.M{"gameCode": code}).Decode(&game); err != nil {
		return nil, notFound(err, "game "+code)
	}
	return &game, nil
}

func (s *Mongo) CreateRound(ctx context.Context, round *models.Round) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if round.ID.IsZero() {
		round.ID = primitive.NewObjectID()
	}
	if _, err := s.rounds.InsertOne(ctx, round); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicatePeriod
		}
		return fmt.Errorf("insert round %s: %w", round.Period, err)
	}
	return nil
}

func (s *Mongo) RoundByID(ctx context.Context, id primitive.ObjectID) (*models.Round, error) {
	return s.findRound(ctx, bson.M{"_id": id}, nil)
}

func (s *Mongo) RoundByPeriod(ctx context.Context, period string) (*models.Round, error) {
	return s.findRound(ctx, bson.M{"period": period}, nil)
}

func (s *Mongo) findRound(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.Round, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if opts == nil {
		opts = options.FindOne()
	}
	var round models.Round
	if err := s.rounds.FindOne(ctx, filter, opts).Decode(&round); err != nil {
		return nil, notFound(err, "round")
	}
	return &round, nil
}

func roundFilter(q RoundQuery) bson.M {
	filter := bson.M{}
	if q.GameCode != "" {
		filter["gameCode"] = q.GameCode
	}
	if len(q.Statuses) > 0 {
		filter["status"] = bson.M{"$in": q.Statuses}
	}
	if q.StartedBefore != nil {
		filter["startsAt"] = bson.M{"$lt": *q.StartedBefore}
	}
	if q.EndedBefore != nil {
		filter["endsAt"] = bson.M{"$lte": *q.EndedBefore}
	}
	if q.UpdatedBefore != nil {
		filter["updatedAt"] = bson.M{"$lt": *q.UpdatedBefore}
	}
	return filter
}

func (s *Mongo) FindRounds(ctx context.Context, q RoundQuery) ([]models.Round, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	order := 1
	if q.Newest {
		order = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "startsAt", Value: order}})
	if q.Skip > 0 {
		opts.SetSkip(int64(q.Skip))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.rounds.Find(ctx, roundFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find rounds: %w", err)
	}
	var rounds []models.Round
	if err := cursor.All(ctx, &rounds); err != nil {
		return nil, fmt.Errorf("decode rounds: %w", err)
	}
	return rounds, nil
}

func (s *Mongo) CountRounds(ctx context.Context, q RoundQuery) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.rounds.CountDocuments(ctx, roundFilter(q))
	if err != nil {
		return 0, fmt.Errorf("count rounds: %w", err)
	}
	return n, nil
}

func (s *Mongo) CompareAndSwapStatus(ctx context.Context, id primitive.ObjectID, expected, next models.RoundStatus, t Transition) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	filter := bson.M{"_id": id, "status": expected}
	if t.StaleBefore != nil {
		filter["updatedAt"] = bson.M{"$lt": *t.StaleBefore}
	}

	set := bson.M{"status": next, "updatedAt": t.At}
	if t.Outcome != nil {
		set["outcomeDigit"] = t.Outcome.Digit
		set["outcomeSize"] = t.Outcome.Size
		set["outcomeColor"] = t.Outcome.Color
	}
	if t.SettledAt != nil {
		set["settledAt"] = *t.SettledAt
	}
	if t.LockedBy != "" {
		set["lockedBy"] = t.LockedBy
	}
	if t.Summary != nil {
		set["betCount"] = t.Summary.BetCount
		set["totalStake"] = t.Summary.TotalStake
		set["totalPayout"] = t.Summary.TotalPayout
	}

	res, err := s.rounds.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("cas round %s %s->%s: %w", id.Hex(), expected, next, err)
	}
	return res.MatchedCount == 1, nil
}

func (s *Mongo) SetPresetDigit(ctx context.Context, id primitive.ObjectID, digit int) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	filter := bson.M{
		"_id":          id,
		"outcomeDigit": nil,
		"status": bson.M{"$in": []models.RoundStatus{
			models.StatusScheduled, models.StatusOpen, models.StatusProcessing,
		}},
	}
	res, err := s.rounds.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"presetDigit": digit}})
	if err != nil {
		return fmt.Errorf("preset round %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.RoundByID(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

func (s *Mongo) MarkPayoutsApplied(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.rounds.UpdateOne(ctx,
		bson.M{"_id": id, "payoutsApplied": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"payoutsApplied": true, "updatedAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("mark payouts on %s: %w", id.Hex(), err)
	}
	return res.MatchedCount == 1, nil
}

func (s *Mongo) InsertBet(ctx context.Context, bet *models.Bet) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if bet.ID.IsZero() {
		bet.ID = primitive.NewObjectID()
	}
	if _, err := s.bets.InsertOne(ctx, bet); err != nil {
		return fmt.Errorf("insert bet: %w", err)
	}
	return nil
}

func (s *Mongo) BetsForRound(ctx context.Context, roundID primitive.ObjectID) ([]models.Bet, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	cursor, err := s.bets.Find(ctx, bson.M{"round": roundID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find bets for %s: %w", roundID.Hex(), err)
	}
	var bets []models.Bet
	if err := cursor.All(ctx, &bets); err != nil {
		return nil, fmt.Errorf("decode bets: %w", err)
	}
	return bets, nil
}

func (s *Mongo) BetsForUser(ctx context.Context, userID primitive.ObjectID, gameCode string, p Page) ([]models.Bet, int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	filter := bson.M{"user": userID}
	if gameCode != "" {
		filter["gameCode"] = gameCode
	}
	total, err := s.bets.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count bets: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(p.Skip()))
	if p.PageSize > 0 {
		opts.SetLimit(int64(p.PageSize))
	}
	cursor, err := s.bets.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find bets: %w", err)
	}
	var bets []models.Bet
	if err := cursor.All(ctx, &bets); err != nil {
		return nil, 0, fmt.Errorf("decode bets: %w", err)
	}
	return bets, total, nil
}

func (s *Mongo) ApplyBetResults(ctx context.Context, results []models.BetResult) error {
	if len(results) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ops := make([]mongo.WriteModel, 0, len(results))
	for _, r := range results {
		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": r.BetID}).
			SetUpdate(bson.M{"$set": bson.M{"isWin": r.IsWin, "payoutAmount": r.PayoutAmount}}))
	}
	if _, err := s.bets.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("write bet results: %w", err)
	}
	return nil
}

func (s *Mongo) CreditWallets(ctx context.Context, credits map[primitive.ObjectID]float64) error {
	if len(credits) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	ops := make([]mongo.WriteModel, 0, len(credits))
	for userID, amount := range credits {
		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": userID}).
			SetUpdate(bson.M{
				"$inc": bson.M{"walletBalance": amount},
				"$set": bson.M{"updatedAt": now},
			}))
	}
	if _, err := s.users.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("credit wallets: %w", err)
	}
	return nil
}

func (s *Mongo) DebitWallet(ctx context.Context, userID primitive.ObjectID, amount float64) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "walletBalance": bson.M{"$gte": amount}},
		bson.M{
			"$inc": bson.M{"walletBalance": -amount},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("debit wallet %s: %w", userID.Hex(), err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.Wallet(ctx, userID); err != nil {
		return err
	}
	return ErrInsufficientFunds
}

func (s *Mongo) Wallet(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var user models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user); err != nil {
		return nil, notFound(err, "user "+userID.Hex())
	}
	return &user, nil
}

func (s *Mongo) LogError(ctx context.Context, entry models.ErrorLog) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.errorLogs.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert error log: %w", err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("find %s: %w", what, err)
}
