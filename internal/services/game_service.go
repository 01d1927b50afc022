package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement-service/internal/database"
	"settlement-service/internal/models"
)

const dateLayout = "2006-01-02"

// GameService owns game definitions and the per-date window lifecycle. It
// keeps no in-process status cache; every check reads the store.
type GameService struct {
	DB       *gorm.DB
	Location *time.Location
	Now      func() time.Time
}

func NewGameService(db *gorm.DB, loc *time.Location) *GameService {
	return &GameService{DB: db, Location: loc, Now: time.Now}
}

type GameInput struct {
	Name               string
	Type               models.GameType
	OpenTime           string
	CloseTime          string
	ResultTime         string
	JodiMultiplier     decimal.Decimal
	HarufMultiplier    decimal.Decimal
	CrossingMultiplier decimal.Decimal
	HarufPosition      models.HarufPosition
	Active             *bool
}

func (in GameInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidGame)
	}
	switch in.Type {
	case models.GameTypeJodi, models.GameTypeHaruf, models.GameTypeCrossing:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidGame, in.Type)
	}
	open, err := parseClock(in.OpenTime)
	if err != nil {
		return err
	}
	closing, err := parseClock(in.CloseTime)
	if err != nil {
		return err
	}
	result, err := parseClock(in.ResultTime)
	if err != nil {
		return err
	}
	if closing <= open {
		return fmt.Errorf("%w: close time must be after open time", ErrInvalidGame)
	}
	if result < closing {
		return fmt.Errorf("%w: result time cannot be before close time", ErrInvalidGame)
	}
	for name, m := range map[string]decimal.Decimal{
		"jodi":     in.JodiMultiplier,
		"haruf":    in.HarufMultiplier,
		"crossing": in.CrossingMultiplier,
	} {
		if !m.IsPositive() {
			return fmt.Errorf("%w: %s multiplier must be positive", ErrInvalidGame, name)
		}
	}
	switch in.HarufPosition {
	case "", models.PositionFirst, models.PositionLast:
	default:
		return fmt.Errorf("%w: haruf position must be first or last", ErrInvalidGame)
	}
	return nil
}

func (in GameInput) apply(g *models.Game) {
	g.Name = strings.TrimSpace(in.Name)
	g.Type = in.Type
	g.OpenTime = in.OpenTime
	g.CloseTime = in.CloseTime
	g.ResultTime = in.ResultTime
	g.JodiMultiplier = in.JodiMultiplier
	g.HarufMultiplier = in.HarufMultiplier
	g.CrossingMultiplier = in.CrossingMultiplier
	g.HarufPosition = in.HarufPosition
	if g.HarufPosition == "" {
		g.HarufPosition = models.PositionLast
	}
	if in.Active != nil {
		g.Active = *in.Active
	}
}

func (s *GameService) CreateGame(ctx context.Context, in GameInput) (*models.Game, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	game := models.Game{Active: true}
	in.apply(&game)
	game.Status = s.clockStatus(game, s.today(), s.Now())

	if err := s.DB.WithContext(ctx).Create(&game).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: name %q already used", ErrInvalidGame, game.Name)
		}
		return nil, err
	}
	log.WithFields(log.Fields{"game_id": game.ID, "name": game.Name, "type": game.Type}).Info("Game created")
	return &game, nil
}

// UpdateGame edits a game's configuration. Window edits are the only way an
// open or closed day moves backwards; a declared day never does.
func (s *GameService) UpdateGame(ctx context.Context, id uint, in GameInput) (*models.Game, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var game models.Game
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&game, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGameNotFound
			}
			return err
		}
		in.apply(&game)
		if err := tx.Save(&game).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: name %q already used", ErrInvalidGame, game.Name)
			}
			return err
		}
		return s.syncGame(tx, &game, s.Now())
	})
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *GameService) GetGame(ctx context.Context, id uint) (*models.Game, error) {
	var game models.Game
	if err := s.DB.WithContext(ctx).First(&game, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return &game, nil
}

func (s *GameService) ListGames(ctx context.Context, activeOnly bool) ([]models.Game, error) {
	q := s.DB.WithContext(ctx).Order("open_time").Order("id")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var games []models.Game
	err := q.Find(&games).Error
	return games, err
}

// ListDays returns the lifecycle rows of one game, newest first.
func (s *GameService) ListDays(ctx context.Context, gameID uint, limit int) ([]models.GameDay, error) {
	var days []models.GameDay
	err := s.DB.WithContext(ctx).Where("game_id = ?", gameID).Order("game_date DESC").Limit(limit).Find(&days).Error
	return days, err
}

// Window returns the open and close instants of a game on a date.
func (s *GameService) Window(game models.Game, date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, s.loc())
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidDate
	}
	open, err := parseClock(game.OpenTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	closing, err := parseClock(game.CloseTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day.Add(open), day.Add(closing), nil
}

func (s *GameService) clockStatus(game models.Game, date string, now time.Time) models.GameStatus {
	open, closing, err := s.Window(game, date)
	if err != nil {
		return models.GameStatusScheduled
	}
	switch {
	case now.Before(open):
		return models.GameStatusScheduled
	case now.Before(closing):
		return models.GameStatusOpen
	}
	return models.GameStatusClosed
}

// DayStatus is the lifecycle status of a game on a date. A declared row is
// final; otherwise the clock decides, so a lagging scheduler never blocks a
// declaration or keeps a window open.
func (s *GameService) DayStatus(db *gorm.DB, game models.Game, date string, now time.Time) (models.GameStatus, error) {
	var day models.GameDay
	res := db.Where("game_id = ? AND game_date = ?", game.ID, date).Limit(1).Find(&day)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected > 0 && day.Status == models.GameStatusResultDeclared {
		return day.Status, nil
	}
	return s.clockStatus(game, date, now), nil
}

// statusOf is DayStatus for a row already read under lock.
func (s *GameService) statusOf(game models.Game, day *models.GameDay, now time.Time) models.GameStatus {
	if day.Status == models.GameStatusResultDeclared {
		return day.Status
	}
	return s.clockStatus(game, day.GameDate, now)
}

// lockDay reads the game-day row under a shared lock, creating it first if
// the scheduler has not. A declaration's FOR UPDATE on the same row waits
// for every holder to commit.
func (s *GameService) lockDay(tx *gorm.DB, game models.Game, date string) (*models.GameDay, error) {
	var day models.GameDay
	res := tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Where("game_id = ? AND game_date = ?", game.ID, date).
		Limit(1).Find(&day)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return &day, nil
	}

	fresh := models.GameDay{GameID: game.ID, GameDate: date, Status: s.clockStatus(game, date, s.Now())}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, err
	}
	if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Where("game_id = ? AND game_date = ?", game.ID, date).First(&day).Error; err != nil {
		return nil, err
	}
	return &day, nil
}

// closedDay returns the game-day row for a declaration, creating it if the
// scheduler has not yet.
func (s *GameService) closedDay(tx *gorm.DB, game models.Game, date string, now time.Time) (*models.GameDay, error) {
	status, err := s.DayStatus(tx, game, date, now)
	if err != nil {
		return nil, err
	}
	switch status {
	case models.GameStatusResultDeclared:
		return nil, ErrResultAlreadyDeclared
	case models.GameStatusClosed:
	default:
		return nil, fmt.Errorf("%w: game %d on %s is %s", ErrGameStillOpen, game.ID, date, status)
	}

	day, err := s.upsertDay(tx, game.ID, date, models.GameStatusClosed)
	if err != nil {
		return nil, err
	}
	if day.Status == models.GameStatusResultDeclared {
		return nil, ErrResultAlreadyDeclared
	}
	return day, nil
}

// markDeclared is the terminal closed → result_declared transition.
func (s *GameService) markDeclared(tx *gorm.DB, game models.Game, day *models.GameDay, now time.Time) error {
	err := transitionOnce(tx, &models.GameDay{}, day.ID, models.GameStatusClosed, models.GameStatusResultDeclared, nil)
	if errors.Is(err, errStaleTransition) {
		return ErrResultAlreadyDeclared
	}
	if err != nil {
		return err
	}
	if day.GameDate == now.In(s.loc()).Format(dateLayout) {
		return tx.Model(&models.Game{}).Where("id = ?", game.ID).Update("status", models.GameStatusResultDeclared).Error
	}
	return nil
}

// upsertDay makes sure a row exists for (game, date) and moves a non-declared
// row to status.
func (s *GameService) upsertDay(tx *gorm.DB, gameID uint, date string, status models.GameStatus) (*models.GameDay, error) {
	fresh := models.GameDay{GameID: gameID, GameDate: date, Status: status}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, err
	}
	// A locking read sees the latest committed row, not the transaction snapshot.
	var day models.GameDay
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("game_id = ? AND game_date = ?", gameID, date).First(&day).Error; err != nil {
		return nil, err
	}
	if day.Status != status && day.Status != models.GameStatusResultDeclared {
		res := tx.Model(&models.GameDay{}).
			Where("id = ? AND status <> ?", day.ID, models.GameStatusResultDeclared).
			Update("status", status)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			day.Status = status
		}
	}
	return &day, nil
}

func (s *GameService) syncGame(tx *gorm.DB, game *models.Game, now time.Time) error {
	date := now.In(s.loc()).Format(dateLayout)
	day, err := s.upsertDay(tx, game.ID, date, s.clockStatus(*game, date, now))
	if err != nil {
		return err
	}
	if game.Status != day.Status {
		if err := tx.Model(&models.Game{}).Where("id = ?", game.ID).Update("status", day.Status).Error; err != nil {
			return err
		}
		game.Status = day.Status
	}
	return nil
}

// SyncWindows moves today's game-days of every active game to the status
// their window dictates. It never leaves result_declared.
func (s *GameService) SyncWindows(ctx context.Context, now time.Time) (int, error) {
	games, err := s.ListGames(ctx, true)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range games {
		before := games[i].Status
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.syncGame(tx, &games[i], now)
		})
		if err != nil {
			log.WithError(err).WithField("game_id", games[i].ID).Error("Failed to sync game window")
			continue
		}
		if before != games[i].Status {
			changed++
			log.WithFields(log.Fields{
				"game_id": games[i].ID,
				"from":    before,
				"to":      games[i].Status,
			}).Info("Game window transitioned")
		}
	}
	return changed, nil
}

// StartScheduler runs SyncWindows on the given cron spec.
func (s *GameService) StartScheduler(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(s.loc()))
	_, err := c.AddFunc(spec, func() {
		if _, err := s.SyncWindows(context.Background(), s.Now()); err != nil {
			log.WithError(err).Error("Game window sync failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule game window sync: %w", err)
	}
	c.Start()
	log.WithField("spec", spec).Info("Game window scheduler started")
	return c, nil
}

func (s *GameService) today() string {
	return s.Now().In(s.loc()).Format(dateLayout)
}

func (s *GameService) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// parseClock parses "HH:MM" into an offset from midnight.
func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidGame, v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func validDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return ErrInvalidDate
	}
	return nil
}
