// Package archive persists finished games and player profiles to Postgres.
// It is optional wiring: without a DATABASE_URL the server runs with a nil
// repository and finished games are simply not recorded.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kapu/chess-arena-go/internal/rating"
	"github.com/kapu/chess-arena-go/internal/session"
)

const defaultRating = 1200

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveGame upserts a finished game keyed by its game id and folds the
// result into both player profiles.
func (r *Repository) SaveGame(ctx context.Context, s *session.Session) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}
	if s.Status != session.StatusFinished || s.Result == nil || s.GameID == "" {
		return nil
	}

	pgnResult := mapResultToPGN(s.Result.Winner)
	pgn := buildPGN(s, pgnResult)
	duration := s.EndedAt.Sub(s.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO games (
	    game_id, room_id,
	    white_account_id, white_name, black_account_id, black_name,
	    result, reason, move_count, pgn,
	    initial_ms, increment_ms,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    result=EXCLUDED.result,
	    reason=EXCLUDED.reason,
	    move_count=EXCLUDED.move_count,
	    pgn=EXCLUDED.pgn,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		s.GameID, s.RoomID,
		nullable(s.White.AccountID), s.White.DisplayName,
		nullable(s.Black.AccountID), s.Black.DisplayName,
		s.Result.Winner, s.Result.Reason, len(s.Moves), pgn,
		s.Clocks.InitialMs, s.Clocks.IncrementMs,
		s.StartedAt, s.EndedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", s.GameID, err)
	}
	return r.updateProfiles(ctx, s)
}

// updateProfiles records the win/loss/draw tally for each seated account.
// Ratings only move when both seats are account-backed: games against
// guests count toward tallies but never shift Elo.
func (r *Repository) updateProfiles(ctx context.Context, s *session.Session) error {
	whiteAcct := strings.TrimSpace(s.White.AccountID)
	blackAcct := strings.TrimSpace(s.Black.AccountID)
	rated := whiteAcct != "" && blackAcct != ""

	whiteOutcome := outcomeFor(s.Result.Winner, "white")
	blackOutcome := outcomeFor(s.Result.Winner, "black")

	var whiteNew, blackNew int
	if rated {
		whiteOld, err := r.currentRating(ctx, whiteAcct)
		if err != nil {
			return err
		}
		blackOld, err := r.currentRating(ctx, blackAcct)
		if err != nil {
			return err
		}
		whiteNew = rating.New(whiteOld, blackOld, whiteOutcome)
		blackNew = rating.New(blackOld, whiteOld, blackOutcome)
	}

	if whiteAcct != "" {
		if err := r.upsertProfile(ctx, whiteAcct, s.White.DisplayName, whiteOutcome, rated, whiteNew); err != nil {
			return err
		}
	}
	if blackAcct != "" {
		if err := r.upsertProfile(ctx, blackAcct, s.Black.DisplayName, blackOutcome, rated, blackNew); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) currentRating(ctx context.Context, accountID string) (int, error) {
	var elo int
	err := r.db.QueryRowContext(ctx,
		`SELECT rating FROM profiles WHERE account_id = $1`, accountID).Scan(&elo)
	if err == sql.ErrNoRows {
		return defaultRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rating for %s: %w", accountID, err)
	}
	return elo, nil
}

func (r *Repository) upsertProfile(ctx context.Context, accountID, name string, outcome rating.Outcome, rated bool, newRating int) error {
	wins, losses, draws := 0, 0, 0
	switch outcome {
	case rating.Win:
		wins = 1
	case rating.Loss:
		losses = 1
	default:
		draws = 1
	}
	if !rated {
		q := `INSERT INTO profiles (account_id, display_name, rating, wins, losses, draws, updated_at)
		  VALUES ($1,$2,$3,$4,$5,$6,now())
		  ON CONFLICT (account_id) DO UPDATE SET
		    display_name=EXCLUDED.display_name,
		    wins=profiles.wins+EXCLUDED.wins,
		    losses=profiles.losses+EXCLUDED.losses,
		    draws=profiles.draws+EXCLUDED.draws,
		    updated_at=now()`
		_, err := r.db.ExecContext(ctx, q, accountID, name, defaultRating, wins, losses, draws)
		return err
	}
	q := `INSERT INTO profiles (account_id, display_name, rating, wins, losses, draws, updated_at)
	  VALUES ($1,$2,$3,$4,$5,$6,now())
	  ON CONFLICT (account_id) DO UPDATE SET
	    display_name=EXCLUDED.display_name,
	    rating=EXCLUDED.rating,
	    wins=profiles.wins+EXCLUDED.wins,
	    losses=profiles.losses+EXCLUDED.losses,
	    draws=profiles.draws+EXCLUDED.draws,
	    updated_at=now()`
	_, err := r.db.ExecContext(ctx, q, accountID, name, newRating, wins, losses, draws)
	return err
}

// Profile is the public ladder view of an account.
type Profile struct {
	AccountID   string    `json:"accountId"`
	DisplayName string    `json:"displayName"`
	Rating      int       `json:"rating"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Draws       int       `json:"draws"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Profile returns the ladder entry for accountID, or (nil, nil) when the
// account has no recorded games.
func (r *Repository) Profile(ctx context.Context, accountID string) (*Profile, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	var p Profile
	err := r.db.QueryRowContext(ctx,
		`SELECT account_id, display_name, rating, wins, losses, draws, updated_at
		   FROM profiles WHERE account_id = $1`, accountID).
		Scan(&p.AccountID, &p.DisplayName, &p.Rating, &p.Wins, &p.Losses, &p.Draws, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GameSummary is one archived game row for listings.
type GameSummary struct {
	GameID    string    `json:"gameId"`
	RoomID    string    `json:"roomId"`
	WhiteName string    `json:"whiteName"`
	BlackName string    `json:"blackName"`
	Result    string    `json:"result"`
	Reason    string    `json:"reason"`
	MoveCount int       `json:"moveCount"`
	EndedAt   time.Time `json:"endedAt"`
}

// RecentGames lists the newest archived games for an account.
func (r *Repository) RecentGames(ctx context.Context, accountID string, limit int) ([]GameSummary, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, room_id, white_name, black_name, result, reason, move_count, ended_at
		   FROM games
		  WHERE white_account_id = $1 OR black_account_id = $1
		  ORDER BY ended_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GameSummary
	for rows.Next() {
		var g GameSummary
		if err := rows.Scan(&g.GameID, &g.RoomID, &g.WhiteName, &g.BlackName,
			&g.Result, &g.Reason, &g.MoveCount, &g.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func outcomeFor(winner, color string) rating.Outcome {
	switch winner {
	case color:
		return rating.Win
	case session.WinnerDraw:
		return rating.Draw
	default:
		return rating.Loss
	}
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func mapResultToPGN(winner string) string {
	switch strings.ToLower(strings.TrimSpace(winner)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case session.WinnerDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(s *session.Session, pgnResult string) string {
	var b strings.Builder
	date := s.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Chess Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"room %s\"]\n", sanitizePGN(s.RoomID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(s.White.DisplayName)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(s.Black.DisplayName)))
	b.WriteString(fmt.Sprintf("[TimeControl \"%d+%d\"]\n", s.Clocks.InitialMs/1000, s.Clocks.IncrementMs/1000))
	if s.Result != nil && strings.TrimSpace(s.Result.Reason) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(s.Result.Reason)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(s.Moves); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, s.Moves[i].Notation))
		if i+1 < len(s.Moves) {
			b.WriteString(" ")
			b.WriteString(s.Moves[i+1].Notation)
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
