// Package postgres is a PostgreSQL-backed storage.Store built on pgx.
// Uniqueness rules live in the schema as partial unique indexes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/storage"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Storage is a PostgreSQL implementation of the storage interface
type Storage struct {
	pool *pgxpool.Pool
}

// New connects, verifies the connection and runs migrations
func New(ctx context.Context, cfg Config) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if !cfg.SkipMigrations {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Storage{pool: pool}, nil
}

// NewWithPool wraps an existing pool (for testing)
func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Close releases the pool
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

// Quiz operations

const quizColumns = `id, title, topic, join_code, status, host_user_id, created_at`

func (s *Storage) CreateQuiz(ctx context.Context, quiz *model.Quiz) error {
	if quiz.Status == "" {
		quiz.Status = model.QuizStatusDraft
	}
	hostID, err := optionalUUID(string(quiz.HostUserID))
	if err != nil {
		return model.ErrUserNotFound
	}

	const query = `INSERT INTO quizzes (title, topic, join_code, status, host_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	var id uuid.UUID
	err = s.pool.QueryRow(ctx, query, quiz.Title, quiz.Topic, string(quiz.JoinCode), string(quiz.Status), hostID).
		Scan(&id, &quiz.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return model.ErrJoinCodeTaken
		case pgForeignKeyViolation:
			return model.ErrUserNotFound
		}
		return model.StoreFailure("postgres: insert quiz", err)
	}
	quiz.ID = model.QuizID(id.String())
	return nil
}

func (s *Storage) GetQuiz(ctx context.Context, id model.QuizID) (*model.Quiz, error) {
	quizID, err := uuid.Parse(string(id))
	if err != nil {
		return nil, model.ErrQuizNotFound
	}
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE id = $1`
	return s.scanQuiz(s.pool.QueryRow(ctx, query, quizID))
}

func (s *Storage) GetQuizByCode(ctx context.Context, code model.JoinCode) (*model.Quiz, error) {
	// Prefer the open holder of the code, then the most recent ended quiz
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE join_code = $1
		ORDER BY (status <> 'ended') DESC, created_at DESC
		LIMIT 1`
	return s.scanQuiz(s.pool.QueryRow(ctx, query, string(code)))
}

func (s *Storage) UpdateQuizStatus(ctx context.Context, id model.QuizID, status model.QuizStatus) error {
	quizID, err := uuid.Parse(string(id))
	if err != nil {
		return model.ErrQuizNotFound
	}
	const query = `UPDATE quizzes SET status = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, quizID, string(status))
	if err != nil {
		return model.StoreFailure("postgres: update quiz status", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrQuizNotFound
	}
	return nil
}

func (s *Storage) scanQuiz(row pgx.Row) (*model.Quiz, error) {
	var (
		q      model.Quiz
		id     uuid.UUID
		code   string
		status string
		hostID *uuid.UUID
	)
	err := row.Scan(&id, &q.Title, &q.Topic, &code, &status, &hostID, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrQuizNotFound
		}
		return nil, model.StoreFailure("postgres: select quiz", err)
	}
	q.ID = model.QuizID(id.String())
	q.JoinCode = model.JoinCode(code)
	q.Status = model.QuizStatus(status)
	if hostID != nil {
		q.HostUserID = model.UserID(hostID.String())
	}
	return &q, nil
}

// Question operations

const questionColumns = `id, quiz_id, position, text, options, correct_index, explanation, created_at`

func (s *Storage) CreateQuestions(ctx context.Context, quizID model.QuizID, questions []*model.Question) error {
	for _, q := range questions {
		if len(q.Options) != model.OptionCount {
			return model.ErrInvalidQuestionSet
		}
	}
	qid, err := uuid.Parse(string(quizID))
	if err != nil {
		return model.ErrQuizNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.StoreFailure("postgres: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `INSERT INTO questions (quiz_id, position, text, options, correct_index, explanation)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	for _, q := range questions {
		var id uuid.UUID
		err := tx.QueryRow(ctx, query, qid, q.Position, q.Text, q.Options, q.CorrectIndex, q.Explanation).
			Scan(&id, &q.CreatedAt)
		if err != nil {
			if pgErrorCode(err) == pgForeignKeyViolation {
				return model.ErrQuizNotFound
			}
			return model.StoreFailure("postgres: insert question", err)
		}
		q.ID = model.QuestionID(id.String())
		q.QuizID = quizID
	}

	if err := tx.Commit(ctx); err != nil {
		return model.StoreFailure("postgres: commit questions", err)
	}
	return nil
}

func (s *Storage) ListQuestions(ctx context.Context, quizID model.QuizID) ([]*model.Question, error) {
	if _, err := s.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	qid, _ := uuid.Parse(string(quizID))

	query := `SELECT ` + questionColumns + ` FROM questions WHERE quiz_id = $1 ORDER BY position, created_at`
	rows, err := s.pool.Query(ctx, query, qid)
	if err != nil {
		return nil, model.StoreFailure("postgres: list questions", err)
	}
	defer rows.Close()

	questions := []*model.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, model.StoreFailure("postgres: scan question", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StoreFailure("postgres: list questions", err)
	}
	return questions, nil
}

func (s *Storage) GetQuestion(ctx context.Context, id model.QuestionID) (*model.Question, error) {
	questionID, err := uuid.Parse(string(id))
	if err != nil {
		return nil, model.ErrQuestionNotFound
	}
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	q, err := scanQuestion(s.pool.QueryRow(ctx, query, questionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrQuestionNotFound
		}
		return nil, model.StoreFailure("postgres: select question", err)
	}
	return q, nil
}

func scanQuestion(row pgx.Row) (*model.Question, error) {
	var (
		q      model.Question
		id     uuid.UUID
		quizID uuid.UUID
	)
	if err := row.Scan(&id, &quizID, &q.Position, &q.Text, &q.Options, &q.CorrectIndex, &q.Explanation, &q.CreatedAt); err != nil {
		return nil, err
	}
	q.ID = model.QuestionID(id.String())
	q.QuizID = model.QuizID(quizID.String())
	return &q, nil
}

// Session operations

const sessionColumns = `id, quiz_id, is_active, created_at, ended_at`

func (s *Storage) CreateSession(ctx context.Context, session *model.Session) error {
	quizID, err := uuid.Parse(string(session.QuizID))
	if err != nil {
		return model.ErrQuizNotFound
	}

	const query = `INSERT INTO sessions (quiz_id, is_active) VALUES ($1, $2) RETURNING id, created_at`
	var id uuid.UUID
	err = s.pool.QueryRow(ctx, query, quizID, session.IsActive).Scan(&id, &session.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return model.ErrActiveSessionExists
		case pgForeignKeyViolation:
			return model.ErrQuizNotFound
		}
		return model.StoreFailure("postgres: insert session", err)
	}
	session.ID = model.SessionID(id.String())
	return nil
}

func (s *Storage) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	sessionID, err := uuid.Parse(string(id))
	if err != nil {
		return nil, model.ErrSessionNotFound
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(s.pool.QueryRow(ctx, query, sessionID))
}

func (s *Storage) FindActiveSession(ctx context.Context, quizID model.QuizID) (*model.Session, error) {
	qid, err := uuid.Parse(string(quizID))
	if err != nil {
		return nil, model.ErrSessionNotFound
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE quiz_id = $1 AND is_active`
	return scanSession(s.pool.QueryRow(ctx, query, qid))
}

func (s *Storage) DeactivateSession(ctx context.Context, id model.SessionID, endedAt time.Time) error {
	sessionID, err := uuid.Parse(string(id))
	if err != nil {
		return model.ErrSessionNotFound
	}
	const query = `UPDATE sessions SET is_active = FALSE, ended_at = $2 WHERE id = $1 AND is_active`
	tag, err := s.pool.Exec(ctx, query, sessionID, endedAt)
	if err != nil {
		return model.StoreFailure("postgres: deactivate session", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// Already inactive is fine; missing is not
	_, err = s.GetSession(ctx, id)
	return err
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		session model.Session
		id      uuid.UUID
		quizID  uuid.UUID
	)
	err := row.Scan(&id, &quizID, &session.IsActive, &session.CreatedAt, &session.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrSessionNotFound
		}
		return nil, model.StoreFailure("postgres: select session", err)
	}
	session.ID = model.SessionID(id.String())
	session.QuizID = model.QuizID(quizID.String())
	return &session, nil
}

// Answer and score operations

func (s *Storage) CreateResponse(ctx context.Context, response *model.Response) error {
	ids, err := parseUUIDs(string(response.SessionID), string(response.UserID), string(response.QuestionID))
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrNotFound, err)
	}

	const query = `INSERT INTO responses (session_id, user_id, question_id, selected_index, is_correct, time_taken_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	var id uuid.UUID
	err = s.pool.QueryRow(ctx, query, ids[0], ids[1], ids[2],
		response.SelectedIndex, response.IsCorrect, response.TimeTakenMs).
		Scan(&id, &response.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return model.ErrDuplicateAnswer
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: response references unknown rows", model.ErrNotFound)
		}
		return model.StoreFailure("postgres: insert response", err)
	}
	response.ID = model.ResponseID(id.String())
	return nil
}

func (s *Storage) UpsertIncrementScore(ctx context.Context, sessionID model.SessionID, userID model.UserID, delta int) (int, error) {
	if delta < 0 {
		return 0, fmt.Errorf("%w: negative score delta %d", model.ErrInvalidInput, delta)
	}
	ids, err := parseUUIDs(string(sessionID), string(userID))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrNotFound, err)
	}

	const query = `INSERT INTO scores (session_id, user_id, score) VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id) DO UPDATE SET score = scores.score + EXCLUDED.score
		RETURNING score`
	var total int
	if err := s.pool.QueryRow(ctx, query, ids[0], ids[1], delta).Scan(&total); err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return 0, fmt.Errorf("%w: score references unknown rows", model.ErrNotFound)
		}
		return 0, model.StoreFailure("postgres: upsert score", err)
	}
	return total, nil
}

func (s *Storage) ListScoresWithUser(ctx context.Context, sessionID model.SessionID) ([]model.ScoreWithUser, error) {
	sid, err := uuid.Parse(string(sessionID))
	if err != nil {
		return []model.ScoreWithUser{}, nil
	}

	const query = `SELECT s.user_id, u.name, s.score
		FROM scores s
		JOIN users u ON u.id = s.user_id
		WHERE s.session_id = $1
		ORDER BY s.score DESC, s.seq ASC`
	rows, err := s.pool.Query(ctx, query, sid)
	if err != nil {
		return nil, model.StoreFailure("postgres: list scores", err)
	}
	defer rows.Close()

	out := []model.ScoreWithUser{}
	for rows.Next() {
		var (
			userID uuid.UUID
			row    model.ScoreWithUser
		)
		if err := rows.Scan(&userID, &row.Name, &row.Score); err != nil {
			return nil, model.StoreFailure("postgres: scan score", err)
		}
		row.SessionID = sessionID
		row.UserID = model.UserID(userID.String())
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StoreFailure("postgres: list scores", err)
	}
	return out, nil
}

// User operations

func (s *Storage) UpsertUser(ctx context.Context, key, name string, isGuest bool) (*model.User, error) {
	const query = `INSERT INTO users (natural_key, name, is_guest) VALUES ($1, $2, $3)
		ON CONFLICT (natural_key) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, natural_key, name, is_guest, created_at`
	user, err := scanUser(s.pool.QueryRow(ctx, query, key, name, isGuest))
	if err != nil {
		return nil, model.StoreFailure("postgres: upsert user", err)
	}
	return user, nil
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	userID, err := uuid.Parse(string(id))
	if err != nil {
		return nil, model.ErrUserNotFound
	}
	const query = `SELECT id, natural_key, name, is_guest, created_at FROM users WHERE id = $1`
	user, err := scanUser(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, model.StoreFailure("postgres: select user", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u  model.User
		id uuid.UUID
	)
	if err := row.Scan(&id, &u.Key, &u.Name, &u.IsGuest, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = model.UserID(id.String())
	return &u, nil
}

// Helpers

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func optionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseUUIDs(values ...string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(values))
	for i, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", v)
		}
		out[i] = id
	}
	return out, nil
}
