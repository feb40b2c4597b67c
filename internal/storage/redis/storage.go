package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

// Quiz operations

func (s *Storage) CreateQuiz(ctx context.Context, quiz *model.Quiz) error {
	if quiz.ID == "" {
		quiz.ID = model.QuizID(uuid.NewString())
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now()
	}
	if quiz.Status == "" {
		quiz.Status = model.QuizStatusDraft
	}

	// The code index is the uniqueness guard
	claimed, err := s.client.SetNX(ctx, openCodeIndexKey(quiz.JoinCode), string(quiz.ID), 0).Result()
	if err != nil {
		return model.StoreFailure("redis: claim join code", err)
	}
	if !claimed {
		return model.ErrJoinCodeTaken
	}

	if err := s.putJSON(ctx, quizKey(quiz.ID), quiz, 0); err != nil {
		_ = compareAndDeleteScript.Run(ctx, s.client, []string{openCodeIndexKey(quiz.JoinCode)}, string(quiz.ID)).Err()
		return model.StoreFailure("redis: save quiz", err)
	}
	return nil
}

func (s *Storage) GetQuiz(ctx context.Context, id model.QuizID) (*model.Quiz, error) {
	var quiz model.Quiz
	if err := s.getJSON(ctx, quizKey(id), &quiz, model.ErrQuizNotFound); err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (s *Storage) GetQuizByCode(ctx context.Context, code model.JoinCode) (*model.Quiz, error) {
	for _, key := range []string{openCodeIndexKey(code), endedCodeIndexKey(code)} {
		id, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, model.StoreFailure("redis: lookup join code", err)
		}
		return s.GetQuiz(ctx, model.QuizID(id))
	}
	return nil, model.ErrQuizNotFound
}

func (s *Storage) UpdateQuizStatus(ctx context.Context, id model.QuizID, status model.QuizStatus) error {
	quiz, err := s.GetQuiz(ctx, id)
	if err != nil {
		return err
	}
	quiz.Status = status
	if err := s.putJSON(ctx, quizKey(id), quiz, 0); err != nil {
		return model.StoreFailure("redis: save quiz", err)
	}

	if status.IsOpen() {
		return nil
	}

	// Release the join code for reuse, keeping a pointer for late lookups
	if err := s.client.Set(ctx, endedCodeIndexKey(quiz.JoinCode), string(id), 0).Err(); err != nil {
		return model.StoreFailure("redis: index ended code", err)
	}
	if err := compareAndDeleteScript.Run(ctx, s.client, []string{openCodeIndexKey(quiz.JoinCode)}, string(id)).Err(); err != nil {
		return model.StoreFailure("redis: release join code", err)
	}
	return nil
}

// Question operations

func (s *Storage) CreateQuestions(ctx context.Context, quizID model.QuizID, questions []*model.Question) error {
	for _, q := range questions {
		if len(q.Options) != model.OptionCount {
			return model.ErrInvalidQuestionSet
		}
	}
	if err := s.requireQuiz(ctx, quizID); err != nil {
		return err
	}
	if len(questions) == 0 {
		return nil
	}

	now := time.Now()
	pipe := s.client.TxPipeline()
	ids := make([]interface{}, len(questions))
	for i, q := range questions {
		q.ID = model.QuestionID(uuid.NewString())
		q.QuizID = quizID
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		data, err := json.Marshal(q)
		if err != nil {
			return err
		}
		pipe.Set(ctx, questionKey(q.ID), data, 0)
		ids[i] = string(q.ID)
	}
	pipe.RPush(ctx, questionsForQuizIndexKey(quizID), ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.StoreFailure("redis: save questions", err)
	}
	return nil
}

func (s *Storage) ListQuestions(ctx context.Context, quizID model.QuizID) ([]*model.Question, error) {
	if err := s.requireQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	ids, err := s.client.LRange(ctx, questionsForQuizIndexKey(quizID), 0, -1).Result()
	if err != nil {
		return nil, model.StoreFailure("redis: list question ids", err)
	}
	if len(ids) == 0 {
		return []*model.Question{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = questionKey(model.QuestionID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, model.StoreFailure("redis: load questions", err)
	}

	questions := make([]*model.Question, 0, len(values))
	for _, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}
		var q model.Question
		if err := json.Unmarshal([]byte(str), &q); err != nil {
			continue // Skip invalid data
		}
		questions = append(questions, &q)
	}
	slices.SortStableFunc(questions, func(a, b *model.Question) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return questions, nil
}

func (s *Storage) GetQuestion(ctx context.Context, id model.QuestionID) (*model.Question, error) {
	var q model.Question
	if err := s.getJSON(ctx, questionKey(id), &q, model.ErrQuestionNotFound); err != nil {
		return nil, err
	}
	return &q, nil
}

// Session operations

func (s *Storage) CreateSession(ctx context.Context, session *model.Session) error {
	if err := s.requireQuiz(ctx, session.QuizID); err != nil {
		return err
	}
	if session.ID == "" {
		session.ID = model.SessionID(uuid.NewString())
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	if session.IsActive {
		claimed, err := s.client.SetNX(ctx, activeSessionIndexKey(session.QuizID), string(session.ID), 0).Result()
		if err != nil {
			return model.StoreFailure("redis: claim active session", err)
		}
		if !claimed {
			return model.ErrActiveSessionExists
		}
	}

	if err := s.putJSON(ctx, sessionKey(session.ID), session, 0); err != nil {
		return model.StoreFailure("redis: save session", err)
	}
	return nil
}

func (s *Storage) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	var session model.Session
	if err := s.getJSON(ctx, sessionKey(id), &session, model.ErrSessionNotFound); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Storage) FindActiveSession(ctx context.Context, quizID model.QuizID) (*model.Session, error) {
	id, err := s.client.Get(ctx, activeSessionIndexKey(quizID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		return nil, model.StoreFailure("redis: lookup active session", err)
	}
	return s.GetSession(ctx, model.SessionID(id))
}

func (s *Storage) DeactivateSession(ctx context.Context, id model.SessionID, endedAt time.Time) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !session.IsActive {
		return nil
	}

	session.IsActive = false
	session.EndedAt = &endedAt
	if err := s.putJSON(ctx, sessionKey(id), session, 0); err != nil {
		return model.StoreFailure("redis: save session", err)
	}
	if err := compareAndDeleteScript.Run(ctx, s.client, []string{activeSessionIndexKey(session.QuizID)}, string(id)).Err(); err != nil {
		return model.StoreFailure("redis: release active session", err)
	}
	return nil
}

// Answer and score operations

func (s *Storage) CreateResponse(ctx context.Context, response *model.Response) error {
	if response.ID == "" {
		response.ID = model.ResponseID(uuid.NewString())
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = time.Now()
	}
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}

	key := responsesKey(response.SessionID)
	created, err := s.client.HSetNX(ctx, key, responseField(response.UserID, response.QuestionID), data).Result()
	if err != nil {
		return model.StoreFailure("redis: save response", err)
	}
	if !created {
		return model.ErrDuplicateAnswer
	}
	if s.cfg.SessionDataTTL > 0 {
		s.client.Expire(ctx, key, s.cfg.SessionDataTTL)
	}
	return nil
}

func (s *Storage) UpsertIncrementScore(ctx context.Context, sessionID model.SessionID, userID model.UserID, delta int) (int, error) {
	if delta < 0 {
		return 0, fmt.Errorf("%w: negative score delta %d", model.ErrInvalidInput, delta)
	}

	keys := []string{scoresKey(sessionID), scoreOrderKey(sessionID)}
	total, err := incrementScoreScript.Run(ctx, s.client, keys,
		string(userID), delta, s.cfg.SessionDataTTL.Milliseconds()).Int()
	if err != nil {
		return 0, model.StoreFailure("redis: increment score", err)
	}
	return total, nil
}

func (s *Storage) ListScoresWithUser(ctx context.Context, sessionID model.SessionID) ([]model.ScoreWithUser, error) {
	pipe := s.client.Pipeline()
	orderCmd := pipe.LRange(ctx, scoreOrderKey(sessionID), 0, -1)
	scoresCmd := pipe.HGetAll(ctx, scoresKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, model.StoreFailure("redis: load scores", err)
	}

	order := orderCmd.Val()
	scores := scoresCmd.Val()
	if len(order) == 0 {
		return []model.ScoreWithUser{}, nil
	}

	userKeys := make([]string, len(order))
	for i, id := range order {
		userKeys[i] = userKey(model.UserID(id))
	}
	users, err := s.client.MGet(ctx, userKeys...).Result()
	if err != nil {
		return nil, model.StoreFailure("redis: load score users", err)
	}

	rows := make([]model.ScoreWithUser, 0, len(order))
	for i, id := range order {
		str, ok := users[i].(string)
		if !ok {
			continue // User may have expired
		}
		var user model.User
		if err := json.Unmarshal([]byte(str), &user); err != nil {
			continue
		}
		score, err := strconv.Atoi(scores[id])
		if err != nil {
			continue
		}
		rows = append(rows, model.ScoreWithUser{
			SessionID: sessionID,
			UserID:    user.ID,
			Name:      user.Name,
			Score:     score,
		})
	}

	// Stable sort keeps arrival order among ties
	slices.SortStableFunc(rows, func(a, b model.ScoreWithUser) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return rows, nil
}

// User operations

func (s *Storage) UpsertUser(ctx context.Context, key, name string, isGuest bool) (*model.User, error) {
	var ttl time.Duration
	if isGuest {
		ttl = s.cfg.GuestUserTTL
	}

	user := &model.User{
		ID:        model.UserID(uuid.NewString()),
		Key:       key,
		Name:      name,
		IsGuest:   isGuest,
		CreatedAt: time.Now(),
	}
	if err := s.putJSON(ctx, userKey(user.ID), user, ttl); err != nil {
		return nil, model.StoreFailure("redis: save user", err)
	}

	claimed, err := s.client.SetNX(ctx, userNaturalKeyIndexKey(key), string(user.ID), ttl).Result()
	if err != nil {
		return nil, model.StoreFailure("redis: claim user key", err)
	}
	if claimed {
		return user, nil
	}

	// Someone already owns this key: drop our draft and rename theirs
	s.client.Del(ctx, userKey(user.ID))

	existingID, err := s.client.Get(ctx, userNaturalKeyIndexKey(key)).Result()
	if err != nil {
		return nil, model.StoreFailure("redis: lookup user key", err)
	}
	existing, err := s.GetUser(ctx, model.UserID(existingID))
	if err != nil {
		return nil, err
	}
	existing.Name = name
	if err := s.putJSON(ctx, userKey(existing.ID), existing, redis.KeepTTL); err != nil {
		return nil, model.StoreFailure("redis: save user", err)
	}
	return existing, nil
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	var user model.User
	if err := s.getJSON(ctx, userKey(id), &user, model.ErrUserNotFound); err != nil {
		return nil, err
	}
	return &user, nil
}

// Helpers

func (s *Storage) requireQuiz(ctx context.Context, id model.QuizID) error {
	exists, err := s.client.Exists(ctx, quizKey(id)).Result()
	if err != nil {
		return model.StoreFailure("redis: check quiz", err)
	}
	if exists == 0 {
		return model.ErrQuizNotFound
	}
	return nil
}

func (s *Storage) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *Storage) getJSON(ctx context.Context, key string, v any, notFound error) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		return model.StoreFailure("redis: get", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return model.StoreFailure("redis: decode", err)
	}
	return nil
}
