package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// Values are copied on the way in and out so callers never share state.
type Storage struct {
	mu sync.RWMutex

	quizzes       map[model.QuizID]*model.Quiz
	openCodes     map[model.JoinCode]model.QuizID
	endedCodes    map[model.JoinCode]model.QuizID
	questions     map[model.QuestionID]*model.Question
	quizQuestions map[model.QuizID][]model.QuestionID
	sessions      map[model.SessionID]*model.Session
	activeSession map[model.QuizID]model.SessionID
	responses     map[responseKey]*model.Response
	scores        map[model.SessionID]map[model.UserID]*scoreRow
	users         map[model.UserID]*model.User
	userKeys      map[string]model.UserID

	scoreSeq int64
}

type responseKey struct {
	sessionID  model.SessionID
	userID     model.UserID
	questionID model.QuestionID
}

type scoreRow struct {
	score int
	seq   int64
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		quizzes:       make(map[model.QuizID]*model.Quiz),
		openCodes:     make(map[model.JoinCode]model.QuizID),
		endedCodes:    make(map[model.JoinCode]model.QuizID),
		questions:     make(map[model.QuestionID]*model.Question),
		quizQuestions: make(map[model.QuizID][]model.QuestionID),
		sessions:      make(map[model.SessionID]*model.Session),
		activeSession: make(map[model.QuizID]model.SessionID),
		responses:     make(map[responseKey]*model.Response),
		scores:        make(map[model.SessionID]map[model.UserID]*scoreRow),
		users:         make(map[model.UserID]*model.User),
		userKeys:      make(map[string]model.UserID),
	}
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

// Quiz operations

func (s *Storage) CreateQuiz(ctx context.Context, quiz *model.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.openCodes[quiz.JoinCode]; taken {
		return model.ErrJoinCodeTaken
	}
	if quiz.ID == "" {
		quiz.ID = model.QuizID(uuid.NewString())
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now()
	}
	if quiz.Status == "" {
		quiz.Status = model.QuizStatusDraft
	}

	stored := *quiz
	s.quizzes[stored.ID] = &stored
	if stored.Status.IsOpen() {
		s.openCodes[stored.JoinCode] = stored.ID
	} else {
		s.endedCodes[stored.JoinCode] = stored.ID
	}
	return nil
}

func (s *Storage) GetQuiz(ctx context.Context, id model.QuizID) (*model.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return nil, model.ErrQuizNotFound
	}
	out := *quiz
	return &out, nil
}

func (s *Storage) GetQuizByCode(ctx context.Context, code model.JoinCode) (*model.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.openCodes[code]
	if !ok {
		id, ok = s.endedCodes[code]
	}
	if !ok {
		return nil, model.ErrQuizNotFound
	}
	out := *s.quizzes[id]
	return &out, nil
}

func (s *Storage) UpdateQuizStatus(ctx context.Context, id model.QuizID, status model.QuizStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return model.ErrQuizNotFound
	}
	quiz.Status = status
	if !status.IsOpen() && s.openCodes[quiz.JoinCode] == id {
		delete(s.openCodes, quiz.JoinCode)
		s.endedCodes[quiz.JoinCode] = id
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return model.ErrQuizNotFound
	}

	now := time.Now()
	for _, q := range questions {
		q.ID = model.QuestionID(uuid.NewString())
		q.QuizID = quizID
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		stored := copyQuestion(q)
		s.questions[stored.ID] = stored
		s.quizQuestions[quizID] = append(s.quizQuestions[quizID], stored.ID)
	}
	return nil
}

func (s *Storage) ListQuestions(ctx context.Context, quizID model.QuizID) ([]*model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return nil, model.ErrQuizNotFound
	}
	ids := s.quizQuestions[quizID]
	out := make([]*model.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyQuestion(s.questions[id]))
	}
	slices.SortStableFunc(out, func(a, b *model.Question) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return out, nil
}

func (s *Storage) GetQuestion(ctx context.Context, id model.QuestionID) (*model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, model.ErrQuestionNotFound
	}
	return copyQuestion(q), nil
}

// Session operations

func (s *Storage) CreateSession(ctx context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[session.QuizID]; !ok {
		return model.ErrQuizNotFound
	}
	if session.IsActive {
		if _, exists := s.activeSession[session.QuizID]; exists {
			return model.ErrActiveSessionExists
		}
	}
	if session.ID == "" {
		session.ID = model.SessionID(uuid.NewString())
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	stored := copySession(session)
	s.sessions[stored.ID] = stored
	if stored.IsActive {
		s.activeSession[stored.QuizID] = stored.ID
	}
	return nil
}

func (s *Storage) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (s *Storage) FindActiveSession(ctx context.Context, quizID model.QuizID) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.activeSession[quizID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return copySession(s.sessions[id]), nil
}

func (s *Storage) DeactivateSession(ctx context.Context, id model.SessionID, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return model.ErrSessionNotFound
	}
	if !session.IsActive {
		return nil
	}
	session.IsActive = false
	session.EndedAt = &endedAt
	if s.activeSession[session.QuizID] == id {
		delete(s.activeSession, session.QuizID)
	}
	return nil
}

// Answer and score operations

func (s *Storage) CreateResponse(ctx context.Context, response *model.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKey{
		sessionID:  response.SessionID,
		userID:     response.UserID,
		questionID: response.QuestionID,
	}
	if _, exists := s.responses[key]; exists {
		return model.ErrDuplicateAnswer
	}
	if response.ID == "" {
		response.ID = model.ResponseID(uuid.NewString())
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = time.Now()
	}
	stored := *response
	s.responses[key] = &stored
	return nil
}

func (s *Storage) UpsertIncrementScore(ctx context.Context, sessionID model.SessionID, userID model.UserID, delta int) (int, error) {
	if delta < 0 {
		return 0, fmt.Errorf("%w: negative score delta %d", model.ErrInvalidInput, delta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.scores[sessionID]
	if !ok {
		rows = make(map[model.UserID]*scoreRow)
		s.scores[sessionID] = rows
	}
	row, ok := rows[userID]
	if !ok {
		s.scoreSeq++
		row = &scoreRow{seq: s.scoreSeq}
		rows[userID] = row
	}
	row.score += delta
	return row.score, nil
}

func (s *Storage) ListScoresWithUser(ctx context.Context, sessionID model.SessionID) ([]model.ScoreWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type ranked struct {
		model.ScoreWithUser
		seq int64
	}
	rows := s.scores[sessionID]
	list := make([]ranked, 0, len(rows))
	for userID, row := range rows {
		user, ok := s.users[userID]
		if !ok {
			continue
		}
		list = append(list, ranked{
			ScoreWithUser: model.ScoreWithUser{
				SessionID: sessionID,
				UserID:    userID,
				Name:      user.Name,
				Score:     row.score,
			},
			seq: row.seq,
		})
	}
	slices.SortFunc(list, func(a, b ranked) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]model.ScoreWithUser, len(list))
	for i, r := range list {
		out[i] = r.ScoreWithUser
	}
	return out, nil
}

// User operations

func (s *Storage) UpsertUser(ctx context.Context, key, name string, isGuest bool) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.userKeys[key]; ok {
		user := s.users[id]
		user.Name = name
		out := *user
		return &out, nil
	}
	user := &model.User{
		ID:        model.UserID(uuid.NewString()),
		Key:       key,
		Name:      name,
		IsGuest:   isGuest,
		CreatedAt: time.Now(),
	}
	s.users[user.ID] = user
	s.userKeys[key] = user.ID
	out := *user
	return &out, nil
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func copyQuestion(q *model.Question) *model.Question {
	out := *q
	out.Options = slices.Clone(q.Options)
	return &out
}

func copySession(session *model.Session) *model.Session {
	out := *session
	if session.EndedAt != nil {
		endedAt := *session.EndedAt
		out.EndedAt = &endedAt
	}
	return &out
}
