// Package storagetest holds the conformance suite every storage.Store
// implementation runs.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/storage"
)

// StoreSuite exercises the storage.Store contract. NewStore must return an
// empty store and register any cleanup on t.
type StoreSuite struct {
	suite.Suite
	NewStore func(t *testing.T) storage.Store

	store storage.Store
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore(s.T())
	s.ctx = context.Background()
}

// Store returns the store under test
func (s *StoreSuite) Store() storage.Store {
	return s.store
}

func (s *StoreSuite) createQuiz(code model.JoinCode) *model.Quiz {
	quiz := &model.Quiz{
		Title:    "Quiz: Roman Empire",
		Topic:    "Roman Empire",
		JoinCode: code,
		Status:   model.QuizStatusDraft,
	}
	s.Require().NoError(s.store.CreateQuiz(s.ctx, quiz))
	return quiz
}

func (s *StoreSuite) createUser(name string) *model.User {
	user, err := s.store.UpsertUser(s.ctx, name+"@example.com", name, false)
	s.Require().NoError(err)
	return user
}

func (s *StoreSuite) createQuestions(quizID model.QuizID, n int) []*model.Question {
	questions := make([]*model.Question, n)
	for i := range questions {
		questions[i] = &model.Question{
			Position:     i,
			Text:         fmt.Sprintf("Question %d?", i+1),
			Options:      []string{"A", "B", "C", "D"},
			CorrectIndex: i % model.OptionCount,
			Explanation:  "Because.",
		}
	}
	s.Require().NoError(s.store.CreateQuestions(s.ctx, quizID, questions))
	return questions
}

func (s *StoreSuite) createActiveSession(quizID model.QuizID) *model.Session {
	session := &model.Session{QuizID: quizID, IsActive: true}
	s.Require().NoError(s.store.CreateSession(s.ctx, session))
	return session
}

// Quiz tests

func (s *StoreSuite) TestCreateAndGetQuiz() {
	quiz := s.createQuiz("ABC234")
	s.NotEmpty(quiz.ID)
	s.False(quiz.CreatedAt.IsZero())

	byID, err := s.store.GetQuiz(s.ctx, quiz.ID)
	s.Require().NoError(err)
	s.Equal(quiz.Title, byID.Title)
	s.Equal(quiz.Topic, byID.Topic)
	s.Equal(model.JoinCode("ABC234"), byID.JoinCode)
	s.Equal(model.QuizStatusDraft, byID.Status)

	byCode, err := s.store.GetQuizByCode(s.ctx, "ABC234")
	s.Require().NoError(err)
	s.Equal(quiz.ID, byCode.ID)
}

func (s *StoreSuite) TestGetQuizNotFound() {
	_, err := s.store.GetQuiz(s.ctx, "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, model.ErrQuizNotFound)
	s.ErrorIs(err, model.ErrNotFound)

	_, err = s.store.GetQuiz(s.ctx, "not-an-id")
	s.ErrorIs(err, model.ErrNotFound)

	_, err = s.store.GetQuizByCode(s.ctx, "ZZZZZZ")
	s.ErrorIs(err, model.ErrQuizNotFound)
}

func (s *StoreSuite) TestCreateQuizRejectsOpenCodeCollision() {
	s.createQuiz("DUP234")

	err := s.store.CreateQuiz(s.ctx, &model.Quiz{
		Title:    "Other",
		Topic:    "Other",
		JoinCode: "DUP234",
		Status:   model.QuizStatusDraft,
	})
	s.ErrorIs(err, model.ErrJoinCodeTaken)
}

func (s *StoreSuite) TestEndedQuizReleasesCode() {
	first := s.createQuiz("REU234")
	s.Require().NoError(s.store.UpdateQuizStatus(s.ctx, first.ID, model.QuizStatusLive))
	s.Require().NoError(s.store.UpdateQuizStatus(s.ctx, first.ID, model.QuizStatusEnded))

	byCode, err := s.store.GetQuizByCode(s.ctx, "REU234")
	s.Require().NoError(err)
	s.Equal(first.ID, byCode.ID)
	s.Equal(model.QuizStatusEnded, byCode.Status)

	second := s.createQuiz("REU234")

	byCode, err = s.store.GetQuizByCode(s.ctx, "REU234")
	s.Require().NoError(err)
	s.Equal(second.ID, byCode.ID, "open quiz wins the code lookup")
}

func (s *StoreSuite) TestUpdateQuizStatus() {
	quiz := s.createQuiz("UPD234")
	s.Require().NoError(s.store.UpdateQuizStatus(s.ctx, quiz.ID, model.QuizStatusLive))

	got, err := s.store.GetQuiz(s.ctx, quiz.ID)
	s.Require().NoError(err)
	s.Equal(model.QuizStatusLive, got.Status)

	err = s.store.UpdateQuizStatus(s.ctx, "00000000-0000-0000-0000-000000000000", model.QuizStatusLive)
	s.ErrorIs(err, model.ErrQuizNotFound)
}

func (s *StoreSuite) TestConcurrentCreateQuizSameCode() {
	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		taken   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.store.CreateQuiz(s.ctx, &model.Quiz{
				Title:    fmt.Sprintf("Quiz %d", i),
				Topic:    "Race",
				JoinCode: "RACE23",
				Status:   model.QuizStatusDraft,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, model.ErrJoinCodeTaken):
				taken++
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, success)
	s.Equal(workers-1, taken)
}

// Question tests

func (s *StoreSuite) TestCreateAndListQuestions() {
	quiz := s.createQuiz("QST234")
	questions := s.createQuestions(quiz.ID, 3)
	for _, q := range questions {
		s.NotEmpty(q.ID)
		s.Equal(quiz.ID, q.QuizID)
	}

	listed, err := s.store.ListQuestions(s.ctx, quiz.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	for i, q := range listed {
		s.Equal(i, q.Position)
		s.Equal(questions[i].ID, q.ID)
		s.Equal([]string{"A", "B", "C", "D"}, q.Options)
	}

	got, err := s.store.GetQuestion(s.ctx, questions[1].ID)
	s.Require().NoError(err)
	s.Equal("Question 2?", got.Text)
	s.Equal(1, got.CorrectIndex)
	s.Equal("Because.", got.Explanation)
}

func (s *StoreSuite) TestListQuestionsEmpty() {
	quiz := s.createQuiz("EMP234")
	listed, err := s.store.ListQuestions(s.ctx, quiz.ID)
	s.Require().NoError(err)
	s.Empty(listed)
}

func (s *StoreSuite) TestCreateQuestionsRejectsWrongOptionCount() {
	quiz := s.createQuiz("OPT234")
	err := s.store.CreateQuestions(s.ctx, quiz.ID, []*model.Question{{
		Text:    "Too few?",
		Options: []string{"A", "B"},
	}})
	s.ErrorIs(err, model.ErrInvalidInput)
}

func (s *StoreSuite) TestGetQuestionNotFound() {
	_, err := s.store.GetQuestion(s.ctx, "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, model.ErrQuestionNotFound)

	_, err = s.store.GetQuestion(s.ctx, "q-missing")
	s.ErrorIs(err, model.ErrNotFound)
}

// Session tests

func (s *StoreSuite) TestOneActiveSessionPerQuiz() {
	quiz := s.createQuiz("SES234")
	session := s.createActiveSession(quiz.ID)
	s.NotEmpty(session.ID)

	err := s.store.CreateSession(s.ctx, &model.Session{QuizID: quiz.ID, IsActive: true})
	s.ErrorIs(err, model.ErrActiveSessionExists)

	active, err := s.store.FindActiveSession(s.ctx, quiz.ID)
	s.Require().NoError(err)
	s.Equal(session.ID, active.ID)
	s.True(active.IsActive)
	s.Nil(active.EndedAt)
}

func (s *StoreSuite) TestDeactivateSession() {
	quiz := s.createQuiz("DEA234")
	session := s.createActiveSession(quiz.ID)

	endedAt := time.Now().UTC()
	s.Require().NoError(s.store.DeactivateSession(s.ctx, session.ID, endedAt))

	got, err := s.store.GetSession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.False(got.IsActive)
	s.Require().NotNil(got.EndedAt)
	s.WithinDuration(endedAt, *got.EndedAt, time.Second)

	_, err = s.store.FindActiveSession(s.ctx, quiz.ID)
	s.ErrorIs(err, model.ErrSessionNotFound)

	// A fresh run may start once the previous one is inactive
	s.createActiveSession(quiz.ID)
}

func (s *StoreSuite) TestSessionNotFound() {
	_, err := s.store.GetSession(s.ctx, "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, model.ErrSessionNotFound)

	err = s.store.DeactivateSession(s.ctx, "nope", time.Now())
	s.ErrorIs(err, model.ErrNotFound)
}

// Response tests

func (s *StoreSuite) TestCreateResponseFirstWins() {
	quiz := s.createQuiz("RSP234")
	questions := s.createQuestions(quiz.ID, 1)
	session := s.createActiveSession(quiz.ID)
	user := s.createUser("alice")

	first := &model.Response{
		SessionID:     session.ID,
		UserID:        user.ID,
		QuestionID:    questions[0].ID,
		SelectedIndex: 0,
		IsCorrect:     true,
		TimeTakenMs:   800,
	}
	s.Require().NoError(s.store.CreateResponse(s.ctx, first))
	s.NotEmpty(first.ID)

	err := s.store.CreateResponse(s.ctx, &model.Response{
		SessionID:     session.ID,
		UserID:        user.ID,
		QuestionID:    questions[0].ID,
		SelectedIndex: 2,
		TimeTakenMs:   100,
	})
	s.ErrorIs(err, model.ErrDuplicateAnswer)
}

// Score tests

func (s *StoreSuite) TestUpsertIncrementScore() {
	quiz := s.createQuiz("SCR234")
	session := s.createActiveSession(quiz.ID)
	user := s.createUser("alice")

	total, err := s.store.UpsertIncrementScore(s.ctx, session.ID, user.ID, 15)
	s.Require().NoError(err)
	s.Equal(15, total)

	total, err = s.store.UpsertIncrementScore(s.ctx, session.ID, user.ID, 0)
	s.Require().NoError(err)
	s.Equal(15, total)

	total, err = s.store.UpsertIncrementScore(s.ctx, session.ID, user.ID, 14)
	s.Require().NoError(err)
	s.Equal(29, total)

	_, err = s.store.UpsertIncrementScore(s.ctx, session.ID, user.ID, -1)
	s.ErrorIs(err, model.ErrInvalidInput)
}

func (s *StoreSuite) TestListScoresOrdering() {
	quiz := s.createQuiz("ORD234")
	session := s.createActiveSession(quiz.ID)
	alice := s.createUser("alice")
	bob := s.createUser("bob")
	carol := s.createUser("carol")

	// bob arrives first with zero, carol ties bob later
	_, err := s.store.UpsertIncrementScore(s.ctx, session.ID, bob.ID, 0)
	s.Require().NoError(err)
	_, err = s.store.UpsertIncrementScore(s.ctx, session.ID, alice.ID, 14)
	s.Require().NoError(err)
	_, err = s.store.UpsertIncrementScore(s.ctx, session.ID, carol.ID, 0)
	s.Require().NoError(err)

	rows, err := s.store.ListScoresWithUser(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal(alice.ID, rows[0].UserID)
	s.Equal("alice", rows[0].Name)
	s.Equal(14, rows[0].Score)
	s.Equal(bob.ID, rows[1].UserID)
	s.Equal(carol.ID, rows[2].UserID)
}

func (s *StoreSuite) TestListScoresEmpty() {
	quiz := s.createQuiz("NOS234")
	session := s.createActiveSession(quiz.ID)

	rows, err := s.store.ListScoresWithUser(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Empty(rows)
}

func (s *StoreSuite) TestConcurrentIncrementsDistinctUsers() {
	quiz := s.createQuiz("CON234")
	session := s.createActiveSession(quiz.ID)

	const players = 25
	users := make([]*model.User, players)
	for i := range users {
		users[i] = s.createUser(fmt.Sprintf("player%02d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, players)
	for _, u := range users {
		wg.Add(1)
		go func(u *model.User) {
			defer wg.Done()
			if _, err := s.store.UpsertIncrementScore(s.ctx, session.ID, u.ID, 10); err != nil {
				errs <- err
			}
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	rows, err := s.store.ListScoresWithUser(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Len(rows, players)
	for _, r := range rows {
		s.Equal(10, r.Score)
	}
}

func (s *StoreSuite) TestConcurrentIncrementsSameUser() {
	quiz := s.createQuiz("SAM234")
	session := s.createActiveSession(quiz.ID)
	user := s.createUser("alice")

	const increments = 20
	var wg sync.WaitGroup
	for i := 0; i < increments; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.UpsertIncrementScore(s.ctx, session.ID, user.ID, 3)
			s.NoError(err)
		}()
	}
	wg.Wait()

	rows, err := s.store.ListScoresWithUser(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(increments*3, rows[0].Score)
}

// User tests

func (s *StoreSuite) TestUpsertUserUpdatesNameOnly() {
	first, err := s.store.UpsertUser(s.ctx, "guest-1@guest.local", "Player", true)
	s.Require().NoError(err)
	s.NotEmpty(first.ID)
	s.True(first.IsGuest)

	second, err := s.store.UpsertUser(s.ctx, "guest-1@guest.local", "Renamed", false)
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.Equal("Renamed", second.Name)
	s.True(second.IsGuest)

	got, err := s.store.GetUser(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal("Renamed", got.Name)
	s.Equal("guest-1@guest.local", got.Key)
}

func (s *StoreSuite) TestGetUserNotFound() {
	_, err := s.store.GetUser(s.ctx, "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, model.ErrUserNotFound)

	_, err = s.store.GetUser(s.ctx, "u-missing")
	s.ErrorIs(err, model.ErrNotFound)
}
