package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/livequiz/internal/dependencies/mocks"
	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/answer"
	"github.com/mcoot/livequiz/internal/services/broadcast"
	"github.com/mcoot/livequiz/internal/services/generator"
	"github.com/mcoot/livequiz/internal/services/lifecycle"
	"github.com/mcoot/livequiz/internal/services/room"
	"github.com/mcoot/livequiz/internal/storage"
	"github.com/mcoot/livequiz/internal/storage/memory"
	"github.com/mcoot/livequiz/internal/testutil"
)

var romanEmpire = generator.Static{
	{Question: "Who was the first Roman emperor?", Options: []string{"Augustus", "Nero", "Caligula", "Trajan"}, CorrectIndex: 0, Explanation: "27 BC"},
	{Question: "Which city was the capital?", Options: []string{"Athens", "Rome", "Carthage", "Alexandria"}, CorrectIndex: 1},
	{Question: "Which emperor split the empire into tetrarchy?", Options: []string{"Hadrian", "Constantine", "Diocletian", "Nero"}, CorrectIndex: 2},
}

// gatedStore holds ListQuestions until release is closed
type gatedStore struct {
	storage.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListQuestions(ctx context.Context, quizID model.QuizID) ([]*model.Question, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.Store.ListQuestions(ctx, quizID)
}

type CoordinatorSuite struct {
	suite.Suite
	storage     *memory.Storage
	clock       *mocks.MockClock
	random      *mocks.MockRandom
	registry    *room.Registry
	coordinator *Coordinator
	generator   generator.Generator
	ctx         context.Context
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.generator = romanEmpire
	s.ctx = context.Background()
	s.build()
}

func (s *CoordinatorSuite) build() {
	logger := testutil.NopLogger()
	s.registry = room.NewRegistry(s.storage, s.clock, logger, room.DefaultConfig())
	b := broadcast.New(logger)
	s.coordinator = New(
		s.storage,
		s.registry,
		b,
		lifecycle.NewController(s.storage, s.clock, logger),
		answer.NewProcessor(s.storage, b, s.clock, logger),
		s.generator,
		s.clock,
		s.random,
		logger,
	)
}

func (s *CoordinatorSuite) createQuiz(topic string) *CreateQuizOutput {
	out, err := s.coordinator.CreateQuiz(s.ctx, CreateQuizInput{Topic: topic})
	s.Require().NoError(err)
	return out
}

func (s *CoordinatorSuite) join(code model.JoinCode, handle, name string) (*testutil.Participant, *model.User) {
	user, err := s.coordinator.JoinPlayer(s.ctx, name, "")
	s.Require().NoError(err)
	p := testutil.NewParticipant(handle)
	_, err = s.coordinator.JoinRoom(s.ctx, code, p, name)
	s.Require().NoError(err)
	return p, user
}

// CreateQuiz tests

func (s *CoordinatorSuite) TestCreateQuizDefaults() {
	s.random.QueueString("ROM234")

	out, err := s.coordinator.CreateQuiz(s.ctx, CreateQuizInput{Topic: "  Roman Empire "})
	s.Require().NoError(err)
	s.Equal(model.JoinCode("ROM234"), out.JoinCode)
	s.NotEmpty(out.SessionID)

	quiz, err := s.storage.GetQuiz(s.ctx, out.QuizID)
	s.Require().NoError(err)
	s.Equal("Quiz: Roman Empire", quiz.Title)
	s.Equal("Roman Empire", quiz.Topic)
	s.Equal(model.QuizStatusDraft, quiz.Status)

	host, err := s.storage.GetUser(s.ctx, quiz.HostUserID)
	s.Require().NoError(err)
	s.Equal(DefaultHostName, host.Name)
	s.True(host.IsGuest)
	s.True(strings.HasSuffix(host.Key, "@"+GuestKeyDomain))

	questions, err := s.storage.ListQuestions(s.ctx, out.QuizID)
	s.Require().NoError(err)
	s.Require().Len(questions, 3)
	for i, q := range questions {
		s.Equal(i, q.Position)
	}
	s.Equal("27 BC", questions[0].Explanation)

	session, err := s.storage.FindActiveSession(s.ctx, out.QuizID)
	s.Require().NoError(err)
	s.Equal(out.SessionID, session.ID)
}

func (s *CoordinatorSuite) TestCreateQuizUsesGivenTitleAndHost() {
	out, err := s.coordinator.CreateQuiz(s.ctx, CreateQuizInput{
		Topic:    "Rome",
		Title:    "Friday trivia",
		HostName: "Marcus",
		Email:    "marcus@example.com",
	})
	s.Require().NoError(err)

	quiz, err := s.storage.GetQuiz(s.ctx, out.QuizID)
	s.Require().NoError(err)
	s.Equal("Friday trivia", quiz.Title)
	host, err := s.storage.GetUser(s.ctx, quiz.HostUserID)
	s.Require().NoError(err)
	s.Equal("Marcus", host.Name)
	s.Equal("marcus@example.com", host.Key)
	s.False(host.IsGuest)
}

func (s *CoordinatorSuite) TestCreateQuizRequiresTopic() {
	for _, topic := range []string{"", "   "} {
		_, err := s.coordinator.CreateQuiz(s.ctx, CreateQuizInput{Topic: topic})
		s.ErrorIs(err, model.ErrTopicRequired)
		s.ErrorIs(err, model.ErrInvalidInput)
	}
}

func (s *CoordinatorSuite) TestCreateQuizRetriesJoinCodeCollision() {
	s.random.QueueString("AAA222", "AAA222", "BBB333")

	first := s.createQuiz("Rome")
	second := s.createQuiz("Rome")
	s.Equal(model.JoinCode("AAA222"), first.JoinCode)
	s.Equal(model.JoinCode("BBB333"), second.JoinCode)
	s.Equal(3, s.random.StringCalls())
}

func (s *CoordinatorSuite) TestCreateQuizGivesUpAfterMaxAttempts() {
	s.random.QueueString("AAA222")
	s.createQuiz("Rome")

	for i := 0; i < MaxJoinCodeAttempts; i++ {
		s.random.QueueString("AAA222")
	}
	_, err := s.coordinator.CreateQuiz(s.ctx, CreateQuizInput{Topic: "Rome"})
	s.ErrorIs(err, model.ErrJoinCodeExhausted)
	s.ErrorIs(err, model.ErrStoreFailure)
}

func (s *CoordinatorSuite) TestConcurrentCreationsGetDistinctCodes() {
	const creators = 30
	codes := make(chan model.JoinCode, creators)

	var wg sync.WaitGroup
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.coordinator.CreateQuiz(s.ctx, CreateQuizInput{Topic: "Rome"})
			s.NoError(err)
			if err == nil {
				codes <- out.JoinCode
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[model.JoinCode]bool)
	for code := range codes {
		s.False(seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	s.Len(seen, creators)
}

func (s *CoordinatorSuite) TestCreateQuizWithoutQuestionsCannotStart() {
	s.generator = generator.None{}
	s.build()

	out := s.createQuiz("Nothing")
	_, err := s.coordinator.Start(s.ctx, out.JoinCode)
	s.ErrorIs(err, model.ErrNoQuestions)
}

// Room tests

func (s *CoordinatorSuite) TestUnknownCodeIsNotFound() {
	p := testutil.NewParticipant("h-1")
	_, err := s.coordinator.JoinRoom(s.ctx, "ZZZZZZ", p, "Alice")
	s.ErrorIs(err, model.ErrQuizNotFound)
	s.Equal(0, s.registry.Count())
	s.Empty(p.Envelopes())

	_, err = s.coordinator.GetQuiz(s.ctx, "ZZZZZZ")
	s.ErrorIs(err, model.ErrNotFound)
	_, err = s.coordinator.Start(s.ctx, "ZZZZZZ")
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *CoordinatorSuite) TestLobbyUpdatesOnJoinAndLeave() {
	out := s.createQuiz("Rome")
	alice, _ := s.join(out.JoinCode, "h-alice", "Alice")
	bob, _ := s.join(out.JoinCode, "h-bob", "Bob")

	var lobby model.LobbyUpdatePayload
	s.Require().True(alice.Last(model.EventLobbyUpdate, &lobby))
	s.Equal(model.LobbyUpdatePayload{Player: "Bob", Action: model.LobbyActionJoined, Members: []string{"Alice", "Bob"}}, lobby)

	s.coordinator.Disconnect(bob)
	s.Require().True(alice.Last(model.EventLobbyUpdate, &lobby))
	s.Equal(model.LobbyUpdatePayload{Player: "Bob", Action: model.LobbyActionLeft, Members: []string{"Alice"}}, lobby)
	s.Nil(s.coordinator.RoomOf(bob))
}

func (s *CoordinatorSuite) TestRomanEmpireScenario() {
	s.random.QueueString("ROM234")
	out := s.createQuiz("Roman Empire")

	alice, aliceUser := s.join(out.JoinCode, "h-alice", "Alice")
	bob, bobUser := s.join(out.JoinCode, "h-bob", "Bob")

	t, err := s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	s.True(t.Changed)
	s.Equal(out.SessionID, t.Session.ID)

	var start model.QuizStartPayload
	s.Require().True(bob.Last(model.EventQuizStart, &start))
	s.Equal(out.SessionID, start.SessionID)
	s.Require().Len(start.Questions, 3)
	s.Equal("Who was the first Roman emperor?", start.Questions[0].QuestionText)

	first := start.Questions[0].ID
	res, err := s.coordinator.SubmitAnswer(s.ctx, answer.Submission{
		JoinCode: out.JoinCode, SessionID: out.SessionID, UserID: aliceUser.ID,
		QuestionID: first, SelectedIndex: 0, TimeTakenMs: 1500,
	})
	s.Require().NoError(err)
	s.Equal(14, res.Points)

	_, err = s.coordinator.SubmitAnswer(s.ctx, answer.Submission{
		JoinCode: out.JoinCode, SessionID: out.SessionID, UserID: bobUser.ID,
		QuestionID: first, SelectedIndex: 2, TimeTakenMs: 900,
	})
	s.Require().NoError(err)

	expected := []model.LeaderboardRow{
		{UserID: aliceUser.ID, Name: "Alice", Score: 14},
		{UserID: bobUser.ID, Name: "Bob", Score: 0},
	}
	for _, p := range []*testutil.Participant{alice, bob} {
		var rows []model.LeaderboardRow
		s.Require().True(p.Last(model.EventLeaderboardUpdate, &rows))
		s.Equal(expected, rows)
	}

	board, err := s.coordinator.Leaderboard(s.ctx, out.SessionID)
	s.Require().NoError(err)
	s.Equal(model.NewLeaderboardRows(board), expected)

	_, err = s.coordinator.End(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	var end model.QuizEndPayload
	s.Require().True(alice.Last(model.EventQuizEnd, &end))
	s.Equal(QuizEndMessage, end.Message)

	s.Equal([]string{
		string(model.EventLobbyUpdate),
		string(model.EventLobbyUpdate),
		string(model.EventQuizStart),
		string(model.EventLeaderboardUpdate),
		string(model.EventLeaderboardUpdate),
		string(model.EventQuizEnd),
	}, alice.EventNames())
}

func (s *CoordinatorSuite) TestStartTwiceBroadcastsOnce() {
	out := s.createQuiz("Rome")
	alice, _ := s.join(out.JoinCode, "h-alice", "Alice")

	_, err := s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	again, err := s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	s.False(again.Changed)

	s.Len(alice.Of(model.EventQuizStart), 1)
}

func (s *CoordinatorSuite) TestConcurrentStartsBroadcastOnce() {
	out := s.createQuiz("Rome")
	alice, _ := s.join(out.JoinCode, "h-alice", "Alice")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.coordinator.Start(s.ctx, out.JoinCode)
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Len(alice.Of(model.EventQuizStart), 1)
}

func (s *CoordinatorSuite) TestEndBeforeStartIsNoOp() {
	out := s.createQuiz("Rome")
	alice, _ := s.join(out.JoinCode, "h-alice", "Alice")

	t, err := s.coordinator.End(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	s.False(t.Changed)
	s.Empty(alice.Of(model.EventQuizEnd))

	summary, err := s.coordinator.GetQuiz(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	s.Equal(model.QuizStatusDraft, summary.Quiz.Status)
}

func (s *CoordinatorSuite) TestStartAfterEndFails() {
	out := s.createQuiz("Rome")
	_, err := s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	_, err = s.coordinator.End(s.ctx, out.JoinCode)
	s.Require().NoError(err)

	_, err = s.coordinator.Start(s.ctx, out.JoinCode)
	s.ErrorIs(err, model.ErrQuizEnded)
}

func (s *CoordinatorSuite) TestAnswersRejectedOutsideLive() {
	out := s.createQuiz("Rome")
	_, user := s.join(out.JoinCode, "h-alice", "Alice")
	questions, err := s.storage.ListQuestions(s.ctx, out.QuizID)
	s.Require().NoError(err)

	sub := answer.Submission{
		JoinCode: out.JoinCode, SessionID: out.SessionID, UserID: user.ID,
		QuestionID: questions[0].ID, SelectedIndex: 0,
	}
	_, err = s.coordinator.SubmitAnswer(s.ctx, sub)
	s.ErrorIs(err, model.ErrQuizNotLive)

	_, err = s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	_, err = s.coordinator.End(s.ctx, out.JoinCode)
	s.Require().NoError(err)

	_, err = s.coordinator.SubmitAnswer(s.ctx, sub)
	s.ErrorIs(err, model.ErrQuizNotLive)
}

func (s *CoordinatorSuite) TestSubmitSurvivesCancelledContext() {
	out := s.createQuiz("Rome")
	_, user := s.join(out.JoinCode, "h-alice", "Alice")
	_, err := s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	questions, err := s.storage.ListQuestions(s.ctx, out.QuizID)
	s.Require().NoError(err)

	// The room is already open, so only processing sees the cancelled context
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	res, err := s.coordinator.SubmitAnswer(ctx, answer.Submission{
		JoinCode: out.JoinCode, SessionID: out.SessionID, UserID: user.ID,
		QuestionID: questions[0].ID, SelectedIndex: 0,
	})
	s.Require().NoError(err)
	s.Equal(15, res.Total)
}

func (s *CoordinatorSuite) TestLateJoinerCatchesUp() {
	out := s.createQuiz("Rome")
	_, alice := s.join(out.JoinCode, "h-alice", "Alice")
	_, err := s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	questions, err := s.storage.ListQuestions(s.ctx, out.QuizID)
	s.Require().NoError(err)
	_, err = s.coordinator.SubmitAnswer(s.ctx, answer.Submission{
		JoinCode: out.JoinCode, SessionID: out.SessionID, UserID: alice.ID,
		QuestionID: questions[0].ID, SelectedIndex: 0, TimeTakenMs: 0,
	})
	s.Require().NoError(err)

	late, _ := s.join(out.JoinCode, "h-late", "Late")
	s.Equal([]string{
		string(model.EventLobbyUpdate),
		string(model.EventQuizStart),
		string(model.EventLeaderboardUpdate),
	}, late.EventNames())

	var rows []model.LeaderboardRow
	s.Require().True(late.Last(model.EventLeaderboardUpdate, &rows))
	s.Equal([]model.LeaderboardRow{{UserID: alice.ID, Name: "Alice", Score: 15}}, rows)
}

func (s *CoordinatorSuite) TestWatcherReceivesEvents() {
	out := s.createQuiz("Rome")
	watcher := testutil.NewParticipant("sse-1")
	r, err := s.coordinator.Watch(s.ctx, out.JoinCode, watcher)
	s.Require().NoError(err)

	s.join(out.JoinCode, "h-alice", "Alice")
	_, err = s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)

	s.Equal([]string{string(model.EventLobbyUpdate), string(model.EventQuizStart)}, watcher.EventNames())

	summary, err := s.coordinator.GetQuiz(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	s.Equal(1, summary.ConnectedCount)

	s.coordinator.Unwatch(r, watcher)
	s.Equal(0, r.WatcherCount())
}

func (s *CoordinatorSuite) TestWatcherCatchUpPrecedesLaterEvents() {
	out := s.createQuiz("Rome")
	_, err := s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)

	// A fresh registry over a slow store, so the catch-up read stalls
	gated := &gatedStore{Store: s.storage, entered: make(chan struct{}, 1), release: make(chan struct{})}
	logger := testutil.NopLogger()
	registry := room.NewRegistry(gated, s.clock, logger, room.DefaultConfig())
	b := broadcast.New(logger)
	c := New(gated, registry, b,
		lifecycle.NewController(gated, s.clock, logger),
		answer.NewProcessor(gated, b, s.clock, logger),
		s.generator, s.clock, s.random, logger)

	watcher := testutil.NewParticipant("sse-1")
	watched := make(chan error, 1)
	go func() {
		_, err := c.Watch(s.ctx, out.JoinCode, watcher)
		watched <- err
	}()
	<-gated.entered

	ended := make(chan error, 1)
	go func() {
		_, err := c.End(s.ctx, out.JoinCode)
		ended <- err
	}()

	select {
	case err := <-ended:
		s.Failf("end finished during catch-up", "err: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.release)
	s.Require().NoError(<-watched)
	s.Require().NoError(<-ended)

	s.Equal([]string{
		string(model.EventQuizStart),
		string(model.EventLeaderboardUpdate),
		string(model.EventQuizEnd),
	}, watcher.EventNames())
}

func (s *CoordinatorSuite) TestGetQuizSummary() {
	out := s.createQuiz("Rome")
	s.join(out.JoinCode, "h-alice", "Alice")
	s.join(out.JoinCode, "h-bob", "Bob")

	summary, err := s.coordinator.GetQuiz(s.ctx, model.JoinCode(strings.ToLower(string(out.JoinCode))))
	s.Require().NoError(err)
	s.Equal(out.QuizID, summary.Quiz.ID)
	s.Equal(3, summary.QuestionCount)
	s.Require().NotNil(summary.ActiveSession)
	s.Equal(out.SessionID, *summary.ActiveSession)
	s.Equal(2, summary.ConnectedCount)
}

func (s *CoordinatorSuite) TestLeaderboardUnknownSession() {
	_, err := s.coordinator.Leaderboard(s.ctx, "missing")
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *CoordinatorSuite) TestJoinPlayer() {
	guest1, err := s.coordinator.JoinPlayer(s.ctx, "", "")
	s.Require().NoError(err)
	guest2, err := s.coordinator.JoinPlayer(s.ctx, "Player", "")
	s.Require().NoError(err)
	s.Equal(room.DefaultPlayerName, guest1.Name)
	s.NotEqual(guest1.ID, guest2.ID)

	first, err := s.coordinator.JoinPlayer(s.ctx, "Ann", "ann@example.com")
	s.Require().NoError(err)
	again, err := s.coordinator.JoinPlayer(s.ctx, "Annie", "ann@example.com")
	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)
	s.Equal("Annie", again.Name)
}

func (s *CoordinatorSuite) TestConcurrentPlayersAllScored() {
	out := s.createQuiz("Rome")
	const players = 25
	users := make([]*model.User, players)
	for i := range users {
		_, users[i] = s.join(out.JoinCode, fmt.Sprintf("h-%d", i), fmt.Sprintf("P%d", i))
	}
	_, err := s.coordinator.Start(s.ctx, out.JoinCode)
	s.Require().NoError(err)
	questions, err := s.storage.ListQuestions(s.ctx, out.QuizID)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u *model.User) {
			defer wg.Done()
			_, err := s.coordinator.SubmitAnswer(s.ctx, answer.Submission{
				JoinCode: out.JoinCode, SessionID: out.SessionID, UserID: u.ID,
				QuestionID: questions[0].ID, SelectedIndex: 0, TimeTakenMs: 100,
			})
			s.NoError(err)
		}(u)
	}
	wg.Wait()

	board, err := s.coordinator.Leaderboard(s.ctx, out.SessionID)
	s.Require().NoError(err)
	s.Len(board, players)
	for _, e := range board {
		s.Equal(15, e.Score)
	}
}
