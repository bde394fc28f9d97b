package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupath/attempt-engine/internal/events"
	"github.com/edupath/attempt-engine/internal/journal"
	"github.com/edupath/attempt-engine/internal/models"
	"github.com/edupath/attempt-engine/internal/utils"
)

// ===== MOCKS =====

type mockGateway struct {
	mu sync.Mutex

	active    *models.ActiveAttempt
	activeErr error
	payload   *models.AttemptPayload
	startErr  error
	resumeErr error
	meta      *models.QuizMeta
	metaErr   error
	submit    *models.SubmitResult
	submitErr error

	startCalls  int
	resumeCalls int
	metaCalls   int
	submitCalls int
}

func (g *mockGateway) CheckActiveAttempt(ctx context.Context, quizID int64) (*models.ActiveAttempt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeErr != nil {
		return nil, g.activeErr
	}
	if g.active != nil {
		return g.active, nil
	}
	return &models.ActiveAttempt{}, nil
}

func (g *mockGateway) StartAttempt(ctx context.Context, quizID int64) (*models.AttemptPayload, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startCalls++
	if g.startErr != nil {
		return nil, g.startErr
	}
	return g.payload, nil
}

func (g *mockGateway) ResumeAttempt(ctx context.Context, attemptID int64) (*models.AttemptPayload, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resumeCalls++
	if g.resumeErr != nil {
		return nil, g.resumeErr
	}
	return g.payload, nil
}

func (g *mockGateway) GetQuizMeta(ctx context.Context, quizID int64) (*models.QuizMeta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metaCalls++
	if g.metaErr != nil {
		return nil, g.metaErr
	}
	if g.meta != nil {
		return g.meta, nil
	}
	return &models.QuizMeta{}, nil
}

func (g *mockGateway) SaveAnswer(ctx context.Context, attemptID, questionID int64, value any) error {
	return nil
}

func (g *mockGateway) SubmitAttempt(ctx context.Context, attemptID int64) (*models.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	if g.submit != nil {
		return g.submit, nil
	}
	return &models.SubmitResult{}, nil
}

type savedAnswer struct {
	AttemptID  int64
	QuestionID int64
	Value      any
}

type recordingSaver struct {
	mu    sync.Mutex
	saves []savedAnswer
}

func (r *recordingSaver) Enqueue(ctx context.Context, attemptID, questionID int64, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, savedAnswer{AttemptID: attemptID, QuestionID: questionID, Value: value})
	return nil
}

func (r *recordingSaver) all() []savedAnswer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]savedAnswer, len(r.saves))
	copy(out, r.saves)
	return out
}

func (r *recordingSaver) last() savedAnswer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[len(r.saves)-1]
}

type testHarness struct {
	service SessionService
	gateway *mockGateway
	saver   *recordingSaver
	events  *events.MockEventPublisher
}

func newTestHarness(gw *mockGateway) *testHarness {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	saver := &recordingSaver{}
	publisher := events.NewMockEventPublisher(discard)
	service := NewSessionService(SessionServiceDeps{
		Gateway:   gw,
		Saver:     saver,
		Events:    publisher,
		Journal:   journal.NewNoopRecorder(),
		Logger:    utils.NewSlogLogger(discard),
		Validator: utils.NewValidator(),
	})
	return &testHarness{service: service, gateway: gw, saver: saver, events: publisher}
}

// threeQuestionPayload covers the three editor families: single choice,
// fill-in-blank with two slots, and ordering.
func threeQuestionPayload(t *testing.T, attemptID int64) *models.AttemptPayload {
	t.Helper()
	return &models.AttemptPayload{
		AttemptID: attemptID,
		QuizID:    500,
		StartedAt: time.Now(),
		Sections: mustTree(t, `[
			{"questions": [
				{"questionId": 1, "questionText": "pick", "type": 1, "answers": [
					{"answerId": 11, "answerText": "a"},
					{"answerId": 12, "answerText": "b"}
				]},
				{"questionId": 2, "questionText": "[...] and [...]", "type": 4, "answers": []},
				{"questionId": 3, "questionText": "order", "type": 6, "answers": [
					{"answerId": 31, "answerText": "x"},
					{"answerId": 32, "answerText": "y"},
					{"answerId": 33, "answerText": "z"}
				]}
			]}
		]`),
	}
}

// ===== START / RESUME =====

func TestStart_ActiveAttemptRedirectsToResume(t *testing.T) {
	gw := &mockGateway{
		active:  &models.ActiveAttempt{HasActiveAttempt: true, AttemptID: 77},
		payload: threeQuestionPayload(t, 77),
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	state, err := h.service.Start(context.Background(), 500, false)
	require.NoError(t, err)

	assert.Equal(t, int64(77), state.AttemptID)
	assert.Equal(t, 1, gw.resumeCalls, "an active attempt resumes")
	assert.Equal(t, 0, gw.startCalls, "startAttempt must never run when an attempt is active")
}

func TestStart_ForceNewSkipsActiveCheck(t *testing.T) {
	gw := &mockGateway{
		active:  &models.ActiveAttempt{HasActiveAttempt: true, AttemptID: 77},
		payload: threeQuestionPayload(t, 88),
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	state, err := h.service.Start(context.Background(), 500, true)
	require.NoError(t, err)

	assert.Equal(t, int64(88), state.AttemptID)
	assert.Equal(t, 1, gw.startCalls)
	assert.Equal(t, 0, gw.resumeCalls)
}

func TestStart_ActiveCheckFailureDegradesToStart(t *testing.T) {
	gw := &mockGateway{
		activeErr: errors.New("upstream 503"),
		payload:   threeQuestionPayload(t, 90),
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	state, err := h.service.Start(context.Background(), 500, false)
	require.NoError(t, err, "a failed active check never blocks starting")
	assert.Equal(t, int64(90), state.AttemptID)
	assert.Equal(t, 1, gw.startCalls)
}

func TestStart_EmptyQuizIsFatal(t *testing.T) {
	gw := &mockGateway{
		payload: &models.AttemptPayload{AttemptID: 5, QuizID: 500, StartedAt: time.Now()},
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	_, err := h.service.Start(context.Background(), 500, true)
	require.ErrorIs(t, err, ErrQuizEmpty)
	assert.True(t, IsFatalSession(err))
}

func TestStart_GatewayFailureWrapsStartError(t *testing.T) {
	gw := &mockGateway{startErr: errors.New("boom")}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	_, err := h.service.Start(context.Background(), 500, true)
	require.ErrorIs(t, err, ErrStartFailed)
	assert.True(t, IsFatalSession(err))
}

func TestResume_SeedsSavedAnswers(t *testing.T) {
	payload := &models.AttemptPayload{
		AttemptID: 42,
		QuizID:    500,
		StartedAt: time.Now(),
		Sections: mustTree(t, `[
			{"questions": [
				{"questionId": 1, "questionText": "multi", "type": 2, "answers": [
					{"answerId": 3, "answerText": "a"},
					{"answerId": 4, "answerText": "b"},
					{"answerId": 5, "answerText": "c"}
				], "answer": [3, 5]},
				{"questionId": 2, "questionText": "pick", "type": 1, "answers": [
					{"answerId": 21, "answerText": "a"}
				], "answer": null}
			]}
		]`),
	}
	gw := &mockGateway{payload: payload}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	state, err := h.service.Resume(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 1, state.AnsweredCount, "the null answer stays unanswered")
	require.NotNil(t, state.Question)
	assert.ElementsMatch(t, []int64{3, 5}, state.Question.Answer.([]int64))
}

func TestResume_GatewayFailureWrapsResumeError(t *testing.T) {
	gw := &mockGateway{resumeErr: errors.New("gone")}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	_, err := h.service.Resume(context.Background(), 42)
	require.ErrorIs(t, err, ErrResumeFailed)
	assert.True(t, IsFatalSession(err))
}

// ===== DURATION RESOLUTION =====

func TestDuration_SecondaryLookupWhenPayloadSilent(t *testing.T) {
	minutes := 30
	gw := &mockGateway{
		payload: threeQuestionPayload(t, 10),
		meta:    &models.QuizMeta{DurationMinutes: &minutes},
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	state, err := h.service.Start(context.Background(), 500, true)
	require.NoError(t, err)

	assert.Equal(t, 1, gw.metaCalls)
	assert.True(t, state.Timer.Active)
	assert.InDelta(t, 30*60, state.Timer.RemainingSeconds, 2)
}

func TestDuration_EmbeddedMinutesSkipLookup(t *testing.T) {
	minutes := 15
	payload := threeQuestionPayload(t, 11)
	payload.DurationMinutes = &minutes
	gw := &mockGateway{payload: payload}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	state, err := h.service.Start(context.Background(), 500, true)
	require.NoError(t, err)

	assert.Equal(t, 0, gw.metaCalls)
	assert.True(t, state.Timer.Active)
}

func TestDuration_LookupFailureRunsUntimed(t *testing.T) {
	gw := &mockGateway{
		payload: threeQuestionPayload(t, 12),
		metaErr: errors.New("meta unavailable"),
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	state, err := h.service.Start(context.Background(), 500, true)
	require.NoError(t, err, "a failed duration lookup degrades, never blocks")
	assert.False(t, state.Timer.Active)
}

// ===== CAPTURE =====

func TestCapture_TransmitsPerTypeWireValues(t *testing.T) {
	gw := &mockGateway{payload: threeQuestionPayload(t, 20)}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	// Single choice transmits the bare option id.
	_, err = h.service.Capture(ctx, 20, &CaptureRequest{
		QuestionID: 1, Action: "select", OptionID: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), h.saver.last().Value)

	// Two blanks transmit as one comma-joined string.
	_, err = h.service.Capture(ctx, 20, &CaptureRequest{
		QuestionID: 2, Action: "blank", Slot: 0, Text: "salt",
	})
	require.NoError(t, err)
	_, err = h.service.Capture(ctx, 20, &CaptureRequest{
		QuestionID: 2, Action: "blank", Slot: 1, Text: "pepper",
	})
	require.NoError(t, err)
	assert.Equal(t, "salt, pepper", h.saver.last().Value)

	// One adjacent swap transmits the whole sequence.
	state, err := h.service.Capture(ctx, 20, &CaptureRequest{
		QuestionID: 3, Action: "move_down", Index: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{32, 31, 33}, h.saver.last().Value)
	assert.Equal(t, 3, state.AnsweredCount)

	for _, save := range h.saver.all() {
		assert.Equal(t, int64(20), save.AttemptID)
	}
}

func TestCapture_NoOpInteractionsAreNotTransmitted(t *testing.T) {
	gw := &mockGateway{payload: threeQuestionPayload(t, 21)}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	// Boundary move and unknown question id change nothing.
	_, err = h.service.Capture(ctx, 21, &CaptureRequest{QuestionID: 3, Action: "move_up", Index: 0})
	require.NoError(t, err)
	_, err = h.service.Capture(ctx, 21, &CaptureRequest{QuestionID: 999, Action: "select", OptionID: 1})
	require.NoError(t, err)

	assert.Empty(t, h.saver.all())
}

func TestCapture_RejectsUnknownAction(t *testing.T) {
	gw := &mockGateway{payload: threeQuestionPayload(t, 22)}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	_, err = h.service.Capture(ctx, 22, &CaptureRequest{QuestionID: 1, Action: "sabotage"})
	require.Error(t, err)
	assert.Empty(t, h.saver.all())
}

func TestCapture_UnknownSessionNotFound(t *testing.T) {
	h := newTestHarness(&mockGateway{})
	defer h.service.Shutdown()

	_, err := h.service.Capture(context.Background(), 404, &CaptureRequest{QuestionID: 1, Action: "select"})
	assert.True(t, IsNotFound(err))
}

// ===== NAVIGATION =====

func TestNavigate_PreviousClampsAtFirstQuestion(t *testing.T) {
	gw := &mockGateway{payload: threeQuestionPayload(t, 30)}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	outcome, err := h.service.Navigate(ctx, 30, &NavigateRequest{Direction: "previous"})
	require.NoError(t, err)
	assert.False(t, outcome.Moved)
	assert.Equal(t, 0, outcome.Index)
}

func TestNavigate_NextPastEndRequiresConfirmWhenIncomplete(t *testing.T) {
	gw := &mockGateway{payload: threeQuestionPayload(t, 31)}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		outcome, err := h.service.Navigate(ctx, 31, &NavigateRequest{Direction: "next"})
		require.NoError(t, err)
		assert.True(t, outcome.Moved)
	}

	outcome, err := h.service.Navigate(ctx, 31, &NavigateRequest{Direction: "next"})
	require.NoError(t, err)
	assert.False(t, outcome.Moved)
	assert.True(t, outcome.ConfirmSubmit, "an incomplete attempt asks before submitting")
	assert.Nil(t, outcome.Result)
	assert.Equal(t, 0, gw.submitCalls)
}

func TestNavigate_NextPastEndSubmitsWhenComplete(t *testing.T) {
	gw := &mockGateway{
		payload: threeQuestionPayload(t, 32),
		submit: &models.SubmitResult{
			TotalScore: 8, IsPassed: true, Percentage: 80, TimeSpentSeconds: 120,
			ScoresByQuestion: map[int64]float64{1: 5, 2: 3, 3: 0},
		},
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	_, err = h.service.Capture(ctx, 32, &CaptureRequest{QuestionID: 1, Action: "select", OptionID: 11})
	require.NoError(t, err)
	_, err = h.service.Capture(ctx, 32, &CaptureRequest{QuestionID: 2, Action: "blank", Slot: 0, Text: "done"})
	require.NoError(t, err)
	_, err = h.service.Capture(ctx, 32, &CaptureRequest{QuestionID: 3, Action: "move_down", Index: 0})
	require.NoError(t, err)

	h.service.Navigate(ctx, 32, &NavigateRequest{Direction: "next"})
	h.service.Navigate(ctx, 32, &NavigateRequest{Direction: "next"})
	outcome, err := h.service.Navigate(ctx, 32, &NavigateRequest{Direction: "next"})
	require.NoError(t, err)

	assert.False(t, outcome.ConfirmSubmit, "a fully answered attempt submits silently")
	require.NotNil(t, outcome.Result)
	assert.Equal(t, 8.0, outcome.Result.TotalScore)
	assert.True(t, outcome.Result.Passed)
	assert.Equal(t, 2, outcome.Result.CorrectCount, "zero-score questions do not count as correct")
	assert.Equal(t, 1, gw.submitCalls)
}

// ===== SUBMIT =====

func TestSubmit_FailureIsRetryableAndKeepsSessionAlive(t *testing.T) {
	gw := &mockGateway{
		payload:   threeQuestionPayload(t, 40),
		submitErr: errors.New("upstream timeout"),
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	_, err = h.service.Submit(ctx, 40)
	require.Error(t, err)
	assert.True(t, IsRetryableSubmit(err))

	// The session survives: answers are intact and a retry succeeds.
	state, err := h.service.State(ctx, 40)
	require.NoError(t, err)
	assert.False(t, state.Submitted)

	gw.mu.Lock()
	gw.submitErr = nil
	gw.submit = &models.SubmitResult{TotalScore: 1}
	gw.mu.Unlock()

	result, err := h.service.Submit(ctx, 40)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.TotalScore)
}

func TestSubmit_SecondCallReturnsCachedResult(t *testing.T) {
	gw := &mockGateway{
		payload: threeQuestionPayload(t, 41),
		submit:  &models.SubmitResult{TotalScore: 7},
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	first, err := h.service.Submit(ctx, 41)
	require.NoError(t, err)
	second, err := h.service.Submit(ctx, 41)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, gw.submitCalls, "a finalized attempt is never re-submitted")
}

func TestSubmit_BlocksFurtherCaptureAndNavigation(t *testing.T) {
	gw := &mockGateway{payload: threeQuestionPayload(t, 42)}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)
	_, err = h.service.Submit(ctx, 42)
	require.NoError(t, err)

	_, err = h.service.Capture(ctx, 42, &CaptureRequest{QuestionID: 1, Action: "select", OptionID: 11})
	assert.ErrorIs(t, err, ErrSessionSubmitted)

	_, err = h.service.Navigate(ctx, 42, &NavigateRequest{Direction: "next"})
	assert.ErrorIs(t, err, ErrSessionSubmitted)
}

// ===== EXPIRY =====

func TestExpiredResume_AutoSubmitsExactlyOnce(t *testing.T) {
	// The attempt window closed while the client was away: the end
	// instant is in the past relative to the embedded duration.
	minutes := 10
	payload := threeQuestionPayload(t, 50)
	payload.StartedAt = time.Now().Add(-time.Hour)
	payload.DurationMinutes = &minutes
	gw := &mockGateway{
		payload: payload,
		submit:  &models.SubmitResult{TotalScore: 2},
	}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Resume(ctx, 50)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, err := h.service.State(ctx, 50)
		return err == nil && state.Submitted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, gw.submitCalls)

	var autoSubmitted, expired int
	for _, event := range h.events.PublishedEvents() {
		switch event.Type {
		case events.EventAttemptExpired:
			expired++
		case events.EventAttemptSubmitted:
			autoSubmitted++
		}
	}
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, autoSubmitted)
}

func TestManualSubmitBeforeExpiry_TimerCannotDoubleSubmit(t *testing.T) {
	minutes := 30
	payload := threeQuestionPayload(t, 51)
	payload.DurationMinutes = &minutes
	gw := &mockGateway{payload: payload, submit: &models.SubmitResult{}}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	_, err = h.service.Submit(ctx, 51)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.submitCalls)
}

// ===== TEARDOWN =====

func TestClose_TearsDownSession(t *testing.T) {
	gw := &mockGateway{payload: threeQuestionPayload(t, 60)}
	h := newTestHarness(gw)
	defer h.service.Shutdown()

	ctx := context.Background()
	_, err := h.service.Start(ctx, 500, true)
	require.NoError(t, err)

	require.NoError(t, h.service.Close(60))

	_, err = h.service.State(ctx, 60)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, h.service.Close(60), ErrSessionNotFound)
}
