package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edupath/attempt-engine/internal/cache"
	"github.com/edupath/attempt-engine/internal/events"
	"github.com/edupath/attempt-engine/internal/gateway"
	"github.com/edupath/attempt-engine/internal/journal"
	"github.com/edupath/attempt-engine/internal/models"
	"github.com/edupath/attempt-engine/internal/utils"
)

// ===== ATTEMPT SESSION CONTROLLER =====
//
// Orchestrates start vs resume vs force-new, owns the current question
// index and the answer store, and drives submission. One session per
// attempt; each session serializes its own mutations, so a late timer
// tick and a manual submit cannot both finalize the attempt.

const quizMetaCacheTTL = 10 * time.Minute

// AnswerSaver is the fire-and-forget persistence channel for captured
// answers.
type AnswerSaver interface {
	Enqueue(ctx context.Context, attemptID, questionID int64, value any) error
}

// CaptureRequest is one user interaction against a question.
type CaptureRequest struct {
	QuestionID int64  `json:"question_id" validate:"required"`
	Action     string `json:"action" validate:"required,answer_action"`
	OptionID   int64  `json:"option_id,omitempty"`
	Slot       int    `json:"slot,omitempty" validate:"gte=0"`
	Text       string `json:"text,omitempty"`
	Index      int    `json:"index,omitempty" validate:"gte=0"`
}

// NavigateRequest moves between questions.
type NavigateRequest struct {
	Direction string `json:"direction" validate:"required,nav_direction"`
}

// AdvanceOutcome is the result of a navigation: either the index
// moved, or the end of the quiz was reached and submission is pending
// confirmation (or already done, when every question was answered).
type AdvanceOutcome struct {
	Moved         bool                  `json:"moved"`
	Index         int                   `json:"index"`
	ConfirmSubmit bool                  `json:"confirm_submit"`
	AnsweredCount int                   `json:"answered_count"`
	QuestionCount int                   `json:"question_count"`
	Result        *models.AttemptResult `json:"result,omitempty"`
}

// QuestionView is the render payload for one question, including the
// transient editor state the client needs.
type QuestionView struct {
	Question     models.Question `json:"question"`
	Answer       any             `json:"answer,omitempty"`
	BlankCount   int             `json:"blank_count,omitempty"`
	WorkingOrder []int64         `json:"working_order,omitempty"`
	LeftOptions  []models.Option `json:"left_options,omitempty"`
	RightOptions []models.Option `json:"right_options,omitempty"`
	MatchedPairs map[int64]int64 `json:"matched_pairs,omitempty"`
	PendingLeft  *int64          `json:"pending_left,omitempty"`
	MatchedCount int             `json:"matched_count"`
	MatchTotal   int             `json:"match_total"`
	IsFirst      bool            `json:"is_first"`
	IsLast       bool            `json:"is_last"`
}

// SessionState is the client-facing snapshot of a session.
type SessionState struct {
	AttemptID     int64                 `json:"attempt_id"`
	QuizID        int64                 `json:"quiz_id"`
	Index         int                   `json:"index"`
	QuestionCount int                   `json:"question_count"`
	AnsweredCount int                   `json:"answered_count"`
	Timer         models.TimerSnapshot  `json:"timer"`
	Submitted     bool                  `json:"submitted"`
	Question      *QuestionView         `json:"question,omitempty"`
	Result        *models.AttemptResult `json:"result,omitempty"`
}

// SessionService is the engine's public surface.
type SessionService interface {
	Start(ctx context.Context, quizID int64, forceNew bool) (*SessionState, error)
	Resume(ctx context.Context, attemptID int64) (*SessionState, error)
	State(ctx context.Context, attemptID int64) (*SessionState, error)
	Capture(ctx context.Context, attemptID int64, req *CaptureRequest) (*SessionState, error)
	Navigate(ctx context.Context, attemptID int64, req *NavigateRequest) (*AdvanceOutcome, error)
	Submit(ctx context.Context, attemptID int64) (*models.AttemptResult, error)
	Close(attemptID int64) error
	Shutdown()
}

// SessionServiceDeps wires the controller's collaborators. Events,
// Journal and Cache may be their no-op/mock/nil variants.
type SessionServiceDeps struct {
	Gateway   gateway.Client
	Saver     AnswerSaver
	Events    events.EventPublisher
	Journal   journal.Recorder
	Cache     cache.CacheService
	Logger    utils.Logger
	Validator *utils.Validator
}

type attemptSession struct {
	mu        sync.Mutex
	attemptID int64
	quizID    int64
	questions []models.Question
	store     *AnswerStore
	timer     *AttemptTimer
	index     int
	submitted bool
	autoStop  bool // set when expiry, not the user, triggered the submit
	result    *models.AttemptResult
}

type sessionService struct {
	gateway   gateway.Client
	saver     AnswerSaver
	events    events.EventPublisher
	journal   journal.Recorder
	cache     cache.CacheService
	logger    utils.Logger
	validator *utils.Validator

	mu       sync.RWMutex
	sessions map[int64]*attemptSession
}

// NewSessionService creates the attempt session controller.
func NewSessionService(deps SessionServiceDeps) SessionService {
	return &sessionService{
		gateway:   deps.Gateway,
		saver:     deps.Saver,
		events:    deps.Events,
		journal:   deps.Journal,
		cache:     deps.Cache,
		logger:    deps.Logger,
		validator: deps.Validator,
		sessions:  make(map[int64]*attemptSession),
	}
}

// ===== START / RESUME =====

func (s *sessionService) Start(ctx context.Context, quizID int64, forceNew bool) (*SessionState, error) {
	s.logger.Info("Starting quiz attempt", "quiz_id", quizID, "force_new", forceNew)

	if !forceNew {
		active, err := s.gateway.CheckActiveAttempt(ctx, quizID)
		if err != nil {
			// Best-effort degrade: a failed check never blocks starting.
			s.logger.Warn("Active-attempt check failed, starting anyway",
				"quiz_id", quizID, "error", err)
		} else if active.HasActiveAttempt {
			s.logger.Info("Active attempt found, resuming instead",
				"quiz_id", quizID, "attempt_id", active.AttemptID)
			return s.Resume(ctx, active.AttemptID)
		}
	}

	payload, err := s.gateway.StartAttempt(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	if payload.QuizID == 0 {
		payload.QuizID = quizID
	}

	return s.buildSession(ctx, payload, false)
}

func (s *sessionService) Resume(ctx context.Context, attemptID int64) (*SessionState, error) {
	s.logger.Info("Resuming quiz attempt", "attempt_id", attemptID)

	payload, err := s.gateway.ResumeAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResumeFailed, err)
	}

	return s.buildSession(ctx, payload, true)
}

func (s *sessionService) buildSession(ctx context.Context, payload *models.AttemptPayload, resumed bool) (*SessionState, error) {
	questions := NormalizeSections(payload.Sections)
	if len(questions) == 0 {
		return nil, ErrQuizEmpty
	}

	store := NewAnswerStore(questions)
	if resumed {
		store.Seed(SavedAnswers(payload.Sections))
	}

	duration := s.resolveDuration(ctx, payload)

	sess := &attemptSession{
		attemptID: payload.AttemptID,
		quizID:    payload.QuizID,
		questions: questions,
		store:     store,
	}
	attemptID := payload.AttemptID
	sess.timer = NewAttemptTimer(func() { s.handleExpiry(attemptID) })

	s.mu.Lock()
	if old, ok := s.sessions[attemptID]; ok {
		old.timer.Stop()
	}
	s.sessions[attemptID] = sess
	s.mu.Unlock()

	// Registered before the first tick: a resume past the end instant
	// expires (and auto-submits) immediately.
	if duration > 0 {
		sess.timer.Start(payload.StartedAt, duration)
	}

	eventType := events.EventAttemptStarted
	journalEvent := "started"
	if resumed {
		eventType = events.EventAttemptResumed
		journalEvent = "resumed"
	}
	s.publish(ctx, events.NewAttemptEvent(eventType, events.AttemptStartedEvent{
		AttemptID:     attemptID,
		QuizID:        payload.QuizID,
		QuestionCount: len(questions),
		Timed:         duration > 0,
		Resumed:       resumed,
	}))
	s.record(ctx, sess, journalEvent, map[string]any{
		"question_count": len(questions),
		"answered_count": store.AnsweredCount(),
		"timed":          duration > 0,
	})

	s.logger.Info("Attempt session ready",
		"attempt_id", attemptID,
		"quiz_id", payload.QuizID,
		"question_count", len(questions),
		"resumed", resumed,
		"timed", duration > 0)

	return s.snapshot(sess), nil
}

// resolveDuration resolves the attempt duration: embedded minutes
// first, then the server-issued end instant, then the secondary quiz
// meta lookup. A failed lookup degrades the attempt to untimed.
func (s *sessionService) resolveDuration(ctx context.Context, payload *models.AttemptPayload) time.Duration {
	if payload.DurationMinutes != nil && *payload.DurationMinutes > 0 {
		return time.Duration(*payload.DurationMinutes) * time.Minute
	}
	if payload.EndTime != nil {
		if d := payload.EndTime.Sub(payload.StartedAt); d > 0 {
			return d
		}
	}
	if payload.QuizID == 0 {
		return 0
	}

	key := fmt.Sprintf("quiz:%d:meta", payload.QuizID)
	if s.cache != nil {
		var meta models.QuizMeta
		if err := s.cache.Get(ctx, key, &meta); err == nil && meta.DurationMinutes != nil {
			return time.Duration(*meta.DurationMinutes) * time.Minute
		}
	}

	meta, err := s.gateway.GetQuizMeta(ctx, payload.QuizID)
	if err != nil {
		s.logger.Warn("Duration lookup failed, attempt runs untimed",
			"quiz_id", payload.QuizID, "error", err)
		return 0
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, meta, quizMetaCacheTTL); err != nil {
			s.logger.Warn("Quiz meta cache write failed", "quiz_id", payload.QuizID, "error", err)
		}
	}
	if meta.DurationMinutes == nil || *meta.DurationMinutes <= 0 {
		return 0
	}
	return time.Duration(*meta.DurationMinutes) * time.Minute
}

// ===== ANSWER CAPTURE =====

func (s *sessionService) Capture(ctx context.Context, attemptID int64, req *CaptureRequest) (*SessionState, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	sess, err := s.session(attemptID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.submitted {
		return nil, ErrSessionSubmitted
	}

	var wire any
	var changed bool
	switch req.Action {
	case "select":
		wire, changed = sess.store.SelectOption(req.QuestionID, req.OptionID)
	case "toggle":
		wire, changed = sess.store.ToggleOption(req.QuestionID, req.OptionID)
	case "blank":
		wire, changed = sess.store.SetBlank(req.QuestionID, req.Slot, req.Text)
	case "match_left":
		wire, changed = sess.store.SelectMatchLeft(req.QuestionID, req.OptionID)
	case "match_right":
		wire, changed = sess.store.SelectMatchRight(req.QuestionID, req.OptionID)
	case "unmatch":
		wire, changed = sess.store.RemoveMatch(req.QuestionID, req.OptionID)
	case "move_up":
		wire, changed = sess.store.MoveUp(req.QuestionID, req.Index)
	case "move_down":
		wire, changed = sess.store.MoveDown(req.QuestionID, req.Index)
	}

	if changed {
		// Fire-and-forget: the local store is already authoritative,
		// a dropped save only risks one keystroke-level update.
		if err := s.saver.Enqueue(ctx, attemptID, req.QuestionID, wire); err != nil {
			s.logger.Warn("Answer save enqueue failed",
				"attempt_id", attemptID,
				"question_id", req.QuestionID,
				"error", err)
		}
	}

	return s.snapshotLocked(sess), nil
}

// ===== NAVIGATION =====

func (s *sessionService) Navigate(ctx context.Context, attemptID int64, req *NavigateRequest) (*AdvanceOutcome, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	sess, err := s.session(attemptID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.submitted {
		sess.mu.Unlock()
		return nil, ErrSessionSubmitted
	}

	answered := sess.store.AnsweredCount()
	total := len(sess.questions)
	outcome := &AdvanceOutcome{
		Index:         sess.index,
		AnsweredCount: answered,
		QuestionCount: total,
	}

	switch req.Direction {
	case "previous":
		if sess.index > 0 {
			sess.index--
			outcome.Moved = true
		}
		outcome.Index = sess.index
		sess.mu.Unlock()
		return outcome, nil

	case "next":
		if sess.index < total-1 {
			sess.index++
			outcome.Moved = true
			outcome.Index = sess.index
			sess.mu.Unlock()
			return outcome, nil
		}
		sess.mu.Unlock()

		if answered < total {
			// Incomplete attempt: the client must confirm before submit.
			outcome.ConfirmSubmit = true
			return outcome, nil
		}
		result, err := s.Submit(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		outcome.Result = result
		return outcome, nil
	}

	sess.mu.Unlock()
	return outcome, nil
}

// ===== SUBMIT =====

func (s *sessionService) Submit(ctx context.Context, attemptID int64) (*models.AttemptResult, error) {
	sess, err := s.session(attemptID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.submitted {
		return sess.result, nil
	}

	// Always first: a stopped timer cannot fire a duplicate
	// auto-submit while this one is in flight.
	sess.timer.Stop()

	submitted, err := s.gateway.SubmitAttempt(ctx, attemptID)
	if err != nil {
		s.logger.LogError(err, "Attempt submit failed", "attempt_id", attemptID)
		// Session stays alive so the user can retry with answers intact.
		return nil, NewSubmitError(attemptID, err)
	}

	result := &models.AttemptResult{
		AttemptID:        attemptID,
		TotalScore:       submitted.TotalScore,
		Passed:           submitted.IsPassed,
		Percentage:       submitted.Percentage,
		TimeSpentSeconds: submitted.TimeSpentSeconds,
		ScoresByQuestion: submitted.ScoresByQuestion,
		CorrectCount:     countPositive(submitted.ScoresByQuestion),
	}
	sess.submitted = true
	sess.result = result

	s.publish(ctx, events.NewAttemptEvent(events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
		AttemptID:        attemptID,
		QuizID:           sess.quizID,
		AnsweredCount:    sess.store.AnsweredCount(),
		QuestionCount:    len(sess.questions),
		TotalScore:       result.TotalScore,
		Passed:           result.Passed,
		TimeSpentSeconds: result.TimeSpentSeconds,
		AutoSubmitted:    sess.autoStop,
	}))
	s.record(ctx, sess, "submitted", map[string]any{
		"total_score":    result.TotalScore,
		"passed":         result.Passed,
		"percentage":     result.Percentage,
		"auto_submitted": sess.autoStop,
	})

	s.logger.Info("Attempt submitted",
		"attempt_id", attemptID,
		"total_score", result.TotalScore,
		"passed", result.Passed,
		"auto", sess.autoStop)

	return result, nil
}

// handleExpiry is the timer's one-shot expiry action: record the
// timeout and auto-submit.
func (s *sessionService) handleExpiry(attemptID int64) {
	s.logger.Info("Attempt time expired, auto-submitting", "attempt_id", attemptID)

	sess, err := s.session(attemptID)
	if err != nil {
		return
	}
	sess.mu.Lock()
	sess.autoStop = true
	quizID := sess.quizID
	sess.mu.Unlock()

	ctx := context.Background()
	s.publish(ctx, events.NewAttemptEvent(events.EventAttemptExpired, events.AttemptExpiredEvent{
		AttemptID: attemptID,
		QuizID:    quizID,
		ExpiredAt: time.Now(),
	}))
	s.record(ctx, sess, "expired", nil)

	if _, err := s.Submit(ctx, attemptID); err != nil {
		s.logger.LogError(err, "Auto-submit after expiry failed", "attempt_id", attemptID)
	}
}

// ===== STATE / TEARDOWN =====

func (s *sessionService) State(ctx context.Context, attemptID int64) (*SessionState, error) {
	sess, err := s.session(attemptID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(sess), nil
}

// Close tears the session down locally. The attempt itself is not
// finalized upstream; the next visit re-resolves it through the
// active-attempt check.
func (s *sessionService) Close(attemptID int64) error {
	s.mu.Lock()
	sess, ok := s.sessions[attemptID]
	if ok {
		delete(s.sessions, attemptID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.timer.Stop()
	s.logger.Info("Attempt session closed", "attempt_id", attemptID)
	return nil
}

// Shutdown stops every session timer; used on process exit.
func (s *sessionService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.timer.Stop()
		delete(s.sessions, id)
	}
}

// ===== HELPERS =====

func (s *sessionService) session(attemptID int64) (*attemptSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[attemptID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *sessionService) snapshot(sess *attemptSession) *SessionState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.snapshotLocked(sess)
}

func (s *sessionService) snapshotLocked(sess *attemptSession) *SessionState {
	state := &SessionState{
		AttemptID:     sess.attemptID,
		QuizID:        sess.quizID,
		Index:         sess.index,
		QuestionCount: len(sess.questions),
		AnsweredCount: sess.store.AnsweredCount(),
		Timer:         sess.timer.Snapshot(),
		Submitted:     sess.submitted,
		Result:        sess.result,
	}
	if sess.index >= 0 && sess.index < len(sess.questions) {
		state.Question = s.questionView(sess, sess.index)
	}
	return state
}

func (s *sessionService) questionView(sess *attemptSession, index int) *QuestionView {
	q := sess.questions[index]
	view := &QuestionView{
		Question: q,
		IsFirst:  index == 0,
		IsLast:   index == len(sess.questions)-1,
	}
	if value, ok := sess.store.Value(q.ID); ok {
		view.Answer = value.Wire()
	}

	switch q.Type.Effective() {
	case models.FillBlank:
		view.BlankCount = q.BlankCount()
	case models.Ordering:
		view.WorkingOrder = sess.store.WorkingOrder(q.ID)
	case models.Matching:
		view.LeftOptions, view.RightOptions = q.MatchingPartition()
		view.MatchedPairs = sess.store.MatchedPairs(q.ID)
		view.MatchedCount, view.MatchTotal = sess.store.MatchingProgress(q.ID)
		if pending, ok := sess.store.PendingLeft(q.ID); ok {
			view.PendingLeft = &pending
		}
	}
	return view
}

func (s *sessionService) publish(ctx context.Context, event *events.AttemptEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishAttemptEvent(ctx, event); err != nil {
		s.logger.Warn("Event publish failed", "event_type", event.Type, "error", err)
	}
}

func (s *sessionService) record(ctx context.Context, sess *attemptSession, event string, payload map[string]any) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, sess.attemptID, sess.quizID, event, payload); err != nil {
		s.logger.Warn("Journal write failed", "attempt_id", sess.attemptID, "event", event, "error", err)
	}
}

func countPositive(scores map[int64]float64) int {
	n := 0
	for _, score := range scores {
		if score > 0 {
			n++
		}
	}
	return n
}
