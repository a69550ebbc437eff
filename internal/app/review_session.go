package app

import (
	"math/rand"
	"sync"
	"time"

	"mapquiz-service/internal/domain"
	"mapquiz-service/internal/geo"
	"mapquiz-service/internal/srs"
)

// significantQueueSize is the seeded-queue size above which clearing the
// backlog earns the user a completion notice with session stats.
const significantQueueSize = 10

// HistoryWriter persists one answer. Implementations are expected to be
// fire-and-forget: the in-memory session state is the source of truth and the
// write must never block or fail the review flow.
type HistoryWriter interface {
	SaveAnswer(item domain.AnswerHistoryItem)
}

// HistoryWriterFunc adapts a function to the HistoryWriter interface.
type HistoryWriterFunc func(item domain.AnswerHistoryItem)

func (f HistoryWriterFunc) SaveAnswer(item domain.AnswerHistoryItem) { f(item) }

// ReviewSession is the bounded working set of questions being drilled in one
// visit: the merged question map, the session queue, the current question and
// the session stats. All state is owned here; nothing is ambient.
type ReviewSession struct {
	userID  string
	now     func() time.Time
	rnd     *rand.Rand
	history HistoryWriter

	mu        sync.Mutex
	questions map[int64]*domain.QuestionFeature
	order     []int64 // feature insertion order, for deterministic iteration

	queue  []int64 // session queue ids, insertion-ordered
	queued map[int64]struct{}

	current  int64
	awaiting bool // a question is displayed and not yet answered

	stats       domain.SessionStats
	significant bool // the seeded queue was a big backlog
}

// NewReviewSession merges the static feature collection with the user's
// answer history and seeds the session queue.
func NewReviewSession(userID string, collection domain.QuestionFeatureCollection, history []domain.AnswerHistoryItem, writer HistoryWriter) *ReviewSession {
	return NewReviewSessionWithClock(userID, collection, history, writer,
		time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewReviewSessionWithClock is test-only for deterministic timestamps and
// queue sampling.
func NewReviewSessionWithClock(userID string, collection domain.QuestionFeatureCollection, history []domain.AnswerHistoryItem, writer HistoryWriter, now func() time.Time, rnd *rand.Rand) *ReviewSession {
	s := &ReviewSession{
		userID:    userID,
		now:       now,
		rnd:       rnd,
		history:   writer,
		questions: make(map[int64]*domain.QuestionFeature),
		queued:    make(map[int64]struct{}),
	}

	historyByID := make(map[int64]domain.AnswerHistoryItem, len(history))
	for _, item := range history {
		historyByID[item.ID] = item
	}

	cutoff := srs.ReviewCutoff(now().UnixMilli())

	for _, feature := range collection.QuestionFeatures() {
		if item, ok := historyByID[feature.ID]; ok {
			feature = feature.WithProps(domain.QuestionProps{
				LastAskDate: item.LastAskDate,
				NextAskDate: item.NextAskDate,
				LastScore:   item.LastScore,
			})
		}

		if feature.NextAskDate != nil && *feature.NextAskDate < cutoff {
			s.enqueueLocked(feature.ID)
		}

		f := feature
		s.questions[f.ID] = &f
		s.order = append(s.order, f.ID)
	}

	if len(s.queue) == 0 {
		s.refillQueueLocked()
	} else if len(s.queue) > significantQueueSize {
		// Only worth congratulating the user if they had a real backlog.
		s.significant = true
	}

	return s
}

// UserID returns the opaque progress id this session belongs to.
func (s *ReviewSession) UserID() string {
	return s.userID
}

// NextQuestion selects the next question to display: a brand new question if
// the queue has one, else the question with the earliest next ask date. Ties
// go to the id queued first. ok is false when the queue is empty, which is a
// normal terminal state (nothing left to review right now), not an error.
func (s *ReviewSession) NextQuestion() (domain.QuestionFeature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *domain.QuestionFeature
	for _, id := range s.queue {
		question, ok := s.questions[id]
		if !ok {
			continue
		}
		if question.NextAskDate == nil {
			best = question
			break
		}
		if best == nil || *question.NextAskDate < *best.NextAskDate {
			best = question
		}
	}

	if best == nil {
		s.awaiting = false
		return domain.QuestionFeature{}, false
	}

	s.current = best.ID
	s.awaiting = true
	return *best, true
}

// Feature looks a question up by id, for resolving tap events.
func (s *ReviewSession) Feature(id int64) (domain.QuestionFeature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	question, ok := s.questions[id]
	if !ok {
		return domain.QuestionFeature{}, false
	}
	return *question, true
}

// Answer grades a tap against the current question, schedules the next
// review, updates the queue and stats, and hands the answer off for
// persistence. Duplicate events while no question awaits an answer return
// ErrNoActiveQuestion; callers treat that as a no-op.
func (s *ReviewSession) Answer(tap domain.TapEvent) (domain.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.awaiting {
		return domain.AnswerResult{}, domain.ErrNoActiveQuestion
	}

	current, ok := s.questions[s.current]
	if !ok {
		return domain.AnswerResult{}, domain.ErrNoActiveQuestion
	}

	var score float64
	switch {
	case tap.Feature == nil || tap.ClickCoords == nil:
		// No answer attempted.
		score = 0
	case tap.Feature.Name == current.Name:
		// Answer is exactly correct.
		score = 1
	default:
		// Base the score on how close the guess was.
		score = srs.AnswerScore(*tap.Feature, *current, *tap.ClickCoords)
	}

	nowMillis := s.now().UnixMilli()

	nextAskDate, err := srs.NextAskDate(*current, score, nowMillis)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	result := s.completeLocked(current, score, nextAskDate, nowMillis)
	result.Text = answerText(score, tap.Feature != nil)
	if score < 1 {
		if top, ok := geo.TopPoint(current.Geometry); ok {
			result.PopupPoint = &top
		}
	}
	return result, nil
}

// completeLocked is the queue-manager completion step: record the answer on
// the question, retire it when it is scheduled beyond the lookahead cutoff,
// and refill the queue from the unseen pool when it drains.
func (s *ReviewSession) completeLocked(current *domain.QuestionFeature, score float64, nextAskDate, nowMillis int64) domain.AnswerResult {
	// Only the first answer per question per session counts toward stats.
	if !current.AnsweredThisSession {
		switch {
		case score == 0:
			s.stats.Wrong++
		case score < 1:
			s.stats.Close++
		default:
			s.stats.Right++
		}
	}

	answered := true
	updated := current.WithProps(domain.QuestionProps{
		LastAskDate:         &nowMillis,
		LastScore:           &score,
		NextAskDate:         &nextAskDate,
		AnsweredThisSession: &answered, // never persisted
	})
	s.questions[updated.ID] = &updated

	s.history.SaveAnswer(updated.HistoryItem())

	result := domain.AnswerResult{
		Score:       score,
		NextReview:  srs.DateTimeAsWords(nextAskDate, nowMillis),
		NextAskDate: nextAskDate,
		CorrectID:   updated.ID,
		CorrectName: updated.Name,
	}

	if nextAskDate > srs.ReviewCutoff(nowMillis) {
		// Far enough in the future. Stop asking.
		s.dequeueLocked(updated.ID)

		if len(s.queue) == 0 {
			s.refillQueueLocked()

			if s.significant {
				s.significant = false
				stats := s.stats
				result.SessionComplete = true
				result.Stats = &stats
			}
		}
	}

	s.awaiting = false
	return result
}

// refillQueueLocked samples uniformly, without replacement, from the
// questions that have never been scheduled, up to the session size cap. The
// randomness is deliberate: it varies which unseen questions are introduced
// across sessions.
func (s *ReviewSession) refillQueueLocked() {
	pool := make([]int64, len(s.order))
	copy(pool, s.order)

	for len(s.queue) < srs.SessionSize && len(pool) > 0 {
		i := s.rnd.Intn(len(pool))
		id := pool[i]
		pool[i] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]

		question, ok := s.questions[id]
		if !ok || question.NextAskDate != nil {
			continue
		}
		s.enqueueLocked(id)
	}
}

func (s *ReviewSession) enqueueLocked(id int64) {
	if _, ok := s.queued[id]; ok {
		return
	}
	s.queued[id] = struct{}{}
	s.queue = append(s.queue, id)
}

func (s *ReviewSession) dequeueLocked(id int64) {
	if _, ok := s.queued[id]; !ok {
		return
	}
	delete(s.queued, id)
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
}

// QueueSize reports the current session queue length.
func (s *ReviewSession) QueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stats returns the session's first-answer score buckets.
func (s *ReviewSession) Stats() domain.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// PageStats summarizes the whole question set: due now, later, never seen.
func (s *ReviewSession) PageStats() domain.PageStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.PageStats{Now: len(s.queue)}
	for _, id := range s.order {
		question := s.questions[id]
		_, inQueue := s.queued[id]
		if question.NextAskDate == nil && !inQueue {
			stats.Unseen++
		}
	}
	stats.Later = len(s.order) - stats.Unseen - stats.Now
	return stats
}

// answerText buckets a score into the message shown to the user. attempted is
// whether a region was tapped at all.
func answerText(score float64, attempted bool) string {
	switch {
	case score == 1:
		return "Correct!"
	case score == 0 && attempted:
		return "Wrong."
	case score == 0:
		return "Now you know."
	case score < 0.6:
		return "Wrong, but could be wronger."
	case score < 0.8:
		return "Wrong, but close."
	default:
		return "Wrong, but very close!"
	}
}
