package fsrs

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ogorman/cardbox/internal/domain"
)

// Engine computes spaced-repetition schedule updates using the FSRS-6 model.
type Engine struct {
	p      Params
	decay  float64 // -w[20]
	factor float64 // 0.9^(1/decay) - 1
	rng    *rand.Rand
}

// New creates an Engine from the given params.
func New(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	decay := -p.Weights[20]
	return &Engine{
		p:      p,
		decay:  decay,
		factor: math.Pow(0.9, 1.0/decay) - 1.0,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// NewSchedule initializes an empty schedule: due immediately, state New.
func (e *Engine) NewSchedule(now time.Time) domain.Schedule {
	return domain.Schedule{
		Due:   now,
		State: domain.New,
	}
}

// Outcome is the result of reviewing a schedule with one particular rating.
type Outcome struct {
	Schedule     domain.Schedule
	IntervalDays int
	Due          time.Time
}

// Review computes the schedule that follows a review graded r at instant now.
// It derives a candidate outcome for every rating and selects the one
// matching r. The input schedule is not mutated.
//
// It returns an error only for a corrupt stored state or a non-gradable
// rating; those are data-integrity failures, not retryable ones.
func (e *Engine) Review(s domain.Schedule, r domain.Rating, now time.Time) (domain.Schedule, error) {
	options, err := e.Preview(s, now)
	if err != nil {
		return domain.Schedule{}, err
	}
	out, ok := options[r]
	if !ok {
		return domain.Schedule{}, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(r))
	}
	return out.Schedule, nil
}

// Preview returns the outcome of reviewing the schedule with each possible
// rating, without mutating anything. Callers use it to show "if you rate
// this Easy, next review in 9 days".
func (e *Engine) Preview(s domain.Schedule, now time.Time) (map[domain.Rating]Outcome, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	options := make(map[domain.Rating]Outcome, 4)
	for _, r := range []domain.Rating{domain.Again, domain.Hard, domain.Good, domain.Easy} {
		next := e.next(s, r, now)
		options[r] = Outcome{
			Schedule:     next,
			IntervalDays: next.ScheduledDays,
			Due:          next.Due,
		}
	}
	return options, nil
}

// Retrievability returns the probability of recall at instant now, or 0 for
// a card that has never been reviewed.
func (e *Engine) Retrievability(s domain.Schedule, now time.Time) float64 {
	if s.LastReview == nil || s.Stability <= 0 {
		return 0
	}
	elapsed := now.Sub(*s.LastReview).Hours() / 24.0
	return e.retrievability(elapsed, s.Stability)
}

// next computes the candidate schedule for a single rating.
func (e *Engine) next(s domain.Schedule, r domain.Rating, now time.Time) domain.Schedule {
	c := s

	var elapsed float64
	if c.LastReview != nil {
		elapsed = now.Sub(*c.LastReview).Hours() / 24.0
		if elapsed < 0 {
			elapsed = 0
		}
	}

	e.updateMemory(&c, r, elapsed)
	interval := e.transition(&c, r)

	if !e.p.DisableFuzz && c.State == domain.Review {
		if days := int(interval.Hours() / 24.0); days > 0 {
			interval = time.Duration(applyFuzz(days, e.p.MaximumInterval, e.rng)) * 24 * time.Hour
		}
	}

	reviewedAt := now
	c.ElapsedDays = int(elapsed)
	c.ScheduledDays = int(interval.Hours() / 24.0)
	c.Reps++
	c.LastReview = &reviewedAt
	c.Due = now.Add(interval)
	return c
}

// updateMemory updates stability and difficulty for the review.
func (e *Engine) updateMemory(c *domain.Schedule, r domain.Rating, elapsed float64) {
	if c.State == domain.New || c.Stability <= 0 {
		// First review: initialize the memory state.
		c.Stability = e.initStability(r)
		c.Difficulty = e.initDifficulty(r, true)
		return
	}
	if elapsed < 1 {
		// Same-day review.
		c.Stability = e.shortTermStability(c.Stability, r)
	} else {
		ret := e.retrievability(elapsed, c.Stability)
		c.Stability = e.nextStability(c.Difficulty, c.Stability, ret, r)
	}
	c.Difficulty = e.nextDifficulty(c.Difficulty, r)
}

// transition applies the state machine and returns the raw interval.
func (e *Engine) transition(c *domain.Schedule, r domain.Rating) time.Duration {
	switch c.State {
	case domain.New:
		// A remembered first review graduates immediately; a failed one
		// drops the card into the learning steps.
		if r.IsCorrect() {
			return e.graduate(c)
		}
		c.State = domain.Learning
		c.LearningStep = 0
		return e.transitionLearning(c, r, e.p.LearningSteps)
	case domain.Learning:
		return e.transitionLearning(c, r, e.p.LearningSteps)
	case domain.Relearning:
		return e.transitionLearning(c, r, e.p.RelearningSteps)
	default:
		return e.transitionReview(c, r)
	}
}

// transitionLearning walks the Learning/Relearning steps.
func (e *Engine) transitionLearning(c *domain.Schedule, r domain.Rating, steps []time.Duration) time.Duration {
	step := c.LearningStep

	if len(steps) == 0 || (step >= len(steps) && r != domain.Again) {
		return e.graduate(c)
	}

	switch r {
	case domain.Again:
		c.LearningStep = 0
		return steps[0]

	case domain.Hard:
		// Hard repeats the current step, stretched when there is no next one.
		if step == 0 && len(steps) == 1 {
			return time.Duration(float64(steps[0]) * 1.5)
		}
		if step == 0 && len(steps) >= 2 {
			return (steps[0] + steps[1]) / 2
		}
		return steps[step]

	case domain.Good:
		next := step + 1
		if next >= len(steps) {
			return e.graduate(c)
		}
		c.LearningStep = next
		return steps[next]

	default: // Easy graduates immediately.
		return e.graduate(c)
	}
}

// transitionReview handles a card already in the long-term review cycle.
// Any rating below Good is a lapse: the lapse counter increments and the
// card is forced into Relearning.
func (e *Engine) transitionReview(c *domain.Schedule, r domain.Rating) time.Duration {
	if !r.IsCorrect() {
		c.Lapses++
		c.State = domain.Relearning
		c.LearningStep = 0
		if len(e.p.RelearningSteps) > 0 {
			return e.p.RelearningSteps[0]
		}
		return e.intervalFor(c.Stability)
	}
	c.LearningStep = 0
	return e.intervalFor(c.Stability)
}

// graduate moves a card out of its steps into the Review state.
func (e *Engine) graduate(c *domain.Schedule) time.Duration {
	c.State = domain.Review
	c.LearningStep = 0
	return e.intervalFor(c.Stability)
}

func (e *Engine) intervalFor(stability float64) time.Duration {
	return time.Duration(e.nextInterval(stability)) * 24 * time.Hour
}

// retrievability computes R(t, S) = (1 + factor * t / S) ^ decay.
func (e *Engine) retrievability(elapsed, stability float64) float64 {
	return math.Pow(1+e.factor*elapsed/stability, e.decay)
}

// initStability returns S0(G) = clampS(w[G-1]).
func (e *Engine) initStability(r domain.Rating) float64 {
	return clampS(e.p.Weights[r-1])
}

// initDifficulty returns D0(G) = w[4] - e^(w[5]*(G-1)) + 1.
func (e *Engine) initDifficulty(r domain.Rating, clamp bool) float64 {
	d := e.p.Weights[4] - math.Exp(e.p.Weights[5]*float64(r-1)) + 1
	if clamp {
		return clampD(d)
	}
	return d
}

// nextInterval computes the next review interval in days, clamped to
// [1, MaximumInterval].
func (e *Engine) nextInterval(stability float64) int {
	ivl := stability / e.factor * (math.Pow(e.p.DesiredRetention, 1.0/e.decay) - 1)
	days := int(math.Round(ivl))
	if days < 1 {
		days = 1
	}
	if days > e.p.MaximumInterval {
		days = e.p.MaximumInterval
	}
	return days
}

// shortTermStability computes the same-day stability update.
func (e *Engine) shortTermStability(stability float64, r domain.Rating) float64 {
	inc := math.Exp(e.p.Weights[17]*(float64(r)-3+e.p.Weights[18])) * math.Pow(stability, -e.p.Weights[19])
	if r == domain.Good || r == domain.Easy {
		inc = math.Max(inc, 1.0)
	}
	return clampS(stability * inc)
}

// nextDifficulty applies linear damping and mean reversion toward D0(Easy).
func (e *Engine) nextDifficulty(difficulty float64, r domain.Rating) float64 {
	deltaD := -e.p.Weights[6] * (float64(r) - 3)
	dPrime := difficulty + (10-difficulty)*deltaD/9
	d0Easy := e.initDifficulty(domain.Easy, false)
	return clampD(e.p.Weights[7]*d0Easy + (1-e.p.Weights[7])*dPrime)
}

// nextStability dispatches on recall vs forget.
func (e *Engine) nextStability(d, s, ret float64, r domain.Rating) float64 {
	if r == domain.Again {
		return e.nextForgetStability(d, s, ret)
	}
	return e.nextRecallStability(d, s, ret, r)
}

// nextRecallStability computes stability after a successful recall.
func (e *Engine) nextRecallStability(d, s, ret float64, r domain.Rating) float64 {
	hardPenalty := 1.0
	if r == domain.Hard {
		hardPenalty = e.p.Weights[15]
	}
	easyBonus := 1.0
	if r == domain.Easy {
		easyBonus = e.p.Weights[16]
	}
	return clampS(s * (1 + math.Exp(e.p.Weights[8])*
		(11-d)*
		math.Pow(s, -e.p.Weights[9])*
		(math.Exp((1-ret)*e.p.Weights[10])-1)*
		hardPenalty*easyBonus))
}

// nextForgetStability computes stability after forgetting.
func (e *Engine) nextForgetStability(d, s, ret float64) float64 {
	long := e.p.Weights[11] *
		math.Pow(d, -e.p.Weights[12]) *
		(math.Pow(s+1, e.p.Weights[13]) - 1) *
		math.Exp((1-ret)*e.p.Weights[14])
	short := s / math.Exp(e.p.Weights[17]*e.p.Weights[18])
	return clampS(math.Min(long, short))
}

func clampS(s float64) float64 {
	return math.Max(s, 0.001)
}

func clampD(d float64) float64 {
	return math.Min(math.Max(d, 1), 10)
}
