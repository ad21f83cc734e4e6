package learning

import (
	"math/rand"
	"sync"

	"github.com/opsforge/remedy-engine/internal/models"
)

// Agent is a tabular Q-learning agent over discretized states. The table is
// an explicit two-level map with a get-or-default accessor: reads never
// materialize entries, so lookups cannot silently grow the table.
type Agent struct {
	mu sync.RWMutex
	q  map[string]map[string]float64

	learningRate   float64
	discountFactor float64

	// The RNG carries mutable internal state, so it gets its own lock;
	// concurrent SelectAction calls share the table read lock.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// QSnapshot is the persistence form of a Q-table. Sparse tables (not every
// state×action pair populated) round-trip without error.
type QSnapshot struct {
	Values         map[string]map[string]float64 `json:"q_values"`
	LearningRate   float64                       `json:"learning_rate"`
	DiscountFactor float64                       `json:"discount_factor"`
}

// NewAgent constructs an agent. rng may be nil, in which case a time-seeded
// source is used; tests inject a deterministic one.
func NewAgent(learningRate, discountFactor float64, rng *rand.Rand) *Agent {
	if learningRate <= 0 || learningRate > 1 {
		learningRate = 0.1
	}
	if discountFactor < 0 || discountFactor >= 1 {
		discountFactor = 0.9
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Agent{
		q:              make(map[string]map[string]float64),
		learningRate:   learningRate,
		discountFactor: discountFactor,
		rng:            rng,
	}
}

// QValue returns Q(state, action), defaulting to 0.0 until observed.
func (a *Agent) QValue(state, action string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.q[state][action]
}

// SelectAction picks epsilon-greedily from actions: with probability
// explorationRate a uniform random action, otherwise the Q-maximizing one.
// Ties break by first occurrence in actions.
func (a *Agent) SelectAction(state string, actions []string, explorationRate float64) string {
	if len(actions) == 0 {
		return ""
	}

	a.rngMu.Lock()
	explore := a.rng.Float64() < explorationRate
	pick := 0
	if explore {
		pick = a.rng.Intn(len(actions))
	}
	a.rngMu.Unlock()
	if explore {
		return actions[pick]
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	best := actions[0]
	bestValue := a.q[state][best]
	for _, action := range actions[1:] {
		if value := a.q[state][action]; value > bestValue {
			best = action
			bestValue = value
		}
	}
	return best
}

// UpdateQ applies one tabular Q-learning step:
//
//	Q(s,a) += lr * (reward + discount * max_a' Q(s',a') - Q(s,a))
//
// A next state with no known actions contributes a max of 0.
func (a *Agent) UpdateQ(state, action string, reward float64, nextState string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	nextMax := 0.0
	first := true
	for _, value := range a.q[nextState] {
		if first || value > nextMax {
			nextMax = value
			first = false
		}
	}

	row, ok := a.q[state]
	if !ok {
		row = make(map[string]float64)
		a.q[state] = row
	}
	current := row[action]
	row[action] = current + a.learningRate*(reward+a.discountFactor*nextMax-current)
}

// CalculateReward shapes the scalar learning signal from an outcome. The sum
// is purely additive and unclamped; callers must not assume a bounded range.
func (a *Agent) CalculateReward(outcome models.ActionOutcome) float64 {
	reward := -5.0
	if outcome.Success {
		reward = 10.0
	}
	reward += 2.0 * outcome.SystemImprovement
	reward += 1.5 * outcome.UserSatisfaction
	reward -= 0.5 * outcome.ActionCost
	return reward
}

// ActionRecommendations returns a per-action confidence computed by min-max
// normalizing Q(state, ·) across the offered actions. When all values are
// equal (including a single action), confidence is 0.5.
func (a *Agent) ActionRecommendations(state string, actions []string) map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	confidences := make(map[string]float64, len(actions))
	if len(actions) == 0 {
		return confidences
	}

	min := a.q[state][actions[0]]
	max := min
	for _, action := range actions[1:] {
		value := a.q[state][action]
		if value < min {
			min = value
		}
		if value > max {
			max = value
		}
	}

	for _, action := range actions {
		if max == min {
			confidences[action] = 0.5
			continue
		}
		confidences[action] = (a.q[state][action] - min) / (max - min)
	}
	return confidences
}

// Snapshot dumps the full table for persistence.
func (a *Agent) Snapshot() QSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	values := make(map[string]map[string]float64, len(a.q))
	for state, row := range a.q {
		copied := make(map[string]float64, len(row))
		for action, value := range row {
			copied[action] = value
		}
		values[state] = copied
	}
	return QSnapshot{
		Values:         values,
		LearningRate:   a.learningRate,
		DiscountFactor: a.discountFactor,
	}
}

// Restore replaces the table from a snapshot.
func (a *Agent) Restore(snap QSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.q = make(map[string]map[string]float64, len(snap.Values))
	for state, row := range snap.Values {
		copied := make(map[string]float64, len(row))
		for action, value := range row {
			copied[action] = value
		}
		a.q[state] = copied
	}
	if snap.LearningRate > 0 && snap.LearningRate <= 1 {
		a.learningRate = snap.LearningRate
	}
	if snap.DiscountFactor >= 0 && snap.DiscountFactor < 1 {
		a.discountFactor = snap.DiscountFactor
	}
}
