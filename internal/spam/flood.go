package spam

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/blake2b"

	"github.com/welldanyogia/feedback-forms/internal/feedback"
)

// FloodMessage is shown to submitters who exceed the flood limit.
const FloodMessage = "Too many submissions, please try again later."

type floodWindow struct {
	start time.Time
	count int
}

// FloodGuard rejects submissions from an address once it has sent Limit
// submissions inside Window. Addresses are kept hashed, in a bounded
// per-instance LRU.
type FloodGuard struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen *expirable.LRU[string, floodWindow]
}

// NewFloodGuard creates a guard tracking at most maxKeys addresses.
func NewFloodGuard(limit int, per time.Duration, maxKeys int) *FloodGuard {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &FloodGuard{
		limit:  limit,
		window: per,
		now:    time.Now,
		seen:   expirable.NewLRU[string, floodWindow](maxKeys, nil, per),
	}
}

// Classify implements feedback.SpamClassifier. Submissions without an IP
// are never limited.
func (g *FloodGuard) Classify(ctx context.Context, in feedback.ClassifyInput) (feedback.Verdict, error) {
	if g.limit <= 0 || in.Meta.IP == "" {
		return feedback.VerdictClean, nil
	}

	key := hashAddress(in.Meta.IP)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.seen.Get(key)
	if !ok || now.Sub(w.start) >= g.window {
		w = floodWindow{start: now}
	}
	w.count++
	g.seen.Add(key, w)

	if w.count > g.limit {
		return feedback.VerdictClean, &feedback.RejectionError{Message: FloodMessage}
	}
	return feedback.VerdictClean, nil
}

func hashAddress(ip string) string {
	sum := blake2b.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:16])
}
