package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// wordlist is the BIP39 English wordlist (2048 words).
// Two words plus a four-digit number gives 2048 × 2048 × 10000 ≈ 42 billion ids.
var wordlist = wordlists.English

// OrderExistsFunc reports how many orders already use id.
type OrderExistsFunc func(ctx context.Context, id string) (int64, error)

// OrderRefService generates unique, human-readable order ids of the form
// "word-word-number" (e.g., "apple-river-4821") that customers can read out
// to support.
type OrderRefService struct {
	exists OrderExistsFunc

	mu  sync.Mutex
	rng *rand.Rand
}

// NewOrderRefService creates an OrderRefService with its own random source.
func NewOrderRefService(exists OrderExistsFunc) *OrderRefService {
	return &OrderRefService{
		exists: exists,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate returns an id no existing order uses, retrying on collision.
// Returns an error if no unique id can be found after 100 attempts.
func (s *OrderRefService) Generate(ctx context.Context) (string, error) {
	maxAttempts := 100
	for i := 0; i < maxAttempts; i++ {
		ref := s.candidate()

		n, err := s.exists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("failed to check order id: %w", err)
		}

		if n == 0 {
			return ref, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique order id after %d attempts", maxAttempts)
}

func (s *OrderRefService) candidate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	word1 := wordlist[s.rng.Intn(len(wordlist))]
	word2 := wordlist[s.rng.Intn(len(wordlist))]
	return fmt.Sprintf("%s-%s-%04d", word1, word2, s.rng.Intn(10000))
}
