package producer

import (
	"math/rand/v2"
	"sync"

	"smssim/internal/constants"
	"smssim/pkg/models"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generator builds reference work items: '+' and ten digits with a
// non-zero leading digit, and an alphanumeric message.
type Generator struct {
	mu            sync.Mutex
	rng           *rand.Rand
	messageLength int
}

// NewGenerator seeds the source from seed, or randomly when seed is zero.
func NewGenerator(messageLength int, seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	if messageLength <= 0 {
		messageLength = constants.DefaultMessageLength
	}
	return &Generator{
		rng:           rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		messageLength: messageLength,
	}
}

func (g *Generator) Next() models.WorkItem {
	g.mu.Lock()
	defer g.mu.Unlock()

	phone := make([]byte, 1+constants.PhoneNumberDigits)
	phone[0] = '+'
	phone[1] = byte('1' + g.rng.IntN(9))
	for i := 2; i < len(phone); i++ {
		phone[i] = byte('0' + g.rng.IntN(10))
	}

	msg := make([]byte, g.messageLength)
	for i := range msg {
		msg[i] = alphanumeric[g.rng.IntN(len(alphanumeric))]
	}

	return models.WorkItem{
		PhoneNumber: string(phone),
		Message:     string(msg),
	}
}
