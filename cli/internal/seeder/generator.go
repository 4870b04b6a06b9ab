package seeder

import (
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Request is one synthetic client hit.
type Request struct {
	ClientIP  string
	UserAgent string
}

// Generator draws requests from a fixed pool of fake clients. Low pool
// indices are drawn more often, so a few clients dominate the traffic the
// way real access logs do.
type Generator struct {
	faker *gofakeit.Faker
	pool  []Request
}

// NewGenerator builds a pool of poolSize clients. A zero seed uses the
// current time.
func NewGenerator(poolSize int, ipv6Ratio float64, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(seed)

	pool := make([]Request, poolSize)
	for i := range pool {
		ip := faker.IPv4Address()
		if faker.Float64Range(0, 1) < ipv6Ratio {
			ip = faker.IPv6Address()
		}
		pool[i] = Request{ClientIP: ip, UserAgent: faker.UserAgent()}
	}
	return &Generator{faker: faker, pool: pool}
}

// Next returns the next request. Not safe for concurrent use.
func (g *Generator) Next() Request {
	r := g.faker.Float64Range(0, 1)
	idx := int(math.Floor(r * r * float64(len(g.pool))))
	return g.pool[min(idx, len(g.pool)-1)]
}

// Pool returns the generated clients.
func (g *Generator) Pool() []Request {
	return g.pool
}
