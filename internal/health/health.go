package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Checker probes one dependency. A nil error means healthy.
type Checker func(ctx context.Context) error

type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ProbeRunner executes named readiness checks with a shared deadline.
type ProbeRunner struct {
	timeout time.Duration
	names   []string
	checks  map[string]Checker
}

func NewProbeRunner(timeout time.Duration) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{
		timeout: timeout,
		checks:  make(map[string]Checker),
	}
}

func (p *ProbeRunner) Register(name string, check Checker) {
	if _, exists := p.checks[name]; !exists {
		p.names = append(p.names, name)
	}
	p.checks[name] = check
}

// Ready runs every registered check in registration order and reports
// whether all of them passed.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ready := true
	results := make([]CheckResult, 0, len(p.names))
	for _, name := range p.names {
		res := CheckResult{Name: name, Status: "ok"}
		if err := p.checks[name](ctx); err != nil {
			ready = false
			res.Status = "failed"
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return ready, results
}

func GormChecker(db *gorm.DB) Checker {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func RedisChecker(client redis.UniversalClient) Checker {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
