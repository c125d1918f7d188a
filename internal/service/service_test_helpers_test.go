package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/clock"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/domain"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/repository"
)

func pageAll() repository.PageRequest {
	return repository.PageRequest{Page: 1, PageSize: repository.MaxPageSize}
}

func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, client
}

type coreFixture struct {
	sessions repository.SessionRepository
	ledger   repository.RedemptionRepository
	clk      *clock.Manual
	issuer   *IssuerService
	redeemer *RedemptionService
}

func newCoreFixture(t *testing.T) *coreFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Session{}, &domain.RedemptionRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	sessions := repository.NewSessionRepository(db)
	ledger := repository.NewRedemptionRepository(db)
	clk := clock.NewManual(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))

	return &coreFixture{
		sessions: sessions,
		ledger:   ledger,
		clk:      clk,
		issuer:   NewIssuerService(sessions, clk, 300*time.Second, 60*time.Second),
		redeemer: NewRedemptionService(sessions, ledger, NewInMemoryDeadTokenCache(), clk, time.UTC, 10*time.Minute),
	}
}
