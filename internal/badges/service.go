// Package badges keeps the reviewer pending counts cached and pushes changes to
// connected admin clients.
package badges

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reportaciudad/internal/metrics"

	"go.uber.org/zap"
)

const cacheKey = "badges:pending"

// Counts 管理后台角标
type Counts struct {
	PendingReports int64     `json:"reportes_pendientes"`
	PendingUsers   int64     `json:"usuarios_pendientes"`
	UpdatedAt      time.Time `json:"actualizado_en"`
}

type PendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

// Broadcaster receives freshly computed counts.
type Broadcaster interface {
	Broadcast(c Counts)
}

type Service struct {
	reports PendingCounter
	users   PendingCounter
	store   KVStore
	ttl     time.Duration
	out     Broadcaster
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(reports, users PendingCounter, store KVStore, ttl time.Duration, out Broadcaster, logger *zap.Logger) *Service {
	return &Service{
		reports: reports,
		users:   users,
		store:   store,
		ttl:     ttl,
		out:     out,
		logger:  logger,
		now:     time.Now,
	}
}

// Counts returns cached counts, computing and caching them on a miss.
// A broken cache only costs a recompute.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	raw, err := s.store.Get(ctx, cacheKey)
	if err == nil {
		var c Counts
		if jsonErr := json.Unmarshal([]byte(raw), &c); jsonErr == nil {
			return c, nil
		}
		s.logger.Warn("discarding malformed badge cache entry")
	} else if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("badge cache read failed", zap.Error(err))
	}

	c, err := s.compute(ctx)
	if err != nil {
		return Counts{}, err
	}
	s.write(ctx, c)
	return c, nil
}

// Invalidate drops the cached counts so the next read recomputes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.store.Delete(ctx, cacheKey)
}

// Refresh recomputes, caches and broadcasts the counts.
func (s *Service) Refresh(ctx context.Context) (Counts, error) {
	c, err := s.compute(ctx)
	if err != nil {
		metrics.BadgeRefreshTotal.WithLabelValues("error").Inc()
		// 计数失败时至少让旧缓存失效
		if delErr := s.Invalidate(ctx); delErr != nil {
			s.logger.Warn("badge cache invalidate failed", zap.Error(delErr))
		}
		return Counts{}, err
	}
	metrics.BadgeRefreshTotal.WithLabelValues("ok").Inc()
	s.write(ctx, c)
	if s.out != nil {
		s.out.Broadcast(c)
	}
	return c, nil
}

func (s *Service) compute(ctx context.Context) (Counts, error) {
	reports, err := s.reports.CountPending(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("count pending reports: %w", err)
	}
	users, err := s.users.CountPending(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("count pending users: %w", err)
	}
	metrics.PendingReports.Set(float64(reports))
	metrics.PendingUsers.Set(float64(users))
	return Counts{PendingReports: reports, PendingUsers: users, UpdatedAt: s.now().UTC()}, nil
}

func (s *Service) write(ctx context.Context, c Counts) {
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, cacheKey, string(raw), s.ttl); err != nil {
		s.logger.Warn("badge cache write failed", zap.Error(err))
	}
}
