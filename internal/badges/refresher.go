package badges

import (
	"context"
	"sync"
	"time"

	"reportaciudad/internal/events"

	"go.uber.org/zap"
)

// Refresher 异步刷新角标。同一批次内的多个事件只触发一次重算
type Refresher struct {
	svc      *Service
	queue    chan events.Type // 待处理事件类型
	pending  map[events.Type]bool
	mu       sync.Mutex
	interval time.Duration
	logger   *zap.Logger
}

func NewRefresher(svc *Service, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Refresher{
		svc:      svc,
		queue:    make(chan events.Type, 100), // 缓冲队列，防止阻塞发布方
		pending:  make(map[events.Type]bool),
		interval: interval,
		logger:   logger,
	}
}

// Handle is an events.Handler; subscribe it to the bus.
func (r *Refresher) Handle(e events.Event) {
	if e.Type.AffectsBadges() {
		r.Schedule(e.Type)
	}
}

// Schedule 将刷新请求加入队列（非阻塞，去重）
func (r *Refresher) Schedule(t events.Type) {
	r.mu.Lock()
	if r.pending[t] {
		// 已在队列中，跳过
		r.mu.Unlock()
		return
	}
	r.pending[t] = true
	r.mu.Unlock()

	select {
	case r.queue <- t:
	default:
		// 队列满了，移除 pending 标记
		r.mu.Lock()
		delete(r.pending, t)
		r.mu.Unlock()
		r.logger.Warn("badge refresh queue full, dropping", zap.String("type", string(t)))
	}
}

// Run 后台处理队列，直到 ctx 结束
func (r *Refresher) Run(ctx context.Context) {
	batch := make([]events.Type, 0, 16)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.queue:
			batch = append(batch, t)
		case <-ticker.C:
			if len(batch) > 0 {
				r.processBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// processBatch 清除 pending 标记后统一刷新一次
func (r *Refresher) processBatch(ctx context.Context, batch []events.Type) {
	r.mu.Lock()
	for _, t := range batch {
		delete(r.pending, t)
	}
	r.mu.Unlock()

	if _, err := r.svc.Refresh(ctx); err != nil {
		r.logger.Error("badge refresh failed", zap.Int("events", len(batch)), zap.Error(err))
		return
	}
	r.logger.Debug("badges refreshed", zap.Int("events", len(batch)))
}
