package diagnostics

import (
	"context"
	"fmt"

	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              自动修复
// ============================================================================

// ApplyAutoFix 提交一个修复动作并立即返回
//
// 同一动作正在执行时直接返回 nil；超过速率限制时返回 ErrRateLimited。
// 动作在后台执行，结果只记录日志与指标。
func (s *Service) ApplyAutoFix(action types.AutoFixAction) error {
	if !action.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if s.remedies == nil {
		return ErrNoRemedies
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, busy := s.inflight[action]; busy {
		s.mu.Unlock()
		logger.Debug("修复动作正在执行，忽略重复请求", "action", string(action))
		return nil
	}
	if !s.limiter.AllowN(s.clk.Now(), 1) {
		s.mu.Unlock()
		s.metrics.autoFix.WithLabelValues(string(action), "limited").Inc()
		return ErrRateLimited
	}
	s.inflight[action] = struct{}{}
	ctx := s.fixCtx
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runFix(ctx, action)
	return nil
}

// InFlight 正在执行的修复动作数
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Service) runFix(ctx context.Context, action types.AutoFixAction) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, action)
		s.mu.Unlock()
	}()

	if s.cfg.AutoFixTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AutoFixTimeout)
		defer cancel()
	}

	logger.Info("执行自动修复", "action", string(action))
	n, err := s.execute(ctx, action)
	result := "ok"
	if err != nil {
		result = "error"
		logger.Warn("自动修复失败", "action", string(action), "error", err)
	} else {
		logger.Info("自动修复完成", "action", string(action), "peers", n)
	}
	s.metrics.autoFix.WithLabelValues(string(action), result).Inc()
}

// execute 把动作委托给修复执行者，panic 视为失败
func (s *Service) execute(ctx context.Context, action types.AutoFixAction) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remedy panic: %v", r)
		}
	}()

	switch action {
	case types.AutoFixRetryBootstrap:
		return s.remedies.RetryBootstrap(ctx)
	case types.AutoFixResetPeerConnections:
		return 0, s.remedies.ResetPeerConnections(ctx)
	case types.AutoFixForceNetworkRecovery:
		return 0, s.remedies.ForceNetworkRecovery(ctx)
	case types.AutoFixRequestPeers:
		return s.remedies.RequestPeers(ctx)
	default:
		return 0, ErrUnknownAction
	}
}
