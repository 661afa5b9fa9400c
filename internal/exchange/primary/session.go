// Package primary 实现期货交易所连接适配：REST 会话认证、合约目录、下单与订单查询，
// 以及 WebSocket 订单簿行情源。
package primary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/config"
)

// ErrNotAuthenticated 会话未打开或已关闭
var ErrNotAuthenticated = errors.New("交易所会话未认证")

// ErrUnauthorized 交易所拒绝当前令牌（HTTP 401）
var ErrUnauthorized = errors.New("交易所令牌已失效")

// TokenSource 提供认证令牌
type TokenSource interface {
	Token() (string, error)
	// Refresh 令牌被拒绝后重新认证
	// 参数 stale: 被拒绝的令牌；若会话已换发新令牌则直接返回
	Refresh(ctx context.Context, stale string) error
}

// Session 交易所连接会话
// 由进程显式创建并注入 REST 客户端与行情源，生命周期由调用方管理。
type Session struct {
	cfg        *config.ExchangeConfig
	creds      config.Credentials
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
	// refreshMu 串行化重新认证，避免 REST 与行情源同时登录
	refreshMu sync.Mutex
}

// NewSession 创建会话（尚未认证）
func NewSession(cfg *config.ExchangeConfig, creds config.Credentials, logger *zap.Logger) *Session {
	return &Session{
		cfg:        cfg,
		creds:      creds,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger.Named("session"),
	}
}

// Open 认证并保存令牌
func (s *Session) Open(ctx context.Context) error {
	url := strings.TrimRight(s.cfg.RestURL, "/") + "/auth/getToken"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("创建认证请求失败: %w", err)
	}
	req.Header.Set("X-Username", s.creds.User)
	req.Header.Set("X-Password", s.creds.Password)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("认证请求失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("认证失败: HTTP %d", resp.StatusCode)
	}
	token := resp.Header.Get("X-Auth-Token")
	if token == "" {
		return fmt.Errorf("认证失败: 响应缺少 X-Auth-Token")
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.logger.Info("交易所会话已认证", zap.String("user", s.creds.User))
	return nil
}

// Token 当前令牌
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNotAuthenticated
	}
	return s.token, nil
}

// Refresh 重新认证
// 行情源重连与 REST 请求可能同时发现令牌失效，只有第一个调用者真正发起登录。
func (s *Session) Refresh(ctx context.Context, stale string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if current, err := s.Token(); err == nil && current != stale {
		return nil
	}
	s.logger.Warn("交易所令牌失效，重新认证")
	return s.Open(ctx)
}

// Account 下单账户
func (s *Session) Account() string {
	return s.creds.Account
}

// Close 丢弃令牌；可重复调用
func (s *Session) Close() error {
	s.mu.Lock()
	had := s.token != ""
	s.token = ""
	s.mu.Unlock()
	if had {
		s.logger.Info("交易所会话已关闭")
	}
	return nil
}
