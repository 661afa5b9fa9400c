package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/catalog"
	"implied-rate-arbitrage/internal/config"
	"implied-rate-arbitrage/internal/core/model"
)

const statusError = "ERROR"

// 熔断参数：连续失败达到阈值后熔断，冷却后放行单个探测请求
const (
	breakerConsecutiveFailures = 5
	breakerCooldown            = 30 * time.Second
)

// AccountTokenSource 会话：令牌 + 下单账户
type AccountTokenSource interface {
	TokenSource
	Account() string
}

// Client 交易所 REST 客户端
type Client struct {
	cfg        *config.ExchangeConfig
	session    AccountTokenSource
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient 创建 REST 客户端
// 参数 session: 已认证的会话
func NewClient(cfg *config.ExchangeConfig, session AccountTokenSource, logger *zap.Logger) *Client {
	c := &Client{
		cfg:        cfg,
		session:    session,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger.Named("rest"),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange-rest",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		// 令牌失效由重新认证处理，不计入熔断
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnauthorized)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("REST 熔断状态变化", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

// FetchInstruments 拉取合约目录
// 只返回配置市场内的合约；字段校验交给 catalog。
func (c *Client) FetchInstruments(ctx context.Context) ([]catalog.RawInstrument, error) {
	var resp InstrumentsResponse
	if err := c.get(ctx, "/rest/instruments/details", nil, &resp); err != nil {
		return nil, fmt.Errorf("拉取合约目录失败: %w", err)
	}
	if resp.Status == statusError {
		return nil, fmt.Errorf("拉取合约目录失败: %s", resp.Description)
	}

	out := make([]catalog.RawInstrument, 0, len(resp.Instruments))
	for _, inst := range resp.Instruments {
		if c.cfg.MarketID != "" && inst.InstrumentID.MarketID != "" && inst.InstrumentID.MarketID != c.cfg.MarketID {
			continue
		}
		out = append(out, catalog.RawInstrument{
			Symbol:             inst.InstrumentID.Symbol,
			MaturityDate:       inst.MaturityDate,
			ContractMultiplier: inst.ContractMultiplier,
		})
	}
	c.logger.Info("合约目录已加载", zap.Int("instruments", len(out)))
	return out, nil
}

// PlaceOrder 提交单笔订单
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderHandle, error) {
	q := url.Values{}
	q.Set("marketId", c.cfg.MarketID)
	q.Set("symbol", req.Ticker)
	q.Set("price", decimal.NewFromFloat(req.Price).String())
	q.Set("orderQty", strconv.FormatInt(req.Size, 10))
	q.Set("ordType", ordTypeParam(req.Type))
	q.Set("side", sideParam(req.Side))
	q.Set("timeInForce", timeInForceParam(req.TimeInForce))
	q.Set("account", c.session.Account())

	var resp NewOrderResponse
	if err := c.get(ctx, "/rest/order/newSingleOrder", q, &resp); err != nil {
		return model.OrderHandle{}, fmt.Errorf("下单 %s %s 失败: %w", req.Side, req.Ticker, err)
	}
	if resp.Status == statusError {
		msg := resp.Description
		if msg == "" {
			msg = resp.Message
		}
		return model.OrderHandle{}, fmt.Errorf("下单 %s %s 被拒绝: %s", req.Side, req.Ticker, msg)
	}
	if resp.Order.ClientID == "" {
		return model.OrderHandle{}, fmt.Errorf("下单 %s %s: 回执缺少 clientId", req.Side, req.Ticker)
	}

	c.logger.Debug("订单已提交",
		zap.String("ticker", req.Ticker),
		zap.String("side", string(req.Side)),
		zap.Int64("size", req.Size),
		zap.Float64("price", req.Price),
		zap.String("client_id", resp.Order.ClientID))
	return model.OrderHandle{ClientID: resp.Order.ClientID, Proprietary: resp.Order.Proprietary}, nil
}

// OrderStatus 查询订单状态
func (c *Client) OrderStatus(ctx context.Context, h model.OrderHandle) (model.OrderStatus, error) {
	q := url.Values{}
	q.Set("clOrdId", h.ClientID)
	q.Set("proprietary", h.Proprietary)

	var resp OrderStatusResponse
	if err := c.get(ctx, "/rest/order/id", q, &resp); err != nil {
		return model.OrderStatusUnknown, fmt.Errorf("查询订单 %s 失败: %w", h.ClientID, err)
	}
	if resp.Status == statusError {
		return model.OrderStatusUnknown, fmt.Errorf("查询订单 %s 失败: %s", h.ClientID, resp.Description)
	}
	if resp.Order.Status == "" {
		return model.OrderStatusUnknown, nil
	}
	return model.OrderStatus(strings.ToUpper(resp.Order.Status)), nil
}

// get 发送带令牌的 GET 请求并解析 JSON 响应
// 传输层与 HTTP 状态错误计入熔断；熔断打开期间直接返回 gobreaker.ErrOpenState。
// get 发送 GET 请求；令牌被拒绝时重新认证并重试一次
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.session.Token()
	if err != nil {
		return err
	}
	err = c.execute(ctx, token, path, query, out)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	c.logger.Warn("REST 请求令牌被拒绝，重新认证后重试", zap.String("path", path))
	if err := c.session.Refresh(ctx, token); err != nil {
		return fmt.Errorf("重新认证失败: %w", err)
	}
	if token, err = c.session.Token(); err != nil {
		return err
	}
	return c.execute(ctx, token, path, query, out)
}

func (c *Client) execute(ctx context.Context, token, path string, query url.Values, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, token, path, query, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, token, path string, query url.Values, out any) error {
	u := strings.TrimRight(c.cfg.RestURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("X-Auth-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

func sideParam(s model.Side) string {
	if s == model.SideSell {
		return "Sell"
	}
	return "Buy"
}

func ordTypeParam(t model.OrderType) string {
	if t == model.OrderTypeMarket {
		return "Market"
	}
	return "Limit"
}

func timeInForceParam(t model.TimeInForce) string {
	if t == model.TimeInForceDay {
		return "Day"
	}
	return "IOC"
}
