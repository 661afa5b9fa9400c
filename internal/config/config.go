// Package config 负责加载和验证 YAML 配置文件。
// 提供应用程序所需的所有配置项，包括交易所连接、现货行情源、策略参数、重启策略与输出设置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 凭证环境变量
const (
	EnvUser     = "RATEBOT_USER"
	EnvPassword = "RATEBOT_PASSWORD"
	EnvAccount  = "RATEBOT_ACCOUNT"
)

// Config 应用配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Tickers 标的根代码，如 GGAL、YPFD、PAMP、DO
	Tickers []string `yaml:"tickers"`
	// Exchange 交易所连接配置
	Exchange ExchangeConfig `yaml:"exchange"`
	// Spot 现货行情源配置
	Spot SpotConfig `yaml:"spot"`
	// Strategy 策略参数配置
	Strategy StrategyConfig `yaml:"strategy"`
	// Restart 行情源重启策略
	Restart RestartConfig `yaml:"restart"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
	// Redis Redis 发布配置
	Redis RedisConfig `yaml:"redis"`
	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// LogFile 日志文件路径，为空则只输出到 stderr
	LogFile string `yaml:"log_file"`
	// LogMaxSizeMB 单个日志文件上限（MB），超过后轮转
	LogMaxSizeMB int `yaml:"log_max_size_mb"`
	// LogMaxBackups 保留的历史日志文件数
	LogMaxBackups int `yaml:"log_max_backups"`
}

// ExchangeConfig 交易所 REST 与 WebSocket 配置
type ExchangeConfig struct {
	// RestURL REST API 根地址
	RestURL string `yaml:"rest_url"`
	// WSURL 行情 WebSocket 地址
	WSURL string `yaml:"ws_url"`
	// MarketID 市场标识，如 ROFX
	MarketID string `yaml:"market_id"`
	// TimeoutMs HTTP 请求超时时间（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// ReadTimeoutMs 读取超时（毫秒），超时视为连接断开
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	// SubscribeOrderReports 是否订阅订单回报（仅记录日志）
	SubscribeOrderReports bool `yaml:"subscribe_order_reports"`
}

// SpotConfig 现货行情源配置
type SpotConfig struct {
	// URL 行情接口根地址（chart API）
	URL string `yaml:"url"`
	// PollIntervalMs 轮询间隔（毫秒）
	PollIntervalMs int `yaml:"poll_interval_ms"`
	// TimeoutMs 单次请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// Symbols 标的根代码 -> 行情源代码，未配置的使用 <root>.BA
	Symbols map[string]string `yaml:"symbols"`
}

// StrategyConfig 策略参数配置
type StrategyConfig struct {
	// TransactionCost 交易成本（年化利差阈值），未配置时为 nil，显式配置 0 表示无成本
	TransactionCost *float64 `yaml:"transaction_cost"`
	// IdleSleepMs 无新行情时的休眠间隔（毫秒）
	IdleSleepMs int `yaml:"idle_sleep_ms"`
	// HaltOnCycleError 单轮处理出错时是否终止主循环
	HaltOnCycleError bool `yaml:"halt_on_cycle_error"`
}

// DefaultTransactionCost transaction_cost 未配置时的默认值
const DefaultTransactionCost = 0.01

// Threshold 返回生效的交易成本阈值
func (s StrategyConfig) Threshold() float64 {
	if s.TransactionCost == nil {
		return DefaultTransactionCost
	}
	return *s.TransactionCost
}

// RestartConfig 行情源重启退避配置
type RestartConfig struct {
	// MaxConsecutiveFailures 连续重启失败次数上限，超过后主循环终止
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	// BaseMs 首次重试等待（毫秒）
	BaseMs int `yaml:"base_ms"`
	// MaxMs 最大等待（毫秒）
	MaxMs int `yaml:"max_ms"`
	// Jitter 抖动比例（0-1）
	Jitter float64 `yaml:"jitter"`
	// StableAfterMs 重启后持续运行该时长即清零失败计数（毫秒）
	StableAfterMs int `yaml:"stable_after_ms"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// TradesEnabled 是否输出成交报告文件
	TradesEnabled bool `yaml:"trades_enabled"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
	// PrintIntervalMs 利率表打印间隔（毫秒），0 表示不打印
	PrintIntervalMs int `yaml:"print_interval_ms"`
}

// RedisConfig Redis 发布配置
type RedisConfig struct {
	// Enabled 是否启用
	Enabled bool `yaml:"enabled"`
	// Addr Redis 地址
	Addr string `yaml:"addr"`
	// ChannelPrefix 频道前缀
	ChannelPrefix string `yaml:"channel_prefix"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Addr 监听地址，为空则不启动
	Addr string `yaml:"addr"`
}

// Credentials 交易所账户凭证
type Credentials struct {
	User     string
	Password string
	Account  string
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// LoadCredentials 从环境变量读取凭证
// 参数 envFile: 可选的 .env 文件，存在时先加载（不覆盖已有环境变量）
func LoadCredentials(envFile string) (Credentials, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("加载 %s 失败: %w", envFile, err)
		}
	}

	creds := Credentials{
		User:     os.Getenv(EnvUser),
		Password: os.Getenv(EnvPassword),
		Account:  os.Getenv(EnvAccount),
	}

	var missing []string
	if creds.User == "" {
		missing = append(missing, EnvUser)
	}
	if creds.Password == "" {
		missing = append(missing, EnvPassword)
	}
	if creds.Account == "" {
		missing = append(missing, EnvAccount)
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("缺少凭证环境变量: %s", strings.Join(missing, ", "))
	}
	return creds, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "implied-rate-arbitrage"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogMaxSizeMB == 0 {
		c.App.LogMaxSizeMB = 100
	}
	if c.App.LogMaxBackups == 0 {
		c.App.LogMaxBackups = 5
	}

	if c.Exchange.MarketID == "" {
		c.Exchange.MarketID = "ROFX"
	}
	if c.Exchange.TimeoutMs == 0 {
		c.Exchange.TimeoutMs = 10000 // 10 秒
	}
	if c.Exchange.PingIntervalMs == 0 {
		c.Exchange.PingIntervalMs = 20000 // 20 秒
	}
	if c.Exchange.ReadTimeoutMs == 0 {
		c.Exchange.ReadTimeoutMs = 60000 // 60 秒
	}

	if c.Spot.URL == "" {
		c.Spot.URL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	if c.Spot.PollIntervalMs == 0 {
		c.Spot.PollIntervalMs = 1000
	}
	if c.Spot.TimeoutMs == 0 {
		c.Spot.TimeoutMs = 5000
	}

	if c.Strategy.TransactionCost == nil {
		cost := DefaultTransactionCost
		c.Strategy.TransactionCost = &cost
	}
	if c.Strategy.IdleSleepMs == 0 {
		c.Strategy.IdleSleepMs = 5
	}

	if c.Restart.MaxConsecutiveFailures == 0 {
		c.Restart.MaxConsecutiveFailures = 5
	}
	if c.Restart.BaseMs == 0 {
		c.Restart.BaseMs = 1000
	}
	if c.Restart.MaxMs == 0 {
		c.Restart.MaxMs = 30000
	}
	if c.Restart.Jitter == 0 {
		c.Restart.Jitter = 0.2
	}
	if c.Restart.StableAfterMs == 0 {
		c.Restart.StableAfterMs = 300000 // 5 分钟
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}

	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = "ratebot"
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	if len(c.Tickers) == 0 {
		errs = append(errs, "tickers: 至少需要配置一个标的")
	}
	seen := make(map[string]bool, len(c.Tickers))
	for i, t := range c.Tickers {
		if t == "" {
			errs = append(errs, fmt.Sprintf("tickers[%d]: 标的代码不能为空", i))
			continue
		}
		if seen[t] {
			errs = append(errs, fmt.Sprintf("tickers[%d]: 重复的标的 '%s'", i, t))
		}
		seen[t] = true
	}

	if c.Exchange.RestURL == "" {
		errs = append(errs, "exchange.rest_url: REST 地址不能为空")
	}
	if c.Exchange.WSURL == "" {
		errs = append(errs, "exchange.ws_url: WebSocket 地址不能为空")
	}
	if c.Exchange.TimeoutMs <= 0 {
		errs = append(errs, "exchange.timeout_ms: 超时必须为正数")
	}
	if c.Exchange.PingIntervalMs <= 0 {
		errs = append(errs, "exchange.ping_interval_ms: 心跳间隔必须为正数")
	}
	if c.Exchange.ReadTimeoutMs <= c.Exchange.PingIntervalMs {
		errs = append(errs, "exchange.read_timeout_ms: 读取超时必须大于心跳间隔")
	}

	if c.Spot.URL == "" {
		errs = append(errs, "spot.url: 行情接口地址不能为空")
	}
	if c.Spot.PollIntervalMs <= 0 {
		errs = append(errs, "spot.poll_interval_ms: 轮询间隔必须为正数")
	}
	if c.Spot.TimeoutMs <= 0 {
		errs = append(errs, "spot.timeout_ms: 超时必须为正数")
	}

	if c.Strategy.TransactionCost != nil && *c.Strategy.TransactionCost < 0 {
		errs = append(errs, "strategy.transaction_cost: 交易成本不能为负数")
	}
	if c.Strategy.IdleSleepMs <= 0 {
		errs = append(errs, "strategy.idle_sleep_ms: 休眠间隔必须为正数")
	}

	if c.Restart.MaxConsecutiveFailures <= 0 {
		errs = append(errs, "restart.max_consecutive_failures: 必须为正数")
	}
	if c.Restart.BaseMs <= 0 || c.Restart.MaxMs < c.Restart.BaseMs {
		errs = append(errs, "restart.base_ms/max_ms: 需满足 0 < base_ms <= max_ms")
	}
	if c.Restart.Jitter < 0 || c.Restart.Jitter > 1 {
		errs = append(errs, "restart.jitter: 抖动比例必须在 0-1 之间")
	}
	if c.Restart.StableAfterMs < 0 {
		errs = append(errs, "restart.stable_after_ms: 不能为负数")
	}

	if c.Output.BufferSize <= 0 {
		errs = append(errs, "output.buffer_size: 缓冲区大小必须为正数")
	}
	if c.App.LogMaxSizeMB < 0 || c.App.LogMaxBackups < 0 {
		errs = append(errs, "app: log_max_size_mb 与 log_max_backups 不能为负数")
	}
	if c.Output.PrintIntervalMs < 0 {
		errs = append(errs, "output.print_interval_ms: 打印间隔不能为负数")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr: 启用 Redis 时地址不能为空")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// SpotSymbol 标的根代码对应的行情源代码
// 未显式配置时使用 <root>.BA（布宜诺斯艾利斯交易所后缀）
func (c *SpotConfig) SpotSymbol(root string) string {
	if s, ok := c.Symbols[root]; ok && s != "" {
		return s
	}
	return root + ".BA"
}

// SpotSymbols 所有标的的行情源代码映射
func (c *Config) SpotSymbols() map[string]string {
	out := make(map[string]string, len(c.Tickers))
	for _, t := range c.Tickers {
		out[t] = c.Spot.SpotSymbol(t)
	}
	return out
}

// Timeout 毫秒转 time.Duration
func (c *ExchangeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// PingInterval 心跳间隔
func (c *ExchangeConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalMs) * time.Millisecond
}

// ReadTimeout 读取超时
func (c *ExchangeConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// PollInterval 现货轮询间隔
func (c *SpotConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Timeout 现货请求超时
func (c *SpotConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// IdleSleep 空闲休眠间隔
func (c *StrategyConfig) IdleSleep() time.Duration {
	return time.Duration(c.IdleSleepMs) * time.Millisecond
}

// PrintInterval 利率表打印间隔
func (c *OutputConfig) PrintInterval() time.Duration {
	return time.Duration(c.PrintIntervalMs) * time.Millisecond
}
