// Package catalog 负责把交易所合约目录归类为按标的、按到期分组的期货合约。
// 只有包含两个及以上合约的到期分组才是"可交易"的（需要至少两个点才能比较利率）。
package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"implied-rate-arbitrage/internal/core/model"
)

// RawInstrument 交易所返回的原始合约记录（由外部加载器解析）
type RawInstrument struct {
	// Symbol 合约代码
	Symbol string
	// MaturityDate 到期日原始字符串
	MaturityDate string
	// ContractMultiplier 合约乘数
	ContractMultiplier float64
}

// maturityLayouts 支持的到期日格式
var maturityLayouts = []string{
	"20060102",
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Catalog 合约目录
// 持有所有 Future 实例；其他组件只引用，不复制。
type Catalog struct {
	roots []string

	// byTicker 全部已加载合约（含不可交易的）
	byTicker map[string]*model.Future
	// tagOf 可交易合约 -> 到期分组
	tagOf map[string]string
	// tradeableByUnderlier 标的 -> 可交易合约
	tradeableByUnderlier map[string][]*model.Future
	// tags 可交易到期分组（已排序）
	tags []string
}

// New 构建合约目录
// 参数 roots: 标的根代码列表，如 GGAL、DO
// 参数 records: 原始合约记录
// 返回: 目录；记录缺少必填字段或同一代码内容冲突时返回 *model.InstrumentDataError
func New(roots []string, records []RawInstrument) (*Catalog, error) {
	patterns := make(map[string]*regexp.Regexp, len(roots))
	for _, root := range roots {
		patterns[root] = regexp.MustCompile(`^` + regexp.QuoteMeta(root) + `[A-Z][a-z]{2}[0-9]{2}$`)
	}

	c := &Catalog{
		roots:                append([]string(nil), roots...),
		byTicker:             make(map[string]*model.Future),
		tagOf:                make(map[string]string),
		tradeableByUnderlier: make(map[string][]*model.Future),
	}

	byTag := make(map[string][]*model.Future)
	for i, rec := range records {
		if strings.TrimSpace(rec.Symbol) == "" {
			return nil, &model.InstrumentDataError{Index: i, Field: "symbol"}
		}

		root, ok := matchRoot(rec.Symbol, patterns)
		if !ok {
			continue
		}

		maturity, err := parseMaturity(rec.MaturityDate)
		if err != nil {
			return nil, &model.InstrumentDataError{Index: i, Symbol: rec.Symbol, Field: "maturityDate", Err: err}
		}
		if rec.ContractMultiplier <= 0 {
			return nil, &model.InstrumentDataError{Index: i, Symbol: rec.Symbol, Field: "contractMultiplier"}
		}

		future := model.NewFuture(rec.Symbol, maturity, root, rec.ContractMultiplier)
		// 同一代码重复出现：内容一致则忽略，否则视为数据错误
		if prev, dup := c.byTicker[rec.Symbol]; dup {
			if !prev.MaturityDate.Equal(future.MaturityDate) {
				return nil, &model.InstrumentDataError{Index: i, Symbol: rec.Symbol, Field: "maturityDate",
					Err: fmt.Errorf("与已加载记录冲突 (%s)", prev.MaturityDate.Format("2006-01-02"))}
			}
			if prev.ContractSize != future.ContractSize {
				return nil, &model.InstrumentDataError{Index: i, Symbol: rec.Symbol, Field: "contractMultiplier",
					Err: fmt.Errorf("与已加载记录冲突 (%g)", prev.ContractSize)}
			}
			continue
		}
		c.byTicker[rec.Symbol] = future

		tag := strings.TrimPrefix(rec.Symbol, root)
		byTag[tag] = append(byTag[tag], future)
	}

	for tag, futures := range byTag {
		if len(futures) < 2 {
			continue
		}
		c.tags = append(c.tags, tag)
		for _, f := range futures {
			c.tagOf[f.Ticker] = tag
			c.tradeableByUnderlier[f.Underlier] = append(c.tradeableByUnderlier[f.Underlier], f)
		}
	}
	sort.Strings(c.tags)
	for _, futures := range c.tradeableByUnderlier {
		sort.Slice(futures, func(i, j int) bool { return futures[i].Ticker < futures[j].Ticker })
	}

	return c, nil
}

// matchRoot 返回唯一匹配的标的根代码
// 同时匹配多个根代码的合约视为歧义，直接排除。
func matchRoot(symbol string, patterns map[string]*regexp.Regexp) (string, bool) {
	found := ""
	for root, re := range patterns {
		if !re.MatchString(symbol) {
			continue
		}
		if found != "" {
			return "", false
		}
		found = root
	}
	return found, found != ""
}

func parseMaturity(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("到期日为空")
	}
	for _, layout := range maturityLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析到期日 %q", raw)
}

// Roots 标的根代码
func (c *Catalog) Roots() []string {
	return append([]string(nil), c.roots...)
}

// TradeableByUnderlier 标的 -> 可交易合约（返回新 map，元素为共享只读指针）
func (c *Catalog) TradeableByUnderlier() map[string][]*model.Future {
	out := make(map[string][]*model.Future, len(c.tradeableByUnderlier))
	for k, v := range c.tradeableByUnderlier {
		out[k] = append([]*model.Future(nil), v...)
	}
	return out
}

// MaturityTagOf 可交易合约的到期分组
func (c *Catalog) MaturityTagOf(ticker string) (string, bool) {
	tag, ok := c.tagOf[ticker]
	return tag, ok
}

// TradeableMaturityTags 可交易到期分组（已排序）
func (c *Catalog) TradeableMaturityTags() []string {
	return append([]string(nil), c.tags...)
}

// TradeableTickers 全部可交易合约代码（已排序），用于行情订阅
func (c *Catalog) TradeableTickers() []string {
	out := make([]string, 0, len(c.tagOf))
	for ticker := range c.tagOf {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// TradeableUnderliers 至少有一个可交易合约的标的（已排序），用于现货订阅
func (c *Catalog) TradeableUnderliers() []string {
	out := make([]string, 0, len(c.tradeableByUnderlier))
	for u := range c.tradeableByUnderlier {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// InstrumentByTicker 按代码查找任意已加载合约
func (c *Catalog) InstrumentByTicker(ticker string) (*model.Future, bool) {
	f, ok := c.byTicker[ticker]
	return f, ok
}
