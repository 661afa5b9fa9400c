// Package model 定义套利机器人使用的核心数据结构。
// 包含期货合约、订单簿档位、订单、成交报告以及错误分类。
package model

import (
	"fmt"
	"time"
)

// Future 期货合约（不可变值）
// 由合约目录在启动时创建，之后只读共享给利率引擎与交易决策组件。
type Future struct {
	// Ticker 交易所合约代码，如 GGALFeb21
	Ticker string
	// MaturityDate 到期日（仅日期语义，统一为 UTC 零点）
	MaturityDate time.Time
	// Underlier 标的根代码，如 GGAL
	Underlier string
	// ContractSize 合约乘数（每手对应的标的数量）
	ContractSize float64
}

// NewFuture 创建期货合约，到期日截断为 UTC 日期
func NewFuture(ticker string, maturity time.Time, underlier string, contractSize float64) *Future {
	return &Future{
		Ticker:       ticker,
		MaturityDate: DateOf(maturity),
		Underlier:    underlier,
		ContractSize: contractSize,
	}
}

// String 便于日志输出
func (f *Future) String() string {
	return fmt.Sprintf("%s: [%s - %s - %g]", f.Ticker, f.Underlier, f.MaturityDate.Format("2006-01-02"), f.ContractSize)
}

// DaysToMaturity 计算距到期的自然日天数
// 参数 asOf: 估值日期（忽略时分秒）
// 返回: 天数；到期日为当天或已过期时返回 *ExpiredInstrumentError
func (f *Future) DaysToMaturity(asOf time.Time) (int, error) {
	days := int(f.MaturityDate.Sub(DateOf(asOf)).Hours() / 24)
	if days <= 0 {
		return 0, &ExpiredInstrumentError{Ticker: f.Ticker, Maturity: f.MaturityDate}
	}
	return days, nil
}

// DateOf 取日历日期（UTC 零点），丢弃时区与时间部分
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
