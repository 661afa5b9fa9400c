package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInstrumentData 合约目录数据格式错误（启动期致命）
	ErrInstrumentData = errors.New("合约数据格式错误")
	// ErrExpiredInstrument 合约已到期，本轮无法计算利率（可恢复）
	ErrExpiredInstrument = errors.New("合约已到期")
	// ErrStaleData 提交订单前发现新行情，放弃本次机会（可恢复）
	ErrStaleData = errors.New("行情已更新，放弃过期报价")
	// ErrNoRates 到期分组本轮没有利率
	ErrNoRates = errors.New("到期分组无可用利率")
	// ErrFeedRestartExhausted 行情源连续重启失败次数超限（运行期致命）
	ErrFeedRestartExhausted = errors.New("行情源重启次数超限")
)

// InstrumentDataError 描述具体哪条合约记录缺少哪个字段
type InstrumentDataError struct {
	// Index 记录下标
	Index int
	// Symbol 合约代码（可能为空）
	Symbol string
	// Field 出错字段
	Field string
	// Err 底层错误（可选）
	Err error
}

func (e *InstrumentDataError) Error() string {
	msg := fmt.Sprintf("合约记录[%d] %q 字段 %s 无效", e.Index, e.Symbol, e.Field)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is 使 errors.Is(err, ErrInstrumentData) 成立
func (e *InstrumentDataError) Is(target error) bool {
	return target == ErrInstrumentData
}

func (e *InstrumentDataError) Unwrap() error {
	return e.Err
}

// ExpiredInstrumentError 合约到期错误
type ExpiredInstrumentError struct {
	Ticker   string
	Maturity time.Time
}

func (e *ExpiredInstrumentError) Error() string {
	return fmt.Sprintf("合约 %s 已于 %s 到期", e.Ticker, e.Maturity.Format("2006-01-02"))
}

// Is 使 errors.Is(err, ErrExpiredInstrument) 成立
func (e *ExpiredInstrumentError) Is(target error) bool {
	return target == ErrExpiredInstrument
}
