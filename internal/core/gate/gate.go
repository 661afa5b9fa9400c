// Package gate 实现行情新鲜度闸门。
// 通过比较两路行情的最后更新时间与已处理水位线，保证每次数据更新至多触发一次利率重算。
package gate

import (
	"math"
	"sync/atomic"
)

// Never 初始水位线，表示"从未处理过"
const Never int64 = math.MinInt64

// Gate 新鲜度闸门
// 水位线单调不减；跨 goroutine 读写安全（控制循环写，交易前复核读）。
type Gate struct {
	watermark atomic.Int64
}

// New 创建闸门，水位线初始化为 Never
func New() *Gate {
	g := &Gate{}
	g.watermark.Store(Never)
	return g
}

// ShouldUpdate 任一行情时间戳严格大于水位线时返回 true
// 参数 bookTs: 订单簿行情最后更新时间（纳秒）
// 参数 spotTs: 现货行情最后更新时间（纳秒）
func (g *Gate) ShouldUpdate(bookTs, spotTs int64) bool {
	w := g.watermark.Load()
	return bookTs > w || spotTs > w
}

// MarkProcessed 将水位线设为两路时间戳的较大值
// 必须在读取用于判断的时间戳之后、利率引擎读取价格之前调用。
func (g *Gate) MarkProcessed(bookTs, spotTs int64) {
	next := max(bookTs, spotTs)
	for {
		cur := g.watermark.Load()
		if next <= cur {
			return
		}
		if g.watermark.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Watermark 当前水位线
func (g *Gate) Watermark() int64 {
	return g.watermark.Load()
}

// TimestampSource 提供最后更新时间的行情源
type TimestampSource interface {
	LastUpdate() int64
}

// Watchman 把闸门绑定到两路行情源
type Watchman struct {
	gate *Gate
	book TimestampSource
	spot TimestampSource
}

// NewWatchman 创建数据更新看守
func NewWatchman(g *Gate, book, spot TimestampSource) *Watchman {
	return &Watchman{gate: g, book: book, spot: spot}
}

// ShouldUpdate 读取两路行情当前时间戳并判断是否有新数据
func (w *Watchman) ShouldUpdate() bool {
	return w.gate.ShouldUpdate(w.book.LastUpdate(), w.spot.LastUpdate())
}

// MarkProcessed 以两路行情当前时间戳推进水位线
func (w *Watchman) MarkProcessed() {
	w.gate.MarkProcessed(w.book.LastUpdate(), w.spot.LastUpdate())
}

// Watermark 当前水位线
func (w *Watchman) Watermark() int64 {
	return w.gate.Watermark()
}
