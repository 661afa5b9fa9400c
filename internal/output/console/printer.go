// Package console 定期把最新利率表打印到终端。
package console

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/core/model"
)

// emptyCell 占位单元格，与利率单元格等宽
var emptyCell = strings.Repeat("*", 12) + " -> " + strings.Repeat("*", 10)

// separator taker 与 offered 之间的分隔行
var separator = strings.Repeat("+", 26)

// RateSource 利率快照来源
type RateSource interface {
	Snapshot() model.RateSnapshot
}

// Printer 利率表打印器
type Printer struct {
	src      RateSource
	out      io.Writer
	interval time.Duration
	logger   *zap.Logger
}

// NewPrinter 创建打印器
// 参数 interval: 打印间隔，<= 0 时 Run 直接返回
func NewPrinter(src RateSource, out io.Writer, interval time.Duration, logger *zap.Logger) *Printer {
	return &Printer{
		src:      src,
		out:      out,
		interval: interval,
		logger:   logger.Named("console"),
	}
}

// Run 按间隔打印，直到 ctx 取消
func (p *Printer) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Print(); err != nil {
				p.logger.Warn("打印利率表失败", zap.Error(err))
			}
		}
	}
}

// Print 打印一次当前快照；两张表都为空时不输出
func (p *Printer) Print() error {
	snap := p.src.Snapshot()
	if len(snap.Taker) == 0 && len(snap.Offered) == 0 {
		return nil
	}
	_, err := io.WriteString(p.out, Render(snap))
	return err
}

type rateCell struct {
	ticker string
	rate   float64
}

// sortedCells 按利率升序（同利率按代码）排列
func sortedCells(byTicker map[string]float64) []rateCell {
	cells := make([]rateCell, 0, len(byTicker))
	for ticker, rate := range byTicker {
		cells = append(cells, rateCell{ticker: ticker, rate: rate})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].rate != cells[j].rate {
			return cells[i].rate < cells[j].rate
		}
		return cells[i].ticker < cells[j].ticker
	})
	return cells
}

func formatCell(c rateCell) string {
	return fmt.Sprintf("%-12s -> %10.6f", c.ticker, c.rate)
}

// Render 把快照渲染为按到期分组分列的表格
// 每列上半部分为 taker 利率（升序，顶部补齐），分隔行之后为 offered 利率（升序，底部补齐）。
func Render(snap model.RateSnapshot) string {
	tagSet := make(map[string]struct{})
	for tag := range snap.Taker {
		tagSet[tag] = struct{}{}
	}
	for tag := range snap.Offered {
		tagSet[tag] = struct{}{}
	}
	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	maxTaker, maxOffered := 0, 0
	for _, tag := range tags {
		maxTaker = max(maxTaker, len(snap.Taker[tag]))
		maxOffered = max(maxOffered, len(snap.Offered[tag]))
	}

	columns := make([][]string, len(tags))
	for i, tag := range tags {
		col := make([]string, 0, maxTaker+maxOffered+1)
		taker := sortedCells(snap.Taker[tag])
		for j := len(taker); j < maxTaker; j++ {
			col = append(col, emptyCell)
		}
		for _, c := range taker {
			col = append(col, formatCell(c))
		}
		col = append(col, separator)
		offered := sortedCells(snap.Offered[tag])
		for _, c := range offered {
			col = append(col, formatCell(c))
		}
		for j := len(offered); j < maxOffered; j++ {
			col = append(col, emptyCell)
		}
		columns[i] = col
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last Updated Rates (%s):\n", snap.ComputedAt.Format(time.RFC3339))
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.Debug)
	fmt.Fprintln(tw, strings.Join(tags, "\t")+"\t")
	rows := maxTaker + maxOffered + 1
	for r := 0; r < rows; r++ {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = col[r]
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	_ = tw.Flush()
	return b.String()
}
