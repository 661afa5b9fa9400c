package trader

import (
	"github.com/shopspring/decimal"
)

// Profitable 利差严格大于交易成本阈值才值得交易
// 交易成本按固定利差建模。
func Profitable(maxTakerRate, minOfferedRate, threshold float64) bool {
	return maxTakerRate-minOfferedRate > threshold
}

// SizingInput 计算下单手数所需的全部输入
type SizingInput struct {
	// AskSize 买入合约卖一量
	AskSize float64
	// BidSize 卖出合约买一量
	BidSize float64
	// BuyContractSize 买入合约乘数
	BuyContractSize float64
	// SellContractSize 卖出合约乘数
	SellContractSize float64
	// BuyUnderlierPrice spot(卖出合约的标的)
	BuyUnderlierPrice float64
	// SellUnderlierPrice spot(买入合约的标的)
	SellUnderlierPrice float64
}

// Size 计算匹配的买卖手数
// amount = min(ask_size × buy_cs × buy_px_u, bid_size × sell_cs × sell_px_u)
// buy = round(amount / buy_cs / sell_px_u)，sell = round(amount / sell_cs / buy_px_u)
// 注意两条腿都使用另一条腿的标的价格（名义等值对冲），四舍五入到整数手（half-up）。
// 返回: 名义金额上限、买入手数、卖出手数
func Size(in SizingInput) (amount float64, buySize, sellSize int64) {
	if in.BuyContractSize <= 0 || in.SellContractSize <= 0 || in.BuyUnderlierPrice <= 0 || in.SellUnderlierPrice <= 0 {
		return 0, 0, 0
	}

	buyCS := decimal.NewFromFloat(in.BuyContractSize)
	sellCS := decimal.NewFromFloat(in.SellContractSize)
	buyPxU := decimal.NewFromFloat(in.BuyUnderlierPrice)
	sellPxU := decimal.NewFromFloat(in.SellUnderlierPrice)

	buyCap := decimal.NewFromFloat(in.AskSize).Mul(buyCS).Mul(buyPxU)
	sellCap := decimal.NewFromFloat(in.BidSize).Mul(sellCS).Mul(sellPxU)
	notional := decimal.Min(buyCap, sellCap)
	if notional.Sign() <= 0 {
		return 0, 0, 0
	}

	buySize = notional.Div(buyCS).Div(sellPxU).Round(0).IntPart()
	sellSize = notional.Div(sellCS).Div(buyPxU).Round(0).IntPart()
	return notional.InexactFloat64(), buySize, sellSize
}
