package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/CarLinkTrade/CarLinkTrade/internal/common/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome 调用方声明的模拟结果。
const (
	OutcomeSuccess = "success"
	OutcomeFail    = "fail"
)

// ChargeRequest 一次扣款请求。
type ChargeRequest struct {
	OrderID uint
	Amount  decimal.Decimal
	Outcome string // success / fail，模拟第三方渠道返回
}

// ChargeResult 扣款结果。Succeeded=false 表示渠道拒付，不是网关故障。
type ChargeResult struct {
	Succeeded bool
	Reference string // 渠道流水号
	ChargedAt time.Time
}

// Gateway 支付网关。Charge 区分两类失败：
// 拒付（Succeeded=false, err=nil）和网关不可用（err != nil）。
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// SimulatedGateway 模拟网关：按请求声明的 Outcome 返回结果。
// 外层套熔断器，网关持续故障时快速失败，不把压力带进订单事务。
type SimulatedGateway struct {
	breaker *middleware.CircuitBreaker
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		breaker: middleware.NewCircuitBreaker("payment-gateway", 5, 30*time.Second),
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	var result ChargeResult
	err := g.breaker.Call(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("payment gateway unreachable: %w", err)
		}
		switch req.Outcome {
		case OutcomeSuccess:
			result = ChargeResult{
				Succeeded: true,
				Reference: uuid.New().String(),
				ChargedAt: time.Now(),
			}
		case OutcomeFail:
			// 渠道拒付是正常业务结果，不计入熔断失败
			result = ChargeResult{Succeeded: false, ChargedAt: time.Now()}
		default:
			return fmt.Errorf("unknown payment outcome %q", req.Outcome)
		}
		return nil
	})
	if err != nil {
		return ChargeResult{}, err
	}
	return result, nil
}
