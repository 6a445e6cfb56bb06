package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CarLinkTrade/CarLinkTrade/internal/car"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/apperr"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/logger"
	"github.com/CarLinkTrade/CarLinkTrade/internal/payment"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// nowFn 便于测试固定时间。
var nowFn = time.Now

// Service 订单服务：下单 / 支付 / 交车 / 取消 / 删除。
// 所有涉及订单与车辆两张表的操作都包在同一个数据库事务里，
// 其中状态写回统一走带旧状态前置条件的比较交换，保证并发下
// 一台 AVAILABLE 的车最多被一个订单锁定。
type Service struct {
	db      *gorm.DB
	orders  *Repo
	gateway payment.Gateway
	log     logger.Logger
}

func NewService(db *gorm.DB, gateway payment.Gateway, log logger.Logger) *Service {
	return &Service{
		db:      db,
		orders:  NewRepo(db),
		gateway: gateway,
		log:     log,
	}
}

// PlaceRequest 下单入参。Items 省略或为空表示按整车单件下单。
type PlaceRequest struct {
	CarID      uint
	TotalPrice *decimal.Decimal
	Items      Items
}

// PayResult 支付结果：定金按总价 10% 计算，只作展示，不入库。
type PayResult struct {
	Order   *Order
	Deposit decimal.Decimal
}

func validateItems(items Items) error {
	for i, it := range items {
		if it.ID == 0 {
			return apperr.ValidationField(fmt.Sprintf("order_items.%d.id", i), "item id is required")
		}
		if it.Qty < 1 {
			return apperr.ValidationField(fmt.Sprintf("order_items.%d.qty", i), "qty must be at least 1")
		}
	}
	return nil
}

// Place 下单：校验条目，车辆 AVAILABLE -> RESERVED，创建 Pending 订单。
// 两台端同时抢同一台车时，条件更新只会命中一次，另一端收到冲突错误。
func (s *Service) Place(ctx context.Context, buyerID uint, req PlaceRequest) (*Order, error) {
	if req.CarID == 0 {
		return nil, apperr.ValidationField("car_id", "car_id is required")
	}
	if req.TotalPrice == nil {
		return nil, apperr.ValidationField("total_price", "total_price is required")
	}
	if req.TotalPrice.IsNegative() {
		return nil, apperr.ValidationField("total_price", "total_price must be non-negative")
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	var created *Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cars := car.NewRepo(tx)
		c, err := cars.FindByID(ctx, req.CarID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("car")
			}
			return apperr.Internal(err)
		}
		if c.Status != car.StatusAvailable {
			return apperr.Conflict("car is not available")
		}

		ok, err := cars.TransitionStatus(ctx, c.ID, car.StatusAvailable, car.StatusReserved)
		if err != nil {
			return apperr.Internal(err)
		}
		if !ok {
			// 状态刚被并发下单改走
			return apperr.Conflict("car is not available")
		}

		items := req.Items
		if len(items) == 0 {
			items = DefaultItems(c.ID)
		}

		o := &Order{
			BuyerID:    buyerID,
			CarID:      c.ID,
			SellerID:   c.OwnerID,
			Items:      items,
			TotalPrice: *req.TotalPrice,
			Status:     StatusPending,
		}
		if err := NewRepo(tx).Create(ctx, o); err != nil {
			return apperr.Internal(err)
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"order_id": created.ID,
		"car_id":   created.CarID,
		"buyer_id": created.BuyerID,
	}).Info("order placed")

	return s.reload(ctx, created.ID)
}

// Get 买家视角查单。不是自己的订单返回 Not authorized。
func (s *Service) Get(ctx context.Context, buyerID, orderID uint) (*Order, error) {
	o, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, apperr.Forbidden("Not authorized")
	}
	return o, nil
}

// ListByBuyer 买家全部订单。
func (s *Service) ListByBuyer(ctx context.Context, buyerID uint) ([]Order, error) {
	orders, err := s.orders.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return orders, nil
}

// OwnerGet 卖家视角查单。
func (s *Service) OwnerGet(ctx context.Context, sellerID, orderID uint) (*Order, error) {
	o, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.SellerID != sellerID {
		return nil, apperr.Forbidden("Not authorized")
	}
	return o, nil
}

// ListBySeller 卖家名下车辆关联的全部订单。
func (s *Service) ListBySeller(ctx context.Context, sellerID uint) ([]Order, error) {
	orders, err := s.orders.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return orders, nil
}

// Pay 支付：仅 Pending 可支付。先走网关扣定金，成功后在同一事务里
// 订单 Pending -> Confirmed；车辆保持 RESERVED（幂等重申），交车时
// 才置 SOLD。拒付与网关故障均不产生任何状态变更。
func (s *Service) Pay(ctx context.Context, buyerID, orderID uint, outcome string) (*PayResult, error) {
	o, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, apperr.Forbidden("Not authorized")
	}
	if o.Status != StatusPending {
		return nil, apperr.Conflict(fmt.Sprintf("order is %s and cannot be paid", o.Status))
	}

	deposit := DepositFor(o.TotalPrice)
	charge, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		OrderID: o.ID,
		Amount:  deposit,
		Outcome: outcome,
	})
	if err != nil {
		s.log.WithField("order_id", o.ID).Errorf("payment gateway error: %v", err)
		return nil, &apperr.Error{Kind: apperr.KindPayment, Message: "payment gateway unavailable", Err: err}
	}
	if !charge.Succeeded {
		return nil, apperr.Payment("Payment failed")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upd := *o
		if err := ApplyTransition(&upd, StatusConfirmed, charge.ChargedAt); err != nil {
			return apperr.Internal(err)
		}
		ok, err := NewRepo(tx).SaveTransition(ctx, &upd, StatusPending)
		if err != nil {
			return apperr.Internal(err)
		}
		if !ok {
			return apperr.Conflict("order is no longer pending")
		}
		// Pending 订单持有 RESERVED 车辆是不变式，断言后原样保持
		st, err := car.NewRepo(tx).StatusOf(ctx, o.CarID)
		if err != nil {
			return apperr.Internal(err)
		}
		if st != car.StatusReserved {
			return apperr.Internal(fmt.Errorf("car %d not reserved for pending order %d", o.CarID, o.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"order_id": o.ID,
		"deposit":  deposit.String(),
	}).Info("order paid")

	paid, err := s.reload(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &PayResult{Order: paid, Deposit: deposit}, nil
}

// Complete 交车：卖家确认，仅 Confirmed 可完成。订单 -> Completed、
// 车辆 RESERVED -> SOLD 在同一事务内生效。
func (s *Service) Complete(ctx context.Context, sellerID, orderID uint) (*Order, error) {
	o, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.SellerID != sellerID {
		return nil, apperr.Forbidden("Not authorized")
	}
	if o.Status != StatusConfirmed {
		return nil, apperr.Conflict(fmt.Sprintf("order is %s and cannot be completed", o.Status))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upd := *o
		if err := ApplyTransition(&upd, StatusCompleted, nowFn()); err != nil {
			return apperr.Internal(err)
		}
		ok, err := NewRepo(tx).SaveTransition(ctx, &upd, StatusConfirmed)
		if err != nil {
			return apperr.Internal(err)
		}
		if !ok {
			return apperr.Conflict("order is no longer confirmed")
		}
		ok, err = car.NewRepo(tx).TransitionStatus(ctx, o.CarID, car.StatusReserved, car.StatusSold)
		if err != nil {
			return apperr.Internal(err)
		}
		if !ok {
			// Confirmed 订单持有 RESERVED 车辆是不变式，命不中说明数据被外部改坏
			return apperr.Internal(fmt.Errorf("car %d not reserved for confirmed order %d", o.CarID, o.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, o.ID)
}

// Cancel 取消：买家发起，仅 Pending 可取消。订单 -> Cancelled、
// 车辆 RESERVED -> AVAILABLE 在同一事务内生效。
func (s *Service) Cancel(ctx context.Context, buyerID, orderID uint) (*Order, error) {
	o, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, apperr.Forbidden("Not authorized")
	}
	if o.Status != StatusPending {
		return nil, apperr.Conflict(fmt.Sprintf("order is %s and cannot be cancelled", o.Status))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upd := *o
		if err := ApplyTransition(&upd, StatusCancelled, nowFn()); err != nil {
			return apperr.Internal(err)
		}
		ok, err := NewRepo(tx).SaveTransition(ctx, &upd, StatusPending)
		if err != nil {
			return apperr.Internal(err)
		}
		if !ok {
			return apperr.Conflict("order is no longer pending")
		}
		return releaseCar(ctx, tx, o.CarID, o.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, o.ID)
}

// Delete 删除订单：买家发起，仅 Pending 可删。删除的同时释放车辆。
func (s *Service) Delete(ctx context.Context, buyerID, orderID uint) error {
	o, err := s.find(ctx, orderID)
	if err != nil {
		return err
	}
	if o.BuyerID != buyerID {
		return apperr.Forbidden("Not authorized")
	}
	if o.Status != StatusPending {
		return apperr.Conflict(fmt.Sprintf("order is %s and cannot be deleted", o.Status))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status = ?", o.ID, StatusPending).Delete(&Order{})
		if res.Error != nil {
			return apperr.Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("order is no longer pending")
		}
		return releaseCar(ctx, tx, o.CarID, o.ID)
	})
}

// releaseCar 释放 Pending 订单占用的车辆。车辆已不是 RESERVED 说明
// 数据被外部改坏，当内部错误处理。
func releaseCar(ctx context.Context, tx *gorm.DB, carID, orderID uint) error {
	ok, err := car.NewRepo(tx).TransitionStatus(ctx, carID, car.StatusReserved, car.StatusAvailable)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.Internal(fmt.Errorf("car %d not reserved for pending order %d", carID, orderID))
	}
	return nil
}

func (s *Service) find(ctx context.Context, orderID uint) (*Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order")
		}
		return nil, apperr.Internal(err)
	}
	return o, nil
}

func (s *Service) reload(ctx context.Context, orderID uint) (*Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return o, nil
}
