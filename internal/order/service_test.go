package order

import (
	"context"
	"testing"

	"github.com/CarLinkTrade/CarLinkTrade/internal/car"
	"github.com/CarLinkTrade/CarLinkTrade/internal/catalog"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/apperr"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/db"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/logger"
	"github.com/CarLinkTrade/CarLinkTrade/internal/payment"
	"github.com/CarLinkTrade/CarLinkTrade/internal/user"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	sellerID = uint(1)
	buyerID  = uint(2)
	otherID  = uint(3)
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb, err := db.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = gdb.AutoMigrate(
		&user.User{},
		&catalog.Make{}, &catalog.Model{}, &catalog.Variant{},
		&car.Car{}, &car.CarImage{},
		&Order{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.NewLogrusLogger("error", "text", "stdout", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewService(gdb, payment.NewSimulatedGateway(), log), gdb
}

func seedCar(t *testing.T, gdb *gorm.DB, status car.Status) *car.Car {
	t.Helper()
	mk := catalog.Make{Name: "Toyota"}
	if err := gdb.FirstOrCreate(&mk, catalog.Make{Name: "Toyota"}).Error; err != nil {
		t.Fatalf("seed make: %v", err)
	}
	md := catalog.Model{MakeID: mk.ID, Name: "Corolla"}
	if err := gdb.FirstOrCreate(&md, catalog.Model{MakeID: mk.ID, Name: "Corolla"}).Error; err != nil {
		t.Fatalf("seed model: %v", err)
	}
	vr := catalog.Variant{ModelID: md.ID, Name: "GLi"}
	if err := gdb.FirstOrCreate(&vr, catalog.Variant{ModelID: md.ID, Name: "GLi"}).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	c := &car.Car{
		OwnerID:   sellerID,
		MakeID:    mk.ID,
		ModelID:   md.ID,
		VariantID: vr.ID,
		Color:     "white",
		Year:      2020,
		Mileage:   42000,
		Price:     decimal.NewFromFloat(15000.00),
		Status:    status,
	}
	if err := gdb.Create(c).Error; err != nil {
		t.Fatalf("seed car: %v", err)
	}
	return c
}

func price(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

// placeReq 常规下单入参：整车单件、总价 15000。
func placeReq(carID uint) PlaceRequest {
	return PlaceRequest{CarID: carID, TotalPrice: price(15000.00)}
}

func carStatus(t *testing.T, gdb *gorm.DB, id uint) car.Status {
	t.Helper()
	var c car.Car
	if err := gdb.First(&c, id).Error; err != nil {
		t.Fatalf("load car: %v", err)
	}
	return c.Status
}

func TestPlaceReservesCar(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	// 成交价由买卖双方议定，不必等于挂牌价
	o, err := svc.Place(ctx, buyerID, PlaceRequest{CarID: c.ID, TotalPrice: price(14200.00)})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if o.Status != StatusPending {
		t.Fatalf("order status = %s, want %s", o.Status, StatusPending)
	}
	if o.SellerID != sellerID {
		t.Fatalf("seller_id = %d, want car owner %d", o.SellerID, sellerID)
	}
	if !o.TotalPrice.Equal(decimal.NewFromFloat(14200.00)) {
		t.Fatalf("total_price = %s, want 14200", o.TotalPrice)
	}
	if len(o.Items) != 1 || o.Items[0].ID != c.ID || o.Items[0].Qty != 1 {
		t.Fatalf("default items = %+v", o.Items)
	}
	if got := carStatus(t, gdb, c.ID); got != car.StatusReserved {
		t.Fatalf("car status = %s, want %s", got, car.StatusReserved)
	}
}

func TestPlaceRequiresTotalPrice(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	_, err := svc.Place(ctx, buyerID, PlaceRequest{CarID: c.ID})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("missing total_price: err = %v, want validation", err)
	}
	_, err = svc.Place(ctx, buyerID, PlaceRequest{CarID: c.ID, TotalPrice: price(-1)})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("negative total_price: err = %v, want validation", err)
	}
	// 校验失败不应锁车
	if got := carStatus(t, gdb, c.ID); got != car.StatusAvailable {
		t.Fatalf("car status = %s, want %s", got, car.StatusAvailable)
	}
}

func TestPlaceRejectsUnavailableCar(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()

	for _, st := range []car.Status{car.StatusReserved, car.StatusSold} {
		c := seedCar(t, gdb, st)
		_, err := svc.Place(ctx, buyerID, placeReq(c.ID))
		if apperr.KindOf(err) != apperr.KindConflict {
			t.Fatalf("Place on %s car: err = %v, want conflict", st, err)
		}
	}

	_, err := svc.Place(ctx, buyerID, placeReq(9999))
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("Place on missing car: err = %v, want not found", err)
	}
}

func TestPlaceSecondBuyerLosesRace(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	if _, err := svc.Place(ctx, buyerID, placeReq(c.ID)); err != nil {
		t.Fatalf("first Place: %v", err)
	}
	_, err := svc.Place(ctx, otherID, placeReq(c.ID))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("second Place: err = %v, want conflict", err)
	}

	var count int64
	if err := gdb.Model(&Order{}).Where("car_id = ?", c.ID).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 1 {
		t.Fatalf("orders for car = %d, want 1", count)
	}
}

func TestPlaceValidatesItems(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	req := placeReq(c.ID)
	req.Items = Items{{ID: c.ID, Qty: 0}}
	_, err := svc.Place(ctx, buyerID, req)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("qty=0: err = %v, want validation", err)
	}
	req.Items = Items{{ID: 0, Qty: 1}}
	_, err = svc.Place(ctx, buyerID, req)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("id=0: err = %v, want validation", err)
	}
	// 校验失败不应锁车
	if got := carStatus(t, gdb, c.ID); got != car.StatusAvailable {
		t.Fatalf("car status = %s, want %s", got, car.StatusAvailable)
	}
}

func TestPaySuccessConfirmsOrderKeepsCarReserved(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	o, err := svc.Place(ctx, buyerID, placeReq(c.ID))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	res, err := svc.Pay(ctx, buyerID, o.ID, payment.OutcomeSuccess)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if res.Order.Status != StatusConfirmed {
		t.Fatalf("order status = %s, want %s", res.Order.Status, StatusConfirmed)
	}
	if res.Order.ConfirmedAt == nil {
		t.Fatal("ConfirmedAt not stamped")
	}
	want := decimal.NewFromFloat(1500.00)
	if !res.Deposit.Equal(want) {
		t.Fatalf("deposit = %s, want %s", res.Deposit, want)
	}
	// 支付只确认订单；车辆继续保持 RESERVED，交车时才置 SOLD
	if got := carStatus(t, gdb, c.ID); got != car.StatusReserved {
		t.Fatalf("car status = %s, want %s", got, car.StatusReserved)
	}
}

func TestPayFailLeavesStateUntouched(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	o, err := svc.Place(ctx, buyerID, placeReq(c.ID))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	_, err = svc.Pay(ctx, buyerID, o.ID, payment.OutcomeFail)
	if apperr.KindOf(err) != apperr.KindPayment {
		t.Fatalf("Pay fail: err = %v, want payment error", err)
	}

	got, err := svc.Get(ctx, buyerID, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("order status = %s, want %s", got.Status, StatusPending)
	}
	if cs := carStatus(t, gdb, c.ID); cs != car.StatusReserved {
		t.Fatalf("car status = %s, want %s", cs, car.StatusReserved)
	}
}

func TestPayIsNotRepeatable(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	o, err := svc.Place(ctx, buyerID, placeReq(c.ID))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if _, err := svc.Pay(ctx, buyerID, o.ID, payment.OutcomeSuccess); err != nil {
		t.Fatalf("first Pay: %v", err)
	}
	_, err = svc.Pay(ctx, buyerID, o.ID, payment.OutcomeSuccess)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("second Pay: err = %v, want conflict", err)
	}
}

func TestPayAuthorization(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	o, err := svc.Place(ctx, buyerID, placeReq(c.ID))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	_, err = svc.Pay(ctx, otherID, o.ID, payment.OutcomeSuccess)
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("Pay by stranger: err = %v, want authorization", err)
	}
}

func TestCompleteSellsCar(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	o, err := svc.Place(ctx, buyerID, placeReq(c.ID))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	// Pending 不能直接交车
	_, err = svc.Complete(ctx, sellerID, o.ID)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("Complete pending: err = %v, want conflict", err)
	}

	if _, err := svc.Pay(ctx, buyerID, o.ID, payment.OutcomeSuccess); err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if cs := carStatus(t, gdb, c.ID); cs != car.StatusReserved {
		t.Fatalf("car status after Pay = %s, want %s", cs, car.StatusReserved)
	}

	// 买家不能替卖家交车
	_, err = svc.Complete(ctx, buyerID, o.ID)
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("Complete by buyer: err = %v, want authorization", err)
	}
	// 未完成的交车不得提前把车置 SOLD
	if cs := carStatus(t, gdb, c.ID); cs != car.StatusReserved {
		t.Fatalf("car status = %s, want %s", cs, car.StatusReserved)
	}

	done, err := svc.Complete(ctx, sellerID, o.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("completed order = %+v", done)
	}
	if cs := carStatus(t, gdb, c.ID); cs != car.StatusSold {
		t.Fatalf("car status = %s, want %s", cs, car.StatusSold)
	}

	// SOLD 只对应这一单 Completed 订单
	var completed int64
	if err := gdb.Model(&Order{}).Where("car_id = ? AND status = ?", c.ID, StatusCompleted).Count(&completed).Error; err != nil {
		t.Fatalf("count completed: %v", err)
	}
	if completed != 1 {
		t.Fatalf("completed orders for sold car = %d, want 1", completed)
	}
}

func TestCancelReleasesCar(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	o, err := svc.Place(ctx, buyerID, placeReq(c.ID))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, buyerID, o.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancelled order = %+v", cancelled)
	}
	if cs := carStatus(t, gdb, c.ID); cs != car.StatusAvailable {
		t.Fatalf("car status = %s, want %s", cs, car.StatusAvailable)
	}

	// 释放后的车可以被再次下单
	if _, err := svc.Place(ctx, otherID, placeReq(c.ID)); err != nil {
		t.Fatalf("Place after cancel: %v", err)
	}
}

func TestCancelOnlyPending(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	o, err := svc.Place(ctx, buyerID, placeReq(c.ID))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if _, err := svc.Pay(ctx, buyerID, o.ID, payment.OutcomeSuccess); err != nil {
		t.Fatalf("Pay: %v", err)
	}
	_, err = svc.Cancel(ctx, buyerID, o.ID)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("Cancel confirmed: err = %v, want conflict", err)
	}
}

func TestDeleteReleasesCar(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	o, err := svc.Place(ctx, buyerID, placeReq(c.ID))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := svc.Delete(ctx, buyerID, o.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = svc.Get(ctx, buyerID, o.ID)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("Get after delete: err = %v, want not found", err)
	}
	if cs := carStatus(t, gdb, c.ID); cs != car.StatusAvailable {
		t.Fatalf("car status = %s, want %s", cs, car.StatusAvailable)
	}
}

func TestBuyerAndSellerViews(t *testing.T) {
	svc, gdb := newTestService(t)
	c := seedCar(t, gdb, car.StatusAvailable)
	ctx := context.Background()

	o, err := svc.Place(ctx, buyerID, placeReq(c.ID))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	if _, err := svc.Get(ctx, otherID, o.ID); apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("Get by stranger: err = %v, want authorization", err)
	}
	if _, err := svc.OwnerGet(ctx, otherID, o.ID); apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("OwnerGet by stranger: err = %v, want authorization", err)
	}

	got, err := svc.OwnerGet(ctx, sellerID, o.ID)
	if err != nil {
		t.Fatalf("OwnerGet: %v", err)
	}
	if got.ID != o.ID {
		t.Fatalf("OwnerGet returned order %d, want %d", got.ID, o.ID)
	}

	mine, err := svc.ListByBuyer(ctx, buyerID)
	if err != nil || len(mine) != 1 {
		t.Fatalf("ListByBuyer = %v, %v", mine, err)
	}
	sold, err := svc.ListBySeller(ctx, sellerID)
	if err != nil || len(sold) != 1 {
		t.Fatalf("ListBySeller = %v, %v", sold, err)
	}
	none, err := svc.ListByBuyer(ctx, otherID)
	if err != nil || len(none) != 0 {
		t.Fatalf("ListByBuyer stranger = %v, %v", none, err)
	}
}
