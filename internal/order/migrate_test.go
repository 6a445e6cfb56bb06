package order

import (
	"context"
	"testing"

	"github.com/CarLinkTrade/CarLinkTrade/internal/car"
)

func TestBackfillCarStatus(t *testing.T) {
	_, gdb := newTestService(t)
	ctx := context.Background()

	reserved := seedCar(t, gdb, car.StatusAvailable)
	sold := seedCar(t, gdb, car.StatusAvailable)
	free := seedCar(t, gdb, car.StatusAvailable)
	untouched := seedCar(t, gdb, car.StatusSold)

	for _, o := range []*Order{
		{BuyerID: buyerID, CarID: reserved.ID, SellerID: sellerID, Status: StatusPending, TotalPrice: reserved.Price},
		{BuyerID: buyerID, CarID: sold.ID, SellerID: sellerID, Status: StatusConfirmed, TotalPrice: sold.Price},
	} {
		if err := gdb.Create(o).Error; err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}

	// 模拟状态列刚加上、存量行为空的场景
	ids := []uint{reserved.ID, sold.ID, free.ID}
	if err := gdb.Model(&car.Car{}).Where("id IN ?", ids).Update("status", "").Error; err != nil {
		t.Fatalf("blank statuses: %v", err)
	}

	if err := AutoMigrate(ctx, gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	cases := []struct {
		id   uint
		want car.Status
	}{
		{reserved.ID, car.StatusReserved},
		{sold.ID, car.StatusSold},
		{free.ID, car.StatusAvailable},
		{untouched.ID, car.StatusSold},
	}
	for _, c := range cases {
		if got := carStatus(t, gdb, c.id); got != c.want {
			t.Errorf("car %d status = %s, want %s", c.id, got, c.want)
		}
	}
}
