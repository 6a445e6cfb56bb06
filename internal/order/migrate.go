package order

import (
	"context"

	"github.com/CarLinkTrade/CarLinkTrade/internal/car"
	"github.com/CarLinkTrade/CarLinkTrade/internal/catalog"
	"github.com/CarLinkTrade/CarLinkTrade/internal/user"
	"gorm.io/gorm"
)

// AutoMigrate 建表并回填历史车辆状态。
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&user.User{},
		&catalog.Make{}, &catalog.Model{}, &catalog.Variant{},
		&car.Car{}, &car.CarImage{},
		&Order{},
	)
	if err != nil {
		return err
	}
	return backfillCarStatus(ctx, db)
}

// backfillCarStatus 为状态列为空的存量车辆推导状态：
// 有 Pending 订单 -> RESERVED，有 Confirmed/Completed 订单 -> SOLD，
// 其余 -> AVAILABLE。幂等，已有状态的行不受影响。
func backfillCarStatus(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		blank := func() *gorm.DB {
			return tx.Model(&car.Car{}).Where("status IS NULL OR status = ''")
		}

		err := blank().
			Where("id IN (?)", tx.Model(&Order{}).Select("car_id").Where("status = ?", StatusPending)).
			Update("status", car.StatusReserved).Error
		if err != nil {
			return err
		}
		err = blank().
			Where("id IN (?)", tx.Model(&Order{}).Select("car_id").Where("status IN ?", []Status{StatusConfirmed, StatusCompleted})).
			Update("status", car.StatusSold).Error
		if err != nil {
			return err
		}
		return blank().Update("status", car.StatusAvailable).Error
	})
}
