package order

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repo 订单数据访问层。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func withRelations(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Car").
		Preload("Car.Make").
		Preload("Car.Model").
		Preload("Car.Variant").
		Preload("Car.Images").
		Preload("Buyer")
}

func (r *Repo) Create(ctx context.Context, o *Order) error {
	return r.withCtx(ctx).Create(o).Error
}

func (r *Repo) FindByID(ctx context.Context, id uint) (*Order, error) {
	var o Order
	err := withRelations(r.withCtx(ctx)).First(&o, id).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByBuyer 返回买家的全部订单，按创建时间倒序。
func (r *Repo) ListByBuyer(ctx context.Context, buyerID uint) ([]Order, error) {
	var orders []Order
	err := withRelations(r.withCtx(ctx)).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// ListBySeller 返回卖家名下车辆关联的全部订单。
func (r *Repo) ListBySeller(ctx context.Context, sellerID uint) ([]Order, error) {
	var orders []Order
	err := withRelations(r.withCtx(ctx)).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// SaveTransition 以状态前置条件写回状态流转结果，返回是否命中。
// WHERE 带上旧状态做比较交换，防止并发下覆盖他人已提交的流转。
func (r *Repo) SaveTransition(ctx context.Context, o *Order, from Status) (bool, error) {
	updates := map[string]interface{}{
		"status":     o.Status,
		"updated_at": time.Now(),
	}
	switch o.Status {
	case StatusConfirmed:
		updates["confirmed_at"] = o.ConfirmedAt
	case StatusCompleted:
		updates["completed_at"] = o.CompletedAt
	case StatusCancelled:
		updates["cancelled_at"] = o.CancelledAt
	}

	res := r.withCtx(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", o.ID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) Delete(ctx context.Context, id uint) error {
	return r.withCtx(ctx).Delete(&Order{}, id).Error
}
