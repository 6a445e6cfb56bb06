package car

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

// NewRepo 创建仓储；事务内使用时直接传 tx。
func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// withRelations 挂牌详情需要的嵌套关系。
func withRelations(q *gorm.DB) *gorm.DB {
	return q.Preload("Make").Preload("Model").Preload("Variant").Preload("Images")
}

func (r *Repo) Create(ctx context.Context, c *Car) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(c).Error
}

func (r *Repo) Save(ctx context.Context, c *Car) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(c).Error
}

func (r *Repo) FindByID(ctx context.Context, id uint) (*Car, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Car
	if err := withRelations(db).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// List 全量挂牌列表（带品类与图片）。
func (r *Repo) List(ctx context.Context, offset, limit int) ([]Car, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := db.Model(&Car{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var cars []Car
	if err := withRelations(db).Order("created_at DESC").Offset(offset).Limit(limit).Find(&cars).Error; err != nil {
		return nil, 0, err
	}
	return cars, total, nil
}

func (r *Repo) ListByOwner(ctx context.Context, ownerID uint) ([]Car, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var cars []Car
	if err := withRelations(db).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&cars).Error; err != nil {
		return nil, err
	}
	return cars, nil
}

// Random 随机取 n 台在售车辆（首页轮播用）。
func (r *Repo) Random(ctx context.Context, n int) ([]Car, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if n <= 0 {
		n = 1
	}
	// MySQL 与 sqlite 的随机函数名不同
	randFn := "RAND()"
	if db.Dialector.Name() == "sqlite" {
		randFn = "RANDOM()"
	}
	var cars []Car
	if err := withRelations(db).
		Where("status = ?", StatusAvailable).
		Order(randFn).Limit(n).Find(&cars).Error; err != nil {
		return nil, err
	}
	return cars, nil
}

// TransitionStatus 条件更新车辆状态（status 从 from 变为 to）。
// 返回 false 表示没有命中（车不存在或状态已被并发改走），由调用方决定语义。
// 这一步必须在订单事务内执行，配合 RowsAffected 判定实现无锁的并发兜底。
func (r *Repo) TransitionStatus(ctx context.Context, id uint, from, to Status) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	if !CanTransition(from, to) {
		return false, fmt.Errorf("invalid car status transition: %s -> %s", from, to)
	}
	res := db.Model(&Car{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// StatusOf 只读取状态列，供订单事务内做不变式断言。
func (r *Repo) StatusOf(ctx context.Context, id uint) (Status, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return "", fmt.Errorf("repo db is nil")
	}
	var c Car
	if err := db.Select("status").First(&c, id).Error; err != nil {
		return "", err
	}
	return c.Status, nil
}

func (r *Repo) AddImages(ctx context.Context, carID uint, paths []string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if len(paths) == 0 {
		return nil
	}
	images := make([]CarImage, 0, len(paths))
	for _, p := range paths {
		images = append(images, CarImage{CarID: carID, ImagePath: p})
	}
	return db.Create(&images).Error
}

// Delete 删除车辆并级联删除图片记录。
func (r *Repo) Delete(ctx context.Context, id uint) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("car_id = ?", id).Delete(&CarImage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Car{}, id).Error
	})
}
