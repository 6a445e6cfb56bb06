package car

import (
	"time"

	"github.com/CarLinkTrade/CarLinkTrade/internal/catalog"
	"github.com/shopspring/decimal"
)

// Status 车辆可售状态枚举（持久化为字符串）。
type Status string

const (
	StatusAvailable Status = "AVAILABLE" // 在售，可下单
	StatusReserved  Status = "RESERVED"  // 已被订单锁定
	StatusSold      Status = "SOLD"      // 已售出（终态）
)

// Car 是 cars 表的 GORM 模型。
// status 只随订单生命周期变化，任何挂牌编辑接口都不得直接写它。
type Car struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OwnerID   uint            `gorm:"index;not null" json:"owner_id"`
	MakeID    uint            `gorm:"index;not null" json:"make_id"`
	ModelID   uint            `gorm:"index;not null" json:"model_id"`
	VariantID uint            `gorm:"index;not null" json:"variant_id"`
	Color     string          `gorm:"size:50" json:"color"`
	Year      int             `gorm:"not null" json:"year"`
	Mileage   int             `gorm:"not null" json:"mileage"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Desc      string          `gorm:"column:description;type:text" json:"description"`
	Status    Status          `gorm:"type:varchar(16);index;not null;default:'AVAILABLE'" json:"status"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Make    *catalog.Make    `gorm:"foreignKey:MakeID" json:"make,omitempty"`
	Model   *catalog.Model   `gorm:"foreignKey:ModelID" json:"model,omitempty"`
	Variant *catalog.Variant `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
	Images  []CarImage       `gorm:"foreignKey:CarID" json:"images,omitempty"`
}

// CarImage 车辆图片记录，随车辆级联删除。文件本体存储在外部。
type CarImage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CarID     uint      `gorm:"index;not null" json:"car_id"`
	ImagePath string    `gorm:"size:255;not null" json:"image_path"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// MinYear 车辆年份下限。
const MinYear = 1900

// MaxYear 年份上限：允许到下一年款。
func MaxYear(now time.Time) int { return now.Year() + 1 }

// YearValid 年份边界校验（闭区间）。
func YearValid(year int, now time.Time) bool {
	return year >= MinYear && year <= MaxYear(now)
}
