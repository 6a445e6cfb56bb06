package order

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CarLinkTrade/CarLinkTrade/internal/car"
	"github.com/CarLinkTrade/CarLinkTrade/internal/user"
	"github.com/shopspring/decimal"
)

// Status 订单状态枚举（持久化为字符串，取值沿用前端已依赖的大小写）。
type Status string

const (
	StatusPending   Status = "Pending"   // 已下单，待支付
	StatusConfirmed Status = "Confirmed" // 支付确认，待交车
	StatusCompleted Status = "Completed" // 已交车（终态）
	StatusCancelled Status = "Cancelled" // 已取消（终态）
)

// ValidStatus 判断字符串是否是合法的订单状态。
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Item 订单条目（referenced_id + 数量）。
type Item struct {
	ID  uint `json:"id"`
	Qty int  `json:"qty"`
}

// Items 以 JSON 存进 order_items 列。
type Items []Item

func (it Items) Value() (driver.Value, error) {
	if it == nil {
		it = Items{}
	}
	b, err := json.Marshal(it)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (it *Items) Scan(src interface{}) error {
	if src == nil {
		*it = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported order_items column type %T", src)
	}
	return json.Unmarshal(data, it)
}

// Order 订单 GORM 模型。
// seller_id 在下单时从车辆 owner 冗余拷贝（车辆归属创建后不可变，不会失真）。
type Order struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	BuyerID    uint            `gorm:"index;not null" json:"buyer_id"`
	CarID      uint            `gorm:"index;not null" json:"car_id"`
	SellerID   uint            `gorm:"index" json:"seller_id"`
	Items      Items           `gorm:"column:order_items;type:json" json:"order_items"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_price"`
	Status     Status          `gorm:"type:varchar(16);index;not null" json:"status"`

	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"` // 支付确认时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 交车时间
	CancelledAt *time.Time `json:"cancelled_at,omitempty"` // 取消时间

	Car   *car.Car   `gorm:"foreignKey:CarID" json:"car,omitempty"`
	Buyer *user.User `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
}

// DefaultItems 调用方未提供条目时的缺省：车辆本身一件。
func DefaultItems(carID uint) Items {
	return Items{{ID: carID, Qty: 1}}
}

// DepositRate 模拟支付的定金比例。
var DepositRate = decimal.NewFromFloat(0.10)

// DepositFor 定金 = 订单总价 × 10%，保留两位小数。仅用于展示，不落库。
func DepositFor(totalPrice decimal.Decimal) decimal.Decimal {
	return totalPrice.Mul(DepositRate).Round(2)
}
