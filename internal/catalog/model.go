package catalog

import "time"

// 三级车辆品类：Make（品牌）→ Model（车系）→ Variant（版本/配置）。
// 自然键（父级 + 名称）带唯一索引，find-or-create 依赖它兜底并发。

// Make 是 makes 表的 GORM 模型。
type Make struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Model 车系，名称在所属品牌内唯一。
type Model struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MakeID    uint      `gorm:"uniqueIndex:uniq_model_make_name;not null" json:"make_id"`
	Name      string    `gorm:"uniqueIndex:uniq_model_make_name;size:64;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Variant 版本，名称在所属车系内唯一。
type Variant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ModelID   uint      `gorm:"uniqueIndex:uniq_variant_model_name;not null" json:"model_id"`
	Name      string    `gorm:"uniqueIndex:uniq_variant_model_name;size:64;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
