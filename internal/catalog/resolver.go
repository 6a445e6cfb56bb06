package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/CarLinkTrade/CarLinkTrade/internal/common/apperr"
	"gorm.io/gorm"
)

// Ref 指向一个品类实体：按 ID，或按自由文本标题（卖家手输的品牌/车系名）。
// 两者都给时先走 ID，ID 查不到再回退标题。
type Ref struct {
	ID    uint
	Title string
}

// ByID 按已有记录 ID 引用。
func ByID(id uint) Ref { return Ref{ID: id} }

// ByTitle 按自由文本标题引用（会触发 find-or-create）。
func ByTitle(title string) Ref { return Ref{Title: strings.TrimSpace(title)} }

// NewRef 从请求字段组装引用；id 为 0 视为未提供。
func NewRef(id uint, title string) Ref {
	return Ref{ID: id, Title: strings.TrimSpace(title)}
}

func (r Ref) empty() bool { return r.ID == 0 && r.Title == "" }

// Resolver 把 make/model/variant 的引用解析为具体记录，
// 标题不存在时按（父级, 名称）惰性建档。
type Resolver struct {
	repo *Repo
}

func NewResolver(repo *Repo) *Resolver {
	return &Resolver{repo: repo}
}

// Resolved 一次完整解析的结果；Model 必属 Make，Variant 必属 Model。
type Resolved struct {
	Make    *Make
	Model   *Model
	Variant *Variant
}

// Resolve 依次解析品牌→车系→版本，保证父子引用一致。
func (rs *Resolver) Resolve(ctx context.Context, makeRef, modelRef, variantRef Ref) (*Resolved, error) {
	mk, err := rs.ResolveMake(ctx, makeRef)
	if err != nil {
		return nil, err
	}
	md, err := rs.ResolveModel(ctx, mk, modelRef)
	if err != nil {
		return nil, err
	}
	vr, err := rs.ResolveVariant(ctx, md, variantRef)
	if err != nil {
		return nil, err
	}
	return &Resolved{Make: mk, Model: md, Variant: vr}, nil
}

func (rs *Resolver) ResolveMake(ctx context.Context, ref Ref) (*Make, error) {
	if ref.empty() {
		return nil, apperr.ValidationField("make", "make_id or make_title is required")
	}
	if ref.ID != 0 {
		m, err := rs.repo.FindMakeByID(ctx, ref.ID)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal(err)
		}
		if ref.Title == "" {
			return nil, apperr.ValidationField("make_id", "make does not exist")
		}
	}

	m, err := rs.repo.FindMakeByName(ctx, ref.Title)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	created := &Make{Name: ref.Title}
	if err := rs.repo.CreateMake(ctx, created); err != nil {
		// 并发创建撞唯一键：重查一次即可
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			m, ferr := rs.repo.FindMakeByName(ctx, ref.Title)
			if ferr != nil {
				return nil, apperr.Internal(ferr)
			}
			return m, nil
		}
		return nil, apperr.Internal(err)
	}
	return created, nil
}

func (rs *Resolver) ResolveModel(ctx context.Context, mk *Make, ref Ref) (*Model, error) {
	if mk == nil {
		return nil, apperr.ValidationField("make", "make must be resolved first")
	}
	if ref.empty() {
		return nil, apperr.ValidationField("model", "model_id or model_title is required")
	}
	if ref.ID != 0 {
		m, err := rs.repo.FindModelByID(ctx, ref.ID)
		if err == nil {
			if m.MakeID != mk.ID {
				return nil, apperr.ValidationField("model_id", "model does not belong to the given make")
			}
			return m, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal(err)
		}
		if ref.Title == "" {
			return nil, apperr.ValidationField("model_id", "model does not exist")
		}
	}

	m, err := rs.repo.FindModelByName(ctx, mk.ID, ref.Title)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	created := &Model{MakeID: mk.ID, Name: ref.Title}
	if err := rs.repo.CreateModel(ctx, created); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			m, ferr := rs.repo.FindModelByName(ctx, mk.ID, ref.Title)
			if ferr != nil {
				return nil, apperr.Internal(ferr)
			}
			return m, nil
		}
		return nil, apperr.Internal(err)
	}
	return created, nil
}

func (rs *Resolver) ResolveVariant(ctx context.Context, md *Model, ref Ref) (*Variant, error) {
	if md == nil {
		return nil, apperr.ValidationField("model", "model must be resolved first")
	}
	if ref.empty() {
		return nil, apperr.ValidationField("variant", "variant_id or variant_title is required")
	}
	if ref.ID != 0 {
		v, err := rs.repo.FindVariantByID(ctx, ref.ID)
		if err == nil {
			if v.ModelID != md.ID {
				return nil, apperr.ValidationField("variant_id", "variant does not belong to the given model")
			}
			return v, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal(err)
		}
		if ref.Title == "" {
			return nil, apperr.ValidationField("variant_id", "variant does not exist")
		}
	}

	v, err := rs.repo.FindVariantByName(ctx, md.ID, ref.Title)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	created := &Variant{ModelID: md.ID, Name: ref.Title}
	if err := rs.repo.CreateVariant(ctx, created); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			v, ferr := rs.repo.FindVariantByName(ctx, md.ID, ref.Title)
			if ferr != nil {
				return nil, apperr.Internal(ferr)
			}
			return v, nil
		}
		return nil, apperr.Internal(err)
	}
	return created, nil
}
