package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/groundswell-app/groundswell/internal/member/domain"
	"github.com/groundswell-app/groundswell/pkg/db/option"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	return db.WithContext(ctx).Create(member).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&member).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateStatus transitions status only when the current status is one of the
// allowed source states, returning the number of rows changed. A zero count
// means the member was missing or in the wrong state.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, to domain.Status) (int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id)
	if len(from) > 0 {
		stmt = stmt.Where("status IN ?", from)
	}
	result := stmt.Update("status", to)
	return result.RowsAffected, result.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListMemberFilter, page pagination.Pagination) ([]*domain.Member, error) {
	var members []*domain.Member
	stmt := db.WithContext(ctx).Model(&domain.Member{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.Order("id desc").Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
