package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListMemberFilter struct {
	Status string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, member *Member) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, to Status) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListMemberFilter, page pagination.Pagination) ([]*Member, error)
}
