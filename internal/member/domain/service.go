package domain

import (
	"context"

	"github.com/groundswell-app/groundswell/pkg/db/pagination"
)

type RegisterMemberRequest struct {
	FullName     string
	Email        string
	Phone        string
	ReferralCode string
}

type GetMemberRequest struct {
	ID string
}

type ListMemberRequest struct {
	PageToken string
	PageSize  int32
	Status    string
}

type ListMemberResponse struct {
	pagination.PageInfo
	Members []Member `json:"members"`
}

// Service manages the member lifecycle. Activate marks registration complete
// and is the moment a stored referral code is converted into a referral credit.
type Service interface {
	Register(ctx context.Context, req RegisterMemberRequest) (Member, error)
	Activate(ctx context.Context, req GetMemberRequest) (Member, error)
	Suspend(ctx context.Context, req GetMemberRequest) (Member, error)
	SoftDelete(ctx context.Context, req GetMemberRequest) error
	GetByID(ctx context.Context, req GetMemberRequest) (Member, error)
	List(ctx context.Context, req ListMemberRequest) (ListMemberResponse, error)
}
