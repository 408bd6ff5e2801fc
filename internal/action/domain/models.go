package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	"gorm.io/datatypes"
)

// ActionType names the kind of rewarded interaction.
type ActionType string

const (
	ActionQuizAttempt     ActionType = "quiz_attempt"
	ActionTaskCompletion  ActionType = "task_completion"
	ActionCampaignVote    ActionType = "campaign_vote"
	ActionEventAttendance ActionType = "event_attendance"
	ActionShare           ActionType = "share"
)

// Task subtypes. The subtype participates in the uniqueness slot, so a member
// can complete both a micro and a volunteer task against the same target.
const (
	SubtypeTaskMicro     = "micro"
	SubtypeTaskVolunteer = "volunteer"
)

// RewardableAction records one member's interaction with one target entity.
// The unique index on (member_id, action_type, target_id, subtype) is the sole
// guard against double-claiming; the row is written first and the credit rides
// in the same transaction. Capture fields are advisory, kept for fraud review,
// and may be empty.
type RewardableAction struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	MemberID     snowflake.ID      `gorm:"not null;uniqueIndex:ux_rewardable_actions_member_target,priority:1" json:"member_id"`
	ActionType   ActionType        `gorm:"type:text;not null;uniqueIndex:ux_rewardable_actions_member_target,priority:2" json:"action_type"`
	TargetID     snowflake.ID      `gorm:"not null;uniqueIndex:ux_rewardable_actions_member_target,priority:3" json:"target_id"`
	Subtype      string            `gorm:"not null;default:'';uniqueIndex:ux_rewardable_actions_member_target,priority:4" json:"subtype"`
	Correct      bool              `gorm:"not null;default:true" json:"correct"`
	Points       int64             `gorm:"not null;default:0" json:"points"`
	IPAddress    string            `gorm:"not null;default:''" json:"ip_address,omitempty"`
	UserAgent    string            `gorm:"not null;default:''" json:"user_agent,omitempty"`
	Fingerprint  string            `gorm:"not null;default:''" json:"fingerprint,omitempty"`
	CompletionMs *int64            `json:"completion_ms,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RewardableAction) TableName() string { return "rewardable_actions" }

var (
	ErrInvalidMember   = errors.New("invalid_member")
	ErrInvalidTarget   = errors.New("invalid_target")
	ErrInvalidType     = errors.New("invalid_action_type")
	ErrInvalidSubtype  = errors.New("invalid_subtype")
	ErrDuplicateAction = errors.New("duplicate_action")
)

type RecordActionRequest struct {
	MemberID   snowflake.ID
	ActionType ActionType
	TargetID   snowflake.ID
	Subtype    string

	// Correct only applies to quiz attempts. An incorrect attempt still
	// consumes the one-attempt-per-quiz slot but earns nothing.
	Correct *bool

	// Points overrides the configured reward when positive, for targets
	// that carry their own point value.
	Points int64

	CompletionMs *int64
	Metadata     map[string]any
}

type RecordActionResponse struct {
	Action      RewardableAction
	Credited    bool
	Transaction *ledgerdomain.PointsTransaction
}

type ListActionRequest struct {
	MemberID   string
	ActionType string
	PageToken  string
	PageSize   int32
}

type ListActionResponse struct {
	Actions       []RewardableAction
	NextPageToken string
	HasMore       bool
}

// Service validates and records rewardable actions. Record is the only write
// path: it inserts the action row and credits the ledger atomically, relying
// on the storage uniqueness constraint to reject double claims.
type Service interface {
	Record(ctx context.Context, req RecordActionRequest) (RecordActionResponse, error)
	List(ctx context.Context, req ListActionRequest) (ListActionResponse, error)
}
