package models

import (
	"github.com/google/uuid"
)

// CascadeTaskKind names the evaluator a cascade task runs.
type CascadeTaskKind string

const (
	TaskAffiliate CascadeTaskKind = "affiliate"
	TaskStepUp    CascadeTaskKind = "step_up"
	TaskRipple    CascadeTaskKind = "ripple"
	TaskInfinity  CascadeTaskKind = "infinity"
	TaskVoucher   CascadeTaskKind = "voucher"
	TaskCashback  CascadeTaskKind = "cashback"
)

type CascadeTaskStatus string

const (
	TaskPending CascadeTaskStatus = "pending"
	TaskDone    CascadeTaskStatus = "done"
	TaskFailed  CascadeTaskStatus = "failed"
)

// CascadeTask is one pending evaluation in a reward cascade. Tasks are written
// in the same transaction as the state change that causes them, so a crashed
// cascade can be driven again from what is persisted.
type CascadeTask struct {
	BaseModel
	Kind            CascadeTaskKind   `gorm:"size:16;index;not null" json:"kind"`
	Status          CascadeTaskStatus `gorm:"size:16;index;not null" json:"status"`
	RootReference   string            `gorm:"size:64;index" json:"root_reference"`
	CustomerID      *uuid.UUID        `gorm:"type:uuid" json:"customer_id,omitempty"`
	MerchantID      *uuid.UUID        `gorm:"type:uuid" json:"merchant_id,omitempty"`
	GlobalNumber    int64             `json:"global_number,omitempty"`
	StepUpRewardID  *uuid.UUID        `gorm:"type:uuid" json:"step_up_reward_id,omitempty"`
	Points          int64             `json:"points,omitempty"`
	SourceReference string            `gorm:"size:64" json:"source_reference,omitempty"`
	Attempts        int               `gorm:"not null;default:0" json:"attempts"`
	LastError       string            `json:"last_error,omitempty"`
}
