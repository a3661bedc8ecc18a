package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"budgetly/internal/core"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBudgetSet       EventType = "budget.set"
	EventBudgetsRolled   EventType = "budget.rolled_over"
	EventCategoryDeleted EventType = "category.deleted"
)

// BudgetEvent announces a committed change to an owner's budgets. The worker
// re-reads the ledger, so the event carries identifiers only.
type BudgetEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OwnerID    int64     `json:"owner_id"`
	Month      int       `json:"month"`
	Year       int       `json:"year"`
	CategoryID int64     `json:"category_id,omitempty"`
	Copied     int       `json:"copied,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewBudgetEvent(t EventType, ownerID int64, p core.Period) *BudgetEvent {
	return &BudgetEvent{
		ID:        uuid.NewString(),
		Type:      t,
		OwnerID:   ownerID,
		Month:     p.Month,
		Year:      p.Year,
		Timestamp: time.Now().UTC(),
	}
}

func (m *BudgetEvent) Period() core.Period {
	return core.Period{Month: m.Month, Year: m.Year}
}

func (m *BudgetEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetEventFromJSON decodes and validates an event body.
func BudgetEventFromJSON(data []byte) (*BudgetEvent, error) {
	var msg BudgetEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventBudgetSet, EventBudgetsRolled, EventCategoryDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if err := msg.Period().Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
