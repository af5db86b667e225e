package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestClassify_InclusiveBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Classification
	}{
		{100, ClassificationHealthy},
		{75, ClassificationHealthy},
		{74.999, ClassificationAttention},
		{50, ClassificationAttention},
		{49.999, ClassificationCritical},
		{25, ClassificationCritical},
		{24.999, ClassificationLost},
		{0, ClassificationLost},
	}
	for _, tc := range cases {
		if got := Classify(tc.score); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestClassification_IsAtRisk(t *testing.T) {
	if ClassificationHealthy.IsAtRisk() || ClassificationAttention.IsAtRisk() {
		t.Error("healthy/attention should not be at risk")
	}
	if !ClassificationCritical.IsAtRisk() || !ClassificationLost.IsAtRisk() {
		t.Error("critical/lost should be at risk")
	}
}

func TestPlaybookTemplate_Validate(t *testing.T) {
	valid := PlaybookTemplate{
		ID:                 uuid.New(),
		Name:               "critical-outreach",
		RiskClassification: ClassificationCritical,
		Steps: []PlaybookStep{
			{Order: 1, ActionType: ActionTypeCall, Description: "call", DeadlineDays: 2},
			{Order: 2, ActionType: ActionTypeMeeting, Description: "meet", DeadlineDays: 7},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}

	noName := valid
	noName.Name = ""
	if err := noName.Validate(); err == nil {
		t.Error("template without a name should be rejected")
	}

	badClass := valid
	badClass.RiskClassification = "urgent"
	if err := badClass.Validate(); err == nil {
		t.Error("unknown risk classification should be rejected")
	}

	gap := valid
	gap.Steps = []PlaybookStep{
		{Order: 1, ActionType: ActionTypeCall, DeadlineDays: 2},
		{Order: 3, ActionType: ActionTypeMeeting, DeadlineDays: 7},
	}
	if err := gap.Validate(); err == nil {
		t.Error("non-contiguous step orders should be rejected")
	}

	badType := valid
	badType.Steps = []PlaybookStep{{Order: 1, ActionType: "send_fax", DeadlineDays: 2}}
	if err := badType.Validate(); err == nil {
		t.Error("unknown action type should be rejected")
	}

	negDeadline := valid
	negDeadline.Steps = []PlaybookStep{{Order: 1, ActionType: ActionTypeCall, DeadlineDays: -1}}
	if err := negDeadline.Validate(); err == nil {
		t.Error("negative deadline should be rejected")
	}
}

func TestMonthHelpers(t *testing.T) {
	d := time.Date(2025, 6, 17, 13, 45, 0, 0, time.UTC)

	if got := MonthStart(d); !got.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("MonthStart = %v", got)
	}
	if got := MonthKey(d); got != "2025-06" {
		t.Errorf("MonthKey = %q", got)
	}
	if got := AddMonths(d, 7); !got.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("AddMonths(+7) = %v", got)
	}
	if got := AddMonths(d, -6); !got.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("AddMonths(-6) = %v", got)
	}
	if got := MonthsBetween(time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC), d); got != 7 {
		t.Errorf("MonthsBetween = %d", got)
	}
}

func TestHasRevenueHistory(t *testing.T) {
	none := ClientActivitySnapshot{DaysSinceLastRevenue: -1}
	if none.HasRevenueHistory() {
		t.Error("no-history snapshot reported history")
	}
	some := ClientActivitySnapshot{DaysSinceLastRevenue: 0}
	if !some.HasRevenueHistory() {
		t.Error("fresh snapshot reported no history")
	}
}
