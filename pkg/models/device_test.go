package models

import (
	"testing"
	"time"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want Condition
		ok   bool
	}{
		{"good", ConditionGood, true},
		{" Brand New ", ConditionBrandNew, true},
		{"BRANDNEW", ConditionBrandNew, true},
		{"needs repair", ConditionNeedsRepair, true},
		{"Healthy", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCondition(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseCondition(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseCollection(t *testing.T) {
	if c, ok := ParseCollection("Deployed"); !ok || c != CollectionDeployed {
		t.Errorf("ParseCollection(Deployed) = (%q, %v)", c, ok)
	}
	if _, ok := ParseCollection("archive"); ok {
		t.Error("ParseCollection(archive) should fail")
	}
}

func TestMaintenanceStatusValid(t *testing.T) {
	for _, s := range Statuses {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false", s)
		}
	}
	if MaintenanceStatus("GOOD").Valid() {
		t.Error("condition value must not be a valid status")
	}
}

func TestDeviceCloneIsDeep(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := &Device{
		Tag:                 "LT-001",
		LastMaintenanceDate: &now,
		MaintenanceChecklist: map[string]TaskRecord{
			"OS update": {Completed: true, CompletedDate: &now},
		},
	}
	cp := d.Clone()
	later := now.Add(time.Hour)
	*cp.LastMaintenanceDate = later
	*cp.MaintenanceChecklist["OS update"].CompletedDate = later
	cp.MaintenanceChecklist["new"] = TaskRecord{}

	if !d.LastMaintenanceDate.Equal(now) {
		t.Error("clone shares LastMaintenanceDate")
	}
	if !d.MaintenanceChecklist["OS update"].CompletedDate.Equal(now) {
		t.Error("clone shares CompletedDate")
	}
	if _, ok := d.MaintenanceChecklist["new"]; ok {
		t.Error("clone shares checklist map")
	}
	if (*Device)(nil).Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}
