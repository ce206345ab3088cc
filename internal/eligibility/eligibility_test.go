package eligibility

import (
	"testing"
	"time"

	"github.com/mkoshelev/bto-system/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCanApplyForFlatType(t *testing.T) {
	tests := []struct {
		name     string
		age      int
		marital  model.MaritalStatus
		role     model.Role
		flatType model.FlatType
		want     bool
	}{
		{
			name:     "single 35 two-room",
			age:      35,
			marital:  model.MaritalSingle,
			role:     model.RoleApplicant,
			flatType: model.FlatTypeTwoRoom,
			want:     true,
		},
		{
			name:     "single 35 three-room",
			age:      35,
			marital:  model.MaritalSingle,
			role:     model.RoleApplicant,
			flatType: model.FlatTypeThreeRoom,
			want:     false,
		},
		{
			name:     "single 30 three-room",
			age:      30,
			marital:  model.MaritalSingle,
			role:     model.RoleApplicant,
			flatType: model.FlatTypeThreeRoom,
			want:     false,
		},
		{
			name:     "married 21 three-room",
			age:      21,
			marital:  model.MaritalMarried,
			role:     model.RoleApplicant,
			flatType: model.FlatTypeThreeRoom,
			want:     true,
		},
		{
			name:     "married 20 two-room",
			age:      20,
			marital:  model.MaritalMarried,
			role:     model.RoleApplicant,
			flatType: model.FlatTypeTwoRoom,
			want:     false,
		},
		{
			name:     "officer can apply like applicant",
			age:      40,
			marital:  model.MaritalMarried,
			role:     model.RoleOfficer,
			flatType: model.FlatTypeTwoRoom,
			want:     true,
		},
		{
			name:     "manager never applies",
			age:      40,
			marital:  model.MaritalMarried,
			role:     model.RoleManager,
			flatType: model.FlatTypeTwoRoom,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &model.User{Age: tt.age, MaritalStatus: tt.marital, Role: tt.role}
			got := CanApplyForFlatType(u, tt.flatType)
			if got != tt.want {
				t.Fatalf("CanApplyForFlatType = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDatesOverlap(t *testing.T) {
	tests := []struct {
		name                           string
		openA, closeA, openB, closeB   time.Time
		want                           bool
	}{
		{
			name:  "partial overlap",
			openA: date(2024, 1, 1), closeA: date(2024, 1, 31),
			openB: date(2024, 1, 15), closeB: date(2024, 2, 15),
			want: true,
		},
		{
			name:  "touching boundaries are inclusive",
			openA: date(2024, 1, 1), closeA: date(2024, 1, 31),
			openB: date(2024, 1, 31), closeB: date(2024, 2, 28),
			want: true,
		},
		{
			name:  "disjoint",
			openA: date(2024, 1, 1), closeA: date(2024, 1, 31),
			openB: date(2024, 2, 1), closeB: date(2024, 2, 28),
			want: false,
		},
		{
			name:  "contained",
			openA: date(2024, 1, 1), closeA: date(2024, 3, 31),
			openB: date(2024, 2, 1), closeB: date(2024, 2, 28),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DatesOverlap(tt.openA, tt.closeA, tt.openB, tt.closeB)
			if got != tt.want {
				t.Fatalf("DatesOverlap = %v, want %v", got, tt.want)
			}
			// Пересечение симметрично.
			if rev := DatesOverlap(tt.openB, tt.closeB, tt.openA, tt.closeA); rev != got {
				t.Fatalf("DatesOverlap is not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestIsProjectVisibleToUser(t *testing.T) {
	hidden := &model.Project{Name: "Yishun Grove", Visible: false}

	applicant := &model.User{Nric: "S1234567D", Role: model.RoleApplicant}
	manager := &model.User{Nric: "T0000001E", Role: model.RoleManager}
	officer := &model.User{Nric: "F1234567N", Role: model.RoleOfficer}

	if !IsProjectVisibleToUser(manager, hidden, nil, nil) {
		t.Fatalf("manager must see hidden project")
	}

	if IsProjectVisibleToUser(applicant, hidden, nil, nil) {
		t.Fatalf("hidden project must not be visible without application")
	}

	apps := []model.BTOApplication{
		{ProjectName: "YISHUN GROVE", Status: model.ApplicationStatusPendingWithdrawal},
	}
	if !IsProjectVisibleToUser(applicant, hidden, apps, nil) {
		t.Fatalf("active application must keep hidden project visible")
	}

	terminal := []model.BTOApplication{
		{ProjectName: "Yishun Grove", Status: model.ApplicationStatusWithdrawn},
	}
	if IsProjectVisibleToUser(applicant, hidden, terminal, nil) {
		t.Fatalf("terminal application must not keep hidden project visible")
	}

	regs := []model.OfficerRegistration{
		{ProjectName: "yishun grove", Status: model.RegistrationStatusApproved},
	}
	if !IsProjectVisibleToUser(officer, hidden, nil, regs) {
		t.Fatalf("approved registration must keep hidden project visible to officer")
	}
}

func TestCanOfficerRegister_OverlappingPendingRegistration(t *testing.T) {
	officer := &model.User{Nric: "F1234567N", Role: model.RoleOfficer}

	projectX := &model.Project{
		Name:         "Project X",
		OpenDate:     date(2024, 1, 1),
		CloseDate:    date(2024, 1, 31),
		OfficerSlots: 3,
	}
	projectY := &model.Project{
		Name:         "Project Y",
		OpenDate:     date(2024, 1, 15),
		CloseDate:    date(2024, 2, 15),
		OfficerSlots: 3,
	}

	now := date(2024, 1, 10)
	all := []*model.Project{projectX, projectY}

	if !CanOfficerRegister(officer, projectX, now, nil, nil, all) {
		t.Fatalf("first registration must be allowed")
	}

	regs := []model.OfficerRegistration{
		{ProjectName: "Project X", Status: model.RegistrationStatusPending},
	}
	if CanOfficerRegister(officer, projectY, now, nil, regs, all) {
		t.Fatalf("registration to overlapping project must be rejected")
	}
}

func TestCanOfficerRegister_Conditions(t *testing.T) {
	officer := &model.User{Nric: "F1234567N", Role: model.RoleOfficer}
	now := date(2024, 1, 10)

	project := &model.Project{
		Name:         "Punggol Breeze",
		OpenDate:     date(2024, 1, 1),
		CloseDate:    date(2024, 1, 31),
		OfficerSlots: 1,
	}
	all := []*model.Project{project}

	t.Run("no free slots", func(t *testing.T) {
		full := &model.Project{
			Name:         "Punggol Breeze",
			OpenDate:     project.OpenDate,
			CloseDate:    project.CloseDate,
			OfficerSlots: 1,
			Officers:     []string{"T0000001E"},
		}
		if CanOfficerRegister(officer, full, now, nil, nil, []*model.Project{full}) {
			t.Fatalf("must reject when no slots remain")
		}
	})

	t.Run("closed project", func(t *testing.T) {
		if CanOfficerRegister(officer, project, date(2024, 2, 1), nil, nil, all) {
			t.Fatalf("must reject after closing date")
		}
	})

	t.Run("closing date itself is allowed", func(t *testing.T) {
		if !CanOfficerRegister(officer, project, date(2024, 1, 31), nil, nil, all) {
			t.Fatalf("closing date is inclusive")
		}
	})

	t.Run("existing registration of any status", func(t *testing.T) {
		regs := []model.OfficerRegistration{
			{ProjectName: "PUNGGOL BREEZE", Status: model.RegistrationStatusRejected},
		}
		if CanOfficerRegister(officer, project, now, nil, regs, all) {
			t.Fatalf("must reject with existing registration for the project")
		}
	})

	t.Run("active application elsewhere", func(t *testing.T) {
		apps := []model.BTOApplication{
			{ProjectName: "Other", Status: model.ApplicationStatusSuccessful},
		}
		if CanOfficerRegister(officer, project, now, apps, nil, all) {
			t.Fatalf("must reject with active application")
		}
	})

	t.Run("past application to same project", func(t *testing.T) {
		apps := []model.BTOApplication{
			{ProjectName: "Punggol Breeze", Status: model.ApplicationStatusUnsuccessful},
		}
		if CanOfficerRegister(officer, project, now, apps, nil, all) {
			t.Fatalf("must reject when officer ever applied to the project")
		}
	})

	t.Run("applicant role", func(t *testing.T) {
		u := &model.User{Nric: "S1234567D", Role: model.RoleApplicant}
		if CanOfficerRegister(u, project, now, nil, nil, all) {
			t.Fatalf("only officers register for projects")
		}
	})
}
