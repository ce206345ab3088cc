package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mkoshelev/bto-system/internal/model"
	"github.com/mkoshelev/bto-system/internal/repository"
)

func TestCreateProject_StartsHiddenWithFullInventory(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	addUser(t, repo, "S7654321", 45, model.MaritalMarried, model.RoleManager)
	open, close := openWindow()

	err := svc.CreateProject(ctx, "S7654321", &model.Project{
		Name:         "Sunrise Grove",
		Neighborhood: "Yishun",
		OpenDate:     open,
		CloseDate:    close,
		OfficerSlots: 3,
		Flats: map[model.FlatType]model.FlatUnits{
			model.FlatTypeTwoRoom: {Total: 10, PriceCents: 35000000},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	p, err := repo.GetProjectByName(ctx, "Sunrise Grove")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if p.Visible {
		t.Fatalf("new project must start hidden")
	}
	if p.Flats[model.FlatTypeTwoRoom].Available != 10 {
		t.Fatalf("available = %d, want total 10", p.Flats[model.FlatTypeTwoRoom].Available)
	}
	if p.ManagerNric != "S7654321" {
		t.Fatalf("manager = %q, want S7654321", p.ManagerNric)
	}
}

func TestCreateProject_ManagerBusyInOverlappingPeriod(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	addUser(t, repo, "S7654321", 45, model.MaritalMarried, model.RoleManager)
	open, close := openWindow()
	addProject(t, repo, "Sunrise Grove", "S7654321", 3, open, close, map[model.FlatType]model.FlatUnits{
		model.FlatTypeTwoRoom: {Total: 5, Available: 5},
	})

	err := svc.CreateProject(ctx, "S7654321", &model.Project{
		Name:         "Bayview",
		OpenDate:     open.AddDate(0, 0, 3),
		CloseDate:    close.AddDate(0, 0, 3),
		OfficerSlots: 3,
		Flats: map[model.FlatType]model.FlatUnits{
			model.FlatTypeTwoRoom: {Total: 5},
		},
	})
	if !errors.Is(err, ErrManagerBusy) {
		t.Fatalf("expected ErrManagerBusy, got %v", err)
	}

	// Непересекающийся период проходит.
	err = svc.CreateProject(ctx, "S7654321", &model.Project{
		Name:         "Bayview",
		OpenDate:     close.AddDate(0, 1, 0),
		CloseDate:    close.AddDate(0, 2, 0),
		OfficerSlots: 3,
		Flats: map[model.FlatType]model.FlatUnits{
			model.FlatTypeTwoRoom: {Total: 5},
		},
	})
	if err != nil {
		t.Fatalf("disjoint period: %v", err)
	}
}

func TestCreateProject_ApplicantForbidden(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	addUser(t, repo, "S1234567D", 36, model.MaritalMarried, model.RoleApplicant)
	open, close := openWindow()

	err := svc.CreateProject(ctx, "S1234567D", &model.Project{
		Name:      "Sunrise Grove",
		OpenDate:  open,
		CloseDate: close,
		Flats: map[model.FlatType]model.FlatUnits{
			model.FlatTypeTwoRoom: {Total: 5},
		},
	})
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestEditProject_OnlyOwnerManager(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	addUser(t, repo, "S7654321", 45, model.MaritalMarried, model.RoleManager)
	addUser(t, repo, "S7654322", 50, model.MaritalMarried, model.RoleManager)
	open, close := openWindow()
	addProject(t, repo, "Sunrise Grove", "S7654321", 3, open, close, map[model.FlatType]model.FlatUnits{
		model.FlatTypeTwoRoom: {Total: 5, Available: 5},
	})

	err := svc.EditProject(ctx, "S7654322", &model.Project{
		Name:      "Sunrise Grove",
		OpenDate:  open,
		CloseDate: close,
		Flats: map[model.FlatType]model.FlatUnits{
			model.FlatTypeTwoRoom: {Total: 7},
		},
	})
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed for foreign manager, got %v", err)
	}
}

func TestListVisibleProjects(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	addUser(t, repo, "S1234567D", 36, model.MaritalMarried, model.RoleApplicant)
	addUser(t, repo, "S7654321", 45, model.MaritalMarried, model.RoleManager)
	open, close := openWindow()

	addProject(t, repo, "Visible Court", "S7654321", 3, open, close, map[model.FlatType]model.FlatUnits{
		model.FlatTypeTwoRoom: {Total: 5, Available: 5},
	})
	addProject(t, repo, "Hidden Court", "S7654321", 3, close.AddDate(0, 1, 0), close.AddDate(0, 2, 0), map[model.FlatType]model.FlatUnits{
		model.FlatTypeTwoRoom: {Total: 5, Available: 5},
	})
	repo.projects[projectKey("Hidden Court")].Visible = false

	visible, err := svc.ListVisibleProjects(ctx, "S1234567D")
	if err != nil {
		t.Fatalf("list for applicant: %v", err)
	}
	if len(visible) != 1 || visible[0].Name != "Visible Court" {
		t.Fatalf("applicant sees %d projects, want only Visible Court", len(visible))
	}

	all, err := svc.ListVisibleProjects(ctx, "S7654321")
	if err != nil {
		t.Fatalf("list for manager: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("manager sees %d projects, want 2", len(all))
	}
}

func TestListVisibleProjects_HiddenWithActiveApplication(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	addUser(t, repo, "S1234567D", 36, model.MaritalMarried, model.RoleApplicant)
	open, close := openWindow()
	addProject(t, repo, "Sunrise Grove", "M0000001", 3, open, close, map[model.FlatType]model.FlatUnits{
		model.FlatTypeTwoRoom: {Total: 5, Available: 5},
	})

	if _, err := svc.SubmitApplication(ctx, "S1234567D", "Sunrise Grove", model.FlatTypeTwoRoom); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Проект скрыли после подачи заявки; заявителю он остаётся виден.
	repo.projects[projectKey("Sunrise Grove")].Visible = false

	visible, err := svc.ListVisibleProjects(ctx, "S1234567D")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("applicant with active application sees %d projects, want 1", len(visible))
	}
}

func TestDeleteProject_BlockedByActiveRecords(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	addUser(t, repo, "S1234567D", 36, model.MaritalMarried, model.RoleApplicant)
	addUser(t, repo, "S7654321", 45, model.MaritalMarried, model.RoleManager)
	open, close := openWindow()
	addProject(t, repo, "Sunrise Grove", "S7654321", 3, open, close, map[model.FlatType]model.FlatUnits{
		model.FlatTypeTwoRoom: {Total: 5, Available: 5},
	})

	if _, err := svc.SubmitApplication(ctx, "S1234567D", "Sunrise Grove", model.FlatTypeTwoRoom); err != nil {
		t.Fatalf("submit: %v", err)
	}

	err := svc.DeleteProject(ctx, "S7654321", "Sunrise Grove", false)
	if !errors.Is(err, repository.ErrProjectHasActiveRecords) {
		t.Fatalf("expected ErrProjectHasActiveRecords, got %v", err)
	}

	if err := svc.DeleteProject(ctx, "S7654321", "Sunrise Grove", true); err != nil {
		t.Fatalf("force delete: %v", err)
	}

	if _, err := repo.GetProjectByName(ctx, "Sunrise Grove"); !errors.Is(err, repository.ErrProjectNotFound) {
		t.Fatalf("project must be gone, got %v", err)
	}
}

func TestGetProjectByName_CaseInsensitive(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	open := time.Now().UTC().AddDate(0, 0, -7)
	close := time.Now().UTC().AddDate(0, 0, 30)
	addProject(t, repo, "Sunrise Grove", "M0000001", 3, open, close, map[model.FlatType]model.FlatUnits{
		model.FlatTypeTwoRoom: {Total: 5, Available: 5},
	})

	p, err := svc.GetProjectByName(ctx, "sunrise grove")
	if err != nil {
		t.Fatalf("lookup with different case: %v", err)
	}
	if p.Name != "Sunrise Grove" {
		t.Fatalf("name = %q, want canonical Sunrise Grove", p.Name)
	}
}
