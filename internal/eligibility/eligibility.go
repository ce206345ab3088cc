// Package eligibility содержит чистые функции проверки правил допуска:
// кто может подать заявку на тип квартиры, кому виден проект и может ли
// офицер зарегистрироваться на проект. Функции не выполняют I/O —
// все данные передаются вызывающей стороной.
package eligibility

import (
	"time"

	"github.com/mkoshelev/bto-system/internal/model"
)

// CanApplyForFlatType проверяет, может ли пользователь подать заявку на
// указанный тип квартиры. Менеджеры не подают заявки; одинокие от 35 лет —
// только на двухкомнатные; женатые от 21 года — на двух- и трёхкомнатные.
func CanApplyForFlatType(u *model.User, flatType model.FlatType) bool {
	if u.Role == model.RoleManager {
		return false
	}

	switch u.MaritalStatus {
	case model.MaritalSingle:
		return u.Age >= 35 && flatType == model.FlatTypeTwoRoom
	case model.MaritalMarried:
		return u.Age >= 21 &&
			(flatType == model.FlatTypeTwoRoom || flatType == model.FlatTypeThreeRoom)
	}

	return false
}

// IsProjectVisibleToUser проверяет, виден ли проект пользователю.
// Менеджеры видят все проекты; остальные — проекты с включённой видимостью,
// проекты со своей незакрытой заявкой и, для офицеров, проекты с
// утверждённой регистрацией.
func IsProjectVisibleToUser(u *model.User, p *model.Project, userApps []model.BTOApplication, userRegs []model.OfficerRegistration) bool {
	if u.Role == model.RoleManager {
		return true
	}

	if p.Visible {
		return true
	}

	for _, a := range userApps {
		if model.SameProjectName(a.ProjectName, p.Name) && a.Status.IsActive() {
			return true
		}
	}

	if u.Role == model.RoleOfficer {
		for _, r := range userRegs {
			if model.SameProjectName(r.ProjectName, p.Name) && r.Status == model.RegistrationStatusApproved {
				return true
			}
		}
	}

	return false
}

// DatesOverlap проверяет пересечение двух периодов подачи заявок.
// Границы периодов включительные.
func DatesOverlap(openA, closeA, openB, closeB time.Time) bool {
	return !openA.After(closeB) && !closeA.Before(openB)
}

// CanOfficerRegister проверяет, может ли офицер зарегистрироваться на проект:
// в проекте есть свободный слот и период подачи ещё не закрыт; у офицера нет
// регистрации на этот проект в любом статусе; у офицера нет незакрытой
// заявки на квартиру; период проекта не пересекается ни с обслуживаемым
// проектом офицера, ни с проектами его ожидающих регистраций; офицер никогда
// не подавал заявку на этот проект.
func CanOfficerRegister(officer *model.User, project *model.Project, now time.Time, officerApps []model.BTOApplication, officerRegs []model.OfficerRegistration, allProjects []*model.Project) bool {
	if officer.Role != model.RoleOfficer {
		return false
	}

	if project.RemainingOfficerSlots() < 1 {
		return false
	}

	if project.CloseDate.Before(dateOnly(now)) {
		return false
	}

	for _, a := range officerApps {
		if a.Status.IsActive() {
			return false
		}
		if model.SameProjectName(a.ProjectName, project.Name) {
			return false
		}
	}

	for _, r := range officerRegs {
		if model.SameProjectName(r.ProjectName, project.Name) {
			return false
		}
	}

	for _, p := range allProjects {
		if model.SameProjectName(p.Name, project.Name) {
			continue
		}
		if p.HasOfficer(officer.Nric) &&
			DatesOverlap(project.OpenDate, project.CloseDate, p.OpenDate, p.CloseDate) {
			return false
		}
	}

	for _, r := range officerRegs {
		if r.Status != model.RegistrationStatusPending {
			continue
		}
		for _, p := range allProjects {
			if model.SameProjectName(p.Name, r.ProjectName) &&
				DatesOverlap(project.OpenDate, project.CloseDate, p.OpenDate, p.CloseDate) {
				return false
			}
		}
	}

	return true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
