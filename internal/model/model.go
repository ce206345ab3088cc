// Package model содержит доменные сущности сервиса распределения жилья BTO.
package model

import (
	"strings"
	"time"
)

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleApplicant Role = "APPLICANT"
	RoleOfficer   Role = "OFFICER"
	RoleManager   Role = "MANAGER"
)

// MaritalStatus описывает семейное положение пользователя.
type MaritalStatus string

const (
	MaritalSingle  MaritalStatus = "SINGLE"
	MaritalMarried MaritalStatus = "MARRIED"
)

// User представляет пользователя системы: заявителя, офицера или менеджера.
//
// Поля AppliedProject, ApplicationStatus и BookedFlatType — кэшированное
// состояние заявки (материализованное представление); источником истины
// остаётся BTOApplication. Кэш обновляется при каждом переходе статуса
// и перестраивается целиком при сверке на старте.
type User struct {
	Nric          string
	Name          string
	PasswordHash  []byte
	Age           int
	MaritalStatus MaritalStatus
	Role          Role

	AppliedProject    string
	ApplicationStatus ApplicationStatus
	BookedFlatType    FlatType

	CreatedAt time.Time
}

// FlatType описывает тип квартиры в проекте.
type FlatType string

const (
	FlatTypeTwoRoom   FlatType = "TWO_ROOM"
	FlatTypeThreeRoom FlatType = "THREE_ROOM"
)

// FlatUnits содержит инвентарь и цену по одному типу квартир проекта.
// Инвариант: 0 <= Available <= Total.
type FlatUnits struct {
	Total      int
	Available  int
	PriceCents int64
}

// Project описывает проект BTO с инвентарём квартир и составом офицеров.
type Project struct {
	Name         string
	Neighborhood string
	Flats        map[FlatType]FlatUnits
	OpenDate     time.Time
	CloseDate    time.Time
	ManagerNric  string
	OfficerSlots int
	Officers     []string
	Visible      bool
	CreatedAt    time.Time
}

// RemainingOfficerSlots возвращает число свободных слотов для офицеров.
func (p *Project) RemainingOfficerSlots() int {
	return p.OfficerSlots - len(p.Officers)
}

// HasOfficer сообщает, входит ли офицер в утверждённый состав проекта.
func (p *Project) HasOfficer(nric string) bool {
	for _, o := range p.Officers {
		if o == nric {
			return true
		}
	}
	return false
}

// ApplicationStatus описывает статус заявки на квартиру.
type ApplicationStatus string

const (
	ApplicationStatusPending           ApplicationStatus = "PENDING"
	ApplicationStatusSuccessful        ApplicationStatus = "SUCCESSFUL"
	ApplicationStatusUnsuccessful      ApplicationStatus = "UNSUCCESSFUL"
	ApplicationStatusBooked            ApplicationStatus = "BOOKED"
	ApplicationStatusPendingWithdrawal ApplicationStatus = "PENDING_WITHDRAWAL"
	ApplicationStatusWithdrawn         ApplicationStatus = "WITHDRAWN"
)

// IsActive возвращает true для нетерминальных статусов заявки.
func (s ApplicationStatus) IsActive() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusSuccessful,
		ApplicationStatusBooked, ApplicationStatusPendingWithdrawal:
		return true
	}
	return false
}

// BTOApplication представляет заявку пользователя на квартиру в проекте.
type BTOApplication struct {
	ID            string
	ApplicantNric string
	ProjectName   string
	FlatType      FlatType
	Status        ApplicationStatus

	// StatusBeforeWithdrawal хранит статус до запроса на отзыв заявки.
	// Пустое значение у заявки в PENDING_WITHDRAWAL означает старые данные,
	// для которых прежний статус восстанавливается эвристикой.
	StatusBeforeWithdrawal ApplicationStatus

	AppliedAt time.Time
}

// RegistrationStatus описывает статус регистрации офицера на проект.
type RegistrationStatus string

const (
	RegistrationStatusPending  RegistrationStatus = "PENDING"
	RegistrationStatusApproved RegistrationStatus = "APPROVED"
	RegistrationStatusRejected RegistrationStatus = "REJECTED"
)

// OfficerRegistration представляет регистрацию офицера на проект.
type OfficerRegistration struct {
	ID           string
	OfficerNric  string
	ProjectName  string
	Status       RegistrationStatus
	RegisteredAt time.Time
}

// Enquiry представляет вопрос пользователя по проекту.
type Enquiry struct {
	ID            int64
	ApplicantNric string
	ProjectName   string
	Text          string
	Reply         string
	CreatedAt     time.Time
	RepliedAt     *time.Time
}

// ApplicationID возвращает канонический идентификатор заявки.
func ApplicationID(nric, projectName string) string {
	return nric + "_" + projectName
}

// RegistrationID возвращает канонический идентификатор регистрации офицера.
func RegistrationID(nric, projectName string) string {
	return nric + "_REG_" + projectName
}

// SameProjectName сравнивает имена проектов без учёта регистра.
func SameProjectName(a, b string) bool {
	return strings.EqualFold(a, b)
}
