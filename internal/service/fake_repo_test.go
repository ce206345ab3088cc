package service

import (
	"context"
	"strings"
	"time"

	"github.com/mkoshelev/bto-system/internal/model"
	"github.com/mkoshelev/bto-system/internal/repository"
)

// fakeRepo — репозиторий в памяти с теми же проверками переходов и остатков,
// что и у PostgreSQL-реализации.
type fakeRepo struct {
	users     map[string]*model.User
	projects  map[string]*model.Project
	apps      map[string]*model.BTOApplication
	regs      map[string]*model.OfficerRegistration
	enquiries map[int64]*model.Enquiry
	nextEnqID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:     make(map[string]*model.User),
		projects:  make(map[string]*model.Project),
		apps:      make(map[string]*model.BTOApplication),
		regs:      make(map[string]*model.OfficerRegistration),
		enquiries: make(map[int64]*model.Enquiry),
	}
}

func (f *fakeRepo) Close() error { return nil }

func projectKey(name string) string { return strings.ToLower(name) }

func copyProject(p *model.Project) *model.Project {
	cp := *p
	cp.Flats = make(map[model.FlatType]model.FlatUnits, len(p.Flats))
	for ft, u := range p.Flats {
		cp.Flats[ft] = u
	}
	cp.Officers = append([]string(nil), p.Officers...)
	return &cp
}

func (f *fakeRepo) CreateUser(ctx context.Context, u *model.User) error {
	if _, ok := f.users[u.Nric]; ok {
		return repository.ErrUserExists
	}
	cp := *u
	f.users[u.Nric] = &cp
	return nil
}

func (f *fakeRepo) GetUserByNric(ctx context.Context, nric string) (*model.User, error) {
	u, ok := f.users[nric]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) GetAllUsers(ctx context.Context) (map[string]*model.User, error) {
	res := make(map[string]*model.User, len(f.users))
	for nric, u := range f.users {
		cp := *u
		res[nric] = &cp
	}
	return res, nil
}

func (f *fakeRepo) UpdateUserCachedState(ctx context.Context, nric, project string, status model.ApplicationStatus, flatType model.FlatType) error {
	u, ok := f.users[nric]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.AppliedProject = project
	u.ApplicationStatus = status
	u.BookedFlatType = flatType
	return nil
}

func (f *fakeRepo) CreateProject(ctx context.Context, p *model.Project) error {
	if _, ok := f.projects[projectKey(p.Name)]; ok {
		return repository.ErrProjectExists
	}
	f.projects[projectKey(p.Name)] = copyProject(p)
	return nil
}

func (f *fakeRepo) GetProjectByName(ctx context.Context, name string) (*model.Project, error) {
	p, ok := f.projects[projectKey(name)]
	if !ok {
		return nil, repository.ErrProjectNotFound
	}
	return copyProject(p), nil
}

func (f *fakeRepo) GetAllProjects(ctx context.Context) ([]*model.Project, error) {
	res := make([]*model.Project, 0, len(f.projects))
	for _, p := range f.projects {
		res = append(res, copyProject(p))
	}
	return res, nil
}

func (f *fakeRepo) UpdateProject(ctx context.Context, p *model.Project) error {
	existing, ok := f.projects[projectKey(p.Name)]
	if !ok {
		return repository.ErrProjectNotFound
	}
	cp := copyProject(p)
	for ft, u := range cp.Flats {
		if old, ok := existing.Flats[ft]; ok {
			u.Available = old.Available
			if u.Available > u.Total {
				u.Available = u.Total
			}
		} else {
			u.Available = u.Total
		}
		cp.Flats[ft] = u
	}
	cp.Officers = existing.Officers
	f.projects[projectKey(p.Name)] = cp
	return nil
}

func (f *fakeRepo) SetProjectVisibility(ctx context.Context, name string, visible bool) error {
	p, ok := f.projects[projectKey(name)]
	if !ok {
		return repository.ErrProjectNotFound
	}
	p.Visible = visible
	return nil
}

func (f *fakeRepo) DeleteProject(ctx context.Context, name string, force bool) error {
	p, ok := f.projects[projectKey(name)]
	if !ok {
		return repository.ErrProjectNotFound
	}
	if !force {
		for _, a := range f.apps {
			if model.SameProjectName(a.ProjectName, p.Name) && a.Status.IsActive() {
				return repository.ErrProjectHasActiveRecords
			}
		}
		for _, r := range f.regs {
			if model.SameProjectName(r.ProjectName, p.Name) && r.Status == model.RegistrationStatusPending {
				return repository.ErrProjectHasActiveRecords
			}
		}
	}
	for id, a := range f.apps {
		if model.SameProjectName(a.ProjectName, p.Name) {
			delete(f.apps, id)
		}
	}
	for id, r := range f.regs {
		if model.SameProjectName(r.ProjectName, p.Name) {
			delete(f.regs, id)
		}
	}
	delete(f.projects, projectKey(name))
	return nil
}

func (f *fakeRepo) RemoveProjectOfficer(ctx context.Context, projectName, nric string) error {
	p, ok := f.projects[projectKey(projectName)]
	if !ok {
		return repository.ErrProjectNotFound
	}
	officers := p.Officers[:0]
	for _, o := range p.Officers {
		if o != nric {
			officers = append(officers, o)
		}
	}
	p.Officers = officers
	return nil
}

func (f *fakeRepo) syncCache(nric, project string, status model.ApplicationStatus, flat model.FlatType) {
	if u, ok := f.users[nric]; ok {
		u.AppliedProject = project
		u.ApplicationStatus = status
		u.BookedFlatType = flat
	}
}

func (f *fakeRepo) CreateApplication(ctx context.Context, app *model.BTOApplication) error {
	if _, ok := f.apps[app.ID]; ok {
		return repository.ErrAlreadyApplied
	}
	cp := *app
	f.apps[app.ID] = &cp
	f.syncCache(app.ApplicantNric, app.ProjectName, app.Status, "")
	return nil
}

func (f *fakeRepo) GetApplicationByID(ctx context.Context, id string) (*model.BTOApplication, error) {
	a, ok := f.apps[id]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) GetApplicationsByApplicant(ctx context.Context, nric string) ([]model.BTOApplication, error) {
	var res []model.BTOApplication
	for _, a := range f.apps {
		if a.ApplicantNric == nric {
			res = append(res, *a)
		}
	}
	return res, nil
}

func (f *fakeRepo) GetApplicationsByProject(ctx context.Context, projectName string) ([]model.BTOApplication, error) {
	var res []model.BTOApplication
	for _, a := range f.apps {
		if model.SameProjectName(a.ProjectName, projectName) {
			res = append(res, *a)
		}
	}
	return res, nil
}

func (f *fakeRepo) GetAllApplications(ctx context.Context) ([]model.BTOApplication, error) {
	var res []model.BTOApplication
	for _, a := range f.apps {
		res = append(res, *a)
	}
	return res, nil
}

func (f *fakeRepo) ApproveApplication(ctx context.Context, id string) error {
	a, ok := f.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	if a.Status != model.ApplicationStatusPending {
		return repository.ErrNotPending
	}

	p, ok := f.projects[projectKey(a.ProjectName)]
	if !ok {
		return repository.ErrProjectNotFound
	}
	total := p.Flats[a.FlatType].Total

	taken := 0
	for _, other := range f.apps {
		if model.SameProjectName(other.ProjectName, a.ProjectName) && other.FlatType == a.FlatType &&
			(other.Status == model.ApplicationStatusSuccessful || other.Status == model.ApplicationStatusBooked) {
			taken++
		}
	}
	if taken >= total {
		return repository.ErrSupplyExhausted
	}

	a.Status = model.ApplicationStatusSuccessful
	f.syncCache(a.ApplicantNric, a.ProjectName, a.Status, "")
	return nil
}

func (f *fakeRepo) RejectApplication(ctx context.Context, id string) error {
	a, ok := f.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	if a.Status != model.ApplicationStatusPending {
		return repository.ErrNotPending
	}
	a.Status = model.ApplicationStatusUnsuccessful
	f.syncCache(a.ApplicantNric, a.ProjectName, a.Status, "")
	return nil
}

func (f *fakeRepo) RequestWithdrawal(ctx context.Context, id string) error {
	a, ok := f.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	switch a.Status {
	case model.ApplicationStatusPending, model.ApplicationStatusSuccessful, model.ApplicationStatusBooked:
	default:
		return repository.ErrNotWithdrawable
	}

	a.StatusBeforeWithdrawal = a.Status
	a.Status = model.ApplicationStatusPendingWithdrawal

	flat := model.FlatType("")
	if a.StatusBeforeWithdrawal == model.ApplicationStatusBooked {
		flat = a.FlatType
	}
	f.syncCache(a.ApplicantNric, a.ProjectName, a.Status, flat)
	return nil
}

func (f *fakeRepo) FinalizeWithdrawal(ctx context.Context, id string, finalStatus model.ApplicationStatus, releaseUnit bool) error {
	a, ok := f.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	if a.Status != model.ApplicationStatusPendingWithdrawal {
		return repository.ErrNotWithdrawable
	}

	if releaseUnit {
		if err := f.IncrementUnits(ctx, a.ProjectName, a.FlatType); err != nil {
			return err
		}
	}

	a.Status = finalStatus
	a.StatusBeforeWithdrawal = ""
	f.syncCache(a.ApplicantNric, a.ProjectName, a.Status, "")
	return nil
}

func (f *fakeRepo) RevertWithdrawal(ctx context.Context, id string, priorStatus model.ApplicationStatus) error {
	a, ok := f.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	if a.Status != model.ApplicationStatusPendingWithdrawal {
		return repository.ErrNotWithdrawable
	}

	a.Status = priorStatus
	a.StatusBeforeWithdrawal = ""

	flat := model.FlatType("")
	if priorStatus == model.ApplicationStatusBooked {
		flat = a.FlatType
	}
	f.syncCache(a.ApplicantNric, a.ProjectName, a.Status, flat)
	return nil
}

func (f *fakeRepo) BookApplication(ctx context.Context, id string) error {
	a, ok := f.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	if a.Status == model.ApplicationStatusBooked {
		return repository.ErrAlreadyBooked
	}
	if a.Status != model.ApplicationStatusSuccessful {
		return repository.ErrNotPending
	}

	if err := f.DecrementUnits(ctx, a.ProjectName, a.FlatType); err != nil {
		return err
	}

	a.Status = model.ApplicationStatusBooked
	f.syncCache(a.ApplicantNric, a.ProjectName, a.Status, a.FlatType)
	return nil
}

func (f *fakeRepo) DecrementUnits(ctx context.Context, projectName string, flatType model.FlatType) error {
	p, ok := f.projects[projectKey(projectName)]
	if !ok {
		return repository.ErrProjectNotFound
	}
	u := p.Flats[flatType]
	if u.Available <= 0 {
		return repository.ErrNoUnitsAvailable
	}
	u.Available--
	p.Flats[flatType] = u
	return nil
}

func (f *fakeRepo) IncrementUnits(ctx context.Context, projectName string, flatType model.FlatType) error {
	p, ok := f.projects[projectKey(projectName)]
	if !ok {
		return repository.ErrProjectNotFound
	}
	u := p.Flats[flatType]
	if u.Available >= u.Total {
		return repository.ErrUnitsAtCapacity
	}
	u.Available++
	p.Flats[flatType] = u
	return nil
}

func (f *fakeRepo) SetAvailableUnits(ctx context.Context, projectName string, flatType model.FlatType, n int) (int, error) {
	p, ok := f.projects[projectKey(projectName)]
	if !ok {
		return 0, repository.ErrProjectNotFound
	}
	u := p.Flats[flatType]
	if n < 0 {
		n = 0
	}
	if n > u.Total {
		n = u.Total
	}
	u.Available = n
	p.Flats[flatType] = u
	return n, nil
}

func (f *fakeRepo) CreateRegistration(ctx context.Context, reg *model.OfficerRegistration) error {
	if _, ok := f.regs[reg.ID]; ok {
		return repository.ErrAlreadyRegistered
	}
	cp := *reg
	f.regs[reg.ID] = &cp
	return nil
}

func (f *fakeRepo) GetRegistrationByID(ctx context.Context, id string) (*model.OfficerRegistration, error) {
	r, ok := f.regs[id]
	if !ok {
		return nil, repository.ErrRegistrationNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) GetRegistrationsByOfficer(ctx context.Context, nric string) ([]model.OfficerRegistration, error) {
	var res []model.OfficerRegistration
	for _, r := range f.regs {
		if r.OfficerNric == nric {
			res = append(res, *r)
		}
	}
	return res, nil
}

func (f *fakeRepo) GetRegistrationsByProject(ctx context.Context, projectName string) ([]model.OfficerRegistration, error) {
	var res []model.OfficerRegistration
	for _, r := range f.regs {
		if model.SameProjectName(r.ProjectName, projectName) {
			res = append(res, *r)
		}
	}
	return res, nil
}

func (f *fakeRepo) GetAllRegistrations(ctx context.Context) ([]model.OfficerRegistration, error) {
	var res []model.OfficerRegistration
	for _, r := range f.regs {
		res = append(res, *r)
	}
	return res, nil
}

func (f *fakeRepo) ApproveRegistration(ctx context.Context, id string) error {
	r, ok := f.regs[id]
	if !ok {
		return repository.ErrRegistrationNotFound
	}
	if r.Status != model.RegistrationStatusPending {
		return repository.ErrNotPending
	}

	p, ok := f.projects[projectKey(r.ProjectName)]
	if !ok {
		return repository.ErrProjectNotFound
	}
	if len(p.Officers) >= p.OfficerSlots {
		return repository.ErrNoSlotsRemaining
	}

	p.Officers = append(p.Officers, r.OfficerNric)
	r.Status = model.RegistrationStatusApproved
	return nil
}

func (f *fakeRepo) RejectRegistration(ctx context.Context, id string) error {
	r, ok := f.regs[id]
	if !ok {
		return repository.ErrRegistrationNotFound
	}
	if r.Status != model.RegistrationStatusPending {
		return repository.ErrNotPending
	}
	r.Status = model.RegistrationStatusRejected
	return nil
}

func (f *fakeRepo) DeleteRegistration(ctx context.Context, id string) error {
	if _, ok := f.regs[id]; !ok {
		return repository.ErrRegistrationNotFound
	}
	delete(f.regs, id)
	return nil
}

func (f *fakeRepo) CreateEnquiry(ctx context.Context, e *model.Enquiry) (int64, error) {
	f.nextEnqID++
	cp := *e
	cp.ID = f.nextEnqID
	f.enquiries[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeRepo) GetEnquiryByID(ctx context.Context, id int64) (*model.Enquiry, error) {
	e, ok := f.enquiries[id]
	if !ok {
		return nil, repository.ErrEnquiryNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeRepo) GetEnquiriesByApplicant(ctx context.Context, nric string) ([]model.Enquiry, error) {
	var res []model.Enquiry
	for _, e := range f.enquiries {
		if e.ApplicantNric == nric {
			res = append(res, *e)
		}
	}
	return res, nil
}

func (f *fakeRepo) GetEnquiriesByProject(ctx context.Context, projectName string) ([]model.Enquiry, error) {
	var res []model.Enquiry
	for _, e := range f.enquiries {
		if model.SameProjectName(e.ProjectName, projectName) {
			res = append(res, *e)
		}
	}
	return res, nil
}

func (f *fakeRepo) UpdateEnquiryText(ctx context.Context, id int64, text string) error {
	e, ok := f.enquiries[id]
	if !ok {
		return repository.ErrEnquiryNotFound
	}
	e.Text = text
	return nil
}

func (f *fakeRepo) DeleteEnquiry(ctx context.Context, id int64) error {
	if _, ok := f.enquiries[id]; !ok {
		return repository.ErrEnquiryNotFound
	}
	delete(f.enquiries, id)
	return nil
}

func (f *fakeRepo) ReplyEnquiry(ctx context.Context, id int64, reply string, repliedAt time.Time) error {
	e, ok := f.enquiries[id]
	if !ok {
		return repository.ErrEnquiryNotFound
	}
	e.Reply = reply
	e.RepliedAt = &repliedAt
	return nil
}
