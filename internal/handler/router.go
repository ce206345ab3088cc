package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mkoshelev/bto-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса BTO.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/projects", h.ListProjects)
			r.Post("/projects", h.CreateProject)
			r.Get("/projects/{name}", h.GetProject)
			r.Put("/projects/{name}", h.EditProject)
			r.Delete("/projects/{name}", h.DeleteProject)
			r.Post("/projects/{name}/visibility", h.SetProjectVisibility)
			r.Get("/projects/{name}/applications", h.ProjectApplications)
			r.Get("/projects/{name}/registrations", h.ProjectRegistrations)
			r.Get("/projects/{name}/enquiries", h.ProjectEnquiries)

			r.Post("/applications", h.SubmitApplication)
			r.Get("/applications", h.MyApplications)
			r.Post("/applications/withdraw", h.RequestWithdrawal)
			r.Post("/applications/{id}/approve", h.ApproveApplication)
			r.Post("/applications/{id}/reject", h.RejectApplication)
			r.Post("/applications/{id}/book", h.BookFlat)
			r.Post("/applications/{id}/withdrawal/approve", h.ApproveWithdrawal)
			r.Post("/applications/{id}/withdrawal/reject", h.RejectWithdrawal)

			r.Post("/registrations", h.RegisterOfficer)
			r.Get("/registrations", h.MyRegistrations)
			r.Post("/registrations/{id}/approve", h.ApproveRegistration)
			r.Post("/registrations/{id}/reject", h.RejectRegistration)

			r.Post("/enquiries", h.SubmitEnquiry)
			r.Get("/enquiries", h.MyEnquiries)
			r.Put("/enquiries/{id}", h.EditEnquiry)
			r.Delete("/enquiries/{id}", h.DeleteEnquiry)
			r.Post("/enquiries/{id}/reply", h.ReplyEnquiry)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
