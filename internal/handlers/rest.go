package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autocare/internal/models"
)

func (h HandlerSet) GetProfile(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	p, err := h.profiles.Get(c.Request.Context(), principal.User, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h HandlerSet) InsertProfile(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req models.Profile
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.profiles.Insert(c.Request.Context(), principal.User, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// UpdateProfile accepts any JSON object and keeps only the editable fields.
func (h HandlerSet) UpdateProfile(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var params map[string]any
	if err := c.ShouldBindJSON(&params); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), principal.User, c.Param("id"), models.ProfileUpdateFromMap(params))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h HandlerSet) ListVehicles(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	out, err := h.garage.Vehicles(c.Request.Context(), principal.User)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(out))
}

func (h HandlerSet) InsertVehicle(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req models.VehicleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, err := h.garage.AddVehicle(c.Request.Context(), principal.User, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h HandlerSet) ListAppointments(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	out, err := h.garage.Appointments(c.Request.Context(), principal.User)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(out))
}

func (h HandlerSet) InsertAppointment(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req models.AppointmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.garage.Book(c.Request.Context(), principal.User, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h HandlerSet) ListExpenses(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	out, err := h.garage.Expenses(c.Request.Context(), principal.User)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(out))
}

func (h HandlerSet) InsertExpense(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req models.ExpenseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := h.garage.AddExpense(c.Request.Context(), principal.User, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h HandlerSet) ListServices(c *gin.Context) {
	out, err := h.garage.Services(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(out))
}

func (h HandlerSet) UpsertServices(c *gin.Context) {
	var req []models.Service
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.garage.UpsertServices(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h HandlerSet) SubmitDiagnostic(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req models.DiagnosticRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.diagnostics.Submit(c.Request.Context(), principal.User, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if d.Status == models.DiagnosticPending {
		status = http.StatusAccepted
	}
	c.JSON(status, d)
}

func (h HandlerSet) GetDiagnostic(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	d, err := h.diagnostics.Get(c.Request.Context(), principal.User, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
