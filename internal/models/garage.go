package models

import "time"

type Vehicle struct {
	ID        int64          `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Make      *string        `json:"make"`
	Brand     *string        `json:"brand"`
	Model     *string        `json:"model"`
	Year      *int           `json:"year"`
	Plate     *string        `json:"plate"`
	Odometer  *int           `json:"odometer"`
	Km        *int           `json:"km"`
	VIN       *string        `json:"vin"`
	Color     *string        `json:"color"`
	PhotoURL  *string        `json:"photo_url"`
	Status    *string        `json:"status"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
}

// VehicleInput accepts both column spellings used by older clients
// (brand/make, km/odometer); Normalize mirrors whichever one is set.
type VehicleInput struct {
	Make     *string        `json:"make,omitempty"`
	Brand    *string        `json:"brand,omitempty"`
	Model    *string        `json:"model,omitempty"`
	Year     *int           `json:"year,omitempty"`
	Plate    *string        `json:"plate,omitempty"`
	Odometer *int           `json:"odometer,omitempty"`
	Km       *int           `json:"km,omitempty"`
	VIN      *string        `json:"vin,omitempty"`
	Color    *string        `json:"color,omitempty"`
	PhotoURL *string        `json:"photo_url,omitempty"`
	Status   *string        `json:"status,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func (in VehicleInput) Normalize() VehicleInput {
	if in.Make == nil {
		in.Make = in.Brand
	}
	if in.Brand == nil {
		in.Brand = in.Make
	}
	if in.Odometer == nil {
		in.Odometer = in.Km
	}
	if in.Km == nil {
		in.Km = in.Odometer
	}
	return in
}

type Service struct {
	ID                 int64     `json:"id"`
	Code               string    `json:"code"`
	Title              string    `json:"title"`
	EstPrice           float64   `json:"est_price"`
	EstDurationMinutes int       `json:"est_duration_minutes"`
	Description        string    `json:"description"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentDone      AppointmentStatus = "done"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type Appointment struct {
	ID            int64             `json:"id"`
	UserID        string            `json:"user_id"`
	VehicleID     *int64            `json:"vehicle_id"`
	ServiceID     int64             `json:"service_id"`
	Service       string            `json:"service,omitempty"`
	Workshop      *string           `json:"workshop"`
	ScheduledFrom time.Time         `json:"scheduled_from"`
	ScheduledTo   *time.Time        `json:"scheduled_to"`
	Notes         string            `json:"notes"`
	Status        AppointmentStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

type AppointmentInput struct {
	VehicleID     *int64     `json:"vehicle_id,omitempty"`
	ServiceID     int64      `json:"service_id"`
	Workshop      *string    `json:"workshop,omitempty"`
	ScheduledFrom time.Time  `json:"scheduled_from"`
	ScheduledTo   *time.Time `json:"scheduled_to,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

type Expense struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	VehicleID   *int64    `json:"vehicle_id"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseInput struct {
	VehicleID   *int64     `json:"vehicle_id,omitempty"`
	Amount      float64    `json:"amount"`
	Description string     `json:"description"`
	Date        *time.Time `json:"date,omitempty"`
}
