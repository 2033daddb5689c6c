package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autocare/internal/garage"
	"autocare/internal/models"
)

// bookingLayouts are accepted by --at in addition to RFC 3339.
var bookingLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

func parseBookingTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range bookingLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use RFC 3339 or YYYY-MM-DD HH:MM", s)
}

func (a *app) garage(w *workspace) *garage.Provider {
	return garage.New(garage.FromClient(w.client), a.log)
}

func (a *app) vehiclesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "List or add vehicles",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your vehicles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()

			p := a.garage(w)
			p.Load(cmd.Context())
			return a.print(p.Vehicles())
		},
	}

	var (
		brand, model, plate, vin, color string
		year, km                        int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a vehicle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if brand == "" || model == "" {
				return errors.New("--brand and --model are required")
			}
			in := models.VehicleInput{Brand: &brand, Model: &model}
			flags := cmd.Flags()
			if flags.Changed("year") {
				in.Year = &year
			}
			if flags.Changed("km") {
				in.Km = &km
			}
			if plate != "" {
				in.Plate = &plate
			}
			if vin != "" {
				in.VIN = &vin
			}
			if color != "" {
				in.Color = &color
			}

			w, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()

			v, err := a.garage(w).AddVehicle(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	add.Flags().StringVar(&brand, "brand", "", "manufacturer")
	add.Flags().StringVar(&model, "model", "", "model name")
	add.Flags().IntVar(&year, "year", 0, "model year")
	add.Flags().IntVar(&km, "km", 0, "odometer reading in km")
	add.Flags().StringVar(&plate, "plate", "", "licence plate")
	add.Flags().StringVar(&vin, "vin", "", "vehicle identification number")
	add.Flags().StringVar(&color, "color", "", "colour")

	cmd.AddCommand(list, add)
	return cmd
}

func (a *app) bookCommand() *cobra.Command {
	var (
		service, at, notes string
		vehicleID          int64
	)
	cmd := &cobra.Command{
		Use:     "book",
		Short:   "Book a workshop appointment",
		Example: `  autocare book --service OIL --at "2026-11-03 09:30" --vehicle 12`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if service == "" || at == "" {
				return errors.New("--service and --at are required")
			}
			from, err := parseBookingTime(at, time.Local)
			if err != nil {
				return err
			}
			in := garage.BookingInput{Service: service, ScheduledFrom: from, Notes: notes}
			if cmd.Flags().Changed("vehicle") {
				in.VehicleID = &vehicleID
			}

			w, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()

			appt, err := a.garage(w).Book(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.print(appt)
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "catalog service id or code")
	cmd.Flags().StringVar(&at, "at", "", "start time")
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the workshop")
	cmd.Flags().Int64Var(&vehicleID, "vehicle", 0, "vehicle id")
	return cmd
}

func (a *app) diagnoseCommand() *cobra.Command {
	var (
		chatID, message, media string
		video                  bool
	)
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Describe a symptom or send a photo or video for diagnosis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if message == "" && media == "" {
				return errors.New("--message or --media is required")
			}
			mediaType := garage.MediaImage
			if video {
				mediaType = garage.MediaVideo
			}
			if chatID == "" {
				chatID = "cli"
			}

			w, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()

			d, err := a.garage(w).SendMessage(cmd.Context(), chatID, message, media, mediaType)
			if err != nil {
				return err
			}
			return a.print(d)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "conversation id")
	cmd.Flags().StringVarP(&message, "message", "m", "", "symptom description")
	cmd.Flags().StringVar(&media, "media", "", "path to a photo or video")
	cmd.Flags().BoolVar(&video, "video", false, "treat --media as a video")
	return cmd
}
