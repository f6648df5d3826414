package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrBookingVariant is returned when stored booking details do not hold exactly one variant
var ErrBookingVariant = errors.New("booking details must contain exactly one booking variant")

// BookingVariant is the per-vertical payload of a booking. The set of
// implementations is closed: HotelBooked, BdsdHotelBooked, OutsideHotelBooked,
// FlightBooked and BusBooked.
type BookingVariant interface {
	BookingType() BookingType
	outcome() *SupplierOutcome
}

// SupplierOutcome is filled in once the supplier confirms the booking
type SupplierOutcome struct {
	BookingResult *SupplierBookResult `json:"bookingResult,omitempty" bson:"bookingResult,omitempty"`
	OtherDetails  json.RawMessage     `json:"otherDetails,omitempty" bson:"otherDetails,omitempty"`
	ConfirmedAt   *time.Time          `json:"confirmedAt,omitempty" bson:"confirmedAt,omitempty"`

	// ConfirmingUntil is set while one caller holds the right to book with the supplier
	ConfirmingUntil *time.Time `json:"confirmingUntil,omitempty" bson:"confirmingUntil,omitempty"`
}

func (o *SupplierOutcome) outcome() *SupplierOutcome { return o }

// BdsdHotelBooked is a hotel held and booked through the BDSD supplier
type BdsdHotelBooked struct {
	SupplierOutcome `bson:",inline"`
	BlockRequest    HotelBlockRoomRequest `json:"blockRequest" bson:"blockRequest"`
	BlockResult     HotelBlockRoomResult  `json:"blockRoomResult" bson:"blockRoomResult"`
	CheckIn         string                `json:"checkIn,omitempty" bson:"checkIn,omitempty"`
	CheckOut        string                `json:"checkOut,omitempty" bson:"checkOut,omitempty"`
}

func (*BdsdHotelBooked) BookingType() BookingType { return BookingTypeHotel }

// HotelBooked is a room in a property listed directly by a hotel owner
type HotelBooked struct {
	SupplierOutcome `bson:",inline"`
	HotelID         string           `json:"hotelId" bson:"hotelId"`
	RoomID          string           `json:"roomId" bson:"roomId"`
	CheckIn         string           `json:"checkIn" bson:"checkIn"`
	CheckOut        string           `json:"checkOut" bson:"checkOut"`
	Rooms           int              `json:"rooms" bson:"rooms"`
	Guests          []HotelPassenger `json:"guests" bson:"guests"`
}

func (*HotelBooked) BookingType() BookingType { return BookingTypeHotel }

// OutsideHotelBooked records a stay arranged outside the platform
type OutsideHotelBooked struct {
	SupplierOutcome `bson:",inline"`
	HotelName       string `json:"hotelName" bson:"hotelName"`
	Address         string `json:"address,omitempty" bson:"address,omitempty"`
	City            string `json:"city,omitempty" bson:"city,omitempty"`
	CheckIn         string `json:"checkIn" bson:"checkIn"`
	CheckOut        string `json:"checkOut" bson:"checkOut"`
	ConfirmationNo  string `json:"confirmationNo,omitempty" bson:"confirmationNo,omitempty"`
}

func (*OutsideHotelBooked) BookingType() BookingType { return BookingTypeHotel }

// BusBooked is a bus seat hold and its booking
type BusBooked struct {
	SupplierOutcome `bson:",inline"`
	BlockRequest    BusBlockSeatRequest `json:"blockRequest" bson:"blockRequest"`
	BlockResult     BusBlockSeatResult  `json:"blockSeatResult" bson:"blockSeatResult"`
}

func (*BusBooked) BookingType() BookingType { return BookingTypeBus }

// FlightLeg is one priced direction of a flight booking
type FlightLeg struct {
	ResultIndex string                `json:"resultIndex" bson:"resultIndex"`
	TraceID     string                `json:"traceId" bson:"traceId"`
	IsLCC       bool                  `json:"isLCC" bson:"isLCC"`
	FareQuote   FlightFareQuoteResult `json:"fareQuote" bson:"fareQuote"`
	Seat        *SSROption            `json:"seat,omitempty" bson:"seat,omitempty"`
	Meals       []SSROption           `json:"meals,omitempty" bson:"meals,omitempty"`
	Baggage     *SSROption            `json:"baggage,omitempty" bson:"baggage,omitempty"`
	Total       int64                 `json:"total" bson:"total"`
}

// FlightBooked is a one-way or return flight booking
type FlightBooked struct {
	SupplierOutcome     `bson:",inline"`
	EndUserIP           string              `json:"endUserIp,omitempty" bson:"endUserIp,omitempty"`
	SearchTokenID       string              `json:"searchTokenId" bson:"searchTokenId"`
	Passengers          []FlightPassenger   `json:"passengers" bson:"passengers"`
	Outbound            FlightLeg           `json:"outbound" bson:"outbound"`
	Return              *FlightLeg          `json:"return,omitempty" bson:"return,omitempty"`
	ReturnBookingResult *SupplierBookResult `json:"returnBookingResult,omitempty" bson:"returnBookingResult,omitempty"`
}

func (*FlightBooked) BookingType() BookingType { return BookingTypeFlight }

// BookingDetails carries the company approval gate and exactly one variant.
// The zero value holds no variant and fails Booking.Validate.
type BookingDetails struct {
	CompanyApproval CompanyApproval
	variant         BookingVariant
}

// NewBookingDetails builds booking details around a single variant
func NewBookingDetails(approval CompanyApproval, variant BookingVariant) BookingDetails {
	return BookingDetails{CompanyApproval: approval, variant: variant}
}

// Variant returns the populated variant
func (d BookingDetails) Variant() BookingVariant {
	return d.variant
}

// Confirmation returns the supplier book result, nil until confirmed
func (d BookingDetails) Confirmation() *SupplierBookResult {
	if d.variant == nil {
		return nil
	}
	return d.variant.outcome().BookingResult
}

// Ticketed reports whether every leg the supplier has to issue is ticketed
func (f *FlightBooked) Ticketed() bool {
	return f.BookingResult != nil && (f.Return == nil || f.ReturnBookingResult != nil)
}

// ConfirmedAt returns when the supplier confirmation was recorded
func (d BookingDetails) ConfirmedAt() *time.Time {
	if d.variant == nil {
		return nil
	}
	return d.variant.outcome().ConfirmedAt
}

// RecordConfirmation stores the supplier book result and booking details
func (d BookingDetails) RecordConfirmation(result SupplierBookResult, otherDetails json.RawMessage) {
	if d.variant == nil {
		return
	}
	now := time.Now().UTC()
	out := d.variant.outcome()
	out.BookingResult = &result
	out.OtherDetails = otherDetails
	out.ConfirmedAt = &now
	out.ConfirmingUntil = nil
}

// ConfirmationLeased reports whether a confirmation lease is still live at now
func (d BookingDetails) ConfirmationLeased(now time.Time) bool {
	if d.variant == nil {
		return false
	}
	until := d.variant.outcome().ConfirmingUntil
	return until != nil && now.Before(*until)
}

// LeaseConfirmation marks the booking as being confirmed until the given time
func (d BookingDetails) LeaseConfirmation(until time.Time) {
	if d.variant == nil {
		return
	}
	until = until.UTC()
	d.variant.outcome().ConfirmingUntil = &until
}

// ReleaseConfirmation drops the confirmation lease
func (d BookingDetails) ReleaseConfirmation() {
	if d.variant == nil {
		return
	}
	d.variant.outcome().ConfirmingUntil = nil
}

// BdsdHotel returns the BDSD hotel variant if that is the populated one
func (d BookingDetails) BdsdHotel() (*BdsdHotelBooked, bool) {
	v, ok := d.variant.(*BdsdHotelBooked)
	return v, ok
}

// Bus returns the bus variant if that is the populated one
func (d BookingDetails) Bus() (*BusBooked, bool) {
	v, ok := d.variant.(*BusBooked)
	return v, ok
}

// Flight returns the flight variant if that is the populated one
func (d BookingDetails) Flight() (*FlightBooked, bool) {
	v, ok := d.variant.(*FlightBooked)
	return v, ok
}

// bookingDetailsWire is the stored shape: one if* key per variant
type bookingDetailsWire struct {
	CompanyApproval      CompanyApproval     `json:"companyApproval" bson:"companyApproval"`
	IfHotelBooked        *HotelBooked        `json:"ifHotelBooked,omitempty" bson:"ifHotelBooked,omitempty"`
	IfFlightBooked       *FlightBooked       `json:"ifFlightBooked,omitempty" bson:"ifFlightBooked,omitempty"`
	IfBusBooked          *BusBooked          `json:"ifBusBooked,omitempty" bson:"ifBusBooked,omitempty"`
	IfBdsdHotelBooked    *BdsdHotelBooked    `json:"ifBdsdHotelBooked,omitempty" bson:"ifBdsdHotelBooked,omitempty"`
	IfOutSideHotelBooked *OutsideHotelBooked `json:"ifOutSideHotelBooked,omitempty" bson:"ifOutSideHotelBooked,omitempty"`
}

func (d BookingDetails) toWire() bookingDetailsWire {
	w := bookingDetailsWire{CompanyApproval: d.CompanyApproval}
	switch v := d.variant.(type) {
	case *HotelBooked:
		w.IfHotelBooked = v
	case *FlightBooked:
		w.IfFlightBooked = v
	case *BusBooked:
		w.IfBusBooked = v
	case *BdsdHotelBooked:
		w.IfBdsdHotelBooked = v
	case *OutsideHotelBooked:
		w.IfOutSideHotelBooked = v
	}
	return w
}

func (w bookingDetailsWire) toDetails() (BookingDetails, error) {
	var variants []BookingVariant
	if w.IfHotelBooked != nil {
		variants = append(variants, w.IfHotelBooked)
	}
	if w.IfFlightBooked != nil {
		variants = append(variants, w.IfFlightBooked)
	}
	if w.IfBusBooked != nil {
		variants = append(variants, w.IfBusBooked)
	}
	if w.IfBdsdHotelBooked != nil {
		variants = append(variants, w.IfBdsdHotelBooked)
	}
	if w.IfOutSideHotelBooked != nil {
		variants = append(variants, w.IfOutSideHotelBooked)
	}
	if len(variants) != 1 {
		return BookingDetails{}, fmt.Errorf("%w: found %d", ErrBookingVariant, len(variants))
	}
	return BookingDetails{CompanyApproval: w.CompanyApproval, variant: variants[0]}, nil
}

// MarshalJSON implements json.Marshaler
func (d BookingDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.toWire())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *BookingDetails) UnmarshalJSON(data []byte) error {
	var w bookingDetailsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	details, err := w.toDetails()
	if err != nil {
		return err
	}
	*d = details
	return nil
}

// MarshalBSON implements bson.Marshaler
func (d BookingDetails) MarshalBSON() ([]byte, error) {
	return bson.Marshal(d.toWire())
}

// UnmarshalBSON implements bson.Unmarshaler
func (d *BookingDetails) UnmarshalBSON(data []byte) error {
	var w bookingDetailsWire
	if err := bson.Unmarshal(data, &w); err != nil {
		return err
	}
	details, err := w.toDetails()
	if err != nil {
		return err
	}
	*d = details
	return nil
}

// Value implements the driver.Valuer interface
func (d BookingDetails) Value() (driver.Value, error) {
	bytes, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (d *BookingDetails) Scan(value interface{}) error {
	return scanJSON(value, d)
}
