package models

import (
	"github.com/tripdesk/booking-backend/pkg/validator"
)

// ============================================================================
// VALIDATION
// ============================================================================

// ValidationError reports the first request rule that failed
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// validationRule pairs a named predicate with the message returned when it fails.
// Rules are evaluated in order and the first failure wins.
type validationRule struct {
	field   string
	failed  func() bool
	message string
}

func firstViolation(rules []validationRule) error {
	for _, rule := range rules {
		if rule.failed() {
			return &ValidationError{Field: rule.field, Message: rule.message}
		}
	}
	return nil
}

var phoneValidator = validator.NewPhoneValidator()

func invalidPhone(phone string) bool {
	return phone != "" && !phoneValidator.IsValid(phone)
}

func invalidEmail(email string) bool {
	return email != "" && validator.ValidateEmail(email) != nil
}

func invalidGST(gst *GSTDetails) bool {
	if gst == nil {
		return false
	}
	normalized, err := validator.ValidateGSTIN(gst.GSTNumber)
	if err != nil {
		return true
	}
	gst.GSTNumber = normalized
	return false
}

// ============================================================================
// REQUESTS
// ============================================================================

// BookingRequest holds the fields shared by every booking creation request
type BookingRequest struct {
	PaymentMode   PaymentMode `json:"paymentMode"`
	SearchTokenID string      `json:"searchTokenId"`
	TravellerIDs  []string    `json:"userId,omitempty"`
	GSTDetails    *GSTDetails `json:"gstDetails,omitempty"`

	// Filled from the HTTP request, never from the body
	EndUserIP string `json:"-"`
}

func (r *BookingRequest) commonRules() []validationRule {
	return []validationRule{
		{"paymentMode", func() bool { return !r.PaymentMode.IsValid() }, "paymentMode must be one of payAtHotel, payByCompany, onlinePay"},
		{"searchTokenId", func() bool { return r.SearchTokenID == "" }, "searchTokenId is required"},
		{"gstDetails.gstNumber", func() bool { return invalidGST(r.GSTDetails) }, validator.ErrInvalidGSTIN.Error()},
	}
}

func (r *BookingRequest) notPayAtHotel() validationRule {
	return validationRule{"paymentMode", func() bool { return r.PaymentMode == PaymentModePayAtHotel }, "payAtHotel is only available for hotel bookings"}
}

// CreateHotelBookingRequest blocks one or more rooms of a supplier hotel
type CreateHotelBookingRequest struct {
	BookingRequest
	TraceID           string            `json:"traceId"`
	ResultIndex       int               `json:"resultIndex"`
	HotelCode         string            `json:"hotelCode"`
	HotelName         string            `json:"hotelName"`
	GuestNationality  string            `json:"guestNationality"`
	NoOfRooms         int               `json:"noOfRooms"`
	CheckIn           string            `json:"checkIn"`
	CheckOut          string            `json:"checkOut"`
	IsVoucherBooking  bool              `json:"isVoucherBooking"`
	HotelRoomsDetails []HotelRoomDetail `json:"hotelRoomsDetails"`
}

// Validate runs the request rules in order
func (r *CreateHotelBookingRequest) Validate() error {
	rules := append(r.commonRules(),
		validationRule{"hotelCode", func() bool { return r.HotelCode == "" }, "hotelCode is required"},
		validationRule{"hotelRoomsDetails", func() bool { return len(r.HotelRoomsDetails) == 0 }, "At least one room must be selected"},
		validationRule{"noOfRooms", func() bool { return r.NoOfRooms != len(r.HotelRoomsDetails) }, "noOfRooms does not match the selected rooms"},
		validationRule{"hotelRoomsDetails.hotelPassenger", func() bool {
			for _, room := range r.HotelRoomsDetails {
				if !hasLeadHotelGuest(room.HotelPassenger) {
					return true
				}
			}
			return false
		}, "Each room needs a lead passenger"},
		validationRule{"hotelRoomsDetails.hotelPassenger.phoneno", func() bool {
			for _, room := range r.HotelRoomsDetails {
				for _, guest := range room.HotelPassenger {
					if invalidPhone(guest.Phoneno) {
						return true
					}
				}
			}
			return false
		}, "Invalid guest phone number"},
	)
	return firstViolation(rules)
}

func hasLeadHotelGuest(guests []HotelPassenger) bool {
	for _, g := range guests {
		if g.LeadPassenger {
			return true
		}
	}
	return false
}

// CreateBusBookingRequest blocks seats on a supplier bus service
type CreateBusBookingRequest struct {
	BookingRequest
	TraceID         string         `json:"traceId"`
	ResultIndex     int            `json:"resultIndex"`
	BoardingPointID int            `json:"boardingPointId"`
	DroppingPointID int            `json:"droppingPointId"`
	Passengers      []BusPassenger `json:"passenger"`
}

// Validate runs the request rules in order
func (r *CreateBusBookingRequest) Validate() error {
	rules := append(r.commonRules(),
		r.notPayAtHotel(),
		validationRule{"traceId", func() bool { return r.TraceID == "" }, "traceId is required"},
		validationRule{"passenger", func() bool { return len(r.Passengers) == 0 }, "At least one passenger is required"},
		validationRule{"passenger.seat", func() bool {
			for _, p := range r.Passengers {
				if p.Seat.SeatIndex == "" {
					return true
				}
			}
			return false
		}, "Every passenger needs a selected seat"},
		validationRule{"passenger.leadPassenger", func() bool {
			leads := 0
			for _, p := range r.Passengers {
				if p.LeadPassenger {
					leads++
				}
			}
			return leads != 1
		}, "Exactly one lead passenger is required"},
		validationRule{"passenger.phoneno", func() bool {
			for _, p := range r.Passengers {
				if invalidPhone(p.Phoneno) {
					return true
				}
			}
			return false
		}, "Invalid passenger phone number"},
	)
	return firstViolation(rules)
}

// MealSelection is a meal code chosen for a leg
type MealSelection struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

// FlightLegSelection is the itinerary and ancillaries chosen for one direction
type FlightLegSelection struct {
	ResultIndex string          `json:"resultIndex"`
	SeatCode    string          `json:"seatCode,omitempty"`
	Meals       []MealSelection `json:"meals,omitempty"`
	BaggageCode string          `json:"baggageCode,omitempty"`
}

// CreateFlightBookingRequest quotes and holds a one-way or return itinerary
type CreateFlightBookingRequest struct {
	BookingRequest
	TraceID    string              `json:"traceId"`
	Passengers []FlightPassenger   `json:"passengers"`
	Outbound   FlightLegSelection  `json:"outbound"`
	Return     *FlightLegSelection `json:"return,omitempty"`
}

// Validate runs the request rules in order
func (r *CreateFlightBookingRequest) Validate() error {
	rules := append(r.commonRules(),
		r.notPayAtHotel(),
		validationRule{"traceId", func() bool { return r.TraceID == "" }, "traceId is required"},
		validationRule{"outbound.resultIndex", func() bool { return r.Outbound.ResultIndex == "" }, "outbound.resultIndex is required"},
		validationRule{"return.resultIndex", func() bool { return r.Return != nil && r.Return.ResultIndex == "" }, "return.resultIndex is required"},
		validationRule{"passengers", func() bool { return len(r.Passengers) == 0 }, "At least one passenger is required"},
		validationRule{"passengers.isLeadPax", func() bool {
			for _, p := range r.Passengers {
				if p.IsLeadPax {
					return false
				}
			}
			return true
		}, "A lead passenger is required"},
		validationRule{"passengers.contactNo", func() bool {
			for _, p := range r.Passengers {
				if invalidPhone(p.ContactNo) {
					return true
				}
			}
			return false
		}, "Invalid passenger contact number"},
		validationRule{"passengers.email", func() bool {
			for _, p := range r.Passengers {
				if invalidEmail(p.Email) {
					return true
				}
			}
			return false
		}, "Invalid passenger email"},
		validationRule{"meals.quantity", func() bool {
			legs := []*FlightLegSelection{&r.Outbound, r.Return}
			for _, leg := range legs {
				if leg == nil {
					continue
				}
				for _, m := range leg.Meals {
					if m.Quantity < 1 {
						return true
					}
				}
			}
			return false
		}, "Meal quantity must be at least 1"},
	)
	return firstViolation(rules)
}

// ============================================================================
// LIFECYCLE REQUESTS
// ============================================================================

// UpdateBookingStatusRequest is an administrative status change
type UpdateBookingStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required"`
	Reason string        `json:"reason"`
}

// UpdateCompanyApprovalRequest approves or rejects a company-paid booking
type UpdateCompanyApprovalRequest struct {
	CompanyApproval CompanyApproval `json:"companyApproval" binding:"required"`
	Remarks         string          `json:"remarks"`
}

// CancelBookingRequest cancels a booking
type CancelBookingRequest struct {
	Remarks string `json:"remarks"`
}

// VerifyPaymentRequest carries the gateway checkout callback fields
type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// ============================================================================
// RESPONSES
// ============================================================================

// CreateBookingResult is returned by every create booking operation
type CreateBookingResult struct {
	Order     *PaymentOrder `json:"order"`
	BookingID string        `json:"bookingId"`
	User      *User         `json:"user"`
}

// PaymentOrder is the gateway order handed to the client checkout
type PaymentOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}
