package models

import "encoding/json"

// Payloads exchanged with the BDSD reservation API. Field names follow the
// supplier's PascalCase wire format.

// ============================================================================
// HOTEL
// ============================================================================

// HotelRoomPrice is the supplier price breakdown of one room
type HotelRoomPrice struct {
	CurrencyCode             string  `json:"CurrencyCode"`
	RoomPrice                float64 `json:"RoomPrice"`
	Tax                      float64 `json:"Tax"`
	ExtraGuestCharge         float64 `json:"ExtraGuestCharge"`
	ChildCharge              float64 `json:"ChildCharge"`
	OtherCharges             float64 `json:"OtherCharges"`
	Discount                 float64 `json:"Discount"`
	PublishedPrice           float64 `json:"PublishedPrice"`
	PublishedPriceRoundedOff float64 `json:"PublishedPriceRoundedOff"`
	OfferedPrice             float64 `json:"OfferedPrice"`
	AgentCommission          float64 `json:"AgentCommission"`
	ServiceTax               float64 `json:"ServiceTax"`
}

// HotelPassenger is a guest assigned to a room
type HotelPassenger struct {
	Title         string `json:"Title"`
	FirstName     string `json:"FirstName"`
	LastName      string `json:"LastName"`
	Phoneno       string `json:"Phoneno,omitempty"`
	Email         string `json:"Email,omitempty"`
	PaxType       int    `json:"PaxType"` // 1 adult, 2 child
	LeadPassenger bool   `json:"LeadPassenger"`
	Age           int    `json:"Age,omitempty"`
	PAN           string `json:"PAN,omitempty"`
}

// HotelRoomDetail is one room in a block or book request/result
type HotelRoomDetail struct {
	RoomIndex         int              `json:"RoomIndex"`
	RoomTypeCode      string           `json:"RoomTypeCode"`
	RoomTypeName      string           `json:"RoomTypeName"`
	RatePlanCode      string           `json:"RatePlanCode"`
	SmokingPreference int              `json:"SmokingPreference"`
	Price             *HotelRoomPrice  `json:"Price,omitempty"`
	HotelPassenger    []HotelPassenger `json:"HotelPassenger,omitempty"`
}

// HotelBlockRoomRequest holds the room hold parameters. The same parameters
// are replayed on the final Book call.
type HotelBlockRoomRequest struct {
	EndUserIP         string            `json:"EndUserIp"`
	SearchTokenID     string            `json:"SearchTokenId"`
	TraceID           string            `json:"TraceId"`
	ResultIndex       int               `json:"ResultIndex"`
	HotelCode         string            `json:"HotelCode"`
	HotelName         string            `json:"HotelName"`
	GuestNationality  string            `json:"GuestNationality"`
	NoOfRooms         int               `json:"NoOfRooms"`
	ClientReferenceNo string            `json:"ClientReferenceNo"`
	IsVoucherBooking  bool              `json:"IsVoucherBooking"`
	HotelRoomsDetails []HotelRoomDetail `json:"HotelRoomsDetails"`
}

// HotelBlockRoomResult is the supplier response to BlockRoom
type HotelBlockRoomResult struct {
	TraceID                     string            `json:"TraceId"`
	IsPriceChanged              bool              `json:"IsPriceChanged"`
	IsCancellationPolicyChanged bool              `json:"IsCancellationPolicyChanged"`
	HotelName                   string            `json:"HotelName"`
	AddressLine1                string            `json:"AddressLine1,omitempty"`
	StarRating                  int               `json:"StarRating,omitempty"`
	HotelRoomsDetails           []HotelRoomDetail `json:"HotelRoomsDetails"`
}

// ============================================================================
// BUS
// ============================================================================

// BusSeatPrice is the supplier price breakdown of one seat
type BusSeatPrice struct {
	CurrencyCode   string  `json:"CurrencyCode"`
	BasePrice      float64 `json:"BasePrice"`
	Tax            float64 `json:"Tax"`
	OtherCharges   float64 `json:"OtherCharges"`
	Discount       float64 `json:"Discount"`
	PublishedPrice float64 `json:"PublishedPrice"`
	OfferedPrice   float64 `json:"OfferedPrice"`
}

// BusSeat is a seat held for a passenger
type BusSeat struct {
	SeatIndex    string        `json:"SeatIndex"`
	SeatName     string        `json:"SeatName"`
	IsLadiesSeat bool          `json:"IsLadiesSeat,omitempty"`
	Price        *BusSeatPrice `json:"Price,omitempty"`
}

// BusPassenger is a traveller on a bus booking
type BusPassenger struct {
	LeadPassenger bool    `json:"LeadPassenger"`
	Title         string  `json:"Title"`
	FirstName     string  `json:"FirstName"`
	LastName      string  `json:"LastName"`
	Email         string  `json:"Email,omitempty"`
	Phoneno       string  `json:"Phoneno,omitempty"`
	Gender        int     `json:"Gender"` // 1 male, 2 female
	Age           int     `json:"Age"`
	Seat          BusSeat `json:"Seat"`
}

// BusBlockSeatRequest holds the seat hold parameters replayed on Book
type BusBlockSeatRequest struct {
	EndUserIP       string         `json:"EndUserIp"`
	SearchTokenID   string         `json:"SearchTokenId"`
	TraceID         string         `json:"TraceId"`
	ResultIndex     int            `json:"ResultIndex"`
	BoardingPointID int            `json:"BoardingPointId"`
	DroppingPointID int            `json:"DroppingPointId"`
	Passenger       []BusPassenger `json:"Passenger"`
}

// BusBlockSeatResult is the supplier response to BlockSeat
type BusBlockSeatResult struct {
	TraceID        string         `json:"TraceId"`
	IsPriceChanged bool           `json:"IsPriceChanged"`
	ArrivalTime    string         `json:"ArrivalTime,omitempty"`
	DepartureTime  string         `json:"DepartureTime,omitempty"`
	BusType        string         `json:"BusType,omitempty"`
	ServiceName    string         `json:"ServiceName,omitempty"`
	TravelName     string         `json:"TravelName,omitempty"`
	Passenger      []BusPassenger `json:"Passenger"`
}

// ============================================================================
// FLIGHT
// ============================================================================

// FlightFare is the fare of one itinerary as quoted by the supplier
type FlightFare struct {
	Currency       string  `json:"Currency"`
	BaseFare       float64 `json:"BaseFare"`
	Tax            float64 `json:"Tax"`
	YQTax          float64 `json:"YQTax"`
	OtherCharges   float64 `json:"OtherCharges"`
	Discount       float64 `json:"Discount"`
	PublishedPrice float64 `json:"PublishedPrice"`
	OfferedPrice   float64 `json:"OfferedPrice"`
}

// FlightItinerary is the quoted itinerary
type FlightItinerary struct {
	ResultIndex string          `json:"ResultIndex"`
	IsLCC       bool            `json:"IsLCC"`
	AirlineCode string          `json:"AirlineCode,omitempty"`
	Fare        FlightFare      `json:"Fare"`
	Segments    json.RawMessage `json:"Segments,omitempty"`
}

// FlightFareQuoteRequest re-prices one leg before booking
type FlightFareQuoteRequest struct {
	EndUserIP     string `json:"EndUserIp"`
	SearchTokenID string `json:"SearchTokenId"`
	TraceID       string `json:"TraceId"`
	ResultIndex   string `json:"ResultIndex"`
}

// FlightFareQuoteResult is the supplier response to FareQuote
type FlightFareQuoteResult struct {
	TraceID        string          `json:"TraceId"`
	IsPriceChanged bool            `json:"IsPriceChanged"`
	Results        FlightItinerary `json:"Results"`
}

// SSROption is a priced ancillary (seat, meal or baggage)
type SSROption struct {
	Code         string  `json:"Code"`
	Description  string  `json:"Description,omitempty"`
	AirlineCode  string  `json:"AirlineCode,omitempty"`
	FlightNumber string  `json:"FlightNumber,omitempty"`
	Origin       string  `json:"Origin,omitempty"`
	Destination  string  `json:"Destination,omitempty"`
	WayType      int     `json:"WayType,omitempty"`
	Weight       int     `json:"Weight,omitempty"`
	Quantity     int     `json:"Quantity,omitempty"`
	RowNo        string  `json:"RowNo,omitempty"`
	SeatNo       string  `json:"SeatNo,omitempty"`
	Currency     string  `json:"Currency,omitempty"`
	Price        float64 `json:"Price"`
}

// FlightSSRRequest asks for the ancillaries available on a leg
type FlightSSRRequest struct {
	EndUserIP     string `json:"EndUserIp"`
	SearchTokenID string `json:"SearchTokenId"`
	TraceID       string `json:"TraceId"`
	ResultIndex   string `json:"ResultIndex"`
}

// FlightSSRResult lists ancillaries grouped per segment
type FlightSSRResult struct {
	TraceID     string        `json:"TraceId"`
	Baggage     [][]SSROption `json:"Baggage,omitempty"`
	MealDynamic [][]SSROption `json:"MealDynamic,omitempty"`
	SeatDynamic []SeatDynamic `json:"SeatDynamic,omitempty"`
}

// SeatDynamic is the seat map of one journey
type SeatDynamic struct {
	SegmentSeat []SegmentSeat `json:"SegmentSeat"`
}

// SegmentSeat is the seat map of one segment
type SegmentSeat struct {
	RowSeats []RowSeat `json:"RowSeats"`
}

// RowSeat is one row of seats
type RowSeat struct {
	Seats []SSROption `json:"Seats"`
}

// FlightPassenger is a traveller on a flight booking
type FlightPassenger struct {
	Title        string `json:"Title"`
	FirstName    string `json:"FirstName"`
	LastName     string `json:"LastName"`
	PaxType      int    `json:"PaxType"`
	DateOfBirth  string `json:"DateOfBirth,omitempty"`
	Gender       int    `json:"Gender"`
	PassportNo   string `json:"PassportNo,omitempty"`
	ContactNo    string `json:"ContactNo"`
	Email        string `json:"Email"`
	IsLeadPax    bool   `json:"IsLeadPax"`
	Nationality  string `json:"Nationality,omitempty"`
	AddressLine1 string `json:"AddressLine1,omitempty"`
	City         string `json:"City,omitempty"`
	CountryCode  string `json:"CountryCode,omitempty"`
}

// FlightTicketRequest issues the ticket for one leg
type FlightTicketRequest struct {
	EndUserIP     string            `json:"EndUserIp"`
	SearchTokenID string            `json:"SearchTokenId"`
	TraceID       string            `json:"TraceId"`
	ResultIndex   string            `json:"ResultIndex"`
	IsLCC         bool              `json:"IsLCC"`
	Passengers    []FlightPassenger `json:"Passengers"`
	SeatDynamic   []SSROption       `json:"SeatDynamic,omitempty"`
	MealDynamic   []SSROption       `json:"MealDynamic,omitempty"`
	Baggage       []SSROption       `json:"Baggage,omitempty"`
}

// ============================================================================
// BOOK / DETAILS / CANCEL (shared by all verticals)
// ============================================================================

// SupplierBookResult is the supplier response to the final book or ticket call
type SupplierBookResult struct {
	BookingID      int64  `json:"BookingId"`
	BookingRefNo   string `json:"BookingRefNo,omitempty"`
	ConfirmationNo string `json:"ConfirmationNo,omitempty"`
	PNR            string `json:"PNR,omitempty"`
	InvoiceNumber  string `json:"InvoiceNumber,omitempty"`
	Status         int    `json:"Status"`
	TicketNo       string `json:"TicketNo,omitempty"`
}

// SupplierBookingDetailRequest fetches the supplier booking document
type SupplierBookingDetailRequest struct {
	EndUserIP     string `json:"EndUserIp"`
	SearchTokenID string `json:"SearchTokenId,omitempty"`
	BookingID     int64  `json:"BookingId"`
	PNR           string `json:"PNR,omitempty"`
}

// SupplierChangeRequest asks the supplier to cancel a confirmed booking
type SupplierChangeRequest struct {
	EndUserIP   string `json:"EndUserIp"`
	BookingID   int64  `json:"BookingId"`
	RequestType int    `json:"RequestType"`
	Remarks     string `json:"Remarks"`
}

// SupplierChangeResult is the supplier response to a change request
type SupplierChangeResult struct {
	ChangeRequestID     int64   `json:"ChangeRequestId"`
	ChangeRequestStatus int     `json:"ChangeRequestStatus"`
	RefundedAmount      float64 `json:"RefundedAmount,omitempty"`
	CancellationCharge  float64 `json:"CancellationCharge,omitempty"`
}
