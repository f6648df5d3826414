package supplier

// BDSD reservation API endpoints, relative to Config.BaseURL
const (
	EndpointHotelBlockRoom        = "/hotel/BlockRoom"
	EndpointHotelBook             = "/hotel/Book"
	EndpointHotelGetBookingDetail = "/hotel/GetBookingDetail"
	EndpointHotelChangeRequest    = "/hotel/SendChangeRequest"

	EndpointBusBlockSeat        = "/bus/BlockSeat"
	EndpointBusBook             = "/bus/Book"
	EndpointBusGetBookingDetail = "/bus/GetBookingDetail"
	EndpointBusCancel           = "/bus/CancelBus"

	EndpointFlightFareQuote         = "/flight/FareQuote"
	EndpointFlightSSR               = "/flight/SSR"
	EndpointFlightTicket            = "/flight/Ticket"
	EndpointFlightGetBookingDetails = "/flight/GetBookingDetails"
	EndpointFlightChangeRequest     = "/flight/SendChangeRequest"
)

// Change request types understood by SendChangeRequest
const (
	ChangeRequestFullCancellation = 1
	ChangeRequestHotelCancel      = 4
)
