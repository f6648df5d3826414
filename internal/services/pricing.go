package services

import (
	"math"

	"github.com/tripdesk/booking-backend/internal/models"
)

// Price is the authoritative amount of a booking in whole currency units.
// It is derived from supplier responses only, never from client input.
type Price struct {
	Cost  int64
	Fee   int64
	Total int64
}

func roundUnits(v float64) int64 {
	return int64(math.Round(v))
}

// PriceHotel sums RoomPrice, Tax and PublishedPrice of every selected room as
// returned by BlockRoom. Rooms are matched by RoomIndex.
func PriceHotel(selected []models.HotelRoomDetail, block models.HotelBlockRoomResult) (Price, error) {
	if len(selected) == 0 {
		return Price{}, ErrInvalidFareDetails
	}

	byIndex := make(map[int]*models.HotelRoomPrice, len(block.HotelRoomsDetails))
	for i := range block.HotelRoomsDetails {
		room := block.HotelRoomsDetails[i]
		byIndex[room.RoomIndex] = room.Price
	}

	var cost, fee, total float64
	for _, room := range selected {
		price, ok := byIndex[room.RoomIndex]
		if !ok || price == nil {
			return Price{}, ErrInvalidFareDetails
		}
		cost += price.RoomPrice
		fee += price.Tax
		total += price.PublishedPrice
	}

	return Price{Cost: roundUnits(cost), Fee: roundUnits(fee), Total: roundUnits(total)}, nil
}

// PriceBus sums the published price (cost) and tax (fee) of every seat held by
// BlockSeat. Each requested seat must appear in the block result.
func PriceBus(requested []models.BusPassenger, block models.BusBlockSeatResult) (Price, error) {
	if len(requested) == 0 || len(block.Passenger) != len(requested) {
		return Price{}, ErrInvalidFareDetails
	}

	held := make(map[string]*models.BusSeatPrice, len(block.Passenger))
	for _, p := range block.Passenger {
		held[p.Seat.SeatIndex] = p.Seat.Price
	}

	var cost, fee float64
	for _, p := range requested {
		price, ok := held[p.Seat.SeatIndex]
		if !ok || price == nil {
			return Price{}, ErrInvalidFareDetails
		}
		cost += price.PublishedPrice
		fee += price.Tax
	}

	return Price{Cost: roundUnits(cost), Fee: roundUnits(fee), Total: roundUnits(cost + fee)}, nil
}

// PricedLeg is one flight direction with the ancillaries resolved against SSR
type PricedLeg struct {
	Seat     *models.SSROption
	Meals    []models.SSROption
	Baggage  *models.SSROption
	BaseFare float64
	Total    float64
}

// PriceFlightLeg prices one direction: quoted fare plus the selected seat,
// meals (times quantity) and baggage. Selections are matched by code.
func PriceFlightLeg(selection models.FlightLegSelection, quote models.FlightFareQuoteResult, ssr models.FlightSSRResult) (PricedLeg, error) {
	fare := quote.Results.Fare
	leg := PricedLeg{BaseFare: fare.BaseFare, Total: fare.PublishedPrice}

	if selection.SeatCode != "" {
		seat, ok := findSeat(ssr.SeatDynamic, selection.SeatCode)
		if !ok {
			return PricedLeg{}, ErrInvalidFareDetails
		}
		leg.Seat = &seat
		leg.Total += seat.Price
	}

	for _, meal := range selection.Meals {
		option, ok := findOption(ssr.MealDynamic, meal.Code)
		if !ok || meal.Quantity < 1 {
			return PricedLeg{}, ErrInvalidFareDetails
		}
		option.Quantity = meal.Quantity
		leg.Meals = append(leg.Meals, option)
		leg.Total += option.Price * float64(meal.Quantity)
	}

	if selection.BaggageCode != "" {
		baggage, ok := findOption(ssr.Baggage, selection.BaggageCode)
		if !ok {
			return PricedLeg{}, ErrInvalidFareDetails
		}
		leg.Baggage = &baggage
		leg.Total += baggage.Price
	}

	return leg, nil
}

// PriceFlight sums independently priced legs. Cost is the base fare, the
// fee is everything on top of it.
func PriceFlight(legs ...PricedLeg) Price {
	var base, total float64
	for _, leg := range legs {
		base += leg.BaseFare
		total += leg.Total
	}
	t := roundUnits(total)
	c := roundUnits(base)
	return Price{Cost: c, Fee: t - c, Total: t}
}

func findOption(groups [][]models.SSROption, code string) (models.SSROption, bool) {
	for _, group := range groups {
		for _, option := range group {
			if option.Code == code {
				return option, true
			}
		}
	}
	return models.SSROption{}, false
}

func findSeat(maps []models.SeatDynamic, code string) (models.SSROption, bool) {
	for _, journey := range maps {
		for _, segment := range journey.SegmentSeat {
			for _, row := range segment.RowSeats {
				for _, seat := range row.Seats {
					if seat.Code == code {
						return seat, true
					}
				}
			}
		}
	}
	return models.SSROption{}, false
}
