package booking

import (
	"context"
	"fmt"
	"sync"
)

// Service contains the booking domain logic over a Store.
//
// A single mutex serializes every entry operation: no operation observes a
// partially mutated store left by another, and none suspends mid-mutation.
// The store is only touched while the mutex is held.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
	mu     sync.Mutex
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// InitSystem registers the admin capability and creates the system's
// station. Re-running with the same admin id overwrites the capability
// silently; there is no way to create further stations afterwards.
func (service *Service) InitSystem(ctx context.Context, adminID uint64, name string, funds uint64) (InitResult, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	var stationID uint64
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := transactionStore.PutAdmin(ctx, AdminCap{AdminID: adminID}); err != nil {
			return err
		}
		allocatedID, err := transactionStore.NextID(ctx)
		if err != nil {
			return err
		}
		stationID = allocatedID
		return transactionStore.PutStation(ctx, Station{
			ID:       stationID,
			Name:     name,
			Funds:    funds,
			TrainIDs: []uint64{},
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationInitSystem,
		AdminID:   adminID,
		StationID: stationID,
		Error:     operationError,
	})
	if operationError != nil {
		return InitResult{}, operationError
	}
	return InitResult{AdminID: adminID, StationID: stationID}, nil
}

// CreateTrain allocates a train with all seats available and attaches it to
// the first station whose name matches the departure name.
func (service *Service) CreateTrain(ctx context.Context, adminID uint64, departure string, arrival string, seatCount uint64, price uint64, schedule uint64) (Train, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	var train Train
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := requireAdmin(ctx, transactionStore, adminID); err != nil {
			return err
		}
		stations, err := transactionStore.ListStations(ctx)
		if err != nil {
			return err
		}
		if !stationNameExists(stations, departure) || !stationNameExists(stations, arrival) {
			return ErrInvalidInput
		}
		trainID, err := transactionStore.NextID(ctx)
		if err != nil {
			return err
		}
		seats := make(map[uint64]BookingStatus, seatCount)
		for seatNumber := firstSeatNumber; seatNumber <= seatCount; seatNumber++ {
			seats[seatNumber] = SeatAvailable
		}
		train = Train{
			ID:               trainID,
			DepartureStation: departure,
			ArrivalStation:   arrival,
			Seats:            seats,
			Price:            price,
			Schedule:         schedule,
		}
		if err := transactionStore.PutTrain(ctx, train); err != nil {
			return err
		}
		// First match in ascending id order; a miss leaves the train
		// unattached rather than failing the operation.
		departureStation, found := firstStationNamed(stations, departure)
		if !found {
			return nil
		}
		departureStation.TrainIDs = append(departureStation.TrainIDs, trainID)
		return transactionStore.PutStation(ctx, departureStation)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateTrain,
		AdminID:   adminID,
		TrainID:   train.ID,
		Error:     operationError,
	})
	if operationError != nil {
		return Train{}, operationError
	}
	return train, nil
}

// BuyTicket flips one available seat to booked and issues a ticket stamped
// with the purchase time. The train's schedule is deliberately not checked
// against the clock here.
func (service *Service) BuyTicket(ctx context.Context, trainID uint64, owner string, seatNumber uint64) (Ticket, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	var ticket Ticket
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		train, err := transactionStore.GetTrain(ctx, trainID)
		if err != nil {
			return err
		}
		if train.Seats[seatNumber] != SeatAvailable {
			return ErrAlreadyBooked
		}
		train.Seats[seatNumber] = SeatBooked
		if err := transactionStore.PutTrain(ctx, train); err != nil {
			return err
		}
		ticketID, err := transactionStore.NextID(ctx)
		if err != nil {
			return err
		}
		ticket = Ticket{
			ID:         ticketID,
			TrainID:    trainID,
			Owner:      owner,
			SeatNumber: seatNumber,
			LaunchTime: uint64(service.nowFn()),
		}
		return transactionStore.PutTicket(ctx, ticket)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationBuyTicket,
		TrainID:    trainID,
		TicketID:   ticket.ID,
		Owner:      owner,
		SeatNumber: seatNumber,
		Error:      operationError,
	})
	if operationError != nil {
		return Ticket{}, operationError
	}
	return ticket, nil
}

// RefundTicket releases the seat and removes the ticket. The time window is
// the literal inherited contract: a ticket whose launch time is not in the
// future is rejected as departed, and launch time is the purchase timestamp.
func (service *Service) RefundTicket(ctx context.Context, ticketID uint64) error {
	service.mu.Lock()
	defer service.mu.Unlock()

	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		ticket, err := transactionStore.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.LaunchTime <= uint64(service.nowFn()) {
			return ErrTrainDeparted
		}
		// The train may have been closed since purchase; the ticket is
		// then an orphan and the refund reports the missing train.
		train, err := transactionStore.GetTrain(ctx, ticket.TrainID)
		if err != nil {
			return err
		}
		train.Seats[ticket.SeatNumber] = SeatAvailable
		if err := transactionStore.PutTrain(ctx, train); err != nil {
			return err
		}
		return transactionStore.RemoveTicket(ctx, ticketID)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRefund,
		TicketID:  ticketID,
		Error:     operationError,
	})
	return operationError
}

// CloseTrain detaches the train from its departure station and removes it.
// Tickets referencing the train are not cascade-deleted.
func (service *Service) CloseTrain(ctx context.Context, adminID uint64, trainID uint64) error {
	service.mu.Lock()
	defer service.mu.Unlock()

	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := requireAdmin(ctx, transactionStore, adminID); err != nil {
			return err
		}
		train, err := transactionStore.GetTrain(ctx, trainID)
		if err != nil {
			return err
		}
		stations, err := transactionStore.ListStations(ctx)
		if err != nil {
			return err
		}
		departureStation, found := firstStationNamed(stations, train.DepartureStation)
		if found {
			departureStation.TrainIDs = removeTrainID(departureStation.TrainIDs, trainID)
			if err := transactionStore.PutStation(ctx, departureStation); err != nil {
				return err
			}
		}
		return transactionStore.RemoveTrain(ctx, trainID)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCloseTrain,
		AdminID:   adminID,
		TrainID:   trainID,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func requireAdmin(ctx context.Context, store Store, adminID uint64) error {
	exists, err := store.AdminExists(ctx, adminID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnauthorized
	}
	return nil
}

func stationNameExists(stations []Station, name string) bool {
	for _, station := range stations {
		if station.Name == name {
			return true
		}
	}
	return false
}

func firstStationNamed(stations []Station, name string) (Station, bool) {
	for _, station := range stations {
		if station.Name == name {
			return station, true
		}
	}
	return Station{}, false
}

func removeTrainID(trainIDs []uint64, trainID uint64) []uint64 {
	remaining := make([]uint64, 0, len(trainIDs))
	for _, id := range trainIDs {
		if id != trainID {
			remaining = append(remaining, id)
		}
	}
	return remaining
}
