package booking

import (
	"context"
	"errors"
	"sort"
	"testing"
)

const (
	adminIDValue  uint64 = 7
	stationName          = "Central"
	arrivalName          = "North"
	ownerName            = "alice"
	stationFunds  uint64 = 1000
	trainPrice    uint64 = 50
	trainSchedule uint64 = 9999
	purchaseClock int64  = 100
	rewoundClock  int64  = 50
)

func TestInitSystemRegistersAdminAndStation(test *testing.T) {
	test.Parallel()
	store, _, service := newBookingFixture(test)

	result, err := service.InitSystem(context.Background(), adminIDValue, stationName, stationFunds)
	if err != nil {
		test.Fatalf("init system: %v", err)
	}
	if result.AdminID != adminIDValue {
		test.Fatalf("expected admin %d, got %d", adminIDValue, result.AdminID)
	}
	if result.StationID != 1 {
		test.Fatalf("expected first station id 1, got %d", result.StationID)
	}
	if _, registered := store.admins[adminIDValue]; !registered {
		test.Fatalf("expected admin %d registered", adminIDValue)
	}
	station := store.mustStation(test, result.StationID)
	if station.Name != stationName || station.Funds != stationFunds {
		test.Fatalf("unexpected station record: %+v", station)
	}
	if len(station.TrainIDs) != 0 {
		test.Fatalf("expected empty train list, got %v", station.TrainIDs)
	}
}

func TestInitSystemOverwritesExistingAdmin(test *testing.T) {
	test.Parallel()
	store, _, service := newBookingFixture(test)

	if _, err := service.InitSystem(context.Background(), adminIDValue, stationName, stationFunds); err != nil {
		test.Fatalf("first init: %v", err)
	}
	result, err := service.InitSystem(context.Background(), adminIDValue, arrivalName, 0)
	if err != nil {
		test.Fatalf("second init: %v", err)
	}
	if result.StationID != 2 {
		test.Fatalf("expected second station id 2, got %d", result.StationID)
	}
	if len(store.admins) != 1 {
		test.Fatalf("expected single admin record, got %d", len(store.admins))
	}
	if len(store.stations) != 2 {
		test.Fatalf("expected two stations, got %d", len(store.stations))
	}
}

func TestCreateTrainBuildsContiguousSeatMap(test *testing.T) {
	test.Parallel()
	store, _, service := newBookingFixture(test)
	initResult := mustInitSystem(test, service)

	train, err := service.CreateTrain(context.Background(), adminIDValue, stationName, arrivalName, 3, trainPrice, trainSchedule)
	if err != nil {
		test.Fatalf("create train: %v", err)
	}
	if len(train.Seats) != 3 {
		test.Fatalf("expected 3 seats, got %d", len(train.Seats))
	}
	for seatNumber := uint64(1); seatNumber <= 3; seatNumber++ {
		if train.Seats[seatNumber] != SeatAvailable {
			test.Fatalf("expected seat %d available, got %s", seatNumber, train.Seats[seatNumber])
		}
	}
	station := store.mustStation(test, initResult.StationID)
	if len(station.TrainIDs) != 1 || station.TrainIDs[0] != train.ID {
		test.Fatalf("expected station to list train %d, got %v", train.ID, station.TrainIDs)
	}
}

func TestCreateTrainRequiresAdmin(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)
	mustInitSystem(test, service)

	_, err := service.CreateTrain(context.Background(), adminIDValue+1, stationName, arrivalName, 2, trainPrice, trainSchedule)
	if !errors.Is(err, ErrUnauthorized) {
		test.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateTrainRejectsUnknownStations(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		departure string
		arrival   string
		wantErr   error
	}{
		{name: "unknown departure", departure: "Nowhere", arrival: stationName, wantErr: ErrInvalidInput},
		{name: "unknown arrival", departure: stationName, arrival: "Nowhere", wantErr: ErrInvalidInput},
		{name: "both unknown", departure: "Nowhere", arrival: "Elsewhere", wantErr: ErrInvalidInput},
		{name: "self loop allowed", departure: stationName, arrival: stationName, wantErr: nil},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, _, service := newBookingFixture(test)
			mustInitSystem(test, service)

			_, err := service.CreateTrain(context.Background(), adminIDValue, testCase.departure, testCase.arrival, 2, trainPrice, trainSchedule)
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestCreateTrainAttachesToFirstMatchingStation(test *testing.T) {
	test.Parallel()
	store, _, service := newBookingFixture(test)
	store.admins[adminIDValue] = AdminCap{AdminID: adminIDValue}
	store.stations[5] = Station{ID: 5, Name: stationName, TrainIDs: []uint64{}}
	store.stations[9] = Station{ID: 9, Name: stationName, TrainIDs: []uint64{}}

	train, err := service.CreateTrain(context.Background(), adminIDValue, stationName, stationName, 1, trainPrice, trainSchedule)
	if err != nil {
		test.Fatalf("create train: %v", err)
	}
	first := store.mustStation(test, 5)
	if len(first.TrainIDs) != 1 || first.TrainIDs[0] != train.ID {
		test.Fatalf("expected lowest-id station to own train %d, got %v", train.ID, first.TrainIDs)
	}
	second := store.mustStation(test, 9)
	if len(second.TrainIDs) != 0 {
		test.Fatalf("expected higher-id duplicate untouched, got %v", second.TrainIDs)
	}
}

func TestBuyTicketBooksSeat(test *testing.T) {
	test.Parallel()
	store, clock, service := newBookingFixture(test)
	mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 2)

	ticket, err := service.BuyTicket(context.Background(), train.ID, ownerName, 1)
	if err != nil {
		test.Fatalf("buy ticket: %v", err)
	}
	if ticket.TrainID != train.ID || ticket.Owner != ownerName || ticket.SeatNumber != 1 {
		test.Fatalf("unexpected ticket: %+v", ticket)
	}
	if ticket.LaunchTime != uint64(clock.now) {
		test.Fatalf("expected launch time %d, got %d", clock.now, ticket.LaunchTime)
	}
	stored := store.mustTrain(test, train.ID)
	if stored.Seats[1] != SeatBooked || stored.Seats[2] != SeatAvailable {
		test.Fatalf("unexpected seat map: %v", stored.Seats)
	}
}

func TestBuyTicketSecondPurchaseFails(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)
	mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 2)
	mustBuyTicket(test, service, train.ID, 1)

	_, err := service.BuyTicket(context.Background(), train.ID, "bob", 1)
	if !errors.Is(err, ErrAlreadyBooked) {
		test.Fatalf("expected ErrAlreadyBooked, got %v", err)
	}
}

func TestBuyTicketSeatOutOfRange(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)
	mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 2)

	_, err := service.BuyTicket(context.Background(), train.ID, ownerName, 3)
	if !errors.Is(err, ErrAlreadyBooked) {
		test.Fatalf("expected ErrAlreadyBooked for missing seat, got %v", err)
	}
}

func TestBuyTicketUnknownTrain(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)
	mustInitSystem(test, service)

	_, err := service.BuyTicket(context.Background(), 404, ownerName, 1)
	if !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBuyTicketIgnoresSchedule(test *testing.T) {
	test.Parallel()
	_, clock, service := newBookingFixture(test)
	mustInitSystem(test, service)
	train, err := service.CreateTrain(context.Background(), adminIDValue, stationName, arrivalName, 1, trainPrice, uint64(clock.now)-10)
	if err != nil {
		test.Fatalf("create train: %v", err)
	}

	if _, err := service.BuyTicket(context.Background(), train.ID, ownerName, 1); err != nil {
		test.Fatalf("expected purchase past schedule to succeed, got %v", err)
	}
}

func TestRefundTicketBeforeLaunchTime(test *testing.T) {
	test.Parallel()
	store, clock, service := newBookingFixture(test)
	mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 2)
	ticket := mustBuyTicket(test, service, train.ID, 1)

	clock.now = rewoundClock
	if err := service.RefundTicket(context.Background(), ticket.ID); err != nil {
		test.Fatalf("refund: %v", err)
	}
	stored := store.mustTrain(test, train.ID)
	if stored.Seats[1] != SeatAvailable {
		test.Fatalf("expected seat released, got %s", stored.Seats[1])
	}
	if _, exists := store.tickets[ticket.ID]; exists {
		test.Fatalf("expected ticket %d removed", ticket.ID)
	}
}

func TestRefundTicketAfterLaunchTime(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)
	mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 2)
	ticket := mustBuyTicket(test, service, train.ID, 1)

	// Launch time equals the purchase clock, so an unmoved clock already
	// trips the launch_time <= now rejection.
	err := service.RefundTicket(context.Background(), ticket.ID)
	if !errors.Is(err, ErrTrainDeparted) {
		test.Fatalf("expected ErrTrainDeparted, got %v", err)
	}
}

func TestRefundTicketUnknown(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)

	err := service.RefundTicket(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefundOrphanedTicket(test *testing.T) {
	test.Parallel()
	_, clock, service := newBookingFixture(test)
	mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 2)
	ticket := mustBuyTicket(test, service, train.ID, 1)

	if err := service.CloseTrain(context.Background(), adminIDValue, train.ID); err != nil {
		test.Fatalf("close train: %v", err)
	}
	clock.now = rewoundClock
	err := service.RefundTicket(context.Background(), ticket.ID)
	if !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound for orphaned ticket, got %v", err)
	}
}

func TestCloseTrainDetachesAndRemoves(test *testing.T) {
	test.Parallel()
	store, _, service := newBookingFixture(test)
	initResult := mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 2)
	ticket := mustBuyTicket(test, service, train.ID, 1)

	if err := service.CloseTrain(context.Background(), adminIDValue, train.ID); err != nil {
		test.Fatalf("close train: %v", err)
	}
	station := store.mustStation(test, initResult.StationID)
	if len(station.TrainIDs) != 0 {
		test.Fatalf("expected train detached, got %v", station.TrainIDs)
	}
	if _, err := service.ViewTrain(context.Background(), train.ID); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected closed train to be gone, got %v", err)
	}
	if _, exists := store.tickets[ticket.ID]; !exists {
		test.Fatalf("expected ticket %d to survive train closure", ticket.ID)
	}
}

func TestCloseTrainRequiresAdmin(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)
	mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 2)

	err := service.CloseTrain(context.Background(), adminIDValue+1, train.ID)
	if !errors.Is(err, ErrUnauthorized) {
		test.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCloseTrainUnknownTrain(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)
	mustInitSystem(test, service)

	err := service.CloseTrain(context.Background(), adminIDValue, 404)
	if !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestViewStationUnknown(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)

	_, err := service.ViewStation(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIdentifierAllocationStrictlyIncreasing(test *testing.T) {
	test.Parallel()
	_, _, service := newBookingFixture(test)

	initResult := mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 2)
	ticket := mustBuyTicket(test, service, train.ID, 1)

	if !(initResult.StationID < train.ID && train.ID < ticket.ID) {
		test.Fatalf("expected strictly increasing ids, got station=%d train=%d ticket=%d", initResult.StationID, train.ID, ticket.ID)
	}
}

func TestBookedSeatsMatchLiveTickets(test *testing.T) {
	test.Parallel()
	store, clock, service := newBookingFixture(test)
	mustInitSystem(test, service)
	train := mustCreateTrain(test, service, 3)
	first := mustBuyTicket(test, service, train.ID, 1)
	mustBuyTicket(test, service, train.ID, 2)

	clock.now = rewoundClock
	if err := service.RefundTicket(context.Background(), first.ID); err != nil {
		test.Fatalf("refund: %v", err)
	}

	stored := store.mustTrain(test, train.ID)
	bookedSeats := 0
	for _, status := range stored.Seats {
		if status == SeatBooked {
			bookedSeats++
		}
	}
	liveTickets := 0
	for _, ticket := range store.tickets {
		if ticket.TrainID == train.ID {
			liveTickets++
		}
	}
	if bookedSeats != liveTickets {
		test.Fatalf("expected %d booked seats to match %d live tickets", bookedSeats, liveTickets)
	}
	if bookedSeats != 1 {
		test.Fatalf("expected exactly one booked seat, got %d", bookedSeats)
	}
}

func TestBookingLifecycleScenario(test *testing.T) {
	test.Parallel()
	store, _, service := newBookingFixture(test)

	initResult, err := service.InitSystem(context.Background(), 1, "Central", 1000)
	if err != nil {
		test.Fatalf("init system: %v", err)
	}
	if initResult.StationID != 1 {
		test.Fatalf("expected station id 1, got %d", initResult.StationID)
	}
	if _, secondErr := service.InitSystem(context.Background(), 1, "North", 0); secondErr != nil {
		test.Fatalf("north init: %v", secondErr)
	}

	train, err := service.CreateTrain(context.Background(), 1, "Central", "North", 2, 50, 9999)
	if err != nil {
		test.Fatalf("create train: %v", err)
	}
	if train.Seats[1] != SeatAvailable || train.Seats[2] != SeatAvailable {
		test.Fatalf("unexpected seat map: %v", train.Seats)
	}

	ticket, err := service.BuyTicket(context.Background(), train.ID, "alice", 1)
	if err != nil {
		test.Fatalf("buy ticket: %v", err)
	}
	if ticket.SeatNumber != 1 {
		test.Fatalf("expected seat 1, got %d", ticket.SeatNumber)
	}
	stored := store.mustTrain(test, train.ID)
	if stored.Seats[1] != SeatBooked || stored.Seats[2] != SeatAvailable {
		test.Fatalf("unexpected seat map after purchase: %v", stored.Seats)
	}

	if _, err := service.BuyTicket(context.Background(), train.ID, "bob", 1); !errors.Is(err, ErrAlreadyBooked) {
		test.Fatalf("expected ErrAlreadyBooked for bob, got %v", err)
	}

	if err := service.CloseTrain(context.Background(), 1, train.ID); err != nil {
		test.Fatalf("close train: %v", err)
	}
	station := store.mustStation(test, initResult.StationID)
	for _, id := range station.TrainIDs {
		if id == train.ID {
			test.Fatalf("expected train %d detached from station", train.ID)
		}
	}
	if _, err := service.ViewTrain(context.Background(), train.ID); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound after closure, got %v", err)
	}
}

type fakeClock struct {
	now int64
}

func (clock *fakeClock) Now() int64 {
	return clock.now
}

func newBookingFixture(test *testing.T) (*stubStore, *fakeClock, *Service) {
	test.Helper()
	store := newStubStore(test)
	clock := &fakeClock{now: purchaseClock}
	service, err := NewService(store, clock.Now)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return store, clock, service
}

func mustInitSystem(test *testing.T, service *Service) InitResult {
	test.Helper()
	result, err := service.InitSystem(context.Background(), adminIDValue, stationName, stationFunds)
	if err != nil {
		test.Fatalf("init system: %v", err)
	}
	if _, err := service.InitSystem(context.Background(), adminIDValue, arrivalName, 0); err != nil {
		test.Fatalf("arrival station init: %v", err)
	}
	return result
}

func mustCreateTrain(test *testing.T, service *Service, seatCount uint64) Train {
	test.Helper()
	train, err := service.CreateTrain(context.Background(), adminIDValue, stationName, arrivalName, seatCount, trainPrice, trainSchedule)
	if err != nil {
		test.Fatalf("create train: %v", err)
	}
	return train
}

func mustBuyTicket(test *testing.T, service *Service, trainID uint64, seatNumber uint64) Ticket {
	test.Helper()
	ticket, err := service.BuyTicket(context.Background(), trainID, ownerName, seatNumber)
	if err != nil {
		test.Fatalf("buy ticket: %v", err)
	}
	return ticket
}

type stubStore struct {
	counter  uint64
	admins   map[uint64]AdminCap
	stations map[uint64]Station
	trains   map[uint64]Train
	tickets  map[uint64]Ticket

	nextIDError       error
	putAdminError     error
	adminExistsError  error
	putStationError   error
	listStationsError error
	getTrainError     error
	putTrainError     error
	removeTrainError  error
	getTicketError    error
	putTicketError    error
	removeTicketError error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		admins:   make(map[uint64]AdminCap),
		stations: make(map[uint64]Station),
		trains:   make(map[uint64]Train),
		tickets:  make(map[uint64]Ticket),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) NextID(ctx context.Context) (uint64, error) {
	if store.nextIDError != nil {
		return 0, store.nextIDError
	}
	store.counter++
	return store.counter, nil
}

func (store *stubStore) PutAdmin(ctx context.Context, adminCap AdminCap) error {
	if store.putAdminError != nil {
		return store.putAdminError
	}
	store.admins[adminCap.AdminID] = adminCap
	return nil
}

func (store *stubStore) AdminExists(ctx context.Context, adminID uint64) (bool, error) {
	if store.adminExistsError != nil {
		return false, store.adminExistsError
	}
	_, exists := store.admins[adminID]
	return exists, nil
}

func (store *stubStore) GetStation(ctx context.Context, stationID uint64) (Station, error) {
	station, exists := store.stations[stationID]
	if !exists {
		return Station{}, WrapError("store", "station", "get", ErrNotFound)
	}
	return cloneStation(station), nil
}

func (store *stubStore) PutStation(ctx context.Context, station Station) error {
	if store.putStationError != nil {
		return store.putStationError
	}
	store.stations[station.ID] = cloneStation(station)
	return nil
}

func (store *stubStore) ListStations(ctx context.Context) ([]Station, error) {
	if store.listStationsError != nil {
		return nil, store.listStationsError
	}
	ids := make([]uint64, 0, len(store.stations))
	for id := range store.stations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(left, right int) bool { return ids[left] < ids[right] })
	stations := make([]Station, 0, len(ids))
	for _, id := range ids {
		stations = append(stations, cloneStation(store.stations[id]))
	}
	return stations, nil
}

func (store *stubStore) GetTrain(ctx context.Context, trainID uint64) (Train, error) {
	if store.getTrainError != nil {
		return Train{}, store.getTrainError
	}
	train, exists := store.trains[trainID]
	if !exists {
		return Train{}, WrapError("store", "train", "get", ErrNotFound)
	}
	return cloneTrain(train), nil
}

func (store *stubStore) PutTrain(ctx context.Context, train Train) error {
	if store.putTrainError != nil {
		return store.putTrainError
	}
	store.trains[train.ID] = cloneTrain(train)
	return nil
}

func (store *stubStore) RemoveTrain(ctx context.Context, trainID uint64) error {
	if store.removeTrainError != nil {
		return store.removeTrainError
	}
	if _, exists := store.trains[trainID]; !exists {
		return WrapError("store", "train", "remove", ErrNotFound)
	}
	delete(store.trains, trainID)
	return nil
}

func (store *stubStore) GetTicket(ctx context.Context, ticketID uint64) (Ticket, error) {
	if store.getTicketError != nil {
		return Ticket{}, store.getTicketError
	}
	ticket, exists := store.tickets[ticketID]
	if !exists {
		return Ticket{}, WrapError("store", "ticket", "get", ErrNotFound)
	}
	return ticket, nil
}

func (store *stubStore) PutTicket(ctx context.Context, ticket Ticket) error {
	if store.putTicketError != nil {
		return store.putTicketError
	}
	store.tickets[ticket.ID] = ticket
	return nil
}

func (store *stubStore) RemoveTicket(ctx context.Context, ticketID uint64) error {
	if store.removeTicketError != nil {
		return store.removeTicketError
	}
	if _, exists := store.tickets[ticketID]; !exists {
		return WrapError("store", "ticket", "remove", ErrNotFound)
	}
	delete(store.tickets, ticketID)
	return nil
}

func (store *stubStore) mustStation(test *testing.T, stationID uint64) Station {
	test.Helper()
	station, exists := store.stations[stationID]
	if !exists {
		test.Fatalf("station %d not found", stationID)
	}
	return station
}

func (store *stubStore) mustTrain(test *testing.T, trainID uint64) Train {
	test.Helper()
	train, exists := store.trains[trainID]
	if !exists {
		test.Fatalf("train %d not found", trainID)
	}
	return train
}

func cloneStation(station Station) Station {
	copied := station
	copied.TrainIDs = append([]uint64(nil), station.TrainIDs...)
	return copied
}

func cloneTrain(train Train) Train {
	copied := train
	copied.Seats = make(map[uint64]BookingStatus, len(train.Seats))
	for seatNumber, status := range train.Seats {
		copied.Seats[seatNumber] = status
	}
	return copied
}
