package booking

import "context"

// BookingStatus defines the per-seat lifecycle.
type BookingStatus string

const (
	SeatAvailable BookingStatus = "available"
	SeatBooked    BookingStatus = "booked"
)

// String returns the stored representation.
func (status BookingStatus) String() string {
	return string(status)
}

// Station is a node in the rail network. TrainIDs lists the not-yet-closed
// trains whose departure station equals this station's name.
type Station struct {
	ID       uint64   `json:"id"`
	Name     string   `json:"name"`
	Funds    uint64   `json:"funds"`
	TrainIDs []uint64 `json:"train_ids"`
}

// Train references its endpoints by station name, not id. Seat numbers are
// contiguous from 1 to the seat count given at creation.
type Train struct {
	ID               uint64                   `json:"id"`
	DepartureStation string                   `json:"departure_station"`
	ArrivalStation   string                   `json:"arrival_station"`
	Seats            map[uint64]BookingStatus `json:"seats"`
	Price            uint64                   `json:"price"`
	Schedule         uint64                   `json:"schedule"`
}

// Ticket represents a sold seat. LaunchTime is the purchase timestamp, not
// the train's departure time.
type Ticket struct {
	ID         uint64 `json:"id"`
	TrainID    uint64 `json:"train_id"`
	Owner      string `json:"owner"`
	SeatNumber uint64 `json:"seat_number"`
	LaunchTime uint64 `json:"launch_time"`
}

// AdminCap authorizes privileged operations by mere presence in the admin
// table.
type AdminCap struct {
	AdminID uint64 `json:"admin_id"`
}

// InitResult reports the identifiers produced by system initialization.
type InitResult struct {
	AdminID   uint64 `json:"admin_id"`
	StationID uint64 `json:"station_id"`
}

// Store is the persistence contract used by Service. Implementations hold
// four id-keyed tables plus a single monotonic id counter shared across all
// of them.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	NextID(ctx context.Context) (uint64, error)

	PutAdmin(ctx context.Context, adminCap AdminCap) error
	AdminExists(ctx context.Context, adminID uint64) (bool, error)

	GetStation(ctx context.Context, stationID uint64) (Station, error)
	PutStation(ctx context.Context, station Station) error
	ListStations(ctx context.Context) ([]Station, error)

	GetTrain(ctx context.Context, trainID uint64) (Train, error)
	PutTrain(ctx context.Context, train Train) error
	RemoveTrain(ctx context.Context, trainID uint64) error

	GetTicket(ctx context.Context, ticketID uint64) (Ticket, error)
	PutTicket(ctx context.Context, ticket Ticket) error
	RemoveTicket(ctx context.Context, ticketID uint64) error
}
