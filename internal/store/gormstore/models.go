package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// Admin mirrors the admins table. A row's presence is the capability.
type Admin struct {
	AdminID   uint64    `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Admin) TableName() string { return "admins" }

// Station mirrors the stations table. TrainIDs is a JSON array of train ids.
type Station struct {
	StationID uint64         `gorm:"primaryKey;autoIncrement:false"`
	Name      string         `gorm:"not null;index:idx_stations_name"`
	Funds     uint64         `gorm:"not null"`
	TrainIDs  datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (Station) TableName() string { return "stations" }

// Train mirrors the trains table. Seats is a JSON object keyed by seat number.
type Train struct {
	TrainID          uint64         `gorm:"primaryKey;autoIncrement:false"`
	DepartureStation string         `gorm:"not null"`
	ArrivalStation   string         `gorm:"not null"`
	Seats            datatypes.JSON `gorm:"not null"`
	Price            uint64         `gorm:"not null"`
	Schedule         uint64         `gorm:"not null"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

func (Train) TableName() string { return "trains" }

// Ticket mirrors the tickets table.
type Ticket struct {
	TicketID   uint64    `gorm:"primaryKey;autoIncrement:false"`
	TrainID    uint64    `gorm:"not null;index:idx_tickets_train"`
	Owner      string    `gorm:"not null"`
	SeatNumber uint64    `gorm:"not null"`
	LaunchTime uint64    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Ticket) TableName() string { return "tickets" }

// Sequence holds the single monotonic id counter shared by all entity tables.
type Sequence struct {
	Name string `gorm:"primaryKey"`
	Next uint64 `gorm:"not null"`
}

func (Sequence) TableName() string { return "sequences" }
