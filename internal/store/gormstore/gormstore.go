package gormstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MarkoPoloResearchLab/railbook/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	sequenceEntityIDs     = "entity_ids"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectAdmin     = "admin"
	errorSubjectStation   = "station"
	errorSubjectTrain     = "train"
	errorSubjectTicket    = "ticket"
	errorSubjectSequence  = "sequence"
	errorCodeGet          = "get"
	errorCodePut          = "put"
	errorCodeList         = "list"
	errorCodeRemove       = "remove"
	errorCodeExists       = "exists"
	errorCodeNext         = "next"
	errorCodeEncode       = "encode"
	errorCodeDecode       = "decode"
	errorCodeTooLarge     = "too_large"

	// Encoded-record bounds carried over from the storage engine this
	// schema replaces. Exceeding one is a storage fault, not a domain
	// error.
	maxStationRecordBytes = 512
	maxTicketRecordBytes  = 512
	maxAdminRecordBytes   = 512
	maxTrainRecordBytes   = 1024
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema and seeds the shared id counter.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Admin{}, &Station{}, &Train{}, &Ticket{}, &Sequence{}); err != nil {
		return err
	}
	err := db.Create(&Sequence{Name: sequenceEntityIDs, Next: 0}).Error
	if err != nil && !isDuplicateKey(err) {
		return err
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// NextID advances the shared counter and returns the allocated id. Ids are
// never reused across admins, stations, trains and tickets.
func (store *Store) NextID(ctx context.Context) (uint64, error) {
	var sequence Sequence
	err := store.db.WithContext(ctx).
		Where("name = ?", sequenceEntityIDs).
		Take(&sequence).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sequence = Sequence{Name: sequenceEntityIDs, Next: 0}
		createErr := store.db.WithContext(ctx).Create(&sequence).Error
		if createErr != nil && !isDuplicateKey(createErr) {
			return 0, wrapStoreError(errorSubjectSequence, errorCodeNext, createErr)
		}
	} else if err != nil {
		return 0, wrapStoreError(errorSubjectSequence, errorCodeNext, err)
	}
	allocated := sequence.Next + 1
	result := store.db.WithContext(ctx).
		Model(&Sequence{}).
		Where("name = ? AND next = ?", sequenceEntityIDs, sequence.Next).
		Update("next", allocated)
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectSequence, errorCodeNext, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, wrapStoreError(errorSubjectSequence, errorCodeNext, gorm.ErrInvalidTransaction)
	}
	return allocated, nil
}

func (store *Store) PutAdmin(ctx context.Context, adminCap booking.AdminCap) error {
	if err := checkRecordSize(errorSubjectAdmin, adminCap, maxAdminRecordBytes); err != nil {
		return err
	}
	model := Admin{AdminID: adminCap.AdminID}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectAdmin, errorCodePut, err)
	}
	return nil
}

func (store *Store) AdminExists(ctx context.Context, adminID uint64) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Admin{}).
		Where("admin_id = ?", adminID).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectAdmin, errorCodeExists, err)
	}
	return count > 0, nil
}

func (store *Store) GetStation(ctx context.Context, stationID uint64) (booking.Station, error) {
	var model Station
	err := store.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Station{}, wrapStoreError(errorSubjectStation, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Station{}, wrapStoreError(errorSubjectStation, errorCodeGet, err)
	}
	return mapStation(model)
}

func (store *Store) PutStation(ctx context.Context, station booking.Station) error {
	if err := checkRecordSize(errorSubjectStation, station, maxStationRecordBytes); err != nil {
		return err
	}
	trainIDs, err := encodeJSON(errorSubjectStation, station.TrainIDs)
	if err != nil {
		return err
	}
	model := Station{
		StationID: station.ID,
		Name:      station.Name,
		Funds:     station.Funds,
		TrainIDs:  trainIDs,
	}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectStation, errorCodePut, err)
	}
	return nil
}

func (store *Store) ListStations(ctx context.Context) ([]booking.Station, error) {
	var rows []Station
	err := store.db.WithContext(ctx).
		Order("station_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectStation, errorCodeList, err)
	}
	stations := make([]booking.Station, 0, len(rows))
	for _, row := range rows {
		station, mapErr := mapStation(row)
		if mapErr != nil {
			return nil, mapErr
		}
		stations = append(stations, station)
	}
	return stations, nil
}

func (store *Store) GetTrain(ctx context.Context, trainID uint64) (booking.Train, error) {
	var model Train
	err := store.db.WithContext(ctx).
		Where("train_id = ?", trainID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Train{}, wrapStoreError(errorSubjectTrain, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Train{}, wrapStoreError(errorSubjectTrain, errorCodeGet, err)
	}
	return mapTrain(model)
}

func (store *Store) PutTrain(ctx context.Context, train booking.Train) error {
	if err := checkRecordSize(errorSubjectTrain, train, maxTrainRecordBytes); err != nil {
		return err
	}
	seats, err := encodeJSON(errorSubjectTrain, train.Seats)
	if err != nil {
		return err
	}
	model := Train{
		TrainID:          train.ID,
		DepartureStation: train.DepartureStation,
		ArrivalStation:   train.ArrivalStation,
		Seats:            seats,
		Price:            train.Price,
		Schedule:         train.Schedule,
	}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectTrain, errorCodePut, err)
	}
	return nil
}

func (store *Store) RemoveTrain(ctx context.Context, trainID uint64) error {
	result := store.db.WithContext(ctx).
		Where("train_id = ?", trainID).
		Delete(&Train{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectTrain, errorCodeRemove, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTrain, errorCodeRemove, booking.ErrNotFound)
	}
	return nil
}

func (store *Store) GetTicket(ctx context.Context, ticketID uint64) (booking.Ticket, error) {
	var model Ticket
	err := store.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Ticket{}, wrapStoreError(errorSubjectTicket, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Ticket{}, wrapStoreError(errorSubjectTicket, errorCodeGet, err)
	}
	return booking.Ticket{
		ID:         model.TicketID,
		TrainID:    model.TrainID,
		Owner:      model.Owner,
		SeatNumber: model.SeatNumber,
		LaunchTime: model.LaunchTime,
	}, nil
}

func (store *Store) PutTicket(ctx context.Context, ticket booking.Ticket) error {
	if err := checkRecordSize(errorSubjectTicket, ticket, maxTicketRecordBytes); err != nil {
		return err
	}
	model := Ticket{
		TicketID:   ticket.ID,
		TrainID:    ticket.TrainID,
		Owner:      ticket.Owner,
		SeatNumber: ticket.SeatNumber,
		LaunchTime: ticket.LaunchTime,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectTicket, errorCodePut, err)
	}
	return nil
}

func (store *Store) RemoveTicket(ctx context.Context, ticketID uint64) error {
	result := store.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Delete(&Ticket{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectTicket, errorCodeRemove, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTicket, errorCodeRemove, booking.ErrNotFound)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func mapStation(row Station) (booking.Station, error) {
	trainIDs := []uint64{}
	if len(row.TrainIDs) > 0 {
		if err := json.Unmarshal(row.TrainIDs, &trainIDs); err != nil {
			return booking.Station{}, wrapStoreError(errorSubjectStation, errorCodeDecode, err)
		}
	}
	return booking.Station{
		ID:       row.StationID,
		Name:     row.Name,
		Funds:    row.Funds,
		TrainIDs: trainIDs,
	}, nil
}

func mapTrain(row Train) (booking.Train, error) {
	seats := map[uint64]booking.BookingStatus{}
	if len(row.Seats) > 0 {
		if err := json.Unmarshal(row.Seats, &seats); err != nil {
			return booking.Train{}, wrapStoreError(errorSubjectTrain, errorCodeDecode, err)
		}
	}
	return booking.Train{
		ID:               row.TrainID,
		DepartureStation: row.DepartureStation,
		ArrivalStation:   row.ArrivalStation,
		Seats:            seats,
		Price:            row.Price,
		Schedule:         row.Schedule,
	}, nil
}

func encodeJSON(subject string, value any) (datatypes.JSON, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, wrapStoreError(subject, errorCodeEncode, err)
	}
	return datatypes.JSON(encoded), nil
}

func checkRecordSize(subject string, record any, maxBytes int) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return wrapStoreError(subject, errorCodeEncode, err)
	}
	if len(encoded) > maxBytes {
		return wrapStoreError(subject, errorCodeTooLarge, booking.ErrRecordTooLarge)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
