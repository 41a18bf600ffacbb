package booking

import "context"

// ViewTrain returns a train by id.
func (service *Service) ViewTrain(requestContext context.Context, trainID uint64) (Train, error) {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.store.GetTrain(requestContext, trainID)
}

// ViewStation returns a station by id.
func (service *Service) ViewStation(requestContext context.Context, stationID uint64) (Station, error) {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.store.GetStation(requestContext, stationID)
}
