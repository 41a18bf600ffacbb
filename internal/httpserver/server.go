package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/railbook/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	contextKeyRequestID = "request_id"
	headerRequestID     = "X-Request-ID"

	errorCodeInvalidPayload = "invalid_payload"
	errorCodeInvalidID      = "invalid_id"
	errorCodeUnauthorized   = "unauthorized"
	errorCodeNotFound       = "not_found"
	errorCodeInvalidInput   = "invalid_input"
	errorCodeAlreadyBooked  = "already_booked"
	errorCodeTrainDeparted  = "train_departed"
	errorCodeStorage        = "storage_error"

	messageSystemInitialized = "System initialized with admin %d and station %d"
	messageTicketRefunded    = "Ticket %d refunded successfully"
	messageTrainClosed       = "Train %d closed successfully"
)

// BookingService is the domain surface the HTTP facade exposes.
type BookingService interface {
	InitSystem(ctx context.Context, adminID uint64, name string, funds uint64) (booking.InitResult, error)
	CreateTrain(ctx context.Context, adminID uint64, departure string, arrival string, seatCount uint64, price uint64, schedule uint64) (booking.Train, error)
	BuyTicket(ctx context.Context, trainID uint64, owner string, seatNumber uint64) (booking.Ticket, error)
	RefundTicket(ctx context.Context, ticketID uint64) error
	CloseTrain(ctx context.Context, adminID uint64, trainID uint64) error
	ViewTrain(ctx context.Context, trainID uint64) (booking.Train, error)
	ViewStation(ctx context.Context, stationID uint64) (booking.Station, error)
}

// Run boots the HTTP facade using the supplied configuration.
func Run(ctx context.Context, cfg Config, service BookingService, logger *zap.Logger) error {
	handler := &httpHandler{
		logger:  logger,
		service: service,
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("railbook api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/system/init", handler.handleInitSystem)
	api.POST("/trains", handler.handleCreateTrain)
	api.GET("/trains/:id", handler.handleViewTrain)
	api.POST("/trains/:id/close", handler.handleCloseTrain)
	api.POST("/tickets", handler.handleBuyTicket)
	api.POST("/tickets/:id/refund", handler.handleRefundTicket)
	api.GET("/stations/:id", handler.handleViewStation)

	return router
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := ctx.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Set(contextKeyRequestID, requestID)
		ctx.Writer.Header().Set(headerRequestID, requestID)
		ctx.Next()
	}
}

type httpHandler struct {
	logger  *zap.Logger
	service BookingService
}

type initSystemRequest struct {
	AdminID uint64 `json:"admin_id"`
	Name    string `json:"name"`
	Funds   uint64 `json:"funds"`
}

type createTrainRequest struct {
	AdminID          uint64 `json:"admin_id"`
	DepartureStation string `json:"departure_station"`
	ArrivalStation   string `json:"arrival_station"`
	SeatCount        uint64 `json:"seat_count"`
	Price            uint64 `json:"price"`
	Schedule         uint64 `json:"schedule"`
}

type buyTicketRequest struct {
	TrainID    uint64 `json:"train_id"`
	Owner      string `json:"owner"`
	SeatNumber uint64 `json:"seat_number"`
}

type closeTrainRequest struct {
	AdminID uint64 `json:"admin_id"`
}

func (handler *httpHandler) handleInitSystem(ctx *gin.Context) {
	var request initSystemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	result, err := handler.service.InitSystem(ctx.Request.Context(), request.AdminID, request.Name, request.Funds)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":    fmt.Sprintf(messageSystemInitialized, result.AdminID, result.StationID),
		"admin_id":   result.AdminID,
		"station_id": result.StationID,
	})
}

func (handler *httpHandler) handleCreateTrain(ctx *gin.Context) {
	var request createTrainRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	train, err := handler.service.CreateTrain(
		ctx.Request.Context(),
		request.AdminID,
		request.DepartureStation,
		request.ArrivalStation,
		request.SeatCount,
		request.Price,
		request.Schedule,
	)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, train)
}

func (handler *httpHandler) handleBuyTicket(ctx *gin.Context) {
	var request buyTicketRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	ticket, err := handler.service.BuyTicket(ctx.Request.Context(), request.TrainID, request.Owner, request.SeatNumber)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, ticket)
}

func (handler *httpHandler) handleRefundTicket(ctx *gin.Context) {
	ticketID, ok := parseIDParam(ctx)
	if !ok {
		return
	}
	if err := handler.service.RefundTicket(ctx.Request.Context(), ticketID); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf(messageTicketRefunded, ticketID)})
}

func (handler *httpHandler) handleCloseTrain(ctx *gin.Context) {
	trainID, ok := parseIDParam(ctx)
	if !ok {
		return
	}
	var request closeTrainRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	if err := handler.service.CloseTrain(ctx.Request.Context(), request.AdminID, trainID); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf(messageTrainClosed, trainID)})
}

func (handler *httpHandler) handleViewTrain(ctx *gin.Context) {
	trainID, ok := parseIDParam(ctx)
	if !ok {
		return
	}
	train, err := handler.service.ViewTrain(ctx.Request.Context(), trainID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, train)
}

func (handler *httpHandler) handleViewStation(ctx *gin.Context) {
	stationID, ok := parseIDParam(ctx)
	if !ok {
		return
	}
	station, err := handler.service.ViewStation(ctx.Request.Context(), stationID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, station)
}

func (handler *httpHandler) respondDomainError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrUnauthorized):
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, err.Error()))
	case errors.Is(err, booking.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse(errorCodeNotFound, err.Error()))
	case errors.Is(err, booking.ErrInvalidInput):
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidInput, err.Error()))
	case errors.Is(err, booking.ErrAlreadyBooked):
		ctx.JSON(http.StatusConflict, errorResponse(errorCodeAlreadyBooked, err.Error()))
	case errors.Is(err, booking.ErrTrainDeparted):
		ctx.JSON(http.StatusConflict, errorResponse(errorCodeTrainDeparted, err.Error()))
	default:
		handler.logger.Error("storage fault",
			zap.String(contextKeyRequestID, ctx.GetString(contextKeyRequestID)),
			zap.Error(err),
		)
		ctx.JSON(http.StatusInternalServerError, errorResponse(errorCodeStorage, "operation failed"))
	}
}

func parseIDParam(ctx *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidID, "expected numeric id"))
		return 0, false
	}
	return id, true
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
