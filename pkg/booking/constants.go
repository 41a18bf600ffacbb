package booking

const (
	operationInitSystem  = "init_system"
	operationCreateTrain = "create_train"
	operationBuyTicket   = "buy_ticket"
	operationRefund      = "refund_ticket"
	operationCloseTrain  = "close_train"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	firstSeatNumber uint64 = 1
)
