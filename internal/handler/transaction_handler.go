package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/eaglebank/transactions-svc/shared/cqrs"
	"github.com/eaglebank/transactions-svc/shared/middleware"
	"github.com/eaglebank/transactions-svc/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionCommander defines the write-side operations used by TransactionHandler.
type TransactionCommander interface {
	CreateTransaction(ctx context.Context, cmd cqrs.CreateTransactionCommand) (*models.Transaction, error)
}

// TransactionQuerier defines the read-side operations used by TransactionHandler.
type TransactionQuerier interface {
	GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.TransactionView, error)
	ListTransactions(ctx context.Context, q cqrs.ListTransactionsQuery) ([]models.Transaction, error)
	Stream(ctx context.Context) <-chan models.Transaction
}

type TransactionHandler struct {
	commands TransactionCommander
	queries  TransactionQuerier
	logger   *zap.Logger
}

type CreateTransactionRequest struct {
	AccountNumber string          `json:"accountNumber" validate:"required"`
	Type          string          `json:"type" validate:"required,txtype"`
	Amount        decimal.Decimal `json:"amount" validate:"required,gt=0"`
}

func NewTransactionHandler(commands TransactionCommander, queries TransactionQuerier, logger *zap.Logger) *TransactionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionHandler{commands: commands, queries: queries, logger: logger}
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	tx, err := h.commands.CreateTransaction(c.Request.Context(), cqrs.CreateTransactionCommand{
		AccountNumber: req.AccountNumber,
		Type:          req.Type,
		Amount:        req.Amount,
	})
	if err != nil {
		h.respondWithServiceError(c, err, "Failed to create transaction")
		return
	}

	c.JSON(http.StatusCreated, tx)
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	accountNumber := c.Query("accountNumber")
	if accountNumber == "" {
		middleware.RespondWithError(c, http.StatusBadRequest, "accountNumber is required")
		return
	}

	txs, err := h.queries.ListTransactions(c.Request.Context(), cqrs.ListTransactionsQuery{AccountNumber: accountNumber})
	if err != nil {
		h.respondWithServiceError(c, err, "Failed to list transactions")
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}

	c.JSON(http.StatusOK, txs)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	accountNumber := c.Query("accountNumber")
	if accountNumber == "" {
		middleware.RespondWithError(c, http.StatusBadRequest, "accountNumber is required")
		return
	}

	view, err := h.queries.GetTransaction(c.Request.Context(), cqrs.GetTransactionQuery{
		TransactionID: c.Param("transactionId"),
		AccountNumber: accountNumber,
	})
	if err != nil {
		h.respondWithServiceError(c, err, "Failed to get transaction")
		return
	}

	c.JSON(http.StatusOK, view)
}

// StreamTransactions pushes every committed transaction to the client as a
// server-sent event until the client disconnects or the feed closes.
func (h *TransactionHandler) StreamTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	feed := h.queries.Stream(ctx)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	defer correlation.Logger(ctx, h.logger).Debug("transaction stream closed")
	for {
		select {
		case <-ctx.Done():
			return
		case tx, ok := <-feed:
			if !ok {
				return
			}
			c.SSEvent("transaction", tx)
			c.Writer.Flush()
		}
	}
}

func (h *TransactionHandler) respondWithServiceError(c *gin.Context, err error, fallback string) {
	var be *models.BusinessError
	switch {
	case errors.As(err, &be):
		middleware.RespondWithError(c, businessStatus(be), be.Code)
	case errors.Is(err, models.ErrRiskUnavailable):
		h.logFailure(c, err)
		middleware.RespondWithError(c, http.StatusServiceUnavailable, models.ErrRiskUnavailable.Error())
	default:
		h.logFailure(c, err)
		middleware.RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}

func businessStatus(be *models.BusinessError) int {
	switch be {
	case models.ErrAccountNotFound, models.ErrTransactionNotFound:
		return http.StatusNotFound
	case models.ErrConcurrentUpdate:
		return http.StatusConflict
	case models.ErrInvalidTransaction:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *TransactionHandler) logFailure(c *gin.Context, err error) {
	_ = c.Error(err)
	correlation.Logger(c.Request.Context(), h.logger).Error("request failed", zap.Error(err))
}
