package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"billoffice/internal/repository"
)

type PaymentHandler struct {
	payments *repository.PaymentRepository
	docs     *repository.DocumentRepository
}

func NewPaymentHandler(payments *repository.PaymentRepository, docs *repository.DocumentRepository) *PaymentHandler {
	return &PaymentHandler{payments: payments, docs: docs}
}

type recordPaymentRequest struct {
	Amount    float64    `json:"amount" binding:"required"`
	Method    string     `json:"method"`
	Reference string     `json:"reference"`
	PaidAt    *time.Time `json:"paid_at"`
}

// Record stores a payment against the owner's document. The document lookup
// doubles as the ownership check.
func (h *PaymentHandler) Record(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.docs.Get(c.Request.Context(), id, ownerID(c)); err != nil {
		respondError(c, err)
		return
	}

	paidAt := time.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	p := &repository.Payment{
		DocumentID: id,
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  req.Reference,
		PaidAt:     paidAt,
	}
	if err := h.payments.Insert(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *PaymentHandler) List(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if _, err := h.docs.Get(c.Request.Context(), id, ownerID(c)); err != nil {
		respondError(c, err)
		return
	}

	payments, err := h.payments.ListByDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}
