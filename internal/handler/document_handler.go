package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"billoffice/internal/model"
	"billoffice/internal/repository"
	"billoffice/internal/service/lifecycle"
)

const maxUploadBytes = 10 << 20 // 10 MiB

type DocumentHandler struct {
	coordinator *lifecycle.Coordinator
	docs        *repository.DocumentRepository
	logger      *zap.Logger
}

func NewDocumentHandler(coordinator *lifecycle.Coordinator, docs *repository.DocumentRepository, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		coordinator: coordinator,
		docs:        docs,
		logger:      logger,
	}
}

func ownerID(c *gin.Context) int64 {
	return c.GetInt64("user_id")
}

type lineItemRequest struct {
	CategoryID int64   `json:"category_id" binding:"required"`
	Quantity   float64 `json:"quantity" binding:"required"`
	UnitPrice  float64 `json:"unit_price"`
}

type createDocumentRequest struct {
	Kind           string                 `json:"kind" binding:"required"`
	ProjectID      *int64                 `json:"project_id"`
	ClientID       *int64                 `json:"client_id"`
	Number         string                 `json:"number" binding:"required"`
	TaxRate        float64                `json:"tax_rate"`
	Currency       string                 `json:"currency" binding:"required"`
	PaymentTerms   string                 `json:"payment_terms"`
	AdvanceAmount  *float64               `json:"advance_amount"`
	BalanceDue     *float64               `json:"balance_due"`
	BalanceDueDate *time.Time             `json:"balance_due_date"`
	IssueDate      time.Time              `json:"issue_date" binding:"required"`
	DueDate        time.Time              `json:"due_date" binding:"required"`
	Reminders      model.ReminderSchedule `json:"reminders"`
	Items          []lineItemRequest      `json:"items" binding:"required,min=1"`
}

// Create builds the document through the lifecycle coordinator: record,
// rendered PDF, artifact, pointer.
func (h *DocumentHandler) Create(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := model.DocumentKind(req.Kind)
	if kind != model.KindInvoice && kind != model.KindExpense {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be Invoices or Expense"})
		return
	}

	terms := model.PaymentTermsMode(req.PaymentTerms)
	if terms == "" {
		terms = model.PaymentFull
	}

	doc := &model.Document{
		Kind:           kind,
		OwnerID:        ownerID(c),
		ProjectID:      req.ProjectID,
		ClientID:       req.ClientID,
		Number:         req.Number,
		TaxRate:        req.TaxRate,
		Currency:       req.Currency,
		PaymentTerms:   terms,
		AdvanceAmount:  req.AdvanceAmount,
		BalanceDue:     req.BalanceDue,
		BalanceDueDate: req.BalanceDueDate,
		IssueDate:      req.IssueDate,
		DueDate:        req.DueDate,
		Reminders:      req.Reminders,
	}
	for _, it := range req.Items {
		doc.Items = append(doc.Items, model.LineItem{
			CategoryID: it.CategoryID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		})
	}

	if err := h.coordinator.CreateWithRender(c.Request.Context(), doc); err != nil {
		if doc.ID != 0 {
			// Record exists without an artifact; report it so the client
			// can regenerate instead of re-creating.
			c.JSON(http.StatusAccepted, gin.H{"id": doc.ID, "artifact": nil})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": doc.ID, "artifact": doc.ArtifactFile})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	doc, err := h.docs.Get(c.Request.Context(), id, ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	kind := model.DocumentKind(c.DefaultQuery("kind", string(model.KindInvoice)))

	if clientParam := c.Query("client_id"); clientParam != "" {
		clientID, err := strconv.ParseInt(clientParam, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client_id"})
			return
		}
		docs, err := h.docs.ListByClient(c.Request.Context(), ownerID(c), clientID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, docs)
		return
	}

	docs, err := h.docs.ListByOwner(c.Request.Context(), ownerID(c), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

type updateDocumentRequest struct {
	Subtotal       *float64               `json:"subtotal"`
	TaxRate        *float64               `json:"tax_rate"`
	Currency       *string                `json:"currency"`
	PaymentTerms   *string                `json:"payment_terms"`
	AdvanceAmount  *float64               `json:"advance_amount"`
	BalanceDue     *float64               `json:"balance_due"`
	BalanceDueDate *time.Time             `json:"balance_due_date"`
	DueDate        *time.Time             `json:"due_date"`
	Status         *string                `json:"status"`
	Reminders      model.ReminderSchedule `json:"reminders"`
	Items          []lineItemRequest      `json:"items"`
}

func (h *DocumentHandler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req updateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := repository.DocumentPatch{
		Subtotal:       req.Subtotal,
		TaxRate:        req.TaxRate,
		Currency:       req.Currency,
		AdvanceAmount:  req.AdvanceAmount,
		BalanceDue:     req.BalanceDue,
		BalanceDueDate: req.BalanceDueDate,
		DueDate:        req.DueDate,
		Reminders:      req.Reminders,
	}
	if req.PaymentTerms != nil {
		terms := model.PaymentTermsMode(*req.PaymentTerms)
		patch.PaymentTerms = &terms
	}
	if req.Status != nil {
		status := model.DocumentStatus(*req.Status)
		patch.Status = &status
	}
	if req.Items != nil {
		items := make([]model.LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, model.LineItem{
				CategoryID: it.CategoryID,
				Quantity:   it.Quantity,
				UnitPrice:  it.UnitPrice,
			})
		}
		patch.Items = items
	}

	doc, err := h.docs.Update(c.Request.Context(), id, ownerID(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.coordinator.Delete(c.Request.Context(), id, ownerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DownloadPDF streams the generated artifact.
func (h *DocumentHandler) DownloadPDF(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	obj, filename, err := h.coordinator.DownloadArtifact(c.Request.Context(), id, ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Length", strconv.FormatInt(obj.Length, 10))
	c.Data(http.StatusOK, obj.ContentType, obj.Data)
}

// ReplacePDF swaps the generated artifact for uploaded bytes.
func (h *DocumentHandler) ReplacePDF(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	data, origName, contentType, ok := readUpload(c)
	if !ok {
		return
	}

	filename, err := h.coordinator.ReplaceArtifact(c.Request.Context(), id, ownerID(c), data, origName, contentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact": filename})
}

// Attach uploads a supporting document.
func (h *DocumentHandler) Attach(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	data, origName, contentType, ok := readUpload(c)
	if !ok {
		return
	}

	filename, err := h.coordinator.AttachDocument(c.Request.Context(), id, ownerID(c), data, origName, contentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"filename": filename})
}

func (h *DocumentHandler) DownloadAttachment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	filename := c.Param("filename")

	obj, err := h.coordinator.DownloadAttachment(c.Request.Context(), id, ownerID(c), filename)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Length", strconv.FormatInt(obj.Length, 10))
	c.Data(http.StatusOK, obj.ContentType, obj.Data)
}

func (h *DocumentHandler) RemoveAttachment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	filename := c.Param("filename")

	if err := h.coordinator.RemoveAttachment(c.Request.Context(), id, ownerID(c), filename); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func readUpload(c *gin.Context) (data []byte, name, contentType string, ok bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return nil, "", "", false
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return nil, "", "", false
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return nil, "", "", false
	}
	defer f.Close()

	data, err = io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil || int64(len(data)) > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return nil, "", "", false
	}

	contentType = fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, fileHeader.Filename, contentType, true
}
