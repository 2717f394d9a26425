package billingrun

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"billoffice/internal/model"
	"billoffice/pkg/metrics"
)

// MilestoneSource provides due work units, satisfied by
// repository.MilestoneRepository.
type MilestoneSource interface {
	FindDuePending(ctx context.Context, date time.Time) ([]model.Milestone, error)
	MarkCreated(ctx context.Context, id int64) error
}

type ClientSource interface {
	FindByProjectID(ctx context.Context, projectID int64) ([]model.Client, error)
}

type CategoryResolver interface {
	ResolveOrCreate(ctx context.Context, ownerID int64, name string) (*model.Category, error)
}

// DocumentCreator is the lifecycle coordinator's create-with-render entry.
type DocumentCreator interface {
	CreateWithRender(ctx context.Context, doc *model.Document) error
}

// RunError is one recorded per-unit failure.
type RunError struct {
	MilestoneID int64  `json:"milestoneId"`
	Error       string `json:"error"`
}

// RunSummary is the batch job's external contract, consumed by monitoring.
// The shape must remain stable.
type RunSummary struct {
	Processed int        `json:"processed"`
	Created   int        `json:"created"`
	Failed    int        `json:"failed"`
	Errors    []RunError `json:"errors"`
}

// Processor generates one invoice per client for every milestone due today.
// It runs as one sequential pass: failures degrade the summary, never the
// run. Parallelizing would require race-safe error aggregation and a
// per-milestone completion barrier; the sequential design gets the isolation
// guarantee by construction.
type Processor struct {
	milestones MilestoneSource
	clients    ClientSource
	categories CategoryResolver
	documents  DocumentCreator
	logger     *zap.Logger
	// now is the local clock of the executing process, deliberately not the
	// database server's clock, to avoid cross-timezone drift.
	now func() time.Time
}

func NewProcessor(
	milestones MilestoneSource,
	clients ClientSource,
	categories CategoryResolver,
	documents DocumentCreator,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		milestones: milestones,
		clients:    clients,
		categories: categories,
		documents:  documents,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one batch pass for today. Only a failure of the discovery
// query itself propagates; in that case no milestone status is advanced and
// a later run retries the whole day. Every milestone that is returned ends
// in status created, whatever its per-client outcomes.
func (p *Processor) Run(ctx context.Context) (*RunSummary, error) {
	today := p.now()
	p.logger.Info("Starting milestone invoice generation",
		zap.String("date", today.Format("2006-01-02")),
	)

	due, err := p.milestones.FindDuePending(ctx, today)
	if err != nil {
		p.logger.Error("Failed to discover due milestones", zap.Error(err))
		return nil, err
	}

	summary := &RunSummary{Errors: []RunError{}}

	for _, m := range due {
		created, failed, errs := p.processMilestone(ctx, m, today)
		summary.Created += created
		summary.Failed += failed
		summary.Errors = append(summary.Errors, errs...)

		// Marked created unconditionally: a milestone is attempted at most
		// once per day, trading lost invoices on total failure against
		// never double-invoicing.
		if err := p.milestones.MarkCreated(ctx, m.ID); err != nil {
			p.logger.Error("Failed to mark milestone created",
				zap.Int64("milestone_id", m.ID),
				zap.Error(err),
			)
			summary.Errors = append(summary.Errors, RunError{
				MilestoneID: m.ID,
				Error:       fmt.Sprintf("mark created: %v", err),
			})
		}

		summary.Processed++
		metrics.MilestonesProcessed.Inc()
	}

	p.logger.Info("Milestone invoice generation completed",
		zap.Int("processed", summary.Processed),
		zap.Int("created", summary.Created),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// processMilestone attempts every client of the milestone's project. A
// failure for one client is recorded and never stops the remaining clients.
func (p *Processor) processMilestone(ctx context.Context, m model.Milestone, today time.Time) (created, failed int, errs []RunError) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Milestone processing panic recovered",
				zap.Int64("milestone_id", m.ID),
				zap.Any("panic", r),
			)
			errs = append(errs, RunError{
				MilestoneID: m.ID,
				Error:       fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	clients, err := p.clients.FindByProjectID(ctx, m.ProjectID)
	if err != nil {
		failed++
		errs = append(errs, RunError{MilestoneID: m.ID, Error: fmt.Sprintf("resolve clients: %v", err)})
		return created, failed, errs
	}
	if len(clients) == 0 {
		// Unfixable by retrying; recorded, and the milestone still ends up
		// created so it is never reprocessed.
		failed++
		errs = append(errs, RunError{
			MilestoneID: m.ID,
			Error:       fmt.Sprintf("no clients associated with project %d", m.ProjectID),
		})
		return created, failed, errs
	}

	category, err := p.categories.ResolveOrCreate(ctx, m.OwnerID, m.ServiceType)
	if err != nil {
		failed++
		errs = append(errs, RunError{MilestoneID: m.ID, Error: fmt.Sprintf("resolve category: %v", err)})
		return created, failed, errs
	}

	for _, client := range clients {
		if err := p.invoiceClient(ctx, m, client, category, today); err != nil {
			failed++
			metrics.IncrementDocumentGenerated("invoice", "failed")
			p.logger.Error("Invoice generation failed for client",
				zap.Int64("milestone_id", m.ID),
				zap.Int64("client_id", client.ID),
				zap.Error(err),
			)
			errs = append(errs, RunError{
				MilestoneID: m.ID,
				Error:       fmt.Sprintf("client %d: %v", client.ID, err),
			})
			continue
		}
		created++
		metrics.IncrementDocumentGenerated("invoice", "success")
	}

	return created, failed, errs
}

func (p *Processor) invoiceClient(ctx context.Context, m model.Milestone, client model.Client, category *model.Category, today time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	clientID := client.ID
	projectID := m.ProjectID

	currency := m.Currency
	if currency == "" {
		currency = "USD"
	}

	doc := &model.Document{
		Kind:         model.KindInvoice,
		OwnerID:      m.OwnerID,
		ProjectID:    &projectID,
		ClientID:     &clientID,
		Number:       fmt.Sprintf("INV-%s-%d-%d", today.Format("20060102"), m.ID, client.ID),
		Currency:     currency,
		PaymentTerms: model.PaymentFull,
		IssueDate:    today,
		DueDate:      today.AddDate(0, 0, 30),
		Items: []model.LineItem{
			{
				CategoryID: category.ID,
				Quantity:   1,
				UnitPrice:  m.Amount,
			},
		},
	}

	return p.documents.CreateWithRender(ctx, doc)
}
