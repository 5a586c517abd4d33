package crm

import (
	"context"

	"github.com/google/uuid"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

// DryRun accepts every lead without sending it anywhere. Used when no CRM
// is configured, e.g. local development.
type DryRun struct {
	logger logging.Logger
}

func NewDryRun(logger logging.Logger) *DryRun {
	return &DryRun{logger: logger}
}

func (d *DryRun) CreateLead(ctx context.Context, lead domain.Lead, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "dry-" + uuid.NewString()
	d.logger.Info(ctx, "crm dry run", "kind", lead.Kind, "service", lead.Service, "crm_id", id)
	return id, nil
}

var _ ports.CRM = (*DryRun)(nil)
