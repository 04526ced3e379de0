package service

import (
	"github.com/zynthio/zynthio/internal/compliance/repository"
	"github.com/zynthio/zynthio/internal/shared/notify"
	"go.uber.org/zap"
)

// Services is the aggregate handed to handlers and the scheduler.
type Services struct {
	Template     *TemplateService
	Materializer *MaterializerService
	Response     *ResponseService
	Defect       *DefectService
	Sweeper      *SweeperService
	Report       *ReportService
}

// NewServices wires the service aggregate.
func NewServices(repos *repository.Repositories, notifier *notify.Notifier, log *zap.Logger) *Services {
	template := NewTemplateService(repos)
	defect := NewDefectService(repos, log)
	return &Services{
		Template:     template,
		Materializer: NewMaterializerService(repos, template, log),
		Response:     NewResponseService(repos, defect, log),
		Defect:       defect,
		Sweeper:      NewSweeperService(repos, log),
		Report:       NewReportService(repos, notifier, log),
	}
}
