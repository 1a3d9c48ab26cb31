package billing

import (
	"github.com/smallbiznis/clinicdesk/internal/billing/receipt"
	"github.com/smallbiznis/clinicdesk/internal/billing/repository"
	"github.com/smallbiznis/clinicdesk/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(receipt.NewRenderer),
)
