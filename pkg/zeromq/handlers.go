package zeromq

import (
	"github.com/open-quad/controller/domain/diagnostic"
	"github.com/open-quad/controller/pkg/config"
	customlog "github.com/open-quad/controller/pkg/log"
)

// RegisterStateHandlers installs the REP-side request handlers: offboard
// tools can ask for the immutable configuration snapshot and the current
// loop statistics.
func RegisterStateHandlers(service *Service, cfg *config.Config, diag *diagnostic.DiagnosticService, logger customlog.Logger) {
	service.RegisterHandler(MsgTypeConfigRequest, HandlerFunc(func(data []byte) ([]byte, error) {
		return service.Reply(MsgTypeConfigResponse, cfg)
	}))

	service.RegisterHandler(MsgTypeStateRequest, HandlerFunc(func(data []byte) ([]byte, error) {
		return service.Reply(MsgTypeStateResponse, diag.Snapshot())
	}))

	logger.Infof("Registered config and state request handlers")
}
