package notifier

import (
	"context"
	"log/slog"

	"fintech-id/internal/otp/models"
	"fintech-id/internal/otp/service"
	"fintech-id/pkg/requestcontext"
)

// LogNotifier "delivers" codes by logging them. Development only.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

var _ service.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(ctx context.Context, d models.Delivery) error {
	n.logger.InfoContext(ctx, "otp code sent",
		"mobile_phone", "+"+d.Phone,
		"otp_code", d.Code,
		"ttl_seconds", d.TTLSeconds,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}
