// Package notify delivers generated artifacts to per-site webhook
// recipients. Delivery is best effort; failures are logged by the caller
// and retried on the next schedule.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier posts report attachments to recipient webhooks.
type Notifier struct {
	client *resty.Client
	log    *zap.Logger
}

func New(log *zap.Logger) *Notifier {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	return &Notifier{client: client, log: log}
}

// SendReport posts an XLSX report to the recipient webhook as a multipart
// upload with site and date metadata.
func (n *Notifier) SendReport(ctx context.Context, recipient, siteName, date, filename string, payload []byte) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetFileReader("report", filename, bytes.NewReader(payload)).
		SetFormData(map[string]string{
			"site": siteName,
			"date": date,
		}).
		Post(recipient)
	if err != nil {
		return fmt.Errorf("post report to %s: %w", recipient, err)
	}
	if resp.IsError() {
		return fmt.Errorf("post report to %s: status %d", recipient, resp.StatusCode())
	}
	n.log.Info("report delivered",
		zap.String("recipient", recipient),
		zap.String("site", siteName),
		zap.String("date", date))
	return nil
}
