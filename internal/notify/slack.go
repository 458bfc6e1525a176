package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
)

// maxAttachments caps one message; the rest are summarized in the header
const maxAttachments = 10

var severityRank = map[string]int{
	anomaly.SeverityLow:      1,
	anomaly.SeverityMedium:   2,
	anomaly.SeverityHigh:     3,
	anomaly.SeverityCritical: 4,
}

var severityColor = map[string]string{
	anomaly.SeverityCritical: "#ff0000",
	anomaly.SeverityHigh:     "#ff8c00",
	anomaly.SeverityMedium:   "#ffcc00",
	anomaly.SeverityLow:      "#36a64f",
}

// SlackConfig configures the incoming webhook
type SlackConfig struct {
	WebhookURL  string
	Channel     string
	MinSeverity string
	HTTPClient  *http.Client
}

// SlackNotifier posts detected anomalies to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	minRank    int
	httpClient *http.Client
	logger     *logger.Logger
	now        func() time.Time
}

// NewSlackNotifier creates a notifier. MinSeverity defaults to high.
func NewSlackNotifier(cfg SlackConfig, log *logger.Logger) *SlackNotifier {
	if log == nil {
		log = logger.Nop()
	}
	rank, ok := severityRank[strings.ToLower(cfg.MinSeverity)]
	if !ok {
		rank = severityRank[anomaly.SeverityHigh]
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackNotifier{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		minRank:    rank,
		httpClient: client,
		logger:     log.Component("slack_notifier"),
		now:        time.Now,
	}
}

// Notify posts records at or above the minimum severity. Nothing is sent when none qualify.
func (n *SlackNotifier) Notify(ctx context.Context, userID int64, records []anomaly.AnomalyRecord) (int, error) {
	var selected []anomaly.AnomalyRecord
	for _, r := range records {
		if severityRank[r.Severity] >= n.minRank {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return 0, nil
	}
	if n.webhookURL == "" {
		return 0, fmt.Errorf("slack webhook not configured")
	}

	payload, err := json.Marshal(n.buildMessage(userID, selected))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send Slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	n.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"anomalies": len(selected),
	}).Info("Slack notification sent")
	return len(selected), nil
}

func (n *SlackNotifier) buildMessage(userID int64, records []anomaly.AnomalyRecord) map[string]interface{} {
	shown := records
	if len(shown) > maxAttachments {
		shown = shown[:maxAttachments]
	}

	attachments := make([]map[string]interface{}, 0, len(shown))
	for _, r := range shown {
		text := fmt.Sprintf("%s on %s: %.2f vs baseline %.2f (%+.1f%%)",
			r.Provider, r.Date.Format("2006-01-02"), r.Cost, r.BaselineCost, r.PercentageIncrease)
		if r.RootCause != "" {
			text += "\nProbable cause: " + r.RootCause
		}
		if r.CloudContext != nil && len(r.CloudContext.MitigationSuggestions) > 0 {
			text += "\nSuggested: " + r.CloudContext.MitigationSuggestions[0]
		}
		attachments = append(attachments, map[string]interface{}{
			"color":  severityColor[r.Severity],
			"title":  fmt.Sprintf(":money_with_wings: %s %s anomaly", strings.ToUpper(r.Severity), r.Service),
			"text":   text,
			"footer": "costlens",
			"ts":     n.now().Unix(),
		})
	}

	header := fmt.Sprintf("%d cost anomal", len(records))
	if len(records) == 1 {
		header += "y"
	} else {
		header += "ies"
	}
	header += fmt.Sprintf(" detected for account %d", userID)
	if len(records) > len(shown) {
		header += fmt.Sprintf(" (showing %d)", len(shown))
	}

	msg := map[string]interface{}{
		"text":        header,
		"attachments": attachments,
	}
	if n.channel != "" {
		msg["channel"] = n.channel
	}
	return msg
}
