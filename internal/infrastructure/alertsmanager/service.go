package alertsmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anchoros/anchord/internal/core/ports"
)

const (
	serviceName = "anchord"

	maxRetries = 5
)

type Alert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
}

type service struct {
	baseUrl    string
	httpClient *http.Client
}

func NewService(alertManagerURL string) ports.Alerts {
	return &service{
		baseUrl: alertManagerURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *service) Publish(ctx context.Context, topic ports.Topic, message any) error {
	labels := map[string]string{
		"alertname": string(topic),
		"service":   serviceName,
		"severity":  "warning",
	}

	desc := ""
	annotations := map[string]string{}
	switch topic {
	case ports.OracleDeviation:
		annotations["firing_title"] = "📈 Oracle Deviation"
		m, ok := message.(ports.OracleDeviationAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatOracleDeviationAlert(m)
		labels["asset_pair"] = m.AssetPair
		labels["source_id"] = m.SourceID
	case ports.VerificationFailed:
		annotations["firing_title"] = "🔍 Verification Failed"
		m, ok := message.(ports.VerificationFailedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatVerificationFailedAlert(m)
		labels["commitment_id"] = m.CommitmentID
		if m.Paused {
			labels["severity"] = "critical"
		}
	case ports.ChannelDisputed:
		annotations["firing_title"] = "⚖️ Channel Disputed"
		m, ok := message.(ports.ChannelDisputedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatChannelDisputedAlert(m)
		labels["channel_id"] = m.ChannelID
	default:
		annotations["firing_title"] = fmt.Sprintf("🔔 %s", topic)
		desc = formatGenericAlert(map[string]any{"event": message})
	}

	annotations["description"] = desc
	alert := Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    time.Now(),
	}

	if err := s.sendAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to send alert to AlertManager: %w", err)
	}

	return nil
}

func (s *service) sendAlert(ctx context.Context, alerts Alert) error {
	payload, err := json.Marshal([]Alert{alerts})
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	baseDelay := 100 * time.Millisecond

	for attempt := range maxRetries {
		req, err := http.NewRequestWithContext(ctx, "POST", s.baseUrl, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			// Network error - retry with backoff
			if attempt < maxRetries-1 {
				// exponential: 100ms, 200ms, 400ms, 800ms, 1600ms
				delay := baseDelay * time.Duration(1<<uint(attempt))

				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return fmt.Errorf("failed to send alert after %d attempts: %w", maxRetries, err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = resp.Body.Close()
			return nil
		}

		_ = resp.Body.Close()

		// Retry on 5xx (server errors), but not on 4xx (client errors)
		if resp.StatusCode >= 500 {
			if attempt < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<uint(attempt))

				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		// 4xx error or final 5xx error
		return fmt.Errorf(
			"failed to send alert to AlertManager with status %d after %d attempts",
			resp.StatusCode, attempt+1,
		)
	}

	return fmt.Errorf("failed to send alert after %d attempts", maxRetries)
}

func formatOracleDeviationAlert(data ports.OracleDeviationAlert) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*Asset pair:* `%s`", data.AssetPair))
	lines = append(lines, fmt.Sprintf("*Source:* `%s`", data.SourceID))
	lines = append(lines, "\n*Deviation:*")
	lines = append(lines, fmt.Sprintf("• Reported value: %d", data.Value))
	lines = append(lines, fmt.Sprintf("• Median of other sources: %d", data.Median))
	lines = append(lines, fmt.Sprintf(
		"• Deviation: %.2f%% (threshold %.2f%%)", data.DeviationPct, data.ThresholdPct,
	))
	return strings.Join(lines, "\n")
}

func formatVerificationFailedAlert(data ports.VerificationFailedAlert) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*Commitment:* `%s`", data.CommitmentID))
	lines = append(lines, fmt.Sprintf("*Owner:* `%s`", data.Owner))
	lines = append(lines, fmt.Sprintf("*Address:* `%s`", data.ExternalAddress))
	lines = append(lines, fmt.Sprintf("\n• Reason: %s", data.Reason))
	lines = append(lines, fmt.Sprintf("• Consecutive failures: %d", data.Failures))
	if data.Paused {
		lines = append(lines, "• Reward accrual paused")
	}
	return strings.Join(lines, "\n")
}

func formatChannelDisputedAlert(data ports.ChannelDisputedAlert) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*Channel:* `%s`", data.ChannelID))
	lines = append(lines, fmt.Sprintf("*Challenger:* `%s`", data.Challenger))
	lines = append(lines, fmt.Sprintf("\n• Claimed sequence: %d", data.Sequence))
	lines = append(lines, fmt.Sprintf("• Claimed state hash: `%s`", data.StateHash))
	return strings.Join(lines, "\n")
}

func formatGenericAlert(data map[string]any) string {
	lines := make([]string, 0)
	for key, value := range data {
		lines = append(lines, fmt.Sprintf("• %s: %v", key, value))
	}
	return strings.Join(lines, "\n")
}
