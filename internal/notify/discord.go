package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
)

// Embed colours per status.
const (
	colorOpen          = 15158332
	colorConfirmedFall = 16098851
	colorFalseAlarm    = 8421504
	colorResolved      = 5763719
	colorDefault       = 3447003
)

func statusColor(s domain.EventStatus) int {
	switch s {
	case domain.StatusOpen:
		return colorOpen
	case domain.StatusConfirmedFall:
		return colorConfirmedFall
	case domain.StatusFalseAlarm:
		return colorFalseAlarm
	case domain.StatusResolved:
		return colorResolved
	default:
		return colorDefault
	}
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Timestamp string         `json:"timestamp"`
	Footer    discordFooter  `json:"footer"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// DiscordSink posts an embed to a Discord webhook.
type DiscordSink struct {
	httpClient  *resty.Client
	webhookURL  string
	frontendURL string
}

// NewDiscordSink frontendURL may be empty; the event link is then omitted.
func NewDiscordSink(webhookURL, frontendURL string, timeout time.Duration) *DiscordSink {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &DiscordSink{
		httpClient:  client,
		webhookURL:  webhookURL,
		frontendURL: strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
	}
}

func (s *DiscordSink) Name() string { return "discord" }

func (s *DiscordSink) Send(ctx context.Context, n Notification) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(s.buildPayload(n)).
		Post(s.webhookURL)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord webhook responded %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

func (s *DiscordSink) buildPayload(n Notification) discordPayload {
	ev := n.Event

	deviceLabel := ev.DeviceID
	if ev.DeviceAlias != nil && *ev.DeviceAlias != "" {
		deviceLabel = fmt.Sprintf("%s (%s)", *ev.DeviceAlias, ev.DeviceID)
	}
	patient := "No patient assigned"
	if ev.PatientName != nil && *ev.PatientName != "" {
		patient = *ev.PatientName
	}
	uid := "N/A"
	if ev.EventUID != nil {
		uid = *ev.EventUID
	}

	title := "New event detected"
	fields := []discordField{
		{Name: "Patient", Value: patient, Inline: true},
		{Name: "Device", Value: deviceLabel, Inline: true},
		{Name: "Type", Value: string(ev.EventType), Inline: true},
		{Name: "Status", Value: string(ev.Status), Inline: true},
		{Name: "Occurred", Value: ev.OccurredAt.UTC().Format(time.RFC3339), Inline: false},
	}
	if n.Kind == KindEventReviewed {
		title = "Event reviewed"
		if ev.ReviewedBy != nil {
			reviewer := *ev.ReviewedBy
			if ev.ReviewedByName != nil && *ev.ReviewedByName != "" {
				reviewer = *ev.ReviewedByName
			}
			fields = append(fields, discordField{Name: "Reviewed by", Value: reviewer, Inline: true})
		}
		if ev.ReviewComment != nil {
			fields = append(fields, discordField{Name: "Comment", Value: *ev.ReviewComment, Inline: false})
		}
	} else {
		fields = append(fields, discordField{Name: "Source", Value: n.Source.Label(), Inline: true})
	}
	fields = append(fields, discordField{Name: "Event UID", Value: uid, Inline: false})

	if s.frontendURL != "" {
		link := fmt.Sprintf("%s/admin/events?eventId=%s", s.frontendURL, url.QueryEscape(ev.ID))
		fields = append(fields, discordField{Name: "Panel", Value: fmt.Sprintf("[Open event](%s)", link), Inline: false})
	}

	return discordPayload{
		Username: "Fall Detect",
		Embeds: []discordEmbed{{
			Title:     title,
			Color:     statusColor(ev.Status),
			Fields:    fields,
			Timestamp: n.SentAt.Format(time.RFC3339),
			Footer:    discordFooter{Text: "event_ref: " + ev.ID},
		}},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
