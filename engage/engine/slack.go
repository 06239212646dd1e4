package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type SlackNotifier struct {
	SlackWebhookURL string
	// Defaults to http.DefaultClient
	Client *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendDecision(ctx context.Context, note Notification) error {
	return n.sendSlackMsg(ctx, slackBody(note))
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(note Notification) string {
	msg := fmt.Sprintf("🛡️ r/%s: `%s` ⛔\n", note.Forum, note.Decision)
	msg += fmt.Sprintf("u/%s / `%s`", note.Author, note.SubmissionID)
	if note.Permalink != "" {
		msg += fmt.Sprintf(" / <%s|post>", note.Permalink)
	}
	msg += "\n"
	if note.Title != "" {
		msg += fmt.Sprintf("Title: %s\n", note.Title)
	}
	if note.Reason != "" {
		msg += fmt.Sprintf("Reason: `%s`\n", note.Reason)
	}
	return msg
}
