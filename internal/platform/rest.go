package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/courier-bot/courier/internal/logging"
)

// DefaultAPIBase is the platform REST endpoint used when config leaves it blank.
const DefaultAPIBase = "https://discord.com/api/v10"

// RESTClient implements Messenger over the platform HTTP API.
type RESTClient struct {
	apiBase   string
	token     string
	channelID string
	client    *http.Client
}

// NewRESTClient creates a REST messenger for a single channel.
func NewRESTClient(apiBase, token, channelID string) *RESTClient {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &RESTClient{
		apiBase:   apiBase,
		token:     token,
		channelID: channelID,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// wirePayload is the JSON body for message create and edit calls.
type wirePayload struct {
	Content    string          `json:"content,omitempty"`
	Embeds     []Embed         `json:"embeds,omitempty"`
	Components []wireActionRow `json:"components,omitempty"`
}

type wireActionRow struct {
	Type       int          `json:"type"` // 1 = action row
	Components []wireButton `json:"components"`
}

type wireButton struct {
	Type     int    `json:"type"` // 2 = button
	Label    string `json:"label"`
	CustomID string `json:"custom_id"`
	Style    int    `json:"style"`
}

func buildPayload(out *Outgoing) wirePayload {
	p := wirePayload{Content: out.Content}
	if out.Embed != nil {
		p.Embeds = []Embed{*out.Embed}
	}
	for _, row := range out.Components {
		wr := wireActionRow{Type: 1}
		for _, b := range row.Buttons {
			style := b.Style
			if style == 0 {
				style = ButtonSecondary
			}
			wr.Components = append(wr.Components, wireButton{
				Type:     2,
				Label:    b.Label,
				CustomID: b.CustomID,
				Style:    style,
			})
		}
		p.Components = append(p.Components, wr)
	}
	return p
}

// Send posts a new message to the channel and returns the message ID.
func (c *RESTClient) Send(ctx context.Context, out *Outgoing) (string, error) {
	url := fmt.Sprintf("%s/channels/%s/messages", c.apiBase, c.channelID)

	body, err := c.do(ctx, http.MethodPost, url, out)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode message response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("message response missing id")
	}

	logging.ForComponent(logging.CompPlatform).Debug("message_sent",
		"message_id", resp.ID,
		"files", len(out.Files))
	return resp.ID, nil
}

// Edit replaces an existing message's content in place.
func (c *RESTClient) Edit(ctx context.Context, messageID string, out *Outgoing) error {
	url := fmt.Sprintf("%s/channels/%s/messages/%s", c.apiBase, c.channelID, messageID)

	if _, err := c.do(ctx, http.MethodPatch, url, out); err != nil {
		return err
	}

	logging.ForComponent(logging.CompPlatform).Debug("message_edited",
		"message_id", messageID)
	return nil
}

// do issues one API request, choosing multipart when files are attached.
func (c *RESTClient) do(ctx context.Context, method, url string, out *Outgoing) ([]byte, error) {
	var (
		body        io.Reader
		contentType string
		err         error
	)
	if len(out.Files) > 0 {
		body, contentType, err = multipartBody(out)
		if err != nil {
			return nil, err
		}
	} else {
		buf, merr := json.Marshal(buildPayload(out))
		if merr != nil {
			return nil, fmt.Errorf("encode payload: %w", merr)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, truncateBody(respBody))
	}
	return respBody, nil
}

// multipartBody encodes the payload JSON plus file attachments.
func multipartBody(out *Outgoing) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	payload, err := json.Marshal(buildPayload(out))
	if err != nil {
		return nil, "", fmt.Errorf("encode payload: %w", err)
	}
	if err := w.WriteField("payload_json", string(payload)); err != nil {
		return nil, "", fmt.Errorf("write payload part: %w", err)
	}

	for i, f := range out.Files {
		part, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create file part %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write file part %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
