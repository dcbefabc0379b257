package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Graph API error codes that mean the recipient can never be reached.
var invalidRecipientCodes = map[int]bool{
	131026: true, // message undeliverable / not a WhatsApp user
	131030: true, // recipient not in allowed list
	131021: true, // recipient is the sender
}

// Graph API error code for an expired or revoked access token.
const codeInvalidToken = 190

// errTransport marks a request that never got an HTTP response.
var errTransport = errors.New("transport failure")

// Recorder stores outgoing messages.
type Recorder interface {
	RecordMessage(ctx context.Context, msg *models.Message) error
}

// Client talks to the WhatsApp Cloud API for one sending phone number. It
// implements campaign.Driver.
type Client struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	HTTP          *http.Client
	Recorder      Recorder
	Logger        *zap.Logger
}

func NewClient(baseURL, token, phoneNumberID string, recorder Recorder, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Token:         token,
		PhoneNumberID: phoneNumberID,
		HTTP:          &http.Client{Timeout: 60 * time.Second},
		Recorder:      recorder,
		Logger:        logger.With(zap.String("phone_number_id", phoneNumberID)),
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	RecipientType    string    `json:"recipient_type,omitempty"`
	Text             *TextObj  `json:"text,omitempty"`
	Image            *MediaObj `json:"image,omitempty"`
	Video            *MediaObj `json:"video,omitempty"`
	Audio            *MediaObj `json:"audio,omitempty"`
	Document         *MediaObj `json:"document,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type MessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type MediaResponse struct {
	ID string `json:"id"`
}

// APIError is the error object returned by the Graph API.
type APIError struct {
	Status    int    `json:"-"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (code %d): %s", e.Status, e.Code, e.Message)
}

// InvalidRecipient reports whether the error means the number cannot
// receive WhatsApp messages at all.
func (e *APIError) InvalidRecipient() bool {
	return invalidRecipientCodes[e.Code]
}

// IsInvalidRecipientCode reports whether a webhook or API error code marks
// the recipient as unreachable.
func IsInvalidRecipientCode(code int) bool {
	return invalidRecipientCodes[code]
}

// --- Helper Functions ---

func (c *Client) endpoint(parts ...string) string {
	return c.BaseURL + "/" + strings.Join(parts, "/")
}

func (c *Client) sendRequest(ctx context.Context, method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", errTransport, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(respBody)}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			apiErr = envelope.Error
			apiErr.Status = resp.StatusCode
		}
		if apiErr.Code == codeInvalidToken {
			return respBody, fmt.Errorf("%w: %v", campaign.ErrDriverUnavailable, apiErr)
		}
		return respBody, apiErr
	}

	return respBody, nil
}

func (c *Client) sendJSON(ctx context.Context, method, url string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.sendRequest(ctx, method, url, bytes.NewReader(data), "application/json")
}

// --- Messaging Methods ---

// SendRawMessage posts msg and returns the message id assigned by WhatsApp.
func (c *Client) SendRawMessage(ctx context.Context, msg GenericMessage) (string, error) {
	resp, err := c.sendJSON(ctx, http.MethodPost, c.endpoint(c.PhoneNumberID, "messages"), msg)
	if err != nil {
		return "", err
	}
	var out MessageResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	id := ""
	if len(out.Messages) > 0 {
		id = out.Messages[0].ID
	}
	c.record(ctx, id, msg)
	return id, nil
}

func (c *Client) record(ctx context.Context, id string, msg GenericMessage) {
	if c.Recorder == nil {
		return
	}
	content := fmt.Sprintf("%s message", msg.Type)
	if msg.Text != nil {
		content = msg.Text.Body
	}
	if id == "" {
		id = "outgoing-" + msg.To
	}
	err := c.Recorder.RecordMessage(context.WithoutCancel(ctx), &models.Message{
		WaID:    id,
		Sender:  msg.To,
		Content: content,
		Type:    msg.Type,
		Status:  "sent",
	})
	if err != nil {
		c.Logger.Warn("record outgoing message", zap.Error(err))
	}
}

// SendText sends a rendered campaign message. The text arrives
// query-encoded and is decoded before sending.
func (c *Client) SendText(ctx context.Context, phone, text string) (campaign.SendResult, error) {
	body, err := url.QueryUnescape(text)
	if err != nil {
		return campaign.SendInvalid, nil
	}
	_, err = c.SendRawMessage(ctx, GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phone,
		Type:             "text",
		Text:             &TextObj{Body: body, PreviewUrl: true},
	})
	return c.classify(ctx, phone, err)
}

func (c *Client) classify(ctx context.Context, phone string, err error) (campaign.SendResult, error) {
	if err == nil {
		return campaign.SendSent, nil
	}
	if errors.Is(err, errTransport) {
		if fatal := c.transportFailure(ctx, err); fatal != nil {
			return campaign.SendFailed, fatal
		}
		c.Logger.Warn("send failed", zap.String("phone", phone), zap.Error(err))
		return campaign.SendFailed, nil
	}
	if errors.Is(err, campaign.ErrDriverUnavailable) {
		return campaign.SendFailed, err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.InvalidRecipient() {
			c.Logger.Info("invalid recipient", zap.String("phone", phone), zap.Int("code", apiErr.Code))
			return campaign.SendInvalid, nil
		}
		c.Logger.Warn("send failed", zap.String("phone", phone), zap.Error(apiErr))
		return campaign.SendFailed, nil
	}
	return campaign.SendFailed, err
}

// Attach uploads each existing file and sends it as a media message.
// Missing files are skipped; a group with no existing file succeeds.
func (c *Client) Attach(ctx context.Context, phone string, paths []string, kind campaign.AttachmentKind) (bool, error) {
	existing := campaign.ExistingPaths(paths)
	if len(existing) == 0 {
		c.Logger.Info("no files to send", zap.String("phone", phone), zap.String("kind", string(kind)))
		return true, nil
	}
	for _, path := range existing {
		media, mtype, err := c.UploadFile(ctx, path)
		if err != nil {
			return c.attachFailed(ctx, phone, path, err)
		}
		msg := GenericMessage{MessagingProduct: "whatsapp", RecipientType: "individual", To: phone}
		obj := &MediaObj{ID: media.ID}
		switch messageType(kind, mtype) {
		case "image":
			msg.Type, msg.Image = "image", obj
		case "video":
			msg.Type, msg.Video = "video", obj
		case "audio":
			msg.Type, msg.Audio = "audio", obj
		default:
			obj.Filename = filepath.Base(path)
			msg.Type, msg.Document = "document", obj
		}
		if _, err := c.SendRawMessage(ctx, msg); err != nil {
			return c.attachFailed(ctx, phone, path, err)
		}
	}
	return true, nil
}

func (c *Client) attachFailed(ctx context.Context, phone, path string, err error) (bool, error) {
	if errors.Is(err, campaign.ErrDriverUnavailable) {
		return false, err
	}
	if errors.Is(err, errTransport) {
		if fatal := c.transportFailure(ctx, err); fatal != nil {
			return false, fatal
		}
	}
	c.Logger.Warn("attachment failed", zap.String("phone", phone), zap.String("path", path), zap.Error(err))
	return false, nil
}

// messageType picks the Cloud API message type for a file. Document groups
// always go out as documents; media groups follow the detected MIME type.
func messageType(kind campaign.AttachmentKind, mtype string) string {
	if kind == campaign.KindDocument {
		return "document"
	}
	switch {
	case strings.HasPrefix(mtype, "image/"):
		return "image"
	case strings.HasPrefix(mtype, "video/"):
		return "video"
	case strings.HasPrefix(mtype, "audio/"):
		return "audio"
	}
	return "document"
}

// --- Media Methods ---

// UploadFile uploads a local file and returns its media id and MIME type.
func (c *Client) UploadFile(ctx context.Context, path string) (*MediaResponse, string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("detect type of %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	media, err := c.UploadMedia(ctx, data, mtype.String(), filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	return media, mtype.String(), nil
}

func (c *Client) UploadMedia(ctx context.Context, fileData []byte, mimeType, filename string) (*MediaResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
	header["Content-Type"] = []string{mimeType}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(fileData); err != nil {
		return nil, err
	}
	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return nil, err
	}
	if err := writer.WriteField("type", mimeType); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	resp, err := c.sendRequest(ctx, http.MethodPost, c.endpoint(c.PhoneNumberID, "media"), body, writer.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	var mediaResp MediaResponse
	if err := json.Unmarshal(resp, &mediaResp); err != nil {
		return nil, err
	}
	return &mediaResp, nil
}

// transportFailure decides whether a request that got no response ends the
// lane. Timeouts fail only the current contact, as does any other error
// while the phone number node still answers.
func (c *Client) transportFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	if c.Alive(ctx) {
		return nil
	}
	return fmt.Errorf("%w: %v", campaign.ErrDriverUnavailable, err)
}

// --- Driver lifecycle ---

// Alive reports whether the phone number node answers with our token.
func (c *Client) Alive(ctx context.Context) bool {
	_, err := c.sendRequest(ctx, http.MethodGet, c.endpoint(c.PhoneNumberID)+"?fields=id", nil, "")
	if err != nil {
		c.Logger.Debug("liveness check failed", zap.Error(err))
		return false
	}
	return true
}

func (c *Client) Close() error {
	c.HTTP.CloseIdleConnections()
	return nil
}
