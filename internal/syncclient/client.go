package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mailsync/backend/internal/domain"
)

// MessageRef 定位账户内一封邮件。
type MessageRef struct {
	Mailbox domain.Mailbox `json:"mailbox"`
	UID     uint32         `json:"uid"`
}

// OutgoingMail 待发送的新邮件。
type OutgoingMail struct {
	To          string
	Subject     string
	Body        string
	Attachments []domain.Attachment
}

// Client 同步服务端 HTTP API 的类型化客户端。
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient 创建 API 客户端。
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type listResponse struct {
	Data       []domain.Message `json:"data"`
	Pagination struct {
		HasMore bool `json:"hasMore"`
	} `json:"pagination"`
}

type errorResponse struct {
	Msg string `json:"msg"`
}

// ListMessages 获取一页邮件，返回列表和是否还有后续页。
func (c *Client) ListMessages(ctx context.Context, accountID string, page, limit int, search string) ([]domain.Message, bool, error) {
	query := url.Values{}
	query.Set("email_account_id", accountID)
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	if search != "" {
		query.Set("search", search)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/messages?"+query.Encode(), nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, c.apiError(resp)
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode list response: %w", err)
	}
	return out.Data, out.Pagination.HasMore, nil
}

// MarkRead 标记邮件已读。
func (c *Client) MarkRead(ctx context.Context, accountID string, ref MessageRef) error {
	return c.postJSON(ctx, "/v1/messages/read", map[string]interface{}{
		"email_account_id": accountID,
		"mailbox":          ref.Mailbox,
		"uid":              ref.UID,
	})
}

// Delete 删除一封或多封邮件。
func (c *Client) Delete(ctx context.Context, accountID string, refs []MessageRef) error {
	return c.postJSON(ctx, "/v1/messages/delete", map[string]interface{}{
		"email_account_id": accountID,
		"messages":         refs,
	})
}

// Reply 回复一封邮件。
func (c *Client) Reply(ctx context.Context, accountID string, ref MessageRef, body string) error {
	return c.postJSON(ctx, "/v1/messages/reply", map[string]interface{}{
		"email_account_id": accountID,
		"mailbox":          ref.Mailbox,
		"uid":              ref.UID,
		"body":             body,
	})
}

// Send 以 multipart 表单发送新邮件，附件逐个编入表单。
func (c *Client) Send(ctx context.Context, accountID string, mail OutgoingMail) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"email_account_id": accountID,
		"to":               mail.To,
		"subject":          mail.Subject,
		"body":             mail.Body,
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return err
		}
	}
	for _, att := range mail.Attachments {
		fw, err := mw.CreateFormFile("attachments", att.Filename)
		if err != nil {
			return err
		}
		if _, err := fw.Write(att.Content); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages/send", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.apiError(resp)
	}
	return nil
}

// FetchAttachment 下载附件内容。
func (c *Client) FetchAttachment(ctx context.Context, accountID string, ref MessageRef, part string) ([]byte, error) {
	query := url.Values{}
	query.Set("email_account_id", accountID)
	query.Set("mailbox", string(ref.Mailbox))
	query.Set("uid", strconv.FormatUint(uint64(ref.UID), 10))
	query.Set("part", part)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/messages/attachment?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

// postJSON 发送 JSON 请求，非 2xx 状态转换为错误。
func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.apiError(resp)
	}
	return nil
}

// apiError 从错误响应中提取服务端消息。
func (c *Client) apiError(resp *http.Response) error {
	var out errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.Msg != "" {
		return fmt.Errorf("api %s: %s", resp.Status, out.Msg)
	}
	return fmt.Errorf("api %s", resp.Status)
}
