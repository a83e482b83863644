package httptransport

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/service"
)

// MessageHandler 邮件相关端点处理器
type MessageHandler struct {
	fetch    *service.FetchService
	messages *service.MessageService
}

// NewMessageHandler 创建邮件处理器
func NewMessageHandler(fetch *service.FetchService, messages *service.MessageService) *MessageHandler {
	return &MessageHandler{
		fetch:    fetch,
		messages: messages,
	}
}

type listMessagesQuery struct {
	AccountID string `form:"email_account_id" binding:"required"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
	Search    string `form:"search"`
}

// listMessages 获取账户邮件列表（缓存优先，分页+搜索）。
func (h *MessageHandler) listMessages(c *gin.Context) {
	var query listMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, MsgMissingAccount)
		return
	}

	page, err := h.fetch.ListMessages(c.Request.Context(), query.AccountID, query.Page, query.Limit, query.Search)
	if err != nil {
		if IsNotFound(err) {
			NotFound(c, GetErrorMessage(err))
			return
		}
		BadGateway(c, MsgUpstreamError)
		return
	}

	SuccessList(c, page.Messages, page.HasMore)
}

type messageActionRequest struct {
	AccountID string         `json:"email_account_id" binding:"required"`
	Mailbox   domain.Mailbox `json:"mailbox" binding:"required"`
	UID       uint32         `json:"uid" binding:"required"`
}

func (r *messageActionRequest) ref() service.MessageRef {
	return service.MessageRef{Mailbox: r.Mailbox, UID: r.UID}
}

// markRead 标记邮件已读。
func (h *MessageHandler) markRead(c *gin.Context) {
	var req messageActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if !req.Mailbox.Valid() {
		BadRequest(c, MsgInvalidMailbox)
		return
	}

	if err := h.messages.MarkRead(c.Request.Context(), req.AccountID, req.ref()); err != nil {
		if IsNotFound(err) {
			NotFound(c, GetErrorMessage(err))
			return
		}
		BadGateway(c, MsgMessageMarkReadFailed)
		return
	}
	NoContent(c)
}

type deleteMessagesRequest struct {
	AccountID string               `json:"email_account_id" binding:"required"`
	Messages  []service.MessageRef `json:"messages" binding:"required,min=1"`
}

// deleteMessages 删除一封或多封邮件。
func (h *MessageHandler) deleteMessages(c *gin.Context) {
	var req deleteMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	for _, ref := range req.Messages {
		if !ref.Mailbox.Valid() {
			BadRequest(c, MsgInvalidMailbox)
			return
		}
	}

	var err error
	if len(req.Messages) == 1 {
		err = h.messages.Delete(c.Request.Context(), req.AccountID, req.Messages[0])
	} else {
		err = h.messages.BulkDelete(c.Request.Context(), req.AccountID, req.Messages)
	}
	if err != nil {
		if IsNotFound(err) {
			NotFound(c, GetErrorMessage(err))
			return
		}
		BadGateway(c, MsgMessageDeleteFailed)
		return
	}
	NoContent(c)
}

type replyRequest struct {
	AccountID string         `json:"email_account_id" binding:"required"`
	Mailbox   domain.Mailbox `json:"mailbox" binding:"required"`
	UID       uint32         `json:"uid" binding:"required"`
	Body      string         `json:"body" binding:"required"`
}

// reply 回复一封邮件。
func (h *MessageHandler) reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if !req.Mailbox.Valid() {
		BadRequest(c, MsgInvalidMailbox)
		return
	}

	ref := service.MessageRef{Mailbox: req.Mailbox, UID: req.UID}
	if err := h.messages.Reply(c.Request.Context(), req.AccountID, ref, req.Body); err != nil {
		switch {
		case IsNotFound(err):
			NotFound(c, GetErrorMessage(err))
		case IsValidation(err):
			BadRequest(c, GetErrorMessage(err))
		default:
			BadGateway(c, MsgReplyFailed)
		}
		return
	}
	NoContent(c)
}

// send 以账户身份发送新邮件。
//
// 请求为 multipart/form-data：文本字段 email_account_id、to、
// subject、body，附件放在 attachments 字段（可多个）。
func (h *MessageHandler) send(c *gin.Context) {
	accountID := c.PostForm("email_account_id")
	to := c.PostForm("to")
	if accountID == "" || to == "" {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	subject := c.PostForm("subject")
	body := c.PostForm("body")

	var attachments []domain.Attachment
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, file := range form.File["attachments"] {
			f, err := file.Open()
			if err != nil {
				BadRequest(c, MsgAttachmentUploadBroken)
				return
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				BadRequest(c, MsgAttachmentUploadBroken)
				return
			}

			mimeType := file.Header.Get("Content-Type")
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			attachments = append(attachments, domain.Attachment{
				Filename: file.Filename,
				MimeType: mimeType,
				Size:     int64(len(content)),
				Content:  content,
			})
		}
	}

	if err := h.messages.Send(c.Request.Context(), accountID, to, subject, body, attachments); err != nil {
		switch {
		case IsNotFound(err):
			NotFound(c, GetErrorMessage(err))
		case IsValidation(err):
			BadRequest(c, GetErrorMessage(err))
		default:
			BadGateway(c, MsgSendFailed)
		}
		return
	}
	NoContent(c)
}

type attachmentQuery struct {
	AccountID string `form:"email_account_id" binding:"required"`
	Mailbox   string `form:"mailbox" binding:"required"`
	UID       uint32 `form:"uid" binding:"required"`
	Part      string `form:"part" binding:"required"`
}

// downloadAttachment 下载附件，直接返回二进制流。
func (h *MessageHandler) downloadAttachment(c *gin.Context) {
	var query attachmentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mailbox := domain.Mailbox(strings.ToLower(query.Mailbox))
	if !mailbox.Valid() {
		BadRequest(c, MsgInvalidMailbox)
		return
	}

	ref := service.MessageRef{Mailbox: mailbox, UID: query.UID}
	attachment, err := h.messages.Attachment(c.Request.Context(), query.AccountID, ref, query.Part)
	if err != nil {
		if IsNotFound(err) {
			NotFound(c, GetErrorMessage(err))
			return
		}
		BadGateway(c, MsgAttachmentFetchFailed)
		return
	}

	// 附件下载不使用统一响应格式，直接返回二进制流
	c.Header("Content-Disposition", "attachment; filename=\""+attachment.Filename+"\"")
	c.Header("Content-Length", fmt.Sprintf("%d", attachment.Size))
	c.Data(http.StatusOK, attachment.MimeType, attachment.Content)
}
