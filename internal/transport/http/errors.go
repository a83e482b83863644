package httptransport

import (
	"errors"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/imapfetch"
	"mailsync/backend/internal/service"
	"mailsync/backend/internal/smtpout"
	"mailsync/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
//
// 服务层返回的错误经过 %w 包装，这里用 errors.Is 逐个匹配。
var errorMessages = []struct {
	err error
	msg string
}{
	// 账户错误
	{storage.ErrAccountNotFound, "邮箱账户不存在"},
	{storage.ErrAccountExists, "邮箱账户已存在"},

	// 账户校验错误
	{domain.ErrInvalidEmail, "邮箱地址格式无效"},
	{domain.ErrMissingPassword, "密码不能为空"},
	{domain.ErrMissingIMAPHost, "IMAP服务器地址不能为空"},
	{domain.ErrInvalidPort, "端口号无效"},

	// 邮件错误
	{service.ErrMessageNotFound, "邮件不存在"},
	{imapfetch.ErrMessageNotFound, "邮件不存在"},
	{imapfetch.ErrFolderNotFound, "邮件文件夹不存在"},
	{imapfetch.ErrAttachmentNotFound, "附件不存在"},

	// 发送错误
	{smtpout.ErrSMTPNotConfigured, "账户未配置SMTP发件服务"},
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for _, entry := range errorMessages {
		if errors.Is(err, entry.err) {
			return entry.msg
		}
	}
	return err.Error()
}

// IsNotFound 判断错误是否应映射为 404
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrAccountNotFound) ||
		errors.Is(err, service.ErrMessageNotFound) ||
		errors.Is(err, imapfetch.ErrMessageNotFound) ||
		errors.Is(err, imapfetch.ErrFolderNotFound) ||
		errors.Is(err, imapfetch.ErrAttachmentNotFound)
}

// IsValidation 判断错误是否应映射为 400
func IsValidation(err error) bool {
	return errors.Is(err, domain.ErrInvalidEmail) ||
		errors.Is(err, domain.ErrMissingPassword) ||
		errors.Is(err, domain.ErrMissingIMAPHost) ||
		errors.Is(err, domain.ErrInvalidPort) ||
		errors.Is(err, smtpout.ErrSMTPNotConfigured)
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"
	MsgMissingAccount = "缺少email_account_id参数"
	MsgInvalidMailbox = "mailbox参数无效"

	// 账户相关
	MsgAccountCreateFailed = "创建账户失败"
	MsgAccountListFailed   = "获取账户列表失败"
	MsgAccountUpdateFailed = "更新账户失败"
	MsgAccountDeleteFailed = "删除账户失败"
	MsgAccountNotFound     = "邮箱账户不存在"

	// 邮件相关
	MsgMessageListFailed     = "获取邮件列表失败"
	MsgMessageMarkReadFailed = "标记已读失败"
	MsgMessageDeleteFailed   = "删除邮件失败"
	MsgReplyFailed           = "回复邮件失败"
	MsgSendFailed            = "发送邮件失败"

	// 附件相关
	MsgAttachmentNotFound     = "附件不存在"
	MsgAttachmentFetchFailed  = "获取附件失败"
	MsgAttachmentUploadBroken = "附件上传数据无效"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
	MsgUpstreamError = "邮件服务器暂时不可用，请稍后重试"
)
