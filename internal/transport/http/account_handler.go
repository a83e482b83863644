package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/service"
	"mailsync/backend/internal/storage"
)

// AccountHandler 账户管理端点处理器
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler 创建账户处理器
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type accountRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password"`
	IMAPHost    string `json:"imap_host" binding:"required"`
	IMAPPort    int    `json:"imap_port" binding:"required"`
	IMAPSecure  bool   `json:"imap_secure"`
	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port"`
	SMTPSecure  bool   `json:"smtp_secure"`
	Provider    string `json:"provider"`
	SyncEnabled *bool  `json:"sync_enabled"`
}

func (r *accountRequest) toAccount(id string) *domain.Account {
	account := &domain.Account{
		ID:          id,
		Email:       r.Email,
		Password:    r.Password,
		IMAPHost:    r.IMAPHost,
		IMAPPort:    r.IMAPPort,
		IMAPSecure:  r.IMAPSecure,
		SMTPHost:    r.SMTPHost,
		SMTPPort:    r.SMTPPort,
		SMTPSecure:  r.SMTPSecure,
		Provider:    r.Provider,
		SyncEnabled: true,
	}
	if r.SyncEnabled != nil {
		account.SyncEnabled = *r.SyncEnabled
	}
	return account
}

// createAccount 创建邮箱账户。
func (h *AccountHandler) createAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	account, err := h.accounts.CreateAccount(req.toAccount(""))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAccountExists):
			Conflict(c, GetErrorMessage(err))
		case IsValidation(err):
			BadRequest(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgAccountCreateFailed)
		}
		return
	}

	Created(c, account)
}

// listAccounts 列出全部账户。
func (h *AccountHandler) listAccounts(c *gin.Context) {
	accounts, err := h.accounts.ListAccounts()
	if err != nil {
		InternalError(c, MsgAccountListFailed)
		return
	}

	Success(c, gin.H{
		"items": accounts,
		"count": len(accounts),
	})
}

// getAccount 获取账户详情。
func (h *AccountHandler) getAccount(c *gin.Context) {
	account, err := h.accounts.GetAccount(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			NotFound(c, MsgAccountNotFound)
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, account)
}

// updateAccount 更新账户配置。
func (h *AccountHandler) updateAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	account, err := h.accounts.UpdateAccount(req.toAccount(c.Param("id")))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAccountNotFound):
			NotFound(c, MsgAccountNotFound)
		case errors.Is(err, storage.ErrAccountExists):
			Conflict(c, GetErrorMessage(err))
		case IsValidation(err):
			BadRequest(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgAccountUpdateFailed)
		}
		return
	}

	Success(c, account)
}

// deleteAccount 删除账户。
func (h *AccountHandler) deleteAccount(c *gin.Context) {
	if err := h.accounts.DeleteAccount(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			NotFound(c, MsgAccountNotFound)
			return
		}
		InternalError(c, MsgAccountDeleteFailed)
		return
	}
	NoContent(c)
}
