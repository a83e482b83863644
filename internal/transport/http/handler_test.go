package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsync/backend/internal/config"
	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/service"
	"mailsync/backend/internal/smtpout"
	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeFetcher 可编程的拉取实现
type fakeFetcher struct {
	messages []domain.Message
	err      error
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ string) ([]domain.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Message, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

// fakeMutator 记录远端变更调用
type fakeMutator struct {
	seen    []uint32
	deleted []uint32
}

func (f *fakeMutator) MarkSeen(_ context.Context, _ string, _ domain.Mailbox, uid uint32) error {
	f.seen = append(f.seen, uid)
	return nil
}

func (f *fakeMutator) Delete(_ context.Context, _ string, _ domain.Mailbox, uid uint32) error {
	f.deleted = append(f.deleted, uid)
	return nil
}

func (f *fakeMutator) FetchAttachment(_ context.Context, _ string, _ domain.Mailbox, _ uint32, part string) (*domain.Attachment, error) {
	if part != "2" {
		return nil, service.ErrMessageNotFound
	}
	return &domain.Attachment{Part: "2", Filename: "report.pdf", MimeType: "application/pdf", Size: 3, Content: []byte("pdf")}, nil
}

// fakeSender 记录发出的邮件
type fakeSender struct {
	sent []*smtpout.Outgoing
}

func (f *fakeSender) Send(_ context.Context, _ *domain.Account, out *smtpout.Outgoing) error {
	f.sent = append(f.sent, out)
	return nil
}

type testEnv struct {
	router  *gin.Engine
	store   *memory.Store
	mutator *fakeMutator
	sender  *fakeSender
}

func newTestEnv(t *testing.T, fetcher *fakeFetcher) *testEnv {
	t.Helper()

	store := memory.NewStore()
	log := zap.NewNop()
	mutator := &fakeMutator{}
	sender := &fakeSender{}

	fetchSvc := service.NewFetchService(fetcher, store, store, time.Minute, nil, log)
	messageSvc := service.NewMessageService(mutator, sender, store, store, fetchSvc, nil, log)
	accountSvc := service.NewAccountService(store, store, log)

	cfg := &config.Config{
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	router := NewRouter(RouterDependencies{
		Config:         cfg,
		AccountService: accountSvc,
		FetchService:   fetchSvc,
		MessageService: messageSvc,
		Store:          store,
		Logger:         log,
	})

	return &testEnv{router: router, store: store, mutator: mutator, sender: sender}
}

func seedAccount(t *testing.T, store *memory.Store) {
	t.Helper()
	require.NoError(t, store.SaveAccount(&domain.Account{
		ID:       "acc-1",
		Email:    "alice@example.com",
		Password: "secret",
		IMAPHost: "imap.example.com",
		IMAPPort: 993,
		SMTPHost: "smtp.example.com",
		SMTPPort: 465,
	}))
}

func doJSON(env *testEnv, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestListMessagesEndpoint(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	messages := []domain.Message{
		{UID: 1, Mailbox: domain.MailboxInbox, From: "bob@example.com", Subject: "old", Date: base},
		{UID: 2, Mailbox: domain.MailboxSent, From: "alice@example.com", Subject: "sent", Date: base.Add(time.Hour), IsRead: true},
		{UID: 3, Mailbox: domain.MailboxInbox, From: "carol@example.com", Subject: "new", Date: base.Add(2 * time.Hour)},
	}

	t.Run("返回data与pagination平级的列表结构", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{messages: messages})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodGet, "/v1/messages?email_account_id=acc-1&page=1&limit=2", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data       []domain.Message `json:"data"`
			Pagination struct {
				HasMore bool `json:"hasMore"`
			} `json:"pagination"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		require.Len(t, resp.Data, 2)
		assert.Equal(t, uint32(3), resp.Data[0].UID)
		assert.Equal(t, uint32(2), resp.Data[1].UID)
		assert.True(t, resp.Pagination.HasMore)
	})

	t.Run("缺少账户参数返回400", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{messages: messages})

		w := doJSON(env, http.MethodGet, "/v1/messages", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("账户不存在返回404", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{err: storage.ErrAccountNotFound})

		w := doJSON(env, http.MethodGet, "/v1/messages?email_account_id=missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("上游拉取失败返回502", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{err: assert.AnError})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodGet, "/v1/messages?email_account_id=acc-1", nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("搜索参数过滤结果", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{messages: messages})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodGet, "/v1/messages?email_account_id=acc-1&search=carol", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data []domain.Message `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, uint32(3), resp.Data[0].UID)
	})
}

func TestMarkReadEndpoint(t *testing.T) {
	t.Run("标记已读成功返回204", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodPost, "/v1/messages/read", gin.H{
			"email_account_id": "acc-1",
			"mailbox":          "inbox",
			"uid":              5,
		})
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []uint32{5}, env.mutator.seen)
	})

	t.Run("非法mailbox返回400", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})

		w := doJSON(env, http.MethodPost, "/v1/messages/read", gin.H{
			"email_account_id": "acc-1",
			"mailbox":          "drafts",
			"uid":              5,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeleteMessagesEndpoint(t *testing.T) {
	t.Run("批量删除成功返回204", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodPost, "/v1/messages/delete", gin.H{
			"email_account_id": "acc-1",
			"messages": []gin.H{
				{"mailbox": "inbox", "uid": 1},
				{"mailbox": "sent", "uid": 2},
			},
		})
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Len(t, env.mutator.deleted, 2)
	})

	t.Run("空列表返回400", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})

		w := doJSON(env, http.MethodPost, "/v1/messages/delete", gin.H{
			"email_account_id": "acc-1",
			"messages":         []gin.H{},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReplyEndpoint(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	t.Run("回复成功并发往原发件人", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{messages: []domain.Message{
			{UID: 9, Mailbox: domain.MailboxInbox, From: "Bob <bob@example.com>", Subject: "question", Date: base},
		}})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodPost, "/v1/messages/reply", gin.H{
			"email_account_id": "acc-1",
			"mailbox":          "inbox",
			"uid":              9,
			"body":             "answer",
		})
		assert.Equal(t, http.StatusNoContent, w.Code)

		require.Len(t, env.sender.sent, 1)
		assert.Equal(t, "bob@example.com", env.sender.sent[0].To)
		assert.Equal(t, "Re: question", env.sender.sent[0].Subject)
	})

	t.Run("原信不存在返回404", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodPost, "/v1/messages/reply", gin.H{
			"email_account_id": "acc-1",
			"mailbox":          "inbox",
			"uid":              404,
			"body":             "answer",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSendEndpoint(t *testing.T) {
	t.Run("multipart发送携带附件", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})
		seedAccount(t, env.store)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("email_account_id", "acc-1"))
		require.NoError(t, mw.WriteField("to", "bob@example.com"))
		require.NoError(t, mw.WriteField("subject", "hello"))
		require.NoError(t, mw.WriteField("body", "content"))
		fw, err := mw.CreateFormFile("attachments", "a.txt")
		require.NoError(t, err)
		_, err = fw.Write([]byte("aaa"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/messages/send", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		require.Len(t, env.sender.sent, 1)
		assert.Equal(t, "bob@example.com", env.sender.sent[0].To)
		require.Len(t, env.sender.sent[0].Attachments, 1)
		assert.Equal(t, "a.txt", env.sender.sent[0].Attachments[0].Filename)
	})

	t.Run("缺少收件人返回400", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})

		req := httptest.NewRequest(http.MethodPost, "/v1/messages/send", strings.NewReader("email_account_id=acc-1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAttachmentEndpoint(t *testing.T) {
	t.Run("附件下载返回二进制流", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodGet, "/v1/messages/attachment?email_account_id=acc-1&mailbox=inbox&uid=9&part=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "report.pdf")
		assert.Equal(t, "pdf", w.Body.String())
	})

	t.Run("附件不存在返回404", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodGet, "/v1/messages/attachment?email_account_id=acc-1&mailbox=inbox&uid=9&part=7", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAccountEndpoints(t *testing.T) {
	createBody := gin.H{
		"email":     "alice@example.com",
		"password":  "secret",
		"imap_host": "imap.example.com",
		"imap_port": 993,
	}

	t.Run("创建账户返回201且不回显密码", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})

		w := doJSON(env, http.MethodPost, "/v1/accounts", createBody)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.NotContains(t, w.Body.String(), "secret")
		assert.Contains(t, w.Body.String(), "alice@example.com")
	})

	t.Run("重复邮箱返回409", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})

		w := doJSON(env, http.MethodPost, "/v1/accounts", createBody)
		require.Equal(t, http.StatusCreated, w.Code)
		w = doJSON(env, http.MethodPost, "/v1/accounts", createBody)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("非法邮箱返回400", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})

		body := gin.H{"email": "nope", "password": "x", "imap_host": "h", "imap_port": 993}
		w := doJSON(env, http.MethodPost, "/v1/accounts", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("获取不存在的账户返回404", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})

		w := doJSON(env, http.MethodGet, "/v1/accounts/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("删除账户返回204", func(t *testing.T) {
		env := newTestEnv(t, &fakeFetcher{})
		seedAccount(t, env.store)

		w := doJSON(env, http.MethodDelete, "/v1/accounts/acc-1", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(env, http.MethodGet, "/v1/accounts/acc-1", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
