package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/pulse/internal/domain"
	"github.com/nfrund/pulse/internal/messaging"
	"github.com/nfrund/pulse/internal/middleware"
	"github.com/nfrund/pulse/internal/pubsub"
)

// In-memory collaborators for exercising the handlers through a real
// messaging service.

type fakeMessageRepo struct {
	mu       sync.Mutex
	nextID   int
	messages map[string]*domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string]*domain.Message)}
}

func (r *fakeMessageRepo) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	stored := *msg
	stored.ID = fmt.Sprintf("message:%d", r.nextID)
	r.messages[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	out := *msg
	return &out, nil
}

func (r *fakeMessageRepo) ListBetween(ctx context.Context, userA, userB string) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, msg := range r.messages {
		if msg.IsParticipant(userA) && msg.IsParticipant(userB) {
			m := *msg
			out = append(out, &m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) UpdateReactions(ctx context.Context, id string, reactions []domain.Reaction, version int64) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if msg.Version != version {
		return nil, domain.ErrStaleVersion
	}
	msg.Reactions = reactions
	msg.Version++
	out := *msg
	return &out, nil
}

func (r *fakeMessageRepo) MarkDeleted(ctx context.Context, id string, version int64) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if msg.Version != version {
		return nil, domain.ErrStaleVersion
	}
	msg.Redact()
	msg.Version++
	out := *msg
	return &out, nil
}

type fakeUserRepo struct{}

func (fakeUserRepo) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	return nil, domain.ErrInvalidCredentials
}

func (fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return &domain.User{ID: id, Username: "fixture"}, nil
}

func (fakeUserRepo) ListExcept(ctx context.Context, id string) ([]domain.UserSummary, error) {
	return []domain.UserSummary{
		{ID: "user:bob", Username: "bob"},
		{ID: "user:carol", Username: "carol"},
	}, nil
}

type fakeUploader struct{}

func (fakeUploader) Upload(ctx context.Context, data []byte, kind domain.MediaKind) (string, error) {
	return fmt.Sprintf("/media/uploaded%s", kind), nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []pubsub.Message
}

func (p *capturingPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) all() []pubsub.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pubsub.Message(nil), p.events...)
}

type handlerFixture struct {
	e       *echo.Echo
	handler *MessageHandler
	repo    *fakeMessageRepo
	pub     *capturingPublisher
}

func newHandlerFixture() *handlerFixture {
	e := echo.New()
	e.Validator = NewValidator()

	repo := newFakeMessageRepo()
	pub := &capturingPublisher{}
	svc := messaging.NewService(repo, fakeUserRepo{}, fakeUploader{}, pub)

	return &handlerFixture{
		e:       e,
		handler: NewMessageHandler(svc),
		repo:    repo,
		pub:     pub,
	}
}

// newContext builds an echo context with the authenticated user preset, the
// way the auth middleware does in the live route chain.
func (f *handlerFixture) newContext(req *http.Request, userID string) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if userID != "" {
		c.Set(middleware.UserContextKey, &domain.User{ID: userID, Username: strings.TrimPrefix(userID, "user:")})
	}
	return c, rec
}

func (f *handlerFixture) seed(t *testing.T, sender, receiver, text string) *domain.Message {
	t.Helper()
	msg, err := f.repo.Create(context.Background(), &domain.Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		Reactions:  []domain.Reaction{},
	})
	require.NoError(t, err)
	return msg
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	return he.Code
}

func TestMessageHandler_Users(t *testing.T) {
	f := newHandlerFixture()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	c, rec := f.newContext(req, "user:alice")

	require.NoError(t, f.handler.Users(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var users []domain.UserSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)
}

func TestMessageHandler_RequiresAuthenticatedUser(t *testing.T) {
	f := newHandlerFixture()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	c, _ := f.newContext(req, "")

	err := f.handler.Users(c)
	assert.Equal(t, http.StatusUnauthorized, httpStatus(t, err))
}

func TestMessageHandler_List(t *testing.T) {
	f := newHandlerFixture()
	f.seed(t, "user:alice", "user:bob", "hello")
	f.seed(t, "user:alice", "user:carol", "elsewhere")

	req := httptest.NewRequest(http.MethodGet, "/api/messages/user:bob", nil)
	c, rec := f.newContext(req, "user:alice")
	c.SetParamNames("peerID")
	c.SetParamValues("user:bob")

	require.NoError(t, f.handler.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var msgs []*domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	assert.Len(t, msgs, 1)
}

func TestMessageHandler_SendText(t *testing.T) {
	f := newHandlerFixture()

	form := url.Values{}
	form.Set("text", "hello bob")
	form.Set("tempId", "temp-42")
	req := httptest.NewRequest(http.MethodPost, "/api/messages/user:bob", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set(HeaderConnectionID, "conn-7")

	c, rec := f.newContext(req, "user:alice")
	c.SetParamNames("peerID")
	c.SetParamValues("user:bob")

	require.NoError(t, f.handler.Send(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Message *domain.Message `json:"message"`
		TempID  string          `json:"tempId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hello bob", body.Message.Text)
	assert.Equal(t, "user:alice", body.Message.SenderID)
	assert.Equal(t, "temp-42", body.TempID)

	// The event carries the correlation id and the originating connection.
	events := f.pub.all()
	require.Len(t, events, 1)
	var event messaging.MessageCreatedEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &event))
	assert.Equal(t, "temp-42", event.TempID)
	assert.Equal(t, "conn-7", event.OriginConnID)
}

func TestMessageHandler_SendImage(t *testing.T) {
	f := newHandlerFixture()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/messages/user:bob", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())

	c, rec := f.newContext(req, "user:alice")
	c.SetParamNames("peerID")
	c.SetParamValues("user:bob")

	require.NoError(t, f.handler.Send(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Message *domain.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Message.ImageURL)
}

func TestMessageHandler_SendRejectsEmptyBody(t *testing.T) {
	f := newHandlerFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/messages/user:bob", strings.NewReader(""))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	c, _ := f.newContext(req, "user:alice")
	c.SetParamNames("peerID")
	c.SetParamValues("user:bob")

	err := f.handler.Send(c)
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
}

func TestMessageHandler_React(t *testing.T) {
	f := newHandlerFixture()
	msg := f.seed(t, "user:alice", "user:bob", "hello")

	body := `{"emoji":"👍"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages/"+msg.ID+"/reactions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	c, rec := f.newContext(req, "user:bob")
	c.SetParamNames("id")
	c.SetParamValues(msg.ID)

	require.NoError(t, f.handler.React(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var updated domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Len(t, updated.Reactions, 1)
	assert.Equal(t, "👍", updated.Reactions[0].Emoji)
}

func TestMessageHandler_ReactRejectsOutsider(t *testing.T) {
	f := newHandlerFixture()
	msg := f.seed(t, "user:alice", "user:bob", "hello")

	req := httptest.NewRequest(http.MethodPost, "/api/messages/"+msg.ID+"/reactions", strings.NewReader(`{"emoji":"👍"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	c, _ := f.newContext(req, "user:mallory")
	c.SetParamNames("id")
	c.SetParamValues(msg.ID)

	err := f.handler.React(c)
	assert.Equal(t, http.StatusForbidden, httpStatus(t, err))
}

func TestMessageHandler_ReactValidation(t *testing.T) {
	f := newHandlerFixture()
	msg := f.seed(t, "user:alice", "user:bob", "hello")

	req := httptest.NewRequest(http.MethodPost, "/api/messages/"+msg.ID+"/reactions", strings.NewReader(`{"emoji":""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	c, _ := f.newContext(req, "user:bob")
	c.SetParamNames("id")
	c.SetParamValues(msg.ID)

	err := f.handler.React(c)
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
}

func TestMessageHandler_Delete(t *testing.T) {
	f := newHandlerFixture()
	msg := f.seed(t, "user:alice", "user:bob", "oops")

	req := httptest.NewRequest(http.MethodDelete, "/api/messages/"+msg.ID, nil)
	c, rec := f.newContext(req, "user:alice")
	c.SetParamNames("id")
	c.SetParamValues(msg.ID)

	require.NoError(t, f.handler.Delete(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var deleted domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deleted))
	assert.True(t, deleted.Deleted)
	assert.Empty(t, deleted.Text)
}

func TestMessageHandler_DeleteRejectsNonSender(t *testing.T) {
	f := newHandlerFixture()
	msg := f.seed(t, "user:alice", "user:bob", "oops")

	req := httptest.NewRequest(http.MethodDelete, "/api/messages/"+msg.ID, nil)
	c, _ := f.newContext(req, "user:bob")
	c.SetParamNames("id")
	c.SetParamValues(msg.ID)

	err := f.handler.Delete(c)
	assert.Equal(t, http.StatusForbidden, httpStatus(t, err))
}

func TestMessageHandler_DeleteUnknownIDAnswersRedacted(t *testing.T) {
	f := newHandlerFixture()

	req := httptest.NewRequest(http.MethodDelete, "/api/messages/message:missing", nil)
	c, rec := f.newContext(req, "user:alice")
	c.SetParamNames("id")
	c.SetParamValues("message:missing")

	require.NoError(t, f.handler.Delete(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var gone domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gone))
	assert.True(t, gone.Deleted)
}
