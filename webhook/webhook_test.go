package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursebot/assistant/config"
	"github.com/coursebot/assistant/contextstore"
	"github.com/coursebot/assistant/contextstore/memory"
	"github.com/coursebot/assistant/course"
	"github.com/coursebot/assistant/course/calendarmock"
	"github.com/coursebot/assistant/dispatcher"
	"github.com/coursebot/assistant/domain"
	"github.com/coursebot/assistant/messaging"
	"github.com/coursebot/assistant/messaging/mock"
	"github.com/coursebot/assistant/nlu"
	"github.com/coursebot/assistant/pkg/tracelog"
	"github.com/coursebot/assistant/render"
	"github.com/coursebot/assistant/slots"
)

// fakeCourseStore is a minimal in-memory course.Store double, enough to
// exercise the follow-event parent-creation call and add_course dispatch.
type fakeCourseStore struct {
	parents map[string]domain.Parent
}

func newFakeCourseStore() *fakeCourseStore {
	return &fakeCourseStore{parents: map[string]domain.Parent{}}
}

func (f *fakeCourseStore) GetOrCreateParent(ctx context.Context, userID string) (domain.Parent, error) {
	if p, ok := f.parents[userID]; ok {
		return p, nil
	}
	p := domain.Parent{UserID: userID}
	f.parents[userID] = p
	return p, nil
}
func (f *fakeCourseStore) GetCoursesByStudent(ctx context.Context, userID, studentName string, rng *course.DateRange) ([]domain.Course, error) {
	return nil, nil
}
func (f *fakeCourseStore) FindCourse(ctx context.Context, userID, studentName, courseName, courseDate string) (*domain.Course, error) {
	return nil, nil
}
func (f *fakeCourseStore) Create(ctx context.Context, c domain.Course) (domain.Course, error) {
	return c, nil
}
func (f *fakeCourseStore) Update(ctx context.Context, id string, patch course.Patch) (domain.Course, error) {
	return domain.Course{ID: id}, nil
}
func (f *fakeCourseStore) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeCourseStore) CheckTimeConflicts(ctx context.Context, userID, courseDate, scheduleTime, excludeID string) ([]domain.Course, error) {
	return nil, nil
}
func (f *fakeCourseStore) QueryDocuments(ctx context.Context, entityType string, criteria course.Criteria) ([]domain.Course, error) {
	return nil, nil
}

func newTestHandler(t *testing.T, cfg config.Config) (*Handler, *mock.Client, *mock.Client) {
	t.Helper()
	registry := config.NewRegistry(cfg, nil)
	ctxStore := contextstore.NewService(memory.New())
	extractor := slots.New(registry, nil)
	pipeline := nlu.New(registry, nil, extractor)
	d := dispatcher.New(func(ctx context.Context, s domain.Slots, userID string, ev dispatcher.Event, cc domain.ConversationContext) domain.TaskResult {
		return domain.TaskResult{Success: true, Code: domain.UnknownHelp, Message: registry.Template("UNKNOWN_HELP")}
	})
	renderer := render.New(registry)
	traces := tracelog.New(50)
	realClient := mock.New()
	testClient := mock.New()

	h := New(Deps{
		Config:     cfg,
		Registry:   registry,
		Context:    ctxStore,
		Pipeline:   pipeline,
		Extractor:  extractor,
		Dispatcher: d,
		Renderer:   renderer,
		Traces:     traces,
		RealClient: realClient,
		MockClient: testClient,
		Courses:    newFakeCourseStore(),
		Calendar:   calendarmock.New(),
		Version:    "test",
	})
	return h, realClient, testClient
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func doCallback(t *testing.T, h *Handler, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	app := fiber.New()
	h.RegisterRoutes(app)
	req := httptest.NewRequest("POST", "/callback", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	h, _, _ := newTestHandler(t, config.Config{NodeEnv: "production", ChannelSecret: "shh"})
	body := []byte(`{"events":[]}`)
	resp := doCallback(t, h, body, map[string]string{"X-Line-Signature": "bogus"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCallbackAcceptsValidSignature(t *testing.T) {
	cfg := config.Config{NodeEnv: "production", ChannelSecret: "shh"}
	h, _, _ := newTestHandler(t, cfg)
	body := []byte(`{"events":[]}`)
	sig := sign(cfg.ChannelSecret, body)
	resp := doCallback(t, h, body, map[string]string{"X-Line-Signature": sig})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCallbackTestModeBypassesSignature(t *testing.T) {
	h, _, _ := newTestHandler(t, config.Config{NodeEnv: "development", AllowTestWebhook: true})
	body := []byte(`{"events":[{"type":"message","replyToken":"rt1","source":{"userId":"U123"},"message":{"type":"text","id":"m1","text":"哈囉"}}]}`)
	resp := doCallback(t, h, body, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCallbackRoutesTestUserToMockClient(t *testing.T) {
	h, realClient, testClient := newTestHandler(t, config.Config{NodeEnv: "development", AllowTestWebhook: true})
	body := []byte(`{"events":[{"type":"message","replyToken":"rt1","source":{"userId":"U_test_abc"},"message":{"type":"text","id":"m1","text":"查詢課表"}}]}`)
	doCallback(t, h, body, nil)
	assert.Len(t, testClient.Replies(), 1)
	assert.Empty(t, realClient.Replies())
}

func TestCallbackQAOverrideRoutesTestUserToRealClient(t *testing.T) {
	h, realClient, testClient := newTestHandler(t, config.Config{NodeEnv: "development", AllowTestWebhook: true})
	body := []byte(`{"events":[{"type":"message","replyToken":"rt1","source":{"userId":"U_test_abc"},"message":{"type":"text","id":"m1","text":"查詢課表"}}]}`)
	resp := doCallback(t, h, body, map[string]string{"x-qa-mode": "real"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, realClient.Replies(), 1)
	assert.Empty(t, testClient.Replies())
}

func TestCallbackFollowCreatesParentAndSendsWelcome(t *testing.T) {
	h, realClient, _ := newTestHandler(t, config.Config{NodeEnv: "development", AllowTestWebhook: true})
	body := []byte(`{"events":[{"type":"follow","replyToken":"rt-follow","source":{"userId":"U999"}}]}`)
	doCallback(t, h, body, nil)
	replies := realClient.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "rt-follow", replies[0].ReplyToken)

	fs := h.courses.(*fakeCourseStore)
	_, ok := fs.parents["U999"]
	assert.True(t, ok, "expected parent to be created for U999")
}

func TestCallbackUnfollowEventIgnored(t *testing.T) {
	h, realClient, _ := newTestHandler(t, config.Config{NodeEnv: "development", AllowTestWebhook: true})
	body := []byte(`{"events":[{"type":"unfollow","source":{"userId":"U1"}}]}`)
	resp := doCallback(t, h, body, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, realClient.Replies())
}

func TestHealthEndpoint(t *testing.T) {
	h, _, _ := newTestHandler(t, config.Config{NodeEnv: "development", AllowTestWebhook: true})
	app := fiber.New()
	h.RegisterRoutes(app)
	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestDebugDecisionRequiresTraceID(t *testing.T) {
	h, _, _ := newTestHandler(t, config.Config{NodeEnv: "development", AllowTestWebhook: true})
	app := fiber.New()
	h.RegisterRoutes(app)
	req := httptest.NewRequest("GET", "/debug/decision", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

var _ messaging.Client = (*mock.Client)(nil)
