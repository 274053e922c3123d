// Package webhook is the HTTP front door: signature verification, event
// demux, dynamic test/production service selection, and trace emission,
// grounded on the teacher's fiber-based REST handler style.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coursebot/assistant/config"
	"github.com/coursebot/assistant/contextstore"
	"github.com/coursebot/assistant/course"
	"github.com/coursebot/assistant/dispatcher"
	"github.com/coursebot/assistant/domain"
	"github.com/coursebot/assistant/messaging"
	"github.com/coursebot/assistant/nlu"
	pkgerror "github.com/coursebot/assistant/pkg/error"
	"github.com/coursebot/assistant/pkg/tracelog"
	"github.com/coursebot/assistant/render"
	"github.com/coursebot/assistant/slots"
	"github.com/coursebot/assistant/tasks"
)

const (
	llmTimeout       = 5 * time.Second
	messagingTimeout = 15 * time.Second
	storeTimeout     = 10 * time.Second
)

// Handler wires every control-plane component together behind /callback.
type Handler struct {
	cfg        config.Config
	registry   *config.Registry
	context    *contextstore.Service
	pipeline   *nlu.Pipeline
	extractor  *slots.Extractor
	dispatcher *dispatcher.Dispatcher
	renderer   *render.Renderer
	traces     *tracelog.Buffer
	realClient messaging.Client
	mockClient messaging.Client
	courses    course.Store
	calendar   course.CalendarSync
	version    string
}

// Deps bundles Handler's collaborators for New.
type Deps struct {
	Config     config.Config
	Registry   *config.Registry
	Context    *contextstore.Service
	Pipeline   *nlu.Pipeline
	Extractor  *slots.Extractor
	Dispatcher *dispatcher.Dispatcher
	Renderer   *render.Renderer
	Traces     *tracelog.Buffer
	RealClient messaging.Client
	MockClient messaging.Client
	Courses    course.Store
	Calendar   course.CalendarSync
	Version    string
}

func New(d Deps) *Handler {
	return &Handler{
		cfg:        d.Config,
		registry:   d.Registry,
		context:    d.Context,
		pipeline:   d.Pipeline,
		extractor:  d.Extractor,
		dispatcher: d.Dispatcher,
		renderer:   d.Renderer,
		traces:     d.Traces,
		realClient: d.RealClient,
		mockClient: d.MockClient,
		courses:    d.Courses,
		calendar:   d.Calendar,
		version:    d.Version,
	}
}

// RegisterRoutes wires every HTTP endpoint §4.9/§6 names.
func (h *Handler) RegisterRoutes(router fiber.Router) {
	router.Post("/callback", h.Callback)
	router.Get("/health", h.Health)
	router.Get("/health/deps", h.HealthDeps)
	router.Get("/health/gcal", h.HealthGCal)
	router.Get("/debug/decision", h.DebugDecision)
}

type envelope struct {
	Events []event `json:"events"`
}

type event struct {
	Type       string    `json:"type"`
	ReplyToken string    `json:"replyToken"`
	Source     source    `json:"source"`
	Message    *msg      `json:"message,omitempty"`
	Postback   *postback `json:"postback,omitempty"`
}

func (e event) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Type, validation.Required),
		validation.Field(&e.Source, validation.Required),
	)
}

type source struct {
	UserID string `json:"userId"`
}

func (s source) Validate() error {
	return validation.ValidateStruct(&s, validation.Field(&s.UserID, validation.Required))
}

type msg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

type postback struct {
	Data string `json:"data"`
}

// Callback implements POST /callback per §4.9.
func (h *Handler) Callback(c *fiber.Ctx) error {
	body := c.Body()

	if !h.signatureOK(c, body) {
		logrus.Warn("[WEBHOOK] signature verification failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": pkgerror.WebhookError("invalid signature").ErrCode()})
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": pkgerror.ValidationError("malformed envelope").ErrCode()})
	}

	ctx := c.Context()

	for _, e := range env.Events {
		if err := e.Validate(); err != nil {
			logrus.WithError(err).Warn("[WEBHOOK] skipping malformed event")
			continue
		}
		h.handleEvent(ctx, c, e)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) signatureOK(c *fiber.Ctx, body []byte) bool {
	if h.testModeBypass(c) {
		logrus.Debug("[WEBHOOK] test-mode signature bypass")
		return true
	}
	sig := c.Get("X-Line-Signature")
	if sig == "" || h.cfg.ChannelSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.cfg.ChannelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (h *Handler) testModeBypass(c *fiber.Ctx) bool {
	if h.cfg.IsProduction() {
		return false
	}
	return h.cfg.AllowTestWebhook || h.cfg.UseMockLineService || c.Get("x-qa-mode") == "test"
}

func (h *Handler) handleEvent(ctx context.Context, c *fiber.Ctx, e event) {
	userID := e.Source.UserID
	traceID := uuid.NewString()

	if c.Get("x-qa-reset-context") == "true" {
		h.context.Clear(ctx, userID)
	}

	client := h.selectMessagingClient(c, userID)

	h.traces.Record(domain.TraceRecord{TraceID: traceID, UserID: userID, Stage: domain.StageInbound, Text: messageText(e)})

	switch e.Type {
	case "message":
		h.handleMessage(ctx, traceID, userID, e, client)
	case "postback":
		h.handlePostback(ctx, traceID, userID, e, client)
	case "follow":
		h.handleFollow(ctx, traceID, userID, e.ReplyToken, client)
	case "unfollow":
		// no-op, per §6's event model.
	default:
		logrus.WithField("type", e.Type).Debug("[WEBHOOK] ignoring unhandled event type")
	}
}

func messageText(e event) string {
	if e.Message == nil {
		return ""
	}
	return e.Message.Text
}

// selectMessagingClient implements §4.9's dynamic service-selection rule.
func (h *Handler) selectMessagingClient(c *fiber.Ctx, userID string) messaging.Client {
	qaOverrideReal := c.Get("x-qa-mode") == "real" || c.Query("qaMode") == "real" || h.registry.Flags().QAForceReal
	if strings.HasPrefix(userID, "U_test_") && !qaOverrideReal {
		return h.mockClient
	}
	return h.realClient
}

func (h *Handler) handleMessage(ctx context.Context, traceID, userID string, e event, client messaging.Client) {
	if e.Message == nil {
		return
	}
	switch e.Message.Type {
	case "image":
		h.handleImageMessage(ctx, traceID, userID, e, client)
	default:
		h.handleTextMessage(ctx, traceID, userID, e.Message.Text, e.ReplyToken, client)
	}
}

func (h *Handler) handleTextMessage(ctx context.Context, traceID, userID, text, replyToken string, client messaging.Client) {
	start := time.Now()
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	convCtx := h.context.Get(storeCtx, userID)
	cancel()

	decision := h.pipeline.Decide(ctx, text, convCtx)
	h.traces.Record(domain.TraceRecord{TraceID: traceID, UserID: userID, Stage: domain.StageNLP, Intent: decision.Intent})

	var merged domain.Slots
	if decision.ViaSupplement && decision.MergedSlots != nil {
		merged = *decision.MergedSlots
	} else {
		merged = h.extractor.Extract(ctx, text, decision.Intent, userID, convCtx)
	}
	h.traces.Record(domain.TraceRecord{TraceID: traceID, UserID: userID, Stage: domain.StageSlots, Intent: decision.Intent, Slots: &merged})

	h.context.RecordUserMessage(ctx, userID, text, decision.Intent, merged)
	if !slots.IsCompleteForIntent(merged, decision.Intent) {
		missing := slots.MissingFields(merged, decision.Intent)
		h.context.SetExpectedInput(ctx, userID, domain.FlowCourseCreation, missingFieldTags(missing), &domain.PendingSlots{
			Intent: decision.Intent, ExistingSlots: merged, MissingFields: missing, CreatedAtUnixMs: time.Now().UnixMilli(),
		})
	} else {
		h.context.ClearExpectedInput(ctx, userID)
	}

	ev := dispatcher.Event{UserID: userID, Text: text}
	result := h.dispatcher.Dispatch(ctx, decision.Intent, merged, userID, ev, convCtx)
	h.traces.Record(domain.TraceRecord{TraceID: traceID, UserID: userID, Stage: domain.StageTask, Intent: decision.Intent, Result: &result})
	h.context.RecordTaskResult(ctx, userID, decision.Intent, merged, result)

	message := h.renderer.Render(decision.Intent, merged, result)
	h.traces.Record(domain.TraceRecord{TraceID: traceID, UserID: userID, Stage: domain.StageRender, Intent: decision.Intent, QuickReplyPresent: message.QuickReply != nil})

	h.reply(ctx, traceID, userID, replyToken, client, message)
	h.context.RecordBotResponse(ctx, userID, message.Text, message.QuickReply != nil)

	logrus.WithFields(logrus.Fields{"userId": userID, "intent": decision.Intent, "latencyMs": time.Since(start).Milliseconds()}).Info("[WEBHOOK] text message handled")
}

func missingFieldTags(missing []string) []string {
	tags := make([]string, 0, len(missing))
	for _, f := range missing {
		switch f {
		case "studentName":
			tags = append(tags, domain.ExpectStudentName)
		case "courseName":
			tags = append(tags, domain.ExpectCourseName)
		case "scheduleTime":
			tags = append(tags, domain.ExpectScheduleTime)
		case "courseDate":
			tags = append(tags, domain.ExpectCourseDate)
		}
	}
	return tags
}

func (h *Handler) handleImageMessage(ctx context.Context, traceID, userID string, e event, client messaging.Client) {
	if e.Message == nil {
		return
	}
	mediaCtx, cancel := context.WithTimeout(ctx, messagingTimeout)
	data, err := client.GetMessageContent(mediaCtx, e.Message.ID)
	cancel()
	if err != nil {
		logrus.WithError(err).Warn("[WEBHOOK] failed to download image content")
		return
	}

	convCtx := h.context.Get(ctx, userID)
	s := domain.Slots{TimeReference: domain.TimeRefToday, Content: "圖片記錄"}
	if ref, err := tasks.NormalizeImage(data); err == nil {
		s.ImageRef = ref
	}
	if convCtx.PendingData != nil {
		s.StudentName = convCtx.PendingData.ExistingSlots.StudentName
		s.CourseName = convCtx.PendingData.ExistingSlots.CourseName
	}

	ev := dispatcher.Event{UserID: userID, ImageRef: s.ImageRef}
	result := h.dispatcher.Dispatch(ctx, "record_content", s, userID, ev, convCtx)
	message := h.renderer.Render("record_content", s, result)
	h.reply(ctx, traceID, userID, e.ReplyToken, client, message)
}

func (h *Handler) handlePostback(ctx context.Context, traceID, userID string, e event, client messaging.Client) {
	if e.Postback == nil {
		return
	}
	values, err := url.ParseQuery(e.Postback.Data)
	if err != nil {
		return
	}
	action := values.Get("action")

	var text string
	switch action {
	case "confirm_course":
		text = "已確認"
	case "modify_course":
		text = "請告訴我要修改的內容"
	case "cancel_operation":
		text = "已取消操作"
	default:
		text = h.registry.Template(string(domain.UnknownHelp))
	}
	h.reply(ctx, traceID, userID, e.ReplyToken, client, messaging.Text(text))
}

func (h *Handler) handleFollow(ctx context.Context, traceID, userID, replyToken string, client messaging.Client) {
	if h.courses != nil {
		storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		if _, err := h.courses.GetOrCreateParent(storeCtx, userID); err != nil {
			logrus.WithError(err).Warn("[WEBHOOK] getOrCreateParent failed on follow")
		}
		cancel()
	}
	welcome := h.registry.Template("WELCOME")
	h.reply(ctx, traceID, userID, replyToken, client, messaging.Text(welcome))
}

func (h *Handler) reply(ctx context.Context, traceID, userID, replyToken string, client messaging.Client, messages ...messaging.Message) {
	if replyToken == "" || client == nil {
		return
	}
	replyCtx, cancel := context.WithTimeout(ctx, messagingTimeout)
	defer cancel()
	if err := client.Reply(replyCtx, replyToken, messages...); err != nil {
		h.traces.Record(domain.TraceRecord{TraceID: traceID, UserID: userID, Stage: domain.StageError, Text: err.Error()})
		logrus.WithError(err).Error("[WEBHOOK] reply failed")
		return
	}
	h.traces.Record(domain.TraceRecord{TraceID: traceID, UserID: userID, Stage: domain.StageOutbound})
}

// Health implements GET /health.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "version": h.version})
}

// HealthDeps implements GET /health/deps.
func (h *Handler) HealthDeps(c *fiber.Ctx) error {
	status := h.context.HealthCheck(c.Context())
	return c.JSON(fiber.Map{"status": status.Status, "checks": fiber.Map{"contextStore": status}})
}

// HealthGCal implements GET /health/gcal.
func (h *Handler) HealthGCal(c *fiber.Ctx) error {
	mode := course.CalendarAuthMock
	if h.calendar != nil {
		mode = h.calendar.AuthMode()
	}
	return c.JSON(fiber.Map{"authMode": mode})
}

// DebugDecision implements GET /debug/decision?traceId=.
func (h *Handler) DebugDecision(c *fiber.Ctx) error {
	traceID := c.Query("traceId")
	if traceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": pkgerror.ValidationError("traceId is required").ErrCode()})
	}
	records := h.traces.ByTraceID(traceID)
	return c.JSON(fiber.Map{"traceId": traceID, "records": records})
}
