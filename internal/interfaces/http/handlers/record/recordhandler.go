// Package record provides HTTP handlers for the stored event listings.
package record

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"meshbridge/internal/application/query"
	"meshbridge/internal/domain/record"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
	"meshbridge/internal/shared/utils"
)

type RecordHandler struct {
	queries *query.Service
	logger  logger.Interface
}

func NewRecordHandler(queries *query.Service, log logger.Interface) *RecordHandler {
	return &RecordHandler{
		queries: queries,
		logger:  log.Named("record-handler"),
	}
}

type messageResponse struct {
	ID              uint       `json:"id"`
	Direction       string     `json:"direction"`
	MessageType     string     `json:"message_type"`
	PubkeyPrefix    *string    `json:"pubkey_prefix,omitempty"`
	ChannelIdx      *int       `json:"channel_idx,omitempty"`
	TxtType         *int       `json:"txt_type,omitempty"`
	PathLen         *int       `json:"path_len,omitempty"`
	Signature       *string    `json:"signature,omitempty"`
	Content         string     `json:"content"`
	SNR             *float64   `json:"snr,omitempty"`
	SenderTimestamp *time.Time `json:"sender_timestamp,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
}

func toMessageResponse(m *record.Message) messageResponse {
	return messageResponse{
		ID:              m.ID(),
		Direction:       string(m.Direction()),
		MessageType:     string(m.MessageType()),
		PubkeyPrefix:    m.PubkeyPrefix(),
		ChannelIdx:      m.ChannelIdx(),
		TxtType:         m.TxtType(),
		PathLen:         m.PathLen(),
		Signature:       m.Signature(),
		Content:         m.Content(),
		SNR:             m.SNR(),
		SenderTimestamp: m.SenderTimestamp(),
		ReceivedAt:      m.ReceivedAt(),
	}
}

type advertisementResponse struct {
	ID         uint      `json:"id"`
	PublicKey  string    `json:"public_key"`
	AdvType    *string   `json:"adv_type,omitempty"`
	Name       *string   `json:"name,omitempty"`
	Flags      *int      `json:"flags,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

func toAdvertisementResponse(a *record.Advertisement) advertisementResponse {
	resp := advertisementResponse{
		ID:         a.ID(),
		PublicKey:  a.PublicKey(),
		Name:       a.Name(),
		Flags:      a.Flags(),
		ReceivedAt: a.ReceivedAt(),
	}
	if t := a.AdvType(); t != nil {
		s := string(*t)
		resp.AdvType = &s
	}
	return resp
}

type telemetryResponse struct {
	ID            uint           `json:"id"`
	NodePublicKey string         `json:"node_public_key"`
	Raw           []byte         `json:"raw,omitempty"`
	Parsed        map[string]any `json:"parsed,omitempty"`
	ReceivedAt    time.Time      `json:"received_at"`
}

func toTelemetryResponse(t *record.Telemetry) telemetryResponse {
	return telemetryResponse{
		ID:            t.ID(),
		NodePublicKey: t.NodePublicKey(),
		Raw:           t.Raw(),
		Parsed:        t.Parsed(),
		ReceivedAt:    t.ReceivedAt(),
	}
}

type traceResponse struct {
	ID           uint      `json:"id"`
	InitiatorTag uint32    `json:"initiator_tag"`
	PathHashes   []string  `json:"path_hashes"`
	SNRValues    []float64 `json:"snr_values"`
	HopCount     *int      `json:"hop_count,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

func toTraceResponse(t *record.TracePath) traceResponse {
	return traceResponse{
		ID:           t.ID(),
		InitiatorTag: t.InitiatorTag(),
		PathHashes:   t.PathHashes(),
		SNRValues:    t.SNRValues(),
		HopCount:     t.HopCount(),
		CompletedAt:  t.CompletedAt(),
	}
}

type eventResponse struct {
	ID        uint            `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toEventResponse(e *record.EventLogEntry) eventResponse {
	return eventResponse{
		ID:        e.ID(),
		EventType: e.EventType(),
		Payload:   json.RawMessage(e.Payload()),
		CreatedAt: e.CreatedAt(),
	}
}

// ListMessages handles GET /messages
func (h *RecordHandler) ListMessages(c *gin.Context) {
	pagination := utils.ParsePagination(c)
	q := query.MessagesQuery{
		Kind:     c.Query("kind"),
		Prefix:   c.Query("prefix"),
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
	}

	channelIdx, err := parseIntQuery(c, "channel_idx")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	q.ChannelIdx = channelIdx

	since, err := parseSinceQuery(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	q.Since = since

	messages, total, err := h.queries.ListMessages(c.Request.Context(), q)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		items = append(items, toMessageResponse(m))
	}

	utils.ListSuccessResponse(c, items, total, pagination.Page, pagination.PageSize)
}

// ListAdvertisements handles GET /advertisements
func (h *RecordHandler) ListAdvertisements(c *gin.Context) {
	pagination := utils.ParsePagination(c)
	q := query.AdvertisementsQuery{
		PublicKey: c.Query("public_key"),
		Page:      pagination.Page,
		PageSize:  pagination.PageSize,
	}

	since, err := parseSinceQuery(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	q.Since = since

	adverts, total, err := h.queries.ListAdvertisements(c.Request.Context(), q)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items := make([]advertisementResponse, 0, len(adverts))
	for _, a := range adverts {
		items = append(items, toAdvertisementResponse(a))
	}

	utils.ListSuccessResponse(c, items, total, pagination.Page, pagination.PageSize)
}

// ListTelemetry handles GET /telemetry
func (h *RecordHandler) ListTelemetry(c *gin.Context) {
	pagination := utils.ParsePagination(c)
	q := query.TelemetryQuery{
		NodePublicKey: c.Query("public_key"),
		Page:          pagination.Page,
		PageSize:      pagination.PageSize,
	}

	telemetry, total, err := h.queries.ListTelemetry(c.Request.Context(), q)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items := make([]telemetryResponse, 0, len(telemetry))
	for _, t := range telemetry {
		items = append(items, toTelemetryResponse(t))
	}

	utils.ListSuccessResponse(c, items, total, pagination.Page, pagination.PageSize)
}

// ListTraces handles GET /traces
func (h *RecordHandler) ListTraces(c *gin.Context) {
	pagination := utils.ParsePagination(c)
	q := query.TracesQuery{
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
	}

	if raw := c.Query("initiator_tag"); raw != "" {
		tagValue, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			utils.ErrorResponseWithError(c, errors.NewValidationError("invalid initiator_tag", "must be an unsigned 32-bit integer"))
			return
		}
		v := uint32(tagValue)
		q.InitiatorTag = &v
	}

	traces, total, err := h.queries.ListTraces(c.Request.Context(), q)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items := make([]traceResponse, 0, len(traces))
	for _, t := range traces {
		items = append(items, toTraceResponse(t))
	}

	utils.ListSuccessResponse(c, items, total, pagination.Page, pagination.PageSize)
}

// ListEvents handles GET /events
func (h *RecordHandler) ListEvents(c *gin.Context) {
	pagination := utils.ParsePagination(c)
	q := query.EventsQuery{
		EventType: c.Query("type"),
		Page:      pagination.Page,
		PageSize:  pagination.PageSize,
	}

	since, err := parseSinceQuery(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	q.Since = since

	events, total, err := h.queries.ListEvents(c.Request.Context(), q)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items := make([]eventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, toEventResponse(e))
	}

	utils.ListSuccessResponse(c, items, total, pagination.Page, pagination.PageSize)
}

func parseIntQuery(c *gin.Context, key string) (*int, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.NewValidationError("invalid "+key, "must be an integer")
	}
	return &n, nil
}

func parseSinceQuery(c *gin.Context) (*time.Time, error) {
	raw := c.Query("since")
	if raw == "" {
		return nil, nil
	}
	t, err := timeutil.ParseMetadataTime(raw)
	if err != nil {
		return nil, errors.NewValidationError("invalid since", "must be an RFC3339 timestamp")
	}
	return &t, nil
}
