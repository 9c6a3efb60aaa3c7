package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/customeradmin/internal/config"
	"github.com/totegamma/customeradmin/internal/domain"
	"github.com/totegamma/customeradmin/internal/present/rest/middleware"
	"github.com/totegamma/customeradmin/internal/present/rest/presenter"
	"github.com/totegamma/customeradmin/internal/service"
	"github.com/totegamma/customeradmin/internal/usecase"
)

type Handler struct {
	config   config.Admin
	customer *usecase.CustomerUsecase
	meta     *usecase.MetaUsecase
	signal   *service.SignalService
}

func NewHandler(
	config config.Admin,
	customer *usecase.CustomerUsecase,
	meta *usecase.MetaUsecase,
	signal *service.SignalService,
) *Handler {
	return &Handler{
		config:   config,
		customer: customer,
		meta:     meta,
		signal:   signal,
	}
}

// RegisterRoutes mounts the admin API. Routes that write require a caller
// identified by the auth middleware.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/customers", h.handleList)
	e.GET("/customers/lookup", h.handleLookup)
	e.GET("/customers/type", h.handleType)
	e.GET("/customers/resolve", h.handleResolve)
	e.GET("/customers/exists", h.handleExists)
	e.GET("/customers/:id", h.handleProfile)
	e.GET("/customers/:id/meta", h.handleGetMeta)
	e.GET("/meta-keys", h.handleMetaKeys)
	e.GET("/realtime", h.handleRealtime)

	write := e.Group("/customers", middleware.RequireAccount)
	write.POST("", h.handleCreate)
	write.PATCH("/:id", h.handleUpdate)
	write.POST("/:id/orders", h.handleRecordOrder)
	write.POST("/:id/meta", h.handleAddMeta)
	write.DELETE("/:id/meta", h.handlePurgeMeta)
	write.PUT("/:id/meta/:key", h.handleUpdateMeta)
	write.DELETE("/:id/meta/:key", h.handleDeleteMeta)
}

type listResponse struct {
	Items   []domain.Customer `json:"items"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"perPage"`
	Empty   bool              `json:"empty"`
}

func (h *Handler) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	page := 1
	if s := c.QueryParam("page"); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil || p < 1 {
			return presenter.BadRequestMessage(c, "invalid page")
		}
		page = p
	}

	perPage := h.config.PerPage
	if s := c.QueryParam("per_page"); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil || p < 1 {
			return presenter.BadRequestMessage(c, "invalid per_page")
		}
		perPage = p
	}
	if h.config.MaxPerPage > 0 && perPage > h.config.MaxPerPage {
		perPage = h.config.MaxPerPage
	}

	orderBy, err := domain.ParseSortField(c.QueryParam("orderby"))
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	direction, err := domain.ParseSortDirection(c.QueryParam("order"))
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	result, err := h.customer.List(ctx, domain.Page(page, perPage, orderBy, direction))
	if err != nil {
		return presenter.Error(c, err)
	}

	return presenter.OK(c, listResponse{
		Items:   result.Items,
		Total:   result.Total,
		Page:    page,
		PerPage: perPage,
		Empty:   result.Total == 0,
	})
}

type createResponse struct {
	CustomerID   int64  `json:"customerID"`
	RoleSynced   bool   `json:"roleSynced"`
	RoleSyncErr  string `json:"roleSyncError,omitempty"`
	CustomerType string `json:"type"`
}

func (h *Handler) handleCreate(c echo.Context) error {
	ctx := c.Request().Context()

	var input usecase.CreateCustomerInput
	if err := c.Bind(&input); err != nil {
		return presenter.BadRequest(c, err)
	}

	result, err := h.customer.Create(ctx, input)
	if err != nil {
		return presenter.Error(c, err)
	}

	response := createResponse{
		CustomerID:   result.Customer.ID,
		RoleSynced:   result.Customer.IsRegistered() && result.RoleSyncErr == nil,
		CustomerType: string(result.Customer.Type()),
	}
	if result.RoleSyncErr != nil {
		response.RoleSyncErr = result.RoleSyncErr.Error()
	}
	return presenter.Created(c, response)
}

func (h *Handler) handleLookup(c echo.Context) error {
	ctx := c.Request().Context()

	email := c.QueryParam("email")
	if email == "" {
		return presenter.BadRequestMessage(c, "email is required")
	}

	customer, err := h.customer.ResolveCustomerByEmail(ctx, email)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"customer": customer, "type": customer.Type()})
}

func (h *Handler) handleType(c echo.Context) error {
	ctx := c.Request().Context()

	email := c.QueryParam("email")
	if email == "" {
		return presenter.BadRequestMessage(c, "email is required")
	}

	typ, err := h.customer.ClassifyCustomerType(ctx, email)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"type": typ})
}

// handleResolve maps a user id to its customer. Without userID the
// authenticated caller is used.
func (h *Handler) handleResolve(c echo.Context) error {
	ctx := c.Request().Context()

	var userID int64
	if s := c.QueryParam("userID"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id < 0 {
			return presenter.BadRequestMessage(c, "invalid userID")
		}
		userID = id
	}

	id, err := h.customer.ResolveCustomerID(ctx, userID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"customerID": id})
}

func (h *Handler) handleExists(c echo.Context) error {
	ctx := c.Request().Context()

	var identity domain.Identity
	if email := c.QueryParam("email"); email != "" {
		identity = domain.EmailIdentity(email)
	} else {
		var userID int64
		if s := c.QueryParam("userID"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id < 0 {
				return presenter.BadRequestMessage(c, "invalid userID")
			}
			userID = id
		}
		identity = domain.UserIdentity(userID)
	}

	exists, err := h.customer.HasExistingCustomer(ctx, identity)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"exists": exists})
}

func customerID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) handleProfile(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := customerID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid customer id")
	}

	profile, err := h.customer.Profile(ctx, id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, profile)
}

type updateRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func (h *Handler) handleUpdate(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := customerID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid customer id")
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	customer, err := h.customer.Update(ctx, id, domain.CustomerUpdate{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, customer)
}

type orderRequest struct {
	Amount float64 `json:"amount"`
}

func (h *Handler) handleRecordOrder(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := customerID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid customer id")
	}

	var req orderRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	customer, err := h.customer.RecordOrder(ctx, id, req.Amount)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, customer)
}

func (h *Handler) handleGetMeta(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := customerID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid customer id")
	}

	key := c.QueryParam("key")
	if key == "" {
		all, err := h.meta.GetAll(ctx, id)
		if err != nil {
			return presenter.Error(c, err)
		}
		return presenter.OK(c, all)
	}

	if single, _ := strconv.ParseBool(c.QueryParam("single")); single {
		value, err := h.meta.GetSingle(ctx, id, key)
		if err != nil {
			return presenter.Error(c, err)
		}
		return presenter.OK(c, echo.Map{"key": key, "value": value})
	}

	values, err := h.meta.GetAllForKey(ctx, id, key)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"key": key, "values": values})
}

type addMetaRequest struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Unique bool   `json:"unique"`
}

func (h *Handler) handleAddMeta(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := customerID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid customer id")
	}

	var req addMetaRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	metaID, added, err := h.meta.Add(ctx, id, req.Key, req.Value, req.Unique)
	if err != nil {
		return presenter.Error(c, err)
	}
	if !added {
		return presenter.OK(c, echo.Map{"added": false})
	}
	return presenter.Created(c, echo.Map{"added": true, "metaID": metaID})
}

type updateMetaRequest struct {
	Value     string `json:"value"`
	PrevValue string `json:"prevValue"`
}

func (h *Handler) handleUpdateMeta(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := customerID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid customer id")
	}

	var req updateMetaRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	updated, err := h.meta.Update(ctx, id, c.Param("key"), req.Value, req.PrevValue)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"updated": updated})
}

func (h *Handler) handleDeleteMeta(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := customerID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid customer id")
	}

	key := c.Param("key")
	var (
		deleted bool
		err     error
	)
	if value := c.QueryParam("value"); value != "" {
		deleted, err = h.meta.DeleteValue(ctx, id, key, value)
	} else {
		deleted, err = h.meta.Delete(ctx, id, key)
	}
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"deleted": deleted})
}

func (h *Handler) handlePurgeMeta(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := customerID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid customer id")
	}

	n, err := h.meta.DeleteCustom(ctx, id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"deleted": n})
}

func (h *Handler) handleMetaKeys(c echo.Context) error {
	return presenter.OK(c, h.customer.DefaultMetaKeys())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "realtime is not configured"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan domain.CustomerEvent)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Channels:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, "Socket subscribe",
					slog.String("channels", strings.Join(req.Channels, ",")),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
