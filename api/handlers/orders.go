package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	apitypes "github.com/openalpha/simex/api/types"
	"github.com/openalpha/simex/exchange/types"
	"github.com/openalpha/simex/pipeline"
)

// OrderVenue is the read-only slice of the venue the handler uses for
// listing open orders.
type OrderVenue interface {
	OpenOrders(teamID string) []types.Order
}

// OrderHandler serves order submission, cancellation and listing. Submission
// and cancellation are synchronous to the caller but asynchronous inside:
// the handler registers with the coordinator, enqueues into the pipeline and
// parks until the validator stage answers or the deadline passes.
type OrderHandler struct {
	coordinator *pipeline.Coordinator
	queues      *pipeline.Queues
	venue       OrderVenue
	auth        TeamAuthenticator
	timeout     time.Duration
	logger      log.Logger
}

// NewOrderHandler creates an order handler
func NewOrderHandler(
	coordinator *pipeline.Coordinator,
	queues *pipeline.Queues,
	venue OrderVenue,
	auth TeamAuthenticator,
	timeout time.Duration,
	logger log.Logger,
) *OrderHandler {
	return &OrderHandler{
		coordinator: coordinator,
		queues:      queues,
		venue:       venue,
		auth:        auth,
		timeout:     timeout,
		logger:      logger.With("handler", "orders"),
	}
}

// HandleOrders handles /api/v1/orders (GET for list, POST for submit)
func (h *OrderHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listOrders(w, r)
	case http.MethodPost:
		h.submitOrder(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

// HandleOrder handles /api/v1/orders/{id} (DELETE for cancel)
func (h *OrderHandler) HandleOrder(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/orders/"
	orderID := strings.TrimPrefix(r.URL.Path, prefix)
	if orderID == "" || strings.Contains(orderID, "/") {
		writeError(w, http.StatusBadRequest, "INVALID_PATH", "order id is required")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		h.cancelOrder(w, r, orderID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

// submitOrder handles POST /api/v1/orders
func (h *OrderHandler) submitOrder(w http.ResponseWriter, r *http.Request) {
	team := authenticate(w, r, h.auth)
	if team == nil {
		return
	}

	var req apitypes.SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return
	}
	if req.InstrumentID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_INSTRUMENT", "instrument_id is required")
		return
	}

	side, err := types.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SIDE", err.Error())
		return
	}
	orderType, err := types.ParseOrderType(req.OrderType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ORDER_TYPE", err.Error())
		return
	}

	price := math.LegacyDec{}
	if req.Price != "" {
		price, err = math.LegacyNewDecFromStr(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_PRICE", "price is not a valid decimal")
			return
		}
	}

	order, err := types.NewOrder("ORD-"+uuid.NewString(), team.ID, req.InstrumentID, side, orderType, price, req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ORDER", err.Error())
		return
	}
	order.ClientOrderID = req.ClientOrderID

	h.dispatch(w, pipeline.OrderEnvelope{
		Kind:       pipeline.KindNewOrder,
		TeamID:     team.ID,
		Role:       team.Role,
		Order:      order,
		EnqueuedAt: time.Now(),
	})
}

// cancelOrder handles DELETE /api/v1/orders/{id}
func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	team := authenticate(w, r, h.auth)
	if team == nil {
		return
	}

	h.dispatch(w, pipeline.OrderEnvelope{
		Kind:          pipeline.KindCancelOrder,
		TeamID:        team.ID,
		Role:          team.Role,
		CancelOrderID: orderID,
		EnqueuedAt:    time.Now(),
	})
}

// dispatch registers the request, feeds the pipeline and parks until the
// coordinator answers, mapping the outcome to an HTTP status.
func (h *OrderHandler) dispatch(w http.ResponseWriter, env pipeline.OrderEnvelope) {
	requestID, err := h.coordinator.RegisterRequest(env.TeamID)
	if err != nil {
		code := pipeline.CodeServiceOverloaded
		if err == pipeline.ErrCoordinatorShutdown {
			code = pipeline.CodeServiceShutdown
		}
		writeError(w, http.StatusServiceUnavailable, code, err.Error())
		return
	}
	env.RequestID = requestID

	if !h.queues.TryEnqueueOrder(env) {
		// Free the coordinator slot before answering.
		h.coordinator.NotifyCompletion(requestID,
			apitypes.ErrorResponse(pipeline.CodeServiceOverloaded, "order queue full"))
		h.coordinator.WaitForCompletion(requestID, h.timeout)
		writeError(w, http.StatusServiceUnavailable, pipeline.CodeServiceOverloaded, "order queue full")
		return
	}

	resp := h.coordinator.WaitForCompletion(requestID, h.timeout)
	writeJSON(w, httpStatusFor(resp), resp)
}

// httpStatusFor maps a pipeline response to an HTTP status. Validation
// rejections stay 200 with success=false; only transport-level failures get
// non-2xx codes.
func httpStatusFor(resp *apitypes.ApiResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.ErrorCode {
	case pipeline.CodeProcessingTimeout:
		return http.StatusRequestTimeout
	case pipeline.CodeServiceOverloaded, pipeline.CodeServiceShutdown:
		return http.StatusServiceUnavailable
	case pipeline.CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// listOrders handles GET /api/v1/orders
func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	team := authenticate(w, r, h.auth)
	if team == nil {
		return
	}

	open := h.venue.OpenOrders(team.ID)
	views := make([]*apitypes.OrderView, 0, len(open))
	for _, o := range open {
		view := &apitypes.OrderView{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			InstrumentID:  o.InstrumentID,
			Side:          o.Side.String(),
			OrderType:     o.OrderType.String(),
			Quantity:      o.Quantity,
			FilledQty:     o.FilledQty,
			RemainingQty:  o.RemainingQty(),
			Status:        o.Status.String(),
			SubmittedAt:   o.SubmittedAt.UnixMilli(),
		}
		if o.OrderType == types.OrderTypeLimit {
			view.Price = o.Price.String()
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, apitypes.ListOrdersResponse{Orders: views})
}
