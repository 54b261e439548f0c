package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
	"github.com/hideyau28/hk-marketplace-sub002/internal/aws"
	"github.com/hideyau28/hk-marketplace-sub002/internal/catalog"
	"github.com/hideyau28/hk-marketplace-sub002/internal/idempotency"
	"github.com/hideyau28/hk-marketplace-sub002/internal/inventory"
	"github.com/hideyau28/hk-marketplace-sub002/internal/ordernum"
	"github.com/hideyau28/hk-marketplace-sub002/internal/orders"
	"github.com/hideyau28/hk-marketplace-sub002/internal/payments"
	"github.com/hideyau28/hk-marketplace-sub002/internal/pricing"
	"github.com/hideyau28/hk-marketplace-sub002/internal/ratelimit"
	"github.com/hideyau28/hk-marketplace-sub002/internal/validation"
)

const (
	createOrdersRoute = "/orders"

	// how long a caller racing an identical in-flight request waits for
	// the winner's committed response before getting a 202
	pendingPollInterval = 100 * time.Millisecond
	pendingPollAttempts = 10
)

// HandlerConfig groups dependencies for the orders routes.
type HandlerConfig struct {
	DynamoDBClient aws.DynamoDBAPI
	SQSClient      aws.SQSAPI
	Metrics        *aws.Metrics

	IdempotencyTable string
	OrdersTable      string
	ProductsTable    string
	TenantsTable     string
	CountersTable    string
	ReceiptQueueURL  string

	AdminToken string
	TTLWindow  time.Duration

	Limiter   *ratelimit.Limiter
	Providers *payments.Registry
}

// orderResponse is the POST /orders data payload: the persisted order plus
// whatever the chosen payment method needs from the customer next.
type orderResponse struct {
	orders.Order
	PaymentSession *payments.Session `json:"paymentSession,omitempty"`
}

// RegisterOrdersRoutes registers the order ingestion and admin routes.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	logger := log.WithField("component", "orders_handler")

	idempStore := idempotency.NewStore(cfg.DynamoDBClient, cfg.IdempotencyTable, cfg.TTLWindow)
	orderStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable)
	reader := catalog.NewReader(cfg.DynamoDBClient, cfg.ProductsTable, cfg.TenantsTable)
	invLedger := inventory.NewLedger(cfg.ProductsTable)
	numbers := ordernum.NewGenerator(cfg.DynamoDBClient, cfg.CountersTable)
	receipts := aws.NewReceiptPublisher(cfg.SQSClient, cfg.ReceiptQueueURL)

	h := &ordersHandler{
		cfg:        cfg,
		validate:   v,
		logger:     logger,
		idempStore: idempStore,
		orderStore: orderStore,
		reader:     reader,
		invLedger:  invLedger,
		numbers:    numbers,
		receipts:   receipts,
	}

	r.POST(createOrdersRoute, h.createOrder)
	r.GET("/orders", h.listOrders)
}

type ordersHandler struct {
	cfg        HandlerConfig
	validate   *validatorv10.Validate
	logger     *log.Entry
	idempStore *idempotency.Store
	orderStore *orders.Store
	reader     *catalog.Reader
	invLedger  *inventory.Ledger
	numbers    *ordernum.Generator
	receipts   *aws.ReceiptPublisher
}

func (h *ordersHandler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()
	reqID := requestID(c)

	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		respondError(c, reqID, apperr.Validation("missing X-Tenant-ID header"))
		return
	}

	if h.cfg.Limiter != nil {
		if err := h.cfg.Limiter.Check(c.ClientIP(), "POST:"+createOrdersRoute); err != nil {
			h.cfg.Metrics.Count(ctx, aws.MetricRateLimited, tenantID)
			respondError(c, reqID, err)
			return
		}
	}

	idempKey := c.GetHeader("X-Idempotency-Key")
	if idempKey == "" {
		respondError(c, reqID, apperr.Validation("missing X-Idempotency-Key header"))
		return
	}

	// keep the raw body for hashing; binding consumes the reader
	rawBody, err := c.GetRawData()
	if err != nil {
		respondError(c, reqID, apperr.Validation("unreadable request body"))
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		respondError(c, reqID, err)
		return
	}

	requestHash, err := idempotency.RequestHash(http.MethodPost, createOrdersRoute, rawBody)
	if err != nil {
		respondError(c, reqID, apperr.Validation("request body is not valid JSON"))
		return
	}

	// Reserve before any side effect: the loser of a duplicate-key race
	// fails fast on the uniqueness constraint instead of re-executing.
	ledgerKey := idempotency.LedgerKey(tenantID, http.MethodPost, createOrdersRoute, idempKey)
	outcome, err := h.idempStore.Reserve(ctx, ledgerKey, requestHash)
	if err != nil {
		respondError(c, reqID, err)
		return
	}

	if outcome.State == idempotency.Pending {
		outcome, err = h.awaitPending(ctx, ledgerKey, requestHash)
		if err != nil {
			respondError(c, reqID, err)
			return
		}
	}

	switch outcome.State {
	case idempotency.Replay:
		h.cfg.Metrics.Count(ctx, aws.MetricIdempotentReplay, tenantID)
		c.Data(outcome.ResponseStatus, "application/json", []byte(outcome.ResponseBody))
		return
	case idempotency.Pending:
		respondData(c, reqID, http.StatusAccepted, gin.H{"message": "request already in progress, retry shortly"})
		return
	}

	// Fresh reservation: execute the checkout. The ledger commit rides
	// inside the checkout transaction, so any error means nothing was
	// written; retire the reservation and let the client retry.
	body, status, err := h.executeCheckout(c, tenantID, ledgerKey, reqID, &req)
	if err != nil {
		if ferr := h.idempStore.Fail(ctx, ledgerKey, err.Error()); ferr != nil {
			h.logger.WithError(ferr).WithField("ledger_key", ledgerKey).Error("failed to retire reservation")
		}
		respondError(c, reqID, err)
		return
	}

	c.Data(status, "application/json", body)
}

// executeCheckout runs reprice -> inventory plan -> order number ->
// response render -> transactional create, with the ledger commit riding
// inside the transaction. The committed response body is returned so
// replays are byte-identical.
func (h *ordersHandler) executeCheckout(c *gin.Context, tenantID, ledgerKey, reqID string, req *validation.CreateOrderRequest) ([]byte, int, error) {
	ctx := c.Request.Context()

	tenant, err := h.reader.GetTenant(ctx, tenantID)
	if err != nil {
		h.logger.WithError(err).Error("tenant lookup failed")
		return nil, 0, apperr.Internal("tenant lookup failed")
	}
	if tenant == nil {
		return nil, 0, apperr.NotFound(fmt.Sprintf("tenant %s not found", tenantID))
	}

	var provider payments.Provider
	if req.PaymentMethod != "" {
		p, ok := h.cfg.Providers.Get(req.PaymentMethod)
		if !ok {
			return nil, 0, apperr.Validation(fmt.Sprintf("unknown payment method %q", req.PaymentMethod))
		}
		if !tenant.PaymentMethodEnabled(req.PaymentMethod) {
			return nil, 0, apperr.Validation(fmt.Sprintf("payment method %q is not enabled for this shop", req.PaymentMethod))
		}
		provider = p
	}

	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := h.reader.FindProducts(ctx, tenantID, ids)
	if err != nil {
		h.logger.WithError(err).Error("catalog lookup failed")
		return nil, 0, apperr.Internal("catalog lookup failed")
	}

	items, amounts, err := pricing.Reprice(req.Items, req.Amounts, req.Fulfillment.Type, products, *tenant)
	if err != nil {
		return nil, 0, err
	}

	plan, err := h.invLedger.Plan(tenantID, req.Items, products)
	if err != nil {
		if ae := apperr.From(err); ae.Code == apperr.CodeInsufficientStock {
			h.cfg.Metrics.Count(ctx, aws.MetricInsufficientStock, tenantID)
		}
		return nil, 0, err
	}

	orderNumber, err := h.numbers.Next(ctx, tenantID, tenant.OrderPrefix)
	if err != nil {
		h.logger.WithError(err).Error("order number allocation failed")
		return nil, 0, apperr.Internal("order number allocation failed")
	}

	now := time.Now().UTC()
	order := orders.Order{
		TenantID:           tenantID,
		OrderID:            uuid.NewString(),
		OrderNumber:        orderNumber,
		CustomerName:       req.CustomerName,
		Phone:              req.Phone,
		Email:              req.Email,
		Items:              items,
		Amounts:            amounts,
		Status:             orders.StatusPending,
		PaymentMethod:      req.PaymentMethod,
		PaymentStatus:      orders.PaymentPending,
		FulfillmentType:    req.Fulfillment.Type,
		FulfillmentAddress: req.Fulfillment.Address,
		Note:               req.Note,
		ReceiptStatus:      orders.ReceiptNone,
		CreatedAt:          now,
	}
	if req.PaymentProof != "" {
		order.PaymentStatus = orders.PaymentUploaded
	}
	if req.PaymentMethod != "" {
		order.PaymentAttempts = []orders.PaymentAttempt{{
			Method:    req.PaymentMethod,
			Proof:     req.PaymentProof,
			Status:    order.PaymentStatus,
			CreatedAt: now,
		}}
	}

	// The response is rendered before the transaction because the ledger
	// commit carries it: once the transaction lands there is nothing left
	// to do that could fail the request.
	resp := orderResponse{Order: order}
	if provider != nil {
		session, serr := provider.CreateSession(&order, payments.Config(tenant.PaymentConfigs[provider.ID()]))
		if serr != nil {
			h.logger.WithError(serr).WithField("provider", provider.ID()).Warn("payment session failed")
		} else {
			resp.PaymentSession = session
		}
	}

	body, err := json.Marshal(envelope{OK: true, RequestID: reqID, Data: resp})
	if err != nil {
		return nil, 0, apperr.Internal("response serialization failed")
	}

	labels := make([]string, len(plan))
	for i, dec := range plan {
		labels[i] = dec.Title
	}
	err = h.orderStore.CreateCheckout(ctx, order,
		h.idempStore.CommitItem(ledgerKey, order.OrderID, string(body), http.StatusCreated),
		h.invLedger.TransactItems(plan),
		labels,
	)
	if err != nil {
		if ae := apperr.From(err); ae.Code == apperr.CodeInsufficientStock {
			h.cfg.Metrics.Count(ctx, aws.MetricInsufficientStock, tenantID)
		}
		return nil, 0, err
	}

	if err := h.invLedger.ApplySunsets(ctx, h.cfg.DynamoDBClient, plan); err != nil {
		h.logger.WithError(err).WithField("order_id", order.OrderID).Warn("variant sunset failed")
	}

	// fire-and-forget: the order exists and the ledger is committed, so a
	// receipt enqueue failure is logged, never surfaced to the customer
	if err := h.receipts.Publish(ctx, aws.ReceiptMessage{
		TenantID:      tenantID,
		OrderID:       order.OrderID,
		OrderNumber:   order.OrderNumber,
		CorrelationID: reqID,
	}); err != nil {
		h.logger.WithError(err).WithField("order_id", order.OrderID).Warn("receipt enqueue failed")
	}

	h.cfg.Metrics.Count(ctx, aws.MetricOrderCreated, tenantID)
	h.logger.WithFields(log.Fields{
		"tenant_id":    tenantID,
		"order_id":     order.OrderID,
		"order_number": order.OrderNumber,
	}).Info("order created")

	return body, http.StatusCreated, nil
}

// awaitPending polls briefly for the outcome of the concurrent execution of
// the same logical request, so both callers observe the same order. A winner
// that commits within the budget is replayed; one that already failed left a
// retakeable record, so re-reserve immediately instead of sleeping out the
// rest of the budget. Still IN_PROGRESS after the budget stays Pending.
func (h *ordersHandler) awaitPending(ctx context.Context, ledgerKey, requestHash string) (idempotency.Outcome, error) {
	for i := 0; i < pendingPollAttempts; i++ {
		time.Sleep(pendingPollInterval)
		rec, err := h.idempStore.Get(ctx, ledgerKey)
		if err != nil {
			return idempotency.Outcome{}, apperr.Internal("idempotency lookup failed")
		}
		if rec == nil {
			// record expired mid-poll; compete for a fresh reservation
			return h.idempStore.Reserve(ctx, ledgerKey, requestHash)
		}
		switch rec.Status {
		case idempotency.StatusDone:
			return idempotency.Outcome{
				State:          idempotency.Replay,
				ResponseStatus: rec.ResponseStatus,
				ResponseBody:   rec.ResponseBody,
				OrderID:        rec.OrderID,
			}, nil
		case idempotency.StatusFailed:
			return h.idempStore.Reserve(ctx, ledgerKey, requestHash)
		}
	}
	return idempotency.Outcome{State: idempotency.Pending}, nil
}

func (h *ordersHandler) listOrders(c *gin.Context) {
	ctx := c.Request.Context()
	reqID := requestID(c)

	token := c.GetHeader("X-Admin-Token")
	if token == "" {
		respondError(c, reqID, apperr.AuthMissing("missing admin credential"))
		return
	}
	if token != h.cfg.AdminToken {
		respondError(c, reqID, apperr.AuthInvalid("invalid admin credential"))
		return
	}

	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		respondError(c, reqID, apperr.Validation("missing X-Tenant-ID header"))
		return
	}

	var q validation.ListOrdersQuery
	if err := validation.BindQuery(c, &q, h.validate); err != nil {
		respondError(c, reqID, err)
		return
	}
	if q.Status != "" && !orders.IsValidStatus(q.Status) {
		respondError(c, reqID, apperr.Validation(fmt.Sprintf("unknown status %q", q.Status)))
		return
	}

	list, err := h.orderStore.List(ctx, tenantID, orders.ListFilter{
		Status: q.Status,
		Q:      q.Q,
		Limit:  q.Limit,
	})
	if err != nil {
		h.logger.WithError(err).Error("order listing failed")
		respondError(c, reqID, apperr.Internal("order listing failed"))
		return
	}

	respondData(c, reqID, http.StatusOK, gin.H{"orders": list})
}
