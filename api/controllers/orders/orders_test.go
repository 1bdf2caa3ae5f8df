package orders

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pharmacy-backend/api/middleware"
	internalorders "github.com/angelmondragon/pharmacy-backend/internal/orders"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

type stubOrdersService struct {
	transition func(ctx context.Context, input internalorders.TransitionInput) (*internalorders.OrderDTO, error)
	get        func(ctx context.Context, id uuid.UUID) (*internalorders.OrderDetail, error)
	list       func(ctx context.Context, params internalorders.ListParams) (*internalorders.ListResult, error)
}

func (s *stubOrdersService) Transition(ctx context.Context, input internalorders.TransitionInput) (*internalorders.OrderDTO, error) {
	if s.transition != nil {
		return s.transition(ctx, input)
	}
	return &internalorders.OrderDTO{ID: input.OrderID, Status: input.Target}, nil
}

func (s *stubOrdersService) Get(ctx context.Context, id uuid.UUID) (*internalorders.OrderDetail, error) {
	if s.get != nil {
		return s.get(ctx, id)
	}
	return &internalorders.OrderDetail{OrderDTO: internalorders.OrderDTO{ID: id}}, nil
}

func (s *stubOrdersService) List(ctx context.Context, params internalorders.ListParams) (*internalorders.ListResult, error) {
	if s.list != nil {
		return s.list(ctx, params)
	}
	return &internalorders.ListResult{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func newTransitionRequest(orderID uuid.UUID, staffID uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/transition", strings.NewReader(body))
	req = req.WithContext(middleware.WithStaffID(req.Context(), staffID))
	return withOrderParam(req, orderID.String())
}

func TestListPassesFilters(t *testing.T) {
	clientID := uuid.New()
	var got internalorders.ListParams
	svc := &stubOrdersService{list: func(_ context.Context, params internalorders.ListParams) (*internalorders.ListResult, error) {
		got = params
		return &internalorders.ListResult{NextCursor: "abc"}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=in_preparation&client_id="+clientID.String()+"&limit=10&cursor=xyz", nil)
	resp := httptest.NewRecorder()
	List(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.Filter.Status == nil || *got.Filter.Status != enums.OrderStatusInPreparation {
		t.Fatalf("unexpected status filter %v", got.Filter.Status)
	}
	if got.Filter.ClientID == nil || *got.Filter.ClientID != clientID {
		t.Fatalf("unexpected client filter %v", got.Filter.ClientID)
	}
	if got.Limit != 10 || got.Cursor != "xyz" {
		t.Fatalf("unexpected pagination %+v", got.Params)
	}
	if !strings.Contains(resp.Body.String(), `"next_cursor":"abc"`) {
		t.Fatalf("missing cursor in %s", resp.Body.String())
	}
}

func TestListRejectsBadFilters(t *testing.T) {
	for _, query := range []string{"?status=shipped", "?client_id=nope", "?limit=1000"} {
		resp := httptest.NewRecorder()
		List(&stubOrdersService{}, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders"+query, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", query, resp.Code)
		}
	}
}

func TestDetailNotFound(t *testing.T) {
	svc := &stubOrdersService{get: func(context.Context, uuid.UUID) (*internalorders.OrderDetail, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}}
	id := uuid.NewString()
	req := withOrderParam(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil), id)
	resp := httptest.NewRecorder()
	Detail(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestDetailInvalidID(t *testing.T) {
	req := withOrderParam(httptest.NewRequest(http.MethodGet, "/api/v1/orders/bad", nil), "bad")
	resp := httptest.NewRecorder()
	Detail(&stubOrdersService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestTransitionBuildsInput(t *testing.T) {
	orderID := uuid.New()
	staffID := uuid.New()
	agentID := uuid.New()
	var got internalorders.TransitionInput
	svc := &stubOrdersService{transition: func(_ context.Context, input internalorders.TransitionInput) (*internalorders.OrderDTO, error) {
		got = input
		return &internalorders.OrderDTO{ID: input.OrderID, Status: input.Target}, nil
	}}

	body := `{"status":"ready_for_delivery","delivery_agent_id":"` + agentID.String() + `"}`
	resp := httptest.NewRecorder()
	Transition(svc, testLogger())(resp, newTransitionRequest(orderID, staffID, body))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.OrderID != orderID || got.ActorID != staffID || got.Target != enums.OrderStatusReadyForDelivery {
		t.Fatalf("unexpected input %+v", got)
	}
	if got.DeliveryAgentID == nil || *got.DeliveryAgentID != agentID {
		t.Fatalf("unexpected delivery agent %v", got.DeliveryAgentID)
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	resp := httptest.NewRecorder()
	Transition(&stubOrdersService{}, testLogger())(resp, newTransitionRequest(uuid.New(), uuid.New(), `{"status":"shipped"}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestTransitionInvalidMoveIsUnprocessable(t *testing.T) {
	svc := &stubOrdersService{transition: func(context.Context, internalorders.TransitionInput) (*internalorders.OrderDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot move order from completed to cancelled")
	}}
	resp := httptest.NewRecorder()
	Transition(svc, testLogger())(resp, newTransitionRequest(uuid.New(), uuid.New(), `{"status":"cancelled","reason":"client changed mind"}`))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestTransitionRequiresStaff(t *testing.T) {
	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/transition", strings.NewReader(`{"status":"completed"}`))
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	Transition(&stubOrdersService{}, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
