package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/api/middleware"
	internalorders "github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/pagination"
)

type stubService struct {
	createInput  *internalorders.CreateOrderInput
	advanceInput *internalorders.AdvanceInput
	cancelInput  *internalorders.CancelInput
	receiptInput *internalorders.ConfirmReceiptInput
	designInput  *internalorders.AttachDesignInput
	order        *models.Order
	err          error
}

func (s *stubService) Create(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
	s.createInput = &input
	return s.order, s.err
}

func (s *stubService) Advance(ctx context.Context, input internalorders.AdvanceInput) (*models.Order, error) {
	s.advanceInput = &input
	return s.order, s.err
}

func (s *stubService) Cancel(ctx context.Context, input internalorders.CancelInput) (*models.Order, error) {
	s.cancelInput = &input
	return s.order, s.err
}

func (s *stubService) ConfirmReceipt(ctx context.Context, input internalorders.ConfirmReceiptInput) (*models.Order, error) {
	s.receiptInput = &input
	return s.order, s.err
}

func (s *stubService) AttachDesign(ctx context.Context, input internalorders.AttachDesignInput) error {
	s.designInput = &input
	return s.err
}

type stubRepo struct {
	order          *models.Order
	listFilters    *internalorders.Filters
	listUserID     *uuid.UUID
	list           *internalorders.OrderList
	findErr        error
	listErr        error
	receivedParams pagination.Params
}

func (r *stubRepo) WithTx(tx *gorm.DB) internalorders.Repository { return r }

func (r *stubRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (r *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.order, r.findErr
}

func (r *stubRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if r.order == nil || r.order.OrderNumber != orderNumber {
		return nil, gorm.ErrRecordNotFound
	}
	return r.order, nil
}

func (r *stubRepo) List(ctx context.Context, params pagination.Params, filters internalorders.Filters) (*internalorders.OrderList, error) {
	r.receivedParams = params
	r.listFilters = &filters
	return r.list, r.listErr
}

func (r *stubRepo) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters internalorders.Filters) (*internalorders.OrderList, error) {
	r.receivedParams = params
	r.listUserID = &userID
	r.listFilters = &filters
	return r.list, r.listErr
}

func (r *stubRepo) UpdateGuarded(ctx context.Context, orderID uuid.UUID, guard internalorders.StatusGuard, updates map[string]any) (bool, error) {
	return false, nil
}

func (r *stubRepo) UpdateItemDesignURL(ctx context.Context, itemID uuid.UUID, designURL string) error {
	return nil
}

func (r *stubRepo) FindAwaitingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (r *stubRepo) FindShippedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func sampleOrder(userID uuid.UUID) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "TC-20250901-4821",
		UserID:        userID,
		CustomerEmail: "customer@example.com",
		TotalAmount:   650000,
		PaymentMethod: enums.PaymentMethodVNPay,
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusAwaitingPayment,
		CreatedAt:     time.Now(),
	}
}

func actorRequest(method, target string, body []byte, userID uuid.UUID, role enums.MemberRole) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.WithActor(req.Context(), userID, "customer@example.com", role))
}

func mount(pattern, method string, handler http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, handler)
	return r
}

func TestCreateOrder(t *testing.T) {
	userID := uuid.New()
	svc := &stubService{order: sampleOrder(userID)}

	body, _ := json.Marshal(map[string]any{
		"payment_method": "vnpay",
		"shipping_address": map[string]string{
			"full_name": "Nguyen Van A",
			"phone":     "0901234567",
			"line1":     "12 Le Loi",
			"city":      "Ho Chi Minh City",
		},
		"items": []map[string]any{
			{"name": "Classic Tee", "size": "M", "quantity": 2, "unit_price": 250000},
		},
		"shipping_fee": 30000,
	})

	router := mount("/api/v1/orders", http.MethodPost, Create(svc, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/orders", body, userID, enums.MemberRoleCustomer))

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.createInput)
	assert.Equal(t, userID, svc.createInput.UserID)
	assert.Equal(t, "customer@example.com", svc.createInput.CustomerEmail)
	assert.Equal(t, enums.PaymentMethodVNPay, svc.createInput.PaymentMethod)
	require.Len(t, svc.createInput.Items, 1)
	assert.Equal(t, int64(250000), svc.createInput.Items[0].UnitPrice)
	assert.Contains(t, rec.Body.String(), "TC-20250901-4821")
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	svc := &stubService{}
	body, _ := json.Marshal(map[string]any{
		"payment_method": "cod",
		"shipping_address": map[string]string{
			"full_name": "Nguyen Van A",
			"phone":     "0901234567",
			"line1":     "12 Le Loi",
			"city":      "Ho Chi Minh City",
		},
		"items": []map[string]any{},
	})

	router := mount("/api/v1/orders", http.MethodPost, Create(svc, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/orders", body, uuid.New(), enums.MemberRoleCustomer))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.createInput)
}

func TestDetailOwnership(t *testing.T) {
	owner := uuid.New()
	repo := &stubRepo{order: sampleOrder(owner)}
	router := mount("/api/v1/orders/{orderNumber}", http.MethodGet, Detail(repo, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodGet, "/api/v1/orders/TC-20250901-4821", nil, owner, enums.MemberRoleCustomer))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A different customer gets not-found rather than forbidden.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodGet, "/api/v1/orders/TC-20250901-4821", nil, uuid.New(), enums.MemberRoleCustomer))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Staff can read any order.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodGet, "/api/v1/orders/TC-20250901-4821", nil, uuid.New(), enums.MemberRoleStaff))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListMinePassesFilters(t *testing.T) {
	userID := uuid.New()
	repo := &stubRepo{list: &internalorders.OrderList{}}
	router := mount("/api/v1/orders", http.MethodGet, ListMine(repo, nil))

	rec := httptest.NewRecorder()
	target := "/api/v1/orders?limit=10&status=delivered&payment_method=cod&q=tee"
	router.ServeHTTP(rec, actorRequest(http.MethodGet, target, nil, userID, enums.MemberRoleCustomer))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, repo.listUserID)
	assert.Equal(t, userID, *repo.listUserID)
	assert.Equal(t, 10, repo.receivedParams.Limit)
	require.NotNil(t, repo.listFilters.OrderStatus)
	assert.Equal(t, enums.OrderStatusDelivered, *repo.listFilters.OrderStatus)
	require.NotNil(t, repo.listFilters.PaymentMethod)
	assert.Equal(t, enums.PaymentMethodCOD, *repo.listFilters.PaymentMethod)
	assert.Equal(t, "tee", repo.listFilters.Query)
}

func TestStaffListRejectsBadFilter(t *testing.T) {
	repo := &stubRepo{list: &internalorders.OrderList{}}
	router := mount("/api/v1/staff/orders", http.MethodGet, StaffList(repo, nil))

	rec := httptest.NewRecorder()
	target := "/api/v1/staff/orders?status=teleported"
	router.ServeHTTP(rec, actorRequest(http.MethodGet, target, nil, uuid.New(), enums.MemberRoleStaff))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, repo.listFilters)
}

func TestAdvanceOrder(t *testing.T) {
	staffID := uuid.New()
	svc := &stubService{order: sampleOrder(uuid.New())}
	router := mount("/api/v1/staff/orders/{orderNumber}/advance", http.MethodPost, Advance(svc, nil))

	body, _ := json.Marshal(map[string]any{"target": "shipped", "tracking_number": "GHN123", "note": "handed to courier"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/staff/orders/TC-20250901-4821/advance", body, staffID, enums.MemberRoleStaff))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.advanceInput)
	assert.Equal(t, "TC-20250901-4821", svc.advanceInput.OrderNumber)
	assert.Equal(t, enums.OrderStatusShipped, svc.advanceInput.Target)
	require.NotNil(t, svc.advanceInput.TrackingNumber)
	assert.Equal(t, "GHN123", *svc.advanceInput.TrackingNumber)
}

func TestAdvanceRejectsUnknownTarget(t *testing.T) {
	svc := &stubService{}
	router := mount("/api/v1/staff/orders/{orderNumber}/advance", http.MethodPost, Advance(svc, nil))

	body, _ := json.Marshal(map[string]any{"target": "warehouse"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/staff/orders/TC-1/advance", body, uuid.New(), enums.MemberRoleStaff))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.advanceInput)
}

func TestCustomerCancelCarriesOwnership(t *testing.T) {
	userID := uuid.New()
	svc := &stubService{order: sampleOrder(userID)}
	router := mount("/api/v1/orders/{orderNumber}/cancel", http.MethodPost, CustomerCancel(svc, nil))

	body, _ := json.Marshal(map[string]any{"reason": "changed my mind"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/orders/TC-20250901-4821/cancel", body, userID, enums.MemberRoleCustomer))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.cancelInput)
	require.NotNil(t, svc.cancelInput.ActorUserID)
	assert.Equal(t, userID, *svc.cancelInput.ActorUserID)
	assert.Equal(t, "changed my mind", svc.cancelInput.Reason)
}

func TestStaffCancelHasNoOwnershipCheck(t *testing.T) {
	svc := &stubService{order: sampleOrder(uuid.New())}
	router := mount("/api/v1/staff/orders/{orderNumber}/cancel", http.MethodPost, StaffCancel(svc, nil))

	body, _ := json.Marshal(map[string]any{"reason": "stock damaged"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/staff/orders/TC-20250901-4821/cancel", body, uuid.New(), enums.MemberRoleStaff))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.cancelInput)
	assert.Nil(t, svc.cancelInput.ActorUserID)
}

func TestConfirmReceipt(t *testing.T) {
	userID := uuid.New()
	svc := &stubService{order: sampleOrder(userID)}
	router := mount("/api/v1/orders/{orderNumber}/confirm-receipt", http.MethodPost, ConfirmReceipt(svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/orders/TC-20250901-4821/confirm-receipt", nil, userID, enums.MemberRoleCustomer))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.receiptInput)
	assert.Equal(t, userID, svc.receiptInput.UserID)
}

func TestAttachDesign(t *testing.T) {
	userID := uuid.New()
	itemID := uuid.New()
	svc := &stubService{}
	router := mount("/api/v1/orders/{orderNumber}/design", http.MethodPost, AttachDesign(svc, nil))

	body, _ := json.Marshal(map[string]any{"item_id": itemID.String(), "design_url": "https://cdn.example.com/art.png"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/orders/TC-20250901-4821/design", body, userID, enums.MemberRoleCustomer))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.designInput)
	assert.Equal(t, itemID, svc.designInput.ItemID)
	assert.Equal(t, "https://cdn.example.com/art.png", svc.designInput.DesignURL)
}

func TestServiceErrorsPropagate(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order already shipped")}
	router := mount("/api/v1/orders/{orderNumber}/cancel", http.MethodPost, CustomerCancel(svc, nil))

	body, _ := json.Marshal(map[string]any{"reason": "too late"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/orders/TC-20250901-4821/cancel", body, uuid.New(), enums.MemberRoleCustomer))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "order already shipped")
}
