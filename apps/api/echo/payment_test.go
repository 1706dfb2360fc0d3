package echoapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/course"
	"github.com/trezcool/malipo/core/enrollment"
	"github.com/trezcool/malipo/core/payment"
	"github.com/trezcool/malipo/core/user"
)

func signHex(msg, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func Test_paymentApi_createOrder(t *testing.T) {
	ts := setupServer(t)
	usr := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})
	token := getToken(t, usr)
	freeCrs := ts.createCourse(t, "Intro", 0)
	paidCrs := ts.createCourse(t, "Go Deep", 499.00)
	ownedCrs := ts.createCourse(t, "Owned", 100.00)
	if _, err := ts.enrRepo.EnsureEnrollment(context.Background(), usr.ID, ownedCrs.ID); err != nil {
		t.Fatalf("EnsureEnrollment() failed: %v", err)
	}

	path := "/v1/payments/create-order"
	tests := []httpTest{
		{name: "no token", method: http.MethodPost, path: path, wantCode: http.StatusUnauthorized,
			body: marchallObj(t, payment.CreateOrderRequest{CourseID: paidCrs.ID}), wantData: marchallObj(t, errMissingToken)},
		{name: "empty body", method: http.MethodPost, path: path, token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echo.Map{"courseId": "this field is required"})},
		{name: "unknown course", method: http.MethodPost, path: path, token: token, wantCode: http.StatusNotFound,
			body: marchallObj(t, payment.CreateOrderRequest{CourseID: uuid.New().String()})},
		{name: "free course", method: http.MethodPost, path: path, token: token, wantCode: http.StatusBadRequest,
			body: marchallObj(t, payment.CreateOrderRequest{CourseID: freeCrs.ID})},
		{name: "already enrolled", method: http.MethodPost, path: path, token: token, wantCode: http.StatusConflict,
			body: marchallObj(t, payment.CreateOrderRequest{CourseID: ownedCrs.ID})},
		{name: "ok", method: http.MethodPost, path: path, token: token, wantCode: http.StatusOK,
			body: marchallObj(t, payment.CreateOrderRequest{CourseID: paidCrs.ID})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ts.app.ServeHTTP(rec, req)

			if tt.name == "ok" {
				assert.Equal(t, tt.wantCode, rec.Code)
				var resp payment.CreateOrderResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshaling response failed: %v", err)
				}
				assert.Equal(t, int64(49900), resp.Amount)
				assert.Equal(t, "INR", resp.Currency)
				assert.Equal(t, ts.gw.KeyID(), resp.KeyID)
				assert.NotEmpty(t, resp.OrderID)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_paymentApi_createOrder_gatewayDown(t *testing.T) {
	ts := setupServer(t)
	usr := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})
	crs := ts.createCourse(t, "Go Deep", 499.00)

	ts.gw.Err = fmt.Errorf("timeout")
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/create-order", getToken(t, usr),
		marchallObj(t, payment.CreateOrderRequest{CourseID: crs.ID}))
	ts.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// startCheckout creates an order via the API and seeds the captured
// gateway payment as the client checkout would.
func (ts *testServer) startCheckout(t *testing.T, token string, courseID string) (payment.CreateOrderResponse, string) {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/create-order", token,
		marchallObj(t, payment.CreateOrderRequest{CourseID: courseID}))
	ts.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("startCheckout() failed: %v %v", rec.Code, rec.Body.String())
	}
	var resp payment.CreateOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("startCheckout() failed: %v", err)
	}
	payID := "pay_" + uuid.New().String()[:8]
	ts.gw.AddPayment(payment.GatewayPayment{
		ID:       payID,
		OrderID:  resp.OrderID,
		Method:   "upi",
		Status:   "captured",
		Amount:   resp.Amount,
		Currency: resp.Currency,
	})
	return resp, payID
}

func Test_paymentApi_verify(t *testing.T) {
	ts := setupServer(t)
	usr := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})
	token := getToken(t, usr)
	crs := ts.createCourse(t, "Go Deep", 499.00)
	ord, payID := ts.startCheckout(t, token, crs.ID)

	// a foreign order carries no domain ids and cannot be settled
	ts.gw.AddOrder(payment.GatewayOrder{ID: "order_foreign", Amount: 100, Currency: "INR"})
	ts.gw.AddPayment(payment.GatewayPayment{ID: "pay_foreign", OrderID: "order_foreign", Status: "captured"})

	path := "/v1/payments/verify"
	tests := []httpTest{
		{name: "no token", method: http.MethodPost, path: path, wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken)},
		{name: "bad signature", method: http.MethodPost, path: path, token: token, wantCode: http.StatusBadRequest,
			body: marchallObj(t, payment.VerifyRequest{
				OrderID: ord.OrderID, PaymentID: payID,
				Signature: signHex(ord.OrderID+"|"+payID, "wrong-secret"),
			}),
			wantData: marchallObj(t, httpErr{Error: "Invalid signature"})},
		{name: "unrecognized order", method: http.MethodPost, path: path, token: token, wantCode: http.StatusBadRequest,
			body: marchallObj(t, payment.VerifyRequest{
				OrderID: "order_foreign", PaymentID: "pay_foreign",
				Signature: signHex("order_foreign|pay_foreign", testAPISecret),
			}),
			wantData: marchallObj(t, httpErr{Error: "Order not found or already processed"})},
		{name: "ok", method: http.MethodPost, path: path, token: token, wantCode: http.StatusOK,
			body: marchallObj(t, payment.VerifyRequest{
				OrderID: ord.OrderID, PaymentID: payID,
				Signature: signHex(ord.OrderID+"|"+payID, testAPISecret),
			})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ts.app.ServeHTTP(rec, req)

			if tt.name == "ok" {
				assert.Equal(t, tt.wantCode, rec.Code)
				var resp VerifyResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshaling response failed: %v", err)
				}
				assert.Equal(t, "Payment verified", resp.Message)
				assert.NotEmpty(t, resp.TransactionID)

				// access was granted
				if _, err := ts.enrRepo.GetEnrollment(context.Background(), usr.ID, crs.ID); err != nil {
					t.Errorf("GetEnrollment() failed: %v", err)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_paymentApi_webhook(t *testing.T) {
	ts := setupServer(t)
	usr := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})
	token := getToken(t, usr)
	crs := ts.createCourse(t, "Go Deep", 499.00)
	ord, payID := ts.startCheckout(t, token, crs.ID)

	captured := marchallObj(t, payment.WebhookEvent{
		Event: "payment.captured",
		Payload: payment.WebhookPayload{
			Payment: payment.WebhookPaymentWrapper{
				Entity: payment.WebhookPaymentEntity{ID: payID, OrderID: ord.OrderID, Method: "upi"},
			},
		},
	})
	ignored := marchallObj(t, payment.WebhookEvent{Event: "order.paid"})

	path := "/v1/payments/webhook"
	tests := []struct {
		name      string
		body      []byte
		signature string
		wantCode  int
		settles   bool
	}{
		{name: "no signature", body: captured, wantCode: http.StatusBadRequest},
		{name: "bad signature", body: captured, signature: signHex(string(captured), "wrong"), wantCode: http.StatusBadRequest},
		{name: "api secret is not the webhook secret", body: captured,
			signature: signHex(string(captured), testAPISecret), wantCode: http.StatusBadRequest},
		{name: "ignored event", body: ignored, signature: signHex(string(ignored), testWebhookSecret), wantCode: http.StatusOK},
		{name: "captured", body: captured, signature: signHex(string(captured), testWebhookSecret),
			wantCode: http.StatusOK, settles: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, path, tt.body)
			if tt.signature != "" {
				req.Header.Set(webhookSignatureHeader, tt.signature)
			}
			ts.app.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, "OK", rec.Body.String())
			}

			pmt, err := ts.pmtRepo.GetPaymentByOrderID(context.Background(), ord.OrderID)
			if err != nil {
				t.Fatalf("GetPaymentByOrderID() failed: %v", err)
			}
			if tt.settles {
				assert.Equal(t, payment.StatusSuccess, pmt.Status)
			} else {
				assert.Equal(t, payment.StatusPending, pmt.Status)
			}
		})
	}
}

func Test_paymentApi_webhook_retryOnGatewayFailure(t *testing.T) {
	ts := setupServer(t)
	usr := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})
	token := getToken(t, usr)
	crs := ts.createCourse(t, "Go Deep", 499.00)
	ord, payID := ts.startCheckout(t, token, crs.ID)

	body := marchallObj(t, payment.WebhookEvent{
		Event: "payment.captured",
		Payload: payment.WebhookPayload{
			Payment: payment.WebhookPaymentWrapper{
				Entity: payment.WebhookPaymentEntity{ID: payID, OrderID: ord.OrderID, Method: "upi"},
			},
		},
	})

	// a non-2xx response makes the gateway redeliver later
	ts.gw.Err = fmt.Errorf("timeout")
	req, rec := newRequest(http.MethodPost, "/v1/payments/webhook", body)
	req.Header.Set(webhookSignatureHeader, signHex(string(body), testWebhookSecret))
	ts.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// redelivery after recovery settles
	ts.gw.Err = nil
	req, rec = newRequest(http.MethodPost, "/v1/payments/webhook", body)
	req.Header.Set(webhookSignatureHeader, signHex(string(body), testWebhookSecret))
	ts.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_paymentApi_query(t *testing.T) {
	ts := setupServer(t)
	usr := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})
	other := ts.createUser(t, "Other", "other@test.test", "pwd", []string{user.RoleStudent})
	token := getToken(t, usr)
	crs := ts.createCourse(t, "Go Deep", 499.00)

	ord, payID := ts.startCheckout(t, token, crs.ID)
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/verify", token,
		marchallObj(t, payment.VerifyRequest{
			OrderID: ord.OrderID, PaymentID: payID,
			Signature: signHex(ord.OrderID+"|"+payID, testAPISecret),
		}))
	ts.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %v %v", rec.Code, rec.Body.String())
	}

	// own listing only
	req, rec = newAuthRequest(http.MethodGet, "/v1/payments?status=success", token)
	ts.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var pmts []payment.Payment
	if err := json.Unmarshal(rec.Body.Bytes(), &pmts); err != nil {
		t.Fatalf("unmarshaling response failed: %v", err)
	}
	if assert.Len(t, pmts, 1) {
		assert.Equal(t, usr.ID, pmts[0].UserID)
	}

	// other user sees nothing
	req, rec = newAuthRequest(http.MethodGet, "/v1/payments", getToken(t, other))
	ts.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func Test_paymentApi_admin(t *testing.T) {
	ts := setupServer(t)
	student := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})
	admin := ts.createUser(t, "Admin", "admin@test.test", "pwd", []string{user.RoleAdmin})
	studentToken, adminToken := getToken(t, student), getToken(t, admin)
	crs := ts.createCourse(t, "Go Deep", 499.00)

	ord, payID := ts.startCheckout(t, studentToken, crs.ID)
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/verify", studentToken,
		marchallObj(t, payment.VerifyRequest{
			OrderID: ord.OrderID, PaymentID: payID,
			Signature: signHex(ord.OrderID+"|"+payID, testAPISecret),
		}))
	ts.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %v %v", rec.Code, rec.Body.String())
	}

	tests := []httpTest{
		{name: "list: student forbidden", method: http.MethodGet, path: "/v1/payments/admin",
			token: studentToken, wantCode: http.StatusForbidden},
		{name: "revenue: student forbidden", method: http.MethodGet, path: "/v1/payments/admin/revenue",
			token: studentToken, wantCode: http.StatusForbidden},
		{name: "list: admin ok", method: http.MethodGet, path: "/v1/payments/admin",
			token: adminToken, wantCode: http.StatusOK},
		{name: "revenue: admin ok", method: http.MethodGet, path: "/v1/payments/admin/revenue",
			token: adminToken, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ts.app.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)

			if tt.wantCode != http.StatusOK {
				return
			}
			if tt.name == "revenue: admin ok" {
				var report payment.RevenueReport
				if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
					t.Fatalf("unmarshaling response failed: %v", err)
				}
				assert.Equal(t, 499.00, report.Total)
			} else {
				var pmts []payment.Payment
				if err := json.Unmarshal(rec.Body.Bytes(), &pmts); err != nil {
					t.Fatalf("unmarshaling response failed: %v", err)
				}
				assert.Len(t, pmts, 1)
			}
		})
	}
}

func Test_paymentApi_notConfigured(t *testing.T) {
	ts := setupServer(t)
	usr := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})
	crs := ts.createCourse(t, "Go Deep", 499.00)

	// rebuild the server without gateway credentials; the webhook secret
	// alone may already be deployed
	conf := *core.Conf
	conf.Razorpay = core.RazorpayConfig{WebhookSecret: testWebhookSecret}
	pmtSvc := payment.NewService(nil, ts.pmtRepo, ts.enrRepo, ts.crsRepo, ts.usrRepo, nil, &conf)
	validate := validator.New()
	translator := newTestTranslator(t)
	core.InitValidators(validate, translator)
	app := NewServer(&Options{
		DisableReqLogs: true,
		UserSvc:        ts.usrSvc,
		CourseSvc:      course.NewService(ts.crsRepo),
		EnrollmentSvc:  enrollment.NewService(ts.enrRepo, ts.crsRepo),
		PaymentSvc:     pmtSvc,
		Validate:       validate,
		Translator:     translator,
	})

	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/create-order", getToken(t, usr),
		marchallObj(t, payment.CreateOrderRequest{CourseID: crs.ID}))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// an unsigned webhook fails closed rather than bypassing verification
	body := marchallObj(t, payment.WebhookEvent{Event: "payment.captured"})
	req, rec = newRequest(http.MethodPost, "/v1/payments/webhook", body)
	req.Header.Set(webhookSignatureHeader, signHex(string(body), ""))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// a correctly-signed captured delivery cannot settle without the
	// gateway; 503 makes the sender redeliver once it is configured
	body = marchallObj(t, payment.WebhookEvent{
		Event: "payment.captured",
		Payload: payment.WebhookPayload{
			Payment: payment.WebhookPaymentWrapper{
				Entity: payment.WebhookPaymentEntity{ID: "pay_x", OrderID: "order_x", Method: "card"},
			},
		},
	})
	req, rec = newRequest(http.MethodPost, "/v1/payments/webhook", body)
	req.Header.Set(webhookSignatureHeader, signHex(string(body), testWebhookSecret))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
