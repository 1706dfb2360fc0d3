package echoapi

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/course"
	"github.com/trezcool/malipo/core/enrollment"
	"github.com/trezcool/malipo/core/payment"
	"github.com/trezcool/malipo/core/user"
	emailsvc "github.com/trezcool/malipo/services/email"
	gatewaysvc "github.com/trezcool/malipo/services/gateway"
	logsvc "github.com/trezcool/malipo/services/logger"
	dummydb "github.com/trezcool/malipo/storage/database/dummy"
	testutil "github.com/trezcool/malipo/tests"
)

const (
	testAPISecret     = "test-api-secret"
	testWebhookSecret = "test-webhook-secret"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

type testServer struct {
	app Server

	usrSvc *user.Service
	gw     *gatewaysvc.DummyService

	usrRepo user.Repository
	crsRepo course.Repository
	enrRepo enrollment.Repository
	pmtRepo payment.Repository
}

func setupServer(t *testing.T) *testServer {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setupServer() failed: %v", err)
	}

	ts := &testServer{
		gw:      gatewaysvc.NewDummyService(),
		usrRepo: dummydb.NewUserRepository(db),
		crsRepo: dummydb.NewCourseRepository(db),
		enrRepo: dummydb.NewEnrollmentRepository(db),
		pmtRepo: dummydb.NewPaymentRepository(db),
	}

	conf := *core.Conf
	conf.Razorpay = core.RazorpayConfig{
		KeyID:         ts.gw.KeyID(),
		KeySecret:     testAPISecret,
		WebhookSecret: testWebhookSecret,
	}

	mailSvc := emailsvc.NewSilentService()
	ts.usrSvc = user.NewService(ts.usrRepo)
	crsSvc := course.NewService(ts.crsRepo)
	enrSvc := enrollment.NewService(ts.enrRepo, ts.crsRepo)
	pmtSvc := payment.NewService(ts.gw, ts.pmtRepo, ts.enrRepo, ts.crsRepo, ts.usrRepo, mailSvc, &conf)

	validate := validator.New()
	translator := newTestTranslator(t)
	core.InitValidators(validate, translator)

	ts.app = NewServer(&Options{
		DisableReqLogs: true,
		UserSvc:        ts.usrSvc,
		CourseSvc:      crsSvc,
		EnrollmentSvc:  enrSvc,
		PaymentSvc:     pmtSvc,
		Logger:         logsvc.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags)),
		Validate:       validate,
		Translator:     translator,
	})
	return ts
}

func newTestTranslator(t *testing.T) ut.Translator {
	translator, err := core.NewTranslator()
	if err != nil {
		t.Fatalf("newTestTranslator() failed: %v", err)
	}
	return translator
}

func (ts *testServer) createUser(t *testing.T, name, email, pwd string, roles []string) user.User {
	return testutil.CreateUser(t, ts.usrRepo, name, "", email, pwd, roles, true)
}

func (ts *testServer) createCourse(t *testing.T, title string, price float64) course.Course {
	return testutil.CreateCourse(t, ts.crsRepo, title, price)
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
