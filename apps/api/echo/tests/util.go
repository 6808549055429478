package tests

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/shuleapp/shule/apps/api/echo"
	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
	logsvc "github.com/shuleapp/shule/services/logger"
	"github.com/shuleapp/shule/storage/cache"
	inmemdb "github.com/shuleapp/shule/storage/database/inmem"
	testutil "github.com/shuleapp/shule/tests"
)

var (
	conf *core.Config
	cch  core.Cache

	tenantRepo tenant.Repository
	usrRepo    user.Repository
	eventRepo  event.Repository
	libRepo    library.Repository

	usrSvc *user.Service

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

// setup builds a fresh in-memory server; each test function gets its
// own data partition.
func setup(t *testing.T) Server {
	t.Helper()

	conf = testutil.NewConfig()
	cch = cache.NewInMem()

	db := inmemdb.NewDB()
	tenantRepo = inmemdb.NewTenantRepository(db)
	usrRepo = inmemdb.NewUserRepository(db)
	eventRepo = inmemdb.NewEventRepository(db)
	libRepo = inmemdb.NewLibraryRepository(db)

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags), conf)

	tenantSvc := tenant.NewService(tenantRepo, cch)
	usrSvc = user.NewService(conf, usrRepo, nil, cch)
	eventSvc := event.NewService(eventRepo)
	librarySvc := library.NewService(libRepo)

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	return NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Cache:      cch,
		TenantSvc:  tenantSvc,
		UserSvc:    usrSvc,
		EventSvc:   eventSvc,
		LibrarySvc: librarySvc,
		Validate:   validate,
		Translator: translator,
	})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	host     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, host, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Host = host
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path, host string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, host, "", data...)
}

func getToken(t *testing.T, usr user.User, otpVerified ...bool) string {
	verified := false
	if len(otpVerified) > 0 {
		verified = otpVerified[0]
	}
	claims := GetUserClaims(conf, usr, verified)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
