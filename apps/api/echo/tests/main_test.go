package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shuleapp/shule/core/user"
	testutil "github.com/shuleapp/shule/tests"
)

func Test_home(t *testing.T) {
	app := setup(t)

	// the landing page needs no tenant
	req, rec := newRequest(http.MethodGet, "/", "nowhere.test")
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v", rec.Code)
	}
	if want := "Welcome to Shule API!"; rec.Body.String() != want {
		t.Errorf("failed! body = %q; want %q", rec.Body.String(), want)
	}
}

func Test_rateLimit(t *testing.T) {
	app := setup(t)
	conf.Server.RateLimitMax = 2

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "LolC@t123", user.RoleStudent, true)

	body := marchallObj(t, map[string]string{"username": "heroine", "password": "nope nope"})
	for i := 0; i < 2; i++ {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login", "umoja.test", body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	}

	// window full; the client has to back off
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", "umoja.test", body)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusTooManyRequests,
		wantData: marchallObj(t, httpErr{Error: "too many requests"}),
	}, rec)

	// only credential endpoints are throttled
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Calm", "calmdown1", "calm@umoja.test", "", user.RoleStudent, true)
	token := getToken(t, student)
	for i := 0; i < 5; i++ {
		req, rec = newAuthRequest(http.MethodGet, "/v1/events", "umoja.test", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	}
}

func Test_staleTokens(t *testing.T) {
	app := setup(t)

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "", user.RoleStudent, true)
	goner := testutil.CreateUser(t, usrRepo, tnt.ID, "Goner", "gonesoon1", "goner@umoja.test", "", user.RoleStudent, true)
	studentToken := getToken(t, student)
	gonerToken := getToken(t, goner)

	// tokens issued before a deactivation stop working immediately
	inactive := false
	student.UpdatedAt = time.Now().UTC()
	if _, err := usrRepo.UpdateUser(context.Background(), student, &inactive); err != nil {
		t.Fatalf("UpdateUser(): %v", err)
	}
	req, rec := newAuthRequest(http.MethodGet, "/v1/events", "umoja.test", studentToken)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusForbidden,
		wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
	}, rec)

	// a token for a deleted user is just an invalid credential, not a server error
	if err := usrRepo.DeleteUsersByID(context.Background(), tnt.ID, goner.ID); err != nil {
		t.Fatalf("DeleteUsersByID(): %v", err)
	}
	req, rec = newAuthRequest(http.MethodGet, "/v1/events", "umoja.test", gonerToken)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusUnauthorized,
		wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
	}, rec)
}
