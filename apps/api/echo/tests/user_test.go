package tests

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/shuleapp/shule/core/user"
	testutil "github.com/shuleapp/shule/tests"
)

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	other := testutil.CreateTenant(t, tenantRepo, "Tumaini School", "tumaini.test", true)
	expired := testutil.CreateTenant(t, tenantRepo, "Zamani School", "zamani.test", true, time.Now().Add(-24*time.Hour))

	path := func(search, role string, isActive *bool) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if role != "" {
			v.Add("role", role)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "", user.RoleStudent, true, now.Add(1*time.Hour))
	teacher := testutil.CreateUser(t, usrRepo, tnt.ID, "Teacher", "teacher1", "teacher@umoja.test", "", user.RoleProfessor, true, now.Add(2*time.Hour))
	admin := testutil.CreateUser(t, usrRepo, tnt.ID, "Admin", "umojaadmin", "admin@umoja.test", "", user.RoleAdmin, true, now.Add(3*time.Hour))
	naughty := testutil.CreateUser(t, usrRepo, tnt.ID, "N Dog", "ndoggg", "ndog@umoja.test", "", user.RoleStudent, false, now.Add(4*time.Hour))
	otherAdmin := testutil.CreateUser(t, usrRepo, other.ID, "Other Admin", "otheradmin", "admin@tumaini.test", "", user.RoleAdmin, true, now.Add(5*time.Hour))
	expiredAdmin := testutil.CreateUser(t, usrRepo, expired.ID, "Expired Admin", "zamaniadmin", "admin@zamani.test", "", user.RoleAdmin, true)
	superuser := testutil.CreateSuperuser(t, usrRepo, "Root", "rootuser", "root@shule.test", "")

	adminToken := getToken(t, admin)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "unknown host", path: "/v1/users", host: "nowhere.test", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "tenant not found"}),
		},
		{
			name: "staff required", path: "/v1/users", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "tenant mismatch", path: "/v1/users", token: getToken(t, otherAdmin),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "subscription expired", path: "/v1/users", host: "zamani.test", token: getToken(t, expiredAdmin),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "subscription expired"}),
		},
		{
			name: "get all", path: "/v1/users", token: adminToken,
			wantData: marchallList(t, naughty, admin, teacher, student),
		},
		{
			name: "superuser sees the active tenant", path: "/v1/users", token: getToken(t, superuser, true),
			wantData: marchallList(t, naughty, admin, teacher, student),
		},
		{
			name: "superuser on another host", path: "/v1/users", host: "tumaini.test", token: getToken(t, superuser, true),
			wantData: marchallList(t, otherAdmin),
		},
		// filtering
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: empty},
		{name: "search=her", path: path("her", "", nil), token: adminToken, wantData: marchallList(t, student)},
		{name: "role (unknown)", path: path("", "lol", nil), token: adminToken, wantData: empty},
		{name: "role=student", path: path("", user.RoleStudent, nil), token: adminToken, wantData: marchallList(t, naughty, student)},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{
			name: "role & is_active", path: path("", user.RoleStudent, bPtr(true)), token: adminToken,
			wantData: marchallList(t, student),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.host == "" {
			tt.host = "umoja.test"
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.host, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	admin := testutil.CreateUser(t, usrRepo, tnt.ID, "Admin", "umojaadmin", "admin@umoja.test", "", user.RoleAdmin, true)
	direction := testutil.CreateUser(t, usrRepo, tnt.ID, "Director", "director1", "director@umoja.test", "", user.RoleDirection, true)
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "", user.RoleStudent, true)

	newUser := func(name, uname, email, role string) []byte {
		return marchallObj(t, user.NewUser{
			Name: name, Username: uname, Email: email, Role: role,
			Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		})
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "staff required", token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "second factor required", token: getToken(t, admin), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "verification code required"}),
		},
		{
			name: "required fields", token: getToken(t, admin, true), body: marchallObj(t, user.NewUser{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name": "this field is required", "email": "this field is required",
				"role": "this field is required", "password": "this field is required",
				"password_confirm": "this field is required",
			}),
		},
		{
			name: "cannot grant a role above own", token: getToken(t, direction, true),
			body:     newUser("New Admin", "newadmin1", "newadmin@umoja.test", user.RoleAdmin),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"role": "not enough rights to set this role"}),
		},
		{
			name: "duplicate email", token: getToken(t, admin, true),
			body:     newUser("Copy Cat", "copycat1", student.Email, user.RoleStudent),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
		{
			name: "created", token: getToken(t, admin, true),
			body:     newUser("New Prof", "newprof1", "newprof@umoja.test", user.RoleProfessor),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, "umoja.test", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	app := setup(t)

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	other := testutil.CreateTenant(t, tenantRepo, "Tumaini School", "tumaini.test", true)

	admin := testutil.CreateUser(t, usrRepo, tnt.ID, "Admin", "umojaadmin", "admin@umoja.test", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "", user.RoleStudent, true)
	teacher := testutil.CreateUser(t, usrRepo, tnt.ID, "Teacher", "teacher1", "teacher@umoja.test", "", user.RoleProfessor, true)
	stranger := testutil.CreateUser(t, usrRepo, other.ID, "Stranger", "stranger1", "stranger@tumaini.test", "", user.RoleStudent, true)
	superuser := testutil.CreateSuperuser(t, usrRepo, "Root", "rootuser", "root@shule.test", "")

	studentToken := getToken(t, student)
	adminToken := getToken(t, admin, true)

	tests := []httpTest{
		{
			name: "self retrieve", method: http.MethodGet, path: "/v1/users/" + student.ID, token: studentToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "no peeking at others", method: http.MethodGet, path: "/v1/users/" + teacher.ID, token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "admin retrieves anyone", method: http.MethodGet, path: "/v1/users/" + teacher.ID, token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, teacher),
		},
		// data of another school does not exist here
		{
			name: "cross-tenant target", method: http.MethodGet, path: "/v1/users/" + stranger.ID, token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		// superusers are invisible to tenant staff
		{
			name: "superuser target hidden", method: http.MethodGet, path: "/v1/users/" + superuser.ID, token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "superuser target untouchable", method: http.MethodPut, path: "/v1/users/" + superuser.ID, token: adminToken,
			body:     marchallObj(t, user.UpdateUser{Password: "Hacked12345", PasswordConfirm: "Hacked12345"}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "self update", method: http.MethodPut, path: "/v1/users/" + student.ID, token: studentToken,
			body: marchallObj(t, user.UpdateUser{Name: "Hero Renamed"}), wantCode: http.StatusOK,
		},
		{
			name: "non-admin cannot set role", method: http.MethodPut, path: "/v1/users/" + student.ID, token: studentToken,
			body:     marchallObj(t, user.UpdateUser{Role: user.RoleAdmin}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin cannot delete themselves", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin deletes a user", method: http.MethodDelete, path: "/v1/users/" + teacher.ID, token: adminToken,
			wantCode: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, "umoja.test", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			if tt.wantCode == http.StatusOK && tt.wantData == nil {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
				}
				return
			}
			if tt.wantCode == http.StatusNoContent {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// the superuser's credentials must be untouched
	reloaded, err := usrSvc.GetByID(context.Background(), superuser.ID)
	if err != nil {
		t.Fatalf("GetByID(): %v", err)
	}
	if err = reloaded.CheckPassword("Hacked12345"); err == nil {
		t.Error("a tenant admin must not be able to change a superuser's password")
	}
}

func Test_userApi_destroyMultiple(t *testing.T) {
	app := setup(t)

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	admin := testutil.CreateUser(t, usrRepo, tnt.ID, "Admin", "umojaadmin", "admin@umoja.test", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "", user.RoleStudent, true)
	teacher := testutil.CreateUser(t, usrRepo, tnt.ID, "Teacher", "teacher1", "teacher@umoja.test", "", user.RoleProfessor, true)

	adminToken := getToken(t, admin, true)

	path := func(ids ...string) string {
		v := make(url.Values)
		for _, id := range ids {
			v.Add("id", id)
		}
		return "/v1/users?" + v.Encode()
	}

	tests := []httpTest{
		{
			name: "cannot include self", path: path(student.ID, admin.ID), token: adminToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "deleted", path: path(student.ID, teacher.ID), token: adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, "umoja.test", tt.token)
			app.ServeHTTP(rec, req)
			if tt.wantCode == http.StatusNoContent {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
