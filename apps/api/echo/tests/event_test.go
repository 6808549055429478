package tests

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/user"
	testutil "github.com/shuleapp/shule/tests"
)

func Test_eventApi_query(t *testing.T) {
	app := setup(t)

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	other := testutil.CreateTenant(t, tenantRepo, "Tumaini School", "tumaini.test", true)
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "", user.RoleStudent, true)

	now := time.Now().UTC()
	exams := testutil.CreateEvent(t, eventRepo, tnt.ID, "Exams", now.AddDate(0, 0, 21), event.AudienceStudents, true)
	meeting := testutil.CreateEvent(t, eventRepo, tnt.ID, "Parents' evening", now.AddDate(0, 0, 7), event.AudienceParents, true)
	testutil.CreateEvent(t, eventRepo, other.ID, "Other school gala", now.AddDate(0, 0, 7), event.AudienceAll, false)

	path := func(from, to time.Time) string {
		v := make(url.Values)
		if !from.IsZero() {
			v.Add("from", from.Format(time.RFC3339))
		}
		if !to.IsZero() {
			v.Add("to", to.Format(time.RFC3339))
		}
		return "/v1/events?" + v.Encode()
	}

	token := getToken(t, student)
	tests := []httpTest{
		{name: "auth required", path: "/v1/events", token: "", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		// soonest first, never another school's events
		{name: "all events", path: "/v1/events", wantData: marchallList(t, meeting, exams)},
		{name: "window excludes", path: path(now.AddDate(0, 0, 10), time.Time{}), wantData: marchallList(t, exams)},
		{name: "window bounds", path: path(now, now.AddDate(0, 0, 10)), wantData: marchallList(t, meeting)},
		{name: "empty window", path: path(now.AddDate(0, 1, 0), now.AddDate(0, 2, 0)), wantData: marchallList(t, []interface{}{}...)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
			tt.token = token
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, "umoja.test", tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_eventApi_manage(t *testing.T) {
	app := setup(t)

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "", user.RoleStudent, true)
	teacher := testutil.CreateUser(t, usrRepo, tnt.ID, "Teacher", "teacher1", "teacher@umoja.test", "", user.RoleProfessor, true)
	director := testutil.CreateUser(t, usrRepo, tnt.ID, "Director", "director1", "director@umoja.test", "", user.RoleDirection, true)

	teacherToken := getToken(t, teacher, true)
	starts := time.Now().UTC().AddDate(0, 0, 14).Truncate(time.Second)

	// students cannot announce events
	req, rec := newAuthRequest(http.MethodPost, "/v1/events", "umoja.test", getToken(t, student),
		marchallObj(t, event.NewEvent{Title: "Party", StartsAt: starts}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)

	// staff without the second factor cannot either
	req, rec = newAuthRequest(http.MethodPost, "/v1/events", "umoja.test", getToken(t, teacher),
		marchallObj(t, event.NewEvent{Title: "Party", StartsAt: starts}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "verification code required"})}, rec)

	// create
	req, rec = newAuthRequest(http.MethodPost, "/v1/events", "umoja.test", teacherToken,
		marchallObj(t, event.NewEvent{Title: "Science fair", StartsAt: starts, TargetAudience: event.AudienceStudents}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var created event.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if created.CreatedBy != teacher.ID {
		t.Errorf("created_by = %q; want %q", created.CreatedBy, teacher.ID)
	}
	if !created.SendReminder {
		t.Error("reminders must default to on")
	}

	// update
	req, rec = newAuthRequest(http.MethodPut, "/v1/events/"+created.ID, "umoja.test", teacherToken,
		marchallObj(t, event.UpdateEvent{Location: "Main hall"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var updated event.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if updated.Location != "Main hall" {
		t.Errorf("location = %q; want %q", updated.Location, "Main hall")
	}
	if updated.Title != created.Title {
		t.Errorf("title = %q; want it unchanged", updated.Title)
	}

	// professors cannot delete events
	req, rec = newAuthRequest(http.MethodDelete, "/v1/events/"+created.ID, "umoja.test", teacherToken)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)

	// the direction can
	req, rec = newAuthRequest(http.MethodDelete, "/v1/events/"+created.ID, "umoja.test", getToken(t, director, true))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	// gone
	req, rec = newAuthRequest(http.MethodGet, "/v1/events/"+created.ID, "umoja.test", teacherToken)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
}
