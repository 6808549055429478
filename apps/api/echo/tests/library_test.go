package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/user"
	testutil "github.com/shuleapp/shule/tests"
)

func Test_libraryApi_books(t *testing.T) {
	app := setup(t)

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	other := testutil.CreateTenant(t, tenantRepo, "Tumaini School", "tumaini.test", true)
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "", user.RoleStudent, true)
	teacher := testutil.CreateUser(t, usrRepo, tnt.ID, "Teacher", "teacher1", "teacher@umoja.test", "", user.RoleProfessor, true)

	things := testutil.CreateBook(t, libRepo, tnt.ID, "Things Fall Apart", "Chinua Achebe", 3)
	history := testutil.CreateBook(t, libRepo, tnt.ID, "A Brief History of Time", "Stephen Hawking", 1)
	hidden := testutil.CreateBook(t, libRepo, other.ID, "Not Yours", "Someone Else", 1)

	studentToken := getToken(t, student)

	tests := []httpTest{
		{name: "auth required", path: "/v1/library/books", token: "", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "catalogue", path: "/v1/library/books", wantData: marchallList(t, history, things)},
		{name: "search by title", path: "/v1/library/books?search=things", wantData: marchallList(t, things)},
		{name: "search by author", path: "/v1/library/books?search=hawking", wantData: marchallList(t, history)},
		{name: "search (unknown)", path: "/v1/library/books?search=lol", wantData: marchallList(t, []interface{}{}...)},
		{
			name: "cross-tenant book", path: "/v1/library/books/" + hidden.ID,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "book detail", path: "/v1/library/books/" + things.ID, wantData: marchallObj(t, things)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
			tt.token = studentToken
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, "umoja.test", tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// only staff may add to the catalogue
	req, rec := newAuthRequest(http.MethodPost, "/v1/library/books", "umoja.test", studentToken,
		marchallObj(t, library.NewBook{Title: "Sneaky Addition"}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)

	req, rec = newAuthRequest(http.MethodPost, "/v1/library/books", "umoja.test", getToken(t, teacher, true),
		marchallObj(t, library.NewBook{Title: "Sundiata", Author: "D.T. Niane"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var created library.Book
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if created.CopiesTotal != 1 || created.CopiesAvailable != 1 {
		t.Errorf("copies = %d/%d; want 1/1", created.CopiesAvailable, created.CopiesTotal)
	}
}

func Test_libraryApi_borrowAndReturn(t *testing.T) {
	app := setup(t)

	tnt := testutil.CreateTenant(t, tenantRepo, "Umoja School", "umoja.test", true)
	student := testutil.CreateUser(t, usrRepo, tnt.ID, "Hero", "heroine", "hero@umoja.test", "", user.RoleStudent, true)
	friend := testutil.CreateUser(t, usrRepo, tnt.ID, "Friend", "friend01", "friend@umoja.test", "", user.RoleStudent, true)
	teacher := testutil.CreateUser(t, usrRepo, tnt.ID, "Teacher", "teacher1", "teacher@umoja.test", "", user.RoleProfessor, true)

	book := testutil.CreateBook(t, libRepo, tnt.ID, "A Brief History of Time", "Stephen Hawking", 1)
	teacherToken := getToken(t, teacher, true)

	borrow := func(bookID, userID string) ([]byte, int) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/borrow", "umoja.test", teacherToken,
			marchallObj(t, library.BorrowRequest{BookID: bookID, UserID: userID}))
		app.ServeHTTP(rec, req)
		return rec.Body.Bytes(), rec.Code
	}

	// lend the only copy
	body, code := borrow(book.ID, student.ID)
	if code != http.StatusCreated {
		t.Fatalf("failed! code = %v; body %s", code, body)
	}
	var rec1 library.BorrowRecord
	if err := json.Unmarshal(body, &rec1); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if rec1.Status != library.StatusBorrowed {
		t.Errorf("status = %q; want %q", rec1.Status, library.StatusBorrowed)
	}

	// the same user cannot hold two copies of one book
	body, code = borrow(book.ID, student.ID)
	if code != http.StatusBadRequest {
		t.Fatalf("failed! code = %v; body %s", code, body)
	}
	wantData := marchallObj(t, map[string]string{"book_id": "user already has this book on loan"})
	if ok, _ := jsonBytesEqual(t, body, wantData); !ok {
		t.Errorf("failed! data = %s; wantData %s", body, wantData)
	}

	// no copies left for anyone else
	body, code = borrow(book.ID, friend.ID)
	if code != http.StatusBadRequest {
		t.Fatalf("failed! code = %v; body %s", code, body)
	}
	wantData = marchallObj(t, map[string]string{"book_id": "no copies available"})
	if ok, _ := jsonBytesEqual(t, body, wantData); !ok {
		t.Errorf("failed! data = %s; wantData %s", body, wantData)
	}

	// students only see their own loans
	req, rec := newAuthRequest(http.MethodGet, "/v1/library/records?user_id="+student.ID, "umoja.test", getToken(t, friend))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var records []library.BorrowRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if len(records) != 0 {
		t.Errorf("failed! a student can see someone else's loans: %v", records)
	}

	// staff see everything
	req, rec = newAuthRequest(http.MethodGet, "/v1/library/records", "umoja.test", teacherToken)
	app.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("failed! len(records) = %d; want 1", len(records))
	}

	// return releases the copy
	req, rec = newAuthRequest(http.MethodPost, "/v1/library/records/"+rec1.ID+"/return", "umoja.test", teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var returned library.BorrowRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &returned); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if returned.Status != library.StatusReturned {
		t.Errorf("status = %q; want %q", returned.Status, library.StatusReturned)
	}
	if returned.ReturnedAt.IsZero() {
		t.Error("returned_at must be set")
	}

	// and the friend can borrow it now
	if _, code = borrow(book.ID, friend.ID); code != http.StatusCreated {
		t.Errorf("failed! code = %v; want %v", code, http.StatusCreated)
	}
}
