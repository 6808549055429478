package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/user"
)

type libraryApi struct {
	svc      *library.Service
	userSvc  *user.Service
	validate *validator.Validate
}

func registerLibraryAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := libraryApi{
		svc:      deps.LibrarySvc,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
	}

	lg := g.Group("/library", jwt)

	read := roleRequired(deps.UserSvc)
	manage := roleRequired(deps.UserSvc, user.RoleProfessor, user.RoleDirection, user.RoleAdmin)
	otp := otpRequired()

	lg.GET("/books", api.queryBooks, read)
	lg.GET("/books/:id", api.retrieveBook, read)
	lg.POST("/books", api.createBook, manage, otp)
	lg.POST("/borrow", api.borrow, manage, otp)
	lg.POST("/records/:id/return", api.returnBook, manage, otp)
	lg.GET("/records", api.queryRecords, read)
}

func (api *libraryApi) queryBooks(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	books, err := api.svc.QueryBooks(ctx.Request().Context(), tnt.ID, ctx.QueryParam("search"))
	if err != nil {
		return errors.Wrap(err, "querying books")
	}
	if books == nil {
		books = []library.Book{}
	}
	return ctx.JSON(http.StatusOK, books)
}

func (api *libraryApi) retrieveBook(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	b, err := api.svc.GetBook(ctx.Request().Context(), tnt.ID, ctx.Param("id"))
	if err != nil {
		if err == library.ErrBookNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting book")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *libraryApi) createBook(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	var data library.NewBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBook")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.AddBook(ctx.Request().Context(), tnt.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding book")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *libraryApi) borrow(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	var data library.BorrowRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BorrowRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Borrow(ctx.Request().Context(), tnt.ID, data)
	if err != nil {
		if err == library.ErrBookNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "borrowing book")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *libraryApi) returnBook(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	rec, err := api.svc.Return(ctx.Request().Context(), tnt.ID, ctx.Param("id"))
	if err != nil {
		if err == library.ErrRecordNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "returning book")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *libraryApi) queryRecords(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// students and parents only see their own loans
	userID := ctx.QueryParam("user_id")
	if !ctxUsr.IsStaff() {
		userID = ctxUsr.ID
	}

	records, err := api.svc.QueryBorrows(ctx.Request().Context(), tnt.ID, userID)
	if err != nil {
		return errors.Wrap(err, "querying borrow records")
	}
	if records == nil {
		records = []library.BorrowRecord{}
	}
	return ctx.JSON(http.StatusOK, records)
}
