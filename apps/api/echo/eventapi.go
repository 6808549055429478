package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/user"
)

type eventApi struct {
	svc      *event.Service
	validate *validator.Validate
}

func registerEventAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := eventApi{
		svc:      deps.EventSvc,
		validate: deps.Validate,
	}

	eg := g.Group("/events", jwt)

	read := roleRequired(deps.UserSvc)
	manage := roleRequired(deps.UserSvc, user.RoleProfessor, user.RoleDirection, user.RoleAdmin)
	otp := otpRequired()

	eg.GET("", api.query, read)
	eg.GET("/:id", api.retrieve, read)
	eg.POST("", api.create, manage, otp)
	eg.PUT("/:id", api.update, manage, otp)
	eg.DELETE("/:id", api.destroy, roleRequired(deps.UserSvc, user.RoleDirection, user.RoleAdmin), otp)
}

type eventQuery struct {
	From time.Time `query:"from"`
	To   time.Time `query:"to"`
}

func (api *eventApi) query(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	var q eventQuery
	if err := ctx.Bind(&q); err != nil {
		return ctx.JSON(http.StatusOK, []event.Event{})
	}

	events, err := api.svc.Query(ctx.Request().Context(), tnt.ID, q.From, q.To)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	ev, err := api.svc.GetByID(ctx.Request().Context(), tnt.ID, ctx.Param("id"))
	if err != nil {
		if err == event.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventApi) create(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data event.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ev, err := api.svc.Create(ctx.Request().Context(), tnt.ID, claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, ev)
}

func (api *eventApi) update(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	orig, err := api.svc.GetByID(ctx.Request().Context(), tnt.ID, ctx.Param("id"))
	if err != nil {
		if err == event.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting event")
	}

	var data event.UpdateEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvent")
	}
	if err := data.Validate(api.validate, orig); err != nil {
		return err
	}

	ev, err := api.svc.Update(ctx.Request().Context(), tnt.ID, orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventApi) destroy(ctx echo.Context) error {
	tnt, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), tnt.ID, ctx.Param("id")); err != nil {
		if err == event.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}
