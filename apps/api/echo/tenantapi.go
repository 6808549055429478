package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/tenant"
)

// tenantApi exposes the registry. All routes are superuser-only; regular
// tenant users never see other schools.
type tenantApi struct {
	svc      *tenant.Service
	validate *validator.Validate
}

func registerTenantAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := tenantApi{
		svc:      deps.TenantSvc,
		validate: deps.Validate,
	}

	tg := g.Group("/tenants", jwt, superuserRequired(deps.UserSvc), otpRequired())

	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.POST("/:id/renew", api.renew)
	tg.POST("/:id/disable", api.disable)
	tg.POST("/:id/domains", api.addDomain)
	tg.DELETE("/:id/domains/:host", api.removeDomain)
	tg.PUT("/:id/domains/:host/primary", api.setPrimaryDomain)
}

func (api *tenantApi) query(ctx echo.Context) error {
	tenants, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying tenants")
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	return ctx.JSON(http.StatusOK, tenants)
}

func (api *tenantApi) create(ctx echo.Context) error {
	var data tenant.NewTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTenant")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	tnt, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating tenant")
	}
	return ctx.JSON(http.StatusCreated, tnt)
}

func (api *tenantApi) retrieve(ctx echo.Context) error {
	tnt, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if err == tenant.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting tenant")
	}
	return ctx.JSON(http.StatusOK, tnt)
}

func (api *tenantApi) update(ctx echo.Context) error {
	orig, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if err == tenant.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting tenant")
	}

	var data tenant.UpdateTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTenant")
	}
	if err := data.Validate(api.validate, orig); err != nil {
		return err
	}

	tnt, err := api.svc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating tenant")
	}
	return ctx.JSON(http.StatusOK, tnt)
}

func (api *tenantApi) renew(ctx echo.Context) error {
	var data tenant.RenewSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RenewSubscription")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tnt, err := api.svc.Renew(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		if err == tenant.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "renewing subscription")
	}
	return ctx.JSON(http.StatusOK, tnt)
}

func (api *tenantApi) disable(ctx echo.Context) error {
	tnt, err := api.svc.Disable(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if err == tenant.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "disabling tenant")
	}
	return ctx.JSON(http.StatusOK, tnt)
}

func (api *tenantApi) addDomain(ctx echo.Context) error {
	var data tenant.NewDomain
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDomain")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.AddDomain(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding domain")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *tenantApi) removeDomain(ctx echo.Context) error {
	err := api.svc.RemoveDomain(ctx.Request().Context(), ctx.Param("id"), ctx.Param("host"))
	if err != nil {
		if err == tenant.ErrDomainNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "removing domain")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *tenantApi) setPrimaryDomain(ctx echo.Context) error {
	err := api.svc.SetPrimaryDomain(ctx.Request().Context(), ctx.Param("id"), ctx.Param("host"))
	if err != nil {
		if err == tenant.ErrDomainNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "setting primary domain")
	}
	return ctx.NoContent(http.StatusNoContent)
}
