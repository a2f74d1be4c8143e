package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geodash/internal/core/domain"
)

type geolocationRequest struct {
	Status   domain.GeolocationStatus `json:"status" form:"status" validate:"required,oneof=granted denied unavailable"`
	Lat      float64                  `json:"lat" form:"lat"`
	Lon      float64                  `json:"lon" form:"lon"`
	Accuracy float64                  `json:"accuracy" form:"accuracy"`
	Reason   string                   `json:"reason" form:"reason" validate:"max=200"`
}

// ChartsHandler returns the chart set for the caller.
func ChartsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		charts, err := deps.Charts.Charts(c.UserContext(), sessionFrom(c).Scope())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"charts": charts})
	}
}

// MapViewHandler returns the initial viewport for the caller's session.
func MapViewHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := deps.Maps.ViewFor(c.UserContext(), sessionFrom(c))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(view)
	}
}

// MapOverlayHandler returns visible records as a GeoJSON FeatureCollection.
func MapOverlayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := parseFilter(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		fc, err := deps.Maps.OverlayFor(c.UserContext(), sessionFrom(c).Scope(), f)
		if err != nil {
			return errFromDomain(c, err)
		}
		data, err := fc.MarshalJSON()
		if err != nil {
			return errInternal(c, "encode overlay")
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}

// MapDensityHandler aggregates visible records into tiles for the heat layer.
func MapDensityHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := parseFilter(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		cells, err := deps.Maps.DensityFor(c.UserContext(), sessionFrom(c).Scope(), f, c.QueryInt("zoom", -1))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"cells": cells})
	}
}

// GeolocationHandler records what the browser reported: a fix, a denial or
// an unavailable position.
func GeolocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req geolocationRequest
		if err := bindJSON(c, &req); err != nil {
			return errFromDomain(c, err)
		}
		sess := sessionFrom(c)
		var (
			geo *domain.Geolocation
			err error
		)
		if req.Status == domain.GeolocationGranted {
			geo, err = deps.Geolocation.Report(c.UserContext(), sess, req.Lat, req.Lon, req.Accuracy)
		} else {
			geo, err = deps.Geolocation.Deny(c.UserContext(), sess, req.Status, req.Reason)
		}
		if err != nil {
			return errFromDomain(c, err)
		}
		view, err := deps.Maps.ViewFor(c.UserContext(), sess)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"geolocation": geo, "view": view})
	}
}

// ClearGeolocationHandler forgets the stored position.
func ClearGeolocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Geolocation.Clear(c.UserContext(), sessionFrom(c)); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
