package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"weather-tracker/internal/weather"
)

var validate = validator.New()

// Messages returned by the track-city endpoint.
const (
	MsgCityAdded          = "city added to user"
	MsgCityAlreadyTracked = "user already tracks this city"
)

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Post("/users", func(c *fiber.Ctx) error {
		var req createUserRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		user, err := service.CreateUser(c.Context(), req.Username)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	})

	v1.Post("/users/:user_id/cities", func(c *fiber.Ctx) error {
		var req addCityRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := service.AddCityForUser(c.Context(), c.Params("user_id"), req.Name, req.Latitude, req.Longitude)
		if err != nil {
			return toHTTPError(err)
		}

		if result.AlreadyTracked {
			return c.JSON(fiber.Map{"message": MsgCityAlreadyTracked})
		}

		resp := fiber.Map{"message": MsgCityAdded, "city": result.City}
		if result.FetchErr != nil {
			resp["warning"] = "initial forecast fetch failed: " + result.FetchErr.Error()
		}
		return c.JSON(resp)
	})

	v1.Get("/users/:user_id/cities", func(c *fiber.Ctx) error {
		cities, err := service.ListUserCities(c.Context(), c.Params("user_id"))
		if err != nil {
			return toHTTPError(err)
		}
		if len(cities) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no cities tracked by this user")
		}
		return c.JSON(cities)
	})

	v1.Get("/users/:user_id/weather", func(c *fiber.Ctx) error {
		city := c.Query("city")
		if city == "" {
			return fiber.NewError(fiber.StatusBadRequest, "city query parameter is required")
		}
		timeOfDay := c.Query("time")
		if timeOfDay == "" {
			return fiber.NewError(fiber.StatusBadRequest, "time query parameter is required")
		}

		result, err := service.WeatherAt(c.Context(), c.Params("user_id"), city, timeOfDay, c.Query("parameters"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(result)
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		coords, err := parseCoordinates(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		conditions, err := service.CurrentConditions(c.Context(), coords.Latitude, coords.Longitude)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(conditions)
	})
}

// toHTTPError maps domain errors onto HTTP statuses.
func toHTTPError(err error) *fiber.Error {
	switch {
	case errors.Is(err, weather.ErrUserNotFound),
		errors.Is(err, weather.ErrCityNotFound),
		errors.Is(err, weather.ErrNoDataAtTime):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrUserExists),
		errors.Is(err, weather.ErrInvalidParameter),
		errors.Is(err, weather.ErrTimeFormatInvalid):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrProviderUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	var perr *weather.ProviderError
	if errors.As(err, &perr) {
		return fiber.NewError(fiber.StatusBadGateway, perr.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, "internal error")
}

type createUserRequest struct {
	Username string `json:"username" validate:"required"`
}

type addCityRequest struct {
	Name      string  `json:"name" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

type coordinatesQuery struct {
	Latitude  float64 `validate:"min=-90,max=90"`
	Longitude float64 `validate:"min=-180,max=180"`
}

func parseCoordinates(c *fiber.Ctx) (coordinatesQuery, error) {
	var q coordinatesQuery

	lat, err := strconv.ParseFloat(c.Query("latitude"), 64)
	if err != nil {
		return q, errors.New("latitude must be a number")
	}
	lon, err := strconv.ParseFloat(c.Query("longitude"), 64)
	if err != nil {
		return q, errors.New("longitude must be a number")
	}

	q.Latitude = lat
	q.Longitude = lon
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}
