// handlers/progression_routes.go
package handlers

import (
	"errors"
	"strings"

	"sips-gamification/logger"
	"sips-gamification/middleware"
	"sips-gamification/models"
	"sips-gamification/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var validate = validator.New()

// Gateway roles. Service callers are platform backends recording actions on behalf of users.
const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

type recordActionRequest struct {
	ProfileID    string                 `json:"profile_id" validate:"omitempty,max=128"`
	ActionType   string                 `json:"action_type" validate:"required,max=64"`
	Metadata     map[string]interface{} `json:"metadata"`
	ActionSource *string                `json:"action_source" validate:"omitempty,max=255"`
	RequestID    *string                `json:"request_id" validate:"omitempty,max=128"`
}

type optInRequest struct {
	OptedIn *bool `json:"opted_in" validate:"required"`
}

type grantXPRequest struct {
	ProfileID string `json:"profile_id" validate:"required,max=128"`
	XP        int64  `json:"xp" validate:"required,ne=0"`
	Points    int64  `json:"points"`
	Reason    string `json:"reason" validate:"max=255"`
	RequestID string `json:"request_id" validate:"omitempty,max=128"`
}

func SetupGamificationRoutes(
	app *fiber.App,
	log *logger.Logger,
	progression *services.ProgressionService,
	profiles *services.ProfileReadService,
	leaderboard *services.LeaderboardService,
) {
	log = log.With("component", "handlers")

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		var filters services.LeaderboardFilters
		if err := c.QueryParser(&filters); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid query",
				"cause": err.Error(),
			})
		}
		res, err := leaderboard.FetchLeaderboard(c.UserContext(), filters)
		if err != nil {
			return respondError(c, log, "leaderboard read failed", err)
		}
		return c.JSON(res)
	})

	// 🔐 Gateway user context on everything below
	securedGroup := app.Group("/", middleware.UserContextMiddleware(log))

	securedGroup.Get("/user/gamification", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
		}
		payload, err := profiles.FetchGamificationProfile(c.UserContext(), userID)
		if err != nil {
			return respondError(c, log, "profile read failed", err)
		}
		return c.JSON(payload)
	})

	securedGroup.Get("/user/gamification/challenges", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
		}
		progress, err := progression.Challenges.Progress(c.UserContext(), userID)
		if err != nil {
			return respondError(c, log, "challenge progress read failed", err)
		}
		return c.JSON(progress)
	})

	securedGroup.Post("/user/gamification/opt-in", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
		}
		var req optInRequest
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
		prof, err := progression.SetOptIn(c.UserContext(), userID, *req.OptedIn)
		if err != nil {
			return respondError(c, log, "opt-in update failed", err)
		}
		return c.JSON(prof)
	})

	securedGroup.Post("/s/actions", func(c *fiber.Ctx) error {
		var req recordActionRequest
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
		userID := middleware.UserID(c)
		admin := middleware.HasRole(c, RoleAdmin)
		trusted := admin || middleware.HasRole(c, RoleService)

		actionType := models.ActionType(strings.TrimSpace(req.ActionType))
		if actionType == models.ActionManualAdjustment && !admin {
			log.Warn("⛔ manual adjustment without admin role", "user_id", userID)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "manual adjustments require the admin role",
			})
		}

		profileID := strings.TrimSpace(req.ProfileID)
		if profileID == "" {
			profileID = userID
		}
		if profileID != userID && !trusted {
			log.Warn("⛔ action for another profile", "user_id", userID, "profile_id", profileID)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "cannot record actions for another profile",
			})
		}

		metadata := req.Metadata
		if !trusted {
			metadata = withoutAwardOverrides(metadata)
		}

		result, err := progression.RecordAction(c.UserContext(), services.RecordActionInput{
			ProfileID:    profileID,
			ActionType:   actionType,
			Metadata:     metadata,
			ActionSource: req.ActionSource,
			RequestID:    req.RequestID,
		})
		if err != nil {
			return respondError(c, log, "record action failed", err)
		}
		return c.JSON(result)
	})

	securedGroup.Get("/s/profiles/:id", func(c *fiber.Ctx) error {
		payload, err := profiles.FetchGamificationProfile(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, log, "profile read failed", err)
		}
		return c.JSON(payload)
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.RequireRole(RoleAdmin, log))

	adminGroup.Post("/xp/grant", func(c *fiber.Ctx) error {
		var req grantXPRequest
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
		source := "admin:" + middleware.UserID(c)
		in := services.RecordActionInput{
			ProfileID:  req.ProfileID,
			ActionType: models.ActionManualAdjustment,
			Metadata: map[string]interface{}{
				"xp":     req.XP,
				"points": req.Points,
				"reason": req.Reason,
			},
			ActionSource: &source,
		}
		if req.RequestID != "" {
			in.RequestID = &req.RequestID
		}
		result, err := progression.RecordAction(c.UserContext(), in)
		if err != nil {
			return respondError(c, log, "XP grant failed", err)
		}
		if !result.Applied {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":  "XP grant not applied",
				"reason": result.Reason,
			})
		}

		log.Info("🎁 XP granted", "profile_id", req.ProfileID, "xp", req.XP, "by", middleware.UserID(c))
		return c.JSON(fiber.Map{
			"message":    "XP granted successfully",
			"profile_id": req.ProfileID,
			"xp":         req.XP,
			"result":     result,
		})
	})
}

// withoutAwardOverrides drops metadata.xp / metadata.points; only trusted callers may set awards.
func withoutAwardOverrides(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if k == "xp" || k == "points" {
			continue
		}
		out[k] = v
	}
	return out
}

// parseAndValidate writes the 400 response itself when it reports false.
func parseAndValidate(c *fiber.Ctx, dest interface{}) (bool, error) {
	if err := c.BodyParser(dest); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON",
			"cause": err.Error(),
		})
	}
	if err := validate.Struct(dest); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "validation failed",
			"cause": err.Error(),
		})
	}
	return true, nil
}

func respondError(c *fiber.Ctx, log *logger.Logger, msg string, err error) error {
	if errors.Is(err, services.ErrInvalidInput) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
			"cause": err.Error(),
		})
	}
	log.Error(msg, "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}
