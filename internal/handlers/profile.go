// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"unicode/utf8"

	"codeberg.org/oliverandrich/careerhub/internal/apperr"
	"codeberg.org/oliverandrich/careerhub/internal/auth"
	"codeberg.org/oliverandrich/careerhub/internal/models"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// Profile field limits.
const (
	maxDisplayName = 100
	maxHeadline    = 160
	maxBio         = 2000
	maxSkills      = 50
	maxSkillLength = 50
	maxLinks       = 10
	maxLinkLength  = 2048
)

type profileResponse struct {
	*models.User
	Skills []string `json:"skills"`
	Links  []string `json:"links"`
}

type profileRequest struct {
	DisplayName *string   `json:"display_name"`
	Headline    *string   `json:"headline"`
	Bio         *string   `json:"bio"`
	Skills      *[]string `json:"skills"`
	Links       *[]string `json:"links"`
}

// Profile returns the signed-in user's profile.
func (h *Handlers) Profile(c echo.Context) error {
	user := auth.GetUser(c.Request().Context())
	if user == nil {
		return apperr.Unauthorized("authentication required")
	}
	return c.JSON(http.StatusOK, newProfileResponse(user))
}

// UpdateProfile applies a partial update to the signed-in user's profile.
func (h *Handlers) UpdateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.GetUser(ctx)
	if user == nil {
		return apperr.Unauthorized("authentication required")
	}

	var req profileRequest
	if err := bindClean(c, &req); err != nil {
		return err
	}

	upd, err := req.toUpdate()
	if err != nil {
		return err
	}

	if err := h.repo.UpdateProfile(ctx, user.ID, upd); err != nil {
		return apperr.From(err)
	}

	updated, err := h.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		return apperr.From(err)
	}
	return c.JSON(http.StatusOK, newProfileResponse(updated))
}

func (r profileRequest) toUpdate() (repository.ProfileUpdate, error) {
	var upd repository.ProfileUpdate

	for _, f := range []struct {
		name  string
		value *string
		max   int
	}{
		{"display_name", r.DisplayName, maxDisplayName},
		{"headline", r.Headline, maxHeadline},
		{"bio", r.Bio, maxBio},
	} {
		if f.value != nil && utf8.RuneCountInString(*f.value) > f.max {
			return upd, apperr.ValidationField(f.name, fmt.Sprintf("must be at most %d characters", f.max))
		}
	}
	upd.DisplayName = r.DisplayName
	upd.Headline = r.Headline
	upd.Bio = r.Bio

	if r.Skills != nil {
		skills := lo.Uniq(lo.Compact(*r.Skills))
		if len(skills) > maxSkills {
			return upd, apperr.ValidationField("skills", fmt.Sprintf("at most %d skills allowed", maxSkills))
		}
		for _, s := range skills {
			if utf8.RuneCountInString(s) > maxSkillLength {
				return upd, apperr.ValidationField("skills", fmt.Sprintf("each skill must be at most %d characters", maxSkillLength))
			}
		}
		encoded, err := encodeList(skills)
		if err != nil {
			return upd, apperr.Internal(err)
		}
		upd.Skills = &encoded
	}

	if r.Links != nil {
		links := lo.Uniq(lo.Compact(*r.Links))
		if len(links) > maxLinks {
			return upd, apperr.ValidationField("links", fmt.Sprintf("at most %d links allowed", maxLinks))
		}
		for _, l := range links {
			if !validLink(l) {
				return upd, apperr.ValidationField("links", "links must be http or https URLs")
			}
		}
		encoded, err := encodeList(links)
		if err != nil {
			return upd, apperr.Internal(err)
		}
		upd.Links = &encoded
	}

	return upd, nil
}

func validLink(s string) bool {
	if len(s) > maxLinkLength {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeList(raw string) []string {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil || items == nil {
		return []string{}
	}
	return items
}

func newProfileResponse(user *models.User) profileResponse {
	return profileResponse{
		User:   user,
		Skills: decodeList(user.Skills),
		Links:  decodeList(user.Links),
	}
}
