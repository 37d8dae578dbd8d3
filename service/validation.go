package service

import (
	"errors"
	"regexp"

	"github.com/gofrs/uuid/v5"
	"github.com/wepaintai/wepaintai-sub000/models"
)

var hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

const (
	minBrushSize    = 1
	maxBrushSize    = 200
	maxStrokePoints = 2000
)

func ValidateSessionId(sessionId string) error {
	id, err := uuid.FromString(sessionId)
	if err != nil || id.Version() != uuid.V7 {
		return errors.New("invalid session id")
	}
	return nil
}

func ValidateStroke(stroke models.Stroke) error {
	if len(stroke.Points) == 0 {
		return errors.New("stroke has no points")
	}
	if len(stroke.Points) > maxStrokePoints {
		return errors.New("stroke too long")
	}
	if !hexColorRegex.MatchString(stroke.BrushColor) {
		return errors.New("invalid brush color")
	}
	if stroke.AuthorColor != "" && !hexColorRegex.MatchString(stroke.AuthorColor) {
		return errors.New("invalid author color")
	}
	if stroke.BrushSize < minBrushSize || stroke.BrushSize > maxBrushSize {
		return errors.New("invalid brush size")
	}
	if stroke.Opacity < 0 || stroke.Opacity > 1 {
		return errors.New("invalid opacity")
	}
	if !models.ValidColorMode(stroke.ColorMode) {
		return errors.New("invalid color mode")
	}
	for _, p := range stroke.Points {
		if p.Pressure < 0 || p.Pressure > 1 {
			return errors.New("invalid pressure")
		}
	}
	return nil
}

func ValidateOpacity(opacity float64) error {
	if opacity < 0 || opacity > 1 {
		return errors.New("invalid opacity")
	}
	return nil
}
